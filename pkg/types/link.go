package types

import (
	"fmt"
	"time"
)

// Link types describe why two memories are connected.
const (
	LinkResonance     = "resonance"
	LinkCausal        = "causal"
	LinkContradiction = "contradiction"
	LinkElaboration   = "elaboration"
	LinkApplication   = "application"
)

// ValidLinkTypes lists every accepted link type.
var ValidLinkTypes = []string{
	LinkResonance,
	LinkCausal,
	LinkContradiction,
	LinkElaboration,
	LinkApplication,
}

// IsValidLinkType reports whether t is one of the accepted link types.
func IsValidLinkType(t string) bool {
	for _, v := range ValidLinkTypes {
		if t == v {
			return true
		}
	}
	return false
}

// Link is a typed, weighted cross-reference between two blobs. Links are
// immutable once created and unique per ordered (source, target) pair.
type Link struct {
	TenantID     string    `json:"tenant_id"`
	SourceBlob   string    `json:"source_blob"`
	TargetBlob   string    `json:"target_blob"`
	SourceBranch string    `json:"source_branch"`
	TargetBranch string    `json:"target_branch"`
	LinkType     string    `json:"link_type"`
	Weight       float64   `json:"weight"`
	Reasoning    string    `json:"reasoning,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// NewLink validates and builds a cross-reference. The zero weight defaults
// to 1.0; an unknown link type is rejected before any write happens.
func NewLink(tenantID, sourceBlob, targetBlob, sourceBranch, targetBranch, linkType string, weight float64, reasoning string, now time.Time) (*Link, error) {
	if sourceBlob == "" || targetBlob == "" || sourceBranch == "" || targetBranch == "" {
		return nil, fmt.Errorf("source_blob, target_blob, source_branch and target_branch are required")
	}
	if linkType == "" {
		linkType = LinkResonance
	}
	if !IsValidLinkType(linkType) {
		return nil, fmt.Errorf("invalid link_type %q, must be one of %v", linkType, ValidLinkTypes)
	}
	if weight == 0 {
		weight = 1.0
	}
	return &Link{
		TenantID:     tenantID,
		SourceBlob:   sourceBlob,
		TargetBlob:   targetBlob,
		SourceBranch: sourceBranch,
		TargetBranch: targetBranch,
		LinkType:     linkType,
		Weight:       weight,
		Reasoning:    reasoning,
		CreatedAt:    now.UTC(),
	}, nil
}
