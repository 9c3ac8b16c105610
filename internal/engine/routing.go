package engine

import (
	"context"
	"fmt"
	"log"

	"github.com/stevekrontz-dev/boswell/internal/embedding"
	"github.com/stevekrontz-dev/boswell/pkg/types"
)

// DefaultRoutingThreshold is the minimum similarity the best-scoring branch
// must reach before a mismatch suggestion is emitted.
const DefaultRoutingThreshold = 0.15

// maxRoutingAlternatives caps the ranked alternatives returned with a
// validation result.
const maxRoutingAlternatives = 5

// Router checks candidate content against branch fingerprints and flags
// likely misfiled commits. It is strictly advisory: embedding failures and
// empty fingerprint sets skip the check, and the commit proceeds either way.
type Router struct {
	fingerprints *Fingerprints
	embedder     embedding.Provider
	threshold    float64
}

// NewRouter builds a routing advisor. A zero threshold falls back to the
// default.
func NewRouter(fingerprints *Fingerprints, embedder embedding.Provider, threshold float64) *Router {
	if threshold <= 0 {
		threshold = DefaultRoutingThreshold
	}
	return &Router{fingerprints: fingerprints, embedder: embedder, threshold: threshold}
}

// SuggestFor scores an already-computed embedding against the tenant's
// fingerprints and returns a suggestion only when the best branch differs
// from the requested one (case-insensitive) above the threshold. The commit
// path uses this to reuse the intake embedding.
func (r *Router) SuggestFor(ctx context.Context, tenantID, requestedBranch string, vector []float32) (*types.RoutingSuggestion, error) {
	suggestion, err := r.validate(ctx, tenantID, requestedBranch, vector)
	if err != nil || suggestion == nil || !suggestion.IsMismatch {
		return nil, err
	}
	return suggestion, nil
}

// Suggest embeds the content and delegates to SuggestFor. An embedding
// failure skips the suggestion rather than surfacing an error.
func (r *Router) Suggest(ctx context.Context, tenantID, requestedBranch, content string) (*types.RoutingSuggestion, error) {
	vector, err := r.embedder.Embed(ctx, content)
	if err != nil {
		log.Printf("routing: embedding unavailable, suggestion skipped: %v", err)
		return nil, nil
	}
	return r.SuggestFor(ctx, tenantID, requestedBranch, vector)
}

// Validate is the standalone pre-commit check: it always returns a result
// when fingerprints exist, reporting the best branch, the confidence gap
// between the top two candidates, and the top ranked alternatives — whether
// or not the requested branch matched.
func (r *Router) Validate(ctx context.Context, tenantID, requestedBranch, content string) (*types.RoutingSuggestion, error) {
	vector, err := r.embedder.Embed(ctx, content)
	if err != nil {
		log.Printf("routing: embedding unavailable, validation skipped: %v", err)
		return nil, nil
	}
	return r.validate(ctx, tenantID, requestedBranch, vector)
}

func (r *Router) validate(ctx context.Context, tenantID, requestedBranch string, vector []float32) (*types.RoutingSuggestion, error) {
	scores, err := r.fingerprints.Score(ctx, tenantID, vector)
	if err != nil {
		return nil, err
	}
	if len(scores) == 0 {
		return nil, nil
	}

	top := scores[0]
	var gap float64
	if len(scores) > 1 {
		gap = top.Similarity - scores[1].Similarity
	}
	alternatives := scores
	if len(alternatives) > maxRoutingAlternatives {
		alternatives = alternatives[:maxRoutingAlternatives]
	}

	suggestion := &types.RoutingSuggestion{
		RequestedBranch: requestedBranch,
		SuggestedBranch: top.Branch,
		Confidence:      top.Similarity,
		ConfidenceGap:   gap,
		AllScores:       alternatives,
	}
	if !types.SameName(top.Branch, requestedBranch) && top.Similarity > r.threshold {
		suggestion.IsMismatch = true
		suggestion.Message = fmt.Sprintf(
			"content looks closer to branch %q (similarity %.2f) than requested branch %q",
			top.Branch, top.Similarity, requestedBranch)
	}
	return suggestion, nil
}
