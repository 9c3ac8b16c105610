package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/stevekrontz-dev/boswell/internal/storage"
	"github.com/stevekrontz-dev/boswell/pkg/types"
)

// Links manages the typed cross-references between blobs.
type Links struct {
	store storage.LinkStore
}

// NewLinks builds the link service.
func NewLinks(store storage.LinkStore) *Links {
	return &Links{store: store}
}

// LinkRequest describes one cross-reference to create.
type LinkRequest struct {
	TenantID     string
	SourceBlob   string
	TargetBlob   string
	SourceBranch string
	TargetBranch string
	LinkType     string
	Weight       float64
	Reasoning    string
}

// Create validates and persists a link. Unknown link types are rejected
// before any write; an already-linked ordered pair is a conflict.
func (l *Links) Create(ctx context.Context, req LinkRequest) (*types.Link, error) {
	link, err := types.NewLink(req.TenantID, req.SourceBlob, req.TargetBlob,
		req.SourceBranch, req.TargetBranch, req.LinkType, req.Weight, req.Reasoning, time.Now())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", storage.ErrInvalidInput, err)
	}
	if err := l.store.CreateLink(ctx, link); err != nil {
		return nil, err
	}
	return link, nil
}

// List returns links matching the filter, newest first.
func (l *Links) List(ctx context.Context, tenantID string, filter storage.LinkFilter) ([]*types.Link, error) {
	return l.store.ListLinks(ctx, tenantID, filter)
}
