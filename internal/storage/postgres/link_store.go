package postgres

import (
	"context"
	"fmt"

	"github.com/stevekrontz-dev/boswell/internal/storage"
	"github.com/stevekrontz-dev/boswell/pkg/types"
)

// CreateLink inserts a cross-reference. Links are immutable and unique per
// ordered (source, target) pair.
func (s *Store) CreateLink(ctx context.Context, link *types.Link) error {
	if link == nil {
		return fmt.Errorf("%w: link is required", storage.ErrInvalidInput)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cross_references (tenant_id, source_blob, target_blob, source_branch, target_branch, link_type, weight, reasoning, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, link.TenantID, link.SourceBlob, link.TargetBlob, link.SourceBranch,
		link.TargetBranch, link.LinkType, link.Weight, link.Reasoning,
		types.Timestamp(link.CreatedAt))
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("link %s->%s already exists: %w", link.SourceBlob, link.TargetBlob, storage.ErrConflict)
		}
		return fmt.Errorf("postgres: failed to insert link: %w", err)
	}
	return nil
}

// ListLinks returns cross-references matching the filter, newest first.
func (s *Store) ListLinks(ctx context.Context, tenantID string, filter storage.LinkFilter) ([]*types.Link, error) {
	query := `
		SELECT tenant_id, source_blob, target_blob, source_branch, target_branch, link_type, weight, COALESCE(reasoning, ''), created_at
		FROM cross_references WHERE tenant_id = $1`
	args := []any{tenantID}

	if filter.Blob != "" {
		args = append(args, filter.Blob)
		query += fmt.Sprintf(` AND (source_blob = $%d OR target_blob = $%d)`, len(args), len(args))
	}
	if filter.Branch != "" {
		args = append(args, filter.Branch)
		query += fmt.Sprintf(` AND (source_branch = $%d OR target_branch = $%d)`, len(args), len(args))
	}
	if filter.LinkType != "" {
		args = append(args, filter.LinkType)
		query += fmt.Sprintf(` AND link_type = $%d`, len(args))
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = storage.DefaultListLimit
	}
	args = append(args, limit)
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d`, len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to list links: %w", err)
	}
	defer rows.Close()

	var links []*types.Link
	for rows.Next() {
		var l types.Link
		var createdAt string
		if err := rows.Scan(&l.TenantID, &l.SourceBlob, &l.TargetBlob, &l.SourceBranch,
			&l.TargetBranch, &l.LinkType, &l.Weight, &l.Reasoning, &createdAt); err != nil {
			return nil, fmt.Errorf("postgres: failed to scan link: %w", err)
		}
		l.CreatedAt = parseTimestamp(createdAt)
		links = append(links, &l)
	}
	return links, rows.Err()
}
