package postgres

import (
	"context"
	"fmt"
	"log"

	pgvector "github.com/pgvector/pgvector-go"

	"github.com/stevekrontz-dev/boswell/internal/storage"
	"github.com/stevekrontz-dev/boswell/pkg/types"
)

// UpsertFingerprint inserts or replaces a branch centroid. When pgvector is
// available the centroid is mirrored into the vector column for similarity
// queries on the database side.
func (s *Store) UpsertFingerprint(ctx context.Context, fp *types.Fingerprint) error {
	if fp == nil || fp.BranchName == "" {
		return fmt.Errorf("%w: fingerprint branch name is required", storage.ErrInvalidInput)
	}

	var centroid []byte
	if len(fp.Centroid) > 0 {
		centroid = serializeEmbedding(fp.Centroid)
	}
	updated := types.Timestamp(fp.LastUpdated)

	if s.pgvectorAvailable && len(fp.Centroid) > 0 {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO branch_fingerprints (tenant_id, branch_name, centroid, commit_count, last_updated, centroid_vec)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (tenant_id, branch_name) DO UPDATE SET
				centroid = excluded.centroid,
				commit_count = excluded.commit_count,
				last_updated = excluded.last_updated,
				centroid_vec = excluded.centroid_vec
		`, fp.TenantID, fp.BranchName, centroid, fp.CommitCount, updated, pgvector.NewVector(fp.Centroid))
		if err == nil {
			return nil
		}
		log.Printf("postgres: failed to upsert centroid_vec (falling back to BYTEA only): %v", err)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO branch_fingerprints (tenant_id, branch_name, centroid, commit_count, last_updated)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (tenant_id, branch_name) DO UPDATE SET
			centroid = excluded.centroid,
			commit_count = excluded.commit_count,
			last_updated = excluded.last_updated
	`, fp.TenantID, fp.BranchName, centroid, fp.CommitCount, updated)
	if err != nil {
		return fmt.Errorf("postgres: failed to upsert fingerprint: %w", err)
	}
	return nil
}

// GetFingerprints returns every fingerprint with a centroid, in row order.
func (s *Store) GetFingerprints(ctx context.Context, tenantID string) ([]*types.Fingerprint, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT tenant_id, branch_name, centroid, commit_count, last_updated
		FROM branch_fingerprints
		WHERE tenant_id = $1 AND centroid IS NOT NULL
	`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to query fingerprints: %w", err)
	}
	defer rows.Close()

	var fps []*types.Fingerprint
	for rows.Next() {
		var fp types.Fingerprint
		var centroid []byte
		var updated string
		if err := rows.Scan(&fp.TenantID, &fp.BranchName, &centroid, &fp.CommitCount, &updated); err != nil {
			return nil, fmt.Errorf("postgres: failed to scan fingerprint: %w", err)
		}
		if len(centroid) > 0 {
			vec, err := deserializeEmbedding(centroid)
			if err != nil {
				return nil, fmt.Errorf("postgres: corrupt centroid for branch %s: %w", fp.BranchName, err)
			}
			fp.Centroid = vec
		}
		fp.LastUpdated = parseTimestamp(updated)
		fps = append(fps, &fp)
	}
	return fps, rows.Err()
}

// ListFingerprintSummaries returns fingerprint metadata without the centroid
// payload, ordered by contributing commit count descending.
func (s *Store) ListFingerprintSummaries(ctx context.Context, tenantID string) ([]*types.Fingerprint, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT tenant_id, branch_name, commit_count, last_updated
		FROM branch_fingerprints
		WHERE tenant_id = $1
		ORDER BY commit_count DESC
	`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to list fingerprint summaries: %w", err)
	}
	defer rows.Close()

	var fps []*types.Fingerprint
	for rows.Next() {
		var fp types.Fingerprint
		var updated string
		if err := rows.Scan(&fp.TenantID, &fp.BranchName, &fp.CommitCount, &updated); err != nil {
			return nil, fmt.Errorf("postgres: failed to scan fingerprint summary: %w", err)
		}
		fp.LastUpdated = parseTimestamp(updated)
		fps = append(fps, &fp)
	}
	return fps, rows.Err()
}
