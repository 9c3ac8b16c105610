package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/stevekrontz-dev/boswell/internal/storage"
	"github.com/stevekrontz-dev/boswell/pkg/types"
)

// InsertTrail creates a new trail row. The unique (source, target) constraint
// surfaces concurrent double-creation as ErrConflict.
func (s *Store) InsertTrail(ctx context.Context, trail *types.Trail) error {
	if trail == nil || trail.ID == "" {
		return fmt.Errorf("%w: trail id is required", storage.ErrInvalidInput)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO trails (trail_id, tenant_id, source_blob, target_blob, strength, state, traversal_count, last_traversed_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, trail.ID, trail.TenantID, trail.SourceBlob, trail.TargetBlob, trail.Strength,
		trail.State, trail.TraversalCount, types.Timestamp(trail.LastTraversedAt),
		types.Timestamp(trail.CreatedAt))
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("trail %s->%s already exists: %w", trail.SourceBlob, trail.TargetBlob, storage.ErrConflict)
		}
		return fmt.Errorf("postgres: failed to insert trail: %w", err)
	}
	return nil
}

// GetTrail fetches a trail by its (source, target) pair.
func (s *Store) GetTrail(ctx context.Context, tenantID, sourceBlob, targetBlob string) (*types.Trail, error) {
	row := s.db.QueryRowContext(ctx, trailSelect+`
		WHERE tenant_id = $1 AND source_blob = $2 AND target_blob = $3
	`, tenantID, sourceBlob, targetBlob)
	return scanTrail(row)
}

// GetTrailByID fetches a trail by ID.
func (s *Store) GetTrailByID(ctx context.Context, tenantID, trailID string) (*types.Trail, error) {
	row := s.db.QueryRowContext(ctx, trailSelect+`
		WHERE tenant_id = $1 AND trail_id = $2
	`, tenantID, trailID)
	return scanTrail(row)
}

// ReinforceTrail applies one traversal as a single atomic read-modify-write.
// The RETURNING clause hands back the updated row without a second query.
func (s *Store) ReinforceTrail(ctx context.Context, tenantID, trailID string, boost, maxStrength float64, now time.Time) (*types.Trail, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE trails
		SET strength = LEAST(strength + $1, $2),
		    state = $3,
		    traversal_count = traversal_count + 1,
		    last_traversed_at = $4
		WHERE tenant_id = $5 AND trail_id = $6
		RETURNING trail_id, tenant_id, source_blob, target_blob, strength, state, traversal_count, last_traversed_at, created_at
	`, boost, maxStrength, types.TrailActive, types.Timestamp(now), tenantID, trailID)

	tr, err := scanTrail(row)
	if err != nil {
		return nil, fmt.Errorf("reinforce trail %s: %w", trailID, err)
	}
	return tr, nil
}

// ApplyDecay writes one sweep result, guarded by the last-traversed timestamp
// the sweep observed.
func (s *Store) ApplyDecay(ctx context.Context, tenantID, trailID string, newStrength float64, newState string, observedTraversal time.Time) error {
	if !types.IsValidTrailState(newState) {
		return fmt.Errorf("%w: unknown trail state %q", storage.ErrInvalidInput, newState)
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE trails
		SET strength = $1, state = $2
		WHERE tenant_id = $3 AND trail_id = $4 AND last_traversed_at = $5
	`, newStrength, newState, tenantID, trailID, types.Timestamp(observedTraversal))
	if err != nil {
		return fmt.Errorf("postgres: failed to apply decay: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("postgres: failed to read rows affected: %w", err)
	}
	if n == 1 {
		return nil
	}
	if _, err := s.GetTrailByID(ctx, tenantID, trailID); err != nil {
		return err
	}
	return fmt.Errorf("trail %s was traversed during the sweep: %w", trailID, storage.ErrConflict)
}

// ResurrectTrail doubles strength and forces the trail back to ACTIVE, from
// any state including ARCHIVED.
func (s *Store) ResurrectTrail(ctx context.Context, tenantID, trailID string, now time.Time) (*types.Trail, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE trails
		SET strength = strength * 2,
		    state = $1,
		    last_traversed_at = $2
		WHERE tenant_id = $3 AND trail_id = $4
		RETURNING trail_id, tenant_id, source_blob, target_blob, strength, state, traversal_count, last_traversed_at, created_at
	`, types.TrailActive, types.Timestamp(now), tenantID, trailID)

	tr, err := scanTrail(row)
	if err != nil {
		return nil, fmt.Errorf("resurrect trail %s: %w", trailID, err)
	}
	return tr, nil
}

// ListTrails returns trails matching the filter.
func (s *Store) ListTrails(ctx context.Context, tenantID string, filter storage.TrailFilter) ([]*types.Trail, error) {
	query := trailSelect + ` WHERE tenant_id = $1`
	args := []any{tenantID}

	if filter.SourceBlob != "" {
		args = append(args, filter.SourceBlob)
		query += fmt.Sprintf(` AND source_blob = $%d`, len(args))
	}
	if filter.TargetBlob != "" {
		args = append(args, filter.TargetBlob)
		query += fmt.Sprintf(` AND target_blob = $%d`, len(args))
	}
	if len(filter.States) > 0 {
		query += ` AND state IN (`
		for i, st := range filter.States {
			if i > 0 {
				query += `,`
			}
			args = append(args, st)
			query += fmt.Sprintf(`$%d`, len(args))
		}
		query += `)`
	}

	if filter.WeakestFirst {
		query += ` ORDER BY strength ASC`
	} else {
		query += ` ORDER BY strength DESC`
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = storage.DefaultListLimit
	}
	args = append(args, limit)
	query += fmt.Sprintf(` LIMIT $%d`, len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to list trails: %w", err)
	}
	defer rows.Close()

	var trails []*types.Trail
	for rows.Next() {
		tr, err := scanTrail(rows)
		if err != nil {
			return nil, err
		}
		trails = append(trails, tr)
	}
	return trails, rows.Err()
}

// TrailHealth aggregates counts and total strength per lifecycle state.
func (s *Store) TrailHealth(ctx context.Context, tenantID string) (*types.TrailHealth, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT state, COUNT(*), COALESCE(SUM(strength), 0)
		FROM trails WHERE tenant_id = $1
		GROUP BY state
	`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to aggregate trail health: %w", err)
	}
	defer rows.Close()

	health := &types.TrailHealth{ByState: make(map[string]int)}
	for _, st := range types.TrailStates {
		health.ByState[st] = 0
	}
	for rows.Next() {
		var state string
		var count int
		var strength float64
		if err := rows.Scan(&state, &count, &strength); err != nil {
			return nil, fmt.Errorf("postgres: failed to scan trail health row: %w", err)
		}
		health.ByState[state] = count
		health.Total += count
		health.TotalStrength += strength
	}
	return health, rows.Err()
}

const trailSelect = `
	SELECT trail_id, tenant_id, source_blob, target_blob, strength, state, traversal_count, last_traversed_at, created_at
	FROM trails`

func scanTrail(row rowScanner) (*types.Trail, error) {
	var tr types.Trail
	var lastTraversed, createdAt string
	err := row.Scan(&tr.ID, &tr.TenantID, &tr.SourceBlob, &tr.TargetBlob, &tr.Strength,
		&tr.State, &tr.TraversalCount, &lastTraversed, &createdAt)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to scan trail: %w", err)
	}
	tr.LastTraversedAt = parseTimestamp(lastTraversed)
	tr.CreatedAt = parseTimestamp(createdAt)
	return &tr, nil
}
