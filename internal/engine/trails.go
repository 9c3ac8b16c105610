package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/stevekrontz-dev/boswell/internal/storage"
	"github.com/stevekrontz-dev/boswell/pkg/types"
)

// Trails manages the decaying edges between recalled memories: recording
// traversals, running the scheduled sweep, and the resurrection/query
// surface.
type Trails struct {
	store storage.TrailStore
	cfg   DecayConfig
}

// NewTrails builds the trail engine over a trail store.
func NewTrails(store storage.TrailStore, cfg DecayConfig) *Trails {
	return &Trails{store: store, cfg: cfg}
}

// Record registers a traversal from sourceBlob to targetBlob. A new pair
// starts an ACTIVE trail at base strength; an existing trail is reinforced
// by the traversal boost and reset to ACTIVE.
func (t *Trails) Record(ctx context.Context, tenantID, sourceBlob, targetBlob string, now time.Time) (*types.Trail, error) {
	existing, err := t.store.GetTrail(ctx, tenantID, sourceBlob, targetBlob)
	switch {
	case err == nil:
		return t.store.ReinforceTrail(ctx, tenantID, existing.ID, t.cfg.TraversalBoost, t.cfg.MaxStrength, now)
	case errors.Is(err, storage.ErrNotFound):
		// fall through to insert
	default:
		return nil, err
	}

	trail, err := types.NewTrail(uuid.NewString(), tenantID, sourceBlob, targetBlob, t.cfg.BaseStrength, now)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", storage.ErrInvalidInput, err)
	}
	err = t.store.InsertTrail(ctx, trail)
	if errors.Is(err, storage.ErrConflict) {
		// A concurrent traversal created the pair first; reinforce it.
		existing, err = t.store.GetTrail(ctx, tenantID, sourceBlob, targetBlob)
		if err != nil {
			return nil, err
		}
		return t.store.ReinforceTrail(ctx, tenantID, existing.ID, t.cfg.TraversalBoost, t.cfg.MaxStrength, now)
	}
	if err != nil {
		return nil, err
	}
	return trail, nil
}

// SweepReport summarizes one decay sweep pass.
type SweepReport struct {
	Examined  int `json:"examined"`
	Demoted   int `json:"demoted"`
	RacesLost int `json:"races_lost"`
	Failed    int `json:"failed"`
}

// Sweep ages every non-archived trail for the tenant: trails past their
// elapsed-time thresholds are demoted along the decay order with their
// strength scaled down. A traversal racing the sweep wins — the guarded
// write is skipped — and one trail's failure never stops the rest.
func (t *Trails) Sweep(ctx context.Context, tenantID string, now time.Time) (*SweepReport, error) {
	trails, err := t.store.ListTrails(ctx, tenantID, storage.TrailFilter{
		States: []string{types.TrailActive, types.TrailFading, types.TrailDormant},
		Limit:  t.cfg.SweepBatchSize,
	})
	if err != nil {
		return nil, fmt.Errorf("trail sweep listing failed: %w", err)
	}

	report := &SweepReport{Examined: len(trails)}
	for _, trail := range trails {
		target := t.cfg.stateFor(now.Sub(trail.LastTraversedAt))
		if types.TrailStateRank(target) <= types.TrailStateRank(trail.State) {
			continue
		}
		newStrength := trail.Strength * t.cfg.multiplierFor(target)
		err := t.store.ApplyDecay(ctx, tenantID, trail.ID, newStrength, target, trail.LastTraversedAt)
		switch {
		case err == nil:
			report.Demoted++
		case errors.Is(err, storage.ErrConflict):
			report.RacesLost++
		default:
			report.Failed++
			log.Printf("engine: decay sweep failed for trail %s: %v", trail.ID, err)
		}
	}
	return report, nil
}

// Resurrect revives a trail by ID, doubling its strength and forcing it back
// to ACTIVE from any state.
func (t *Trails) Resurrect(ctx context.Context, tenantID, trailID string, now time.Time) (*types.Trail, error) {
	return t.store.ResurrectTrail(ctx, tenantID, trailID, now)
}

// ResurrectByPair revives the trail identified by its (source, target) pair.
func (t *Trails) ResurrectByPair(ctx context.Context, tenantID, sourceBlob, targetBlob string, now time.Time) (*types.Trail, error) {
	trail, err := t.store.GetTrail(ctx, tenantID, sourceBlob, targetBlob)
	if err != nil {
		return nil, err
	}
	return t.store.ResurrectTrail(ctx, tenantID, trail.ID, now)
}

// Hot returns the strongest trails, strength descending.
func (t *Trails) Hot(ctx context.Context, tenantID string, limit int) ([]*types.Trail, error) {
	return t.store.ListTrails(ctx, tenantID, storage.TrailFilter{Limit: limit})
}

// From returns outbound trails for a blob, strength descending.
func (t *Trails) From(ctx context.Context, tenantID, blobHash string, limit int) ([]*types.Trail, error) {
	return t.store.ListTrails(ctx, tenantID, storage.TrailFilter{SourceBlob: blobHash, Limit: limit})
}

// To returns inbound trails for a blob, strength descending.
func (t *Trails) To(ctx context.Context, tenantID, blobHash string, limit int) ([]*types.Trail, error) {
	return t.store.ListTrails(ctx, tenantID, storage.TrailFilter{TargetBlob: blobHash, Limit: limit})
}

// Buried returns the resurrection work-list: DORMANT trails (plus ARCHIVED
// when includeArchived is set), weakest first.
func (t *Trails) Buried(ctx context.Context, tenantID string, includeArchived bool, limit int) ([]*types.Trail, error) {
	states := []string{types.TrailDormant}
	if includeArchived {
		states = append(states, types.TrailArchived)
	}
	return t.store.ListTrails(ctx, tenantID, storage.TrailFilter{
		States:       states,
		Limit:        limit,
		WeakestFirst: true,
	})
}

// Health reports aggregate trail counts and strength per state.
func (t *Trails) Health(ctx context.Context, tenantID string) (*types.TrailHealth, error) {
	return t.store.TrailHealth(ctx, tenantID)
}

// Forecast predicts, for every non-archived trail, how long until the next
// decay transition, using the same thresholds Sweep applies.
func (t *Trails) Forecast(ctx context.Context, tenantID string, now time.Time) ([]types.TrailForecast, error) {
	trails, err := t.store.ListTrails(ctx, tenantID, storage.TrailFilter{
		States: []string{types.TrailActive, types.TrailFading, types.TrailDormant},
		Limit:  t.cfg.SweepBatchSize,
	})
	if err != nil {
		return nil, err
	}
	forecasts := make([]types.TrailForecast, 0, len(trails))
	for _, trail := range trails {
		if f, ok := t.cfg.Forecast(trail, now); ok {
			forecasts = append(forecasts, f)
		}
	}
	return forecasts, nil
}
