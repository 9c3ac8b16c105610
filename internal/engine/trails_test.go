package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/stevekrontz-dev/boswell/internal/storage"
	"github.com/stevekrontz-dev/boswell/pkg/types"
)

func testDecayConfig() DecayConfig {
	cfg := DefaultDecayConfig()
	cfg.FadingAfter = time.Hour
	cfg.DormantAfter = 4 * time.Hour
	cfg.ArchivedAfter = 12 * time.Hour
	return cfg
}

func newTestTrails(t *testing.T) (*Trails, storage.Store) {
	t.Helper()
	store := newTestStore(t)
	return NewTrails(store, testDecayConfig()), store
}

func TestRecordCreatesActiveTrail(t *testing.T) {
	trails, _ := newTestTrails(t)
	ctx := context.Background()
	now := time.Now()

	trail, err := trails.Record(ctx, testTenant, "blob-a", "blob-b", now)
	require.NoError(t, err)
	require.Equal(t, types.TrailActive, trail.State)
	require.Equal(t, 1.0, trail.Strength)
	require.Equal(t, 1, trail.TraversalCount)
}

func TestRecordReinforcesExistingTrail(t *testing.T) {
	trails, _ := newTestTrails(t)
	ctx := context.Background()
	now := time.Now()

	_, err := trails.Record(ctx, testTenant, "blob-a", "blob-b", now)
	require.NoError(t, err)

	trail, err := trails.Record(ctx, testTenant, "blob-a", "blob-b", now.Add(time.Minute))
	require.NoError(t, err)
	require.Equal(t, 2.0, trail.Strength)
	require.Equal(t, 2, trail.TraversalCount)
	require.Equal(t, types.TrailActive, trail.State)
}

func TestRecordRejectsSelfLoop(t *testing.T) {
	trails, _ := newTestTrails(t)

	_, err := trails.Record(context.Background(), testTenant, "blob-a", "blob-a", time.Now())
	require.ErrorIs(t, err, storage.ErrInvalidInput)
}

func TestSweepDemotesNeglectedTrails(t *testing.T) {
	trails, _ := newTestTrails(t)
	ctx := context.Background()
	start := time.Now()

	trail, err := trails.Record(ctx, testTenant, "blob-a", "blob-b", start)
	require.NoError(t, err)

	// Past the FADING threshold but not DORMANT.
	report, err := trails.Sweep(ctx, testTenant, start.Add(2*time.Hour))
	require.NoError(t, err)
	require.Equal(t, 1, report.Examined)
	require.Equal(t, 1, report.Demoted)

	faded, err := trails.store.GetTrailByID(ctx, testTenant, trail.ID)
	require.NoError(t, err)
	require.Equal(t, types.TrailFading, faded.State)
	// FADING is a warning state: the stock curve leaves strength alone.
	require.InDelta(t, 1.0, faded.Strength, 1e-9)
}

func TestResurrectAfterFadeDoublesPreSweepStrength(t *testing.T) {
	trails, _ := newTestTrails(t)
	ctx := context.Background()
	start := time.Now()

	trail, err := trails.Record(ctx, testTenant, "blob-a", "blob-b", start)
	require.NoError(t, err)

	_, err = trails.Sweep(ctx, testTenant, start.Add(2*time.Hour))
	require.NoError(t, err)

	revived, err := trails.Resurrect(ctx, testTenant, trail.ID, start.Add(3*time.Hour))
	require.NoError(t, err)
	require.Equal(t, types.TrailActive, revived.State)
	require.InDelta(t, 2*trail.Strength, revived.Strength, 1e-9)
}

func TestSweepSkipsFreshTrails(t *testing.T) {
	trails, _ := newTestTrails(t)
	ctx := context.Background()
	start := time.Now()

	_, err := trails.Record(ctx, testTenant, "blob-a", "blob-b", start)
	require.NoError(t, err)

	report, err := trails.Sweep(ctx, testTenant, start.Add(time.Minute))
	require.NoError(t, err)
	require.Equal(t, 0, report.Demoted)
}

func TestSweepSkipsStatesAlreadyReached(t *testing.T) {
	trails, _ := newTestTrails(t)
	ctx := context.Background()
	start := time.Now()

	trail, err := trails.Record(ctx, testTenant, "blob-a", "blob-b", start)
	require.NoError(t, err)

	// Straight past DORMANT into ARCHIVED territory.
	_, err = trails.Sweep(ctx, testTenant, start.Add(13*time.Hour))
	require.NoError(t, err)

	archived, err := trails.store.GetTrailByID(ctx, testTenant, trail.ID)
	require.NoError(t, err)
	require.Equal(t, types.TrailArchived, archived.State)
	require.InDelta(t, 0.5, archived.Strength, 1e-9)

	// A second sweep at the same instant has nothing left to demote.
	report, err := trails.Sweep(ctx, testTenant, start.Add(13*time.Hour))
	require.NoError(t, err)
	require.Equal(t, 0, report.Demoted)
}

func TestResurrectDoublesAndActivates(t *testing.T) {
	trails, _ := newTestTrails(t)
	ctx := context.Background()
	start := time.Now()

	trail, err := trails.Record(ctx, testTenant, "blob-a", "blob-b", start)
	require.NoError(t, err)

	_, err = trails.Sweep(ctx, testTenant, start.Add(13*time.Hour))
	require.NoError(t, err)

	revived, err := trails.Resurrect(ctx, testTenant, trail.ID, start.Add(14*time.Hour))
	require.NoError(t, err)
	require.Equal(t, types.TrailActive, revived.State)
	require.InDelta(t, 1.0, revived.Strength, 1e-9) // 0.5 doubled
}

func TestResurrectByPair(t *testing.T) {
	trails, _ := newTestTrails(t)
	ctx := context.Background()
	now := time.Now()

	_, err := trails.Record(ctx, testTenant, "blob-a", "blob-b", now)
	require.NoError(t, err)

	revived, err := trails.ResurrectByPair(ctx, testTenant, "blob-a", "blob-b", now.Add(time.Hour))
	require.NoError(t, err)
	require.Equal(t, 2.0, revived.Strength)

	_, err = trails.ResurrectByPair(ctx, testTenant, "blob-x", "blob-y", now)
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func TestHotTrailsOrder(t *testing.T) {
	trails, _ := newTestTrails(t)
	ctx := context.Background()
	now := time.Now()

	_, err := trails.Record(ctx, testTenant, "blob-a", "blob-b", now)
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		_, err = trails.Record(ctx, testTenant, "blob-a", "blob-c", now)
		require.NoError(t, err)
	}

	hot, err := trails.Hot(ctx, testTenant, 10)
	require.NoError(t, err)
	require.Len(t, hot, 2)
	require.Equal(t, "blob-c", hot[0].TargetBlob)
}

func TestTrailsFromAndTo(t *testing.T) {
	trails, _ := newTestTrails(t)
	ctx := context.Background()
	now := time.Now()

	_, err := trails.Record(ctx, testTenant, "blob-a", "blob-b", now)
	require.NoError(t, err)
	_, err = trails.Record(ctx, testTenant, "blob-c", "blob-a", now)
	require.NoError(t, err)

	out, err := trails.From(ctx, testTenant, "blob-a", 10)
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Equal(t, "blob-b", out[0].TargetBlob)

	in, err := trails.To(ctx, testTenant, "blob-a", 10)
	require.NoError(t, err)
	require.Len(t, in, 1)
	require.Equal(t, "blob-c", in[0].SourceBlob)
}

func TestBuriedWeakestFirst(t *testing.T) {
	trails, _ := newTestTrails(t)
	ctx := context.Background()
	start := time.Now()

	_, err := trails.Record(ctx, testTenant, "blob-a", "blob-b", start)
	require.NoError(t, err)
	for i := 0; i < 4; i++ {
		_, err = trails.Record(ctx, testTenant, "blob-a", "blob-c", start)
		require.NoError(t, err)
	}

	// Both trails go dormant.
	_, err = trails.Sweep(ctx, testTenant, start.Add(5*time.Hour))
	require.NoError(t, err)

	buried, err := trails.Buried(ctx, testTenant, false, 10)
	require.NoError(t, err)
	require.Len(t, buried, 2)
	require.Equal(t, "blob-b", buried[0].TargetBlob) // weakest first
}

func TestTrailHealthCounts(t *testing.T) {
	trails, _ := newTestTrails(t)
	ctx := context.Background()
	start := time.Now()

	_, err := trails.Record(ctx, testTenant, "blob-a", "blob-b", start)
	require.NoError(t, err)
	_, err = trails.Record(ctx, testTenant, "blob-a", "blob-c", start.Add(-2*time.Hour))
	require.NoError(t, err)

	_, err = trails.Sweep(ctx, testTenant, start)
	require.NoError(t, err)

	health, err := trails.Health(ctx, testTenant)
	require.NoError(t, err)
	require.Equal(t, 2, health.Total)
	require.Equal(t, 1, health.ByState[types.TrailActive])
	require.Equal(t, 1, health.ByState[types.TrailFading])
}

func TestForecastRemaining(t *testing.T) {
	trails, _ := newTestTrails(t)
	ctx := context.Background()
	start := time.Now()

	_, err := trails.Record(ctx, testTenant, "blob-a", "blob-b", start)
	require.NoError(t, err)

	forecasts, err := trails.Forecast(ctx, testTenant, start.Add(30*time.Minute))
	require.NoError(t, err)
	require.Len(t, forecasts, 1)
	require.Equal(t, types.TrailActive, forecasts[0].State)
	require.Equal(t, types.TrailFading, forecasts[0].NextState)
	require.InDelta(t, (30 * time.Minute).Seconds(), forecasts[0].Remaining.Seconds(), 1.0)
}

func TestForecastOverdueIsZero(t *testing.T) {
	cfg := testDecayConfig()
	trail := &types.Trail{
		ID: "t1", State: types.TrailActive,
		LastTraversedAt: time.Now().Add(-3 * time.Hour),
	}
	f, ok := cfg.Forecast(trail, time.Now())
	require.True(t, ok)
	require.Equal(t, time.Duration(0), f.Remaining)

	_, ok = cfg.Forecast(&types.Trail{State: types.TrailArchived}, time.Now())
	require.False(t, ok)
}
