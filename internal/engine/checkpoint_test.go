package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/stevekrontz-dev/boswell/internal/cache"
	"github.com/stevekrontz-dev/boswell/internal/storage"
	"github.com/stevekrontz-dev/boswell/pkg/types"
)

func TestCheckpointSaveAndResume(t *testing.T) {
	checkpoints := NewCheckpoints(cache.NewMemoryStore(), time.Minute)
	ctx := context.Background()

	err := checkpoints.Save(ctx, testTenant, types.Checkpoint{
		TaskID:   "migrate-db",
		Progress: "step 3 of 5",
		NextStep: "verify indexes",
		Context:  map[string]any{"last_table": "trails"},
	})
	require.NoError(t, err)

	cp, err := checkpoints.Resume(ctx, testTenant, "migrate-db")
	require.NoError(t, err)
	require.Equal(t, "step 3 of 5", cp.Progress)
	require.Equal(t, "verify indexes", cp.NextStep)
	require.Equal(t, "trails", cp.Context["last_table"])
	require.False(t, cp.SavedAt.IsZero())
}

func TestCheckpointMissingTask(t *testing.T) {
	checkpoints := NewCheckpoints(cache.NewMemoryStore(), time.Minute)

	_, err := checkpoints.Resume(context.Background(), testTenant, "never-saved")
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func TestCheckpointRequiresTaskID(t *testing.T) {
	checkpoints := NewCheckpoints(cache.NewMemoryStore(), time.Minute)

	err := checkpoints.Save(context.Background(), testTenant, types.Checkpoint{})
	require.ErrorIs(t, err, storage.ErrInvalidInput)
}

func TestCheckpointExpires(t *testing.T) {
	checkpoints := NewCheckpoints(cache.NewMemoryStore(), time.Millisecond)
	ctx := context.Background()

	require.NoError(t, checkpoints.Save(ctx, testTenant, types.Checkpoint{TaskID: "short"}))
	time.Sleep(5 * time.Millisecond)

	_, err := checkpoints.Resume(ctx, testTenant, "short")
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func TestCheckpointClear(t *testing.T) {
	checkpoints := NewCheckpoints(cache.NewMemoryStore(), time.Minute)
	ctx := context.Background()

	require.NoError(t, checkpoints.Save(ctx, testTenant, types.Checkpoint{TaskID: "task"}))
	require.NoError(t, checkpoints.Clear(ctx, testTenant, "task"))

	_, err := checkpoints.Resume(ctx, testTenant, "task")
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func TestCheckpointTenantScoping(t *testing.T) {
	checkpoints := NewCheckpoints(cache.NewMemoryStore(), time.Minute)
	ctx := context.Background()

	require.NoError(t, checkpoints.Save(ctx, "tenant-a", types.Checkpoint{TaskID: "task", Progress: "a"}))

	_, err := checkpoints.Resume(ctx, "tenant-b", "task")
	require.ErrorIs(t, err, storage.ErrNotFound)
}
