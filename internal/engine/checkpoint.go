package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/stevekrontz-dev/boswell/internal/cache"
	"github.com/stevekrontz-dev/boswell/internal/storage"
	"github.com/stevekrontz-dev/boswell/pkg/types"
)

// DefaultCheckpointTTL is how long a saved checkpoint survives without being
// resumed.
const DefaultCheckpointTTL = 24 * time.Hour

// Checkpoints stores session progress snapshots in a short-TTL keyed store
// so a restarted agent instance can pick a task back up. Checkpoints are
// ephemeral by design and never enter the commit graph.
type Checkpoints struct {
	store cache.TTLStore
	ttl   time.Duration
}

// NewCheckpoints builds the checkpoint service. A zero ttl falls back to the
// default.
func NewCheckpoints(store cache.TTLStore, ttl time.Duration) *Checkpoints {
	if ttl <= 0 {
		ttl = DefaultCheckpointTTL
	}
	return &Checkpoints{store: store, ttl: ttl}
}

func checkpointKey(tenantID, taskID string) string {
	return fmt.Sprintf("checkpoint:%s:%s", tenantID, taskID)
}

// Save writes a checkpoint for the task, replacing any previous one and
// resetting its TTL.
func (c *Checkpoints) Save(ctx context.Context, tenantID string, cp types.Checkpoint) error {
	if cp.TaskID == "" {
		return fmt.Errorf("%w: task_id is required", storage.ErrInvalidInput)
	}
	cp.SavedAt = time.Now().UTC()
	return c.store.Put(ctx, checkpointKey(tenantID, cp.TaskID), cp, c.ttl)
}

// Resume returns the most recent checkpoint for the task. A missing or
// expired checkpoint is ErrNotFound.
func (c *Checkpoints) Resume(ctx context.Context, tenantID, taskID string) (*types.Checkpoint, error) {
	var cp types.Checkpoint
	err := c.store.Get(ctx, checkpointKey(tenantID, taskID), &cp)
	if errors.Is(err, cache.ErrExpired) {
		return nil, fmt.Errorf("no checkpoint for task %s: %w", taskID, storage.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &cp, nil
}

// Clear removes the checkpoint for a finished task.
func (c *Checkpoints) Clear(ctx context.Context, tenantID, taskID string) error {
	return c.store.Delete(ctx, checkpointKey(tenantID, taskID))
}
