package types

import "time"

// Checkpoint captures where an agent is in a long-running task so a crashed
// or restarted session can resume. Checkpoints live in a short-TTL keyed
// store, not in the commit graph.
type Checkpoint struct {
	TaskID     string         `json:"task_id"`
	InstanceID string         `json:"instance_id,omitempty"`
	Progress   string         `json:"progress,omitempty"`
	NextStep   string         `json:"next_step,omitempty"`
	Context    map[string]any `json:"context_snapshot,omitempty"`
	SavedAt    time.Time      `json:"saved_at"`
}
