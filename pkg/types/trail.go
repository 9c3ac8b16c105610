package types

import (
	"fmt"
	"time"
)

// Trail lifecycle states, in decay order. A trail moves forward through this
// order as time passes without traversal; only traversal or resurrection
// moves it back to TrailActive.
const (
	TrailActive   = "ACTIVE"
	TrailFading   = "FADING"
	TrailDormant  = "DORMANT"
	TrailArchived = "ARCHIVED"
)

// TrailStates lists all trail states in decay order.
var TrailStates = []string{TrailActive, TrailFading, TrailDormant, TrailArchived}

// trailStateRank maps a state to its position in the decay order.
var trailStateRank = map[string]int{
	TrailActive:   0,
	TrailFading:   1,
	TrailDormant:  2,
	TrailArchived: 3,
}

// IsValidTrailState reports whether state names one of the four trail states.
func IsValidTrailState(state string) bool {
	_, ok := trailStateRank[state]
	return ok
}

// TrailStateRank returns the position of state in the decay order
// (ACTIVE=0 … ARCHIVED=3), or -1 for an unknown state.
func TrailStateRank(state string) int {
	rank, ok := trailStateRank[state]
	if !ok {
		return -1
	}
	return rank
}

// NextTrailState returns the state one step further along the decay order.
// ARCHIVED is terminal for decay; it returns itself.
func NextTrailState(state string) string {
	switch state {
	case TrailActive:
		return TrailFading
	case TrailFading:
		return TrailDormant
	case TrailDormant:
		return TrailArchived
	default:
		return TrailArchived
	}
}

// IsValidDecayTransition reports whether the sweep may move a trail from
// current to next. Decay only moves forward in the state order; the reverse
// direction is reserved for traversal and resurrection.
func IsValidDecayTransition(current, next string) bool {
	c, okC := trailStateRank[current]
	n, okN := trailStateRank[next]
	if !okC || !okN {
		return false
	}
	return n >= c
}

// Trail is a directed edge recording that one memory was recalled after
// another. Strength grows with traversal and decays with neglect.
type Trail struct {
	ID              string    `json:"trail_id"`
	TenantID        string    `json:"tenant_id"`
	SourceBlob      string    `json:"source_blob"`
	TargetBlob      string    `json:"target_blob"`
	Strength        float64   `json:"strength"`
	State           string    `json:"state"`
	TraversalCount  int       `json:"traversal_count"`
	LastTraversedAt time.Time `json:"last_traversed_at"`
	CreatedAt       time.Time `json:"created_at"`
}

// NewTrail creates a trail in the ACTIVE state with the given base strength.
func NewTrail(id, tenantID, sourceBlob, targetBlob string, baseStrength float64, now time.Time) (*Trail, error) {
	if sourceBlob == "" || targetBlob == "" {
		return nil, fmt.Errorf("source and target blob hashes are required")
	}
	if sourceBlob == targetBlob {
		return nil, fmt.Errorf("a trail cannot point from a blob to itself")
	}
	return &Trail{
		ID:              id,
		TenantID:        tenantID,
		SourceBlob:      sourceBlob,
		TargetBlob:      targetBlob,
		Strength:        baseStrength,
		State:           TrailActive,
		TraversalCount:  1,
		LastTraversedAt: now.UTC(),
		CreatedAt:       now.UTC(),
	}, nil
}

// TrailHealth aggregates trail counts per state plus overall activity.
type TrailHealth struct {
	Total         int            `json:"total"`
	ByState       map[string]int `json:"by_state"`
	TotalStrength float64        `json:"total_strength"`
}

// TrailForecast predicts when a trail will cross into its next decay state.
type TrailForecast struct {
	TrailID    string        `json:"trail_id"`
	SourceBlob string        `json:"source_blob"`
	TargetBlob string        `json:"target_blob"`
	State      string        `json:"state"`
	NextState  string        `json:"next_state"`
	Remaining  time.Duration `json:"remaining"`
}
