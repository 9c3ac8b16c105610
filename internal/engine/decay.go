// Package engine coordinates the content-addressable commit graph, branch
// fingerprints, routing advice and trail decay on top of the storage layer.
package engine

import (
	"time"

	"github.com/stevekrontz-dev/boswell/pkg/types"
)

// DecayConfig is the configuration surface for the trail lifecycle. The
// four-state model and "monotonic decay, resurrect doubles" rule are fixed;
// the thresholds and strength curve are not.
type DecayConfig struct {
	// BaseStrength is the strength of a freshly recorded trail.
	BaseStrength float64

	// TraversalBoost is added to strength on each traversal, capped at
	// MaxStrength.
	TraversalBoost float64

	// MaxStrength caps reinforcement.
	MaxStrength float64

	// FadingAfter, DormantAfter and ArchivedAfter are elapsed times since
	// the last traversal at which a sweep demotes the trail.
	FadingAfter   time.Duration
	DormantAfter  time.Duration
	ArchivedAfter time.Duration

	// FadingMultiplier, DormantMultiplier and ArchivedMultiplier scale
	// strength down when a sweep demotes into the named state.
	FadingMultiplier   float64
	DormantMultiplier  float64
	ArchivedMultiplier float64

	// SweepBatchSize caps how many trails one sweep pass examines.
	SweepBatchSize int
}

// DefaultDecayConfig returns the stock decay curve: a week of neglect fades
// a trail, a month makes it dormant, a quarter archives it. FADING is a
// warning state, so the stock curve keeps strength intact there and only
// starts shedding it at DORMANT.
func DefaultDecayConfig() DecayConfig {
	return DecayConfig{
		BaseStrength:       1.0,
		TraversalBoost:     1.0,
		MaxStrength:        100.0,
		FadingAfter:        7 * 24 * time.Hour,
		DormantAfter:       30 * 24 * time.Hour,
		ArchivedAfter:      90 * 24 * time.Hour,
		FadingMultiplier:   1.0,
		DormantMultiplier:  0.75,
		ArchivedMultiplier: 0.5,
		SweepBatchSize:     5000,
	}
}

// stateFor returns the lifecycle state a trail belongs in after elapsed time
// without traversal.
func (c DecayConfig) stateFor(elapsed time.Duration) string {
	switch {
	case elapsed >= c.ArchivedAfter:
		return types.TrailArchived
	case elapsed >= c.DormantAfter:
		return types.TrailDormant
	case elapsed >= c.FadingAfter:
		return types.TrailFading
	default:
		return types.TrailActive
	}
}

// multiplierFor returns the strength multiplier applied when demoting into
// state. Strength never increases during decay.
func (c DecayConfig) multiplierFor(state string) float64 {
	switch state {
	case types.TrailFading:
		return c.FadingMultiplier
	case types.TrailDormant:
		return c.DormantMultiplier
	case types.TrailArchived:
		return c.ArchivedMultiplier
	default:
		return 1.0
	}
}

// thresholdFor returns the elapsed-time threshold at which a trail crosses
// into state. ACTIVE has no threshold.
func (c DecayConfig) thresholdFor(state string) time.Duration {
	switch state {
	case types.TrailFading:
		return c.FadingAfter
	case types.TrailDormant:
		return c.DormantAfter
	case types.TrailArchived:
		return c.ArchivedAfter
	default:
		return 0
	}
}

// Forecast predicts when the trail will cross into its next decay state,
// given the same thresholds the sweep uses. Overdue trails report zero
// remaining. ARCHIVED trails have no next transition and return false.
func (c DecayConfig) Forecast(trail *types.Trail, now time.Time) (types.TrailForecast, bool) {
	if trail.State == types.TrailArchived {
		return types.TrailForecast{}, false
	}
	next := types.NextTrailState(trail.State)
	elapsed := now.Sub(trail.LastTraversedAt)
	remaining := c.thresholdFor(next) - elapsed
	if remaining < 0 {
		remaining = 0
	}
	return types.TrailForecast{
		TrailID:    trail.ID,
		SourceBlob: trail.SourceBlob,
		TargetBlob: trail.TargetBlob,
		State:      trail.State,
		NextState:  next,
		Remaining:  remaining,
	}, true
}
