package engine

import (
	"context"
	"log"
	"time"

	"github.com/stevekrontz-dev/boswell/pkg/types"
)

// NightlyReport summarizes one maintenance run for one tenant. Each step
// reports its own error; one step failing never stops the next.
type NightlyReport struct {
	TenantID     string                  `json:"tenant_id"`
	StartedAt    time.Time               `json:"started_at"`
	Duration     time.Duration           `json:"duration"`
	Sweep        *SweepReport            `json:"sweep,omitempty"`
	SweepError   string                  `json:"sweep_error,omitempty"`
	Bootstrap    []types.BootstrapResult `json:"bootstrap,omitempty"`
	RefreshError string                  `json:"refresh_error,omitempty"`
}

// Nightly runs the scheduled maintenance: the trail decay sweep followed by
// a fingerprint refresh.
type Nightly struct {
	trails       *Trails
	fingerprints *Fingerprints
}

// NewNightly builds the maintenance runner.
func NewNightly(trails *Trails, fingerprints *Fingerprints) *Nightly {
	return &Nightly{trails: trails, fingerprints: fingerprints}
}

// Run executes both maintenance steps for one tenant, isolating failures
// per step.
func (n *Nightly) Run(ctx context.Context, tenantID string) *NightlyReport {
	started := time.Now()
	report := &NightlyReport{TenantID: tenantID, StartedAt: started.UTC()}

	sweep, err := n.trails.Sweep(ctx, tenantID, started)
	if err != nil {
		report.SweepError = err.Error()
		log.Printf("nightly: decay sweep failed for tenant %s: %v", tenantID, err)
	} else {
		report.Sweep = sweep
		log.Printf("nightly: swept %d trails for tenant %s (%d demoted, %d races lost, %d failed)",
			sweep.Examined, tenantID, sweep.Demoted, sweep.RacesLost, sweep.Failed)
	}

	results, err := n.fingerprints.Bootstrap(ctx, tenantID, time.Now())
	if err != nil {
		report.RefreshError = err.Error()
		log.Printf("nightly: fingerprint refresh failed for tenant %s: %v", tenantID, err)
	} else {
		report.Bootstrap = results
		log.Printf("nightly: refreshed %d branch fingerprints for tenant %s", len(results), tenantID)
	}

	report.Duration = time.Since(started)
	return report
}
