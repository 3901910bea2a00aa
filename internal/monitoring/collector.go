// Package monitoring summarizes recent workflow health and raises webhook
// alerts when it degrades.
package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/appraise-cli/internal/model"
	"github.com/sells-group/appraise-cli/internal/resilience"
)

// maxWorkflows bounds how many records one snapshot reads.
const maxWorkflows = 10000

// MetricsSnapshot holds a point-in-time view of pipeline health.
type MetricsSnapshot struct {
	// Workflow metrics (within lookback window).
	WorkflowsTotal    int            `json:"workflows_total"`
	WorkflowsSuccess  int            `json:"workflows_success"`
	WorkflowsPartial  int            `json:"workflows_partial"`
	WorkflowsFailed   int            `json:"workflows_failed"`
	WorkflowsDegraded int            `json:"workflows_degraded"`
	FailureRate       float64        `json:"failure_rate"`
	StageFailures     map[string]int `json:"stage_failures"`

	AvgValuationConfidence  float64 `json:"avg_valuation_confidence"`
	AvgProvenanceConfidence float64 `json:"avg_provenance_confidence"`

	// Breakers currently rejecting calls.
	OpenBreakers []string `json:"open_breakers"`

	// Items waiting in the dead letter queue.
	DLQDepth int `json:"dlq_depth"`

	// Metadata.
	LookbackHours int       `json:"lookback_hours"`
	CollectedAt   time.Time `json:"collected_at"`
}

// WorkflowLister is the store method the collector reads.
type WorkflowLister interface {
	ListWorkflows(ctx context.Context, filter model.WorkflowFilter) ([]model.WorkflowRecord, error)
}

// DLQCounter is implemented by stores that keep a dead letter queue.
type DLQCounter interface {
	CountDLQ(ctx context.Context) (int, error)
}

// BreakerSource reports circuit breaker state.
type BreakerSource interface {
	Snapshots() []resilience.BreakerSnapshot
}

// Collector gathers metrics from the workflow store and breaker registry.
type Collector struct {
	store    WorkflowLister
	breakers BreakerSource
	now      func() time.Time
}

// NewCollector creates a new metrics collector. breakers may be nil.
func NewCollector(st WorkflowLister, breakers BreakerSource) *Collector {
	return &Collector{store: st, breakers: breakers, now: time.Now}
}

// Collect gathers a snapshot of workflow metrics over the given lookback window.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) (*MetricsSnapshot, error) {
	now := c.now().UTC()
	snap := &MetricsSnapshot{
		StageFailures: map[string]int{},
		OpenBreakers:  []string{},
		LookbackHours: lookbackHours,
		CollectedAt:   now,
	}

	recs, err := c.store.ListWorkflows(ctx, model.WorkflowFilter{
		StartedAfter: now.Add(-time.Duration(lookbackHours) * time.Hour),
		Limit:        maxWorkflows,
	})
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list workflows")
	}

	snap.WorkflowsTotal = len(recs)
	var valuationSum, provenanceSum float64
	var valued, scored int

	for _, r := range recs {
		switch r.Status {
		case model.WorkflowSuccess:
			snap.WorkflowsSuccess++
		case model.WorkflowPartial:
			snap.WorkflowsPartial++
		case model.WorkflowFailed:
			snap.WorkflowsFailed++
		}

		degraded := false
		for _, e := range r.Errors {
			snap.StageFailures[e.Stage]++
			degraded = degraded || e.Degraded
		}
		if degraded {
			snap.WorkflowsDegraded++
		}

		if r.Status != model.WorkflowFailed {
			valuationSum += float64(r.Valuation.Confidence)
			valued++
		}
		if r.Status == model.WorkflowSuccess {
			provenanceSum += float64(r.Provenance.Confidence)
			scored++
		}
	}

	if snap.WorkflowsTotal > 0 {
		snap.FailureRate = float64(snap.WorkflowsFailed) / float64(snap.WorkflowsTotal)
	}
	if valued > 0 {
		snap.AvgValuationConfidence = valuationSum / float64(valued)
	}
	if scored > 0 {
		snap.AvgProvenanceConfidence = provenanceSum / float64(scored)
	}

	if dc, ok := c.store.(DLQCounter); ok {
		depth, err := dc.CountDLQ(ctx)
		if err != nil {
			return nil, eris.Wrap(err, "monitoring: count dlq")
		}
		snap.DLQDepth = depth
	}

	if c.breakers != nil {
		for _, b := range c.breakers.Snapshots() {
			if b.State == resilience.CircuitOpen.String() {
				snap.OpenBreakers = append(snap.OpenBreakers, b.Name)
			}
		}
	}

	return snap, nil
}
