package monitoring

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/appraise-cli/internal/model"
	"github.com/sells-group/appraise-cli/internal/resilience"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// fakeLister filters workflows the way the stores do.
type fakeLister struct {
	recs    []model.WorkflowRecord
	err     error
	filters []model.WorkflowFilter
}

func (f *fakeLister) ListWorkflows(_ context.Context, filter model.WorkflowFilter) ([]model.WorkflowRecord, error) {
	f.filters = append(f.filters, filter)
	if f.err != nil {
		return nil, f.err
	}
	var out []model.WorkflowRecord
	for _, r := range f.recs {
		if !filter.StartedAfter.IsZero() && !r.StartedAt.After(filter.StartedAfter) {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

// fakeDLQLister also reports a dead letter count.
type fakeDLQLister struct {
	fakeLister
	depth int
	err   error
}

func (f *fakeDLQLister) CountDLQ(context.Context) (int, error) {
	return f.depth, f.err
}

type fakeBreakers []resilience.BreakerSnapshot

func (f fakeBreakers) Snapshots() []resilience.BreakerSnapshot { return f }

func newTestCollector(st WorkflowLister, b BreakerSource) *Collector {
	c := NewCollector(st, b)
	c.now = func() time.Time { return fixedNow }
	return c
}

func workflow(status model.WorkflowStatus, age time.Duration, valConf, provConf int, errs ...model.StepError) model.WorkflowRecord {
	return model.WorkflowRecord{
		Status:     status,
		StartedAt:  fixedNow.Add(-age),
		Valuation:  model.ValuationResult{Confidence: valConf},
		Provenance: model.ProvenanceAnalysis{Confidence: provConf},
		Errors:     errs,
	}
}

func TestCollector_EmptyStore(t *testing.T) {
	c := newTestCollector(&fakeLister{}, nil)

	snap, err := c.Collect(context.Background(), 24)
	require.NoError(t, err)
	assert.Equal(t, 0, snap.WorkflowsTotal)
	assert.InDelta(t, 0.0, snap.FailureRate, 0.0001)
	assert.Empty(t, snap.OpenBreakers)
	assert.NotNil(t, snap.OpenBreakers)
	assert.Equal(t, 24, snap.LookbackHours)
	assert.Equal(t, fixedNow, snap.CollectedAt)
}

func TestCollector_WorkflowMetrics(t *testing.T) {
	st := &fakeLister{recs: []model.WorkflowRecord{
		workflow(model.WorkflowSuccess, time.Hour, 80, 90),
		workflow(model.WorkflowSuccess, 2*time.Hour, 60, 70),
		workflow(model.WorkflowPartial, 3*time.Hour, 70, 0,
			model.StepError{Stage: model.StageProvenance, Message: "not found"}),
		workflow(model.WorkflowFailed, 4*time.Hour, 0, 0,
			model.StepError{Stage: model.StageImageAnalysis, Message: "unavailable", Degraded: true}),
		// Outside the window.
		workflow(model.WorkflowFailed, 48*time.Hour, 0, 0,
			model.StepError{Stage: model.StageImageAnalysis, Message: "old"}),
	}}
	c := newTestCollector(st, nil)

	snap, err := c.Collect(context.Background(), 24)
	require.NoError(t, err)

	require.Len(t, st.filters, 1)
	assert.Equal(t, fixedNow.Add(-24*time.Hour), st.filters[0].StartedAfter)
	assert.Equal(t, maxWorkflows, st.filters[0].Limit)

	assert.Equal(t, 4, snap.WorkflowsTotal)
	assert.Equal(t, 2, snap.WorkflowsSuccess)
	assert.Equal(t, 1, snap.WorkflowsPartial)
	assert.Equal(t, 1, snap.WorkflowsFailed)
	assert.Equal(t, 1, snap.WorkflowsDegraded)
	assert.InDelta(t, 0.25, snap.FailureRate, 0.0001)
	assert.Equal(t, map[string]int{model.StageProvenance: 1, model.StageImageAnalysis: 1}, snap.StageFailures)
	assert.InDelta(t, 70.0, snap.AvgValuationConfidence, 0.0001)
	assert.InDelta(t, 80.0, snap.AvgProvenanceConfidence, 0.0001)
}

func TestCollector_OpenBreakers(t *testing.T) {
	breakers := fakeBreakers{
		{Name: model.StageImageAnalysis, State: "open", FailureCount: 3},
		{Name: model.StageMetadata, State: "closed"},
		{Name: model.StageValuation, State: "half-open"},
	}
	c := newTestCollector(&fakeLister{}, breakers)

	snap, err := c.Collect(context.Background(), 24)
	require.NoError(t, err)
	assert.Equal(t, []string{model.StageImageAnalysis}, snap.OpenBreakers)
}

func TestCollector_ListError(t *testing.T) {
	c := newTestCollector(&fakeLister{err: errors.New("db down")}, nil)

	_, err := c.Collect(context.Background(), 24)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "list workflows")
}

func TestCollector_DLQDepth(t *testing.T) {
	st := &fakeDLQLister{depth: 4}
	snap, err := newTestCollector(st, nil).Collect(context.Background(), 24)
	require.NoError(t, err)
	assert.Equal(t, 4, snap.DLQDepth)

	st.err = errors.New("db closed")
	_, err = newTestCollector(st, nil).Collect(context.Background(), 24)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "count dlq")
}
