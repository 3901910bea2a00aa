package pipeline

import (
	"github.com/sells-group/appraise-cli/internal/model"
)

// Outcome is the tagged result of one ExecuteChain call. The record always
// carries a value for every stage; on failure those values are explicit
// defaults, so callers should read stage data through the accessors.
type Outcome struct {
	Status model.WorkflowStatus
	Errors []model.StepError

	record model.WorkflowRecord
}

// Record returns the full workflow record, defaults included.
func (o Outcome) Record() model.WorkflowRecord {
	return o.record
}

// WorkflowID returns the ID the record was saved under.
func (o Outcome) WorkflowID() string {
	return o.record.WorkflowID
}

// Valuation returns the valuation and whether it was actually computed.
// A failed workflow reports a zero range that must not be shown as a price.
func (o Outcome) Valuation() (model.ValuationResult, bool) {
	return o.record.Valuation, o.Status != model.WorkflowFailed
}

// Metadata returns the normalized metadata and whether it was computed.
func (o Outcome) Metadata() (model.NormalizedMetadata, bool) {
	return o.record.Metadata, o.Status != model.WorkflowFailed
}

// Provenance returns the provenance analysis and whether it was computed.
func (o Outcome) Provenance() (model.ProvenanceAnalysis, bool) {
	return o.record.Provenance, o.Status == model.WorkflowSuccess
}

// Degraded reports whether any stage failed because a service was unavailable.
func (o Outcome) Degraded() bool {
	for _, e := range o.Errors {
		if e.Degraded {
			return true
		}
	}
	return false
}

// defaultMetadata, defaultValuation and defaultProvenance fill the record
// for stages that did not run or did not finish.
func defaultMetadata() model.NormalizedMetadata {
	return model.NormalizedMetadata{
		Category:   model.UnknownCategory,
		Attributes: map[string]model.AttributeValue{},
	}
}

func defaultValuation(currency string) model.ValuationResult {
	return model.ValuationResult{
		EstimatedValue: model.ValueRange{Currency: currency},
		Breakdown:      map[string]float64{},
	}
}

func defaultProvenance() model.ProvenanceAnalysis {
	return model.ProvenanceAnalysis{Timeline: []model.TimelineItem{}}
}
