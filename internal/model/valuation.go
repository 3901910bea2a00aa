package model

// ValuationInput describes an item for the ensemble valuation engine.
type ValuationInput struct {
	Category        string   `json:"category"`
	Brand           string   `json:"brand,omitempty"`
	Model           string   `json:"model,omitempty"`
	Description     string   `json:"description,omitempty"`
	Materials       []string `json:"materials,omitempty"`
	Condition       string   `json:"condition"`
	AgeYears        *float64 `json:"age_years,omitempty"`
	OriginalPrice   *float64 `json:"original_price,omitempty"`
	ProvenanceScore *float64 `json:"provenance_score,omitempty"` // 0-100
}

// ValueRange is an integer price band in a single currency.
type ValueRange struct {
	Min      int64  `json:"min"`
	Max      int64  `json:"max"`
	Currency string `json:"currency"`
}

// Midpoint returns the centre of the range.
func (r ValueRange) Midpoint() float64 {
	return float64(r.Min+r.Max) / 2
}

// DepreciationPoint is one year of the projected value curve.
type DepreciationPoint struct {
	Year  int   `json:"year"`
	Value int64 `json:"value"`
}

// ValuationResult is the output of one ensemble evaluation.
type ValuationResult struct {
	EstimatedValue ValueRange          `json:"estimated_value"`
	Confidence     int                 `json:"confidence"`
	Breakdown      map[string]float64  `json:"breakdown"`
	Explanation    string              `json:"explanation"`
	Depreciation   []DepreciationPoint `json:"depreciation,omitempty"`
}

// DepreciationEstimate is the output of straight-line inventory depreciation.
type DepreciationEstimate struct {
	CurrentValue  int64   `json:"current_value"`
	AnnualRate    float64 `json:"annual_rate"`
	Floor         float64 `json:"floor"`
	ConditionMult float64 `json:"condition_multiplier"`
	Currency      string  `json:"currency"`
}
