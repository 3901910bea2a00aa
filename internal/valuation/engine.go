package valuation

import (
	"fmt"
	"math"
	"strings"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/sells-group/appraise-cli/internal/model"
)

const (
	fallbackValue = 100.0
	rangeLow      = 0.9
	rangeHigh     = 1.1
	decayFactor   = 0.95
	curvePoints   = 6

	// maxValue bounds the final estimate so the range always fits in int64.
	maxValue = 1e12
	// maxAgeYears caps absurd ages before they reach the explanation.
	maxAgeYears = 500.0
)

// Ensemble weights per value estimator.
var weights = map[string]float64{
	EstimatorDescription: 0.2,
	EstimatorHistory:     0.3,
	EstimatorMarket:      0.5,
}

// DefaultCurrency is used when an engine is built without one.
const DefaultCurrency = "USD"

// Engine evaluates ValuationInputs. It is safe for concurrent use.
type Engine struct {
	currency string
	now      func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the clock used to label depreciation years.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// NewEngine creates an engine reporting values in currency (ISO 4217).
func NewEngine(currency string, opts ...Option) *Engine {
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if currency == "" {
		currency = DefaultCurrency
	}
	e := &Engine{currency: currency, now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Currency returns the ISO code the engine reports in.
func (e *Engine) Currency() string { return e.currency }

// Evaluate values in with the default USD engine.
func Evaluate(in model.ValuationInput) model.ValuationResult {
	return NewEngine(DefaultCurrency).Evaluate(in)
}

// Evaluate runs the estimators, combines the present ones by weight and
// applies the condition multiplier on top.
func (e *Engine) Evaluate(in model.ValuationInput) model.ValuationResult {
	breakdown := make(map[string]float64)

	estimates := []struct {
		name  string
		value *float64
	}{
		{EstimatorDescription, DescriptionEstimate(in.Description)},
		{EstimatorHistory, HistoryEstimate(in.OriginalPrice)},
		{EstimatorMarket, MarketEstimate(in.Category, in.Brand, in.Model, in.Description)},
	}

	var xs, ws []float64
	var used []string
	for _, est := range estimates {
		if est.value == nil {
			continue
		}
		xs = append(xs, *est.value)
		ws = append(ws, weights[est.name])
		used = append(used, est.name)
		breakdown[est.name] = *est.value
	}

	ensemble := fallbackValue
	if len(xs) > 0 {
		ensemble = stat.Mean(xs, ws)
	}

	mult := ConditionMultiplier(in.Condition)
	breakdown[EstimatorCondition] = mult
	final := sanitizeValue(ensemble * mult)

	result := model.ValuationResult{
		EstimatedValue: valueRange(final, e.currency),
		Confidence:     confidence(in, breakdown),
		Breakdown:      breakdown,
		Depreciation:   e.depreciationCurve(final),
	}
	result.Explanation = explain(in, used, mult, result)
	return result
}

// confidence starts at 50 and adds evidence bonuses, capped at 100.
func confidence(in model.ValuationInput, breakdown map[string]float64) int {
	score := 50.0
	if _, ok := breakdown[EstimatorHistory]; ok {
		score += 20
	}
	if _, ok := breakdown[EstimatorMarket]; ok {
		score += 20
	}
	if strings.TrimSpace(in.Brand) != "" {
		score += 5
	}
	if strings.TrimSpace(in.Model) != "" {
		score += 5
	}
	score += provenanceScore(in.ProvenanceScore) / 5

	if score > 100 {
		score = 100
	}
	if score < 0 {
		score = 0
	}
	return int(math.Round(score))
}

func provenanceScore(p *float64) float64 {
	v, ok := finiteNonNegative(p)
	if !ok {
		return 0
	}
	return math.Min(v, 100)
}

func valueRange(final float64, currency string) model.ValueRange {
	return model.ValueRange{
		Min:      int64(math.Floor(trimNoise(final * rangeLow))),
		Max:      int64(math.Ceil(trimNoise(final * rangeHigh))),
		Currency: currency,
	}
}

// trimNoise drops float error below a millionth so 100*1.1 ceils to 110.
func trimNoise(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}

// depreciationCurve projects final forward six years at 5% annual decay.
func (e *Engine) depreciationCurve(final float64) []model.DepreciationPoint {
	year := e.now().Year()
	points := make([]model.DepreciationPoint, curvePoints)
	v := final
	for i := range points {
		points[i] = model.DepreciationPoint{Year: year + i, Value: int64(math.Round(v))}
		v *= decayFactor
	}
	return points
}

// sanitizeValue keeps v finite, non-negative and within int64 range.
func sanitizeValue(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if math.IsInf(v, 1) || v > maxValue {
		return maxValue
	}
	return v
}

func explain(in model.ValuationInput, used []string, mult float64, r model.ValuationResult) string {
	var b strings.Builder
	if len(used) == 0 {
		fmt.Fprintf(&b, "No estimator had enough data; using a base value of %.0f.", fallbackValue)
	} else {
		fmt.Fprintf(&b, "Weighted average of %d estimator(s) (%s).", len(used), strings.Join(used, ", "))
	}

	cond := strings.TrimSpace(in.Condition)
	if cond == "" {
		cond = "unspecified"
	}
	fmt.Fprintf(&b, " Condition %q applied at x%.2f.", cond, mult)

	if in.AgeYears != nil && !math.IsNaN(*in.AgeYears) && *in.AgeYears >= 0 {
		fmt.Fprintf(&b, " Item age %.0f years.", math.Min(*in.AgeYears, maxAgeYears))
	}

	fmt.Fprintf(&b, " Estimated %d-%d %s with %d%% confidence.",
		r.EstimatedValue.Min, r.EstimatedValue.Max, r.EstimatedValue.Currency, r.Confidence)
	return b.String()
}
