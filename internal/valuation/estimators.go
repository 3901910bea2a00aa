// Package valuation estimates item values by combining independent estimators
// into a confidence-weighted ensemble.
package valuation

import (
	"hash/fnv"
	"math"
	"strings"
)

// Estimator names as they appear in ValuationResult.Breakdown.
const (
	EstimatorDescription = "description"
	EstimatorHistory     = "history"
	EstimatorMarket      = "market"
	EstimatorCondition   = "condition_multiplier"
)

const (
	descriptionBase  = 50.0
	descriptionBonus = 25.0
	historyRetention = 0.6
	defaultMarket    = 100.0
	marketBandLow    = 0.80
	marketBandWidth  = 0.40
	defaultCondition = 0.5
)

// signalWords raise the description estimate once each, regardless of how
// often they appear.
var signalWords = []string{
	"rare",
	"vintage",
	"signed",
	"antique",
	"limited",
	"original",
	"handmade",
	"mint",
	"collectible",
	"first edition",
}

// marketBases maps a lower-cased category to its comparison base price.
var marketBases = map[string]float64{
	"electronics":         400,
	"musical instruments": 800,
	"guitar":              800,
	"guitars":             800,
	"furniture":           300,
	"jewelry":             1000,
	"watches":             600,
	"art":                 1500,
	"collectibles":        200,
	"books":               25,
	"clothing":            60,
	"tools":               150,
	"appliances":          350,
	"sports":              120,
	"cameras":             450,
}

// conditionMultipliers maps a normalized condition label to its value multiplier.
var conditionMultipliers = map[string]float64{
	"new":       1.0,
	"like_new":  0.9,
	"excellent": 0.9,
	"very_good": 0.8,
	"good":      0.7,
	"fair":      0.5,
	"poor":      0.2,
}

// DescriptionEstimate scores the description by value-signalling words.
// Returns nil when there is no description.
func DescriptionEstimate(description string) *float64 {
	text := strings.ToLower(strings.TrimSpace(description))
	if text == "" {
		return nil
	}
	v := descriptionBase
	for _, w := range signalWords {
		if containsWord(text, w) {
			v += descriptionBonus
		}
	}
	return &v
}

// HistoryEstimate returns 60% of the original price, or nil when the price
// is unknown or not a usable number.
func HistoryEstimate(originalPrice *float64) *float64 {
	p, ok := finiteNonNegative(originalPrice)
	if !ok {
		return nil
	}
	v := p * historyRetention
	return &v
}

// MarketEstimate compares against the category base price, varied by a
// stable hash of the item identity into the [0.80, 1.20] band. A category
// missing from the table uses the default base. An empty category returns
// nil: there is nothing to compare against, and the ensemble falls back to
// its fixed base when no estimator applies.
func MarketEstimate(category, brand, model, description string) *float64 {
	cat := strings.ToLower(strings.TrimSpace(category))
	if cat == "" {
		return nil
	}
	base, ok := marketBases[cat]
	if !ok {
		base = defaultMarket
	}
	v := base * marketMultiplier(cat, brand, model, description)
	return &v
}

// marketMultiplier hashes the identity with FNV-1a and maps it into the band.
func marketMultiplier(category, brand, model, description string) float64 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(strings.Join([]string{
		category,
		strings.ToLower(strings.TrimSpace(brand)),
		strings.ToLower(strings.TrimSpace(model)),
		strings.ToLower(strings.TrimSpace(description)),
	}, "|")))
	frac := float64(h.Sum32()%10001) / 10000
	return marketBandLow + marketBandWidth*frac
}

// ConditionMultiplier returns the multiplier for a condition label.
// Unrecognized labels get 0.5.
func ConditionMultiplier(condition string) float64 {
	if m, ok := conditionMultipliers[normalizeCondition(condition)]; ok {
		return m
	}
	return defaultCondition
}

// ConditionAdjust applies the condition multiplier to a pre-condition value.
func ConditionAdjust(base float64, condition string) float64 {
	return base * ConditionMultiplier(condition)
}

func normalizeCondition(condition string) string {
	c := strings.ToLower(strings.TrimSpace(condition))
	return strings.NewReplacer(" ", "_", "-", "_").Replace(c)
}

// containsWord reports whether phrase occurs in text bounded by non-letters.
func containsWord(text, phrase string) bool {
	for start := 0; start < len(text); {
		i := strings.Index(text[start:], phrase)
		if i < 0 {
			return false
		}
		i += start
		end := i + len(phrase)
		if (i == 0 || !isWordByte(text[i-1])) && (end == len(text) || !isWordByte(text[end])) {
			return true
		}
		start = i + 1
	}
	return false
}

func isWordByte(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= '0' && b <= '9')
}

// finiteNonNegative unwraps p when it is a finite, non-negative number.
func finiteNonNegative(p *float64) (float64, bool) {
	if p == nil || math.IsNaN(*p) || math.IsInf(*p, 0) || *p < 0 {
		return 0, false
	}
	return *p, true
}
