package valuation

import (
	"math"
	"strings"

	"github.com/sells-group/appraise-cli/internal/model"
)

// straightLine is the annual depreciation rate and residual floor for a category.
type straightLine struct {
	rate  float64 // fraction of purchase price lost per year
	floor float64 // minimum fraction of purchase price retained
}

var straightLineRates = map[string]straightLine{
	"electronics":         {rate: 0.20, floor: 0.10},
	"appliances":          {rate: 0.15, floor: 0.10},
	"cameras":             {rate: 0.15, floor: 0.15},
	"clothing":            {rate: 0.30, floor: 0.05},
	"furniture":           {rate: 0.10, floor: 0.20},
	"tools":               {rate: 0.10, floor: 0.20},
	"sports":              {rate: 0.15, floor: 0.10},
	"books":               {rate: 0.10, floor: 0.10},
	"musical instruments": {rate: 0.05, floor: 0.40},
	"jewelry":             {rate: 0.02, floor: 0.60},
	"watches":             {rate: 0.05, floor: 0.40},
	"art":                 {rate: 0.00, floor: 1.00},
	"collectibles":        {rate: 0.00, floor: 1.00},
}

var defaultStraightLine = straightLine{rate: 0.10, floor: 0.10}

// StraightLineDepreciation values an inventory item by linear depreciation of
// its purchase price, never below the category floor, then scaled by
// condition. It is independent of the ensemble engine.
func StraightLineDepreciation(category, condition string, ageYears, purchasePrice float64) model.DepreciationEstimate {
	sl, ok := straightLineRates[strings.ToLower(strings.TrimSpace(category))]
	if !ok {
		sl = defaultStraightLine
	}
	mult := ConditionMultiplier(condition)

	price, ok := finiteNonNegative(&purchasePrice)
	if !ok {
		price = 0
	}
	age, ok := finiteNonNegative(&ageYears)
	if !ok {
		age = 0
	}

	retained := math.Max(sl.floor, 1-sl.rate*age)
	current := sanitizeValue(price * retained * mult)

	return model.DepreciationEstimate{
		CurrentValue:  int64(math.Round(current)),
		AnnualRate:    sl.rate,
		Floor:         sl.floor,
		ConditionMult: mult,
		Currency:      DefaultCurrency,
	}
}
