package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/sells-group/appraise-cli/internal/model"
	"github.com/sells-group/appraise-cli/internal/valuation"
)

var valueCmd = &cobra.Command{
	Use:   "value",
	Short: "Estimate an item's value with the ensemble engine",
	RunE: func(cmd *cobra.Command, _ []string) error {
		f := cmd.Flags()
		in := model.ValuationInput{}
		in.Category, _ = f.GetString("category")
		in.Brand, _ = f.GetString("brand")
		in.Model, _ = f.GetString("model")
		in.Description, _ = f.GetString("description")
		in.Condition, _ = f.GetString("condition")
		in.Materials, _ = f.GetStringSlice("materials")
		if f.Changed("age") {
			v, _ := f.GetFloat64("age")
			in.AgeYears = &v
		}
		if f.Changed("price") {
			v, _ := f.GetFloat64("price")
			in.OriginalPrice = &v
		}
		if f.Changed("provenance") {
			v, _ := f.GetFloat64("provenance")
			in.ProvenanceScore = &v
		}

		result := valuation.NewEngine(cfg.Valuation.Currency).Evaluate(in)

		if asJSON, _ := f.GetBool("json"); asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(result)
		}
		formatValuation(os.Stdout, result)
		return nil
	},
}

var valueDepreciationCmd = &cobra.Command{
	Use:   "depreciation",
	Short: "Straight-line depreciation for inventory accounting",
	RunE: func(cmd *cobra.Command, _ []string) error {
		f := cmd.Flags()
		category, _ := f.GetString("category")
		condition, _ := f.GetString("condition")
		age, _ := f.GetFloat64("age")
		price, _ := f.GetFloat64("price")

		est := valuation.StraightLineDepreciation(category, condition, age, price)
		est.Currency = valuation.NewEngine(cfg.Valuation.Currency).Currency()

		if asJSON, _ := f.GetBool("json"); asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(est)
		}
		formatDepreciation(os.Stdout, est)
		return nil
	},
}

func init() {
	valueCmd.Flags().String("category", "", "item category")
	valueCmd.Flags().String("brand", "", "brand")
	valueCmd.Flags().String("model", "", "model")
	valueCmd.Flags().String("description", "", "free-text description")
	valueCmd.Flags().String("condition", "", "condition (new, like_new, excellent, very_good, good, fair, poor)")
	valueCmd.Flags().StringSlice("materials", nil, "materials, comma separated")
	valueCmd.Flags().Float64("age", 0, "age in years")
	valueCmd.Flags().Float64("price", 0, "original purchase price")
	valueCmd.Flags().Float64("provenance", 0, "provenance score 0-100")
	valueCmd.Flags().Bool("json", false, "print JSON instead of tables")

	valueDepreciationCmd.Flags().String("category", "", "item category")
	valueDepreciationCmd.Flags().String("condition", "good", "condition")
	valueDepreciationCmd.Flags().Float64("age", 0, "age in years")
	valueDepreciationCmd.Flags().Float64("price", 0, "purchase price (required)")
	valueDepreciationCmd.Flags().Bool("json", false, "print JSON instead of a table")
	_ = valueDepreciationCmd.MarkFlagRequired("price")

	valueCmd.AddCommand(valueDepreciationCmd)
	rootCmd.AddCommand(valueCmd)
}

// formatValuation writes the estimate, its breakdown and the projected curve to w.
func formatValuation(w io.Writer, r model.ValuationResult) {
	rng := r.EstimatedValue
	_, _ = fmt.Fprintf(w, "Estimated value: %d - %d %s (confidence %d)\n", rng.Min, rng.Max, rng.Currency, r.Confidence)
	if r.Explanation != "" {
		_, _ = fmt.Fprintln(w, r.Explanation)
	}

	names := make([]string, 0, len(r.Breakdown))
	for name := range r.Breakdown {
		names = append(names, name)
	}
	sort.Strings(names)
	rows := make([][]string, 0, len(names))
	for _, name := range names {
		rows = append(rows, []string{name, strconv.FormatFloat(r.Breakdown[name], 'f', 2, 64)})
	}
	_, _ = fmt.Fprintln(w, renderTable([]string{"Estimator", "Value"}, rows, []columnAlignment{alignLeft, alignRight}))

	if len(r.Depreciation) > 0 {
		rows = rows[:0]
		for _, p := range r.Depreciation {
			rows = append(rows, []string{strconv.Itoa(p.Year), strconv.FormatInt(p.Value, 10)})
		}
		_, _ = fmt.Fprintln(w, renderTable([]string{"Year", "Value"}, rows, []columnAlignment{alignLeft, alignRight}))
	}
}

// formatDepreciation writes a straight-line estimate to w.
func formatDepreciation(w io.Writer, est model.DepreciationEstimate) {
	rows := [][]string{
		{"Current value", fmt.Sprintf("%d %s", est.CurrentValue, est.Currency)},
		{"Annual rate", fmt.Sprintf("%.0f%%", est.AnnualRate*100)},
		{"Floor", fmt.Sprintf("%.0f%%", est.Floor*100)},
		{"Condition multiplier", strconv.FormatFloat(est.ConditionMult, 'f', 2, 64)},
	}
	_, _ = fmt.Fprintln(w, renderTable([]string{"Field", "Value"}, rows, []columnAlignment{alignLeft, alignRight}))
}
