package main

import (
	"encoding/json"
	"os"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/appraise-cli/internal/model"
	"github.com/sells-group/appraise-cli/internal/normalize"
)

var normalizeCmd = &cobra.Command{
	Use:   "normalize",
	Short: "Categorize an item and canonicalize its brand and model",
	RunE: func(cmd *cobra.Command, _ []string) error {
		title, _ := cmd.Flags().GetString("title")
		description, _ := cmd.Flags().GetString("description")
		attrs, _ := cmd.Flags().GetStringArray("attr")
		overrides, _ := cmd.Flags().GetStringArray("override")

		now := time.Now()
		detected, err := parseAttributes(attrs, model.SourceVision, now)
		if err != nil {
			return err
		}
		user, err := parseAttributes(overrides, model.SourceUser, now)
		if err != nil {
			return err
		}

		meta := normalize.Normalize(title, description, detected, user)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(meta)
	},
}

// parseAttributes turns key=value pairs into attributes from one source.
func parseAttributes(pairs []string, source model.AttributeSource, at time.Time) (map[string]model.AttributeValue, error) {
	out := make(map[string]model.AttributeValue, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || strings.TrimSpace(k) == "" {
			return nil, eris.Errorf("invalid attribute %q, want key=value", p)
		}
		out[strings.TrimSpace(k)] = model.NewAttribute(strings.TrimSpace(v), source, at)
	}
	return out, nil
}

func init() {
	normalizeCmd.Flags().String("title", "", "item title")
	normalizeCmd.Flags().String("description", "", "item description")
	normalizeCmd.Flags().StringArray("attr", nil, "detected attribute key=value, repeatable")
	normalizeCmd.Flags().StringArray("override", nil, "user attribute key=value, repeatable; always wins")
	rootCmd.AddCommand(normalizeCmd)
}
