package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/appraise-cli/internal/model"
	"github.com/sells-group/appraise-cli/internal/provenance"
)

var importFile string

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Bulk-load inventory items from a YAML or JSON file",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		data, err := os.ReadFile(importFile)
		if err != nil {
			return eris.Wrap(err, "read import file")
		}
		items, err := parseItems(data)
		if err != nil {
			return err
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		n, err := st.ImportItems(ctx, items)
		if err != nil {
			return eris.Wrap(err, "import items")
		}

		zap.L().Info("import complete",
			zap.Int64("created", n),
			zap.String("file", importFile),
		)
		return nil
	},
}

// parseItems decodes a list of items, bare or under an "items" key. JSON is
// accepted as YAML; field names follow the items' JSON form.
func parseItems(data []byte) ([]model.Item, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, eris.Wrap(err, "import: parse file")
	}
	if m, ok := doc.(map[string]any); ok {
		doc = m["items"]
	}
	if _, ok := doc.([]any); !ok {
		return nil, eris.New("import: expected a list of items")
	}

	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, eris.Wrap(err, "import: encode items")
	}
	var items []model.Item
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, eris.Wrap(err, "import: decode items")
	}
	for i, it := range items {
		if it.Title == "" {
			return nil, eris.Errorf("import: item %d has no title", i+1)
		}
		if err := provenance.ValidateItem(it); err != nil {
			return nil, eris.Wrapf(err, "import: item %d", i+1)
		}
	}
	return items, nil
}

func init() {
	importCmd.Flags().StringVar(&importFile, "file", "", "path to YAML or JSON file (required)")
	_ = importCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(importCmd)
}
