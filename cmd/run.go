package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/appraise-cli/internal/model"
)

var (
	runItemID string
	runImages []string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the appraisal pipeline for a single item",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		images, err := parseImages(runImages)
		if err != nil {
			return err
		}

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		out := env.Orchestrator.ExecuteChain(ctx, runItemID, images)

		zap.L().Info("appraisal complete",
			zap.String("item_id", runItemID),
			zap.String("workflow_id", out.WorkflowID()),
			zap.String("status", string(out.Status)),
			zap.Int("errors", len(out.Errors)),
		)

		// Print result JSON to stdout
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(out.Record()); err != nil {
			return eris.Wrap(err, "encode workflow record")
		}

		if out.Status == model.WorkflowFailed {
			return eris.Errorf("workflow %s failed", out.WorkflowID())
		}
		return nil
	},
}

// parseImages accepts "id=url" or a bare URL, which is numbered by position.
func parseImages(specs []string) ([]model.ImageRef, error) {
	images := make([]model.ImageRef, 0, len(specs))
	for i, spec := range specs {
		id, url, found := strings.Cut(spec, "=")
		if !found || strings.Contains(id, "/") {
			id, url = fmt.Sprintf("img-%d", i+1), spec
		}
		id, url = strings.TrimSpace(id), strings.TrimSpace(url)
		if id == "" || url == "" {
			return nil, eris.Errorf("invalid --image %q, want id=url or url", spec)
		}
		images = append(images, model.ImageRef{ID: id, URL: url})
	}
	return images, nil
}

func init() {
	runCmd.Flags().StringVar(&runItemID, "item", "", "item ID (required)")
	runCmd.Flags().StringArrayVar(&runImages, "image", nil, "image as id=url or url, repeatable (default: the item's stored images)")
	_ = runCmd.MarkFlagRequired("item")
	rootCmd.AddCommand(runCmd)
}
