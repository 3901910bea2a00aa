package main

import (
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/appraise-cli/internal/resilience"
)

// -- workflows dlq --

var workflowsDLQCmd = &cobra.Command{
	Use:   "dlq",
	Short: "List items in the dead letter queue",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		entries, err := st.ListDLQ(ctx, dlqFilterFlags(cmd))
		if err != nil {
			return eris.Wrap(err, "workflows dlq")
		}
		if len(entries) == 0 {
			fmt.Fprintln(os.Stderr, "Dead letter queue is empty.")
			return nil
		}

		formatDLQ(os.Stdout, entries)
		return nil
	},
}

// -- workflows retry --

var workflowsRetryCmd = &cobra.Command{
	Use:   "retry",
	Short: "Re-run due items from the dead letter queue",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		sum, err := env.Orchestrator.RetryDeadLetters(ctx, dlqFilterFlags(cmd))
		if err != nil {
			return eris.Wrap(err, "workflows retry")
		}

		zap.L().Info("dead letter retry finished",
			zap.Int("attempted", sum.Attempted),
			zap.Int("recovered", sum.Recovered),
			zap.Int("failed", sum.Failed),
		)
		fmt.Fprintf(os.Stdout, "Retried %d: %d recovered, %d failed\n", sum.Attempted, sum.Recovered, sum.Failed)
		return nil
	},
}

func init() {
	for _, c := range []*cobra.Command{workflowsDLQCmd, workflowsRetryCmd} {
		c.Flags().String("type", "", "filter by error type (transient, permanent)")
		c.Flags().Int("limit", 0, "max number of entries (default 100)")
		workflowsCmd.AddCommand(c)
	}
}

func dlqFilterFlags(cmd *cobra.Command) resilience.DLQFilter {
	errType, _ := cmd.Flags().GetString("type")
	limit, _ := cmd.Flags().GetInt("limit")
	return resilience.DLQFilter{ErrorType: errType, Limit: limit}
}

// formatDLQ writes a table of dead letters to w.
func formatDLQ(w io.Writer, entries []resilience.DLQEntry) {
	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		next := "-"
		if e.CanRetry() {
			next = e.NextRetryAt.Format("2006-01-02 15:04")
		}
		rows = append(rows, []string{
			e.ItemID,
			shortID(e.WorkflowID),
			string(e.Status),
			e.ErrorType,
			e.FailedStage,
			fmt.Sprintf("%d/%d", e.RetryCount, e.MaxRetries),
			next,
			e.Error,
		})
	}
	_, _ = fmt.Fprintln(w, renderTable(
		[]string{"Item", "Workflow", "Status", "Type", "Stage", "Retries", "Next retry", "Error"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignLeft, alignLeft},
	))
	_, _ = fmt.Fprintln(w, strconv.Itoa(len(entries))+" dead letter(s)")
}
