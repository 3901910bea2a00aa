package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/appraise-cli/internal/executor"
	"github.com/sells-group/appraise-cli/internal/model"
	"github.com/sells-group/appraise-cli/internal/monitoring"
)

var workflowsCmd = &cobra.Command{
	Use:   "workflows",
	Short: "Inspect appraisal workflow history",
	Long:  "Commands for listing workflows and viewing a workflow's record and step events.",
}

// -- workflows list --

var workflowsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List appraisal workflows",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		item, _ := cmd.Flags().GetString("item")
		status, _ := cmd.Flags().GetString("status")
		limit, _ := cmd.Flags().GetInt("limit")

		recs, err := st.ListWorkflows(ctx, model.WorkflowFilter{
			ItemID: item,
			Status: model.WorkflowStatus(status),
			Limit:  limit,
		})
		if err != nil {
			return eris.Wrap(err, "workflows list")
		}

		if len(recs) == 0 {
			fmt.Fprintln(os.Stderr, "No workflows found.")
			return nil
		}

		formatWorkflowsList(os.Stdout, recs)
		return nil
	},
}

// -- workflows show --

var workflowsShowCmd = &cobra.Command{
	Use:   "show <workflow-id>",
	Short: "Show a workflow record and its step events",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		rec, err := st.GetWorkflow(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "workflows show")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(rec); err != nil {
			return err
		}

		if events, _ := cmd.Flags().GetBool("events"); events {
			evs, err := st.ListEvents(ctx, rec.WorkflowID)
			if err != nil {
				return eris.Wrap(err, "workflows events")
			}
			formatEvents(os.Stdout, evs)
		}
		return nil
	},
}

// -- workflows stats --

var workflowsStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Summarize recent workflow health",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		hours, _ := cmd.Flags().GetInt("hours")
		if hours <= 0 {
			hours = cfg.Monitoring.LookbackWindowHours
		}

		// Breaker state lives in the serving process, so none is reported here.
		snap, err := monitoring.NewCollector(st, nil).Collect(ctx, hours)
		if err != nil {
			return eris.Wrap(err, "workflows stats")
		}

		alerts := monitoring.NewAlerter(cfg.Monitoring).Evaluate(snap)
		formatStats(os.Stdout, snap, alerts)
		return nil
	},
}

func init() {
	workflowsStatsCmd.Flags().Int("hours", 0, "lookback window in hours (default from config)")
	workflowsCmd.AddCommand(workflowsStatsCmd)

	workflowsListCmd.Flags().String("item", "", "filter by item ID")
	workflowsListCmd.Flags().String("status", "", "filter by status (success, partial, failed)")
	workflowsListCmd.Flags().Int("limit", 50, "max number of workflows to display")

	workflowsShowCmd.Flags().Bool("events", false, "also print the step event audit trail")

	workflowsCmd.AddCommand(workflowsListCmd)
	workflowsCmd.AddCommand(workflowsShowCmd)
	rootCmd.AddCommand(workflowsCmd)
}

// formatWorkflowsList writes a table of workflows to w.
func formatWorkflowsList(w io.Writer, recs []model.WorkflowRecord) {
	rows := make([][]string, 0, len(recs))
	for _, r := range recs {
		value := "-"
		if r.Status != model.WorkflowFailed {
			value = fmt.Sprintf("%d-%d %s", r.Valuation.EstimatedValue.Min, r.Valuation.EstimatedValue.Max, r.Valuation.EstimatedValue.Currency)
		}
		rows = append(rows, []string{
			shortID(r.WorkflowID),
			r.ItemID,
			string(r.Status),
			value,
			strconv.Itoa(len(r.Errors)),
			r.StartedAt.Format("2006-01-02 15:04"),
			r.CompletedAt.Sub(r.StartedAt).Round(time.Millisecond).String(),
		})
	}
	_, _ = fmt.Fprintln(w, renderTable(
		[]string{"ID", "Item", "Status", "Value", "Errors", "Started", "Duration"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignLeft, alignRight},
	))
}

// formatEvents writes a workflow's step events to w.
func formatEvents(w io.Writer, evs []executor.Event) {
	rows := make([][]string, 0, len(evs))
	for _, ev := range evs {
		rows = append(rows, []string{
			ev.Timestamp.Format("15:04:05.000"),
			ev.StepName,
			string(ev.Type),
			strconv.Itoa(ev.Attempt),
			ev.Duration.String(),
			ev.Error,
		})
	}
	_, _ = fmt.Fprintln(w, renderTable(
		[]string{"Time", "Step", "Event", "Attempt", "Duration", "Error"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignLeft},
	))
}

// formatStats writes a health summary and any threshold breaches to w.
func formatStats(w io.Writer, snap *monitoring.MetricsSnapshot, alerts []monitoring.Alert) {
	rows := [][]string{
		{"Workflows", strconv.Itoa(snap.WorkflowsTotal)},
		{"Success", strconv.Itoa(snap.WorkflowsSuccess)},
		{"Partial", strconv.Itoa(snap.WorkflowsPartial)},
		{"Failed", strconv.Itoa(snap.WorkflowsFailed)},
		{"Degraded", strconv.Itoa(snap.WorkflowsDegraded)},
		{"Failure rate", fmt.Sprintf("%.1f%%", snap.FailureRate*100)},
		{"Avg valuation confidence", fmt.Sprintf("%.1f", snap.AvgValuationConfidence)},
		{"Avg provenance confidence", fmt.Sprintf("%.1f", snap.AvgProvenanceConfidence)},
		{"Dead letters", strconv.Itoa(snap.DLQDepth)},
	}
	stages := make([]string, 0, len(snap.StageFailures))
	for stage := range snap.StageFailures {
		stages = append(stages, stage)
	}
	sort.Strings(stages)
	for _, stage := range stages {
		rows = append(rows, []string{"Failures: " + stage, strconv.Itoa(snap.StageFailures[stage])})
	}

	_, _ = fmt.Fprintf(w, "Last %dh\n", snap.LookbackHours)
	_, _ = fmt.Fprintln(w, renderTable([]string{"Metric", "Value"}, rows, []columnAlignment{alignLeft, alignRight}))
	for _, a := range alerts {
		_, _ = fmt.Fprintf(w, "ALERT [%s] %s\n", a.Severity, a.Message)
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
