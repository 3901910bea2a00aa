package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/appraise-cli/internal/model"
	"github.com/sells-group/appraise-cli/internal/provenance"
)

var provenanceCmd = &cobra.Command{
	Use:   "provenance <item-id>",
	Short: "Show an item's provenance timeline and confidence",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		item, err := st.GetItem(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "provenance")
		}

		analysis := provenance.NewEngine(cfg.Provenance.GapYears).Analyze(item.ProvenanceSubject())
		fp, err := provenance.Fingerprint(analysis.Timeline)
		if err != nil {
			return eris.Wrap(err, "fingerprint timeline")
		}
		analysis.Fingerprint = fp

		if verify, _ := cmd.Flags().GetBool("verify"); verify {
			entries, err := st.GetLedger(ctx, item.ID)
			if err != nil {
				return eris.Wrap(err, "load provenance ledger")
			}
			check, err := ledgerStatus(entries, analysis.Timeline)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(os.Stdout, check)
		}

		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(analysis)
		}
		formatProvenance(os.Stdout, analysis)
		return nil
	},
}

// ledgerStatus reports whether the timeline still matches the latest recorded fingerprint.
func ledgerStatus(entries []model.LedgerEntry, timeline []model.TimelineItem) (string, error) {
	if len(entries) == 0 {
		return "Ledger: no fingerprint recorded yet", nil
	}
	latest := entries[len(entries)-1]
	ok, err := provenance.VerifyFingerprint(timeline, latest.Fingerprint)
	if err != nil {
		return "", eris.Wrap(err, "verify fingerprint")
	}
	if !ok {
		return fmt.Sprintf("Ledger: MISMATCH, timeline changed since workflow %s (%s)",
			latest.WorkflowID, latest.CreatedAt.Format("2006-01-02 15:04")), nil
	}
	return fmt.Sprintf("Ledger: verified against workflow %s", latest.WorkflowID), nil
}

// formatProvenance writes the narrative, score and timeline to w.
func formatProvenance(w io.Writer, a model.ProvenanceAnalysis) {
	_, _ = fmt.Fprintf(w, "Confidence: %d/100\n", a.Confidence)
	_, _ = fmt.Fprintln(w, a.Narrative)

	rows := make([][]string, 0, len(a.Timeline))
	for _, it := range a.Timeline {
		if it.Gap {
			rows = append(rows, []string{it.Date.Format("2006-01-02"), "gap", it.Description, ""})
			continue
		}
		verified := "no"
		if it.Verified {
			verified = "yes"
		}
		desc := it.Description
		if it.Provider != "" {
			desc += " (" + it.Provider + ")"
		}
		rows = append(rows, []string{it.Date.Format("2006-01-02"), string(it.Type), desc, verified})
	}
	_, _ = fmt.Fprintln(w, renderTable([]string{"Date", "Type", "Description", "Verified"}, rows, nil))

	if a.Fingerprint != "" {
		_, _ = fmt.Fprintf(w, "Fingerprint: %s\n", shortHash(a.Fingerprint))
	}
}

func shortHash(h string) string {
	if len(h) > 16 {
		return h[:16] + "…"
	}
	return h
}

func init() {
	provenanceCmd.Flags().Bool("verify", false, "check the timeline against the latest ledger fingerprint")
	provenanceCmd.Flags().Bool("json", false, "print JSON instead of a table")
	rootCmd.AddCommand(provenanceCmd)
}
