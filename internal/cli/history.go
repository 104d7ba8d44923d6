package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/lucasnoah/prbuild/internal/analytics"
	"github.com/lucasnoah/prbuild/internal/db"
	"github.com/spf13/cobra"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Query recorded runs",
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent runs, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		pr, _ := cmd.Flags().GetString("pr")
		branch, _ := cmd.Flags().GetString("branch")
		limit, _ := cmd.Flags().GetInt("limit")
		format, _ := cmd.Flags().GetString("format")

		d, err := openDB(cmd)
		if err != nil {
			return err
		}
		defer d.Close()

		runs, err := d.ListRuns(cmd.Context(), db.ListOpts{PRNumber: pr, Branch: branch, Limit: limit})
		if err != nil {
			return err
		}

		if format == "json" {
			data, _ := json.MarshalIndent(runs, "", "  ")
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		}

		if len(runs) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No runs recorded.")
			return nil
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "STARTED\tMODE\tREF\tSHA\tOUTCOME\tDURATION\tFAILED")
		for _, r := range runs {
			ref := r.BranchRef
			if r.PRNumber != "" {
				ref = "#" + r.PRNumber
			}
			sha := r.SHA
			if len(sha) > 7 {
				sha = sha[:7]
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
				r.StartedAt.Local().Format("2006-01-02 15:04"), r.Mode, ref, sha, r.Outcome,
				r.FinishedAt.Sub(r.StartedAt).Round(time.Second), r.FailedStep)
		}
		return w.Flush()
	},
}

var historyStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show per-step pass rates and durations, and outcomes per day",
	RunE: func(cmd *cobra.Command, args []string) error {
		days, _ := cmd.Flags().GetInt("days")
		format, _ := cmd.Flags().GetString("format")
		since := time.Now().AddDate(0, 0, -days)

		d, err := openDB(cmd)
		if err != nil {
			return err
		}
		defer d.Close()

		stepSamples, err := d.StepSamples(cmd.Context(), since)
		if err != nil {
			return err
		}
		runSamples, err := d.RunSamples(cmd.Context(), since)
		if err != nil {
			return err
		}
		steps := analytics.StepSummary(stepSamples)
		daily := analytics.DailyThroughput(runSamples)

		if format == "json" {
			data, _ := json.MarshalIndent(map[string]any{"steps": steps, "daily": daily}, "", "  ")
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "STEP\tRUNS\tPASS%\tAVG(s)\tP50(s)\tP95(s)")
		for _, s := range steps {
			fmt.Fprintf(w, "%s\t%d\t%.1f\t%.1f\t%.1f\t%.1f\n", s.Step, s.Count, s.PassRate, s.Avg, s.P50, s.P95)
		}
		fmt.Fprintln(w)
		fmt.Fprintln(w, "DATE\tSUCCESS\tFAILURE\tUNSTABLE")
		for _, t := range daily {
			fmt.Fprintf(w, "%s\t%d\t%d\t%d\n", t.Date, t.Success, t.Failure, t.Unstable)
		}
		return w.Flush()
	},
}

func envDSN() string {
	return os.Getenv(db.EnvDatabaseURL)
}

func init() {
	historyListCmd.Flags().String("pr", "", "only runs for this PR number")
	historyListCmd.Flags().String("branch", "", "only runs for this branch")
	historyListCmd.Flags().Int("limit", 20, "maximum number of runs")
	historyListCmd.Flags().String("format", "text", "Output format: text or json")
	historyStatsCmd.Flags().Int("days", 30, "only runs started within this many days")
	historyStatsCmd.Flags().String("format", "text", "Output format: text or json")
	historyCmd.AddCommand(historyListCmd)
	historyCmd.AddCommand(historyStatsCmd)
}
