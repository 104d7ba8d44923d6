package cli

import (
	"encoding/json"
	"fmt"

	"github.com/lucasnoah/prbuild/internal/pipeline"
	"github.com/spf13/cobra"
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Inspect run reports written by run --report",
}

var reportShowCmd = &cobra.Command{
	Use:   "show [path]",
	Short: "Print the summary of a saved run report",
	Long: `Show reprints the summary of a report written by "run --report" and exits
with the status the run itself exited with.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rec, err := pipeline.LoadRecord(args[0])
		if err != nil {
			return fmt.Errorf("read report: %w", err)
		}

		format, _ := cmd.Flags().GetString("format")
		if format == "json" {
			data, _ := json.MarshalIndent(rec, "", "  ")
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
		} else {
			printSummary(cmd.OutOrStdout(), rec)
		}

		if rec.Outcome == pipeline.OutcomeSuccess {
			return nil
		}
		return &ExitError{Code: rec.Outcome.ExitCode()}
	},
}

func init() {
	reportShowCmd.Flags().String("format", "text", "Output format: text or json")
	reportCmd.AddCommand(reportShowCmd)
}
