package cli

import (
	"encoding/json"
	"fmt"

	"github.com/lucasnoah/prbuild/internal/artifact"
	"github.com/spf13/cobra"
)

var artifactsCmd = &cobra.Command{
	Use:   "artifacts",
	Short: "Inspect build output",
}

var artifactsValidateCmd = &cobra.Command{
	Use:   "validate [dir]",
	Short: "Check that a build output directory exists and is non-empty",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		required, _ := cmd.Flags().GetStringSlice("require")
		report, err := artifact.Validate(args[0], required)
		if err != nil {
			return err
		}

		format, _ := cmd.Flags().GetString("format")
		if format == "json" {
			data, _ := json.MarshalIndent(report, "", "  ")
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %d entries, %d files, %d bytes\n", report.Dir, report.Entries, report.Files, report.Bytes)
		return nil
	},
}

func init() {
	artifactsValidateCmd.Flags().StringSlice("require", nil, "glob that must match at least one file (repeatable)")
	artifactsValidateCmd.Flags().String("format", "text", "Output format: text or json")
	artifactsCmd.AddCommand(artifactsValidateCmd)
}
