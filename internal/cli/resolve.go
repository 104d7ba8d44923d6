package cli

import (
	"encoding/json"
	"fmt"

	"github.com/lucasnoah/prbuild/internal/trigger"
	"github.com/spf13/cobra"
)

var resolveCmd = &cobra.Command{
	Use:   "resolve",
	Short: "Print the checkout plan the current trigger resolves to",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger, err := commandLogger(cmd)
		if err != nil {
			return err
		}

		defaultBranch, _ := cmd.Flags().GetString("default-branch")
		if defaultBranch == "" {
			if cfg, err := loadConfig(); err == nil {
				defaultBranch = cfg.Pipeline.DefaultBranch
			}
		}

		tc := triggerContext(cmd, defaultBranch)
		for _, w := range trigger.Warnings(tc) {
			logger.Warn(w)
		}
		plan := trigger.Resolve(tc)

		format, _ := cmd.Flags().GetString("format")
		out := cmd.OutOrStdout()
		if format == "json" {
			data, _ := json.MarshalIndent(plan, "", "  ")
			fmt.Fprintln(out, string(data))
			return nil
		}

		fmt.Fprintf(out, "mode:        %s\n", plan.Mode)
		if plan.PRNumber != "" {
			fmt.Fprintf(out, "pr number:   %s\n", plan.PRNumber)
		}
		if plan.BranchRef != "" {
			fmt.Fprintf(out, "branch:      %s\n", plan.BranchRef)
		}
		if plan.SourceRefspec != "" {
			fmt.Fprintf(out, "refspec:     %s\n", plan.SourceRefspec)
		}
		fmt.Fprintf(out, "local ref:   %s\n", plan.LocalBranch())
		return nil
	},
}

func init() {
	addTriggerFlags(resolveCmd)
	resolveCmd.Flags().String("default-branch", "", "default branch (default: from config, else main)")
	resolveCmd.Flags().String("format", "text", "Output format: text or json")
}
