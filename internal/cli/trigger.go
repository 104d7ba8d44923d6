package cli

import (
	"os"

	"github.com/lucasnoah/prbuild/internal/trigger"
	"github.com/spf13/cobra"
)

// addTriggerFlags registers the manual build parameters shared by run and
// resolve.
func addTriggerFlags(cmd *cobra.Command) {
	cmd.Flags().String("pr-number", "", "build this pull request (overrides $PR_NUMBER)")
	cmd.Flags().String("branch-name", "", "build this branch")
}

// triggerContext reads the trigger signals from the environment and flags.
func triggerContext(cmd *cobra.Command, defaultBranch string) trigger.Context {
	tc := trigger.FromEnv(os.LookupEnv)
	if cmd.Flags().Changed("pr-number") {
		tc.ParamPRNumber, _ = cmd.Flags().GetString("pr-number")
	}
	tc.ParamBranchName, _ = cmd.Flags().GetString("branch-name")
	if defaultBranch != "" {
		tc.DefaultBranch = defaultBranch
	}
	return tc
}
