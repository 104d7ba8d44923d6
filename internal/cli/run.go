package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/lucasnoah/prbuild/internal/checkout"
	"github.com/lucasnoah/prbuild/internal/checks"
	"github.com/lucasnoah/prbuild/internal/config"
	"github.com/lucasnoah/prbuild/internal/credentials"
	"github.com/lucasnoah/prbuild/internal/db"
	"github.com/lucasnoah/prbuild/internal/github"
	"github.com/lucasnoah/prbuild/internal/orchestrator"
	"github.com/lucasnoah/prbuild/internal/pipeline"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Resolve the trigger, check out, build and report",
	Long: `Run executes one build. Exit status is 0 for success, 1 for failure and
2 for an unstable run (a step marked allow_failure failed).`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger, err := commandLogger(cmd)
		if err != nil {
			return err
		}
		cfg, err := loadValidConfig()
		if err != nil {
			return err
		}

		workspace, _ := cmd.Flags().GetString("workspace")
		clean, _ := cmd.Flags().GetBool("clean-workspace")
		reportPath, _ := cmd.Flags().GetString("report")

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		store := credentials.NewStore(cfg.Credentials, os.LookupEnv)
		deps := orchestrator.Deps{
			Checkout:    checkout.NewManager(&checkout.ExecGit{}, cfg.Pipeline.RepoURL),
			Steps:       checks.NewRunner(&checks.ExecRunner{}),
			Reporter:    newReporter(cfg, store, logger),
			Credentials: store,
			Logger:      logger,
		}
		if history := openHistory(ctx, cfg, logger); history != nil {
			defer history.Close()
			deps.History = history
		}

		orch := orchestrator.New(cfg, deps, orchestrator.Options{Workspace: workspace, CleanWorkspace: clean})
		rec, runErr := orch.Run(ctx, triggerContext(cmd, cfg.Pipeline.DefaultBranch))

		printSummary(cmd.OutOrStdout(), rec)

		if reportPath != "" {
			if err := pipeline.SaveRecord(reportPath, rec); err != nil {
				logger.Error("failed to write run report", "path", reportPath, "error", err)
			}
		}

		if rec.Outcome == pipeline.OutcomeSuccess {
			return nil
		}
		return &ExitError{Code: rec.Outcome.ExitCode(), Err: runErr}
	},
}

// newReporter builds the GitHub status client, or a no-op reporter when no
// repository or token is configured.
func newReporter(cfg *config.Config, store *credentials.Store, logger *slog.Logger) github.Reporter {
	st := cfg.Pipeline.Status
	if cfg.Pipeline.Repo == "" || st.CredentialID == "" {
		logger.Debug("status reporting disabled: no repo or credential configured")
		return github.NopReporter{}
	}
	token, err := store.Get(st.CredentialID)
	if err != nil {
		logger.Warn("status reporting disabled", "error", err)
		return github.NopReporter{}
	}
	client, err := github.NewClient(github.ClientOpts{Token: token, APIURL: st.APIURL, Comment: st.Comment})
	if err != nil {
		logger.Warn("status reporting disabled", "error", err)
		return github.NopReporter{}
	}
	return client
}

func historyDSN(cfg *config.Config) string {
	if dsn := os.Getenv(db.EnvDatabaseURL); dsn != "" {
		return dsn
	}
	return cfg.Pipeline.History.DSN
}

// openHistory connects to the run history database. History is best-effort:
// any failure is logged and nil is returned.
func openHistory(ctx context.Context, cfg *config.Config, logger *slog.Logger) *db.DB {
	dsn := historyDSN(cfg)
	if dsn == "" {
		return nil
	}
	d, err := db.Open(ctx, dsn)
	if err != nil {
		logger.Warn("run history disabled", "error", err)
		return nil
	}
	if err := d.Migrate(ctx); err != nil {
		logger.Warn("run history disabled", "error", fmt.Errorf("migrate: %w", err))
		d.Close()
		return nil
	}
	return d
}

func init() {
	addTriggerFlags(runCmd)
	runCmd.Flags().String("workspace", "", "workspace directory (default: a fresh temp dir)")
	runCmd.Flags().Bool("clean-workspace", false, "remove --workspace after the run")
	runCmd.Flags().String("report", "", "write the run record as JSON to this path")
}
