package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/lucasnoah/prbuild/internal/pipeline"
	"github.com/lucasnoah/prbuild/internal/trigger"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

func executeCommand(args ...string) (string, error) {
	resetFlags(rootCmd)
	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return buf.String(), err
}

// resetFlags returns every flag of cmd and its subcommands to its default, so
// one Execute cannot leak parsed values into the next.
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}

// clearTriggerEnv hides any CI variables of the machine running the tests.
func clearTriggerEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{trigger.EnvChangeID, trigger.EnvChangeBranch, trigger.EnvChangeTarget, trigger.EnvPRNumber, trigger.EnvBranchName} {
		t.Setenv(k, "")
	}
}

func TestVersionCommand(t *testing.T) {
	SetVersion("test-version")
	out, err := executeCommand("version")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "test-version") {
		t.Errorf("expected version output to contain 'test-version', got: %s", out)
	}
}

func TestRootHelp(t *testing.T) {
	out, err := executeCommand("--help")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expectedSubcommands := []string{"run", "resolve", "artifacts", "report", "config", "history", "db", "version"}
	for _, sub := range expectedSubcommands {
		if !strings.Contains(out, sub) {
			t.Errorf("help output missing subcommand %q", sub)
		}
	}
}

func TestSubcommandHelp(t *testing.T) {
	for _, args := range [][]string{
		{"run", "--help"},
		{"artifacts", "validate", "--help"},
		{"report", "show", "--help"},
		{"config", "show", "--help"},
		{"history", "list", "--help"},
		{"history", "stats", "--help"},
		{"db", "migrate", "--help"},
	} {
		out, err := executeCommand(args...)
		if err != nil {
			t.Errorf("%v failed: %v", args, err)
		}
		if out == "" {
			t.Errorf("%v produced no output", args)
		}
	}
}

func TestResolveJSON(t *testing.T) {
	clearTriggerEnv(t)
	out, err := executeCommand("resolve", "--default-branch", "main", "--pr-number", " 42 ", "--branch-name", "feature/x", "--format", "json")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	var plan trigger.Plan
	if err := json.Unmarshal([]byte(out), &plan); err != nil {
		t.Fatalf("invalid JSON %q: %v", out, err)
	}
	if plan.Mode != trigger.ModeManualPR || plan.PRNumber != "42" {
		t.Errorf("unexpected plan %+v", plan)
	}
	if plan.SourceRefspec != "+refs/pull/42/head:refs/remotes/origin/PR-42" {
		t.Errorf("refspec = %q", plan.SourceRefspec)
	}
}

func TestResolveAutomatedPRFromEnv(t *testing.T) {
	clearTriggerEnv(t)
	t.Setenv(trigger.EnvChangeID, "7")
	t.Setenv(trigger.EnvChangeBranch, "topic")

	out, err := executeCommand("resolve", "--default-branch", "main", "--pr-number", "99")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if !strings.Contains(out, "automated-pr") || !strings.Contains(out, "topic") {
		t.Errorf("automated PR should win over manual parameters, got:\n%s", out)
	}
}

func TestResolveDefaultBranch(t *testing.T) {
	clearTriggerEnv(t)
	out, err := executeCommand("resolve", "--default-branch", "trunk", "--pr-number", "  ")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if !strings.Contains(out, "default-branch") || !strings.Contains(out, "trunk") {
		t.Errorf("unexpected output:\n%s", out)
	}
}

func TestArtifactsValidate(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "index.html"), []byte("<html>"), 0o644); err != nil {
		t.Fatal(err)
	}
	out, err := executeCommand("artifacts", "validate", dir)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if !strings.Contains(out, "1 entries") {
		t.Errorf("unexpected output %q", out)
	}

	if _, err := executeCommand("artifacts", "validate", t.TempDir()); err == nil {
		t.Error("expected error for empty directory")
	}
}

func TestFlagsDoNotLeakBetweenRuns(t *testing.T) {
	clearTriggerEnv(t)

	if _, err := executeCommand("artifacts", "validate", "--help"); err != nil {
		t.Fatalf("help: %v", err)
	}
	if _, err := executeCommand("artifacts", "validate", t.TempDir()); err == nil {
		t.Error("help flag from the previous run suppressed validation of an empty directory")
	}

	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "index.html"), []byte("<html>"), 0o644)
	if _, err := executeCommand("artifacts", "validate", dir, "--require", "*.js"); err == nil {
		t.Fatal("expected missing *.js to fail")
	}
	if _, err := executeCommand("artifacts", "validate", dir); err != nil {
		t.Errorf("--require from the previous run leaked: %v", err)
	}

	if _, err := executeCommand("resolve", "--default-branch", "main", "--branch-name", "feature/x", "--format", "json"); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	out, err := executeCommand("resolve", "--default-branch", "main")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if !strings.Contains(out, "default-branch") || strings.Contains(out, "feature/x") {
		t.Errorf("--branch-name or --format leaked into the next run:\n%s", out)
	}
}

func TestReportShow(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.json")
	start := time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)
	rec := &pipeline.RunRecord{
		ID:         "run-7",
		Plan:       trigger.Resolve(trigger.Context{ParamBranchName: "feature/x"}),
		Outcome:    pipeline.OutcomeUnstable,
		StartedAt:  start,
		FinishedAt: start.Add(time.Minute),
		Steps: []pipeline.StepRecord{
			{Name: "lint", Passed: false, AllowFailure: true, Summary: "exit code 1"},
		},
	}
	if err := pipeline.SaveRecord(path, rec); err != nil {
		t.Fatal(err)
	}

	out, err := executeCommand("report", "show", path)
	if ExitCode(err) != 2 {
		t.Errorf("ExitCode = %d, want 2 (err %v)", ExitCode(err), err)
	}
	for _, want := range []string{"WARN lint", "feature/x", "unstable in 1m0s"} {
		if !strings.Contains(out, want) {
			t.Errorf("summary missing %q:\n%s", want, out)
		}
	}

	out, err = executeCommand("report", "show", path, "--format", "json")
	if ExitCode(err) != 2 {
		t.Errorf("ExitCode = %d, want 2", ExitCode(err))
	}
	var got pipeline.RunRecord
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("invalid JSON %q: %v", out, err)
	}
	if got.ID != "run-7" {
		t.Errorf("ID = %q", got.ID)
	}

	_, err = executeCommand("report", "show", filepath.Join(t.TempDir(), "missing.json"))
	if err == nil || ExitCode(err) != 1 {
		t.Errorf("missing report: err = %v", err)
	}
}

func TestConfigValidate(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good.yaml")
	os.WriteFile(good, []byte(`
pipeline:
  name: web
  repo_url: https://github.com/acme/web.git
  steps:
    - name: install
      command: npm ci
`), 0o644)
	out, err := executeCommand("config", "validate", "--config", good)
	if err != nil {
		t.Fatalf("validate: %v\n%s", err, out)
	}
	if !strings.Contains(out, "Configuration is valid.") {
		t.Errorf("unexpected output %q", out)
	}

	bad := filepath.Join(dir, "bad.yaml")
	os.WriteFile(bad, []byte("pipeline:\n  name: web\n"), 0o644)
	out, err = executeCommand("config", "validate", "--config", bad)
	if err == nil {
		t.Fatal("expected validation error")
	}
	if !strings.Contains(out, "Validation errors:") {
		t.Errorf("unexpected output %q", out)
	}
}

func TestRunRejectsInvalidConfig(t *testing.T) {
	bad := filepath.Join(t.TempDir(), "bad.yaml")
	os.WriteFile(bad, []byte("pipeline:\n  name: web\n"), 0o644)
	_, err := executeCommand("run", "--config", bad)
	if err == nil || !strings.Contains(err.Error(), "invalid config") {
		t.Fatalf("expected invalid config error, got %v", err)
	}
	if ExitCode(err) != 1 {
		t.Errorf("ExitCode = %d, want 1", ExitCode(err))
	}
}

func TestExitCode(t *testing.T) {
	if ExitCode(nil) != 0 {
		t.Error("nil should exit 0")
	}
	if ExitCode(errors.New("x")) != 1 {
		t.Error("plain errors should exit 1")
	}
	if ExitCode(&ExitError{Code: pipeline.OutcomeUnstable.ExitCode()}) != 2 {
		t.Error("unstable should exit 2")
	}
}

func TestPrintSummary(t *testing.T) {
	start := time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)
	rec := &pipeline.RunRecord{
		Plan:       trigger.Resolve(trigger.Context{ParamPRNumber: "42"}),
		SHA:        "abc123",
		Outcome:    pipeline.OutcomeUnstable,
		StartedAt:  start,
		FinishedAt: start.Add(90 * time.Second),
		Steps: []pipeline.StepRecord{
			{Name: "install", Passed: true, Summary: "passed (exit code 0)"},
			{Name: "lint", Passed: false, AllowFailure: true, Summary: "exit code 1"},
		},
	}
	var buf bytes.Buffer
	printSummary(&buf, rec)
	out := buf.String()

	for _, want := range []string{"PASS install", "WARN lint", "unstable in 1m30s", "manual-pr #42"} {
		if !strings.Contains(out, want) {
			t.Errorf("summary missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "\x1b[") {
		t.Error("non-terminal output must not contain ANSI escapes")
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := newLogger(&buf, "warn", "json")
	if err != nil {
		t.Fatalf("newLogger: %v", err)
	}
	logger.Info("hidden")
	logger.Warn("shown", "step", "build")
	if strings.Contains(buf.String(), "hidden") {
		t.Error("info should be filtered at warn level")
	}
	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("expected one JSON line, got %q: %v", buf.String(), err)
	}
	if entry["step"] != "build" {
		t.Errorf("entry = %v", entry)
	}

	if _, err := newLogger(&buf, "loud", "json"); err == nil {
		t.Error("expected error for unknown level")
	}
	if _, err := newLogger(&buf, "info", "xml"); err == nil {
		t.Error("expected error for unknown format")
	}
}

func TestLoggerRedactsTokens(t *testing.T) {
	var buf bytes.Buffer
	logger, err := newLogger(&buf, "info", "json")
	if err != nil {
		t.Fatalf("newLogger: %v", err)
	}
	logger.Info("fetching", "token", "ghp_secret", "header", "AUTHORIZATION: basic eC1hY2Nlc3M=")
	if strings.Contains(buf.String(), "ghp_secret") || strings.Contains(buf.String(), "eC1hY2Nlc3M=") {
		t.Errorf("secret leaked into log: %s", buf.String())
	}
}
