// Package orchestrator runs one build end to end: resolve the trigger, check
// out source, verify tools, run the configured steps, validate artifacts and
// report the result.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lucasnoah/prbuild/internal/artifact"
	"github.com/lucasnoah/prbuild/internal/checkout"
	"github.com/lucasnoah/prbuild/internal/checks"
	"github.com/lucasnoah/prbuild/internal/config"
	"github.com/lucasnoah/prbuild/internal/credentials"
	"github.com/lucasnoah/prbuild/internal/github"
	"github.com/lucasnoah/prbuild/internal/pipeline"
	"github.com/lucasnoah/prbuild/internal/trigger"
	"github.com/m-mizutani/goerr/v2"
)

// Checkouter obtains source for a plan.
type Checkouter interface {
	Checkout(ctx context.Context, plan trigger.Plan, dir string, token string) (*checkout.Result, error)
}

// StepRunner runs tool probes and build steps.
type StepRunner interface {
	VerifyTools(ctx context.Context, dir string, tools []checks.Tool) ([]checks.ToolVersion, error)
	Run(ctx context.Context, dir string, cfg checks.StepConfig) (*checks.Result, error)
}

// Recorder persists finished runs.
type Recorder interface {
	RecordRun(ctx context.Context, rec *pipeline.RunRecord) (int64, error)
}

// Deps are the collaborators of an Orchestrator. Reporter and History may be
// nil.
type Deps struct {
	Checkout    Checkouter
	Steps       StepRunner
	Reporter    github.Reporter
	History     Recorder
	Credentials *credentials.Store
	Logger      *slog.Logger
}

// Options control the workspace of a run.
type Options struct {
	// Workspace is used as-is when set; otherwise a temp dir is created.
	Workspace string
	// CleanWorkspace removes a user-supplied Workspace after the run.
	CleanWorkspace bool
}

// Orchestrator executes runs for a single pipeline configuration.
type Orchestrator struct {
	cfg      *config.Config
	deps     Deps
	opts     Options
	logger   *slog.Logger
	reporter github.Reporter
	now      func() time.Time
}

// New creates an Orchestrator.
func New(cfg *config.Config, deps Deps, opts Options) *Orchestrator {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	reporter := deps.Reporter
	if reporter == nil {
		reporter = github.NopReporter{}
	}
	if deps.Credentials == nil {
		deps.Credentials = credentials.NewStore(cfg.Credentials, os.LookupEnv)
	}
	return &Orchestrator{
		cfg:      cfg,
		deps:     deps,
		opts:     opts,
		logger:   logger,
		reporter: reporter,
		now:      time.Now,
	}
}

// errRunTimeout marks a run that exceeded pipeline.timeout.
var errRunTimeout = errors.New("run timed out")

// Run executes one build for tc. The returned record is always non-nil and
// carries the outcome; err is the cause of a failure outcome and nil for
// success and unstable runs.
func (o *Orchestrator) Run(ctx context.Context, tc trigger.Context) (*pipeline.RunRecord, error) {
	for _, w := range trigger.Warnings(tc) {
		o.logger.Warn(w)
	}
	plan := trigger.Resolve(tc)

	rec := &pipeline.RunRecord{
		ID:           uuid.NewString(),
		Pipeline:     o.cfg.Pipeline.Name,
		Plan:         plan,
		ChangeTarget: strings.TrimSpace(tc.ChangeTarget),
		StartedAt:    o.now().UTC(),
	}
	logger := o.logger.With("run", rec.ID, "mode", string(plan.Mode))
	logger.Info("resolved trigger", "plan", plan.String())

	timeout := o.cfg.Pipeline.RunTimeout()
	runCtx, cancel := context.WithTimeoutCause(ctx, timeout, fmt.Errorf("%w after %s", errRunTimeout, timeout))
	defer cancel()

	err := o.execute(runCtx, logger, rec)
	if err != nil && runCtx.Err() != nil && ctx.Err() == nil {
		err = goerr.Wrap(context.Cause(runCtx), "run aborted", goerr.V("timeout", timeout.String()))
	}

	switch {
	case err != nil:
		rec.Outcome = pipeline.OutcomeFailure
		rec.Error = err.Error()
	case hasAllowedFailure(rec):
		rec.Outcome = pipeline.OutcomeUnstable
	default:
		rec.Outcome = pipeline.OutcomeSuccess
	}
	rec.FinishedAt = o.now().UTC()

	// Reporting and history use the parent context so a run that hit its
	// timeout can still report.
	o.report(ctx, logger, rec, statusFor(rec))
	o.recordHistory(ctx, logger, rec)

	attrs := []any{"outcome", string(rec.Outcome), "duration", rec.Duration().Round(time.Millisecond).String()}
	if err != nil {
		logger.Error("run failed", append(attrs, "step", rec.FailedStep, "error", err)...)
	} else {
		logger.Info("run finished", attrs...)
	}
	return rec, err
}

func (o *Orchestrator) execute(ctx context.Context, logger *slog.Logger, rec *pipeline.RunRecord) error {
	plan := rec.Plan
	if err := plan.Validate(); err != nil {
		rec.FailedStep = pipeline.StepCheckout
		return goerr.Wrap(err, "resolve trigger")
	}

	ws, cleanup, err := o.workspace(plan)
	if err != nil {
		rec.FailedStep = pipeline.StepCheckout
		return err
	}
	defer func() {
		if err := cleanup(); err != nil {
			logger.Warn("failed to remove workspace", "dir", ws, "error", err)
		}
	}()
	rec.Workspace = ws

	// checkout
	token, err := o.token(o.cfg.Pipeline.CredentialID)
	if err != nil {
		rec.FailedStep = pipeline.StepCheckout
		return goerr.Wrap(&checkout.CheckoutError{Ref: plan.LocalBranch(), Err: err}, "checkout failed")
	}
	co, err := o.deps.Checkout.Checkout(ctx, plan, ws, token)
	if err != nil {
		rec.FailedStep = pipeline.StepCheckout
		return goerr.Wrap(err, "checkout failed", goerr.V("ref", plan.LocalBranch()))
	}
	rec.SHA = co.SHA
	logger.Info("checked out source", "ref", co.Ref, "sha", co.SHA, "dir", co.Dir)

	o.report(ctx, logger, rec, github.Status{State: github.StatePending, Description: "build started"})

	// tool versions
	tools := make([]checks.Tool, 0, len(o.cfg.Pipeline.Tools))
	for _, t := range o.cfg.Pipeline.Tools {
		tools = append(tools, checks.Tool{Name: t.Name, Command: t.Command})
	}
	versions, err := o.deps.Steps.VerifyTools(ctx, ws, tools)
	rec.Tools = versions
	for _, v := range versions {
		logger.Info("tool available", "tool", v.Name, "version", v.Version)
	}
	if err != nil {
		rec.FailedStep = pipeline.StepTools
		return goerr.Wrap(err, "tool check failed")
	}

	// steps
	credFile := credentials.NewFile(o.cfg.Pipeline.CredentialFile, o.deps.Credentials)
	env := stepEnv(rec.Plan, rec.ChangeTarget)
	for _, step := range o.cfg.Pipeline.Steps {
		if err := o.runStep(ctx, logger, rec, ws, step, credFile, env); err != nil {
			rec.FailedStep = step.Name
			return err
		}
	}

	// artifacts
	dir := filepath.Join(ws, o.cfg.Pipeline.Artifacts.Dir)
	report, err := artifact.Validate(dir, o.cfg.Pipeline.Artifacts.Required)
	if err != nil {
		rec.FailedStep = pipeline.StepArtifacts
		return goerr.Wrap(err, "artifact validation failed")
	}
	rec.Artifacts = report
	logger.Info("artifacts validated", "dir", o.cfg.Pipeline.Artifacts.Dir, "entries", report.Entries, "files", report.Files, "bytes", report.Bytes)
	return nil
}

func (o *Orchestrator) runStep(ctx context.Context, logger *slog.Logger, rec *pipeline.RunRecord, ws string, step config.Step, credFile *credentials.File, env []string) error {
	cfg := checks.StepConfig{
		Name:    step.Name,
		Command: step.Command,
		Parser:  step.Parser,
		Timeout: step.StepTimeout(),
		Env:     append(append([]string(nil), env...), sortedEnv(step.Env)...),
	}

	remove := func() error { return nil }
	if credFile.Covers(step.Name) {
		var err error
		remove, err = credFile.Write(ws)
		if err != nil {
			return goerr.Wrap(err, "write credential file", goerr.V("step", step.Name), goerr.V("path", credFile.Path()))
		}
		logger.Debug("wrote credential file", "step", step.Name, "path", credFile.Path())
	}

	logger.Info("running step", "step", step.Name, "command", step.Command)
	res, err := o.deps.Steps.Run(ctx, ws, cfg)
	if rmErr := remove(); rmErr != nil {
		logger.Error("failed to remove credential file", "step", step.Name, "error", rmErr)
		if err == nil {
			err = rmErr
		}
	}
	if res != nil {
		rec.AddStep(res, step.AllowFailure)
	}
	if err != nil {
		return goerr.Wrap(err, "step failed", goerr.V("step", step.Name))
	}

	if res.Passed {
		logger.Info("step passed", "step", step.Name, "duration_ms", res.DurationMs, "summary", res.Summary)
		return nil
	}
	if step.AllowFailure {
		logger.Warn("step failed, continuing", "step", step.Name, "exit_code", res.ExitCode, "summary", res.Summary)
		return nil
	}
	if res.Findings != "" {
		logger.Debug("step output", "step", step.Name, "findings", res.Findings)
	}
	return goerr.Wrap(res.Err(), "step failed", goerr.V("step", step.Name), goerr.V("exit_code", res.ExitCode))
}

// workspace returns the run directory and a cleanup func.
func (o *Orchestrator) workspace(plan trigger.Plan) (string, func() error, error) {
	noop := func() error { return nil }
	if o.opts.Workspace != "" {
		dir, err := filepath.Abs(o.opts.Workspace)
		if err != nil {
			return "", noop, goerr.Wrap(err, "resolve workspace", goerr.V("dir", o.opts.Workspace))
		}
		if o.opts.CleanWorkspace {
			return dir, func() error { return os.RemoveAll(dir) }, nil
		}
		return dir, noop, nil
	}
	if plan.Mode == trigger.ModeAutomatedPR {
		return "", noop, goerr.Wrap(&checkout.CheckoutError{
			Ref: plan.LocalBranch(),
			Err: errors.New("automated PR runs need the staged checkout passed as --workspace"),
		}, "checkout failed")
	}
	dir, err := os.MkdirTemp("", "prbuild-*")
	if err != nil {
		return "", noop, goerr.Wrap(err, "create workspace")
	}
	return dir, func() error { return os.RemoveAll(dir) }, nil
}

func (o *Orchestrator) token(id string) (string, error) {
	if id == "" {
		return "", nil
	}
	return o.deps.Credentials.Get(id)
}

// report posts st for rec. Failures are logged and dropped.
func (o *Orchestrator) report(ctx context.Context, logger *slog.Logger, rec *pipeline.RunRecord, st github.Status) {
	if rec.SHA == "" && rec.Plan.PRNumber == "" {
		logger.Debug("no commit or PR to report status on", "state", string(st.State))
		return
	}
	st.Repo = o.cfg.Pipeline.Repo
	st.SHA = rec.SHA
	st.PRNumber = rec.Plan.ChangeID()
	st.Context = o.cfg.Pipeline.Status.Context
	st.TargetURL = expandTarget(o.cfg.Pipeline.Status.TargetURL, rec)

	if err := o.reporter.Report(ctx, st); err != nil {
		var repErr *github.ReportingError
		if errors.As(err, &repErr) {
			logger.Warn("status report failed", "op", repErr.Op, "state", string(st.State), "error", repErr.Err)
			return
		}
		logger.Warn("status report failed", "state", string(st.State), "error", err)
		return
	}
	logger.Debug("reported status", "state", string(st.State), "context", st.Context)
}

func (o *Orchestrator) recordHistory(ctx context.Context, logger *slog.Logger, rec *pipeline.RunRecord) {
	if o.deps.History == nil {
		return
	}
	if _, err := o.deps.History.RecordRun(ctx, rec); err != nil {
		logger.Warn("failed to record run history", "error", err)
	}
}

// statusFor maps a finished run onto a commit status.
func statusFor(rec *pipeline.RunRecord) github.Status {
	switch rec.Outcome {
	case pipeline.OutcomeSuccess:
		return github.Status{State: github.StateSuccess, Description: "build passed"}
	case pipeline.OutcomeUnstable:
		var names []string
		for _, s := range rec.Steps {
			if !s.Passed && s.AllowFailure {
				names = append(names, s.Name)
			}
		}
		return github.Status{State: github.StateFailure, Description: "unstable: " + strings.Join(names, ", ") + " failed"}
	default:
		desc := "build failed"
		if rec.FailedStep != "" {
			desc = fmt.Sprintf("failed at %s", rec.FailedStep)
		}
		return github.Status{State: github.StateFailure, Description: desc}
	}
}

// stepEnv exposes the plan to build steps the same way for automated and
// manual PR runs.
func stepEnv(plan trigger.Plan, target string) []string {
	env := []string{trigger.EnvBranchName + "=" + plan.LocalBranch()}
	if plan.IsPR() {
		env = append(env,
			trigger.EnvChangeID+"="+plan.ChangeID(),
			trigger.EnvChangeBranch+"="+plan.LocalBranch(),
		)
		if target != "" {
			env = append(env, trigger.EnvChangeTarget+"="+target)
		}
	}
	return env
}

func sortedEnv(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	env := make([]string, 0, len(keys))
	for _, k := range keys {
		env = append(env, k+"="+m[k])
	}
	return env
}

// expandTarget substitutes {run}, {pr} and {sha} in a status target URL.
func expandTarget(tmpl string, rec *pipeline.RunRecord) string {
	if tmpl == "" {
		return ""
	}
	return strings.NewReplacer("{run}", rec.ID, "{pr}", rec.Plan.PRNumber, "{sha}", rec.SHA).Replace(tmpl)
}

func hasAllowedFailure(rec *pipeline.RunRecord) bool {
	for _, s := range rec.Steps {
		if !s.Passed && s.AllowFailure {
			return true
		}
	}
	return false
}
