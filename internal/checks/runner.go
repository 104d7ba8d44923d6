package checks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"
)

// Result holds the structured output of a step run.
type Result struct {
	Step       string `json:"step"`
	Passed     bool   `json:"passed"`
	ExitCode   int    `json:"exit_code"`
	DurationMs int    `json:"duration_ms"`
	TimedOut   bool   `json:"timed_out,omitempty"`
	Summary    string `json:"summary"`
	Findings   string `json:"findings,omitempty"`
	Stdout     string `json:"-"`
	Stderr     string `json:"-"`
}

// StepConfig mirrors config.Step with the fields the runner needs.
type StepConfig struct {
	Name    string
	Command string
	Parser  string
	Timeout time.Duration
	Env     []string
}

// Tool is a version probe such as "node --version".
type Tool struct {
	Name    string
	Command string
}

// ToolVersion is the trimmed first line printed by a Tool.
type ToolVersion struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// ErrStepFailed is the cause of a ToolInvocationError for a command that ran
// to completion and failed.
var ErrStepFailed = errors.New("step failed")

// ToolInvocationError reports a step or tool probe that exited non-zero or
// timed out.
type ToolInvocationError struct {
	Step     string
	ExitCode int
	TimedOut bool
	Summary  string
}

func (e *ToolInvocationError) Error() string {
	return fmt.Sprintf("step %q failed (exit code %d): %s", e.Step, e.ExitCode, e.Summary)
}

// Unwrap returns context.DeadlineExceeded for a timed out step and
// ErrStepFailed otherwise.
func (e *ToolInvocationError) Unwrap() error {
	if e.TimedOut {
		return context.DeadlineExceeded
	}
	return ErrStepFailed
}

// CommandRunner abstracts command execution for testability.
type CommandRunner interface {
	Run(ctx context.Context, dir string, env []string, command string) (stdout string, stderr string, exitCode int, err error)
}

// ExecRunner implements CommandRunner by shelling out.
type ExecRunner struct{}

func (e *ExecRunner) Run(ctx context.Context, dir string, env []string, command string) (string, string, int, error) {
	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), env...)
	cmd.WaitDelay = 5 * time.Second

	var stdoutBuf, stderrBuf strings.Builder
	cmd.Stdout = &stdoutBuf
	cmd.Stderr = &stderrBuf

	err := cmd.Run()
	exitCode := 0
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && ctx.Err() == nil {
			exitCode = exitErr.ExitCode()
		} else {
			return stdoutBuf.String(), stderrBuf.String(), -1, fmt.Errorf("exec: %w", err)
		}
	}
	return stdoutBuf.String(), stderrBuf.String(), exitCode, nil
}

const defaultStepTimeout = 10 * time.Minute

// Runner executes steps and parses their output. Each step is attempted
// exactly once.
type Runner struct {
	cmd CommandRunner
}

// NewRunner creates a Runner with the given command runner.
func NewRunner(cmd CommandRunner) *Runner {
	return &Runner{cmd: cmd}
}

// Run executes a single step in dir. A non-zero exit or a step timeout is a
// failed Result, not an error; err is reserved for commands that could not be
// started or for cancellation of the parent context.
func (r *Runner) Run(ctx context.Context, dir string, cfg StepConfig) (*Result, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultStepTimeout
	}

	stepCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	stdout, stderr, exitCode, err := r.cmd.Run(stepCtx, dir, cfg.Env, cfg.Command)
	durationMs := int(time.Since(start).Milliseconds())

	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("run step %q: %w", cfg.Name, ctx.Err())
		}
		if errors.Is(stepCtx.Err(), context.DeadlineExceeded) {
			return &Result{
				Step:       cfg.Name,
				Passed:     false,
				ExitCode:   -1,
				DurationMs: durationMs,
				TimedOut:   true,
				Summary:    fmt.Sprintf("timeout after %s", timeout),
				Findings:   tail(joinOutput(stdout, stderr), maxOutputLen),
				Stdout:     stdout,
				Stderr:     stderr,
			}, nil
		}
		return nil, fmt.Errorf("run step %q: %w", cfg.Name, err)
	}

	parsed := parserFor(cfg.Parser).Parse(stdout, stderr, exitCode)

	return &Result{
		Step:       cfg.Name,
		Passed:     exitCode == 0 && parsed.Passed,
		ExitCode:   exitCode,
		DurationMs: durationMs,
		Summary:    parsed.Summary,
		Findings:   findingsString(parsed.Findings),
		Stdout:     stdout,
		Stderr:     stderr,
	}, nil
}

// VerifyTools runs each version probe in order and stops at the first one that
// fails.
func (r *Runner) VerifyTools(ctx context.Context, dir string, tools []Tool) ([]ToolVersion, error) {
	var versions []ToolVersion
	for _, tool := range tools {
		res, err := r.Run(ctx, dir, StepConfig{Name: tool.Name, Command: tool.Command, Timeout: time.Minute})
		if err != nil {
			return versions, err
		}
		if !res.Passed {
			return versions, res.Err()
		}
		versions = append(versions, ToolVersion{Name: tool.Name, Version: firstLine(res.Stdout + res.Stderr)})
	}
	return versions, nil
}

// Err converts a failed result into a ToolInvocationError; nil when passed.
func (res *Result) Err() error {
	if res.Passed {
		return nil
	}
	return &ToolInvocationError{Step: res.Step, ExitCode: res.ExitCode, TimedOut: res.TimedOut, Summary: res.Summary}
}

func findingsString(v interface{}) string {
	switch f := v.(type) {
	case nil:
		return ""
	case string:
		return f
	default:
		data, _ := json.Marshal(f)
		return string(data)
	}
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}
