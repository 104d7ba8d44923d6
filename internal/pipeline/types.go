package pipeline

import (
	"time"

	"github.com/lucasnoah/prbuild/internal/artifact"
	"github.com/lucasnoah/prbuild/internal/checks"
	"github.com/lucasnoah/prbuild/internal/trigger"
)

// Outcome is the terminal state of a run.
type Outcome string

const (
	OutcomeSuccess  Outcome = "success"
	OutcomeFailure  Outcome = "failure"
	OutcomeUnstable Outcome = "unstable"
)

// ExitCode maps an outcome onto the process exit status.
func (o Outcome) ExitCode() int {
	switch o {
	case OutcomeSuccess:
		return 0
	case OutcomeUnstable:
		return 2
	default:
		return 1
	}
}

// RunRecord is everything a run produced, persisted as JSON and optionally in
// the history database.
type RunRecord struct {
	ID           string               `json:"id"`
	Pipeline     string               `json:"pipeline"`
	Plan         trigger.Plan         `json:"plan"`
	ChangeTarget string               `json:"change_target,omitempty"`
	SHA          string               `json:"sha,omitempty"`
	Workspace    string               `json:"workspace"`
	Tools        []checks.ToolVersion `json:"tools,omitempty"`
	Steps        []StepRecord         `json:"steps"`
	Artifacts    *artifact.Report     `json:"artifacts,omitempty"`
	Outcome      Outcome              `json:"outcome"`
	FailedStep   string               `json:"failed_step,omitempty"`
	Error        string               `json:"error,omitempty"`
	StartedAt    time.Time            `json:"started_at"`
	FinishedAt   time.Time            `json:"finished_at"`
}

// StepRecord is the outcome of one pipeline step.
type StepRecord struct {
	Name         string `json:"name"`
	Passed       bool   `json:"passed"`
	AllowFailure bool   `json:"allow_failure,omitempty"`
	ExitCode     int    `json:"exit_code"`
	DurationMs   int    `json:"duration_ms"`
	Summary      string `json:"summary"`
	Findings     string `json:"findings,omitempty"`
}

// Step names used for the fixed phases around the configured steps.
const (
	StepCheckout  = "checkout"
	StepTools     = "tools"
	StepArtifacts = "artifacts"
)

// Duration is how long the run took.
func (r *RunRecord) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// AddStep appends a finished step result.
func (r *RunRecord) AddStep(res *checks.Result, allowFailure bool) {
	r.Steps = append(r.Steps, StepRecord{
		Name:         res.Step,
		Passed:       res.Passed,
		AllowFailure: allowFailure,
		ExitCode:     res.ExitCode,
		DurationMs:   res.DurationMs,
		Summary:      res.Summary,
		Findings:     res.Findings,
	})
}
