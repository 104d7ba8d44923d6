package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/lucasnoah/prbuild/internal/pipeline"
)

// printSummary writes a short PASS/FAIL/WARN listing of a finished run.
func printSummary(w io.Writer, rec *pipeline.RunRecord) {
	p := newPainter(w)

	fmt.Fprintf(w, "%s %s\n", p.Label("plan:"), rec.Plan.String())
	if rec.SHA != "" {
		fmt.Fprintf(w, "%s %s\n", p.Label("sha: "), rec.SHA)
	}
	for _, t := range rec.Tools {
		fmt.Fprintf(w, "%s %s %s\n", p.Label("tool:"), t.Name, t.Version)
	}
	for _, s := range rec.Steps {
		mark := p.Pass("PASS")
		switch {
		case !s.Passed && s.AllowFailure:
			mark = p.Warn("WARN")
		case !s.Passed:
			mark = p.Fail("FAIL")
		}
		dur := (time.Duration(s.DurationMs) * time.Millisecond).Round(time.Millisecond)
		fmt.Fprintf(w, "%s %-16s %8s  %s\n", mark, s.Name, dur, s.Summary)
	}
	if rec.Artifacts != nil {
		fmt.Fprintf(w, "%s %-16s %8s  %d files, %d bytes\n", p.Pass("PASS"), pipeline.StepArtifacts, "", rec.Artifacts.Files, rec.Artifacts.Bytes)
	}
	if rec.FailedStep != "" && !hasStep(rec, rec.FailedStep) {
		fmt.Fprintf(w, "%s %s\n", p.Fail("FAIL"), rec.FailedStep)
	}
	if rec.Error != "" {
		fmt.Fprintf(w, "%s %s\n", p.Label("error:"), rec.Error)
	}

	var outcome string
	switch rec.Outcome {
	case pipeline.OutcomeSuccess:
		outcome = p.Pass(string(rec.Outcome))
	case pipeline.OutcomeUnstable:
		outcome = p.Warn(string(rec.Outcome))
	default:
		outcome = p.Fail(string(rec.Outcome))
	}
	fmt.Fprintf(w, "%s %s in %s\n", p.Label("result:"), outcome, rec.Duration().Round(time.Second))
}

func hasStep(rec *pipeline.RunRecord, name string) bool {
	for _, s := range rec.Steps {
		if s.Name == name {
			return true
		}
	}
	return false
}
