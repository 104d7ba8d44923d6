package db

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/lucasnoah/prbuild/internal/pipeline"
	"github.com/lucasnoah/prbuild/internal/trigger"
)

// testDB connects to PRBUILD_TEST_DATABASE_URL and resets the schema.
func testDB(t *testing.T) *DB {
	t.Helper()
	dsn := os.Getenv("PRBUILD_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("PRBUILD_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	d, err := Open(ctx, dsn)
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := d.Reset(ctx); err != nil {
		t.Fatalf("reset test db: %v", err)
	}
	t.Cleanup(d.Close)
	return d
}

func sampleRecord(id string, plan trigger.Plan, outcome pipeline.Outcome, started time.Time) *pipeline.RunRecord {
	return &pipeline.RunRecord{
		ID:         id,
		Pipeline:   "web",
		Plan:       plan,
		SHA:        "abc123",
		Outcome:    outcome,
		StartedAt:  started,
		FinishedAt: started.Add(time.Minute),
		Steps: []pipeline.StepRecord{
			{Name: "install", Passed: true, Summary: "passed (exit code 0)"},
			{Name: "build", Passed: outcome != pipeline.OutcomeFailure, ExitCode: 1, Summary: "exit code 1"},
		},
	}
}

func TestOpenWithoutDSN(t *testing.T) {
	if _, err := Open(context.Background(), ""); err != ErrNotConfigured {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}

func TestMigrateIdempotent(t *testing.T) {
	d := testDB(t)
	if err := d.Migrate(context.Background()); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
}

func TestRecordAndListRuns(t *testing.T) {
	d := testDB(t)
	ctx := context.Background()
	base := time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)

	pr := trigger.Resolve(trigger.Context{ParamPRNumber: "42"})
	branch := trigger.Resolve(trigger.Context{ParamBranchName: "feature/x"})

	for i, rec := range []*pipeline.RunRecord{
		sampleRecord("r1", pr, pipeline.OutcomeFailure, base),
		sampleRecord("r2", branch, pipeline.OutcomeSuccess, base.Add(time.Hour)),
		sampleRecord("r3", pr, pipeline.OutcomeUnstable, base.Add(2*time.Hour)),
	} {
		if _, err := d.RecordRun(ctx, rec); err != nil {
			t.Fatalf("RecordRun %d: %v", i, err)
		}
	}

	all, err := d.ListRuns(ctx, ListOpts{})
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(all) != 3 || all[0].RunID != "r3" {
		t.Fatalf("expected newest first, got %+v", all)
	}

	prRuns, err := d.ListRuns(ctx, ListOpts{PRNumber: "42"})
	if err != nil {
		t.Fatalf("ListRuns pr: %v", err)
	}
	if len(prRuns) != 2 {
		t.Fatalf("expected 2 PR runs, got %d", len(prRuns))
	}
	for _, r := range prRuns {
		if r.BranchRef != "" {
			t.Errorf("manual PR runs should have no branch ref, got %q", r.BranchRef)
		}
	}

	branchRuns, err := d.ListRuns(ctx, ListOpts{Branch: "feature/x", Limit: 1})
	if err != nil {
		t.Fatalf("ListRuns branch: %v", err)
	}
	if len(branchRuns) != 1 || branchRuns[0].Outcome != "success" {
		t.Fatalf("unexpected branch runs %+v", branchRuns)
	}

	steps, err := d.StepsForRun(ctx, all[0].ID)
	if err != nil {
		t.Fatalf("StepsForRun: %v", err)
	}
	if len(steps) != 2 || steps[0].Name != "install" || steps[1].Name != "build" {
		t.Errorf("unexpected steps %+v", steps)
	}
}

func TestRecordRunDuplicateID(t *testing.T) {
	d := testDB(t)
	ctx := context.Background()
	rec := sampleRecord("dup", trigger.Resolve(trigger.Context{}), pipeline.OutcomeSuccess, time.Now().UTC())
	if _, err := d.RecordRun(ctx, rec); err != nil {
		t.Fatalf("first insert: %v", err)
	}
	if _, err := d.RecordRun(ctx, rec); err == nil {
		t.Fatalf("expected unique violation for run %q", rec.ID)
	}
}

func TestSamples(t *testing.T) {
	d := testDB(t)
	ctx := context.Background()
	base := time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)

	old := sampleRecord("old", trigger.Resolve(trigger.Context{}), pipeline.OutcomeSuccess, base.Add(-48*time.Hour))
	recent := sampleRecord("recent", trigger.Resolve(trigger.Context{}), pipeline.OutcomeFailure, base)
	for _, rec := range []*pipeline.RunRecord{old, recent} {
		if _, err := d.RecordRun(ctx, rec); err != nil {
			t.Fatalf("RecordRun: %v", err)
		}
	}

	steps, err := d.StepSamples(ctx, base.Add(-time.Hour))
	if err != nil {
		t.Fatalf("StepSamples: %v", err)
	}
	if len(steps) != 2 {
		t.Errorf("expected 2 step samples from the recent run, got %d", len(steps))
	}

	runs, err := d.RunSamples(ctx, time.Time{})
	if err != nil {
		t.Fatalf("RunSamples: %v", err)
	}
	if len(runs) != 2 {
		t.Errorf("expected 2 run samples, got %d", len(runs))
	}
}
