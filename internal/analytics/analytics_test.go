package analytics

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestStepSummary(t *testing.T) {
	samples := []StepSample{
		{Step: "install", Passed: true, DurationMs: 10000},
		{Step: "install", Passed: true, DurationMs: 20000},
		{Step: "build", Passed: true, DurationMs: 60000},
		{Step: "build", Passed: false, DurationMs: 30000},
		{Step: "build", Passed: true, DurationMs: 90000},
	}

	got := StepSummary(samples)
	want := []StepStats{
		{Step: "build", Count: 3, PassRate: 66.7, Avg: 60, P50: 60, P95: 87},
		{Step: "install", Count: 2, PassRate: 100, Avg: 15, P50: 15, P95: 19.5},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("StepSummary mismatch (-want +got):\n%s", diff)
	}
}

func TestStepSummaryEmpty(t *testing.T) {
	if got := StepSummary(nil); len(got) != 0 {
		t.Errorf("expected no stats, got %v", got)
	}
}

func TestDailyThroughput(t *testing.T) {
	day1 := time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)
	day2 := day1.Add(24 * time.Hour)
	runs := []RunSample{
		{Outcome: "success", StartedAt: day2},
		{Outcome: "failure", StartedAt: day1},
		{Outcome: "unstable", StartedAt: day1.Add(time.Hour)},
		{Outcome: "success", StartedAt: day1.Add(2 * time.Hour)},
	}

	got := DailyThroughput(runs)
	want := []Throughput{
		{Date: "2026-10-01", Success: 1, Failure: 1, Unstable: 1},
		{Date: "2026-10-02", Success: 1},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("DailyThroughput mismatch (-want +got):\n%s", diff)
	}
}

func TestPercentile(t *testing.T) {
	sorted := []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	if got := percentile(sorted, 50); got != 5.5 {
		t.Errorf("p50 = %v, want 5.5", got)
	}
	if got := percentile(sorted, 90); got != 9.1 {
		t.Errorf("p90 = %v, want 9.1", got)
	}
	if got := percentile([]float64{4}, 95); got != 4 {
		t.Errorf("single value p95 = %v, want 4", got)
	}
}

func TestPct(t *testing.T) {
	if pct(1, 3) != 33.3 {
		t.Errorf("pct(1,3) = %v", pct(1, 3))
	}
	if pct(0, 0) != 0 {
		t.Error("pct with zero total should be 0")
	}
}
