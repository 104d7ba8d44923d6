// Package analytics summarises recorded runs: per-step duration and pass
// rates, and outcome counts per day.
package analytics

import (
	"math"
	"sort"
	"time"
)

// StepSample is one recorded execution of a step.
type StepSample struct {
	Step       string
	Passed     bool
	DurationMs int
}

// RunSample is one recorded run.
type RunSample struct {
	Outcome   string
	StartedAt time.Time
}

// StepStats holds duration and pass-rate stats for one step name.
type StepStats struct {
	Step     string  `json:"step"`
	Count    int     `json:"count"`
	PassRate float64 `json:"pass_pct"`
	Avg      float64 `json:"avg_seconds"`
	P50      float64 `json:"p50_seconds"`
	P95      float64 `json:"p95_seconds"`
}

// StepSummary aggregates samples per step, sorted by step name.
func StepSummary(samples []StepSample) []StepStats {
	durations := make(map[string][]float64)
	passed := make(map[string]int)
	for _, s := range samples {
		durations[s.Step] = append(durations[s.Step], float64(s.DurationMs)/1000)
		if s.Passed {
			passed[s.Step]++
		}
	}

	results := make([]StepStats, 0, len(durations))
	for step, d := range durations {
		sort.Float64s(d)
		results = append(results, StepStats{
			Step:     step,
			Count:    len(d),
			PassRate: pct(passed[step], len(d)),
			Avg:      avg(d),
			P50:      percentile(d, 50),
			P95:      percentile(d, 95),
		})
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].Step < results[j].Step
	})
	return results
}

// Throughput counts run outcomes for one day.
type Throughput struct {
	Date     string `json:"date"`
	Success  int    `json:"success"`
	Failure  int    `json:"failure"`
	Unstable int    `json:"unstable"`
}

// DailyThroughput buckets runs by UTC start date, oldest first.
func DailyThroughput(runs []RunSample) []Throughput {
	byDate := make(map[string]*Throughput)
	for _, r := range runs {
		date := r.StartedAt.UTC().Format("2006-01-02")
		t := byDate[date]
		if t == nil {
			t = &Throughput{Date: date}
			byDate[date] = t
		}
		switch r.Outcome {
		case "success":
			t.Success++
		case "unstable":
			t.Unstable++
		default:
			t.Failure++
		}
	}

	results := make([]Throughput, 0, len(byDate))
	for _, t := range byDate {
		results = append(results, *t)
	}
	sort.Slice(results, func(i, j int) bool {
		return results[i].Date < results[j].Date
	})
	return results
}

// --- helpers ---

func avg(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return math.Round(sum/float64(len(values))*10) / 10
}

func percentile(sorted []float64, p int) float64 {
	if len(sorted) == 0 {
		return 0
	}
	rank := float64(p) / 100.0 * float64(len(sorted)-1)
	lower := int(math.Floor(rank))
	upper := int(math.Ceil(rank))
	if lower == upper || upper >= len(sorted) {
		return math.Round(sorted[lower]*10) / 10
	}
	weight := rank - float64(lower)
	return math.Round((sorted[lower]*(1-weight)+sorted[upper]*weight)*10) / 10
}

func pct(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return math.Round(float64(n)/float64(total)*1000) / 10
}
