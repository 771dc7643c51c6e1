package engine

import (
	"time"

	"github.com/wesleyorama2/prload/internal/performance/executor"
	"github.com/wesleyorama2/prload/internal/performance/metrics"
	"github.com/wesleyorama2/prload/internal/performance/threshold"
)

// Report is the outcome of a test run.
type Report struct {
	RunID       string        `json:"runId"`
	Name        string        `json:"name,omitempty"`
	Description string        `json:"description,omitempty"`
	BaseURL     string        `json:"baseUrl"`
	StartTime   time.Time     `json:"startTime"`
	EndTime     time.Time     `json:"endTime"`
	Duration    time.Duration `json:"duration"`

	Scenarios  []ScenarioResult   `json:"scenarios"`
	Metrics    []metrics.Snapshot `json:"metrics"`
	Submetrics []metrics.Snapshot `json:"submetrics,omitempty"`
	Thresholds []threshold.Result `json:"thresholds"`
	MaxVUs     int                `json:"maxVUs"`

	// Passed is true when every threshold passed and the run was not
	// aborted.
	Passed      bool   `json:"passed"`
	Aborted     bool   `json:"aborted"`
	AbortReason string `json:"abortReason,omitempty"`
	Error       string `json:"error,omitempty"`
}

// ScenarioResult holds per-scenario results.
type ScenarioResult struct {
	Name        string          `json:"name"`
	Executor    string          `json:"executor"`
	Workflow    string          `json:"workflow"`
	StartOffset time.Duration   `json:"startOffset"`
	Started     bool            `json:"started"`
	Stats       *executor.Stats `json:"stats,omitempty"`
	Error       string          `json:"error,omitempty"`
}

// Metric returns the snapshot of a root metric or submetric by name.
func (r *Report) Metric(name string) (metrics.Snapshot, bool) {
	for _, s := range r.Metrics {
		if s.Name == name {
			return s, true
		}
	}
	for _, s := range r.Submetrics {
		if s.Name == name {
			return s, true
		}
	}
	return metrics.Snapshot{}, false
}

// FailedThresholds returns the results that did not pass.
func (r *Report) FailedThresholds() []threshold.Result {
	var out []threshold.Result
	for _, t := range r.Thresholds {
		if !t.Passed {
			out = append(out, t)
		}
	}
	return out
}

// Iterations returns the total iterations across scenarios.
func (r *Report) Iterations() int64 {
	var n int64
	for _, s := range r.Scenarios {
		if s.Stats != nil {
			n += s.Stats.Iterations
		}
	}
	return n
}
