package report

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wesleyorama2/prload/internal/performance/engine"
	"github.com/wesleyorama2/prload/internal/performance/executor"
	"github.com/wesleyorama2/prload/internal/performance/metrics"
	"github.com/wesleyorama2/prload/internal/performance/threshold"
)

func createSampleReport() *engine.Report {
	now := time.Now()
	return &engine.Report{
		RunID:     "0b8f1c9e",
		Name:      "Reviewer <service>",
		BaseURL:   "http://localhost:8080",
		StartTime: now.Add(-2 * time.Minute),
		EndTime:   now,
		Duration:  2 * time.Minute,
		MaxVUs:    5,
		Passed:    true,
		Scenarios: []engine.ScenarioResult{
			{Name: "baseline", Executor: "ramping-vus", Workflow: "baseline", Started: true,
				Stats: &executor.Stats{Iterations: 1234, SpawnedVUs: 5}},
			{Name: "stress", Executor: "ramping-vus", Workflow: "stress", StartOffset: 3 * time.Minute},
		},
		Metrics: []metrics.Snapshot{
			{Name: "data_received", Kind: metrics.KindCounter, Count: 10, Value: 2048, Rate: 17},
			{Name: "errors", Kind: metrics.KindRate, Count: 400, Hits: 2, Rate: 0.005},
			{Name: "http_req_duration", Kind: metrics.KindTrend, Count: 400, Avg: 12.5, Med: 10, P90: 30, P95: 45, P99: 120, Max: 1500},
			{Name: "pr_merged", Kind: metrics.KindCounter},
		},
		Submetrics: []metrics.Snapshot{
			{Name: "http_req_duration{scenario:baseline}", Kind: metrics.KindTrend, Count: 400, Avg: 12.5},
		},
		Thresholds: []threshold.Result{
			{Metric: "errors", Expression: "rate<0.01", Value: 0.005, Passed: true},
		},
	}
}

func TestGenerateHTMLString(t *testing.T) {
	html, err := GenerateHTMLString(createSampleReport())
	require.NoError(t, err)

	for _, expected := range []string{
		"<!DOCTYPE html>",
		"<title>Reviewer &lt;service&gt; - Load Test Report</title>",
		"✓ PASSED",
		"run <code>0b8f1c9e</code>",
		"took 2m",
		"1,234",
		"not started",
		"0.50% (2 of 400)",
		"avg 12.50ms, med 10.00ms, p(90) 30.00ms, p(95) 45.00ms, p(99) 120ms, max 1.50s",
		"2.00 KB (17 B/s)",
		"http_req_duration{scenario:baseline}",
		"<code>rate&lt;0.01</code>",
	} {
		assert.Contains(t, html, expected)
	}

	// counters without samples are omitted
	assert.NotContains(t, html, "pr_merged")
}

func TestGenerateHTMLString_Failed(t *testing.T) {
	r := createSampleReport()
	r.Passed = false
	r.Aborted = true
	r.AbortReason = "threshold rate<0.01 on errors breached"

	html, err := GenerateHTMLString(r)
	require.NoError(t, err)
	assert.Contains(t, html, "✗ FAILED")
	assert.Contains(t, html, "Aborted: threshold rate&lt;0.01 on errors breached")
}

func TestGenerateHTMLStringNilReport(t *testing.T) {
	_, err := GenerateHTMLString(nil)
	assert.Error(t, err)
}

func TestGenerateHTML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.html")
	require.NoError(t, GenerateHTML(createSampleReport(), path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "<!DOCTYPE html>"))
}

func TestIsHTMLPath(t *testing.T) {
	assert.True(t, IsHTMLPath("out/report.html"))
	assert.True(t, IsHTMLPath("REPORT.HTM"))
	assert.False(t, IsHTMLPath("report.json"))
	assert.False(t, IsHTMLPath("-"))
}

func TestFormatters(t *testing.T) {
	assert.Equal(t, "500ms", formatDuration(500*time.Millisecond))
	assert.Equal(t, "1m 30s", formatDuration(90*time.Second))
	assert.Equal(t, "2h", formatDuration(2*time.Hour))
	assert.Equal(t, "1,234,567", formatNumber(1234567))
	assert.Equal(t, "999", formatNumber(999))
	assert.Equal(t, "1.50 MB", formatBytes(1572864))
	assert.Equal(t, "0", formatMillis(0))
	assert.Equal(t, "250µs", formatMillis(0.25))
}
