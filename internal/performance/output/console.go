// Package output renders run progress and reports for the console and as
// JSON.
package output

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/wesleyorama2/prload/internal/performance/config"
	"github.com/wesleyorama2/prload/internal/performance/engine"
	"github.com/wesleyorama2/prload/internal/performance/metrics"
)

const (
	clearLine     = "\r\033[2K"
	ruleChar      = "━"
	ruleWidth     = 60
	nameColumnMin = 24
)

// ProgressSource provides live progress of a run.
type ProgressSource interface {
	GetProgress() engine.Progress
}

// ConsoleConfig contains configuration for Console.
type ConsoleConfig struct {
	Writer         io.Writer
	UpdateInterval time.Duration
	Quiet          bool
	NoColor        bool
	ForceColors    bool
	ForceTTY       bool
}

// Console writes the run header, live progress and final summary.
type Console struct {
	writer         io.Writer
	updateInterval time.Duration
	isTTY          bool
	quiet          bool
	scheme         *ColorScheme

	mu       sync.Mutex
	liveLine bool
}

// NewConsole creates a console writer.
func NewConsole(cfg ConsoleConfig) *Console {
	if cfg.Writer == nil {
		cfg.Writer = os.Stdout
	}
	if cfg.UpdateInterval <= 0 {
		cfg.UpdateInterval = time.Second
	}

	isTTY := cfg.ForceTTY || isTerminal(cfg.Writer)

	var scheme *ColorScheme
	switch {
	case cfg.ForceColors:
		scheme = DefaultColorScheme()
		scheme.EnableColors()
	case cfg.NoColor || !isTTY || !supportsColors():
		scheme = NoColorScheme()
	default:
		scheme = DefaultColorScheme()
	}

	return &Console{
		writer:         cfg.Writer,
		updateInterval: cfg.UpdateInterval,
		isTTY:          isTTY,
		quiet:          cfg.Quiet,
		scheme:         scheme,
	}
}

// IsTTY returns whether the output is a terminal.
func (c *Console) IsTTY() bool {
	return c.isTTY
}

// PrintHeader prints the run identity and the scenario plan.
func (c *Console) PrintHeader(runID string, cfg *config.TestConfig) {
	if c.quiet {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	name := cfg.Name
	if name == "" {
		name = "load test"
	}

	rule := strings.Repeat(ruleChar, ruleWidth)
	c.writeln(c.scheme.Title.Sprint(rule))
	c.writeln(c.scheme.Label.Sprint(name) + c.scheme.Dim.Sprintf("  run %s", runID))
	c.writeln(c.scheme.Title.Sprint(rule))
	c.writeln(fmt.Sprintf("target:     %s", c.scheme.Value.Sprint(cfg.Settings.BaseURL)))
	c.writeln("scenarios:")

	for _, sn := range cfg.ScenarioNames() {
		sc := cfg.Scenarios[sn]
		ec, err := sc.ExecutorConfig(sn, cfg.Options)
		if err != nil {
			c.writeln(fmt.Sprintf("  * %s: %v", sn, err))
			continue
		}
		c.writeln(fmt.Sprintf("  * %s: %s, max %d VUs, %s (start %s, gracefulStop %s, exec: %s)",
			c.scheme.Label.Sprint(sn),
			ec.Type,
			ec.MaxVUs(),
			formatDuration(ec.TotalDuration()),
			formatDuration(time.Duration(sc.StartTime)),
			formatDuration(ec.GracefulStopOrDefault()),
			sc.Workflow(sn)))
	}
	c.writeln("")
}

// Update renders one progress line. On a terminal the line is redrawn in
// place; otherwise a new line is written.
func (c *Console) Update(p engine.Progress) {
	if c.quiet {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	line := fmt.Sprintf("running [%s] %s VUs | %s reqs | %s iters | errors %s | p95 %s",
		formatDuration(p.Elapsed),
		c.scheme.Value.Sprintf("%d", p.ActiveVUs),
		c.scheme.Value.Sprint(formatNumber(p.Requests)),
		formatNumber(p.Iterations),
		c.scheme.rateColor(p.ErrorRate).Sprintf("%.2f%%", p.ErrorRate*100),
		formatMillis(p.P95))

	if c.isTTY {
		c.write(clearLine + line)
		c.liveLine = true
		return
	}
	c.writeln(line)
}

// Live calls Update every interval until ctx is done.
func (c *Console) Live(ctx context.Context, src ProgressSource) {
	if c.quiet {
		return
	}

	ticker := time.NewTicker(c.updateInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Update(src.GetProgress())
		}
	}
}

// PrintSummary prints the final report: metrics, scenarios and
// thresholds.
func (c *Console) PrintSummary(report *engine.Report) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.liveLine {
		c.write(clearLine)
		c.liveLine = false
	}

	if c.quiet {
		if report.Passed {
			c.writeln(c.scheme.Success.Sprint("PASSED"))
		} else {
			c.writeln(c.scheme.Error.Sprint("FAILED"))
		}
		return
	}

	status := c.scheme.Success.Sprint("passed ✓")
	if !report.Passed {
		status = c.scheme.Error.Sprint("failed ✗")
	}
	rule := strings.Repeat(ruleChar, ruleWidth)

	c.writeln("")
	c.writeln(c.scheme.Title.Sprint(rule))
	c.writeln(fmt.Sprintf("%s - %s", c.scheme.Label.Sprint(orDefault(report.Name, "load test")), status))
	c.writeln(c.scheme.Title.Sprint(rule))
	c.writeln(fmt.Sprintf("duration:   %s", c.scheme.Value.Sprint(formatDuration(report.Duration))))
	c.writeln(fmt.Sprintf("iterations: %s", c.scheme.Value.Sprint(formatNumber(report.Iterations()))))
	c.writeln(fmt.Sprintf("max VUs:    %s", c.scheme.Value.Sprintf("%d", report.MaxVUs)))
	if report.Aborted {
		c.writeln(c.scheme.Warn.Sprintf("aborted:    %s", report.AbortReason))
	}
	if report.Error != "" {
		c.writeln(c.scheme.Error.Sprintf("error:      %s", report.Error))
	}
	c.writeln("")

	c.printScenarios(report.Scenarios)
	c.printMetrics(report.Metrics, report.Submetrics)
	c.printThresholds(report)
}

func (c *Console) printScenarios(scenarios []engine.ScenarioResult) {
	if len(scenarios) == 0 {
		return
	}
	c.writeln(c.scheme.Label.Sprint("scenarios:"))
	for _, s := range scenarios {
		if !s.Started || s.Stats == nil {
			c.writeln(fmt.Sprintf("  %s %s", s.Name, c.scheme.Dim.Sprint("(not started)")))
			continue
		}
		line := fmt.Sprintf("  %s: %s iterations, %d VUs spawned, %s",
			s.Name, formatNumber(s.Stats.Iterations), s.Stats.SpawnedVUs, formatDuration(s.Stats.Elapsed))
		if s.Stats.Interrupted > 0 {
			line += c.scheme.Warn.Sprintf(", %d interrupted", s.Stats.Interrupted)
		}
		c.writeln(line)
	}
	c.writeln("")
}

func (c *Console) printMetrics(roots, subs []metrics.Snapshot) {
	width := nameColumnMin
	for _, s := range append(append([]metrics.Snapshot{}, roots...), subs...) {
		if n := len(s.Name) + 4; n > width {
			width = n
		}
	}

	byRoot := make(map[string][]metrics.Snapshot)
	for _, s := range subs {
		root, _, _ := strings.Cut(s.Name, "{")
		byRoot[root] = append(byRoot[root], s)
	}

	for _, s := range roots {
		if s.Count == 0 && s.Kind != metrics.KindGauge {
			continue
		}
		c.writeln("  " + c.metricLine(s.Name, s, width))
		for _, sub := range byRoot[s.Name] {
			c.writeln("    " + c.metricLine(sub.Name, sub, width-2))
		}
	}
	c.writeln("")
}

// metricLine formats a metric row:
//
//	http_reqs............: 120     40.00/s
//	http_req_failed......: 0.00%   0 out of 120
//	http_req_duration....: avg=12.1ms min=... med=... max=... p(90)=... p(95)=...
func (c *Console) metricLine(name string, s metrics.Snapshot, width int) string {
	dots := width - len(name)
	if dots < 3 {
		dots = 3
	}
	label := name + c.scheme.Dim.Sprint(strings.Repeat(".", dots)) + ":"

	var value string
	switch s.Kind {
	case metrics.KindCounter:
		value = fmt.Sprintf("%-10s %s", c.scheme.Value.Sprint(formatFloat(s.Value)), c.scheme.Dim.Sprintf("%.2f/s", s.Rate))
	case metrics.KindGauge:
		value = fmt.Sprintf("%-10s min=%s max=%s", c.scheme.Value.Sprint(formatFloat(s.Value)), formatFloat(s.Min), formatFloat(s.Max))
	case metrics.KindRate:
		value = fmt.Sprintf("%-10s %d out of %d", c.scheme.rateColor(s.Rate).Sprintf("%.2f%%", s.Rate*100), s.Hits, s.Count)
	default:
		value = fmt.Sprintf("avg=%s min=%s med=%s max=%s p(90)=%s p(95)=%s",
			c.scheme.Value.Sprint(formatMillis(s.Avg)), formatMillis(s.Min), formatMillis(s.Med),
			formatMillis(s.Max), formatMillis(s.P90), formatMillis(s.P95))
	}
	return label + " " + value
}

func (c *Console) printThresholds(report *engine.Report) {
	if len(report.Thresholds) == 0 {
		return
	}
	c.writeln(c.scheme.Label.Sprint("thresholds:"))
	for _, t := range report.Thresholds {
		mark := c.scheme.Success.Sprint("✓")
		if !t.Passed {
			mark = c.scheme.Error.Sprint("✗")
		}
		line := fmt.Sprintf("  %s %s %s (observed %s)", mark, t.Metric, t.Expression, formatFloat(t.Value))
		if !t.Passed && t.Reason != "" {
			line += c.scheme.Dim.Sprintf(": %s", t.Reason)
		}
		if t.AbortOnFail {
			line += c.scheme.Dim.Sprint(" [abortOnFail]")
		}
		c.writeln(line)
	}
	c.writeln("")
}

// write writes to the output without a newline.
func (c *Console) write(s string) {
	fmt.Fprint(c.writer, s)
}

// writeln writes to the output with a newline.
func (c *Console) writeln(s string) {
	fmt.Fprintln(c.writer, s)
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

// formatDuration formats a duration in a human-readable format.
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	if d < time.Hour {
		m := int(d.Minutes())
		s := int(d.Seconds()) % 60
		return fmt.Sprintf("%dm %02ds", m, s)
	}
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%dh %02dm %02ds", h, m, s)
}

// formatMillis formats a trend value recorded in milliseconds.
func formatMillis(ms float64) string {
	switch {
	case ms <= 0:
		return "0ms"
	case ms < 1:
		return fmt.Sprintf("%.0fµs", ms*1000)
	case ms < 1000:
		return fmt.Sprintf("%.2fms", ms)
	default:
		return fmt.Sprintf("%.2fs", ms/1000)
	}
}

func formatFloat(v float64) string {
	if v == float64(int64(v)) {
		return formatNumber(int64(v))
	}
	return fmt.Sprintf("%.4g", v)
}

// formatNumber formats a number with thousands separators.
func formatNumber(n int64) string {
	if n < 0 {
		return "-" + formatNumber(-n)
	}
	str := fmt.Sprintf("%d", n)
	if len(str) <= 3 {
		return str
	}

	var result strings.Builder
	offset := len(str) % 3
	if offset > 0 {
		result.WriteString(str[:offset])
	}
	for i := offset; i < len(str); i += 3 {
		if result.Len() > 0 {
			result.WriteString(",")
		}
		result.WriteString(str[i : i+3])
	}
	return result.String()
}
