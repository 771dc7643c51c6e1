// Package report renders a finished run as a standalone HTML page.
package report

import (
	"bytes"
	"fmt"
	"html/template"
	"os"
	"strings"
	"time"

	"github.com/wesleyorama2/prload/internal/performance/engine"
	"github.com/wesleyorama2/prload/internal/performance/metrics"
)

var reportTemplate = template.Must(template.New("report").Funcs(templateFuncs()).Parse(htmlTemplate))

// reportData is what the template renders.
type reportData struct {
	*engine.Report
	Groups []metricGroup
}

// metricGroup is a root metric followed by its submetrics.
type metricGroup struct {
	Root metrics.Snapshot
	Subs []metrics.Snapshot
}

// IsHTMLPath reports whether path should receive an HTML report.
func IsHTMLPath(path string) bool {
	lower := strings.ToLower(path)
	return strings.HasSuffix(lower, ".html") || strings.HasSuffix(lower, ".htm")
}

// GenerateHTML generates an HTML report and writes it to a file.
func GenerateHTML(report *engine.Report, outputPath string) error {
	html, err := GenerateHTMLString(report)
	if err != nil {
		return fmt.Errorf("failed to generate HTML: %w", err)
	}

	if err := os.WriteFile(outputPath, []byte(html), 0o644); err != nil {
		return fmt.Errorf("failed to write HTML file: %w", err)
	}
	return nil
}

// GenerateHTMLString generates an HTML report and returns it as a string.
func GenerateHTMLString(report *engine.Report) (string, error) {
	if report == nil {
		return "", fmt.Errorf("report cannot be nil")
	}

	data := reportData{Report: report, Groups: groupMetrics(report)}

	var buf bytes.Buffer
	if err := reportTemplate.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to execute template: %w", err)
	}
	return buf.String(), nil
}

// groupMetrics attaches each submetric to its root metric. Roots with no
// samples are dropped, except gauges.
func groupMetrics(report *engine.Report) []metricGroup {
	subs := make(map[string][]metrics.Snapshot)
	for _, s := range report.Submetrics {
		root, _, _ := strings.Cut(s.Name, "{")
		subs[root] = append(subs[root], s)
	}

	var groups []metricGroup
	for _, s := range report.Metrics {
		if s.Count == 0 && s.Kind != metrics.KindGauge {
			continue
		}
		groups = append(groups, metricGroup{Root: s, Subs: subs[s.Name]})
	}
	return groups
}

// templateFuncs returns the template helper functions.
func templateFuncs() template.FuncMap {
	return template.FuncMap{
		"formatDuration": formatDuration,
		"formatNumber":   formatNumber,
		"metricValue":    metricValue,
		"percent":        percent,
	}
}

// metricValue renders the headline statistics of a snapshot.
func metricValue(s metrics.Snapshot) string {
	switch s.Kind {
	case metrics.KindCounter:
		if s.Name == metrics.DataReceived || strings.HasPrefix(s.Name, metrics.DataReceived+"{") {
			return fmt.Sprintf("%s (%s/s)", formatBytes(int64(s.Value)), formatBytes(int64(s.Rate)))
		}
		return fmt.Sprintf("%s (%.2f/s)", formatNumber(int64(s.Value)), s.Rate)
	case metrics.KindGauge:
		return fmt.Sprintf("%g (min %g, max %g)", s.Value, s.Min, s.Max)
	case metrics.KindRate:
		return fmt.Sprintf("%s (%d of %d)", percent(s.Rate), s.Hits, s.Count)
	default:
		return fmt.Sprintf("avg %s, med %s, p(90) %s, p(95) %s, p(99) %s, max %s",
			formatMillis(s.Avg), formatMillis(s.Med), formatMillis(s.P90),
			formatMillis(s.P95), formatMillis(s.P99), formatMillis(s.Max))
	}
}

func percent(f float64) string {
	return fmt.Sprintf("%.2f%%", f*100)
}

// formatDuration formats a duration in a human-readable way.
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	if d < time.Hour {
		mins := int(d.Minutes())
		secs := int(d.Seconds()) % 60
		if secs == 0 {
			return fmt.Sprintf("%dm", mins)
		}
		return fmt.Sprintf("%dm %ds", mins, secs)
	}
	hours := int(d.Hours())
	mins := int(d.Minutes()) % 60
	if mins == 0 {
		return fmt.Sprintf("%dh", hours)
	}
	return fmt.Sprintf("%dh %dm", hours, mins)
}

// formatMillis formats a trend value recorded in milliseconds.
func formatMillis(ms float64) string {
	switch {
	case ms <= 0:
		return "0"
	case ms < 1:
		return fmt.Sprintf("%.0fµs", ms*1000)
	case ms < 100:
		return fmt.Sprintf("%.2fms", ms)
	case ms < 1000:
		return fmt.Sprintf("%.0fms", ms)
	default:
		return fmt.Sprintf("%.2fs", ms/1000)
	}
}

// formatNumber formats a large number with commas.
func formatNumber(n int64) string {
	if n < 0 {
		return "-" + formatNumber(-n)
	}
	str := fmt.Sprintf("%d", n)
	if len(str) <= 3 {
		return str
	}

	var b strings.Builder
	for i, c := range str {
		if i > 0 && (len(str)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(c)
	}
	return b.String()
}

// formatBytes formats bytes in a human-readable way.
func formatBytes(bytes int64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
	)

	switch {
	case bytes >= GB:
		return fmt.Sprintf("%.2f GB", float64(bytes)/GB)
	case bytes >= MB:
		return fmt.Sprintf("%.2f MB", float64(bytes)/MB)
	case bytes >= KB:
		return fmt.Sprintf("%.2f KB", float64(bytes)/KB)
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}
