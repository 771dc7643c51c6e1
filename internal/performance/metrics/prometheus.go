package metrics

import (
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const promNamespace = "prload"

// Collector exposes engine snapshots as Prometheus metrics.
//
// The metric set grows while a run is in progress, so Collector is an
// unchecked collector: Describe sends nothing and every scrape reads fresh
// snapshots.
type Collector struct {
	engine *Engine
}

// NewCollector creates a collector reading from engine.
func NewCollector(engine *Engine) *Collector {
	return &Collector{engine: engine}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(chan<- *prometheus.Desc) {}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	for _, snap := range c.engine.Snapshots() {
		name := promName(snap.Name)

		switch snap.Kind {
		case KindCounter:
			desc := prometheus.NewDesc(name+"_total", "prload counter "+snap.Name, nil, nil)
			ch <- prometheus.MustNewConstMetric(desc, prometheus.CounterValue, snap.Value)

		case KindGauge:
			desc := prometheus.NewDesc(name, "prload gauge "+snap.Name, nil, nil)
			ch <- prometheus.MustNewConstMetric(desc, prometheus.GaugeValue, snap.Value)

		case KindRate:
			outcomes := prometheus.NewDesc(name+"_samples_total", "prload rate samples "+snap.Name, []string{"hit"}, nil)
			ch <- prometheus.MustNewConstMetric(outcomes, prometheus.CounterValue, float64(snap.Hits), "true")
			ch <- prometheus.MustNewConstMetric(outcomes, prometheus.CounterValue, float64(snap.Misses()), "false")

			ratio := prometheus.NewDesc(name+"_ratio", "prload rate "+snap.Name, nil, nil)
			ch <- prometheus.MustNewConstMetric(ratio, prometheus.GaugeValue, snap.Rate)

		case KindTrend:
			desc := prometheus.NewDesc(name, "prload trend "+snap.Name, nil, nil)
			quantiles := map[float64]float64{
				0.5:  snap.Med,
				0.9:  snap.P90,
				0.95: snap.P95,
				0.99: snap.P99,
			}
			ch <- prometheus.MustNewConstSummary(desc, uint64(snap.Count), snap.Sum, quantiles)
		}
	}

	active := prometheus.NewDesc(promNamespace+"_active_vus", "Live virtual users", nil, nil)
	ch <- prometheus.MustNewConstMetric(active, prometheus.GaugeValue, float64(c.engine.ActiveVUs()))
}

// Handler returns an HTTP handler serving engine metrics on a private
// registry.
func Handler(engine *Engine) http.Handler {
	registry := prometheus.NewRegistry()
	registry.MustRegister(NewCollector(engine))
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}

func promName(name string) string {
	var b strings.Builder
	b.WriteString(promNamespace)
	b.WriteByte('_')
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}
