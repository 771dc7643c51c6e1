// Package metrics provides the named-metric aggregator shared by every
// virtual user during a run.
package metrics

import (
	"fmt"
	"sort"
	"strings"
)

// Kind identifies how samples of a metric are aggregated.
type Kind string

const (
	// KindCounter sums sample values.
	KindCounter Kind = "counter"
	// KindGauge keeps the last value plus min/max.
	KindGauge Kind = "gauge"
	// KindRate tracks the fraction of non-zero samples.
	KindRate Kind = "rate"
	// KindTrend keeps a distribution and answers percentile queries.
	KindTrend Kind = "trend"
)

// Valid reports whether k is a known metric kind.
func (k Kind) Valid() bool {
	switch k {
	case KindCounter, KindGauge, KindRate, KindTrend:
		return true
	default:
		return false
	}
}

// Built-in metric names.
const (
	HTTPReqs          = "http_reqs"
	HTTPReqDuration   = "http_req_duration"
	HTTPReqFailed     = "http_req_failed"
	DataReceived      = "data_received"
	Iterations        = "iterations"
	IterationDuration = "iteration_duration"
	VUs               = "vus"
	VUsMax            = "vus_max"
	Errors            = "errors"
	PRCreateSkipped   = "pr_create_skipped"
	PRMerged          = "pr_merged"
)

// BuiltinKinds lists the metrics registered by NewEngine.
var BuiltinKinds = map[string]Kind{
	HTTPReqs:          KindCounter,
	HTTPReqDuration:   KindTrend,
	HTTPReqFailed:     KindRate,
	DataReceived:      KindCounter,
	Iterations:        KindCounter,
	IterationDuration: KindTrend,
	VUs:               KindGauge,
	VUsMax:            KindGauge,
	Errors:            KindRate,
	PRCreateSkipped:   KindCounter,
	PRMerged:          KindCounter,
}

// Tags are key/value labels attached to a sample.
type Tags map[string]string

// With returns a copy of t with the given pairs added.
// Pairs are read as key, value, key, value...
func (t Tags) With(kv ...string) Tags {
	out := make(Tags, len(t)+len(kv)/2)
	for k, v := range t {
		out[k] = v
	}
	for i := 0; i+1 < len(kv); i += 2 {
		out[kv[i]] = kv[i+1]
	}
	return out
}

// Matches reports whether t contains every pair in sel.
func (t Tags) Matches(sel Tags) bool {
	for k, v := range sel {
		if t[k] != v {
			return false
		}
	}
	return true
}

// String renders the tags sorted by key, e.g. "scenario:smoke,test_type:smoke".
func (t Tags) String() string {
	keys := make([]string, 0, len(t))
	for k := range t {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+":"+t[k])
	}
	return strings.Join(parts, ",")
}

// ParseSelector splits "name{k:v,k2:v2}" into the metric name and its tag
// selector. A name without braces returns a nil selector.
func ParseSelector(s string) (string, Tags, error) {
	s = strings.TrimSpace(s)
	open := strings.IndexByte(s, '{')
	if open < 0 {
		if s == "" || strings.ContainsAny(s, "}:,") {
			return "", nil, fmt.Errorf("invalid metric name %q", s)
		}
		return s, nil, nil
	}

	if !strings.HasSuffix(s, "}") {
		return "", nil, fmt.Errorf("invalid selector %q: missing closing brace", s)
	}

	name := strings.TrimSpace(s[:open])
	if name == "" {
		return "", nil, fmt.Errorf("invalid selector %q: empty metric name", s)
	}

	body := strings.TrimSpace(s[open+1 : len(s)-1])
	if body == "" {
		return "", nil, fmt.Errorf("invalid selector %q: empty tag set", s)
	}

	sel := make(Tags)
	for _, pair := range strings.Split(body, ",") {
		k, v, ok := strings.Cut(pair, ":")
		k, v = strings.TrimSpace(k), strings.TrimSpace(v)
		if !ok || k == "" || v == "" {
			return "", nil, fmt.Errorf("invalid selector %q: bad pair %q", s, pair)
		}
		sel[k] = v
	}
	return name, sel, nil
}

// Snapshot is a consistent point-in-time copy of one metric.
type Snapshot struct {
	Name string `json:"name"`
	Kind Kind   `json:"kind"`

	// Count is the number of samples recorded.
	Count int64 `json:"count"`

	// Counter: total and per-second rate. Gauge: last value.
	Value float64 `json:"value"`

	// Rate: fraction of hits for rate metrics, per-second rate for counters.
	Rate float64 `json:"rate"`
	Hits int64   `json:"hits,omitempty"`

	// Trend and gauge statistics.
	Min float64 `json:"min"`
	Max float64 `json:"max"`
	Sum float64 `json:"sum,omitempty"`
	Avg float64 `json:"avg,omitempty"`
	Med float64 `json:"med,omitempty"`
	P90 float64 `json:"p90,omitempty"`
	P95 float64 `json:"p95,omitempty"`
	P99 float64 `json:"p99,omitempty"`

	dist    distribution
	pending *trendSamples
}

// Misses is the number of rate samples that were not hits.
func (s Snapshot) Misses() int64 {
	return s.Count - s.Hits
}

// Percentile returns the p-th percentile (0-100) of a trend snapshot.
// It returns 0 for non-trend metrics or empty trends.
func (s Snapshot) Percentile(p float64) float64 {
	if s.dist == nil {
		return 0
	}
	return s.dist.percentile(p)
}

// distribution answers percentile queries over a frozen sample set.
type distribution interface {
	percentile(p float64) float64
}
