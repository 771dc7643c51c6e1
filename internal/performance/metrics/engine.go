package metrics

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Engine aggregates named metrics recorded by virtual users.
//
// Metrics are created lazily on first use. Each metric owns its own lock,
// so VUs writing different metrics never contend; the registry map is only
// write-locked when a new name appears.
//
// Submetrics are declared with RegisterSubmetric (usually for a threshold
// such as "http_req_duration{scenario:baseline}"). Every sample recorded on
// the parent whose tags match the selector is also folded into the
// submetric.
//
// # Thread Safety
//
// Engine is safe for concurrent use.
type Engine struct {
	mu      sync.RWMutex
	metrics map[string]*Metric
	pending map[string][]Tags

	activeVUs atomic.Int64
	maxVUs    atomic.Int64

	startTime time.Time
	config    EngineConfig
}

// EngineConfig contains configuration for the metrics engine.
type EngineConfig struct {
	// TrendExactLimit is the number of trend samples kept for exact
	// percentiles (default: 10000). Past it, the HDR histogram answers.
	TrendExactLimit int

	// HistogramMin is the minimum recordable value in microseconds (default: 1)
	HistogramMin int64

	// HistogramMax is the maximum recordable value in microseconds (default: 3600000000 = 1 hour)
	HistogramMax int64

	// HistogramSigFigs is the number of significant figures (default: 3)
	HistogramSigFigs int
}

// DefaultEngineConfig returns the default configuration.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		TrendExactLimit:  10000,
		HistogramMin:     1,
		HistogramMax:     3600000000, // 1 hour in microseconds
		HistogramSigFigs: 3,
	}
}

// Metric is a named aggregate plus its submetrics.
type Metric struct {
	Name string
	Kind Kind

	mu   sync.Mutex
	sink sink
	subs []*submetric
}

type submetric struct {
	name string
	tags Tags
	sink sink
}

// NewEngine creates a metrics engine with the built-in metrics registered.
func NewEngine() *Engine {
	return NewEngineWithConfig(DefaultEngineConfig())
}

// NewEngineWithConfig creates a metrics engine with custom configuration.
func NewEngineWithConfig(config EngineConfig) *Engine {
	def := DefaultEngineConfig()
	if config.TrendExactLimit <= 0 {
		config.TrendExactLimit = def.TrendExactLimit
	}
	if config.HistogramMin <= 0 {
		config.HistogramMin = def.HistogramMin
	}
	if config.HistogramMax <= config.HistogramMin {
		config.HistogramMax = def.HistogramMax
	}
	if config.HistogramSigFigs <= 0 {
		config.HistogramSigFigs = def.HistogramSigFigs
	}

	e := &Engine{
		metrics:   make(map[string]*Metric),
		pending:   make(map[string][]Tags),
		startTime: time.Now(),
		config:    config,
	}
	for name, kind := range BuiltinKinds {
		e.Register(name, kind)
	}
	return e
}

// Register returns the metric with the given name, creating it with kind
// if it does not exist yet. An existing metric keeps its original kind.
func (e *Engine) Register(name string, kind Kind) *Metric {
	e.mu.RLock()
	m, ok := e.metrics[name]
	e.mu.RUnlock()
	if ok {
		return m
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if m, ok := e.metrics[name]; ok {
		return m
	}

	if !kind.Valid() {
		kind = KindTrend
	}
	m = &Metric{Name: name, Kind: kind, sink: newSink(kind, e.config)}
	for _, sel := range e.pending[name] {
		m.subs = append(m.subs, e.newSubmetric(m, sel))
	}
	delete(e.pending, name)
	e.metrics[name] = m
	return m
}

// RegisterSubmetric declares a tag submetric such as
// "http_req_duration{scenario:smoke}". The parent may not exist yet; the
// submetric is attached when it is created. Registering the same selector
// twice is a no-op.
func (e *Engine) RegisterSubmetric(selector string) error {
	name, sel, err := ParseSelector(selector)
	if err != nil {
		return err
	}
	if sel == nil {
		return nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	m, ok := e.metrics[name]
	if !ok {
		for _, existing := range e.pending[name] {
			if existing.String() == sel.String() {
				return nil
			}
		}
		e.pending[name] = append(e.pending[name], sel)
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, sub := range m.subs {
		if sub.tags.String() == sel.String() {
			return nil
		}
	}
	m.subs = append(m.subs, e.newSubmetric(m, sel))
	return nil
}

func (e *Engine) newSubmetric(m *Metric, sel Tags) *submetric {
	return &submetric{
		name: m.Name + "{" + sel.String() + "}",
		tags: sel,
		sink: newSink(m.Kind, e.config),
	}
}

// add folds one sample into the metric and matching submetrics.
func (m *Metric) add(value float64, tags Tags) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.sink.add(value)
	for _, sub := range m.subs {
		if tags.Matches(sub.tags) {
			sub.sink.add(value)
		}
	}
}

// Record adds a sample to the named metric. Unknown names become trends.
// Trends drop NaN and infinite values: they are not counted and do not
// move any statistic.
func (e *Engine) Record(name string, value float64, tags Tags) {
	e.Register(name, KindTrend).add(value, tags)
}

// RecordSuccess records an outcome on a rate metric. A failed outcome
// (ok == false) is the rate's hit, so the rate reads as a failure fraction.
func (e *Engine) RecordSuccess(name string, ok bool, tags Tags) {
	v := 0.0
	if !ok {
		v = 1
	}
	e.Register(name, KindRate).add(v, tags)
}

// Add increments a counter.
func (e *Engine) Add(name string, delta float64, tags Tags) {
	e.Register(name, KindCounter).add(delta, tags)
}

// Set updates a gauge.
func (e *Engine) Set(name string, value float64, tags Tags) {
	e.Register(name, KindGauge).add(value, tags)
}

// RecordDuration records d in milliseconds on a trend.
func (e *Engine) RecordDuration(name string, d time.Duration, tags Tags) {
	e.Record(name, float64(d)/float64(time.Millisecond), tags)
}

// Snapshot returns a point-in-time copy of a metric. The name may carry a
// "{tag:value}" selector naming a registered submetric.
func (e *Engine) Snapshot(name string) (Snapshot, bool) {
	base, sel, err := ParseSelector(name)
	if err != nil {
		return Snapshot{}, false
	}

	e.mu.RLock()
	m, ok := e.metrics[base]
	e.mu.RUnlock()
	if !ok {
		return Snapshot{}, false
	}

	if sel == nil {
		return e.snapshotOf(m.Name, m.Kind, m.sink, &m.mu), true
	}

	want := sel.String()
	m.mu.Lock()
	var found *submetric
	for _, sub := range m.subs {
		if sub.tags.String() == want {
			found = sub
			break
		}
	}
	m.mu.Unlock()
	if found == nil {
		return Snapshot{}, false
	}
	return e.snapshotOf(found.name, m.Kind, found.sink, &m.mu), true
}

func (e *Engine) snapshotOf(name string, kind Kind, s sink, mu *sync.Mutex) Snapshot {
	snap := Snapshot{Name: name, Kind: kind}

	mu.Lock()
	s.fill(&snap)
	mu.Unlock()
	snap.summarize()

	if kind == KindCounter {
		if secs := e.Elapsed().Seconds(); secs > 0 {
			snap.Rate = snap.Value / secs
		}
	}
	return snap
}

// Snapshots returns every root metric sorted by name.
func (e *Engine) Snapshots() []Snapshot {
	e.mu.RLock()
	list := make([]*Metric, 0, len(e.metrics))
	for _, m := range e.metrics {
		list = append(list, m)
	}
	e.mu.RUnlock()

	sort.Slice(list, func(i, j int) bool { return list[i].Name < list[j].Name })

	out := make([]Snapshot, 0, len(list))
	for _, m := range list {
		out = append(out, e.snapshotOf(m.Name, m.Kind, m.sink, &m.mu))
	}
	return out
}

// Submetrics returns snapshots of every registered submetric sorted by name.
func (e *Engine) Submetrics() []Snapshot {
	e.mu.RLock()
	list := make([]*Metric, 0, len(e.metrics))
	for _, m := range e.metrics {
		list = append(list, m)
	}
	e.mu.RUnlock()

	var out []Snapshot
	for _, m := range list {
		m.mu.Lock()
		subs := make([]*submetric, len(m.subs))
		copy(subs, m.subs)
		m.mu.Unlock()

		for _, sub := range subs {
			out = append(out, e.snapshotOf(sub.name, m.Kind, sub.sink, &m.mu))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Has reports whether a root metric with the given name exists.
func (e *Engine) Has(name string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	_, ok := e.metrics[name]
	return ok
}

// AdjustActiveVUs changes the live VU count by delta and keeps the vus and
// vus_max gauges in step.
func (e *Engine) AdjustActiveVUs(delta int) {
	now := e.activeVUs.Add(int64(delta))
	for {
		peak := e.maxVUs.Load()
		if now <= peak || e.maxVUs.CompareAndSwap(peak, now) {
			break
		}
	}
	e.Set(VUs, float64(now), nil)
	e.Set(VUsMax, float64(e.maxVUs.Load()), nil)
}

// ActiveVUs returns the live VU count.
func (e *Engine) ActiveVUs() int {
	return int(e.activeVUs.Load())
}

// MaxVUs returns the highest live VU count seen.
func (e *Engine) MaxVUs() int {
	return int(e.maxVUs.Load())
}

// MarkStart resets the reference instant used for per-second counter rates.
func (e *Engine) MarkStart(t time.Time) {
	e.mu.Lock()
	e.startTime = t
	e.mu.Unlock()
}

// Elapsed returns the time since the start instant.
func (e *Engine) Elapsed() time.Duration {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.startTime.IsZero() {
		return 0
	}
	return time.Since(e.startTime)
}
