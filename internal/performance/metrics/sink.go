package metrics

import (
	"math"
	"sort"

	"github.com/HdrHistogram/hdrhistogram-go"
)

// sink aggregates the samples of one metric (or submetric).
// Implementations are not safe for concurrent use; Metric holds the lock.
type sink interface {
	add(value float64)
	fill(s *Snapshot)
}

func newSink(kind Kind, cfg EngineConfig) sink {
	switch kind {
	case KindCounter:
		return &counterSink{}
	case KindGauge:
		return &gaugeSink{}
	case KindRate:
		return &rateSink{}
	default:
		return newTrendSink(cfg)
	}
}

type counterSink struct {
	count int64
	total float64
}

func (c *counterSink) add(value float64) {
	c.count++
	c.total += value
}

func (c *counterSink) fill(s *Snapshot) {
	s.Count = c.count
	s.Value = c.total
	s.Sum = c.total
}

type gaugeSink struct {
	count    int64
	last     float64
	min, max float64
}

func (g *gaugeSink) add(value float64) {
	if g.count == 0 || value < g.min {
		g.min = value
	}
	if g.count == 0 || value > g.max {
		g.max = value
	}
	g.last = value
	g.count++
}

func (g *gaugeSink) fill(s *Snapshot) {
	s.Count = g.count
	s.Value = g.last
	s.Min = g.min
	s.Max = g.max
}

// rateSink counts hits: samples with a non-zero value.
type rateSink struct {
	hits  int64
	total int64
}

func (r *rateSink) add(value float64) {
	r.total++
	if value != 0 {
		r.hits++
	}
}

func (r *rateSink) fill(s *Snapshot) {
	s.Count = r.total
	s.Hits = r.hits
	if r.total > 0 {
		s.Rate = float64(r.hits) / float64(r.total)
	}
}

// trendSink keeps every sample until exactLimit is reached, then answers
// from the HDR histogram alone. Values are milliseconds; the histogram
// stores microseconds.
type trendSink struct {
	count    int64
	sum      float64
	min, max float64

	values     []float64
	exactLimit int

	hist       *hdrhistogram.Histogram
	histMin    int64
	histMax    int64
	overflowed bool
}

func newTrendSink(cfg EngineConfig) *trendSink {
	return &trendSink{
		exactLimit: cfg.TrendExactLimit,
		hist:       hdrhistogram.New(cfg.HistogramMin, cfg.HistogramMax, cfg.HistogramSigFigs),
		histMin:    cfg.HistogramMin,
		histMax:    cfg.HistogramMax,
	}
}

func (t *trendSink) add(value float64) {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return
	}

	if t.count == 0 || value < t.min {
		t.min = value
	}
	if t.count == 0 || value > t.max {
		t.max = value
	}
	t.count++
	t.sum += value

	micros := int64(math.Round(value * 1000))
	if micros < t.histMin {
		micros = t.histMin
	}
	if micros > t.histMax {
		micros = t.histMax
	}
	_ = t.hist.RecordValue(micros)

	if t.overflowed {
		return
	}
	if t.count > int64(t.exactLimit) {
		t.overflowed = true
		t.values = nil
		return
	}
	t.values = append(t.values, value)
}

func (t *trendSink) fill(s *Snapshot) {
	s.Count = t.count
	s.Sum = t.sum
	if t.count == 0 {
		return
	}

	s.Min = t.min
	s.Max = t.max
	s.Avg = t.sum / float64(t.count)

	// Only copy here; sorting and quantiles run in summarize, outside the
	// metric lock.
	if t.overflowed {
		s.pending = &trendSamples{hist: t.hist.Export()}
	} else {
		s.pending = &trendSamples{values: append([]float64(nil), t.values...)}
	}
}

// trendSamples is a trend's raw sample copy awaiting summarize.
type trendSamples struct {
	values []float64
	hist   *hdrhistogram.Snapshot
}

// summarize builds the percentile distribution of a trend snapshot. The
// snapshot owns its sample copy, so no lock is needed.
func (s *Snapshot) summarize() {
	p := s.pending
	if p == nil {
		return
	}
	s.pending = nil

	if p.hist != nil {
		s.dist = histDistribution{hist: hdrhistogram.Import(p.hist)}
	} else {
		sort.Float64s(p.values)
		s.dist = exactDistribution(p.values)
	}

	s.Med = s.dist.percentile(50)
	s.P90 = s.dist.percentile(90)
	s.P95 = s.dist.percentile(95)
	s.P99 = s.dist.percentile(99)
}

// exactDistribution is a sorted sample copy.
type exactDistribution []float64

// percentile interpolates linearly between the two closest ranks.
func (d exactDistribution) percentile(p float64) float64 {
	n := len(d)
	if n == 0 {
		return 0
	}
	if p <= 0 {
		return d[0]
	}
	if p >= 100 {
		return d[n-1]
	}

	rank := p / 100 * float64(n-1)
	lower := int(math.Floor(rank))
	upper := int(math.Ceil(rank))
	if lower == upper {
		return d[lower]
	}
	frac := rank - float64(lower)
	return d[lower] + frac*(d[upper]-d[lower])
}

type histDistribution struct {
	hist *hdrhistogram.Histogram
}

func (d histDistribution) percentile(p float64) float64 {
	if d.hist.TotalCount() == 0 {
		return 0
	}
	return float64(d.hist.ValueAtQuantile(p)) / 1000
}
