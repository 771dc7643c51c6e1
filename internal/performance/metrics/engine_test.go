package metrics

import (
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEngine(t *testing.T) {
	engine := NewEngine()

	for name, kind := range BuiltinKinds {
		snap, ok := engine.Snapshot(name)
		if !ok {
			t.Fatalf("built-in metric %s not registered", name)
		}
		if snap.Kind != kind {
			t.Errorf("%s kind = %s, want %s", name, snap.Kind, kind)
		}
		if snap.Count != 0 {
			t.Errorf("%s count = %d, want 0", name, snap.Count)
		}
	}
}

func TestEngine_RecordLazilyCreatesTrend(t *testing.T) {
	engine := NewEngine()

	engine.Record("custom_latency", 12, nil)

	snap, ok := engine.Snapshot("custom_latency")
	require.True(t, ok)
	assert.Equal(t, KindTrend, snap.Kind)
	assert.Equal(t, int64(1), snap.Count)
	assert.Equal(t, 12.0, snap.Max)
}

func TestEngine_RateIsFailureFraction(t *testing.T) {
	engine := NewEngine()

	// n successes, m failures -> m/(n+m)
	for i := 0; i < 7; i++ {
		engine.RecordSuccess(Errors, true, nil)
	}
	for i := 0; i < 3; i++ {
		engine.RecordSuccess(Errors, false, nil)
	}

	snap, ok := engine.Snapshot(Errors)
	require.True(t, ok)
	assert.Equal(t, int64(10), snap.Count)
	assert.Equal(t, int64(3), snap.Hits)
	assert.Equal(t, int64(7), snap.Misses())
	assert.InDelta(t, 0.3, snap.Rate, 1e-9)
}

func TestEngine_EmptyRateIsZero(t *testing.T) {
	engine := NewEngine()

	snap, ok := engine.Snapshot(HTTPReqFailed)
	require.True(t, ok)
	assert.Equal(t, 0.0, snap.Rate)
}

func TestEngine_CounterAndGauge(t *testing.T) {
	engine := NewEngine()

	engine.Add(HTTPReqs, 1, nil)
	engine.Add(HTTPReqs, 1, nil)
	engine.Add(DataReceived, 512, nil)
	engine.Set("queue_depth", 4, nil)
	engine.Set("queue_depth", 9, nil)
	engine.Set("queue_depth", 2, nil)

	reqs, _ := engine.Snapshot(HTTPReqs)
	assert.Equal(t, 2.0, reqs.Value)
	assert.Greater(t, reqs.Rate, 0.0)

	data, _ := engine.Snapshot(DataReceived)
	assert.Equal(t, 512.0, data.Value)

	gauge, ok := engine.Snapshot("queue_depth")
	require.True(t, ok)
	assert.Equal(t, KindGauge, gauge.Kind)
	assert.Equal(t, 2.0, gauge.Value)
	assert.Equal(t, 2.0, gauge.Min)
	assert.Equal(t, 9.0, gauge.Max)
}

func TestEngine_KindMismatchFoldsIntoExistingSink(t *testing.T) {
	engine := NewEngine()

	// http_reqs is a counter; a trend-style Record adds to its total.
	engine.Record(HTTPReqs, 3, nil)

	snap, _ := engine.Snapshot(HTTPReqs)
	assert.Equal(t, KindCounter, snap.Kind)
	assert.Equal(t, 3.0, snap.Value)
}

func TestEngine_TrendExactPercentiles(t *testing.T) {
	engine := NewEngine()

	for _, v := range []float64{500, 100, 400, 200, 300} {
		engine.Record(HTTPReqDuration, v, nil)
	}

	snap, ok := engine.Snapshot(HTTPReqDuration)
	require.True(t, ok)

	assert.InDelta(t, 480.0, snap.P95, 1e-9)
	assert.InDelta(t, 300.0, snap.Med, 1e-9)
	assert.InDelta(t, 300.0, snap.Avg, 1e-9)
	assert.Equal(t, 100.0, snap.Min)
	assert.Equal(t, 500.0, snap.Max)
	assert.InDelta(t, 140.0, snap.Percentile(10), 1e-9)
	assert.Equal(t, 100.0, snap.Percentile(0))
	assert.Equal(t, 500.0, snap.Percentile(100))
}

func TestEngine_TrendFallsBackToHistogram(t *testing.T) {
	cfg := DefaultEngineConfig()
	cfg.TrendExactLimit = 100
	engine := NewEngineWithConfig(cfg)

	for i := 1; i <= 1000; i++ {
		engine.Record("latency", float64(i), nil)
	}

	snap, _ := engine.Snapshot("latency")
	assert.Equal(t, int64(1000), snap.Count)

	// 3 significant figures
	assert.InDelta(t, 950.0, snap.P95, 2)
	assert.InDelta(t, 500.0, snap.Med, 1)
	assert.Equal(t, 1.0, snap.Min)
	assert.Equal(t, 1000.0, snap.Max)
}

func TestTrendSink_SummarizesOutsideFill(t *testing.T) {
	for name, limit := range map[string]int{"exact": 100, "histogram": 10} {
		t.Run(name, func(t *testing.T) {
			cfg := DefaultEngineConfig()
			cfg.TrendExactLimit = limit
			sink := newTrendSink(cfg)
			for i := 1; i <= 20; i++ {
				sink.add(float64(i))
			}

			var snap Snapshot
			sink.fill(&snap)
			require.NotNil(t, snap.pending)
			assert.Zero(t, snap.P95, "quantiles are computed after fill")

			// writes after the lock is released do not leak into the copy
			for i := 0; i < 50; i++ {
				sink.add(1000)
			}

			snap.summarize()
			assert.Nil(t, snap.pending)
			assert.Equal(t, int64(20), snap.Count)
			assert.InDelta(t, 19.05, snap.P95, 0.1)
			assert.InDelta(t, 10.5, snap.Med, 0.6)
			assert.InDelta(t, 20.0, snap.Percentile(100), 0.05)
		})
	}
}

func TestEngine_TrendDropsNonFiniteValues(t *testing.T) {
	engine := NewEngine()
	engine.Record("t", 10, nil)
	engine.Record("t", math.NaN(), nil)
	engine.Record("t", math.Inf(1), nil)
	engine.Record("t", math.Inf(-1), nil)
	engine.Record("t", 30, nil)

	snap, ok := engine.Snapshot("t")
	require.True(t, ok)
	assert.Equal(t, int64(2), snap.Count)
	assert.Equal(t, 40.0, snap.Sum)
	assert.Equal(t, 20.0, snap.Avg)
	assert.Equal(t, 10.0, snap.Min)
	assert.Equal(t, 30.0, snap.Max)
}

func TestEngine_TrendDeterministic(t *testing.T) {
	record := func() Snapshot {
		engine := NewEngine()
		for i := 0; i < 500; i++ {
			engine.Record("t", math.Mod(float64(i)*37, 211), nil)
		}
		snap, _ := engine.Snapshot("t")
		return snap
	}

	a, b := record(), record()
	assert.Equal(t, a.P95, b.P95)
	assert.Equal(t, a.P99, b.P99)
	assert.Equal(t, a.Med, b.Med)
}

func TestEngine_Submetrics(t *testing.T) {
	engine := NewEngine()

	require.NoError(t, engine.RegisterSubmetric("http_req_duration{scenario:smoke}"))
	// Parent not created yet: attached when it appears.
	require.NoError(t, engine.RegisterSubmetric("checkout_time{test_type:stress}"))

	engine.Record(HTTPReqDuration, 10, Tags{"scenario": "smoke"})
	engine.Record(HTTPReqDuration, 20, Tags{"scenario": "smoke"})
	engine.Record(HTTPReqDuration, 900, Tags{"scenario": "stress"})
	engine.Record("checkout_time", 5, Tags{"test_type": "stress"})
	engine.Record("checkout_time", 7, Tags{"test_type": "smoke"})

	sub, ok := engine.Snapshot("http_req_duration{scenario:smoke}")
	require.True(t, ok)
	assert.Equal(t, int64(2), sub.Count)
	assert.Equal(t, 20.0, sub.Max)
	assert.Equal(t, "http_req_duration{scenario:smoke}", sub.Name)

	root, _ := engine.Snapshot(HTTPReqDuration)
	assert.Equal(t, int64(3), root.Count)

	checkout, ok := engine.Snapshot("checkout_time{test_type:stress}")
	require.True(t, ok)
	assert.Equal(t, int64(1), checkout.Count)

	_, ok = engine.Snapshot("http_req_duration{scenario:unknown}")
	assert.False(t, ok, "undeclared selector should not resolve")

	assert.Len(t, engine.Submetrics(), 2)
}

func TestEngine_RegisterSubmetricInvalid(t *testing.T) {
	engine := NewEngine()
	assert.Error(t, engine.RegisterSubmetric("http_req_duration{scenario}"))
	assert.Error(t, engine.RegisterSubmetric("{scenario:x}"))
	assert.NoError(t, engine.RegisterSubmetric("http_req_duration"))
}

func TestEngine_SnapshotsSorted(t *testing.T) {
	engine := NewEngine()
	engine.Record("zzz", 1, nil)
	engine.Record("aaa", 1, nil)

	snaps := engine.Snapshots()
	for i := 1; i < len(snaps); i++ {
		if snaps[i-1].Name > snaps[i].Name {
			t.Fatalf("snapshots not sorted: %s before %s", snaps[i-1].Name, snaps[i].Name)
		}
	}
}

func TestEngine_ConcurrentWrites(t *testing.T) {
	engine := NewEngine()

	const workers = 50
	const perWorker = 200

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			tags := Tags{"worker": "w"}
			for i := 0; i < perWorker; i++ {
				engine.Add(HTTPReqs, 1, tags)
				engine.RecordSuccess(Errors, i%4 != 0, tags)
				engine.Record(HTTPReqDuration, float64(i), tags)
			}
		}(w)
	}
	wg.Wait()

	reqs, _ := engine.Snapshot(HTTPReqs)
	assert.Equal(t, float64(workers*perWorker), reqs.Value)

	errs, _ := engine.Snapshot(Errors)
	assert.Equal(t, int64(workers*perWorker), errs.Count)
	assert.Equal(t, int64(workers*perWorker/4), errs.Hits)

	dur, _ := engine.Snapshot(HTTPReqDuration)
	assert.Equal(t, int64(workers*perWorker), dur.Count)
}

func TestEngine_ActiveVUs(t *testing.T) {
	engine := NewEngine()

	engine.AdjustActiveVUs(3)
	engine.AdjustActiveVUs(2)
	engine.AdjustActiveVUs(-4)

	assert.Equal(t, 1, engine.ActiveVUs())
	assert.Equal(t, 5, engine.MaxVUs())

	vus, _ := engine.Snapshot(VUs)
	assert.Equal(t, 1.0, vus.Value)
	max, _ := engine.Snapshot(VUsMax)
	assert.Equal(t, 5.0, max.Value)
}

func TestEngine_RecordDuration(t *testing.T) {
	engine := NewEngine()
	engine.RecordDuration(IterationDuration, 1500*time.Microsecond, nil)

	snap, _ := engine.Snapshot(IterationDuration)
	assert.InDelta(t, 1.5, snap.Max, 1e-9)
}
