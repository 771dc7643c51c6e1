package performance

import (
	"context"
	"crypto/tls"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/wesleyorama2/prload/internal/logging"
	"github.com/wesleyorama2/prload/internal/performance/metrics"
)

// VUIDSource hands out VU indexes for a whole run. Indexes start at 1 and
// are never reused, even across scenarios.
type VUIDSource struct {
	next atomic.Int64
}

// Next returns an unused VU index.
func (s *VUIDSource) Next() int {
	return int(s.next.Add(1))
}

// Issued returns how many indexes were handed out.
func (s *VUIDSource) Issued() int {
	return int(s.next.Load())
}

// SchedulerOptions tunes how VUs are run.
type SchedulerOptions struct {
	// IDs is the run-wide index allocator. A private one is created if nil.
	IDs *VUIDSource

	// Iterations caps iterations per VU (0 = unlimited).
	Iterations int64

	// Pacer returns the wait between iterations (nil = none).
	Pacer func() time.Duration

	Logger *zap.Logger
}

// VUScheduler manages the Virtual Users of one scenario.
//
// It provides:
// - incremental reconciliation towards a target VU count
// - LIFO retirement on ramp down
// - graceful drain with a hard-interrupt fallback
//
// VUs that were retired count as live until their goroutine exits, so a
// ramp down followed by a ramp up never exceeds the requested target.
type VUScheduler struct {
	scenario *Scenario
	metrics  *metrics.Engine
	opts     SchedulerOptions
	logger   *zap.Logger

	// VUs in spawn order
	vus   []*VirtualUser
	vusMu sync.Mutex

	wg         sync.WaitGroup
	iterations atomic.Int64
	spawned    atomic.Int64
}

// NewVUScheduler creates a new VU scheduler.
func NewVUScheduler(scenario *Scenario, metricsEngine *metrics.Engine, opts SchedulerOptions) *VUScheduler {
	if opts.IDs == nil {
		opts.IDs = &VUIDSource{}
	}
	logger := logging.OrNop(opts.Logger)
	if scenario != nil {
		logger = logger.With(zap.String("scenario", scenario.Name))
	}

	return &VUScheduler{
		scenario: scenario,
		metrics:  metricsEngine,
		opts:     opts,
		logger:   logger,
	}
}

// Reconcile moves the VU population towards target.
//
// Retired VUs still running are counted as live, so no VU is spawned while
// they exit. Returns the number of live VUs after the adjustment.
func (s *VUScheduler) Reconcile(ctx context.Context, target int) int {
	if target < 0 {
		target = 0
	}

	s.vusMu.Lock()
	defer s.vusMu.Unlock()

	s.pruneLocked()

	active := 0
	for _, vu := range s.vus {
		if !vu.IsRetired() {
			active++
		}
	}

	switch {
	case active > target:
		excess := active - target
		for i := len(s.vus) - 1; i >= 0 && excess > 0; i-- {
			if s.vus[i].IsRetired() {
				continue
			}
			s.vus[i].RequestStop()
			excess--
		}
		s.logger.Debug("retiring VUs", zap.Int("active", active), zap.Int("target", target))

	case len(s.vus) < target && ctx.Err() == nil:
		for n := len(s.vus); n < target; n++ {
			s.spawnLocked(ctx)
		}
		s.logger.Debug("spawned VUs", zap.Int("live", len(s.vus)), zap.Int("target", target))
	}

	return len(s.vus)
}

// pruneLocked drops retired VUs whose goroutine has exited.
func (s *VUScheduler) pruneLocked() {
	kept := s.vus[:0]
	for _, vu := range s.vus {
		if vu.IsRetired() && vu.GetState() == VUStateStopped {
			continue
		}
		kept = append(kept, vu)
	}
	for i := len(kept); i < len(s.vus); i++ {
		s.vus[i] = nil
	}
	s.vus = kept
}

func (s *VUScheduler) spawnLocked(ctx context.Context) {
	vu := NewVirtualUser(ctx, s.opts.IDs.Next(), s.scenario, s.metrics)
	s.vus = append(s.vus, vu)
	s.spawned.Add(1)

	s.wg.Add(1)
	go s.runVU(vu)
}

// runVU runs iterations until the VU is retired, interrupted or reaches
// its iteration cap.
func (s *VUScheduler) runVU(vu *VirtualUser) {
	defer s.wg.Done()
	defer vu.MarkStopped()

	if s.metrics != nil {
		s.metrics.AdjustActiveVUs(1)
		defer s.metrics.AdjustActiveVUs(-1)
	}

	for {
		if vu.IsRetired() || vu.Interrupted() {
			return
		}
		if s.opts.Iterations > 0 && vu.GetIteration() >= s.opts.Iterations {
			return
		}

		if err := vu.RunIteration(); err != nil {
			s.logger.Debug("iteration ended with error", zap.Int("vu", vu.ID), zap.Error(err))
			if vu.IsRetired() || vu.Interrupted() {
				return
			}
		}
		s.iterations.Add(1)

		if s.opts.Pacer != nil && !vu.IsRetired() {
			if d := s.opts.Pacer(); d > 0 && !vu.pause(d) {
				return
			}
		}
	}
}

// Live returns the number of VUs that have not been pruned, including
// retired VUs still finishing an iteration.
func (s *VUScheduler) Live() int {
	s.vusMu.Lock()
	defer s.vusMu.Unlock()
	s.pruneLocked()
	return len(s.vus)
}

// VUs returns the live VUs in spawn order.
func (s *VUScheduler) VUs() []*VirtualUser {
	s.vusMu.Lock()
	defer s.vusMu.Unlock()

	out := make([]*VirtualUser, len(s.vus))
	copy(out, s.vus)
	return out
}

// Running returns the number of VU goroutines that have not exited.
func (s *VUScheduler) Running() int {
	s.vusMu.Lock()
	defer s.vusMu.Unlock()

	n := 0
	for _, vu := range s.vus {
		if vu.GetState() != VUStateStopped {
			n++
		}
	}
	return n
}

// Iterations returns the number of completed iterations.
func (s *VUScheduler) Iterations() int64 {
	return s.iterations.Load()
}

// Spawned returns the number of VUs spawned so far.
func (s *VUScheduler) Spawned() int64 {
	return s.spawned.Load()
}

// RetireAll requests every VU to stop after its current iteration.
func (s *VUScheduler) RetireAll() {
	s.vusMu.Lock()
	defer s.vusMu.Unlock()

	for _, vu := range s.vus {
		vu.RequestStop()
	}
}

// InterruptAll hard-stops every VU and returns how many were still running.
func (s *VUScheduler) InterruptAll() int {
	s.vusMu.Lock()
	defer s.vusMu.Unlock()

	n := 0
	for _, vu := range s.vus {
		if vu.GetState() != VUStateStopped {
			n++
		}
		vu.Interrupt()
	}
	return n
}

// Wait waits for every VU goroutine to exit. It returns false if timeout
// elapsed first.
func (s *VUScheduler) Wait(timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-done:
		return true
	case <-timer.C:
		return false
	}
}

// Drain retires every VU and waits up to gracefulStop for them to finish
// their iteration. VUs still running after that are interrupted; Drain
// then waits for their in-flight request to complete. Returns the number
// of interrupted VUs.
func (s *VUScheduler) Drain(gracefulStop time.Duration) int {
	s.RetireAll()
	if s.Wait(gracefulStop) {
		return 0
	}

	n := s.InterruptAll()
	s.logger.Info("graceful stop expired, interrupting VUs",
		zap.Duration("gracefulStop", gracefulStop), zap.Int("vus", n))
	s.wg.Wait()
	return n
}

// HTTPClientConfig contains HTTP client configuration.
type HTTPClientConfig struct {
	// Timeout for HTTP requests
	Timeout time.Duration

	// MaxIdleConns controls the maximum number of idle connections
	MaxIdleConns int

	// MaxIdleConnsPerHost controls the maximum idle connections per host
	MaxIdleConnsPerHost int

	// MaxConnsPerHost limits the total connections per host
	MaxConnsPerHost int

	// IdleConnTimeout is how long idle connections are kept alive
	IdleConnTimeout time.Duration

	// DisableKeepAlives disables HTTP keep-alives
	DisableKeepAlives bool

	// InsecureSkipVerify skips TLS certificate verification
	InsecureSkipVerify bool
}

// DefaultHTTPClientConfig returns sensible defaults for load testing.
func DefaultHTTPClientConfig() HTTPClientConfig {
	return HTTPClientConfig{
		Timeout:             30 * time.Second,
		MaxIdleConns:        1000,
		MaxIdleConnsPerHost: 100,
		MaxConnsPerHost:     0, // Unlimited
		IdleConnTimeout:     90 * time.Second,
	}
}

// NewHTTPClient creates the HTTP client shared by every VU of a run.
func NewHTTPClient(cfg HTTPClientConfig) *http.Client {
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        cfg.MaxIdleConns,
		MaxIdleConnsPerHost: cfg.MaxIdleConnsPerHost,
		MaxConnsPerHost:     cfg.MaxConnsPerHost,
		IdleConnTimeout:     cfg.IdleConnTimeout,
		DisableKeepAlives:   cfg.DisableKeepAlives,
	}
	if cfg.InsecureSkipVerify {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // opt-in for test targets
	}

	return &http.Client{
		Transport: transport,
		Timeout:   cfg.Timeout,
	}
}
