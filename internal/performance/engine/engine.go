// Package engine runs a load test: it starts every scenario at its offset,
// collects metrics and evaluates thresholds into a Report.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/wesleyorama2/prload/internal/logging"
	"github.com/wesleyorama2/prload/internal/performance"
	"github.com/wesleyorama2/prload/internal/performance/config"
	"github.com/wesleyorama2/prload/internal/performance/executor"
	"github.com/wesleyorama2/prload/internal/performance/metrics"
	"github.com/wesleyorama2/prload/internal/performance/threshold"
	"github.com/wesleyorama2/prload/internal/workflow"
)

// ErrAlreadyRunning is returned by Run when the engine was already started.
var ErrAlreadyRunning = errors.New("engine is already running")

// Options configures an Engine.
type Options struct {
	Logger *zap.Logger

	// ClientOptions are appended to the options derived from the config.
	ClientOptions []workflow.ClientOption
}

// Engine orchestrates a test run.
//
// An Engine runs once. Metrics are available from Metrics() as soon as the
// engine is created, so exporters can be attached before Run.
type Engine struct {
	config        *config.TestConfig
	metricsEngine *metrics.Engine
	thresholds    *threshold.Evaluator
	client        *workflow.Client
	ids           *performance.VUIDSource
	logger        *zap.Logger

	runID     string
	scenarios []*ScenarioRunner

	mu        sync.RWMutex
	startTime time.Time
	started   bool
	running   bool
	cancel    context.CancelFunc

	aborted atomic.Bool
	breach  threshold.Result
}

// ScenarioRunner manages a single scenario's execution.
type ScenarioRunner struct {
	Name        string
	Workflow    string
	StartOffset time.Duration
	Config      *executor.Config
	Executor    executor.Executor
	Scheduler   *performance.VUScheduler

	started atomic.Bool
	err     error
}

// NewEngine validates cfg and prepares a run.
func NewEngine(cfg *config.TestConfig, opts Options) (*Engine, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	config.ApplyDefaults(cfg)

	logger := logging.OrNop(opts.Logger)
	runID := uuid.NewString()
	logger = logger.With(zap.String("run_id", runID))

	metricsEngine := metrics.NewEngineWithConfig(cfg.MetricsConfig())

	defs := cfg.ThresholdDefinitions()
	for _, def := range defs {
		if _, sel, _ := metrics.ParseSelector(def.Metric); len(sel) > 0 {
			if err := metricsEngine.RegisterSubmetric(def.Metric); err != nil {
				return nil, fmt.Errorf("threshold on %q: %w", def.Metric, err)
			}
		}
	}

	evaluator, err := threshold.New(defs, metricsEngine, logger)
	if err != nil {
		return nil, err
	}

	clientOpts := append(cfg.ClientOptions(), workflow.WithLogger(logger))
	clientOpts = append(clientOpts, opts.ClientOptions...)

	return &Engine{
		config:        cfg,
		metricsEngine: metricsEngine,
		thresholds:    evaluator,
		client:        workflow.NewClient(clientOpts...),
		ids:           &performance.VUIDSource{},
		logger:        logger,
		runID:         runID,
	}, nil
}

// Run executes every scenario and returns the report.
//
// A report is returned whenever the run started, even when ctx was
// cancelled or an abortOnFail threshold stopped it early.
func (e *Engine) Run(ctx context.Context) (*Report, error) {
	e.mu.Lock()
	if e.started {
		e.mu.Unlock()
		return nil, ErrAlreadyRunning
	}
	e.started = true
	e.mu.Unlock()

	if err := e.initializeScenarios(ctx); err != nil {
		return nil, err
	}

	deadline := e.Deadline()
	runCtx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	start := time.Now()
	e.metricsEngine.MarkStart(start)
	e.mu.Lock()
	e.startTime = start
	e.running = true
	e.cancel = cancel
	e.mu.Unlock()

	e.logger.Info("starting test run",
		zap.String("name", e.config.Name),
		zap.Int("scenarios", len(e.scenarios)),
		zap.Duration("deadline", deadline))

	watchCtx, stopWatch := context.WithCancel(runCtx)
	var watchWG sync.WaitGroup
	watchWG.Add(1)
	go func() {
		defer watchWG.Done()
		e.thresholds.Watch(watchCtx, e.config.ThresholdInterval(), func(r threshold.Result) {
			e.mu.Lock()
			e.breach = r
			e.mu.Unlock()
			e.aborted.Store(true)
			cancel()
		})
	}()

	err := e.runScenarios(runCtx)

	stopWatch()
	watchWG.Wait()

	end := time.Now()
	e.mu.Lock()
	e.running = false
	e.mu.Unlock()

	report := e.buildReport(start, end)
	if err != nil {
		report.Error = err.Error()
	}

	e.logger.Info("test run finished",
		zap.Duration("duration", report.Duration),
		zap.Bool("passed", report.Passed),
		zap.Bool("aborted", report.Aborted))

	return report, err
}

// initializeScenarios binds workflows and creates executors and VU
// schedulers for every scenario.
func (e *Engine) initializeScenarios(ctx context.Context) error {
	names := e.config.ScenarioNames()
	runners := make([]*ScenarioRunner, 0, len(names))

	for _, name := range names {
		sc := e.config.Scenarios[name]

		execCfg, err := sc.ExecutorConfig(name, e.config.Options)
		if err != nil {
			return err
		}

		wfName := sc.Workflow(name)
		fn, err := workflow.Bind(wfName, e.client)
		if err != nil {
			return fmt.Errorf("scenario %s: %w", name, err)
		}

		exec, err := executor.CreateAndInitExecutor(ctx, execCfg)
		if err != nil {
			return fmt.Errorf("scenario %s: %w", name, err)
		}

		scenario := &performance.Scenario{
			Name:     name,
			Tags:     sc.MetricTags(),
			Workflow: fn,
		}
		scheduler := performance.NewVUScheduler(scenario, e.metricsEngine, performance.SchedulerOptions{
			IDs:        e.ids,
			Iterations: execCfg.Iterations,
			Pacer:      execCfg.Pacing.Pacer(),
			Logger:     e.logger,
		})

		runners = append(runners, &ScenarioRunner{
			Name:        name,
			Workflow:    wfName,
			StartOffset: time.Duration(sc.StartTime),
			Config:      execCfg,
			Executor:    exec,
			Scheduler:   scheduler,
		})
	}

	e.mu.Lock()
	e.scenarios = runners
	e.mu.Unlock()
	return nil
}

// runScenarios starts each scenario at its offset and waits for all of
// them to terminate.
func (e *Engine) runScenarios(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, runner := range e.scenarios {
		runner := runner
		g.Go(func() error {
			return e.runScenario(gctx, runner)
		})
	}
	return g.Wait()
}

func (e *Engine) runScenario(ctx context.Context, runner *ScenarioRunner) error {
	logger := e.logger.With(zap.String("scenario", runner.Name))

	if runner.StartOffset > 0 {
		timer := time.NewTimer(runner.StartOffset)
		select {
		case <-ctx.Done():
			timer.Stop()
			logger.Info("scenario not started", zap.Error(ctx.Err()))
			return nil
		case <-timer.C:
		}
	}

	runner.started.Store(true)
	logger.Info("scenario started",
		zap.String("executor", string(runner.Config.Type)),
		zap.String("workflow", runner.Workflow),
		zap.Int("max_vus", runner.Config.MaxVUs()))

	if err := runner.Executor.Run(ctx, runner.Scheduler); err != nil {
		runner.err = err
		return fmt.Errorf("scenario %s: %w", runner.Name, err)
	}

	stats := runner.Executor.GetStats()
	logger.Info("scenario finished",
		zap.Int64("iterations", stats.Iterations),
		zap.Int("spawned_vus", stats.SpawnedVUs),
		zap.Int("interrupted_vus", stats.Interrupted))
	return nil
}

// Deadline is the longest any scenario may take: its offset, schedule and
// graceful stop, plus one control tick.
func (e *Engine) Deadline() time.Duration {
	var longest time.Duration
	tick := executor.DefaultControlInterval

	for _, name := range e.config.ScenarioNames() {
		sc := e.config.Scenarios[name]
		cfg, err := sc.ExecutorConfig(name, e.config.Options)
		if err != nil {
			continue
		}
		d := time.Duration(sc.StartTime) + cfg.TotalDuration() + cfg.GracefulStopOrDefault()
		if d > longest {
			longest = d
		}
		if cfg.ControlInterval > tick {
			tick = cfg.ControlInterval
		}
	}
	return longest + tick
}

// Stop cancels a running test. VUs are interrupted and the report is
// still produced by Run.
func (e *Engine) Stop() {
	e.mu.RLock()
	cancel := e.cancel
	e.mu.RUnlock()
	if cancel != nil {
		cancel()
	}
}

// RunID returns the unique identifier of this run.
func (e *Engine) RunID() string {
	return e.runID
}

// GetConfig returns the test configuration.
func (e *Engine) GetConfig() *config.TestConfig {
	return e.config
}

// Metrics returns the run's metrics aggregator.
func (e *Engine) Metrics() *metrics.Engine {
	return e.metricsEngine
}

// IsRunning returns true if the engine is currently running.
func (e *Engine) IsRunning() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.running
}

// Aborted reports whether an abortOnFail threshold stopped the run.
func (e *Engine) Aborted() bool {
	return e.aborted.Load()
}

// GetScenarioStats returns current stats for all scenarios.
func (e *Engine) GetScenarioStats() map[string]*executor.Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()

	stats := make(map[string]*executor.Stats, len(e.scenarios))
	for _, runner := range e.scenarios {
		stats[runner.Name] = runner.Executor.GetStats()
	}
	return stats
}

// Progress is a live view of a run for progress displays.
type Progress struct {
	Elapsed    time.Duration
	ActiveVUs  int
	Iterations int64
	Requests   int64
	ErrorRate  float64
	P95        float64
}

// GetProgress returns the live progress of the run.
func (e *Engine) GetProgress() Progress {
	p := Progress{
		Elapsed:   e.metricsEngine.Elapsed(),
		ActiveVUs: e.metricsEngine.ActiveVUs(),
	}
	if s, ok := e.metricsEngine.Snapshot(metrics.Iterations); ok {
		p.Iterations = int64(s.Value)
	}
	if s, ok := e.metricsEngine.Snapshot(metrics.HTTPReqs); ok {
		p.Requests = int64(s.Value)
	}
	if s, ok := e.metricsEngine.Snapshot(metrics.Errors); ok {
		p.ErrorRate = s.Rate
	}
	if s, ok := e.metricsEngine.Snapshot(metrics.HTTPReqDuration); ok {
		p.P95 = s.P95
	}
	return p
}

func (e *Engine) buildReport(start, end time.Time) *Report {
	results, passed := e.thresholds.Evaluate()

	report := &Report{
		RunID:       e.runID,
		Name:        e.config.Name,
		Description: e.config.Description,
		BaseURL:     e.config.Settings.BaseURL,
		StartTime:   start,
		EndTime:     end,
		Duration:    end.Sub(start),
		Metrics:     e.metricsEngine.Snapshots(),
		Submetrics:  e.metricsEngine.Submetrics(),
		Thresholds:  results,
		Passed:      passed,
		Aborted:     e.aborted.Load(),
		MaxVUs:      e.metricsEngine.MaxVUs(),
	}

	if report.Aborted {
		e.mu.RLock()
		b := e.breach
		e.mu.RUnlock()
		report.AbortReason = fmt.Sprintf("threshold %s on %s breached", b.Expression, b.Metric)
		report.Passed = false
	}

	for _, runner := range e.scenarios {
		sr := ScenarioResult{
			Name:        runner.Name,
			Executor:    string(runner.Config.Type),
			Workflow:    runner.Workflow,
			StartOffset: runner.StartOffset,
			Started:     runner.started.Load(),
		}
		if sr.Started {
			sr.Stats = runner.Executor.GetStats()
		}
		if runner.err != nil {
			sr.Error = runner.err.Error()
		}
		report.Scenarios = append(report.Scenarios, sr)
	}
	sort.Slice(report.Scenarios, func(i, j int) bool {
		return report.Scenarios[i].Name < report.Scenarios[j].Name
	})

	return report
}
