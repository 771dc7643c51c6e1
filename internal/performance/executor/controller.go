package executor

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/wesleyorama2/prload/internal/performance"
)

// targetFunc returns the VU target and stage index at elapsed.
type targetFunc func(elapsed time.Duration) (target int, stage int)

// controller is the VU control loop shared by the VU-based executors.
//
// Every tick it computes the target for the elapsed time and lets the
// scheduler reconcile incrementally. When the schedule ends it drains the
// scheduler: VUs get gracefulStop to finish their iteration, then are
// interrupted.
type controller struct {
	config *Config
	target targetFunc

	scheduler *performance.VUScheduler

	startTime    time.Time
	endTime      time.Time
	targetVUs    atomic.Int32
	currentStage atomic.Int32
	interrupted  atomic.Int32
	running      atomic.Bool

	cancelFunc context.CancelFunc
	mu         sync.RWMutex
}

func (c *controller) run(ctx context.Context, scheduler *performance.VUScheduler) error {
	runCtx, cancel := context.WithTimeout(ctx, c.config.TotalDuration())
	defer cancel()

	c.mu.Lock()
	c.scheduler = scheduler
	c.startTime = time.Now()
	c.cancelFunc = cancel
	c.mu.Unlock()

	c.running.Store(true)
	defer func() {
		c.mu.Lock()
		c.endTime = time.Now()
		c.mu.Unlock()
		c.running.Store(false)
	}()

	// VUs hang off ctx, not runCtx: the end of the schedule retires them,
	// only cancellation of the run interrupts them.
	c.tick(ctx)

	ticker := time.NewTicker(c.config.controlInterval())
	defer ticker.Stop()

loop:
	for {
		select {
		case <-runCtx.Done():
			break loop
		case <-ticker.C:
			c.tick(ctx)
			if c.exhausted() {
				break loop
			}
		}
	}

	n := scheduler.Drain(c.config.GracefulStopOrDefault())
	c.interrupted.Store(int32(n))
	return nil
}

func (c *controller) tick(ctx context.Context) {
	target, stage := c.target(c.elapsed())
	c.targetVUs.Store(int32(target))
	c.currentStage.Store(int32(stage))
	c.scheduler.Reconcile(ctx, target)
}

// exhausted reports whether every VU of a constant scenario reached its
// iteration cap.
func (c *controller) exhausted() bool {
	if c.config.Iterations <= 0 || c.config.Type != TypeConstantVUs {
		return false
	}
	return c.scheduler.Spawned() > 0 && c.scheduler.Running() == 0
}

func (c *controller) elapsed() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.startTime.IsZero() {
		return 0
	}
	if !c.endTime.IsZero() {
		return c.endTime.Sub(c.startTime)
	}
	return time.Since(c.startTime)
}

// GetProgress returns current progress (0.0 to 1.0).
func (c *controller) GetProgress() float64 {
	if !c.running.Load() {
		c.mu.RLock()
		started := !c.startTime.IsZero()
		c.mu.RUnlock()
		if started {
			return 1.0
		}
		return 0.0
	}

	total := c.config.TotalDuration()
	if total == 0 {
		return 1.0
	}

	progress := float64(c.elapsed()) / float64(total)
	if progress > 1.0 {
		progress = 1.0
	}
	return progress
}

// GetActiveVUs returns the live VU count.
func (c *controller) GetActiveVUs() int {
	c.mu.RLock()
	s := c.scheduler
	c.mu.RUnlock()

	if s == nil {
		return 0
	}
	return s.Live()
}

// GetStats returns executor statistics.
func (c *controller) GetStats() *Stats {
	c.mu.RLock()
	s := c.scheduler
	start := c.startTime
	c.mu.RUnlock()

	stageIdx := int(c.currentStage.Load())
	stageName := ""
	if stageIdx < len(c.config.Stages) {
		stageName = c.config.Stages[stageIdx].Name
	}

	stats := &Stats{
		StartTime:        start,
		CurrentTime:      time.Now(),
		Elapsed:          c.elapsed(),
		TotalDuration:    c.config.TotalDuration(),
		TargetVUs:        int(c.targetVUs.Load()),
		Interrupted:      int(c.interrupted.Load()),
		CurrentStage:     stageIdx,
		CurrentStageName: stageName,
		TotalStages:      len(c.config.Stages),
	}
	if s != nil {
		stats.ActiveVUs = s.Live()
		stats.SpawnedVUs = int(s.Spawned())
		stats.Iterations = s.Iterations()
	}
	return stats
}

// Stop ends the schedule early; Run drains VUs and returns.
func (c *controller) Stop(ctx context.Context) error {
	c.mu.RLock()
	cancel := c.cancelFunc
	c.mu.RUnlock()

	if cancel != nil {
		cancel()
	}
	return nil
}
