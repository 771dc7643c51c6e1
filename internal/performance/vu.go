// Package performance provides the virtual user runtime shared by all
// executors.
package performance

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/wesleyorama2/prload/internal/performance/metrics"
)

// ErrVUStopping is returned by RunIteration once the VU has been retired.
var ErrVUStopping = errors.New("virtual user is stopping")

// VUState represents the lifecycle state of a Virtual User.
type VUState int32

const (
	// VUStateIdle indicates the VU is between iterations.
	VUStateIdle VUState = iota
	// VUStateRunning indicates the VU is executing its workflow.
	VUStateRunning
	// VUStateSleeping indicates the VU is parked in Sleep.
	VUStateSleeping
	// VUStateStopping indicates the VU has been retired and will exit after
	// the current iteration.
	VUStateStopping
	// VUStateStopped indicates the VU goroutine has exited.
	VUStateStopped
)

func (s VUState) String() string {
	switch s {
	case VUStateIdle:
		return "idle"
	case VUStateRunning:
		return "running"
	case VUStateSleeping:
		return "sleeping"
	case VUStateStopping:
		return "stopping"
	case VUStateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// WorkflowFunc is one full iteration of a virtual user. It must only block
// in vu.Sleep or while a request is in flight.
type WorkflowFunc func(ctx context.Context, vu *VirtualUser)

// Scenario binds a workflow to the tags attached to every sample it emits.
type Scenario struct {
	Name     string
	Tags     metrics.Tags
	Workflow WorkflowFunc
}

// VirtualUser is a single simulated user running workflow iterations.
//
// Retiring a VU (RequestStop) is observed between iterations only. Hard
// interruption (Interrupt, or cancellation of the parent context) cuts
// sleeps short and tells the workflow to stop sending new requests.
type VirtualUser struct {
	// Unique identifier for this VU within the run
	ID int

	Scenario *Scenario
	Metrics  *metrics.Engine

	state   atomic.Int32
	retired atomic.Bool

	// Stop signal (closed on retire)
	stopCh chan struct{}

	// Done signal (closed when VU fully stops)
	doneCh chan struct{}

	ctx    context.Context
	cancel context.CancelFunc

	iteration atomic.Int64
	ids       *IDGenerator
	tags      metrics.Tags
}

// NewVirtualUser creates a VU whose hard-interrupt context derives from
// parent.
func NewVirtualUser(parent context.Context, id int, scenario *Scenario, metricsEngine *metrics.Engine) *VirtualUser {
	ctx, cancel := context.WithCancel(parent)

	tags := metrics.Tags{}
	if scenario != nil {
		tags = scenario.Tags.With("scenario", scenario.Name)
	}

	return &VirtualUser{
		ID:       id,
		Scenario: scenario,
		Metrics:  metricsEngine,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
		ctx:      ctx,
		cancel:   cancel,
		ids:      NewIDGenerator(id),
		tags:     tags,
	}
}

// GetState returns the current VU state.
func (vu *VirtualUser) GetState() VUState {
	return VUState(vu.state.Load())
}

// GetIteration returns the number of iterations started.
func (vu *VirtualUser) GetIteration() int64 {
	return vu.iteration.Load()
}

// Tags returns the tags attached to every sample of this VU: the scenario
// tags plus "scenario". The map must not be modified.
func (vu *VirtualUser) Tags() metrics.Tags {
	return vu.tags
}

// Context returns the VU's hard-interrupt context.
func (vu *VirtualUser) Context() context.Context {
	return vu.ctx
}

// GenerateID mints a run-unique identifier with the given prefix.
func (vu *VirtualUser) GenerateID(prefix string) string {
	return vu.ids.Generate(prefix)
}

// Interrupted reports whether the VU was hard-interrupted.
func (vu *VirtualUser) Interrupted() bool {
	return vu.ctx.Err() != nil
}

// IsRetired reports whether RequestStop was called.
func (vu *VirtualUser) IsRetired() bool {
	return vu.retired.Load()
}

// RunIteration executes one workflow invocation and records the
// iterations and iteration_duration metrics.
func (vu *VirtualUser) RunIteration() (err error) {
	if !vu.state.CompareAndSwap(int32(VUStateIdle), int32(VUStateRunning)) {
		return fmt.Errorf("VU %d: %w", vu.ID, ErrVUStopping)
	}

	iter := vu.iteration.Add(1) - 1
	vu.ids.Reset(iter)
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("VU %d iteration %d: workflow panic: %v", vu.ID, iter, r)
		}
		if vu.Metrics != nil {
			vu.Metrics.Add(metrics.Iterations, 1, vu.tags)
			vu.Metrics.RecordDuration(metrics.IterationDuration, time.Since(start), vu.tags)
		}
		vu.state.CompareAndSwap(int32(VUStateRunning), int32(VUStateIdle))
	}()

	if vu.Scenario != nil && vu.Scenario.Workflow != nil {
		vu.Scenario.Workflow(vu.ctx, vu)
	}
	return nil
}

// Sleep parks the VU for d. It returns false when the VU was
// hard-interrupted before or during the sleep; a retire request does not
// cut a sleep short.
func (vu *VirtualUser) Sleep(ctx context.Context, d time.Duration) bool {
	if vu.Interrupted() || ctx.Err() != nil {
		return false
	}
	if d <= 0 {
		return true
	}

	vu.state.CompareAndSwap(int32(VUStateRunning), int32(VUStateSleeping))
	defer vu.state.CompareAndSwap(int32(VUStateSleeping), int32(VUStateRunning))

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-vu.ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// pause waits between iterations; it is cut short by a retire request.
func (vu *VirtualUser) pause(d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-vu.ctx.Done():
		return false
	case <-vu.stopCh:
		return false
	case <-timer.C:
		return true
	}
}

// RequestStop retires the VU. It exits after completing the current
// iteration.
func (vu *VirtualUser) RequestStop() {
	if !vu.retired.CompareAndSwap(false, true) {
		return
	}
	close(vu.stopCh)

	for {
		cur := vu.state.Load()
		if VUState(cur) == VUStateStopped {
			return
		}
		if vu.state.CompareAndSwap(cur, int32(VUStateStopping)) {
			return
		}
	}
}

// Interrupt hard-stops the VU: sleeps return false and no new requests are
// sent. An in-flight request still completes.
func (vu *VirtualUser) Interrupt() {
	vu.cancel()
}

// WaitForStop waits for the VU to stop with a timeout.
//
// Returns true if the VU stopped within the timeout, false otherwise.
func (vu *VirtualUser) WaitForStop(timeout time.Duration) bool {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-vu.doneCh:
		return true
	case <-timer.C:
		return false
	}
}

// MarkStopped marks the VU as fully stopped.
// Should be called by the scheduler when the VU goroutine exits.
func (vu *VirtualUser) MarkStopped() {
	vu.state.Store(int32(VUStateStopped))
	select {
	case <-vu.doneCh:
		// Already closed
	default:
		close(vu.doneCh)
	}
	vu.cancel()
}
