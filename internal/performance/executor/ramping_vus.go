package executor

import (
	"context"
	"fmt"
	"time"

	"github.com/wesleyorama2/prload/internal/performance"
)

// RampingVUs ramps VU count up and down according to stages.
//
// This executor smoothly interpolates VU counts between stages,
// avoiding step-wise VU changes that cause jarring throughput variations.
//
// Example stages:
//
//	stages:
//	  - duration: 30s
//	    target: 10     # Ramp from startVUs to 10 VUs over 30s
//	  - duration: 2m
//	    target: 10     # Stay at 10 VUs for 2 minutes
//	  - duration: 30s
//	    target: 0      # Ramp down to 0 VUs over 30s
type RampingVUs struct {
	controller
}

// NewRampingVUs creates a new ramping VUs executor.
func NewRampingVUs() *RampingVUs {
	return &RampingVUs{}
}

// Type returns the executor type.
func (e *RampingVUs) Type() Type {
	return TypeRampingVUs
}

// Init initializes the executor with configuration.
func (e *RampingVUs) Init(ctx context.Context, config *Config) error {
	if config.Type != TypeRampingVUs {
		return fmt.Errorf("invalid config type: expected %s, got %s", TypeRampingVUs, config.Type)
	}

	if err := config.Validate(); err != nil {
		return err
	}

	e.config = config
	e.target = func(elapsed time.Duration) (int, int) {
		return TargetAt(config.Stages, config.StartVUs, elapsed)
	}
	return nil
}

// Run starts the executor and blocks until every VU has exited.
func (e *RampingVUs) Run(ctx context.Context, scheduler *performance.VUScheduler) error {
	if e.config == nil {
		return fmt.Errorf("executor %s not initialized", TypeRampingVUs)
	}
	return e.run(ctx, scheduler)
}

// TargetAt returns the VU target and the stage index at elapsed.
//
// Within stage i the target moves linearly from the previous target
// (startVUs before the first stage) to stage i's target and is rounded to
// the nearest integer. Zero-duration stages jump immediately. Past the last
// stage the last target holds.
func TargetAt(stages []Stage, startVUs int, elapsed time.Duration) (int, int) {
	var stageStart time.Duration
	prevTarget := startVUs

	for i, stage := range stages {
		stageEnd := stageStart + stage.Duration

		if elapsed < stageEnd {
			// Progress within this stage (0.0 to 1.0)
			progress := float64(elapsed-stageStart) / float64(stage.Duration)
			if progress < 0 {
				progress = 0
			}

			target := float64(prevTarget) + float64(stage.Target-prevTarget)*progress
			return int(target + 0.5), i
		}

		prevTarget = stage.Target
		stageStart = stageEnd
	}

	if len(stages) == 0 {
		return startVUs, 0
	}
	return stages[len(stages)-1].Target, len(stages) - 1
}

// Ensure RampingVUs implements Executor
var _ Executor = (*RampingVUs)(nil)
