package executor

import (
	"context"
	"fmt"
	"time"

	"github.com/wesleyorama2/prload/internal/performance"
)

// ConstantVUs holds a fixed number of VUs for a duration.
//
// Each VU loops its workflow back to back (closed model). With an
// iterations cap the scenario ends early once every VU reached it.
type ConstantVUs struct {
	controller
}

// NewConstantVUs creates a new constant VUs executor.
func NewConstantVUs() *ConstantVUs {
	return &ConstantVUs{}
}

// Type returns the executor type.
func (e *ConstantVUs) Type() Type {
	return TypeConstantVUs
}

// Init initializes the executor with configuration.
func (e *ConstantVUs) Init(ctx context.Context, config *Config) error {
	if config.Type != TypeConstantVUs {
		return fmt.Errorf("invalid config type: expected %s, got %s", TypeConstantVUs, config.Type)
	}

	if err := config.Validate(); err != nil {
		return err
	}

	e.config = config
	e.target = func(time.Duration) (int, int) {
		return config.VUs, 0
	}
	return nil
}

// Run starts the executor and blocks until every VU has exited.
func (e *ConstantVUs) Run(ctx context.Context, scheduler *performance.VUScheduler) error {
	if e.config == nil {
		return fmt.Errorf("executor %s not initialized", TypeConstantVUs)
	}
	return e.run(ctx, scheduler)
}

// Ensure ConstantVUs implements Executor
var _ Executor = (*ConstantVUs)(nil)
