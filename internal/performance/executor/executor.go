// Package executor provides the VU ramping policies of a scenario.
package executor

import (
	"context"
	"math/rand"
	"strconv"
	"strings"
	"time"

	"github.com/wesleyorama2/prload/internal/performance"
)

// Type identifies the type of executor.
type Type string

const (
	// TypeConstantVUs runs a fixed number of VUs for a duration.
	TypeConstantVUs Type = "constant-vus"

	// TypeRampingVUs ramps VU count up and down according to stages.
	TypeRampingVUs Type = "ramping-vus"
)

// DefaultControlInterval is how often the VU controller reconciles.
const DefaultControlInterval = 100 * time.Millisecond

// DefaultGracefulStop is how long retired VUs get to finish an iteration.
const DefaultGracefulStop = 30 * time.Second

// ParseType resolves an executor name, accepting the short forms
// "constant" and "ramping".
func ParseType(s string) (Type, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case string(TypeConstantVUs), "constant":
		return TypeConstantVUs, true
	case string(TypeRampingVUs), "ramping":
		return TypeRampingVUs, true
	default:
		return "", false
	}
}

// Executor defines the interface for VU ramping policies.
//
// An executor owns the control loop of one scenario: it decides how many
// VUs should be live at each instant and asks the VUScheduler to reconcile.
type Executor interface {
	// Type returns the executor type.
	Type() Type

	// Init initializes the executor with configuration.
	// Called once before Run().
	Init(ctx context.Context, config *Config) error

	// Run starts the executor and blocks until every VU has exited.
	// Cancelling ctx interrupts all VUs.
	Run(ctx context.Context, scheduler *performance.VUScheduler) error

	// GetProgress returns current progress (0.0 to 1.0).
	GetProgress() float64

	// GetActiveVUs returns current live VU count.
	GetActiveVUs() int

	// GetStats returns executor-specific statistics.
	GetStats() *Stats

	// Stop ends the stage schedule early. Run then drains VUs as usual.
	Stop(ctx context.Context) error
}

// Config contains configuration for an executor.
type Config struct {
	// Name is the name of this executor instance
	Name string `json:"name" yaml:"name"`

	// Type is the executor type
	Type Type `json:"type" yaml:"type"`

	// Constant VUs
	VUs      int           `json:"vus,omitempty" yaml:"vus,omitempty"`
	Duration time.Duration `json:"duration,omitempty" yaml:"duration,omitempty"`

	// Iterations caps iterations per VU (0 = unlimited)
	Iterations int64 `json:"iterations,omitempty" yaml:"iterations,omitempty"`

	// Ramping VUs
	StartVUs int     `json:"startVUs,omitempty" yaml:"startVUs,omitempty"`
	Stages   []Stage `json:"stages,omitempty" yaml:"stages,omitempty"`

	// Graceful stop timeout
	GracefulStop time.Duration `json:"gracefulStop,omitempty" yaml:"gracefulStop,omitempty"`

	// Pacing between iterations
	Pacing *PacingConfig `json:"pacing,omitempty" yaml:"pacing,omitempty"`

	// ControlInterval is the controller tick (default 100ms)
	ControlInterval time.Duration `json:"controlInterval,omitempty" yaml:"controlInterval,omitempty"`
}

// Stage defines a stage in ramping executors.
type Stage struct {
	// Duration of this stage
	Duration time.Duration `json:"duration" yaml:"duration"`

	// Target VU count at the end of the stage
	Target int `json:"target" yaml:"target"`

	// Optional name for this stage (for reporting)
	Name string `json:"name,omitempty" yaml:"name,omitempty"`
}

// PacingConfig controls time between iterations.
type PacingConfig struct {
	// Type of pacing: "none", "constant", "random"
	Type PacingType `json:"type" yaml:"type"`

	// Duration for constant pacing
	Duration time.Duration `json:"duration,omitempty" yaml:"duration,omitempty"`

	// Min duration for random pacing
	Min time.Duration `json:"min,omitempty" yaml:"min,omitempty"`

	// Max duration for random pacing
	Max time.Duration `json:"max,omitempty" yaml:"max,omitempty"`
}

// PacingType identifies the type of pacing.
type PacingType string

const (
	PacingNone     PacingType = "none"
	PacingConstant PacingType = "constant"
	PacingRandom   PacingType = "random"
)

// Next returns the wait before the next iteration.
func (p *PacingConfig) Next() time.Duration {
	if p == nil {
		return 0
	}

	switch p.Type {
	case PacingConstant:
		return p.Duration
	case PacingRandom:
		diff := p.Max - p.Min
		if diff > 0 {
			return p.Min + time.Duration(rand.Int63n(int64(diff)))
		}
		return p.Min
	default:
		return 0
	}
}

// Pacer returns p.Next as a scheduler pacer, or nil when no pacing applies.
func (p *PacingConfig) Pacer() func() time.Duration {
	if p == nil || p.Type == "" || p.Type == PacingNone {
		return nil
	}
	return p.Next
}

// Stats contains real-time executor statistics.
type Stats struct {
	// Timing
	StartTime     time.Time     `json:"startTime"`
	CurrentTime   time.Time     `json:"currentTime"`
	Elapsed       time.Duration `json:"elapsed"`
	TotalDuration time.Duration `json:"totalDuration"`

	// VU stats
	ActiveVUs  int `json:"activeVUs"`
	TargetVUs  int `json:"targetVUs"`
	SpawnedVUs int `json:"spawnedVUs"`

	// Interrupted is the number of VUs hard-stopped after gracefulStop.
	Interrupted int `json:"interrupted"`

	// Iteration stats
	Iterations int64 `json:"iterations"`

	// Stage info (for ramping executors)
	CurrentStage     int    `json:"currentStage"`
	CurrentStageName string `json:"currentStageName"`
	TotalStages      int    `json:"totalStages"`
}

// Validate validates the executor configuration.
func (c *Config) Validate() error {
	if c.Type == "" {
		return &ValidationError{Field: "type", Message: "executor type is required"}
	}
	if c.GracefulStop < 0 {
		return &ValidationError{Field: "gracefulStop", Message: "gracefulStop must be >= 0"}
	}
	if c.Iterations < 0 {
		return &ValidationError{Field: "iterations", Message: "iterations must be >= 0"}
	}

	switch c.Type {
	case TypeConstantVUs:
		if c.VUs <= 0 {
			return &ValidationError{Field: "vus", Message: "vus must be > 0"}
		}
		if c.Duration <= 0 {
			return &ValidationError{Field: "duration", Message: "duration must be > 0"}
		}

	case TypeRampingVUs:
		if len(c.Stages) == 0 {
			return &ValidationError{Field: "stages", Message: "at least one stage is required"}
		}
		if c.StartVUs < 0 {
			return &ValidationError{Field: "startVUs", Message: "startVUs must be >= 0"}
		}
		for i, stage := range c.Stages {
			if stage.Target < 0 {
				return &ValidationError{Field: stageField(i, "target"), Message: "target must be >= 0"}
			}
			if stage.Duration < 0 {
				return &ValidationError{Field: stageField(i, "duration"), Message: "duration must be >= 0"}
			}
		}
		if c.TotalDuration() <= 0 {
			return &ValidationError{Field: "stages", Message: "stages must have a positive total duration"}
		}

	default:
		return &ValidationError{Field: "type", Message: "unknown executor type: " + string(c.Type)}
	}

	return nil
}

func stageField(i int, name string) string {
	return "stages[" + strconv.Itoa(i) + "]." + name
}

// TotalDuration calculates the total duration for this executor.
func (c *Config) TotalDuration() time.Duration {
	switch c.Type {
	case TypeConstantVUs:
		return c.Duration

	case TypeRampingVUs:
		var total time.Duration
		for _, stage := range c.Stages {
			total += stage.Duration
		}
		return total

	default:
		return 0
	}
}

// GracefulStopOrDefault returns the configured graceful stop or the default.
func (c *Config) GracefulStopOrDefault() time.Duration {
	if c.GracefulStop > 0 {
		return c.GracefulStop
	}
	return DefaultGracefulStop
}

// MaxVUs returns the highest VU count the executor can ask for.
func (c *Config) MaxVUs() int {
	switch c.Type {
	case TypeConstantVUs:
		return c.VUs
	case TypeRampingVUs:
		maxVUs := c.StartVUs
		for _, stage := range c.Stages {
			if stage.Target > maxVUs {
				maxVUs = stage.Target
			}
		}
		return maxVUs
	default:
		return 0
	}
}

func (c *Config) controlInterval() time.Duration {
	if c.ControlInterval > 0 {
		return c.ControlInterval
	}
	return DefaultControlInterval
}

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return "validation error on field '" + e.Field + "': " + e.Message
}
