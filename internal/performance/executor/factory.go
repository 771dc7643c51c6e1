package executor

import (
	"context"
	"fmt"
)

// NewExecutor creates a new executor of the specified type.
//
// Supported types:
//   - "constant-vus" (alias "constant") - Fixed number of VUs for a duration
//   - "ramping-vus" (alias "ramping") - VU count ramps up/down according to stages
//
// Returns an uninitialized executor. Call Init() before Run().
func NewExecutor(executorType Type) (Executor, error) {
	t, ok := ParseType(string(executorType))
	if !ok {
		return nil, fmt.Errorf("unknown executor type: %s", executorType)
	}

	switch t {
	case TypeConstantVUs:
		return NewConstantVUs(), nil
	default:
		return NewRampingVUs(), nil
	}
}

// CreateAndInitExecutor creates and initializes an executor with the given config.
//
// This is a convenience function that combines NewExecutor and Init.
func CreateAndInitExecutor(ctx context.Context, cfg *Config) (Executor, error) {
	if t, ok := ParseType(string(cfg.Type)); ok {
		cfg.Type = t
	}

	exec, err := NewExecutor(cfg.Type)
	if err != nil {
		return nil, err
	}

	if err := exec.Init(ctx, cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize executor: %w", err)
	}

	return exec, nil
}

// GetSupportedExecutors returns a list of all supported executor types.
func GetSupportedExecutors() []Type {
	return []Type{
		TypeConstantVUs,
		TypeRampingVUs,
	}
}

// ExecutorDescription provides documentation for an executor type.
type ExecutorDescription struct {
	Type        Type
	Name        string
	Description string
}

// GetExecutorDescription returns documentation for an executor type.
func GetExecutorDescription(executorType Type) *ExecutorDescription {
	switch executorType {
	case TypeConstantVUs:
		return &ExecutorDescription{
			Type:        TypeConstantVUs,
			Name:        "Constant VUs",
			Description: "Runs a fixed number of VUs for a specified duration. Each VU runs as fast as it can (closed model).",
		}
	case TypeRampingVUs:
		return &ExecutorDescription{
			Type:        TypeRampingVUs,
			Name:        "Ramping VUs",
			Description: "Ramps VU count up and down according to stages. Smoothly interpolates between stage targets.",
		}
	default:
		return nil
	}
}
