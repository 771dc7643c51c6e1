package config

import (
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/wesleyorama2/prload/internal/performance/executor"
	"github.com/wesleyorama2/prload/internal/performance/metrics"
	"github.com/wesleyorama2/prload/internal/performance/threshold"
	"github.com/wesleyorama2/prload/internal/workflow"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation error on field '%s': %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation error: %s", e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors struct {
	Errors []*ValidationError
}

func (e *ValidationErrors) Error() string {
	if len(e.Errors) == 0 {
		return "no validation errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e.Errors)))
	for i, err := range e.Errors {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// Add adds an error to the collection.
func (e *ValidationErrors) Add(field, message string) {
	e.Errors = append(e.Errors, &ValidationError{Field: field, Message: message})
}

// HasErrors returns true if there are any errors.
func (e *ValidationErrors) HasErrors() bool {
	return len(e.Errors) > 0
}

// Fields returns the field path of every error.
func (e *ValidationErrors) Fields() []string {
	out := make([]string, len(e.Errors))
	for i, err := range e.Errors {
		out[i] = err.Field
	}
	return out
}

// Validate validates the entire test configuration.
//
// Returns nil if valid, or a *ValidationErrors containing all problems.
// Scenarios and thresholds are visited in name order so the report is
// stable.
func (c *TestConfig) Validate() error {
	errs := &ValidationErrors{}

	if len(c.Scenarios) == 0 {
		errs.Add("scenarios", "at least one scenario is required")
	}
	for _, name := range c.ScenarioNames() {
		validateScenario(name, c.Scenarios[name], errs)
	}

	validateThresholds(c.Thresholds, errs)
	validateSettings(&c.Settings, errs)
	if c.Options != nil {
		validateOptions(c.Options, errs)
	}

	if errs.HasErrors() {
		return errs
	}
	return nil
}

// ScenarioNames returns the scenario names, sorted.
func (c *TestConfig) ScenarioNames() []string {
	names := make([]string, 0, len(c.Scenarios))
	for name := range c.Scenarios {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// validateScenario validates a single scenario configuration.
func validateScenario(name string, sc *ScenarioConfig, errs *ValidationErrors) {
	prefix := fmt.Sprintf("scenarios.%s", name)
	if sc == nil {
		errs.Add(prefix, "scenario is empty")
		return
	}

	exec := sc.Exec
	if exec == "" {
		exec = name
	}
	if _, ok := workflow.Normalize(exec); !ok {
		errs.Add(prefix+".exec", fmt.Sprintf("unknown workflow %q (available: %s)", exec, strings.Join(workflow.Names(), ", ")))
	}

	if sc.StartTime < 0 {
		errs.Add(prefix+".startTime", "startTime cannot be negative")
	}
	if sc.GracefulStop < 0 {
		errs.Add(prefix+".gracefulStop", "gracefulStop cannot be negative")
	}
	if sc.Iterations < 0 {
		errs.Add(prefix+".iterations", "iterations cannot be negative")
	}

	typ, ok := executor.ParseType(sc.Executor)
	switch {
	case sc.Executor == "":
		errs.Add(prefix+".executor", "executor type is required")
	case !ok:
		errs.Add(prefix+".executor", fmt.Sprintf("unknown executor type: %s", sc.Executor))
	case typ == executor.TypeConstantVUs:
		validateConstantVUs(prefix, sc, errs)
	case typ == executor.TypeRampingVUs:
		validateRampingVUs(prefix, sc, errs)
	}

	if sc.Pacing != nil {
		validatePacing(prefix+".pacing", sc.Pacing, errs)
	}
}

// validateConstantVUs validates constant-vus executor config.
func validateConstantVUs(prefix string, sc *ScenarioConfig, errs *ValidationErrors) {
	if sc.VUs < 0 {
		errs.Add(prefix+".vus", "vus cannot be negative")
	}
	if sc.Duration <= 0 {
		errs.Add(prefix+".duration", "duration is required for constant-vus executor")
	}
	if len(sc.Stages) > 0 {
		errs.Add(prefix+".stages", "stages are not used by constant-vus executor")
	}
}

// validateRampingVUs validates ramping-vus executor config.
func validateRampingVUs(prefix string, sc *ScenarioConfig, errs *ValidationErrors) {
	if len(sc.Stages) == 0 {
		errs.Add(prefix+".stages", "at least one stage is required for ramping-vus executor")
	}
	if sc.StartVUs < 0 {
		errs.Add(prefix+".startVUs", "startVUs cannot be negative")
	}

	var total Duration
	for i, stage := range sc.Stages {
		field := fmt.Sprintf("%s.stages[%d]", prefix, i)
		if stage.Duration < 0 {
			errs.Add(field+".duration", "duration cannot be negative")
		}
		if stage.Target < 0 {
			errs.Add(field+".target", "target cannot be negative")
		}
		total += stage.Duration
	}
	if len(sc.Stages) > 0 && total <= 0 {
		errs.Add(prefix+".stages", "stages must have a positive total duration")
	}
}

// validatePacing validates pacing configuration.
func validatePacing(prefix string, pacing *PacingConfig, errs *ValidationErrors) {
	switch executor.PacingType(pacing.Type) {
	case executor.PacingNone:
	case executor.PacingConstant:
		if pacing.Duration <= 0 {
			errs.Add(prefix+".duration", "duration is required for constant pacing")
		}
	case executor.PacingRandom:
		if pacing.Min < 0 {
			errs.Add(prefix+".min", "min cannot be negative")
		}
		if pacing.Max <= 0 {
			errs.Add(prefix+".max", "max is required for random pacing")
		}
		if pacing.Min > pacing.Max {
			errs.Add(prefix, "min must be less than or equal to max")
		}
	default:
		errs.Add(prefix+".type", fmt.Sprintf("invalid pacing type: %s", pacing.Type))
	}
}

// validateThresholds parses every threshold expression and metric
// selector.
func validateThresholds(thresholds map[string][]ThresholdSpec, errs *ValidationErrors) {
	names := make([]string, 0, len(thresholds))
	for name := range thresholds {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if _, _, err := metrics.ParseSelector(name); err != nil {
			errs.Add("thresholds."+name, err.Error())
			continue
		}
		for i, spec := range thresholds[name] {
			if _, err := threshold.Parse(spec.Threshold); err != nil {
				errs.Add(fmt.Sprintf("thresholds.%s[%d]", name, i), err.Error())
			}
		}
	}
}

// validateSettings validates global settings.
func validateSettings(s *GlobalSettings, errs *ValidationErrors) {
	if s.BaseURL != "" {
		u, err := url.Parse(s.BaseURL)
		if err != nil {
			errs.Add("settings.baseUrl", fmt.Sprintf("invalid URL: %v", err))
		} else if u.Scheme != "http" && u.Scheme != "https" {
			errs.Add("settings.baseUrl", "scheme must be http or https")
		}
	}

	if s.Timeout < 0 {
		errs.Add("settings.timeout", "cannot be negative")
	}
	if s.MaxConnectionsPerHost < 0 {
		errs.Add("settings.maxConnectionsPerHost", "cannot be negative")
	}
	if s.MaxIdleConnsPerHost < 0 {
		errs.Add("settings.maxIdleConnsPerHost", "cannot be negative")
	}
	if s.RPS < 0 {
		errs.Add("settings.rps", "cannot be negative")
	}
	if s.RPSBurst < 0 {
		errs.Add("settings.rpsBurst", "cannot be negative")
	}
}

func validateOptions(o *ExecutionOptions, errs *ValidationErrors) {
	if o.ControlInterval < 0 {
		errs.Add("options.controlInterval", "cannot be negative")
	}
	if o.ThresholdInterval < 0 {
		errs.Add("options.thresholdInterval", "cannot be negative")
	}
	if o.TrendExactLimit < 0 {
		errs.Add("options.trendExactLimit", "cannot be negative")
	}
}
