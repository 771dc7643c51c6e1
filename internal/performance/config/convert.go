package config

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/wesleyorama2/prload/internal/performance"
	"github.com/wesleyorama2/prload/internal/performance/executor"
	"github.com/wesleyorama2/prload/internal/performance/metrics"
	"github.com/wesleyorama2/prload/internal/performance/threshold"
	"github.com/wesleyorama2/prload/internal/workflow"
)

// ExecutorConfig converts a scenario to the executor's configuration.
//
// This function bridges the config package types to the executor package types.
func (sc *ScenarioConfig) ExecutorConfig(name string, opts *ExecutionOptions) (*executor.Config, error) {
	typ, ok := executor.ParseType(sc.Executor)
	if !ok {
		return nil, fmt.Errorf("scenario %s: unknown executor type: %s", name, sc.Executor)
	}

	cfg := &executor.Config{
		Name:         name,
		Type:         typ,
		VUs:          sc.VUs,
		Duration:     time.Duration(sc.Duration),
		Iterations:   sc.Iterations,
		StartVUs:     sc.StartVUs,
		GracefulStop: time.Duration(sc.GracefulStop),
	}
	if opts != nil {
		cfg.ControlInterval = time.Duration(opts.ControlInterval)
	}

	for _, stage := range sc.Stages {
		cfg.Stages = append(cfg.Stages, executor.Stage{
			Duration: time.Duration(stage.Duration),
			Target:   stage.Target,
			Name:     stage.Name,
		})
	}

	if sc.Pacing != nil {
		cfg.Pacing = &executor.PacingConfig{
			Type:     executor.PacingType(sc.Pacing.Type),
			Duration: time.Duration(sc.Pacing.Duration),
			Min:      time.Duration(sc.Pacing.Min),
			Max:      time.Duration(sc.Pacing.Max),
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("scenario %s: %w", name, err)
	}
	return cfg, nil
}

// Workflow returns the normalized workflow name the scenario runs.
func (sc *ScenarioConfig) Workflow(name string) string {
	exec := sc.Exec
	if exec == "" {
		exec = name
	}
	if n, ok := workflow.Normalize(exec); ok {
		return n
	}
	return exec
}

// MetricTags returns the scenario tags as metric tags.
func (sc *ScenarioConfig) MetricTags() metrics.Tags {
	tags := make(metrics.Tags, len(sc.Tags))
	for k, v := range sc.Tags {
		tags[k] = v
	}
	return tags
}

// ThresholdDefinitions flattens the thresholds map, ordered by metric.
func (c *TestConfig) ThresholdDefinitions() []threshold.Definition {
	names := make([]string, 0, len(c.Thresholds))
	for name := range c.Thresholds {
		names = append(names, name)
	}
	sort.Strings(names)

	var defs []threshold.Definition
	for _, name := range names {
		for _, spec := range c.Thresholds[name] {
			defs = append(defs, threshold.Definition{
				Metric:      name,
				Expression:  spec.Threshold,
				AbortOnFail: spec.AbortOnFail,
			})
		}
	}
	return defs
}

// MetricsConfig returns the aggregator configuration.
func (c *TestConfig) MetricsConfig() metrics.EngineConfig {
	cfg := metrics.DefaultEngineConfig()
	if c.Options != nil && c.Options.TrendExactLimit > 0 {
		cfg.TrendExactLimit = c.Options.TrendExactLimit
	}
	return cfg
}

// ThresholdInterval returns how often abortOnFail thresholds are checked.
func (c *TestConfig) ThresholdInterval() time.Duration {
	if c.Options == nil {
		return threshold.DefaultInterval
	}
	return c.Options.ThresholdInterval.GetDuration(threshold.DefaultInterval)
}

// HTTPClientConfig returns the transport settings.
func (c *TestConfig) HTTPClientConfig() performance.HTTPClientConfig {
	cfg := performance.DefaultHTTPClientConfig()
	cfg.Timeout = c.Settings.Timeout.GetDuration(DefaultTimeout)
	if c.Settings.MaxIdleConnsPerHost > 0 {
		cfg.MaxIdleConnsPerHost = c.Settings.MaxIdleConnsPerHost
	}
	if c.Settings.MaxConnectionsPerHost > 0 {
		cfg.MaxConnsPerHost = c.Settings.MaxConnectionsPerHost
	}
	cfg.InsecureSkipVerify = c.Settings.InsecureSkipVerify
	return cfg
}

// ClientOptions returns the workflow client options for these settings.
func (c *TestConfig) ClientOptions() []workflow.ClientOption {
	timeout := c.Settings.Timeout.GetDuration(DefaultTimeout)
	opts := []workflow.ClientOption{
		workflow.WithBaseURL(c.Settings.BaseURL),
		workflow.WithTimeout(timeout),
		workflow.WithHTTPClient(performance.NewHTTPClient(c.HTTPClientConfig())),
		workflow.WithRateLimit(c.Settings.RPS, c.Settings.RPSBurst),
	}
	if c.Settings.UserAgent != "" {
		opts = append(opts, workflow.WithHeader("User-Agent", c.Settings.UserAgent))
	}
	for k, v := range c.Settings.Headers {
		opts = append(opts, workflow.WithHeader(k, v))
	}
	return opts
}

// Select keeps only the named scenarios. An unknown name is an error.
func (c *TestConfig) Select(names []string) error {
	if len(names) == 0 {
		return nil
	}

	keep := make(map[string]*ScenarioConfig, len(names))
	var unknown []string
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		sc, ok := c.Scenarios[name]
		if !ok {
			unknown = append(unknown, name)
			continue
		}
		keep[name] = sc
	}
	if len(unknown) > 0 {
		return fmt.Errorf("unknown scenario(s): %s (available: %s)",
			strings.Join(unknown, ", "), strings.Join(c.ScenarioNames(), ", "))
	}
	if len(keep) == 0 {
		return fmt.Errorf("no scenario selected")
	}
	c.Scenarios = keep
	return nil
}
