// Package config provides configuration parsing and validation for load
// test runs.
package config

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// TestConfig is the root configuration for a load test run.
//
// Example YAML:
//
//	name: "reviewer service"
//	settings:
//	  baseUrl: "http://localhost:8080"
//	scenarios:
//	  baseline:
//	    executor: ramping-vus
//	    stages:
//	      - duration: 30s
//	        target: 5
//	    exec: baseline
//	thresholds:
//	  errors: ["rate<0.01"]
type TestConfig struct {
	// Name of the test (for reporting)
	Name string `json:"name,omitempty" yaml:"name,omitempty"`

	// Description of the test (optional)
	Description string `json:"description,omitempty" yaml:"description,omitempty"`

	// Settings contains global settings for all scenarios
	Settings GlobalSettings `json:"settings,omitempty" yaml:"settings,omitempty"`

	// Scenarios defines the load profiles to run
	// Each scenario runs independently with its own executor
	Scenarios map[string]*ScenarioConfig `json:"scenarios" yaml:"scenarios"`

	// Thresholds map a metric, optionally with a {tag:value} selector, to
	// its pass/fail expressions.
	Thresholds map[string][]ThresholdSpec `json:"thresholds,omitempty" yaml:"thresholds,omitempty"`

	// Options for test execution
	Options *ExecutionOptions `json:"options,omitempty" yaml:"options,omitempty"`
}

// GlobalSettings contains transport settings shared by all scenarios.
type GlobalSettings struct {
	// BaseURL of the reviewer service
	BaseURL string `json:"baseUrl,omitempty" yaml:"baseUrl,omitempty"`

	// Timeout bounds a single request
	Timeout Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`

	MaxConnectionsPerHost int  `json:"maxConnectionsPerHost,omitempty" yaml:"maxConnectionsPerHost,omitempty"`
	MaxIdleConnsPerHost   int  `json:"maxIdleConnsPerHost,omitempty" yaml:"maxIdleConnsPerHost,omitempty"`
	InsecureSkipVerify    bool `json:"insecureSkipVerify,omitempty" yaml:"insecureSkipVerify,omitempty"`

	// UserAgent is the default User-Agent header
	UserAgent string `json:"userAgent,omitempty" yaml:"userAgent,omitempty"`

	// Headers are default headers applied to all requests
	Headers map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`

	// RPS caps the request rate across all VUs. 0 means unlimited.
	RPS      float64 `json:"rps,omitempty" yaml:"rps,omitempty"`
	RPSBurst int     `json:"rpsBurst,omitempty" yaml:"rpsBurst,omitempty"`
}

// ScenarioConfig defines a single load profile.
type ScenarioConfig struct {
	// Executor specifies the concurrency policy
	// Options: "constant-vus", "ramping-vus" (or "constant", "ramping")
	Executor string `json:"executor" yaml:"executor"`

	// VUs is the number of virtual users (constant-vus)
	VUs int `json:"vus,omitempty" yaml:"vus,omitempty"`

	// Duration is how long to hold VUs (constant-vus)
	Duration Duration `json:"duration,omitempty" yaml:"duration,omitempty"`

	// StartVUs is the concurrency before the first stage (ramping-vus)
	StartVUs int `json:"startVUs,omitempty" yaml:"startVUs,omitempty"`

	// Stages defines ramping stages (ramping-vus)
	Stages []StageConfig `json:"stages,omitempty" yaml:"stages,omitempty"`

	// StartTime is the offset from the start of the run
	StartTime Duration `json:"startTime,omitempty" yaml:"startTime,omitempty"`

	// Tags are attached to every sample of this scenario
	Tags map[string]string `json:"tags,omitempty" yaml:"tags,omitempty"`

	// Exec names the workflow to run
	Exec string `json:"exec,omitempty" yaml:"exec,omitempty"`

	// GracefulStop is how long to wait for iterations to finish
	GracefulStop Duration `json:"gracefulStop,omitempty" yaml:"gracefulStop,omitempty"`

	// Iterations caps iterations per VU (0 = unlimited)
	Iterations int64 `json:"iterations,omitempty" yaml:"iterations,omitempty"`

	// Pacing controls time between iterations
	Pacing *PacingConfig `json:"pacing,omitempty" yaml:"pacing,omitempty"`
}

// StageConfig defines a single stage in a ramping executor.
type StageConfig struct {
	Duration Duration `json:"duration" yaml:"duration"`
	Target   int      `json:"target" yaml:"target"`
	Name     string   `json:"name,omitempty" yaml:"name,omitempty"`
}

// PacingConfig controls pacing between iterations.
type PacingConfig struct {
	// Type is the pacing strategy: "none", "constant", "random"
	Type     string   `json:"type" yaml:"type"`
	Duration Duration `json:"duration,omitempty" yaml:"duration,omitempty"`
	Min      Duration `json:"min,omitempty" yaml:"min,omitempty"`
	Max      Duration `json:"max,omitempty" yaml:"max,omitempty"`
}

// ExecutionOptions controls engine timing.
type ExecutionOptions struct {
	// ControlInterval is the ramp controller tick
	ControlInterval Duration `json:"controlInterval,omitempty" yaml:"controlInterval,omitempty"`

	// ThresholdInterval is how often abortOnFail thresholds are checked
	ThresholdInterval Duration `json:"thresholdInterval,omitempty" yaml:"thresholdInterval,omitempty"`

	// TrendExactLimit is the sample count up to which trend percentiles
	// are exact
	TrendExactLimit int `json:"trendExactLimit,omitempty" yaml:"trendExactLimit,omitempty"`
}

// ThresholdSpec is one threshold expression. It is written either as a
// plain string or as {threshold, abortOnFail}.
type ThresholdSpec struct {
	Threshold   string `json:"threshold" yaml:"threshold"`
	AbortOnFail bool   `json:"abortOnFail,omitempty" yaml:"abortOnFail,omitempty"`
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *ThresholdSpec) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*t = ThresholdSpec{Threshold: s}
		return nil
	}

	type plain ThresholdSpec
	var p plain
	if err := json.Unmarshal(b, &p); err != nil {
		return fmt.Errorf("threshold must be a string or {threshold, abortOnFail}: %w", err)
	}
	*t = ThresholdSpec(p)
	return nil
}

// MarshalJSON writes the short string form when abortOnFail is unset.
func (t ThresholdSpec) MarshalJSON() ([]byte, error) {
	if !t.AbortOnFail {
		return json.Marshal(t.Threshold)
	}
	type plain ThresholdSpec
	return json.Marshal(plain(t))
}

// Duration is a time.Duration that can be unmarshaled from Go duration
// strings ("30s", "1m") or integer seconds.
type Duration time.Duration

// GetDuration returns the duration or a default if empty.
func (d Duration) GetDuration(defaultValue time.Duration) time.Duration {
	if d == 0 {
		return defaultValue
	}
	return time.Duration(d)
}

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return []byte(`"` + time.Duration(d).String() + `"`), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Duration) UnmarshalJSON(b []byte) error {
	s := string(b)
	if s == "null" {
		*d = 0
		return nil
	}
	if unquoted, err := strconv.Unquote(s); err == nil {
		s = unquoted
	}

	dur, err := ParseDurationString(s)
	if err != nil {
		return err
	}
	*d = Duration(dur)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// String returns the duration as a string.
func (d Duration) String() string {
	return time.Duration(d).String()
}
