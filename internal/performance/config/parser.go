package config

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"github.com/wesleyorama2/prload/internal/performance/executor"
)

// EnvBaseURL overrides settings.baseUrl when set.
const EnvBaseURL = "BASE_URL"

// Defaults applied by ApplyDefaults.
const (
	DefaultBaseURL   = "http://localhost:8080"
	DefaultTimeout   = 10 * time.Second
	DefaultUserAgent = "prload/1.0"
)

//go:embed schema.json
var schemaJSON string

//go:embed default.yaml
var defaultYAML []byte

var compiledSchema = mustCompileSchema()

func mustCompileSchema() *jsonschema.Schema {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", strings.NewReader(schemaJSON)); err != nil {
		panic(fmt.Sprintf("invalid embedded schema: %v", err))
	}
	return compiler.MustCompile("schema.json")
}

// LoadConfig loads a test configuration from a file.
//
// The file format is determined by extension:
//   - .yaml, .yml -> YAML
//   - .json -> JSON
//
// The returned config is validated and has defaults applied.
func LoadConfig(path string) (*TestConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return ParseConfig(data, path)
}

// Default returns the built-in configuration: the smoke, baseline and
// stress scenarios with the standard latency and error thresholds.
func Default() *TestConfig {
	cfg, err := ParseConfig(defaultYAML, "default.yaml")
	if err != nil {
		panic(fmt.Sprintf("invalid embedded default config: %v", err))
	}
	return cfg
}

// ParseConfig parses, validates and defaults configuration data.
//
// The format is determined by the file extension in path, or defaults to
// YAML if the path is empty or has an unknown extension. The raw document
// is checked against the embedded JSON Schema before it is decoded, then
// validated semantically; every problem found is reported in one
// *ValidationErrors.
func ParseConfig(data []byte, path string) (*TestConfig, error) {
	doc, err := toJSON(data, path)
	if err != nil {
		return nil, err
	}

	if errs := validateSchema(doc); errs.HasErrors() {
		return nil, errs
	}

	var config TestConfig
	if err := json.Unmarshal(doc, &config); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	ApplyDefaults(&config)
	return &config, nil
}

// toJSON normalises the input document to JSON.
func toJSON(data []byte, path string) ([]byte, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".json" {
		var probe any
		if err := json.Unmarshal(data, &probe); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config: %w", err)
		}
		return data, nil
	}

	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		if ext == ".yaml" || ext == ".yml" || ext == "" {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
		return nil, fmt.Errorf("failed to parse config (unknown format %s): %w", ext, err)
	}
	if raw == nil {
		raw = map[string]any{}
	}

	out, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to convert YAML config: %w", err)
	}
	return out, nil
}

func validateSchema(doc []byte) *ValidationErrors {
	errs := &ValidationErrors{}

	dec := json.NewDecoder(bytes.NewReader(doc))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		errs.Add("", fmt.Sprintf("invalid document: %v", err))
		return errs
	}

	err := compiledSchema.Validate(v)
	if err == nil {
		return errs
	}
	ve, ok := err.(*jsonschema.ValidationError)
	if !ok {
		errs.Add("", err.Error())
		return errs
	}
	collectSchemaErrors(ve, errs)
	return errs
}

// collectSchemaErrors adds the leaf causes of a schema failure.
func collectSchemaErrors(ve *jsonschema.ValidationError, errs *ValidationErrors) {
	if len(ve.Causes) == 0 {
		errs.Add(pointerToField(ve.InstanceLocation), ve.Message)
		return
	}
	for _, cause := range ve.Causes {
		collectSchemaErrors(cause, errs)
	}
}

// pointerToField turns "/scenarios/smoke/stages/0" into
// "scenarios.smoke.stages[0]".
func pointerToField(ptr string) string {
	ptr = strings.TrimPrefix(ptr, "/")
	if ptr == "" {
		return ""
	}
	var sb strings.Builder
	for i, part := range strings.Split(ptr, "/") {
		part = strings.ReplaceAll(strings.ReplaceAll(part, "~1", "/"), "~0", "~")
		if _, err := strconv.Atoi(part); err == nil && i > 0 {
			sb.WriteString("[" + part + "]")
			continue
		}
		if i > 0 {
			sb.WriteByte('.')
		}
		sb.WriteString(part)
	}
	return sb.String()
}

// ParseDurationString parses a duration string with support for common formats.
//
// Supported formats:
//   - Standard Go duration: "30s", "2m", "1h30m", "500ms"
//   - Seconds as integer: "30" (treated as 30 seconds)
func ParseDurationString(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}

	d, err := time.ParseDuration(s)
	if err == nil {
		return d, nil
	}

	if seconds, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Duration(seconds) * time.Second, nil
	}

	return 0, fmt.Errorf("invalid duration format: %s", s)
}

// ApplyDefaults applies default values to a TestConfig.
func ApplyDefaults(config *TestConfig) {
	if config.Settings.BaseURL == "" {
		config.Settings.BaseURL = DefaultBaseURL
	}
	if config.Settings.Timeout == 0 {
		config.Settings.Timeout = Duration(DefaultTimeout)
	}
	if config.Settings.MaxConnectionsPerHost == 0 {
		config.Settings.MaxConnectionsPerHost = 100
	}
	if config.Settings.MaxIdleConnsPerHost == 0 {
		config.Settings.MaxIdleConnsPerHost = 100
	}
	if config.Settings.UserAgent == "" {
		config.Settings.UserAgent = DefaultUserAgent
	}

	if config.Options == nil {
		config.Options = &ExecutionOptions{}
	}

	for name, sc := range config.Scenarios {
		applyScenarioDefaults(name, sc)
	}
}

// applyScenarioDefaults applies default values to a scenario.
func applyScenarioDefaults(name string, sc *ScenarioConfig) {
	if sc.Exec == "" {
		// A scenario named after a workflow runs that workflow.
		sc.Exec = name
	}
	if typ, ok := executor.ParseType(sc.Executor); ok {
		sc.Executor = string(typ)
		if typ == executor.TypeConstantVUs && sc.VUs == 0 {
			sc.VUs = 1
		}
	}
}

// OverrideBaseURL applies the BASE_URL environment variable and then the
// flag value; the flag wins.
func OverrideBaseURL(config *TestConfig, flagValue string) {
	if env := os.Getenv(EnvBaseURL); env != "" {
		config.Settings.BaseURL = env
	}
	if flagValue != "" {
		config.Settings.BaseURL = flagValue
	}
}
