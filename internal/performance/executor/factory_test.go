package executor_test

import (
	"context"
	"testing"
	"time"

	"github.com/wesleyorama2/prload/internal/performance/executor"
)

func TestParseType(t *testing.T) {
	tests := []struct {
		input  string
		want   executor.Type
		wantOK bool
	}{
		{"constant-vus", executor.TypeConstantVUs, true},
		{"constant", executor.TypeConstantVUs, true},
		{"Ramping-VUs", executor.TypeRampingVUs, true},
		{"ramping", executor.TypeRampingVUs, true},
		{"constant-arrival-rate", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		got, ok := executor.ParseType(tt.input)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("ParseType(%q) = (%q, %v), want (%q, %v)", tt.input, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestNewExecutor(t *testing.T) {
	for _, typ := range executor.GetSupportedExecutors() {
		e, err := executor.NewExecutor(typ)
		if err != nil {
			t.Fatalf("NewExecutor(%s) error = %v", typ, err)
		}
		if e.Type() != typ {
			t.Errorf("NewExecutor(%s).Type() = %s", typ, e.Type())
		}
		if executor.GetExecutorDescription(typ) == nil {
			t.Errorf("missing description for %s", typ)
		}
	}

	if _, err := executor.NewExecutor("per-vu-iterations"); err == nil {
		t.Error("NewExecutor(per-vu-iterations) expected error")
	}
}

func TestCreateAndInitExecutor_Alias(t *testing.T) {
	cfg := &executor.Config{
		Type:   "ramping",
		Stages: []executor.Stage{{Duration: time.Second, Target: 1}},
	}

	e, err := executor.CreateAndInitExecutor(context.Background(), cfg)
	if err != nil {
		t.Fatalf("CreateAndInitExecutor() error = %v", err)
	}
	if e.Type() != executor.TypeRampingVUs {
		t.Errorf("Type() = %s, want ramping-vus", e.Type())
	}
	if cfg.Type != executor.TypeRampingVUs {
		t.Errorf("config type not normalized: %s", cfg.Type)
	}
}

func TestConfig_Helpers(t *testing.T) {
	cfg := &executor.Config{
		Type:     executor.TypeRampingVUs,
		StartVUs: 3,
		Stages: []executor.Stage{
			{Duration: 10 * time.Second, Target: 7},
			{Duration: 5 * time.Second, Target: 2},
		},
	}

	if got := cfg.TotalDuration(); got != 15*time.Second {
		t.Errorf("TotalDuration() = %v, want 15s", got)
	}
	if got := cfg.MaxVUs(); got != 7 {
		t.Errorf("MaxVUs() = %d, want 7", got)
	}
	if got := cfg.GracefulStopOrDefault(); got != executor.DefaultGracefulStop {
		t.Errorf("GracefulStopOrDefault() = %v, want %v", got, executor.DefaultGracefulStop)
	}
}

func TestPacingConfig(t *testing.T) {
	var none *executor.PacingConfig
	if none.Pacer() != nil {
		t.Error("nil pacing should have no pacer")
	}
	if (&executor.PacingConfig{Type: executor.PacingNone}).Pacer() != nil {
		t.Error("none pacing should have no pacer")
	}

	constant := &executor.PacingConfig{Type: executor.PacingConstant, Duration: 50 * time.Millisecond}
	if got := constant.Next(); got != 50*time.Millisecond {
		t.Errorf("constant Next() = %v, want 50ms", got)
	}

	random := &executor.PacingConfig{Type: executor.PacingRandom, Min: 10 * time.Millisecond, Max: 20 * time.Millisecond}
	for i := 0; i < 100; i++ {
		got := random.Next()
		if got < 10*time.Millisecond || got >= 20*time.Millisecond {
			t.Fatalf("random Next() = %v, want in [10ms, 20ms)", got)
		}
	}
}
