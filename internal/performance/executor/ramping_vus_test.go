package executor_test

import (
	"context"
	"math"
	"sync/atomic"
	"testing"
	"time"

	"github.com/wesleyorama2/prload/internal/performance"
	"github.com/wesleyorama2/prload/internal/performance/executor"
	"github.com/wesleyorama2/prload/internal/performance/metrics"
)

// sleepScenario creates a scenario whose iterations only sleep.
func sleepScenario(d time.Duration) *performance.Scenario {
	return &performance.Scenario{
		Name: "executor-test",
		Workflow: func(ctx context.Context, vu *performance.VirtualUser) {
			vu.Sleep(ctx, d)
		},
	}
}

func TestNewRampingVUs(t *testing.T) {
	e := executor.NewRampingVUs()
	if e == nil {
		t.Fatal("NewRampingVUs() returned nil")
	}
	if e.Type() != executor.TypeRampingVUs {
		t.Errorf("Type() = %v, want %v", e.Type(), executor.TypeRampingVUs)
	}
}

func TestRampingVUs_Init(t *testing.T) {
	tests := []struct {
		name    string
		config  *executor.Config
		wantErr bool
	}{
		{
			name: "valid",
			config: &executor.Config{
				Type: executor.TypeRampingVUs,
				Stages: []executor.Stage{
					{Duration: 30 * time.Second, Target: 10},
					{Duration: time.Minute, Target: 10},
					{Duration: 30 * time.Second, Target: 0},
				},
			},
		},
		{
			name:    "wrong type",
			config:  &executor.Config{Type: executor.TypeConstantVUs, VUs: 1, Duration: time.Second},
			wantErr: true,
		},
		{
			name:    "no stages",
			config:  &executor.Config{Type: executor.TypeRampingVUs},
			wantErr: true,
		},
		{
			name: "negative target",
			config: &executor.Config{
				Type:   executor.TypeRampingVUs,
				Stages: []executor.Stage{{Duration: time.Second, Target: -1}},
			},
			wantErr: true,
		},
		{
			name: "zero total duration",
			config: &executor.Config{
				Type:   executor.TypeRampingVUs,
				Stages: []executor.Stage{{Duration: 0, Target: 5}},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := executor.NewRampingVUs().Init(context.Background(), tt.config)
			if (err != nil) != tt.wantErr {
				t.Errorf("Init() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestTargetAt_LinearRamp(t *testing.T) {
	const n = 20
	stages := []executor.Stage{{Duration: 30 * time.Second, Target: n}}

	for sec := 0; sec < 30; sec++ {
		got, stage := executor.TargetAt(stages, 0, time.Duration(sec)*time.Second)
		want := int(math.Round(float64(n) * float64(sec) / 30))
		if got != want {
			t.Errorf("TargetAt(%ds) = %d, want %d", sec, got, want)
		}
		if stage != 0 {
			t.Errorf("stage at %ds = %d, want 0", sec, stage)
		}
	}

	if got, _ := executor.TargetAt(stages, 0, time.Minute); got != n {
		t.Errorf("TargetAt past end = %d, want %d", got, n)
	}
}

func TestTargetAt_Stages(t *testing.T) {
	// baseline profile: up to 10, hold, down to 0
	stages := []executor.Stage{
		{Duration: 30 * time.Second, Target: 10},
		{Duration: time.Minute, Target: 10},
		{Duration: 30 * time.Second, Target: 0},
	}

	tests := []struct {
		elapsed   time.Duration
		want      int
		wantStage int
	}{
		{0, 0, 0},
		{15 * time.Second, 5, 0},
		{30 * time.Second, 10, 1},
		{60 * time.Second, 10, 1},
		{90 * time.Second, 10, 2},
		{105 * time.Second, 5, 2},
		{120 * time.Second, 0, 2},
	}

	for _, tt := range tests {
		got, stage := executor.TargetAt(stages, 0, tt.elapsed)
		if got != tt.want || stage != tt.wantStage {
			t.Errorf("TargetAt(%v) = (%d, %d), want (%d, %d)", tt.elapsed, got, stage, tt.want, tt.wantStage)
		}
	}
}

func TestTargetAt_StartVUsAndZeroDurationStage(t *testing.T) {
	stages := []executor.Stage{
		{Duration: 0, Target: 8},
		{Duration: 10 * time.Second, Target: 4},
	}

	if got, stage := executor.TargetAt(stages, 2, 0); got != 8 || stage != 1 {
		t.Errorf("zero-duration stage should jump: got (%d, %d), want (8, 1)", got, stage)
	}
	if got, _ := executor.TargetAt(stages, 2, 5*time.Second); got != 6 {
		t.Errorf("TargetAt(5s) = %d, want 6", got)
	}

	ramp := []executor.Stage{{Duration: 10 * time.Second, Target: 0}}
	if got, _ := executor.TargetAt(ramp, 6, 0); got != 6 {
		t.Errorf("TargetAt with startVUs = %d, want 6", got)
	}
}

func TestRampingVUs_Run(t *testing.T) {
	engine := metrics.NewEngine()
	scheduler := performance.NewVUScheduler(sleepScenario(20*time.Millisecond), engine, performance.SchedulerOptions{})

	e := executor.NewRampingVUs()
	config := &executor.Config{
		Type: executor.TypeRampingVUs,
		Stages: []executor.Stage{
			{Duration: 200 * time.Millisecond, Target: 4},
			{Duration: 200 * time.Millisecond, Target: 4},
		},
		ControlInterval: 20 * time.Millisecond,
		GracefulStop:    time.Second,
	}
	if err := e.Init(context.Background(), config); err != nil {
		t.Fatalf("Init() error = %v", err)
	}

	var peak atomic.Int32
	stop := make(chan struct{})
	go func() {
		for {
			select {
			case <-stop:
				return
			default:
			}
			if n := int32(engine.ActiveVUs()); n > peak.Load() {
				peak.Store(n)
			}
			time.Sleep(5 * time.Millisecond)
		}
	}()

	start := time.Now()
	if err := e.Run(context.Background(), scheduler); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	close(stop)

	if elapsed := time.Since(start); elapsed < 400*time.Millisecond {
		t.Errorf("Run() returned after %v, want >= 400ms", elapsed)
	}
	if p := peak.Load(); p > 4 {
		t.Errorf("live VUs peaked at %d, want <= 4", p)
	}
	if engine.MaxVUs() != 4 {
		t.Errorf("MaxVUs() = %d, want 4", engine.MaxVUs())
	}
	if engine.ActiveVUs() != 0 {
		t.Errorf("ActiveVUs() after Run = %d, want 0", engine.ActiveVUs())
	}

	stats := e.GetStats()
	if stats.Iterations == 0 {
		t.Error("no iterations recorded")
	}
	if stats.TotalStages != 2 {
		t.Errorf("TotalStages = %d, want 2", stats.TotalStages)
	}
	if e.GetProgress() != 1.0 {
		t.Errorf("GetProgress() after Run = %v, want 1.0", e.GetProgress())
	}
}

func TestRampingVUs_ParentCancelInterrupts(t *testing.T) {
	scheduler := performance.NewVUScheduler(sleepScenario(10*time.Second), nil, performance.SchedulerOptions{})

	e := executor.NewRampingVUs()
	config := &executor.Config{
		Type:            executor.TypeRampingVUs,
		Stages:          []executor.Stage{{Duration: 0, Target: 3}, {Duration: time.Minute, Target: 3}},
		ControlInterval: 10 * time.Millisecond,
		GracefulStop:    time.Minute,
	}
	if err := e.Init(context.Background(), config); err != nil {
		t.Fatalf("Init() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	if err := e.Run(ctx, scheduler); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("Run() took %v after cancellation", elapsed)
	}
	if scheduler.Running() != 0 {
		t.Errorf("Running() = %d after Run, want 0", scheduler.Running())
	}
}

func TestRampingVUs_Stop(t *testing.T) {
	scheduler := performance.NewVUScheduler(sleepScenario(5*time.Millisecond), nil, performance.SchedulerOptions{})

	e := executor.NewRampingVUs()
	config := &executor.Config{
		Type:            executor.TypeRampingVUs,
		Stages:          []executor.Stage{{Duration: time.Minute, Target: 2}},
		ControlInterval: 10 * time.Millisecond,
	}
	if err := e.Init(context.Background(), config); err != nil {
		t.Fatalf("Init() error = %v", err)
	}

	done := make(chan struct{})
	go func() {
		_ = e.Run(context.Background(), scheduler)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	_ = e.Stop(context.Background())

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run() did not return after Stop()")
	}
}
