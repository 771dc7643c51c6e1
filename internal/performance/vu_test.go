package performance_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/wesleyorama2/prload/internal/performance"
	"github.com/wesleyorama2/prload/internal/performance/metrics"
)

func newTestScenario(wf performance.WorkflowFunc) *performance.Scenario {
	return &performance.Scenario{
		Name:     "test-scenario",
		Tags:     metrics.Tags{"test_type": "unit"},
		Workflow: wf,
	}
}

func TestVUState_String(t *testing.T) {
	tests := []struct {
		state performance.VUState
		want  string
	}{
		{performance.VUStateIdle, "idle"},
		{performance.VUStateRunning, "running"},
		{performance.VUStateSleeping, "sleeping"},
		{performance.VUStateStopping, "stopping"},
		{performance.VUStateStopped, "stopped"},
		{performance.VUState(99), "unknown"},
	}

	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("VUState(%d).String() = %q, want %q", tt.state, got, tt.want)
		}
	}
}

func TestVirtualUser_RunIteration(t *testing.T) {
	engine := metrics.NewEngine()
	var ids []string

	scenario := newTestScenario(func(ctx context.Context, vu *performance.VirtualUser) {
		ids = append(ids, vu.GenerateID("team"), vu.GenerateID("team"))
	})
	vu := performance.NewVirtualUser(context.Background(), 3, scenario, engine)

	for i := 0; i < 2; i++ {
		if err := vu.RunIteration(); err != nil {
			t.Fatalf("RunIteration() error = %v", err)
		}
	}

	if got := vu.GetIteration(); got != 2 {
		t.Errorf("GetIteration() = %d, want 2", got)
	}
	if vu.GetState() != performance.VUStateIdle {
		t.Errorf("state = %v, want idle", vu.GetState())
	}

	wantPrefixes := []string{"team-3-0-0-", "team-3-0-1-", "team-3-1-0-", "team-3-1-1-"}
	for i, p := range wantPrefixes {
		if !strings.HasPrefix(ids[i], p) {
			t.Errorf("ids[%d] = %q, want prefix %q", i, ids[i], p)
		}
	}

	iters, _ := engine.Snapshot(metrics.Iterations)
	if iters.Value != 2 {
		t.Errorf("iterations = %v, want 2", iters.Value)
	}
	dur, _ := engine.Snapshot(metrics.IterationDuration)
	if dur.Count != 2 {
		t.Errorf("iteration_duration count = %d, want 2", dur.Count)
	}
}

func TestVirtualUser_Tags(t *testing.T) {
	vu := performance.NewVirtualUser(context.Background(), 1, newTestScenario(nil), nil)

	tags := vu.Tags()
	if tags["scenario"] != "test-scenario" || tags["test_type"] != "unit" {
		t.Errorf("Tags() = %v", tags)
	}
}

func TestVirtualUser_RequestStop(t *testing.T) {
	vu := performance.NewVirtualUser(context.Background(), 1, newTestScenario(nil), nil)

	vu.RequestStop()
	vu.RequestStop() // idempotent

	if !vu.IsRetired() {
		t.Error("IsRetired() = false after RequestStop")
	}
	if vu.GetState() != performance.VUStateStopping {
		t.Errorf("state = %v, want stopping", vu.GetState())
	}
	if err := vu.RunIteration(); !errors.Is(err, performance.ErrVUStopping) {
		t.Errorf("RunIteration() after stop error = %v, want ErrVUStopping", err)
	}
}

func TestVirtualUser_RetireMidIterationCompletesIteration(t *testing.T) {
	var vu *performance.VirtualUser
	completed := false

	scenario := newTestScenario(func(ctx context.Context, v *performance.VirtualUser) {
		v.RequestStop()
		if !v.Sleep(ctx, 20*time.Millisecond) {
			return
		}
		completed = true
	})
	vu = performance.NewVirtualUser(context.Background(), 1, scenario, nil)

	if err := vu.RunIteration(); err != nil {
		t.Fatalf("RunIteration() error = %v", err)
	}
	if !completed {
		t.Error("retire request cut the iteration short")
	}
	if vu.GetState() != performance.VUStateStopping {
		t.Errorf("state = %v, want stopping", vu.GetState())
	}
}

func TestVirtualUser_SleepInterrupted(t *testing.T) {
	vu := performance.NewVirtualUser(context.Background(), 1, newTestScenario(nil), nil)

	done := make(chan bool, 1)
	go func() {
		done <- vu.Sleep(context.Background(), 10*time.Second)
	}()

	time.Sleep(20 * time.Millisecond)
	vu.Interrupt()

	select {
	case ok := <-done:
		if ok {
			t.Error("Sleep() = true after Interrupt, want false")
		}
	case <-time.After(time.Second):
		t.Fatal("Sleep() not cut short by Interrupt")
	}

	if !vu.Interrupted() {
		t.Error("Interrupted() = false")
	}
	if vu.Sleep(context.Background(), time.Millisecond) {
		t.Error("Sleep() after interrupt should return false immediately")
	}
}

func TestVirtualUser_ParentCancelInterrupts(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	vu := performance.NewVirtualUser(ctx, 1, newTestScenario(nil), nil)

	cancel()
	if !vu.Interrupted() {
		t.Error("parent cancellation should interrupt the VU")
	}
}

func TestVirtualUser_WorkflowPanic(t *testing.T) {
	engine := metrics.NewEngine()
	scenario := newTestScenario(func(ctx context.Context, vu *performance.VirtualUser) {
		panic("boom")
	})
	vu := performance.NewVirtualUser(context.Background(), 1, scenario, engine)

	err := vu.RunIteration()
	if err == nil || !strings.Contains(err.Error(), "boom") {
		t.Fatalf("RunIteration() error = %v, want panic error", err)
	}
	if vu.GetState() != performance.VUStateIdle {
		t.Errorf("state after panic = %v, want idle", vu.GetState())
	}
}

func TestVirtualUser_MarkStopped(t *testing.T) {
	vu := performance.NewVirtualUser(context.Background(), 1, newTestScenario(nil), nil)

	if vu.WaitForStop(10 * time.Millisecond) {
		t.Error("WaitForStop() = true before MarkStopped")
	}
	vu.MarkStopped()
	vu.MarkStopped()
	if !vu.WaitForStop(10 * time.Millisecond) {
		t.Error("WaitForStop() = false after MarkStopped")
	}
}
