package workflow_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wesleyorama2/prload/internal/mocktarget"
	"github.com/wesleyorama2/prload/internal/performance"
	"github.com/wesleyorama2/prload/internal/performance/metrics"
	"github.com/wesleyorama2/prload/internal/workflow"
)

func newTarget(t *testing.T, opts mocktarget.Options) *workflow.Client {
	t.Helper()
	if opts.Seed == 0 {
		opts.Seed = 1
	}
	srv := httptest.NewServer(mocktarget.New(opts))
	t.Cleanup(srv.Close)
	return workflow.NewClient(workflow.WithBaseURL(srv.URL), workflow.WithTimeout(5*time.Second))
}

func newVU(ctx context.Context, engine *metrics.Engine) *performance.VirtualUser {
	scenario := &performance.Scenario{Name: "test", Tags: metrics.Tags{"test_type": "unit"}}
	return performance.NewVirtualUser(ctx, 1, scenario, engine)
}

func counter(t *testing.T, engine *metrics.Engine, name string) float64 {
	t.Helper()
	snap, ok := engine.Snapshot(name)
	if !ok {
		return 0
	}
	return snap.Value
}

func TestSteps_ChainThroughService(t *testing.T) {
	client := newTarget(t, mocktarget.Options{})
	engine := metrics.NewEngine()
	vu := newVU(context.Background(), engine)
	s := workflow.NewSteps(context.Background(), client, vu)

	assert.True(t, s.HealthCheck().OK)

	team := s.CreateTeam("team-a", 4)
	require.True(t, team.OK, "status %d", team.Status())
	require.Len(t, team.MemberIDs, 4)
	assert.Equal(t, http.StatusCreated, team.Status())

	again := s.CreateTeam("team-a", 1)
	assert.False(t, again.OK)
	assert.False(t, again.Skipped)
	assert.Equal(t, mocktarget.CodeTeamExists, again.Response.ErrorCode())

	got := s.GetTeam("team-a")
	require.True(t, got.OK)
	assert.Equal(t, team.MemberIDs, got.MemberIDs)

	pr := s.CreatePR(team.MemberIDs[0])
	require.True(t, pr.OK)
	assert.NotEmpty(t, pr.PRID)
	assert.Len(t, pr.Reviewers, 2)
	assert.Equal(t, workflow.StatusOpen, pr.PRStatus)

	re := s.ReassignReviewer(pr.PRID, pr.Reviewers[0])
	require.True(t, re.OK)
	assert.NotEmpty(t, re.ReplacedBy)
	assert.NotContains(t, re.Reviewers, pr.Reviewers[0])

	merged := s.MergePR(pr.PRID)
	require.True(t, merged.OK)
	assert.Equal(t, workflow.StatusMerged, merged.PRStatus)

	assert.True(t, s.GetReviews(team.MemberIDs[1]).OK)
	assert.True(t, s.GetReviewerStats().OK)
	assert.True(t, s.GetPRStats().OK)

	// One request and one errors sample per step.
	errs, ok := engine.Snapshot(metrics.Errors)
	require.True(t, ok)
	assert.Equal(t, int64(10), errs.Count)
	assert.Equal(t, int64(1), errs.Hits)
	assert.Equal(t, 10.0, counter(t, engine, metrics.HTTPReqs))

	failed, ok := engine.Snapshot(metrics.HTTPReqFailed)
	require.True(t, ok)
	assert.Equal(t, int64(1), failed.Hits)

	dur, ok := engine.Snapshot(metrics.HTTPReqDuration)
	require.True(t, ok)
	assert.Equal(t, int64(10), dur.Count)
	assert.Greater(t, counter(t, engine, metrics.DataReceived), 0.0)
}

func TestSteps_TagSamples(t *testing.T) {
	client := newTarget(t, mocktarget.Options{})
	engine := metrics.NewEngine()
	require.NoError(t, engine.RegisterSubmetric("http_reqs{name:health_check}"))
	require.NoError(t, engine.RegisterSubmetric("errors{test_type:unit}"))

	vu := newVU(context.Background(), engine)
	s := workflow.NewSteps(context.Background(), client, vu)
	s.HealthCheck()
	s.GetPRStats()

	health, ok := engine.Snapshot("http_reqs{name:health_check}")
	require.True(t, ok)
	assert.Equal(t, 1.0, health.Value)

	errs, ok := engine.Snapshot("errors{test_type:unit}")
	require.True(t, ok)
	assert.Equal(t, int64(2), errs.Count)
}

func TestSteps_SkippedAfterInterrupt(t *testing.T) {
	client := newTarget(t, mocktarget.Options{})
	engine := metrics.NewEngine()
	vu := newVU(context.Background(), engine)
	vu.Interrupt()

	res := workflow.NewSteps(context.Background(), client, vu).CreateTeam("t", 2)
	assert.True(t, res.Skipped)
	assert.False(t, res.OK)
	assert.Nil(t, res.Response)

	assert.Equal(t, 0.0, counter(t, engine, metrics.HTTPReqs))
	snap, _ := engine.Snapshot(metrics.Errors)
	assert.Equal(t, int64(0), snap.Count)
}

func TestSteps_InFlightRequestSurvivesInterrupt(t *testing.T) {
	client := newTarget(t, mocktarget.Options{Latency: 300 * time.Millisecond})
	engine := metrics.NewEngine()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	vu := newVU(ctx, engine)
	s := workflow.NewSteps(vu.Context(), client, vu)

	stop := time.AfterFunc(50*time.Millisecond, func() {
		vu.Interrupt()
		cancel()
	})
	defer stop.Stop()

	start := time.Now()
	res := s.HealthCheck()

	assert.GreaterOrEqual(t, time.Since(start), 300*time.Millisecond)
	assert.True(t, vu.Interrupted())
	assert.False(t, res.Skipped)
	assert.True(t, res.OK)
	assert.Equal(t, http.StatusOK, res.Status())

	errs, ok := engine.Snapshot(metrics.Errors)
	require.True(t, ok)
	assert.Equal(t, int64(1), errs.Count)
	assert.Equal(t, int64(0), errs.Hits)
	assert.Equal(t, 1.0, counter(t, engine, metrics.HTTPReqs))

	// nothing new is sent once the VU is interrupted
	assert.True(t, s.HealthCheck().Skipped)
	assert.Equal(t, 1.0, counter(t, engine, metrics.HTTPReqs))
}

func TestSteps_TransportError(t *testing.T) {
	client := workflow.NewClient(workflow.WithBaseURL("http://127.0.0.1:1"), workflow.WithTimeout(time.Second))
	engine := metrics.NewEngine()
	vu := newVU(context.Background(), engine)

	res := workflow.NewSteps(context.Background(), client, vu).HealthCheck()
	assert.False(t, res.OK)
	assert.False(t, res.Skipped)
	require.NotNil(t, res.Response)
	assert.Error(t, res.Response.Err)
	assert.Equal(t, 0, res.Status())

	failed, _ := engine.Snapshot(metrics.HTTPReqFailed)
	assert.Equal(t, 1.0, failed.Rate)
	errs, _ := engine.Snapshot(metrics.Errors)
	assert.Equal(t, 1.0, errs.Rate)
}

func TestRegistry(t *testing.T) {
	assert.Equal(t, []string{"baseline", "lifecycle", "smoke", "stress"}, workflow.Names())

	for _, name := range []string{"smoke", "Baseline", "stressTest", " lifecycle "} {
		_, ok := workflow.Lookup(name)
		assert.True(t, ok, name)
	}
	_, ok := workflow.Lookup("soak")
	assert.False(t, ok)

	_, err := workflow.Bind("soak", workflow.NewClient())
	assert.ErrorContains(t, err, "unknown workflow")

	assert.NotEmpty(t, workflow.Describe("smoke"))
}

func TestStress_Iteration(t *testing.T) {
	client := newTarget(t, mocktarget.Options{})
	engine := metrics.NewEngine()

	fn, err := workflow.Bind(workflow.Stress, client)
	require.NoError(t, err)

	scenario := &performance.Scenario{Name: "stress", Workflow: fn}
	vu := performance.NewVirtualUser(context.Background(), 1, scenario, engine)
	require.NoError(t, vu.RunIteration())

	// team + 2 PRs + 1 merge + 5 reviews + stats
	assert.Equal(t, 10.0, counter(t, engine, metrics.HTTPReqs))
	assert.Equal(t, 1.0, counter(t, engine, metrics.PRMerged))
	assert.Equal(t, 0.0, counter(t, engine, metrics.PRCreateSkipped))

	errs, _ := engine.Snapshot(metrics.Errors)
	assert.Equal(t, int64(10), errs.Count)
	assert.Equal(t, 0.0, errs.Rate)
	assert.Equal(t, 1.0, counter(t, engine, metrics.Iterations))
}

func TestStress_SkipsFailedPRCreation(t *testing.T) {
	// Every second request fails: create PR #1 and the merge fail.
	client := newTarget(t, mocktarget.Options{FailEvery: 2})
	engine := metrics.NewEngine()

	fn, err := workflow.Bind(workflow.Stress, client)
	require.NoError(t, err)

	vu := performance.NewVirtualUser(context.Background(), 1, &performance.Scenario{Name: "stress", Workflow: fn}, engine)
	require.NoError(t, vu.RunIteration())

	assert.Equal(t, 1.0, counter(t, engine, metrics.PRCreateSkipped))
	assert.Equal(t, 0.0, counter(t, engine, metrics.PRMerged))
	assert.Equal(t, 10.0, counter(t, engine, metrics.HTTPReqs))

	errs, _ := engine.Snapshot(metrics.Errors)
	assert.Equal(t, 0.5, errs.Rate)
}

func TestSmoke_InterruptCutsSleep(t *testing.T) {
	client := newTarget(t, mocktarget.Options{})
	engine := metrics.NewEngine()

	fn, err := workflow.Bind(workflow.Smoke, client)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	vu := performance.NewVirtualUser(ctx, 1, &performance.Scenario{Name: "smoke", Workflow: fn}, engine)

	time.AfterFunc(50*time.Millisecond, cancel)
	start := time.Now()
	require.NoError(t, vu.RunIteration())

	assert.Less(t, time.Since(start), 900*time.Millisecond)
	assert.Equal(t, 1.0, counter(t, engine, metrics.HTTPReqs))
}

func TestClient_RateLimit(t *testing.T) {
	srv := httptest.NewServer(mocktarget.New(mocktarget.Options{Seed: 1}))
	defer srv.Close()

	client := workflow.NewClient(workflow.WithBaseURL(srv.URL), workflow.WithRateLimit(20, 1))
	vu := newVU(context.Background(), metrics.NewEngine())
	s := workflow.NewSteps(context.Background(), client, vu)

	start := time.Now()
	for i := 0; i < 5; i++ {
		require.True(t, s.HealthCheck().OK)
	}
	// 1 burst token, then 4 more at 50ms each.
	assert.GreaterOrEqual(t, time.Since(start), 150*time.Millisecond)
}
