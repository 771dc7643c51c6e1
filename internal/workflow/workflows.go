// Package workflow implements the reviewer-service user journeys run by
// virtual users.
package workflow

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/wesleyorama2/prload/internal/performance"
	"github.com/wesleyorama2/prload/internal/performance/metrics"
)

// Workflow names.
const (
	Smoke     = "smoke"
	Baseline  = "baseline"
	Stress    = "stress"
	Lifecycle = "lifecycle"
)

// Func is one iteration of a workflow.
type Func func(s *Steps)

type entry struct {
	fn          Func
	description string
}

var registry = map[string]entry{
	Smoke:     {fn: smoke, description: "Health check once per second"},
	Baseline:  {fn: baseline, description: "Create team, open and merge a PR, read reviews and reviewer stats"},
	Stress:    {fn: stress, description: "Create a larger team, two PRs, merge, reviews for every member"},
	Lifecycle: {fn: lifecycle, description: "Create team and PR, read team, reassign a reviewer, merge, PR stats"},
}

// aliases accept the exec names used by k6-style scripts.
var aliases = map[string]string{
	"smoketest":     Smoke,
	"baselinetest":  Baseline,
	"stresstest":    Stress,
	"lifecycletest": Lifecycle,
}

// Names returns the workflow names, sorted.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Describe returns a one-line description of the named workflow.
func Describe(name string) string {
	if e, ok := lookup(name); ok {
		return e.description
	}
	return ""
}

// Normalize resolves aliases and case. It returns false for unknown names.
func Normalize(name string) (string, bool) {
	key := strings.ToLower(strings.TrimSpace(name))
	if alias, ok := aliases[key]; ok {
		key = alias
	}
	_, ok := registry[key]
	return key, ok
}

func lookup(name string) (entry, bool) {
	key, ok := Normalize(name)
	if !ok {
		return entry{}, false
	}
	return registry[key], true
}

// Lookup returns the named workflow.
func Lookup(name string) (Func, bool) {
	e, ok := lookup(name)
	return e.fn, ok
}

// Bind turns the named workflow into a performance.WorkflowFunc using
// client for every request.
func Bind(name string, client *Client) (performance.WorkflowFunc, error) {
	fn, ok := Lookup(name)
	if !ok {
		return nil, fmt.Errorf("unknown workflow %q (available: %s)", name, strings.Join(Names(), ", "))
	}
	return func(ctx context.Context, vu *performance.VirtualUser) {
		fn(NewSteps(ctx, client, vu))
	}, nil
}

func smoke(s *Steps) {
	s.HealthCheck()
	s.Sleep(time.Second)
}

func baseline(s *Steps) {
	team := s.CreateTeam(s.ID("team"), 4)
	if !s.Sleep(500 * time.Millisecond) {
		return
	}

	if team.OK {
		pr := s.CreatePR(team.MemberIDs[0])
		if !s.Sleep(500 * time.Millisecond) {
			return
		}

		if pr.OK {
			s.MergePR(pr.PRID)
			if !s.Sleep(500 * time.Millisecond) {
				return
			}
		}

		s.GetReviews(team.MemberIDs[1])
		if !s.Sleep(500 * time.Millisecond) {
			return
		}
	}

	s.GetReviewerStats()
	s.Sleep(time.Second)
}

func stress(s *Steps) {
	team := s.CreateTeam(s.ID("team"), 5)

	if team.OK {
		var prs []string
		for i := 0; i < 2; i++ {
			pr := s.CreatePR(team.MemberIDs[i%len(team.MemberIDs)])
			switch {
			case pr.OK:
				prs = append(prs, pr.PRID)
			case !pr.Skipped:
				s.Count(metrics.PRCreateSkipped, 1)
			}
			if !s.Sleep(100 * time.Millisecond) {
				return
			}
		}

		for i, prID := range prs {
			if i%2 != 0 {
				continue
			}
			if merged := s.MergePR(prID); merged.OK && merged.PRStatus == StatusMerged {
				s.Count(metrics.PRMerged, 1)
			}
			if !s.Sleep(100 * time.Millisecond) {
				return
			}
		}

		for _, member := range team.MemberIDs {
			s.GetReviews(member)
			if !s.Sleep(100 * time.Millisecond) {
				return
			}
		}
	}

	s.GetReviewerStats()
	s.Sleep(500 * time.Millisecond)
}

func lifecycle(s *Steps) {
	team := s.CreateTeam(s.ID("team"), 4)
	if !team.OK {
		s.Sleep(time.Second)
		return
	}

	pr := s.CreatePR(team.MemberIDs[0])
	if !s.Sleep(200 * time.Millisecond) {
		return
	}

	s.GetTeam(team.TeamName)
	if !s.Sleep(200 * time.Millisecond) {
		return
	}

	if pr.OK {
		if len(pr.Reviewers) > 0 {
			s.ReassignReviewer(pr.PRID, pr.Reviewers[0])
			if !s.Sleep(200 * time.Millisecond) {
				return
			}
		}
		s.MergePR(pr.PRID)
		if !s.Sleep(200 * time.Millisecond) {
			return
		}
	}

	s.GetPRStats()
	s.Sleep(time.Second)
}
