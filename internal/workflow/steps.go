package workflow

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/wesleyorama2/prload/internal/performance"
	"github.com/wesleyorama2/prload/internal/performance/metrics"
)

// Step names, used as the "name" tag on every sample.
const (
	StepHealthCheck      = "health_check"
	StepCreateTeam       = "create_team"
	StepGetTeam          = "get_team"
	StepCreatePR         = "create_pr"
	StepMergePR          = "merge_pr"
	StepReassignReviewer = "reassign_reviewer"
	StepGetReviews       = "get_reviews"
	StepReviewerStats    = "reviewer_stats"
	StepPRStats          = "pr_stats"
)

// Result is the outcome of one step.
//
// A status that does not match the expectation is not an error: OK is
// false and the workflow decides whether to continue.
type Result struct {
	Step     string
	OK       bool
	Skipped  bool
	Response *Response

	// Identifiers minted or extracted by the step, for chaining.
	TeamName   string
	MemberIDs  []string
	PRID       string
	Reviewers  []string
	ReplacedBy string
	PRStatus   string
}

// Status returns the response status code, 0 when nothing was received.
func (r Result) Status() int {
	if r.Response == nil {
		return 0
	}
	return r.Response.StatusCode
}

// Steps are the workflow building blocks for one VU iteration. Each step
// sends exactly one request and records exactly one "errors" sample,
// unless the VU was interrupted, in which case it does neither.
type Steps struct {
	ctx    context.Context
	client *Client
	vu     *performance.VirtualUser
}

// NewSteps binds the steps to a VU for the current iteration.
func NewSteps(ctx context.Context, client *Client, vu *performance.VirtualUser) *Steps {
	return &Steps{ctx: ctx, client: client, vu: vu}
}

// VU returns the virtual user the steps run on behalf of.
func (s *Steps) VU() *performance.VirtualUser {
	return s.vu
}

// ID mints a run-unique identifier.
func (s *Steps) ID(prefix string) string {
	return s.vu.GenerateID(prefix)
}

// Sleep parks the VU. It returns false when the VU was interrupted, in
// which case the workflow should return.
func (s *Steps) Sleep(d time.Duration) bool {
	return s.vu.Sleep(s.ctx, d)
}

// Count adds delta to a counter tagged with the VU's tags.
func (s *Steps) Count(name string, delta float64) {
	if s.vu.Metrics != nil {
		s.vu.Metrics.Add(name, delta, s.vu.Tags())
	}
}

func (s *Steps) call(req Request, expect int) Result {
	res := Result{Step: req.Name}

	resp := s.client.Do(s.ctx, s.vu, req)
	if resp == nil {
		res.Skipped = true
		return res
	}

	res.Response = resp
	res.OK = resp.Err == nil && resp.StatusCode == expect
	if s.vu.Metrics != nil {
		s.vu.Metrics.RecordSuccess(metrics.Errors, res.OK, s.vu.Tags().With("name", req.Name))
	}
	return res
}

// HealthCheck calls GET /health and expects 200.
func (s *Steps) HealthCheck() Result {
	return s.call(Request{Name: StepHealthCheck, Method: http.MethodGet, Path: "/health"}, http.StatusOK)
}

// CreateTeam creates a team with memberCount fresh active members and
// expects 201.
func (s *Steps) CreateTeam(teamName string, memberCount int) Result {
	members := make([]TeamMember, memberCount)
	for i := range members {
		members[i] = TeamMember{
			UserID:   s.ID("user"),
			Username: fmt.Sprintf("User%d_%d", s.vu.ID, i),
			IsActive: true,
		}
	}

	res := s.call(Request{
		Name:   StepCreateTeam,
		Method: http.MethodPost,
		Path:   "/team/add",
		Body:   CreateTeamRequest{TeamName: teamName, Members: members},
	}, http.StatusCreated)

	res.TeamName = teamName
	res.MemberIDs = make([]string, len(members))
	for i, m := range members {
		res.MemberIDs[i] = m.UserID
	}
	return res
}

// GetTeam calls GET /team/get and expects 200. MemberIDs holds the members
// returned by the service.
func (s *Steps) GetTeam(teamName string) Result {
	res := s.call(Request{
		Name:   StepGetTeam,
		Method: http.MethodGet,
		Path:   "/team/get",
		Query:  url.Values{"team_name": {teamName}},
	}, http.StatusOK)

	res.TeamName = teamName
	if res.OK {
		res.MemberIDs = res.Response.Strings("members.#.user_id")
	}
	return res
}

// CreatePR opens a pull request authored by authorID and expects 201.
// Reviewers holds the reviewers the service assigned.
func (s *Steps) CreatePR(authorID string) Result {
	prID := s.ID("pr")
	res := s.call(Request{
		Name:   StepCreatePR,
		Method: http.MethodPost,
		Path:   "/pullRequest/create",
		Body: CreatePRRequest{
			PullRequestID:   prID,
			PullRequestName: "Feature " + prID,
			AuthorID:        authorID,
		},
	}, http.StatusCreated)

	res.PRID = prID
	if res.OK {
		res.Reviewers = res.Response.Strings("pr.assigned_reviewers")
		res.PRStatus = res.Response.Get("pr.status").String()
	}
	return res
}

// MergePR merges prID and expects 200.
func (s *Steps) MergePR(prID string) Result {
	res := s.call(Request{
		Name:   StepMergePR,
		Method: http.MethodPost,
		Path:   "/pullRequest/merge",
		Body:   MergePRRequest{PullRequestID: prID},
	}, http.StatusOK)

	res.PRID = prID
	if res.OK {
		res.PRStatus = res.Response.Get("pr.status").String()
		res.Reviewers = res.Response.Strings("pr.assigned_reviewers")
	}
	return res
}

// ReassignReviewer replaces oldUserID on prID and expects 200.
func (s *Steps) ReassignReviewer(prID, oldUserID string) Result {
	res := s.call(Request{
		Name:   StepReassignReviewer,
		Method: http.MethodPost,
		Path:   "/pullRequest/reassign",
		Body:   ReassignRequest{PullRequestID: prID, OldUserID: oldUserID},
	}, http.StatusOK)

	res.PRID = prID
	if res.OK {
		res.ReplacedBy = res.Response.Get("replaced_by").String()
		res.Reviewers = res.Response.Strings("pr.assigned_reviewers")
		res.PRStatus = res.Response.Get("pr.status").String()
	}
	return res
}

// GetReviews lists the pull requests userID reviews and expects 200.
func (s *Steps) GetReviews(userID string) Result {
	return s.call(Request{
		Name:   StepGetReviews,
		Method: http.MethodGet,
		Path:   "/users/getReview",
		Query:  url.Values{"user_id": {userID}},
	}, http.StatusOK)
}

// GetReviewerStats calls GET /stats/reviewers and expects 200.
func (s *Steps) GetReviewerStats() Result {
	return s.call(Request{Name: StepReviewerStats, Method: http.MethodGet, Path: "/stats/reviewers"}, http.StatusOK)
}

// GetPRStats calls GET /stats/pullRequests and expects 200.
func (s *Steps) GetPRStats() Result {
	return s.call(Request{Name: StepPRStats, Method: http.MethodGet, Path: "/stats/pullRequests"}, http.StatusOK)
}
