package mocktarget

import (
	"math/rand"
	"net/http"
	"sort"
	"sync"
	"time"
)

// Error codes returned in {"error":{"code","message"}} bodies.
const (
	CodeTeamExists     = "TEAM_EXISTS"
	CodePRExists       = "PR_EXISTS"
	CodePRMerged       = "PR_MERGED"
	CodeNotAssigned    = "NOT_ASSIGNED"
	CodeNoCandidate    = "NO_CANDIDATE"
	CodeNotFound       = "NOT_FOUND"
	CodeInvalidRequest = "INVALID_REQUEST"
	CodeInternal       = "INTERNAL_ERROR"
)

const (
	statusOpen   = "OPEN"
	statusMerged = "MERGED"

	maxReviewers = 2
)

// apiError is a service error carrying its HTTP status.
type apiError struct {
	status  int
	code    string
	message string
}

func (e *apiError) Error() string {
	return "[" + e.code + "] " + e.message
}

var (
	errTeamExists   = &apiError{http.StatusBadRequest, CodeTeamExists, "team already exists"}
	errPRExists     = &apiError{http.StatusConflict, CodePRExists, "pull request already exists"}
	errPRMerged     = &apiError{http.StatusConflict, CodePRMerged, "cannot modify merged pull request"}
	errNotAssigned  = &apiError{http.StatusConflict, CodeNotAssigned, "user is not assigned as reviewer"}
	errNoCandidate  = &apiError{http.StatusConflict, CodeNoCandidate, "no active candidates available"}
	errTeamNotFound = &apiError{http.StatusNotFound, CodeNotFound, "team not found"}
	errUserNotFound = &apiError{http.StatusNotFound, CodeNotFound, "user not found"}
	errPRNotFound   = &apiError{http.StatusNotFound, CodeNotFound, "pull request not found"}
)

type user struct {
	id       string
	username string
	team     string
	active   bool
}

type pullRequest struct {
	id        string
	name      string
	author    string
	status    string
	reviewers []string
	createdAt time.Time
	mergedAt  *time.Time
}

func (pr *pullRequest) hasReviewer(id string) bool {
	for _, r := range pr.reviewers {
		if r == id {
			return true
		}
	}
	return false
}

func (pr *pullRequest) clone() *pullRequest {
	cp := *pr
	cp.reviewers = append([]string(nil), pr.reviewers...)
	return &cp
}

// store is the in-memory state of the service. A single mutex guards
// everything; the mock favours simplicity over throughput.
type store struct {
	mu sync.Mutex

	teams map[string][]string
	users map[string]*user
	prs   map[string]*pullRequest
	rand  *rand.Rand
}

func newStore(seed int64) *store {
	return &store{
		teams: make(map[string][]string),
		users: make(map[string]*user),
		prs:   make(map[string]*pullRequest),
		rand:  rand.New(rand.NewSource(seed)),
	}
}

func (s *store) createTeam(name string, members []TeamMember) ([]*user, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.teams[name]; ok {
		return nil, errTeamExists
	}

	ids := make([]string, 0, len(members))
	out := make([]*user, 0, len(members))
	for _, m := range members {
		// Members are upserted; a user moves to the new team.
		if old, ok := s.users[m.UserID]; ok && old.team != name {
			s.teams[old.team] = remove(s.teams[old.team], m.UserID)
		}
		u := &user{id: m.UserID, username: m.Username, team: name, active: m.IsActive}
		s.users[m.UserID] = u
		ids = append(ids, m.UserID)
		out = append(out, u)
	}
	s.teams[name] = ids
	return out, nil
}

func (s *store) team(name string) ([]user, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids, ok := s.teams[name]
	if !ok {
		return nil, errTeamNotFound
	}
	out := make([]user, 0, len(ids))
	for _, id := range ids {
		out = append(out, *s.users[id])
	}
	return out, nil
}

func (s *store) setActive(id string, active bool) (user, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return user{}, errUserNotFound
	}
	u.active = active
	return *u, nil
}

// deactivate marks users inactive and replaces them on open pull requests
// with the first available active teammate.
func (s *store) deactivate(team string, ids []string) (int, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	members, ok := s.teams[team]
	if !ok {
		return 0, 0, errTeamNotFound
	}

	gone := make(map[string]bool, len(ids))
	for _, id := range ids {
		if u, ok := s.users[id]; ok && u.team == team && u.active {
			u.active = false
			gone[id] = true
		}
	}
	if len(gone) == 0 {
		return 0, 0, nil
	}

	affected := 0
	for _, pr := range s.prs {
		if pr.status != statusOpen {
			continue
		}
		touched := false
		kept := pr.reviewers[:0:0]
		for _, r := range pr.reviewers {
			if !gone[r] {
				kept = append(kept, r)
				continue
			}
			touched = true
			exclude := append([]string{pr.author}, pr.reviewers...)
			exclude = append(exclude, kept...)
			if c := s.candidatesLocked(members, exclude); len(c) > 0 {
				kept = append(kept, c[0])
			}
		}
		if touched {
			pr.reviewers = kept
			affected++
		}
	}
	return len(gone), affected, nil
}

func (s *store) createPR(id, name, author string) (*pullRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.prs[id]; ok {
		return nil, errPRExists
	}
	a, ok := s.users[author]
	if !ok {
		return nil, errUserNotFound
	}

	candidates := s.candidatesLocked(s.teams[a.team], []string{author})
	s.rand.Shuffle(len(candidates), func(i, j int) {
		candidates[i], candidates[j] = candidates[j], candidates[i]
	})
	if len(candidates) > maxReviewers {
		candidates = candidates[:maxReviewers]
	}

	pr := &pullRequest{
		id:        id,
		name:      name,
		author:    author,
		status:    statusOpen,
		reviewers: candidates,
		createdAt: time.Now().UTC(),
	}
	s.prs[id] = pr
	return pr.clone(), nil
}

func (s *store) merge(id string) (*pullRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pr, ok := s.prs[id]
	if !ok {
		return nil, errPRNotFound
	}
	if pr.status != statusMerged {
		now := time.Now().UTC()
		pr.status = statusMerged
		pr.mergedAt = &now
	}
	return pr.clone(), nil
}

func (s *store) reassign(id, old string) (*pullRequest, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pr, ok := s.prs[id]
	if !ok {
		return nil, "", errPRNotFound
	}
	if pr.status == statusMerged {
		return nil, "", errPRMerged
	}
	if !pr.hasReviewer(old) {
		return nil, "", errNotAssigned
	}
	oldUser, ok := s.users[old]
	if !ok {
		return nil, "", errUserNotFound
	}

	exclude := append([]string{pr.author}, pr.reviewers...)
	candidates := s.candidatesLocked(s.teams[oldUser.team], exclude)
	if len(candidates) == 0 {
		return nil, "", errNoCandidate
	}
	replacement := candidates[s.rand.Intn(len(candidates))]

	for i, r := range pr.reviewers {
		if r == old {
			pr.reviewers[i] = replacement
			break
		}
	}
	return pr.clone(), replacement, nil
}

func (s *store) reviews(userID string) ([]*pullRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[userID]; !ok {
		return nil, errUserNotFound
	}
	var out []*pullRequest
	for _, pr := range s.prs {
		if pr.hasReviewer(userID) {
			out = append(out, pr.clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].createdAt.Before(out[j].createdAt) })
	return out, nil
}

func (s *store) reviewerStats() map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := make(map[string]int)
	for _, pr := range s.prs {
		for _, r := range pr.reviewers {
			stats[r]++
		}
	}
	return stats
}

func (s *store) prStats() (open, merged int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, pr := range s.prs {
		if pr.status == statusMerged {
			merged++
		} else {
			open++
		}
	}
	return open, merged
}

// candidatesLocked returns the active members not in exclude, in team
// order.
func (s *store) candidatesLocked(members, exclude []string) []string {
	skip := make(map[string]bool, len(exclude))
	for _, id := range exclude {
		skip[id] = true
	}
	var out []string
	for _, id := range members {
		if u := s.users[id]; u != nil && u.active && !skip[id] {
			out = append(out, id)
		}
	}
	return out
}

func remove(ids []string, id string) []string {
	out := ids[:0:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}
