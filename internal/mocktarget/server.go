// Package mocktarget is an in-memory stand-in for the pull-request reviewer
// service, used for local runs and end-to-end tests.
package mocktarget

import (
	"encoding/json"
	"net/http"
	"sort"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/wesleyorama2/prload/internal/logging"
)

// Options tune the mock.
type Options struct {
	// Latency is added to every request.
	Latency time.Duration

	// FailEvery makes every Nth request fail with 500. 0 disables it.
	FailEvery int

	// Seed drives reviewer selection.
	Seed int64

	Logger *zap.Logger
}

// Server serves the reviewer-service API from memory.
type Server struct {
	store    *store
	opts     Options
	logger   *zap.Logger
	requests atomic.Int64
	router   chi.Router
}

// New creates a server with empty state.
func New(opts Options) *Server {
	if opts.Seed == 0 {
		opts.Seed = time.Now().UnixNano()
	}
	s := &Server{
		store:  newStore(opts.Seed),
		opts:   opts,
		logger: logging.OrNop(opts.Logger),
	}
	s.router = s.routes()
	return s
}

// Requests returns the number of requests served.
func (s *Server) Requests() int64 {
	return s.requests.Load()
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.inject)

	r.Get("/health", s.health)

	r.Route("/team", func(r chi.Router) {
		r.Post("/add", s.createTeam)
		r.Get("/get", s.getTeam)
		r.Post("/deactivateUsers", s.deactivateUsers)
	})

	r.Route("/users", func(r chi.Router) {
		r.Post("/setIsActive", s.setIsActive)
		r.Get("/getReview", s.getReviews)
	})

	r.Route("/pullRequest", func(r chi.Router) {
		r.Post("/create", s.createPR)
		r.Post("/merge", s.mergePR)
		r.Post("/reassign", s.reassign)
	})

	r.Route("/stats", func(r chi.Router) {
		r.Get("/reviewers", s.reviewerStats)
		r.Get("/pullRequests", s.prStats)
	})

	return r
}

// inject adds the configured latency and failures.
func (s *Server) inject(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := s.requests.Add(1)

		if s.opts.Latency > 0 {
			t := time.NewTimer(s.opts.Latency)
			select {
			case <-r.Context().Done():
				t.Stop()
				return
			case <-t.C:
			}
		}

		if s.opts.FailEvery > 0 && n%int64(s.opts.FailEvery) == 0 {
			s.respondJSON(w, http.StatusInternalServerError, errorBody(CodeInternal, "injected failure"))
			return
		}

		next.ServeHTTP(w, r)
	})
}

// Payloads.

// TeamMember is a member of a team payload.
type TeamMember struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	IsActive bool   `json:"is_active"`
}

type teamDTO struct {
	TeamName string       `json:"team_name"`
	Members  []TeamMember `json:"members"`
}

type userDTO struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	TeamName string `json:"team_name"`
	IsActive bool   `json:"is_active"`
}

type prDTO struct {
	PullRequestID     string     `json:"pull_request_id"`
	PullRequestName   string     `json:"pull_request_name"`
	AuthorID          string     `json:"author_id"`
	Status            string     `json:"status"`
	AssignedReviewers []string   `json:"assigned_reviewers"`
	CreatedAt         time.Time  `json:"createdAt"`
	MergedAt          *time.Time `json:"mergedAt,omitempty"`
}

type prShortDTO struct {
	PullRequestID   string `json:"pull_request_id"`
	PullRequestName string `json:"pull_request_name"`
	AuthorID        string `json:"author_id"`
	Status          string `json:"status"`
}

type reviewerStat struct {
	UserID           string `json:"user_id"`
	AssignmentsCount int    `json:"assignments_count"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error errorDetail `json:"error"`
}

func errorBody(code, message string) errorResponse {
	return errorResponse{Error: errorDetail{Code: code, Message: message}}
}

func toPRDTO(pr *pullRequest) prDTO {
	reviewers := pr.reviewers
	if reviewers == nil {
		reviewers = []string{}
	}
	return prDTO{
		PullRequestID:     pr.id,
		PullRequestName:   pr.name,
		AuthorID:          pr.author,
		Status:            pr.status,
		AssignedReviewers: reviewers,
		CreatedAt:         pr.createdAt,
		MergedAt:          pr.mergedAt,
	}
}

func toTeamDTO(name string, users []user) teamDTO {
	members := make([]TeamMember, len(users))
	for i, u := range users {
		members[i] = TeamMember{UserID: u.id, Username: u.username, IsActive: u.active}
	}
	return teamDTO{TeamName: name, Members: members}
}

// Handlers.

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (s *Server) createTeam(w http.ResponseWriter, r *http.Request) {
	var req teamDTO
	if !s.decode(w, r, &req) {
		return
	}
	if req.TeamName == "" {
		s.invalid(w, "team_name is required")
		return
	}

	users, err := s.store.createTeam(req.TeamName, req.Members)
	if err != nil {
		s.respondError(w, err)
		return
	}
	out := make([]user, len(users))
	for i, u := range users {
		out[i] = *u
	}
	s.respondJSON(w, http.StatusCreated, map[string]any{"team": toTeamDTO(req.TeamName, out)})
}

func (s *Server) getTeam(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("team_name")
	if name == "" {
		s.invalid(w, "team_name query parameter is required")
		return
	}
	users, err := s.store.team(name)
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, toTeamDTO(name, users))
}

func (s *Server) deactivateUsers(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TeamName string   `json:"team_name"`
		UserIDs  []string `json:"user_ids"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	if req.TeamName == "" {
		s.invalid(w, "team_name is required")
		return
	}

	deactivated, affected, err := s.store.deactivate(req.TeamName, req.UserIDs)
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{
		"team_name":         req.TeamName,
		"deactivated_count": deactivated,
		"affected_pr_count": affected,
	})
}

func (s *Server) setIsActive(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID   string `json:"user_id"`
		IsActive bool   `json:"is_active"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	if req.UserID == "" {
		s.invalid(w, "user_id is required")
		return
	}

	u, err := s.store.setActive(req.UserID, req.IsActive)
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"user": userDTO{
		UserID: u.id, Username: u.username, TeamName: u.team, IsActive: u.active,
	}})
}

func (s *Server) getReviews(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		s.invalid(w, "user_id query parameter is required")
		return
	}

	prs, err := s.store.reviews(userID)
	if err != nil {
		s.respondError(w, err)
		return
	}
	short := make([]prShortDTO, len(prs))
	for i, pr := range prs {
		short[i] = prShortDTO{PullRequestID: pr.id, PullRequestName: pr.name, AuthorID: pr.author, Status: pr.status}
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"user_id": userID, "pull_requests": short})
}

func (s *Server) createPR(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PullRequestID   string `json:"pull_request_id"`
		PullRequestName string `json:"pull_request_name"`
		AuthorID        string `json:"author_id"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	if req.PullRequestID == "" || req.PullRequestName == "" || req.AuthorID == "" {
		s.invalid(w, "pull_request_id, pull_request_name and author_id are required")
		return
	}

	pr, err := s.store.createPR(req.PullRequestID, req.PullRequestName, req.AuthorID)
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusCreated, map[string]any{"pr": toPRDTO(pr)})
}

func (s *Server) mergePR(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PullRequestID string `json:"pull_request_id"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	if req.PullRequestID == "" {
		s.invalid(w, "pull_request_id is required")
		return
	}

	pr, err := s.store.merge(req.PullRequestID)
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"pr": toPRDTO(pr)})
}

func (s *Server) reassign(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PullRequestID string `json:"pull_request_id"`
		OldUserID     string `json:"old_user_id"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	if req.PullRequestID == "" || req.OldUserID == "" {
		s.invalid(w, "pull_request_id and old_user_id are required")
		return
	}

	pr, replacedBy, err := s.store.reassign(req.PullRequestID, req.OldUserID)
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"pr": toPRDTO(pr), "replaced_by": replacedBy})
}

func (s *Server) reviewerStats(w http.ResponseWriter, r *http.Request) {
	stats := s.store.reviewerStats()
	out := make([]reviewerStat, 0, len(stats))
	for id, n := range stats {
		out = append(out, reviewerStat{UserID: id, AssignmentsCount: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].AssignmentsCount != out[j].AssignmentsCount {
			return out[i].AssignmentsCount > out[j].AssignmentsCount
		}
		return out[i].UserID < out[j].UserID
	})
	s.respondJSON(w, http.StatusOK, map[string]any{"reviewers": out})
}

func (s *Server) prStats(w http.ResponseWriter, r *http.Request) {
	open, merged := s.store.prStats()
	s.respondJSON(w, http.StatusOK, map[string]int{"open": open, "merged": merged})
}

// Helper methods

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		s.invalid(w, "invalid request body")
		return false
	}
	return true
}

func (s *Server) invalid(w http.ResponseWriter, message string) {
	s.respondJSON(w, http.StatusBadRequest, errorBody(CodeInvalidRequest, message))
}

func (s *Server) respondError(w http.ResponseWriter, err error) {
	if apiErr, ok := err.(*apiError); ok {
		s.respondJSON(w, apiErr.status, errorBody(apiErr.code, apiErr.message))
		return
	}
	s.logger.Error("internal server error", zap.Error(err))
	s.respondJSON(w, http.StatusInternalServerError, errorBody(CodeInternal, "internal server error"))
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("failed to encode JSON response", zap.Error(err))
	}
}
