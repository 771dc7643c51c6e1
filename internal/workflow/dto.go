package workflow

// Request payloads sent to the reviewer service.

// TeamMember is one member in a team payload.
type TeamMember struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	IsActive bool   `json:"is_active"`
}

// CreateTeamRequest is the body of POST /team/add.
type CreateTeamRequest struct {
	TeamName string       `json:"team_name"`
	Members  []TeamMember `json:"members"`
}

// CreatePRRequest is the body of POST /pullRequest/create.
type CreatePRRequest struct {
	PullRequestID   string `json:"pull_request_id"`
	PullRequestName string `json:"pull_request_name"`
	AuthorID        string `json:"author_id"`
}

// MergePRRequest is the body of POST /pullRequest/merge.
type MergePRRequest struct {
	PullRequestID string `json:"pull_request_id"`
}

// ReassignRequest is the body of POST /pullRequest/reassign.
type ReassignRequest struct {
	PullRequestID string `json:"pull_request_id"`
	OldUserID     string `json:"old_user_id"`
}

// PR statuses reported by the service.
const (
	StatusOpen   = "OPEN"
	StatusMerged = "MERGED"
)
