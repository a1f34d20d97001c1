package core

import "time"

type ProjectType string

const (
	ProjectLocal    ProjectType = "local"
	ProjectGitHub   ProjectType = "github"
	ProjectE2B      ProjectType = "e2b"
	ProjectWorktree ProjectType = "worktree"
)

type SessionStatus string

const (
	StatusActive    SessionStatus = "active"
	StatusCompleted SessionStatus = "completed"
	StatusError     SessionStatus = "error"
	StatusStale     SessionStatus = "stale"
	StatusCrashed   SessionStatus = "crashed"
)

// Valid reports whether s is one of the known session states.
func (s SessionStatus) Valid() bool {
	switch s {
	case StatusActive, StatusCompleted, StatusError, StatusStale, StatusCrashed:
		return true
	}
	return false
}

// IsTerminal returns true once a session can no longer receive agent traffic.
func (s SessionStatus) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusError, StatusStale, StatusCrashed:
		return true
	}
	return false
}

type Session struct {
	ID              string            `json:"id"`
	ProjectPath     string            `json:"project_path"`
	ProjectType     ProjectType       `json:"project_type"`
	Status          SessionStatus     `json:"status"`
	ClaudeSessionID *string           `json:"claude_session_id,omitempty"`
	Metadata        map[string]string `json:"metadata"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
	Version         int64             `json:"version"`
}
