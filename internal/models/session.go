package models

import "time"

// SessionStatus represents the lifecycle state of a cracking session
type SessionStatus string

const (
	SessionStatusRunning   SessionStatus = "running"
	SessionStatusPaused    SessionStatus = "paused"
	SessionStatusCompleted SessionStatus = "completed"
	SessionStatusError     SessionStatus = "error"
	SessionStatusStopped   SessionStatus = "stopped"
)

// IsTerminal reports whether the status is final. Terminal states are
// irreversible: a session never leaves completed, error or stopped.
func (s SessionStatus) IsTerminal() bool {
	switch s {
	case SessionStatusCompleted, SessionStatusError, SessionStatusStopped:
		return true
	default:
		return false
	}
}

// SessionView is the observer-facing summary of an active session
type SessionView struct {
	ID        string        `json:"id"`
	Name      string        `json:"name"`
	Status    SessionStatus `json:"status"`
	Target    string        `json:"target"`
	StartedAt time.Time     `json:"started_at"`
	Recovered int           `json:"recovered"`
	Total     int           `json:"total"`
}

// Snapshot seeds a newly connected observer with the current state of the
// world: the shared potfile contents plus every active session. Observers
// never receive events that happened before they connected.
type Snapshot struct {
	Potfile  []string      `json:"potfile"`
	Sessions []SessionView `json:"sessions"`
}
