package service

import "time"

// TimestampLayout is the format of ClientStatus.LastActivity, rendered in the
// bridge's local time zone.
const TimestampLayout = "2006-01-02 15:04:05"

// ServerStatus reports the configured listener settings and whether the
// acceptor is currently accepting connections
type ServerStatus struct {
	BindAddress        string `json:"bind_address"`
	Port               int    `json:"port"`
	IdleTimeoutSeconds int    `json:"idle_timeout_seconds"`
	Active             bool   `json:"active"`
}

// ClientStatus describes one identified client with a live session
type ClientStatus struct {
	Identity     string `json:"identity"`
	RemoteIP     string `json:"remote_ip"`
	SessionID    int64  `json:"session_id"`
	LastActivity string `json:"last_activity"`
}

// Stats holds lifecycle counters for metrics and diagnostics
type Stats struct {
	State                State     `json:"state"`
	Restarts             int64     `json:"restarts"`
	BindFailures         int64     `json:"bind_failures"`
	LiveSessions         int       `json:"live_sessions"`
	RegisteredIdentities int       `json:"registered_identities"`
	BoundAt              time.Time `json:"bound_at,omitempty"`
}

// State is the acceptor lifecycle state
type State int

const (
	// StateUninitialized means Start has never been called
	StateUninitialized State = iota
	// StateActive means an acceptor is bound and accepting
	StateActive
	// StateInactive means the last bind failed or the acceptor was disposed
	StateInactive
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateActive:
		return "active"
	case StateInactive:
		return "inactive"
	default:
		return "unknown"
	}
}

// MarshalText renders the state by name in JSON output.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}
