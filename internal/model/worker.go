package model

import "time"

// State is a ChannelWorker's position in its connect/watch/claim/recover cycle.
type State int

const (
	StateConnecting State = iota
	StateWatching
	StateClaimingBonus
	StateRecovering
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateWatching:
		return "watching"
	case StateClaimingBonus:
		return "claiming_bonus"
	case StateRecovering:
		return "recovering"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// WorkerState is the per-channel record owned by a single worker. Values of
// this type handed to other components are copies.
type WorkerState struct {
	Channel       string    `json:"channel"`
	RunID         string    `json:"runId"`
	State         State     `json:"state"`
	ViewingPoints float64   `json:"viewingPoints"`
	ClaimedPoints float64   `json:"claimedPoints"`
	Claims        int       `json:"claims"`
	StartedAt     time.Time `json:"startedAt"`
	RetryCount    int       `json:"retryCount"`
	LastError     string    `json:"lastError,omitempty"`
	Primary       bool      `json:"primary"`
}

// TotalPoints is viewing plus claimed points.
func (w WorkerState) TotalPoints() float64 {
	return w.ViewingPoints + w.ClaimedPoints
}

// MarshalText renders the state by name in JSON output.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}
