package realtime

import "time"

// ChainEvent announces a committed change to a revision chain.
type ChainEvent struct {
	Event   string    `json:"event"`
	PID     string    `json:"pid"`
	SID     string    `json:"sid,omitempty"`
	HeadPID string    `json:"head_pid,omitempty"`
	At      time.Time `json:"at"`
}
