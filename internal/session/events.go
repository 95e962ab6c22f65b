package session

import "time"

// EventKind identifies a session notification.
type EventKind string

const (
	// EventStateChanged carries the new State.
	EventStateChanged EventKind = "state"
	// EventPairingCode carries a pairing challenge to show the user.
	EventPairingCode EventKind = "pairing"
)

// Event is delivered to observers of a Session.
type Event struct {
	TenantID string
	Kind     EventKind
	State    State
	Code     string
	At       time.Time

	// Replay is set on the delayed re-announcement after Connect; the
	// state did not change.
	Replay bool
}

// Observer receives Session events.
type Observer func(Event)
