package session

// State is the connection state of a Session.
type State string

const (
	// StateIdle means no client has been initialised.
	StateIdle State = "idle"
	// StateDisconnected means a client exists but is not paired or its link is down.
	StateDisconnected State = "disconnected"
	// StateConnected means the link is established and sends are permitted.
	StateConnected State = "connected"
)

// String implements fmt.Stringer.
func (s State) String() string {
	return string(s)
}

// Valid reports whether s is one of the defined states.
func (s State) Valid() bool {
	switch s {
	case StateIdle, StateDisconnected, StateConnected:
		return true
	}
	return false
}
