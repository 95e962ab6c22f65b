package session

import "errors"

// Domain errors for session lifecycle operations.
var (
	// ErrAwaitingConnection means the session has never been initialised.
	// Recoverable: initialise and retry after a short delay.
	ErrAwaitingConnection = errors.New("session: waiting for connection")

	// ErrNoActiveConnection means a client exists but its link is down or
	// not yet paired. Recoverable by completing pairing.
	ErrNoActiveConnection = errors.New("session: no active connection found")

	// ErrClientConstruction wraps failures building or starting a client.
	ErrClientConstruction = errors.New("session: failed to construct client")

	// ErrRestartRequested is the synthetic reason passed to Client.End when
	// the transport is restarted on request.
	ErrRestartRequested = errors.New("session: restart requested")
)
