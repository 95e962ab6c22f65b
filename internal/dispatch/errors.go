package dispatch

import "errors"

// Domain errors for message dispatch. Connection-state failures are
// returned unchanged from session.CheckConnection.
var (
	// ErrMissingParameters is returned when the recipient, text or media
	// source is empty.
	ErrMissingParameters = errors.New("dispatch: missing required parameters")

	// ErrInvalidRecipientFormat is returned when the recipient does not
	// normalise to a numeric account address.
	ErrInvalidRecipientFormat = errors.New("dispatch: invalid recipient format")

	// ErrRecipientNotFound is returned when the network reports no
	// account for the recipient.
	ErrRecipientNotFound = errors.New("dispatch: number not exists")

	// ErrUnsupportedMediaKind is returned for attachment kinds that have no
	// send action, and for files that do not match their declared kind.
	ErrUnsupportedMediaKind = errors.New("dispatch: unsupported media kind")

	// ErrSendFailed wraps errors from the protocol client's send call.
	ErrSendFailed = errors.New("dispatch: failed send message")
)
