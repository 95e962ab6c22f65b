package mqtt

import (
	"errors"
	"fmt"
)

// Errors returned by the broker client. Session publish and command
// failures wrap these, so callers can match them with errors.Is.
var (
	// ErrNotConnected is returned while the broker link is down.
	ErrNotConnected = errors.New("mqtt: broker not connected")

	// ErrConnectionFailed is returned when the first connection attempt fails.
	ErrConnectionFailed = errors.New("mqtt: broker connection failed")

	// ErrPublishFailed wraps failures to mirror a session event.
	ErrPublishFailed = errors.New("mqtt: publishing session event failed")

	// ErrPayloadTooLarge is returned before a publish larger than the broker limit.
	ErrPayloadTooLarge = fmt.Errorf("%w: payload too large", ErrPublishFailed)

	// ErrSubscribeFailed wraps failures to listen for session commands.
	ErrSubscribeFailed = errors.New("mqtt: subscribing to session commands failed")

	// ErrInvalidQoS is returned for QoS levels other than 0, 1 or 2.
	ErrInvalidQoS = errors.New("mqtt: invalid QoS level (must be 0, 1, or 2)")

	// ErrInvalidTopic is returned for an empty topic.
	ErrInvalidTopic = errors.New("mqtt: topic cannot be empty")

	// ErrInvalidTenant is returned when a tenant id cannot form one topic
	// level: it is empty or holds a separator or wildcard.
	ErrInvalidTenant = errors.New("mqtt: tenant id is not a valid topic level")

	// ErrNotSessionTopic is returned by command routing for a message that
	// did not arrive on <prefix>/session/<tenant>/command.
	ErrNotSessionTopic = errors.New("mqtt: not a session command topic")
)
