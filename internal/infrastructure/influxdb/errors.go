package influxdb

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrNotConnected is returned by HealthCheck after Close.
	ErrNotConnected = errors.New("influxdb: not connected")

	// ErrConnectionFailed is returned when the server does not answer the
	// startup ping.
	ErrConnectionFailed = errors.New("influxdb: connection failed")

	// ErrWriteFailed is wrapped by every error passed to the SetOnError
	// callback.
	ErrWriteFailed = errors.New("influxdb: write failed")

	// ErrDisabled is returned by Connect when influxdb.enabled is false.
	ErrDisabled = errors.New("influxdb: disabled in configuration")
)

// WriteError describes a telemetry batch the server failed to accept.
// Batches that carry session state are retried longer than dispatch and
// cleanup points; Retrying is false once the batch has been dropped.
type WriteError struct {
	// Points counts the batch's points per measurement.
	Points     map[string]int
	StatusCode int
	// Attempt is 0 for the first write.
	Attempt  uint
	Retrying bool
	Err      error
}

func (e *WriteError) Error() string {
	names := make([]string, 0, len(e.Points))
	for m, n := range e.Points {
		names = append(names, fmt.Sprintf("%s=%d", m, n))
	}
	sort.Strings(names)

	action := "dropped"
	if e.Retrying {
		action = "will retry"
	}
	return fmt.Sprintf("influxdb: write of [%s] failed (attempt %d, %s): %v",
		strings.Join(names, " "), e.Attempt, action, e.Err)
}

func (e *WriteError) Unwrap() []error {
	return []error{ErrWriteFailed, e.Err}
}
