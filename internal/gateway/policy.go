package gateway

import (
	"context"
	"time"

	"github.com/nerrad567/wa-gateway/internal/session"
)

// Initializer is the part of a Session the auto-initialize policy drives.
type Initializer interface {
	State() session.State
	InitializeConnection(ctx context.Context) (session.Client, error)
}

// AutoInitPolicy is the retry policy read and send paths apply to idle
// sessions: initialize the client, then give pairing or link
// establishment Settle to complete before the caller checks state.
//
// The state machine never initializes itself on a read. Callers that want
// the cold-start behaviour go through Apply.
type AutoInitPolicy struct {
	Settle time.Duration

	// Disabled skips initialization entirely; idle sessions stay idle and
	// the caller's CheckConnection reports ErrAwaitingConnection.
	Disabled bool
}

// Apply initializes sess if it is idle and waits Settle.
//
// Returns:
//   - bool: true if an initialization was started by this call
//   - error: construction failures (session.ErrClientConstruction) or
//     ctx cancellation during the settle wait
func (p AutoInitPolicy) Apply(ctx context.Context, sess Initializer) (bool, error) {
	if p.Disabled || sess.State() != session.StateIdle {
		return false, nil
	}
	if _, err := sess.InitializeConnection(ctx); err != nil {
		return true, err
	}
	return true, sleep(ctx, p.Settle)
}

// sleep waits d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
