package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/wa-gateway/internal/credentials"
)

// reinitTimeout bounds an event-driven re-initialisation.
const reinitTimeout = 30 * time.Second

// Logger is the logging interface used by sessions.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// CredentialStore is the subset of credentials.Store a Session needs.
type CredentialStore interface {
	Load(ctx context.Context, tenantID string) (credentials.Material, error)
	Delete(tenantID string) error
}

// LogoutPolicy selects how Disconnect treats a failed logout.
type LogoutPolicy int

const (
	// LogoutStrict returns logout failures to the caller.
	LogoutStrict LogoutPolicy = iota
	// LogoutBestEffort logs and swallows logout failures.
	LogoutBestEffort
)

// Config holds the dependencies of a Session.
type Config struct {
	TenantID    string
	Credentials CredentialStore
	Factory     ClientFactory

	// AnnounceDelay is how long after Connect the current state is
	// re-announced. Zero announces synchronously.
	AnnounceDelay time.Duration
}

// Session owns the lifecycle of one tenant's protocol client.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
//   - InitializeConnection, Disconnect, RestartWebSocket and ForceReset are
//     serialised against each other.
type Session struct {
	tenantID      string
	creds         CredentialStore
	factory       ClientFactory
	announceDelay time.Duration
	logger        Logger

	// lifecycleMu serialises operations that replace or drop the client.
	lifecycleMu sync.Mutex

	// mu guards state, client and gen.
	mu     sync.RWMutex
	state  State
	client Client
	gen    uint64

	// emitMu sequences state updates with their notifications.
	emitMu sync.Mutex

	obsMu     sync.RWMutex
	observers map[int]Observer
	nextObs   int
}

// New creates an idle Session.
func New(cfg Config) *Session {
	return &Session{
		tenantID:      cfg.TenantID,
		creds:         cfg.Credentials,
		factory:       cfg.Factory,
		announceDelay: cfg.AnnounceDelay,
		logger:        noopLogger{},
		state:         StateIdle,
		observers:     make(map[int]Observer),
	}
}

// SetLogger sets the logger for the session.
func (s *Session) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	s.logger = logger
}

// TenantID returns the tenant this session serves.
func (s *Session) TenantID() string {
	return s.tenantID
}

// State returns the current connection state.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Client returns the live client, or nil if none exists.
func (s *Session) Client() Client {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.client
}

// SetState updates the state and notifies observers. Setting the current
// state again is a no-op. StateConnected is refused while no client exists.
func (s *Session) SetState(st State) {
	s.setState(0, st)
}

// setState applies st only while gen is the current client generation.
// A zero gen applies unconditionally.
func (s *Session) setState(gen uint64, st State) bool {
	s.emitMu.Lock()
	defer s.emitMu.Unlock()

	s.mu.Lock()
	if gen != 0 && gen != s.gen {
		s.mu.Unlock()
		return false
	}
	if st == StateConnected && s.client == nil {
		s.mu.Unlock()
		s.logger.Warn("refusing connected state without a client", "tenant_id", s.tenantID)
		return false
	}
	if s.state == st {
		s.mu.Unlock()
		return false
	}
	prev := s.state
	s.state = st
	s.mu.Unlock()

	s.logger.Info("session state changed", "tenant_id", s.tenantID, "from", prev, "to", st)
	s.notify(Event{Kind: EventStateChanged, State: st})
	return true
}

// Subscribe registers an observer and returns a function that removes it.
func (s *Session) Subscribe(fn Observer) (unsubscribe func()) {
	s.obsMu.Lock()
	id := s.nextObs
	s.nextObs++
	s.observers[id] = fn
	s.obsMu.Unlock()

	return func() {
		s.obsMu.Lock()
		delete(s.observers, id)
		s.obsMu.Unlock()
	}
}

// notify delivers ev to every observer. Callers hold emitMu.
func (s *Session) notify(ev Event) {
	ev.TenantID = s.tenantID
	if ev.At.IsZero() {
		ev.At = time.Now()
	}

	s.obsMu.RLock()
	observers := make([]Observer, 0, len(s.observers))
	for _, fn := range s.observers {
		observers = append(observers, fn)
	}
	s.obsMu.RUnlock()

	for _, fn := range observers {
		s.deliver(fn, ev)
	}
}

// deliver calls fn, recovering from panics so one observer cannot break
// the session's event stream.
func (s *Session) deliver(fn Observer, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("panic in session observer",
				"tenant_id", s.tenantID,
				"kind", ev.Kind,
				"panic", r,
			)
		}
	}()
	fn(ev)
}

// InitializeConnection ensures a client exists, constructing one from the
// tenant's credentials if needed. An existing client is returned as is.
//
// On construction the state moves to disconnected before the link is
// started. Failures are wrapped in ErrClientConstruction and leave the
// session idle with no client.
func (s *Session) InitializeConnection(ctx context.Context) (Client, error) {
	s.lifecycleMu.Lock()
	defer s.lifecycleMu.Unlock()
	return s.initializeLocked(ctx)
}

func (s *Session) initializeLocked(ctx context.Context) (Client, error) {
	if c := s.Client(); c != nil {
		return c, nil
	}

	material, err := s.creds.Load(ctx, s.tenantID)
	if err != nil {
		s.SetState(StateIdle)
		return nil, fmt.Errorf("%w: loading credentials: %w", ErrClientConstruction, err)
	}

	s.mu.Lock()
	s.gen++
	gen := s.gen
	s.mu.Unlock()

	client, err := s.factory.NewClient(ctx, material, s.handlerFor(gen))
	if err != nil {
		s.logger.Error("client construction failed", "tenant_id", s.tenantID, "error", err)
		s.SetState(StateIdle)
		return nil, fmt.Errorf("%w: %w", ErrClientConstruction, err)
	}

	s.mu.Lock()
	s.client = client
	s.mu.Unlock()
	s.SetState(StateDisconnected)

	if err := client.Connect(ctx); err != nil {
		s.logger.Error("client connect failed", "tenant_id", s.tenantID, "error", err)
		if stale := s.detach(); stale != nil {
			s.closeClient(stale)
		}
		s.SetState(StateIdle)
		return nil, fmt.Errorf("%w: connecting: %w", ErrClientConstruction, err)
	}

	s.logger.Debug("client initialised", "tenant_id", s.tenantID, "generation", gen)
	return client, nil
}

// Connect ensures a client exists and schedules a re-announcement of the
// current state so late observers can catch up.
func (s *Session) Connect(ctx context.Context) (Client, error) {
	client, err := s.InitializeConnection(ctx)
	if err != nil {
		return nil, err
	}

	if s.announceDelay <= 0 {
		s.announce()
	} else {
		time.AfterFunc(s.announceDelay, s.announce)
	}
	return client, nil
}

func (s *Session) announce() {
	s.emitMu.Lock()
	defer s.emitMu.Unlock()
	s.notify(Event{Kind: EventStateChanged, State: s.State(), Replay: true})
}

// CheckConnection is the liveness gate used before every send.
//
// Returns:
//   - ErrAwaitingConnection if the session is idle
//   - ErrNoActiveConnection if it is disconnected or has no client
//   - StateConnected and nil otherwise
func (s *Session) CheckConnection() (State, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	switch {
	case s.state == StateIdle:
		return s.state, ErrAwaitingConnection
	case s.state == StateDisconnected || s.client == nil:
		return s.state, ErrNoActiveConnection
	}
	return StateConnected, nil
}

// RestartWebSocket resets the state to idle and ends the client's
// transport with ErrRestartRequested. The resulting close event rebuilds
// the client. Reports whether a client existed.
func (s *Session) RestartWebSocket() bool {
	s.lifecycleMu.Lock()
	defer s.lifecycleMu.Unlock()

	client := s.Client()
	if client == nil {
		return false
	}

	s.SetState(StateIdle)
	client.End(ErrRestartRequested)
	return true
}

// Disconnect logs the client out, drops it, and deletes the tenant's
// credential material. The credentials are removed even when logout fails.
//
// With LogoutStrict, logout and deletion failures are returned.
// With LogoutBestEffort, they are logged and Disconnect returns nil.
func (s *Session) Disconnect(ctx context.Context, policy LogoutPolicy) error {
	s.lifecycleMu.Lock()
	defer s.lifecycleMu.Unlock()

	var errs []error

	if client := s.detach(); client != nil {
		if err := client.Logout(ctx); err != nil {
			errs = append(errs, fmt.Errorf("logging out: %w", err))
		}
		s.closeClient(client)
	}
	s.SetState(StateIdle)

	if err := s.creds.Delete(s.tenantID); err != nil {
		errs = append(errs, fmt.Errorf("deleting credentials: %w", err))
	}

	err := errors.Join(errs...)
	if err == nil {
		s.logger.Info("session disconnected", "tenant_id", s.tenantID)
		return nil
	}
	if policy == LogoutBestEffort {
		s.logger.Warn("disconnect completed with errors", "tenant_id", s.tenantID, "error", err)
		return nil
	}
	return err
}

// ForceReset deletes the tenant's credential material without touching the
// live client or logging out.
func (s *Session) ForceReset() error {
	s.lifecycleMu.Lock()
	defer s.lifecycleMu.Unlock()

	if err := s.creds.Delete(s.tenantID); err != nil {
		return fmt.Errorf("force reset: %w", err)
	}
	s.logger.Info("session credentials reset", "tenant_id", s.tenantID)
	return nil
}

// Shutdown closes the client without logging out and keeps credentials,
// so the tenant reconnects without pairing on the next start.
func (s *Session) Shutdown() {
	s.lifecycleMu.Lock()
	defer s.lifecycleMu.Unlock()

	if client := s.detach(); client != nil {
		s.closeClient(client)
	}
	s.SetState(StateIdle)
}

// detach drops the client reference and retires its generation.
func (s *Session) detach() Client {
	s.mu.Lock()
	defer s.mu.Unlock()
	client := s.client
	s.client = nil
	s.gen++
	return client
}

func (s *Session) closeClient(c Client) {
	if err := c.Close(); err != nil {
		s.logger.Debug("closing client failed", "tenant_id", s.tenantID, "error", err)
	}
}

func (s *Session) isCurrent(gen uint64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.gen == gen
}

// handlerFor returns the event handler wired to the client of generation gen.
func (s *Session) handlerFor(gen uint64) ClientEventHandler {
	return func(ev ClientEvent) {
		if !s.isCurrent(gen) {
			s.logger.Debug("ignoring event from replaced client", "tenant_id", s.tenantID, "generation", gen)
			return
		}

		switch ev.Kind {
		case ClientPairingCode:
			s.setState(gen, StateDisconnected)
			s.emitPairing(gen, ev.Code)
		case ClientLinkOpen:
			s.setState(gen, StateConnected)
		case ClientLinkClosed:
			s.logger.Info("client link closed", "tenant_id", s.tenantID, "reason", ev.Reason, "error", ev.Err)
			if ev.Reason.NeedsReinit() {
				go s.reinitialize(gen)
				return
			}
			s.setState(gen, StateDisconnected)
		}
	}
}

func (s *Session) emitPairing(gen uint64, code string) {
	s.emitMu.Lock()
	defer s.emitMu.Unlock()
	if !s.isCurrent(gen) {
		return
	}
	s.notify(Event{Kind: EventPairingCode, State: s.State(), Code: code})
}

// reinitialize replaces the client of generation gen after a close that
// requires a fresh transport. It runs outside the client's event goroutine.
func (s *Session) reinitialize(gen uint64) {
	s.lifecycleMu.Lock()
	defer s.lifecycleMu.Unlock()

	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		return
	}
	stale := s.client
	s.client = nil
	s.gen++
	s.mu.Unlock()

	if stale != nil {
		s.closeClient(stale)
	}
	if s.State() == StateConnected {
		s.SetState(StateDisconnected)
	}

	ctx, cancel := context.WithTimeout(context.Background(), reinitTimeout)
	defer cancel()

	if _, err := s.initializeLocked(ctx); err != nil {
		s.logger.Error("re-initialising client failed", "tenant_id", s.tenantID, "error", err)
	}
}
