package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/nerrad567/wa-gateway/internal/audit"
	"github.com/nerrad567/wa-gateway/internal/dispatch"
	"github.com/nerrad567/wa-gateway/internal/media"
	"github.com/nerrad567/wa-gateway/internal/pairing"
	"github.com/nerrad567/wa-gateway/internal/session"
)

const (
	// auditTimeout bounds a single audit write.
	auditTimeout = 5 * time.Second

	// cleanupTimeout bounds the detached work started by Logout.
	cleanupTimeout = 30 * time.Second

	// defaultTenantMaxAge is the age past which a tenant's temp files are
	// removed by CleanupTempFiles.
	defaultTenantMaxAge = time.Hour
)

// Logger is the logging interface used by the gateway.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Config holds the dependencies and timings of a Service.
type Config struct {
	Credentials session.CredentialStore
	Factory     session.ClientFactory
	Pairing     *pairing.Store
	Media       *media.Store

	// Dispatch configures the message dispatcher's lookup cache.
	Dispatch dispatch.Config

	// AutoInit is applied by Status and the send operations.
	AutoInit AutoInitPolicy

	RestartDelay  time.Duration
	LogoutDelay   time.Duration
	AnnounceDelay time.Duration

	// TenantMaxAge is the file age CleanupTempFiles purges past.
	// Zero uses one hour.
	TenantMaxAge time.Duration

	// Optional sinks. Leave nil to disable.
	MQTT    MQTTClient
	Points  PointWriter
	Audit   AuditLog
	Metrics *Metrics
}

// Service is the boundary layer between the external surfaces (HTTP, MQTT)
// and the per-tenant sessions.
//
// It owns the session registry, applies the auto-initialize policy on read
// and send paths, and fans session events out to the pairing store and the
// configured sinks.
//
// Thread Safety: all methods are safe for concurrent use.
type Service struct {
	registry   *session.Registry
	pairing    *pairing.Store
	media      *media.Store
	dispatcher *dispatch.Dispatcher

	autoInit     AutoInitPolicy
	restartDelay time.Duration
	logoutDelay  time.Duration
	tenantMaxAge time.Duration

	mqtt    MQTTClient
	points  PointWriter
	audit   AuditLog
	metrics *Metrics
	logger  Logger

	obsMu            sync.RWMutex
	observers        map[int]session.Observer
	cleanupObservers map[int]CleanupObserver
	nextObs          int

	// background tracks detached cleanups so Close can wait for them.
	background sync.WaitGroup
}

// New creates a Service and its session registry.
func New(cfg Config) *Service {
	tenantMaxAge := cfg.TenantMaxAge
	if tenantMaxAge <= 0 {
		tenantMaxAge = defaultTenantMaxAge
	}

	s := &Service{
		pairing:      cfg.Pairing,
		media:        cfg.Media,
		dispatcher:   dispatch.New(cfg.Media, cfg.Dispatch),
		autoInit:     cfg.AutoInit,
		restartDelay: cfg.RestartDelay,
		logoutDelay:  cfg.LogoutDelay,
		tenantMaxAge: tenantMaxAge,
		mqtt:         cfg.MQTT,
		points:       cfg.Points,
		audit:        cfg.Audit,
		metrics:      cfg.Metrics,
		logger:       noopLogger{},
		observers:    make(map[int]session.Observer),

		cleanupObservers: make(map[int]CleanupObserver),
	}

	s.registry = session.NewRegistry(session.RegistryConfig{
		Credentials:   cfg.Credentials,
		Factory:       cfg.Factory,
		AnnounceDelay: cfg.AnnounceDelay,
		Observers:     []session.Observer{s.observe},
	})
	return s
}

// SetLogger sets the logger for the service and the components it owns.
// Call before the service handles requests.
func (s *Service) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	s.logger = logger
	s.registry.SetLogger(logger)
	s.dispatcher.SetLogger(logger)
}

// Registry returns the session registry.
func (s *Service) Registry() *session.Registry {
	return s.registry
}

// AddObserver subscribes fn to events from every session, current and
// future. The returned function removes it.
func (s *Service) AddObserver(fn session.Observer) (remove func()) {
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

// AddCleanupObserver subscribes fn to the outcome of every purge pass,
// tenant and process-wide. The returned function removes it.
func (s *Service) AddCleanupObserver(fn CleanupObserver) (remove func()) {
	s.obsMu.Lock()
	id := s.nextObs
	s.nextObs++
	s.cleanupObservers[id] = fn
	s.obsMu.Unlock()

	return func() {
		s.obsMu.Lock()
		delete(s.cleanupObservers, id)
		s.obsMu.Unlock()
	}
}

// Resolve returns the tenant's session, provisioning it on first
// reference. Provisioning does not wait for pairing, and its failure is
// logged rather than returned: the caller's own operation reports the
// resulting state.
//
// Returns:
//   - *session.Session: the tenant's session
//   - bool: true if this call created it
//   - error: credentials.ErrInvalidTenantID for a malformed tenant ID
func (s *Service) Resolve(ctx context.Context, tenantID string) (*session.Session, bool, error) {
	sess, created, err := s.registry.Resolve(tenantID)
	if err != nil {
		return nil, false, err
	}
	if created {
		if err := s.provision(ctx, sess); err != nil {
			s.logger.Warn("auto-provision failed", "tenant_id", tenantID, "error", err)
		}
	}
	return sess, created, nil
}

// Provision starts the tenant's session and returns without waiting for
// pairing. Pairing codes reach the pairing store through session events.
func (s *Service) Provision(ctx context.Context, tenantID string) (session.State, error) {
	sess, _, err := s.registry.Resolve(tenantID)
	if err != nil {
		return "", err
	}
	err = s.provision(ctx, sess)
	return sess.State(), err
}

func (s *Service) provision(ctx context.Context, sess *session.Session) error {
	_, err := sess.Connect(ctx)
	s.record(ctx, audit.ActionProvision, sess.TenantID(), err, nil)
	return err
}

// PairingStatus is the answer to a pairing artifact request.
type PairingStatus struct {
	Connected bool
	Artifact  pairing.Artifact
}

// PairingArtifact returns the tenant's current pairing payload, or
// Connected if the session needs no pairing.
//
// Returns pairing.ErrPairingNotAvailable when no payload has been issued.
func (s *Service) PairingArtifact(ctx context.Context, tenantID string) (PairingStatus, error) {
	sess, _, err := s.registry.Resolve(tenantID)
	if err != nil {
		return PairingStatus{}, err
	}
	if _, err := sess.CheckConnection(); err == nil {
		return PairingStatus{Connected: true}, nil
	}

	art, err := s.pairing.Get(tenantID)
	if err != nil {
		return PairingStatus{}, err
	}
	return PairingStatus{Artifact: art}, nil
}

// Status applies the auto-initialize policy and reports the session's
// liveness.
//
// Returns:
//   - session.StateConnected and nil when the link is open
//   - session.ErrAwaitingConnection or session.ErrNoActiveConnection otherwise
//   - session.ErrClientConstruction if auto-initialization failed
func (s *Service) Status(ctx context.Context, tenantID string) (session.State, error) {
	sess, _, err := s.registry.Resolve(tenantID)
	if err != nil {
		return "", err
	}
	if _, err := s.autoInit.Apply(ctx, sess); err != nil {
		return sess.State(), err
	}
	return sess.CheckConnection()
}

// SendText sends a text message from the tenant's session.
func (s *Service) SendText(ctx context.Context, tenantID, recipient, text string) (dispatch.Result, error) {
	return s.send(ctx, tenantID, audit.ActionSendText, "text", recipient,
		func() error {
			_, err := dispatch.ValidateText(recipient, text)
			return err
		},
		func(conn *session.Session) (dispatch.Result, error) {
			return s.dispatcher.SendText(ctx, conn, recipient, text)
		})
}

// SendMedia downloads att.Source (a URL) into the tenant's cache and sends
// it.
func (s *Service) SendMedia(ctx context.Context, tenantID, recipient string, att dispatch.Attachment, caption string) (dispatch.Result, error) {
	return s.send(ctx, tenantID, audit.ActionSendMedia, string(att.Kind), recipient,
		func() error {
			_, err := dispatch.ValidateMedia(recipient, att)
			return err
		},
		func(conn *session.Session) (dispatch.Result, error) {
			return s.dispatcher.SendMedia(ctx, conn, recipient, att, caption)
		})
}

// SendMediaFromUpload sends a file previously staged with StageUpload;
// att.Source is the staged name.
func (s *Service) SendMediaFromUpload(ctx context.Context, tenantID, recipient string, att dispatch.Attachment, caption string) (dispatch.Result, error) {
	return s.send(ctx, tenantID, audit.ActionSendMedia, string(att.Kind), recipient,
		func() error {
			_, err := dispatch.ValidateMedia(recipient, att)
			return err
		},
		func(conn *session.Session) (dispatch.Result, error) {
			return s.dispatcher.SendMediaUpload(ctx, conn, recipient, att, caption)
		})
}

func (s *Service) send(
	ctx context.Context,
	tenantID, action, kind, recipient string,
	validate func() error,
	do func(*session.Session) (dispatch.Result, error),
) (dispatch.Result, error) {
	start := time.Now()

	sess, _, err := s.registry.Resolve(tenantID)
	if err != nil {
		return dispatch.Result{}, err
	}

	// Parameter checks never wait on, or start, a connection.
	var res dispatch.Result
	if err = validate(); err == nil {
		if _, err = s.autoInit.Apply(ctx, sess); err == nil {
			res, err = do(sess)
		}
	}

	elapsed := time.Since(start)
	outcome := dispatchOutcome(err)
	if s.metrics != nil {
		s.metrics.ObserveDispatch(kind, outcome, elapsed)
	}
	if s.points != nil {
		s.points.WriteDispatch(tenantID, kind, outcome, elapsed)
	}

	details := map[string]any{"recipient": recipient}
	if res.Recipient != "" {
		details["recipient"] = res.Recipient
	}
	s.record(ctx, action, tenantID, err, details)

	if err != nil {
		s.logger.Debug("send failed", "tenant_id", tenantID, "kind", kind, "outcome", outcome, "error", err)
		return dispatch.Result{}, err
	}
	return res, nil
}

// dispatchOutcome buckets a send error into a low-cardinality label.
func dispatchOutcome(err error) string {
	switch {
	case err == nil:
		return "sent"
	case errors.Is(err, dispatch.ErrMissingParameters),
		errors.Is(err, dispatch.ErrInvalidRecipientFormat),
		errors.Is(err, dispatch.ErrUnsupportedMediaKind):
		return "rejected"
	case errors.Is(err, dispatch.ErrRecipientNotFound):
		return "not_found"
	case errors.Is(err, session.ErrAwaitingConnection),
		errors.Is(err, session.ErrNoActiveConnection):
		return "not_connected"
	default:
		return "failed"
	}
}

// RestartTransport ends the tenant's transport so the session rebuilds it.
// Reports whether a live client existed.
func (s *Service) RestartTransport(ctx context.Context, tenantID string) (bool, error) {
	sess, _, err := s.registry.Resolve(tenantID)
	if err != nil {
		return false, err
	}
	restarted := sess.RestartWebSocket()
	s.record(ctx, audit.ActionRestartWebSocket, tenantID, nil, map[string]any{"restarted": restarted})
	return restarted, nil
}

// FullRestart tears the session down, wipes its credentials, and
// provisions it from scratch. Teardown failures are logged and do not stop
// the restart.
//
// Returns the state observed after the settle wait.
func (s *Service) FullRestart(ctx context.Context, tenantID string) (session.State, error) {
	sess, _, err := s.registry.Resolve(tenantID)
	if err != nil {
		return "", err
	}

	_ = sess.Disconnect(ctx, session.LogoutBestEffort)
	s.dropPairing(tenantID)

	if err := sleep(ctx, s.restartDelay); err != nil {
		return sess.State(), err
	}

	if err := sess.ForceReset(); err != nil {
		s.logger.Warn("force reset failed", "tenant_id", tenantID, "error", err)
	}

	// A reset tenant starts over with a fresh Session.
	s.registry.Remove(tenantID)
	if sess, _, err = s.registry.Resolve(tenantID); err != nil {
		return "", err
	}

	err = s.provision(ctx, sess)
	s.record(ctx, audit.ActionRestart, tenantID, err, nil)
	if err != nil {
		return sess.State(), err
	}

	if err := sleep(ctx, s.autoInit.Settle); err != nil {
		return sess.State(), err
	}
	return sess.State(), nil
}

// Logout unlinks a connected session, deletes its credentials, and
// schedules a purge of the tenant's temp files. A session that is not
// connected is left as is.
//
// Logout failures are logged, not returned: the credentials are gone
// either way. Reports whether a logout was attempted.
func (s *Service) Logout(ctx context.Context, tenantID string) (bool, error) {
	sess, _, err := s.registry.Resolve(tenantID)
	if err != nil {
		return false, err
	}

	attempted := false
	var opErr error
	if _, checkErr := sess.CheckConnection(); checkErr != nil {
		s.logger.Info("logout skipped", "tenant_id", tenantID, "reason", checkErr)
	} else {
		attempted = true
		if opErr = sess.Disconnect(ctx, session.LogoutStrict); opErr != nil {
			s.logger.Warn("logout failed", "tenant_id", tenantID, "error", opErr)
		}
		s.dropPairing(tenantID)
	}
	s.record(ctx, audit.ActionLogout, tenantID, opErr, map[string]any{"attempted": attempted})

	if err := sleep(ctx, s.logoutDelay); err != nil {
		return attempted, err
	}
	s.CleanupTempFiles(ctx, tenantID)
	return attempted, nil
}

// CleanupTempFiles purges the tenant's cached downloads older than the
// tenant max age. It returns immediately; the purge runs in the
// background and its errors are logged.
func (s *Service) CleanupTempFiles(ctx context.Context, tenantID string) {
	source := SourceFrom(ctx)
	subject := SubjectFrom(ctx)

	s.background.Add(1)
	go func() {
		defer s.background.Done()

		bctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
		defer cancel()
		bctx = WithSubject(WithSource(bctx, source), subject)

		removed, err := s.media.PurgeTenant(tenantID, s.tenantMaxAge)
		if err != nil {
			s.logger.Warn("tenant temp cleanup failed", "tenant_id", tenantID, "error", err)
		} else {
			s.logger.Debug("tenant temp cleanup complete", "tenant_id", tenantID, "removed", removed)
		}
		s.ObserveCleanup(bctx, tenantID, removed, err)
	}()
}

// ObserveCleanup records a purge pass in metrics, time series and the
// audit log, then hands it to cleanup observers. An empty tenantID marks
// the process-wide purge.
func (s *Service) ObserveCleanup(ctx context.Context, tenantID string, removed int, err error) {
	scope := "tenant"
	if tenantID == "" {
		scope = "global"
	}
	defer s.notifyCleanup(CleanupReport{
		TenantID: tenantID,
		Scope:    scope,
		Removed:  removed,
		Err:      err,
		At:       time.Now(),
	})
	if s.metrics != nil {
		s.metrics.ObserveCleanup(scope, removed, err)
	}
	if s.points != nil && err == nil {
		s.points.WriteCleanup(scope, removed)
	}
	s.record(ctx, audit.ActionCleanup, tenantID, err, map[string]any{"scope": scope, "removed": removed})
}

// Sessions returns a snapshot of every registered session.
func (s *Service) Sessions() []session.Snapshot {
	return s.registry.List()
}

// StageUpload stores r in the temp area under a generated name that keeps
// the extension of originalName, and returns that name.
func (s *Service) StageUpload(r io.Reader, originalName string) (string, error) {
	name, err := s.media.Stage(r, originalName)
	if err != nil {
		return "", fmt.Errorf("staging upload: %w", err)
	}
	return name, nil
}

// Close waits for background cleanups and shuts down every session's
// client. Credentials are kept.
func (s *Service) Close(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.background.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		s.logger.Warn("background cleanups still running at shutdown")
	}

	s.registry.Close()
	return nil
}

func (s *Service) dropPairing(tenantID string) {
	if err := s.pairing.Delete(tenantID); err != nil {
		s.logger.Debug("removing pairing code failed", "tenant_id", tenantID, "error", err)
	}
}
