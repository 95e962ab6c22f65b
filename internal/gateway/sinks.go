package gateway

import (
	"context"
	"errors"
	"time"

	"github.com/nerrad567/wa-gateway/internal/audit"
	"github.com/nerrad567/wa-gateway/internal/infrastructure/mqtt"
	"github.com/nerrad567/wa-gateway/internal/session"
)

// MQTTClient is the subset of the MQTT client the gateway uses.
type MQTTClient interface {
	PublishSessionState(tenantID string, v any) error
	PublishSessionPairing(tenantID string, v any) error
	SubscribeSessionCommands(qos byte, handler mqtt.SessionHandler) error
	Topics() mqtt.Topics
}

// PointWriter records time-series points. The InfluxDB client satisfies it.
type PointWriter interface {
	WriteSessionState(tenantID, state string)
	WriteDispatch(tenantID, kind, outcome string, elapsed time.Duration)
	WriteCleanup(scope string, removed int)
}

// AuditLog persists lifecycle and dispatch actions.
type AuditLog interface {
	Create(ctx context.Context, entry *audit.Entry) error
}

// StatePayload is published retained on the session state topic.
type StatePayload struct {
	TenantID  string        `json:"tenant_id"`
	State     session.State `json:"state"`
	Replay    bool          `json:"replay,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
}

// PairingPayload is published on the session pairing topic.
type PairingPayload struct {
	TenantID  string    `json:"tenant_id"`
	Code      string    `json:"code"`
	Timestamp time.Time `json:"timestamp"`
}

// observe fans a session event out to every configured sink. It runs on
// the session's notification path, so sinks must not block for long.
func (s *Service) observe(ev session.Event) {
	s.recordPairing(ev)

	if s.metrics != nil {
		s.metrics.observe(ev)
	}
	if s.points != nil && ev.Kind == session.EventStateChanged && !ev.Replay {
		s.points.WriteSessionState(ev.TenantID, string(ev.State))
	}
	if s.mqtt != nil {
		s.publishEvent(ev)
	}

	s.obsMu.RLock()
	observers := make([]session.Observer, 0, len(s.observers))
	for _, fn := range s.observers {
		observers = append(observers, fn)
	}
	s.obsMu.RUnlock()
	for _, fn := range observers {
		fn(ev)
	}
}

// CleanupReport is the outcome of one purge pass.
type CleanupReport struct {
	// TenantID is empty for the process-wide purge.
	TenantID string
	Scope    string
	Removed  int
	Err      error
	At       time.Time
}

// CleanupObserver receives purge outcomes. It must not block.
type CleanupObserver func(CleanupReport)

func (s *Service) notifyCleanup(rep CleanupReport) {
	s.obsMu.RLock()
	observers := make([]CleanupObserver, 0, len(s.cleanupObservers))
	for _, fn := range s.cleanupObservers {
		observers = append(observers, fn)
	}
	s.obsMu.RUnlock()
	for _, fn := range observers {
		fn(rep)
	}
}

// recordPairing writes pairing codes as they arrive. A code outlives the
// link opening; it is stale from then on and removed only when the
// tenant's credentials are wiped.
func (s *Service) recordPairing(ev session.Event) {
	if ev.Kind != session.EventPairingCode {
		return
	}
	if err := s.pairing.Put(ev.TenantID, ev.Code); err != nil {
		s.logger.Error("storing pairing code failed", "tenant_id", ev.TenantID, "error", err)
	}
}

// publishEvent mirrors a session event onto the broker. A tenant id that
// cannot form a topic level is skipped; broker failures are only logged.
func (s *Service) publishEvent(ev session.Event) {
	var err error
	switch ev.Kind {
	case session.EventStateChanged:
		err = s.mqtt.PublishSessionState(ev.TenantID, StatePayload{
			TenantID:  ev.TenantID,
			State:     ev.State,
			Replay:    ev.Replay,
			Timestamp: ev.At.UTC(),
		})
	case session.EventPairingCode:
		err = s.mqtt.PublishSessionPairing(ev.TenantID, PairingPayload{
			TenantID:  ev.TenantID,
			Code:      ev.Code,
			Timestamp: ev.At.UTC(),
		})
	}
	if errors.Is(err, mqtt.ErrInvalidTenant) {
		s.logger.Warn("tenant id not publishable over MQTT", "tenant_id", ev.TenantID)
		return
	}
	if err != nil {
		s.logger.Debug("publishing session event failed", "tenant_id", ev.TenantID, "kind", ev.Kind, "error", err)
	}
}

// record writes an audit entry. Failures are logged and never fail the
// operation being audited.
func (s *Service) record(ctx context.Context, action, tenantID string, opErr error, details map[string]any) {
	if s.audit == nil {
		return
	}

	entry := &audit.Entry{
		Action:   action,
		TenantID: tenantID,
		Subject:  SubjectFrom(ctx),
		Source:   SourceFrom(ctx),
		Outcome:  audit.OutcomeOK,
		Details:  details,
	}
	if opErr != nil {
		entry.Outcome = audit.OutcomeFailed
		if entry.Details == nil {
			entry.Details = make(map[string]any, 1)
		}
		entry.Details["error"] = opErr.Error()
	}

	// The request context may already be cancelled; the record should
	// still land.
	actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), auditTimeout)
	defer cancel()
	if err := s.audit.Create(actx, entry); err != nil {
		s.logger.Warn("writing audit entry failed", "action", action, "tenant_id", tenantID, "error", err)
	}
}

type ctxKey int

const (
	sourceKey ctxKey = iota
	subjectKey
)

// WithSource tags ctx with the surface that triggered an operation
// (audit.SourceAPI, audit.SourceMQTT, audit.SourceSystem).
func WithSource(ctx context.Context, source string) context.Context {
	return context.WithValue(ctx, sourceKey, source)
}

// SourceFrom returns the source set by WithSource, defaulting to
// audit.SourceAPI.
func SourceFrom(ctx context.Context) string {
	if v, ok := ctx.Value(sourceKey).(string); ok && v != "" {
		return v
	}
	return audit.SourceAPI
}

// WithSubject tags ctx with the authenticated caller.
func WithSubject(ctx context.Context, subject string) context.Context {
	return context.WithValue(ctx, subjectKey, subject)
}

// SubjectFrom returns the subject set by WithSubject, or "".
func SubjectFrom(ctx context.Context) string {
	v, _ := ctx.Value(subjectKey).(string)
	return v
}
