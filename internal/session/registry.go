package session

import (
	"sort"
	"sync"
	"time"

	"github.com/nerrad567/wa-gateway/internal/credentials"
)

// RegistryConfig holds the dependencies shared by every Session the
// Registry creates.
type RegistryConfig struct {
	Credentials   CredentialStore
	Factory       ClientFactory
	AnnounceDelay time.Duration

	// Observers are subscribed to every Session at creation.
	Observers []Observer
}

// Registry maps tenant IDs to Sessions.
//
// It is created once at startup and injected where sessions are needed.
// Entries are only removed by Remove.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
//   - Concurrent first-time Resolve calls for one tenant create exactly
//     one Session.
type Registry struct {
	cfg    RegistryConfig
	logger Logger

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewRegistry creates an empty Registry.
func NewRegistry(cfg RegistryConfig) *Registry {
	return &Registry{
		cfg:      cfg,
		logger:   noopLogger{},
		sessions: make(map[string]*Session),
	}
}

// SetLogger sets the logger for the registry and the sessions it creates.
func (r *Registry) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	r.logger = logger
}

// Resolve returns the Session for tenantID, creating it if needed.
// created reports whether this call created it.
func (r *Registry) Resolve(tenantID string) (sess *Session, created bool, err error) {
	if err := credentials.ValidateTenantID(tenantID); err != nil {
		return nil, false, err
	}

	r.mu.RLock()
	sess, ok := r.sessions[tenantID]
	r.mu.RUnlock()
	if ok {
		return sess, false, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Another caller may have created it between the locks.
	if sess, ok := r.sessions[tenantID]; ok {
		return sess, false, nil
	}

	sess = New(Config{
		TenantID:      tenantID,
		Credentials:   r.cfg.Credentials,
		Factory:       r.cfg.Factory,
		AnnounceDelay: r.cfg.AnnounceDelay,
	})
	sess.SetLogger(r.logger)
	for _, obs := range r.cfg.Observers {
		sess.Subscribe(obs)
	}
	r.sessions[tenantID] = sess

	r.logger.Info("session created", "tenant_id", tenantID)
	return sess, true, nil
}

// Get returns the Session for tenantID without creating one.
func (r *Registry) Get(tenantID string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sess, ok := r.sessions[tenantID]
	return sess, ok
}

// Remove drops the mapping for tenantID so the next Resolve builds a fresh
// Session. The removed Session is returned so the caller can tear it down.
func (r *Registry) Remove(tenantID string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sess, ok := r.sessions[tenantID]
	if ok {
		delete(r.sessions, tenantID)
		r.logger.Info("session removed", "tenant_id", tenantID)
	}
	return sess, ok
}

// Snapshot describes one registered session.
type Snapshot struct {
	TenantID string `json:"tenant_id"`
	State    State  `json:"state"`
}

// List returns every registered session ordered by tenant ID.
func (r *Registry) List() []Snapshot {
	r.mu.RLock()
	out := make([]Snapshot, 0, len(r.sessions))
	for id, sess := range r.sessions {
		out = append(out, Snapshot{TenantID: id, State: sess.State()})
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].TenantID < out[j].TenantID })
	return out
}

// Len returns the number of registered sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Close shuts down every live client, keeping credentials on disk.
func (r *Registry) Close() {
	r.mu.RLock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, sess := range r.sessions {
		sessions = append(sessions, sess)
	}
	r.mu.RUnlock()

	var wg sync.WaitGroup
	for _, sess := range sessions {
		wg.Add(1)
		go func(s *Session) {
			defer wg.Done()
			s.Shutdown()
		}(sess)
	}
	wg.Wait()
}
