package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// statusResponse is the body of lifecycle and status endpoints.
type statusResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	State   string `json:"state,omitempty"`
}

// handleListSessions returns a snapshot of every registered session.
func (s *Server) handleListSessions(w http.ResponseWriter, _ *http.Request) {
	snaps := s.svc.Sessions()
	writeJSON(w, http.StatusOK, map[string]any{
		"sessions": snaps,
		"count":    len(snaps),
	})
}

// handleProvision starts the tenant's session without waiting for pairing.
func (s *Server) handleProvision(w http.ResponseWriter, r *http.Request) {
	state, err := s.svc.Provision(r.Context(), chi.URLParam(r, "tenantID"))
	if err != nil {
		s.logger.Warn("provision failed", "tenant_id", chi.URLParam(r, "tenantID"), "error", err)
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, statusResponse{
		Status:  "ok",
		Message: "session starting",
		State:   string(state),
	})
}

// handleState reports whether the tenant's session is connected,
// initializing an idle session first.
func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	state, err := s.svc.Status(r.Context(), chi.URLParam(r, "tenantID"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{
		Status:  "ok",
		Message: "connected",
		State:   string(state),
	})
}

// handleRestartWebSocket rebuilds the tenant's transport.
func (s *Server) handleRestartWebSocket(w http.ResponseWriter, r *http.Request) {
	hadClient, err := s.svc.RestartTransport(r.Context(), chi.URLParam(r, "tenantID"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	msg := "success restart web socket"
	if !hadClient {
		msg = "no active client to restart"
	}
	writeJSON(w, http.StatusOK, statusResponse{Status: "ok", Message: msg})
}

// handleRestart tears the session down and provisions it again.
func (s *Server) handleRestart(w http.ResponseWriter, r *http.Request) {
	state, err := s.svc.FullRestart(r.Context(), chi.URLParam(r, "tenantID"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{
		Status:  "ok",
		Message: "success restart",
		State:   string(state),
	})
}

// handleLogout unlinks the device when connected and schedules temp file
// cleanup.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	loggedOut, err := s.svc.Logout(r.Context(), chi.URLParam(r, "tenantID"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	msg := "success logout"
	if !loggedOut {
		msg = "not connected"
	}
	writeJSON(w, http.StatusOK, statusResponse{Status: "ok", Message: msg})
}

// handleCleanupTempFiles starts a background purge of the tenant's temp
// files.
func (s *Server) handleCleanupTempFiles(w http.ResponseWriter, r *http.Request) {
	s.svc.CleanupTempFiles(r.Context(), chi.URLParam(r, "tenantID"))
	writeJSON(w, http.StatusAccepted, statusResponse{Status: "ok", Message: "delete on progress"})
}
