package api

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/wa-gateway/internal/auth"
)

// healthCheckTimeout bounds each dependency check in /health.
const healthCheckTimeout = 2 * time.Second

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, ErrCodeMethodNotAllow, "method not allowed")
	})

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		// Health and metrics (no auth required for basic monitoring)
		r.Get("/health", s.handleHealth)
		r.Method(http.MethodGet, "/metrics", s.metricsHandler())

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.With(s.requirePermission(auth.PermSessionRead)).Get("/ws", s.handleWebSocket)
			r.With(s.requirePermission(auth.PermSessionListAll)).Get("/sessions", s.handleListSessions)
			r.With(s.requirePermission(auth.PermMediaUpload)).Post("/uploads", s.handleUpload)
			r.With(s.requirePermission(auth.PermAuditRead)).Get("/audit", s.handleListAuditLogs)

			// Tenant routes: the permission check runs before the tenant
			// middleware so a denied caller never provisions a session.
			r.Route("/sessions/{tenantID}", func(r chi.Router) {
				manage := r.With(s.requirePermission(auth.PermSessionManage), s.tenantMiddleware)
				manage.Post("/provision", s.handleProvision)
				manage.Post("/restart-websocket", s.handleRestartWebSocket)
				manage.Post("/restart", s.handleRestart)
				manage.Post("/logout", s.handleLogout)

				read := r.With(s.requirePermission(auth.PermSessionRead), s.tenantMiddleware)
				read.Get("/qrcode", s.handleQRCode)
				read.Get("/state", s.handleState)

				send := r.With(s.requirePermission(auth.PermMessageSend), s.tenantMiddleware)
				send.Post("/messages/text", s.handleSendText)
				send.Post("/messages/media", s.handleSendMedia)
				send.Post("/messages/media-upload", s.handleSendMediaUpload)
				send.Post("/messages/media-after-upload", s.handleSendMediaAfterUpload)

				r.With(s.requirePermission(auth.PermSystemCleanup), s.tenantMiddleware).
					Post("/temp-files/cleanup", s.handleCleanupTempFiles)
			})
		})
	})

	return r
}

// handleHealth returns the server health status, including each
// registered dependency check. Any failing check makes the response 503.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	code := http.StatusOK

	names := make([]string, 0, len(s.checks))
	for name := range s.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	components := make(map[string]string, len(names))
	for _, name := range names {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		err := s.checks[name].HealthCheck(ctx)
		cancel()
		if err != nil {
			components[name] = err.Error()
			status = "degraded"
			code = http.StatusServiceUnavailable
			continue
		}
		components[name] = "ok"
	}

	resp := map[string]any{
		"status":         status,
		"version":        s.version,
		"uptime_seconds": int64(time.Since(s.startTime).Seconds()),
		"sessions":       s.svc.Registry().Len(),
	}
	if len(components) > 0 {
		resp["components"] = components
	}
	writeJSON(w, code, resp)
}
