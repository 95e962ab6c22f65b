// Package api implements the HTTP REST API and WebSocket server for the WA
// Gateway.
//
// This package provides:
//   - REST endpoints for session lifecycle, pairing codes and message sends
//   - WebSocket hub relaying session state and pairing events
//   - JWT bearer authentication with role and tenant scoping
//   - Middleware stack (request ID, logging, recovery, CORS, body limits)
//   - Prometheus exposition on /api/v1/metrics
//
// # Architecture
//
// The server is a thin layer over gateway.Service. Every tenant route runs
// the permission check, then resolves the tenant's session, provisioning it
// on first reference. Domain errors are mapped to stable error codes in
// errors.go.
//
// # Security
//
// With security.auth.enabled, callers present a bearer token issued by
// `wagateway token`. WebSocket clients that cannot set headers pass it as
// the token query parameter. Client tokens only see their own tenants, on
// both REST routes and WebSocket events.
//
// The lifecycle mirrors the other infrastructure components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
package api
