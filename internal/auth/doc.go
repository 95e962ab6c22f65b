// Package auth issues and verifies API tokens for the gateway.
//
// Callers authenticate with HS256 JWTs. Each token carries a role and the
// set of tenants it may act on:
//   - client tokens reach only the tenants listed in their claims
//   - operator tokens may also restart and log out those tenants
//   - admin tokens reach every tenant and the system endpoints
//
// The tenant list may contain "*" to grant every tenant without the
// admin-only system permissions.
package auth
