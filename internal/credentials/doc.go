// Package credentials manages the per-tenant directories that hold
// messaging-session authentication material.
//
// Each tenant owns exactly one directory, <base>/<tenantID>/. The layout
// inside it belongs to the protocol client: today that is a single SQLite
// device store, session.db, which the client writes to on every key update.
// This package only creates, locates, and deletes the directory.
//
// # Security
//
// The directory contents are equivalent to a logged-in device. Directories
// are created 0700 and tenant IDs are validated so a caller cannot escape
// the base directory.
package credentials
