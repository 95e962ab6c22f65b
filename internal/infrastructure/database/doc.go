// Package database provides SQLite connectivity for the gateway.
//
// The gateway keeps its own bookkeeping here (the audit trail of
// lifecycle and dispatch actions). WhatsApp credential material lives in
// per-tenant stores managed by the client library, not in this database.
//
// This package manages:
//   - Connection setup with WAL mode and a busy timeout
//   - Versioned up/down migrations read from an fs.FS
//
// Usage:
//
//	db, err := database.Open(ctx, cfg.Database)
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.Source()); err != nil {
//	    return err
//	}
//
// Migration files are named YYYYMMDD_HHMMSS_description.{up,down}.sql.
// New columns must be NULLABLE or carry a DEFAULT so a rollback of the
// binary keeps working against a migrated database.
package database
