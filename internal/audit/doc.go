// Package audit records gateway activity in the audit_logs table.
//
// Entries are written for lifecycle operations (provision, restart,
// logout), outbound messages and cleanup passes, and can be listed with
// a filter for the HTTP API. Prune enforces retention.
package audit
