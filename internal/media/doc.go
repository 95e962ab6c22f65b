// Package media stores message attachments on local disk.
//
// Layout below the temp root:
//
//	<root>/<uuid><ext>                 staged uploads
//	<root>/<tenant>/<hash>-<name>      downloaded remote media
//
// Downloads are cached per tenant and keyed by a hash of the source URL, so
// two URLs that share a file name never serve each other's content. An
// existing cache entry is reused without contacting the source. Concurrent
// fetches of the same entry share one transfer.
//
// Purge removes files by modification age. It backs both the scheduled
// process-wide cleanup and the per-tenant cleanup after logout.
package media
