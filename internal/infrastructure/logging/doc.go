// Package logging provides structured logging for the WA Gateway.
//
// This package wraps Go's standard log/slog package to provide
// consistent, structured logging across the gateway.
//
// # Features
//
//   - JSON output for production (machine-parsable)
//   - Text output for development (human-readable)
//   - Default fields (service, version) on all log entries
//   - Level-based filtering (debug, info, warn, error)
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// # Usage
//
//	logger := logging.New(cfg.Logging, "1.0.0")
//	logger.Info("session connected", "tenant_id", id)
//
// # Security
//
// Never log pairing payloads, JWT secrets, or message bodies at info level.
// QR codes grant account access until they expire.
package logging
