// Package gateway is the boundary between the external surfaces (HTTP API,
// MQTT commands) and the per-tenant sessions.
//
// A Service owns the session Registry and implements the operations
// callers see: provisioning, pairing lookup, status, sends, restarts,
// logout and temp-file cleanup.
//
// # Auto-initialization
//
// Status and the send operations apply an AutoInitPolicy: a session that is
// still idle is initialized and given a settle window before its state is
// checked. The policy lives here rather than in the session state machine so
// cold-start and warm paths can be exercised independently.
//
// # Event fan-out
//
// Every session event passes through the Service, which:
//
//   - writes pairing codes to the pairing store and removes them once the
//     link opens
//   - publishes state (retained) and pairing codes to MQTT
//   - records state transitions in InfluxDB and Prometheus
//   - forwards the event to observers added with AddObserver (the
//     WebSocket hub)
//
// # MQTT commands
//
// SubscribeCommands listens on <prefix>/session/+/command for payloads of
// the form {"action":"restart"}. Supported actions are provision, restart,
// restart-websocket, logout and cleanup. Commands are audited with source
// "mqtt".
package gateway
