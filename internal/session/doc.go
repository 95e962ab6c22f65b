// Package session implements the per-tenant messaging session lifecycle.
//
// A Session owns at most one live protocol Client and tracks a three-state
// connection machine:
//
//	idle ──InitializeConnection──▶ disconnected ──link open──▶ connected
//	  ▲                               ▲    │                      │
//	  │                               │    └──close (re-pair)─────┤
//	  └── RestartWebSocket / Disconnect ◀─────────────────────────┘
//
// The Registry maps tenant IDs to Sessions and is the only place new
// tenants are admitted.
//
// # Events
//
// Observers registered with Session.Subscribe receive state changes and
// pairing codes. Delivery for one Session is sequenced: an observer never
// sees two events from the same Session concurrently or out of order.
// Observers must not call SetState from inside the callback.
//
// # Client replacement
//
// Every constructed Client is bound to a generation number. When a Client
// is dropped or replaced the generation advances, and events still arriving
// from the old Client are discarded.
//
// # Usage
//
//	reg := session.NewRegistry(session.RegistryConfig{
//	    Credentials: credentials.NewStore(cfg.Gateway.CredentialsDir),
//	    Factory:     whatsapp.NewFactory(logger),
//	})
//	sess, _, err := reg.Resolve("tenant-1")
//	if _, err := sess.Connect(ctx); err != nil { ... }
//	state, err := sess.CheckConnection()
package session
