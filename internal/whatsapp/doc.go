// Package whatsapp binds session.Client to the whatsmeow multi-device
// client.
//
// Each tenant gets its own whatsmeow SQL device store inside the tenant's
// credential directory, so deleting that directory fully unlinks the
// gateway from the account's point of view on the next start.
//
// whatsmeow events are translated into session.ClientEvent values:
//
//	QR "code"              -> ClientPairingCode
//	QR "timeout"           -> ClientLinkClosed (restart-required)
//	*events.Connected      -> ClientLinkOpen
//	*events.LoggedOut      -> ClientLinkClosed (logged-out)
//	*events.StreamReplaced -> ClientLinkClosed (replaced)
//	*events.Disconnected   -> ClientLinkClosed (transient)
package whatsapp
