package session

import (
	"context"

	"github.com/nerrad567/wa-gateway/internal/credentials"
)

// Client is a live protocol connection bound to one tenant's credentials.
//
// Addresses are in the network's address form, e.g. "6281234567890@s.whatsapp.net".
type Client interface {
	// Connect starts the link. It returns once the transport is dialling;
	// pairing and link establishment are reported through events.
	Connect(ctx context.Context) error

	// End tears down the transport and reports reason as a close event.
	End(reason error)

	// Logout unlinks the device from the account.
	Logout(ctx context.Context) error

	// Close releases the transport and any open credential handles
	// without unlinking the device.
	Close() error

	// IsOnWhatsApp reports whether address belongs to a registered account.
	IsOnWhatsApp(ctx context.Context, address string) (bool, error)

	// SendText sends a plain text message.
	SendText(ctx context.Context, address, text string) error

	// SendImage uploads and sends an image with an optional caption.
	SendImage(ctx context.Context, address string, img Image, caption string) error
}

// Image is an image payload ready for upload.
type Image struct {
	Data     []byte
	MimeType string
	FileName string
}

// ClientFactory constructs Clients from credential material.
type ClientFactory interface {
	NewClient(ctx context.Context, m credentials.Material, handle ClientEventHandler) (Client, error)
}

// ClientFactoryFunc adapts a function to ClientFactory.
type ClientFactoryFunc func(ctx context.Context, m credentials.Material, handle ClientEventHandler) (Client, error)

// NewClient implements ClientFactory.
func (f ClientFactoryFunc) NewClient(ctx context.Context, m credentials.Material, handle ClientEventHandler) (Client, error) {
	return f(ctx, m, handle)
}

// ClientEventKind identifies a client lifecycle event.
type ClientEventKind int

const (
	// ClientPairingCode carries a fresh pairing challenge.
	ClientPairingCode ClientEventKind = iota + 1
	// ClientLinkOpen signals the link is established.
	ClientLinkOpen
	// ClientLinkClosed signals the link closed; see CloseReason.
	ClientLinkClosed
)

// CloseReason classifies why a link closed.
type CloseReason string

const (
	// CloseRestartRequired means the transport must be rebuilt, e.g. after
	// pairing completes, a QR timeout, or an explicit restart.
	CloseRestartRequired CloseReason = "restart-required"
	// CloseLoggedOut means the device was unlinked and must pair again.
	CloseLoggedOut CloseReason = "logged-out"
	// CloseTransient is a network drop the client recovers from on its own.
	CloseTransient CloseReason = "transient"
	// CloseReplaced means another connection took over the same device.
	CloseReplaced CloseReason = "replaced"
)

// NeedsReinit reports whether a close with this reason requires a new client.
func (r CloseReason) NeedsReinit() bool {
	return r == CloseRestartRequired || r == CloseLoggedOut
}

// ClientEvent is emitted by a Client.
type ClientEvent struct {
	Kind   ClientEventKind
	Code   string      // ClientPairingCode only
	Reason CloseReason // ClientLinkClosed only
	Err    error       // ClientLinkClosed only, may be nil
}

// ClientEventHandler receives client events. Implementations must not block.
type ClientEventHandler func(ClientEvent)
