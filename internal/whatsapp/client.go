package whatsapp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	"google.golang.org/protobuf/proto"

	"github.com/nerrad567/wa-gateway/internal/session"
)

// ErrClientClosed is returned by operations on a closed client.
var ErrClientClosed = errors.New("whatsapp: client closed")

// Client adapts *whatsmeow.Client to session.Client.
//
// Events are delivered from whatsmeow's event goroutine. After Close no
// further events reach the session.
type Client struct {
	wa        *whatsmeow.Client
	container *sqlstore.Container
	handle    session.ClientEventHandler
	logger    *slog.Logger

	// ctx lives as long as the client and scopes the QR channel.
	ctx    context.Context
	cancel context.CancelFunc

	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

var _ session.Client = (*Client)(nil)

func newClient(wa *whatsmeow.Client, container *sqlstore.Container, handle session.ClientEventHandler, logger *slog.Logger) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		wa:        wa,
		container: container,
		handle:    handle,
		logger:    logger,
		ctx:       ctx,
		cancel:    cancel,
	}
	wa.AddEventHandler(c.onEvent)
	return c
}

func (c *Client) emit(ev session.ClientEvent) {
	if c.closed.Load() || c.handle == nil {
		return
	}
	c.handle(ev)
}

// Connect dials the server. An unpaired device first opens a QR channel
// so pairing codes flow as events.
func (c *Client) Connect(ctx context.Context) error {
	if c.closed.Load() {
		return ErrClientClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if c.wa.Store.ID == nil {
		qr, err := c.wa.GetQRChannel(c.ctx)
		if err != nil {
			return fmt.Errorf("opening QR channel: %w", err)
		}
		go c.watchQR(qr)
	}

	if err := c.wa.Connect(); err != nil {
		return fmt.Errorf("connecting: %w", err)
	}
	return nil
}

func (c *Client) watchQR(ch <-chan whatsmeow.QRChannelItem) {
	for item := range ch {
		ev, ok := translateQR(item)
		if !ok {
			c.logger.Debug("QR channel event", "event", item.Event)
			continue
		}
		c.emit(ev)
	}
}

func (c *Client) onEvent(evt any) {
	ev, ok := translateEvent(evt)
	if !ok {
		return
	}
	if ev.Kind == session.ClientLinkClosed {
		c.logger.Info("link closed", "reason", ev.Reason, "error", ev.Err)
	}
	c.emit(ev)
}

// End drops the websocket and reports a close that requires a new client.
func (c *Client) End(reason error) {
	c.wa.Disconnect()
	c.emit(session.ClientEvent{
		Kind:   session.ClientLinkClosed,
		Reason: session.CloseRestartRequired,
		Err:    reason,
	})
}

// Logout unlinks the device. whatsmeow removes it from the device store.
func (c *Client) Logout(ctx context.Context) error {
	if c.closed.Load() {
		return ErrClientClosed
	}
	if err := c.wa.Logout(ctx); err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	return nil
}

// Close disconnects and closes the device store. It is idempotent.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		c.cancel()
		c.wa.Disconnect()
		if c.container != nil {
			c.closeErr = c.container.Close()
		}
	})
	return c.closeErr
}

// IsOnWhatsApp checks registration of the account behind address.
func (c *Client) IsOnWhatsApp(ctx context.Context, address string) (bool, error) {
	jid, err := parseAddress(address)
	if err != nil {
		return false, err
	}
	resp, err := c.wa.IsOnWhatsApp(ctx, []string{"+" + jid.User})
	if err != nil {
		return false, fmt.Errorf("checking registration: %w", err)
	}
	for _, r := range resp {
		if r.IsIn {
			return true, nil
		}
	}
	return false, nil
}

// SendText sends a conversation message.
func (c *Client) SendText(ctx context.Context, address, text string) error {
	jid, err := parseAddress(address)
	if err != nil {
		return err
	}
	msg := &waE2E.Message{Conversation: proto.String(text)}
	if _, err := c.wa.SendMessage(ctx, jid, msg); err != nil {
		return fmt.Errorf("sending text: %w", err)
	}
	return nil
}

// SendImage uploads img to the media servers and sends it.
func (c *Client) SendImage(ctx context.Context, address string, img session.Image, caption string) error {
	jid, err := parseAddress(address)
	if err != nil {
		return err
	}

	up, err := c.wa.Upload(ctx, img.Data, whatsmeow.MediaImage)
	if err != nil {
		return fmt.Errorf("uploading image: %w", err)
	}

	msg := &waE2E.Message{ImageMessage: imageMessage(up, img, caption)}
	if _, err := c.wa.SendMessage(ctx, jid, msg); err != nil {
		return fmt.Errorf("sending image: %w", err)
	}
	return nil
}

func imageMessage(up whatsmeow.UploadResponse, img session.Image, caption string) *waE2E.ImageMessage {
	m := &waE2E.ImageMessage{
		URL:           proto.String(up.URL),
		DirectPath:    proto.String(up.DirectPath),
		MediaKey:      up.MediaKey,
		FileEncSHA256: up.FileEncSHA256,
		FileSHA256:    up.FileSHA256,
		FileLength:    proto.Uint64(up.FileLength),
		Mimetype:      proto.String(img.MimeType),
	}
	if caption != "" {
		m.Caption = proto.String(caption)
	}
	return m
}

// parseAddress converts "<digits>@s.whatsapp.net" into a user JID.
func parseAddress(address string) (types.JID, error) {
	jid, err := types.ParseJID(address)
	if err != nil {
		return types.JID{}, fmt.Errorf("parsing address %q: %w", address, err)
	}
	if jid.Server != types.DefaultUserServer || jid.User == "" || strings.ContainsAny(jid.User, ".:") {
		return types.JID{}, fmt.Errorf("parsing address %q: not a user address", address)
	}
	return jid, nil
}

// translateQR maps QR channel items onto session events.
func translateQR(item whatsmeow.QRChannelItem) (session.ClientEvent, bool) {
	switch item.Event {
	case whatsmeow.QRChannelEventCode:
		return session.ClientEvent{Kind: session.ClientPairingCode, Code: item.Code}, true
	case whatsmeow.QRChannelTimeout.Event:
		return session.ClientEvent{
			Kind:   session.ClientLinkClosed,
			Reason: session.CloseRestartRequired,
			Err:    errors.New("pairing code expired"),
		}, true
	case whatsmeow.QRChannelEventError:
		return session.ClientEvent{
			Kind:   session.ClientLinkClosed,
			Reason: session.CloseRestartRequired,
			Err:    item.Error,
		}, true
	}
	return session.ClientEvent{}, false
}

// translateEvent maps whatsmeow events onto session events.
func translateEvent(evt any) (session.ClientEvent, bool) {
	closed := func(reason session.CloseReason, err error) (session.ClientEvent, bool) {
		return session.ClientEvent{Kind: session.ClientLinkClosed, Reason: reason, Err: err}, true
	}

	switch e := evt.(type) {
	case *events.Connected:
		return session.ClientEvent{Kind: session.ClientLinkOpen}, true
	case *events.LoggedOut:
		return closed(session.CloseLoggedOut, fmt.Errorf("logged out: %s", e.Reason))
	case *events.StreamReplaced:
		return closed(session.CloseReplaced, nil)
	case *events.Disconnected:
		return closed(session.CloseTransient, nil)
	case *events.ConnectFailure:
		if e.Reason.IsLoggedOut() {
			return closed(session.CloseLoggedOut, fmt.Errorf("connect failure: %s", e.Reason))
		}
		return closed(session.CloseTransient, fmt.Errorf("connect failure: %s", e.Reason))
	case *events.TemporaryBan:
		return closed(session.CloseTransient, fmt.Errorf("temporary ban: %s", e.String()))
	}
	return session.ClientEvent{}, false
}
