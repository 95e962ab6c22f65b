// Package sessiontest provides in-memory protocol clients for tests that
// drive sessions without a messaging network.
package sessiontest

import (
	"context"
	"errors"
	"sync"

	"github.com/nerrad567/wa-gateway/internal/credentials"
	"github.com/nerrad567/wa-gateway/internal/session"
)

// ErrClosed is returned by a Client used after Close.
var ErrClosed = errors.New("sessiontest: client closed")

// Sent records one message handed to a Client.
type Sent struct {
	Address  string
	Text     string
	Caption  string
	MimeType string
	Size     int
}

// Client is a scriptable session.Client.
//
// Fields must be set before the client is handed to a session; the
// Factory's Configure hook is the usual place.
type Client struct {
	Material credentials.Material

	// ConnectErr, LogoutErr and SendErr are returned by the matching calls.
	ConnectErr error
	LogoutErr  error
	SendErr    error

	// OpenOnConnect emits ClientLinkOpen from inside Connect.
	OpenOnConnect bool

	// PairingCode, when set, is emitted from inside Connect.
	PairingCode string

	// Unregistered lists addresses IsOnWhatsApp reports as absent.
	Unregistered map[string]bool

	handle session.ClientEventHandler

	mu            sync.Mutex
	connects      int
	logouts       int
	closed        bool
	ended         []error
	existsQueries int
	sent          []Sent
}

// Emit delivers ev to the session's handler as the real client would.
func (c *Client) Emit(ev session.ClientEvent) {
	c.handle(ev)
}

// Connect implements session.Client.
func (c *Client) Connect(_ context.Context) error {
	c.mu.Lock()
	c.connects++
	c.mu.Unlock()

	if c.ConnectErr != nil {
		return c.ConnectErr
	}
	if c.PairingCode != "" {
		c.Emit(session.ClientEvent{Kind: session.ClientPairingCode, Code: c.PairingCode})
	}
	if c.OpenOnConnect {
		c.Emit(session.ClientEvent{Kind: session.ClientLinkOpen})
	}
	return nil
}

// End implements session.Client. The close is reported as restart-required.
func (c *Client) End(reason error) {
	c.mu.Lock()
	c.ended = append(c.ended, reason)
	c.mu.Unlock()

	c.Emit(session.ClientEvent{Kind: session.ClientLinkClosed, Reason: session.CloseRestartRequired, Err: reason})
}

// Logout implements session.Client.
func (c *Client) Logout(_ context.Context) error {
	c.mu.Lock()
	c.logouts++
	c.mu.Unlock()
	return c.LogoutErr
}

// Close implements session.Client.
func (c *Client) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	return nil
}

// IsOnWhatsApp implements session.Client.
func (c *Client) IsOnWhatsApp(_ context.Context, address string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false, ErrClosed
	}
	c.existsQueries++
	return !c.Unregistered[address], nil
}

// SendText implements session.Client.
func (c *Client) SendText(_ context.Context, address, text string) error {
	return c.record(Sent{Address: address, Text: text})
}

// SendImage implements session.Client.
func (c *Client) SendImage(_ context.Context, address string, img session.Image, caption string) error {
	return c.record(Sent{Address: address, Caption: caption, MimeType: img.MimeType, Size: len(img.Data)})
}

func (c *Client) record(s Sent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if c.SendErr != nil {
		return c.SendErr
	}
	c.sent = append(c.sent, s)
	return nil
}

// Connects returns how many times Connect was called.
func (c *Client) Connects() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connects
}

// Logouts returns how many times Logout was called.
func (c *Client) Logouts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.logouts
}

// Closed reports whether Close was called.
func (c *Client) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Ended returns the reasons passed to End.
func (c *Client) Ended() []error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]error(nil), c.ended...)
}

// ExistsQueries returns how many recipient lookups reached the client.
func (c *Client) ExistsQueries() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.existsQueries
}

// Sent returns the messages accepted so far.
func (c *Client) Sent() []Sent {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Sent(nil), c.sent...)
}

// Factory builds Clients and remembers them in creation order.
type Factory struct {
	// Err fails every construction when set.
	Err error

	// Configure is applied to each new Client before it is returned.
	Configure func(*Client)

	mu      sync.Mutex
	clients []*Client
}

// NewClient implements session.ClientFactory.
func (f *Factory) NewClient(_ context.Context, m credentials.Material, handle session.ClientEventHandler) (session.Client, error) {
	if f.Err != nil {
		return nil, f.Err
	}
	c := &Client{Material: m, handle: handle}
	if f.Configure != nil {
		f.Configure(c)
	}

	f.mu.Lock()
	f.clients = append(f.clients, c)
	f.mu.Unlock()
	return c, nil
}

// Clients returns every Client built so far.
func (f *Factory) Clients() []*Client {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*Client(nil), f.clients...)
}

// Last returns the most recently built Client, or nil.
func (f *Factory) Last() *Client {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.clients) == 0 {
		return nil
	}
	return f.clients[len(f.clients)-1]
}
