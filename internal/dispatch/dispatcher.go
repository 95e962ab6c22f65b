package dispatch

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/nerrad567/wa-gateway/internal/session"
)

// MediaKind classifies an attachment.
type MediaKind string

// KindPhoto is the only kind with a send action.
const KindPhoto MediaKind = "photo"

// Attachment describes a message's media payload.
type Attachment struct {
	// Source is a remote URL for SendMedia or a staged upload name for
	// SendMediaUpload.
	Source string
	// Name is the logical display name; derived from Source when empty.
	Name string
	Kind MediaKind
}

// Result echoes a successful send.
type Result struct {
	Recipient string `json:"recipient"`
	Message   string `json:"message"`
}

// String renders the result the way callers display it.
func (r Result) String() string {
	return fmt.Sprintf("success send message to %s with message %s", r.Recipient, r.Message)
}

// Conn is the part of a Session the dispatcher sends through.
type Conn interface {
	TenantID() string
	CheckConnection() (session.State, error)
	Client() session.Client
}

// MediaResolver turns attachment sources into local files.
type MediaResolver interface {
	Fetch(ctx context.Context, tenantID, rawURL, name string) (string, error)
	Staged(name string) (string, error)
}

// Logger is the logging interface used by the dispatcher.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}

// Config holds dispatcher settings.
type Config struct {
	// RecipientCacheSize bounds remembered positive existence lookups.
	// Zero disables the cache.
	RecipientCacheSize int
	// RecipientCacheTTL is how long a positive lookup is trusted.
	RecipientCacheTTL time.Duration
}

// Dispatcher validates recipients, resolves media, and sends messages on a
// session's client. It holds no per-tenant state beyond the lookup cache.
type Dispatcher struct {
	media  MediaResolver
	known  *expirable.LRU[string, struct{}]
	logger Logger
}

// New creates a Dispatcher.
func New(media MediaResolver, cfg Config) *Dispatcher {
	d := &Dispatcher{media: media, logger: noopLogger{}}
	if cfg.RecipientCacheSize > 0 {
		d.known = expirable.NewLRU[string, struct{}](cfg.RecipientCacheSize, nil, cfg.RecipientCacheTTL)
	}
	return d
}

// SetLogger sets the logger for the dispatcher.
func (d *Dispatcher) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	d.logger = logger
}

// SendText sends a text message.
//
// Checks run in order: missing parameters, recipient format, connection
// state, recipient existence. Nothing reaches the network before the
// first two pass.
func (d *Dispatcher) SendText(ctx context.Context, conn Conn, recipient, text string) (Result, error) {
	addr, err := ValidateText(recipient, text)
	if err != nil {
		return Result{}, err
	}

	client, err := d.ready(ctx, conn, addr)
	if err != nil {
		return Result{}, err
	}
	if err := client.SendText(ctx, addr, text); err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrSendFailed, err)
	}

	d.logger.Debug("text sent", "tenant_id", conn.TenantID(), "recipient", addr)
	return Result{Recipient: addr, Message: text}, nil
}

// ValidateText runs the connection-independent checks of SendText and
// returns the normalized recipient address.
func ValidateText(recipient, text string) (string, error) {
	if strings.TrimSpace(recipient) == "" || text == "" {
		return "", ErrMissingParameters
	}
	return NormalizeRecipient(recipient)
}

// ValidateMedia runs the connection-independent checks of SendMedia and
// SendMediaUpload and returns the normalized recipient address.
func ValidateMedia(recipient string, att Attachment) (string, error) {
	if strings.TrimSpace(recipient) == "" || att.Source == "" {
		return "", ErrMissingParameters
	}
	addr, err := NormalizeRecipient(recipient)
	if err != nil {
		return "", err
	}
	if att.Kind != KindPhoto {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedMediaKind, att.Kind)
	}
	return addr, nil
}

// SendMedia downloads att.Source into the tenant's media cache and sends it.
func (d *Dispatcher) SendMedia(ctx context.Context, conn Conn, recipient string, att Attachment, caption string) (Result, error) {
	return d.sendMedia(ctx, conn, recipient, att, caption, func(tenantID string) (string, error) {
		return d.media.Fetch(ctx, tenantID, att.Source, att.Name)
	})
}

// SendMediaUpload sends a file previously staged by an upload.
func (d *Dispatcher) SendMediaUpload(ctx context.Context, conn Conn, recipient string, att Attachment, caption string) (Result, error) {
	return d.sendMedia(ctx, conn, recipient, att, caption, func(string) (string, error) {
		return d.media.Staged(att.Source)
	})
}

func (d *Dispatcher) sendMedia(
	ctx context.Context,
	conn Conn,
	recipient string,
	att Attachment,
	caption string,
	resolve func(tenantID string) (string, error),
) (Result, error) {
	addr, err := ValidateMedia(recipient, att)
	if err != nil {
		return Result{}, err
	}

	client, err := d.ready(ctx, conn, addr)
	if err != nil {
		return Result{}, err
	}

	path, err := resolve(conn.TenantID())
	if err != nil {
		return Result{}, fmt.Errorf("resolving attachment: %w", err)
	}
	img, err := loadImage(path, att.Name)
	if err != nil {
		return Result{}, err
	}

	if err := client.SendImage(ctx, addr, img, caption); err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrSendFailed, err)
	}

	d.logger.Debug("image sent", "tenant_id", conn.TenantID(), "recipient", addr, "bytes", len(img.Data))
	return Result{Recipient: addr, Message: caption}, nil
}

// ready gates on connection state and recipient existence and returns the
// client to send on.
func (d *Dispatcher) ready(ctx context.Context, conn Conn, addr string) (session.Client, error) {
	if _, err := conn.CheckConnection(); err != nil {
		return nil, err
	}
	client := conn.Client()
	if client == nil {
		return nil, session.ErrNoActiveConnection
	}

	key := conn.TenantID() + "|" + addr
	if d.known != nil {
		if _, ok := d.known.Get(key); ok {
			return client, nil
		}
	}

	exists, err := client.IsOnWhatsApp(ctx, addr)
	if err != nil {
		return nil, fmt.Errorf("checking recipient: %w", err)
	}
	if !exists {
		return nil, ErrRecipientNotFound
	}
	if d.known != nil {
		d.known.Add(key, struct{}{})
	}
	return client, nil
}

func loadImage(path, name string) (session.Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return session.Image{}, fmt.Errorf("reading attachment: %w", err)
	}

	mt := mimetype.Detect(data)
	if !strings.HasPrefix(mt.String(), "image/") {
		return session.Image{}, fmt.Errorf("%w: %s is %s, not an image", ErrUnsupportedMediaKind, name, mt.String())
	}
	return session.Image{Data: data, MimeType: mt.String(), FileName: name}, nil
}
