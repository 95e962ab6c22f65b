package dispatch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/nerrad567/wa-gateway/internal/credentials"
	"github.com/nerrad567/wa-gateway/internal/session"
	"github.com/nerrad567/wa-gateway/internal/session/sessiontest"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x02\x00\x00\x00")

// fakeMedia resolves every source to files written in a temp dir.
type fakeMedia struct {
	dir      string
	fetches  int
	fetchErr error
}

func (m *fakeMedia) Fetch(_ context.Context, tenantID, rawURL, _ string) (string, error) {
	m.fetches++
	if m.fetchErr != nil {
		return "", m.fetchErr
	}
	p := filepath.Join(m.dir, tenantID+"-remote.png")
	return p, os.WriteFile(p, pngHeader, 0o600)
}

func (m *fakeMedia) Staged(name string) (string, error) {
	p := filepath.Join(m.dir, name)
	if _, err := os.Stat(p); err != nil {
		return "", err
	}
	return p, nil
}

// newConn returns a session in the requested state backed by a fake client.
func newConn(t *testing.T, state session.State, configure func(*sessiontest.Client)) (*session.Session, *sessiontest.Factory) {
	t.Helper()
	factory := &sessiontest.Factory{Configure: configure}
	sess := session.New(session.Config{
		TenantID:    "t1",
		Credentials: credentials.NewStore(t.TempDir()),
		Factory:     factory,
	})
	if state == session.StateIdle {
		return sess, factory
	}
	if _, err := sess.InitializeConnection(context.Background()); err != nil {
		t.Fatal(err)
	}
	if state == session.StateConnected {
		factory.Last().Emit(session.ClientEvent{Kind: session.ClientLinkOpen})
	}
	return sess, factory
}

func newDispatcher(t *testing.T) (*Dispatcher, *fakeMedia) {
	t.Helper()
	m := &fakeMedia{dir: t.TempDir()}
	return New(m, Config{RecipientCacheSize: 16, RecipientCacheTTL: time.Minute}), m
}

// ─── Recipient normalisation ───────────────────────────────────────

func TestNormalizeRecipient(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"6281234567890", "6281234567890@s.whatsapp.net", false},
		{" 6281234567890 ", "6281234567890@s.whatsapp.net", false},
		{"6281234567890@c.us", "6281234567890@s.whatsapp.net", false},
		{"6281234567890@s.whatsapp.net", "6281234567890@s.whatsapp.net", false},
		{"+1invalid", "", true},
		{"+6281234567890", "", true},
		{"62-812", "", true},
		{"123@g.us", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := NormalizeRecipient(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NormalizeRecipient(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidRecipientFormat) {
				t.Errorf("error = %v, want ErrInvalidRecipientFormat", err)
			}
			if got != tt.want {
				t.Errorf("NormalizeRecipient(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

// ─── SendText ──────────────────────────────────────────────────────

func TestSendText_MissingParametersInAnyState(t *testing.T) {
	d, _ := newDispatcher(t)

	for _, st := range []session.State{session.StateIdle, session.StateDisconnected, session.StateConnected} {
		conn, _ := newConn(t, st, nil)
		for _, in := range [][2]string{{"", "hi"}, {"6281234567890", ""}, {"", ""}} {
			if _, err := d.SendText(context.Background(), conn, in[0], in[1]); !errors.Is(err, ErrMissingParameters) {
				t.Errorf("state %s, SendText(%q, %q) error = %v, want ErrMissingParameters", st, in[0], in[1], err)
			}
		}
	}
}

func TestSendText_InvalidRecipientBeforeNetwork(t *testing.T) {
	d, _ := newDispatcher(t)
	conn, factory := newConn(t, session.StateConnected, nil)

	_, err := d.SendText(context.Background(), conn, "+1invalid", "hi")
	if !errors.Is(err, ErrInvalidRecipientFormat) {
		t.Fatalf("SendText() error = %v, want ErrInvalidRecipientFormat", err)
	}
	if n := factory.Last().ExistsQueries(); n != 0 {
		t.Errorf("existence checks = %d, want 0", n)
	}

	// Format is checked before state, so an idle session gives the same answer.
	idle, _ := newConn(t, session.StateIdle, nil)
	if _, err := d.SendText(context.Background(), idle, "+1invalid", "hi"); !errors.Is(err, ErrInvalidRecipientFormat) {
		t.Errorf("idle SendText() error = %v, want ErrInvalidRecipientFormat", err)
	}
}

func TestSendText_StateGate(t *testing.T) {
	d, _ := newDispatcher(t)

	tests := []struct {
		state   session.State
		wantErr error
	}{
		{session.StateIdle, session.ErrAwaitingConnection},
		{session.StateDisconnected, session.ErrNoActiveConnection},
	}
	for _, tt := range tests {
		t.Run(string(tt.state), func(t *testing.T) {
			conn, _ := newConn(t, tt.state, nil)
			if _, err := d.SendText(context.Background(), conn, "6281234567890", "hi"); !errors.Is(err, tt.wantErr) {
				t.Errorf("SendText() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestSendText_RecipientNotFound(t *testing.T) {
	d, _ := newDispatcher(t)
	conn, factory := newConn(t, session.StateConnected, func(c *sessiontest.Client) {
		c.Unregistered = map[string]bool{"6281234567890@s.whatsapp.net": true}
	})

	_, err := d.SendText(context.Background(), conn, "6281234567890", "hi")
	if !errors.Is(err, ErrRecipientNotFound) {
		t.Fatalf("SendText() error = %v, want ErrRecipientNotFound", err)
	}
	if len(factory.Last().Sent()) != 0 {
		t.Error("message sent to unknown recipient")
	}
}

func TestSendText_Success(t *testing.T) {
	d, _ := newDispatcher(t)
	conn, factory := newConn(t, session.StateConnected, nil)

	res, err := d.SendText(context.Background(), conn, "6281234567890", "hello")
	if err != nil {
		t.Fatalf("SendText() error = %v", err)
	}
	if res.Recipient != "6281234567890@s.whatsapp.net" || res.Message != "hello" {
		t.Errorf("Result = %+v", res)
	}
	if want := "success send message to 6281234567890@s.whatsapp.net with message hello"; res.String() != want {
		t.Errorf("String() = %q, want %q", res.String(), want)
	}

	sent := factory.Last().Sent()
	if len(sent) != 1 || sent[0].Text != "hello" || sent[0].Address != res.Recipient {
		t.Errorf("sent = %+v", sent)
	}
}

func TestSendText_CachesPositiveLookups(t *testing.T) {
	d, _ := newDispatcher(t)
	conn, factory := newConn(t, session.StateConnected, nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := d.SendText(ctx, conn, "6281234567890", "hi"); err != nil {
			t.Fatal(err)
		}
	}
	if n := factory.Last().ExistsQueries(); n != 1 {
		t.Errorf("existence checks = %d, want 1", n)
	}
}

func TestSendText_SendFailure(t *testing.T) {
	d, _ := newDispatcher(t)
	conn, _ := newConn(t, session.StateConnected, func(c *sessiontest.Client) {
		c.SendErr = errors.New("socket closed")
	})

	if _, err := d.SendText(context.Background(), conn, "6281234567890", "hi"); !errors.Is(err, ErrSendFailed) {
		t.Errorf("SendText() error = %v, want ErrSendFailed", err)
	}
}

// ─── SendMedia ─────────────────────────────────────────────────────

func TestSendMedia_Photo(t *testing.T) {
	d, m := newDispatcher(t)
	conn, factory := newConn(t, session.StateConnected, nil)

	att := Attachment{Source: "https://cdn.example.com/cat.png", Name: "cat.png", Kind: KindPhoto}
	res, err := d.SendMedia(context.Background(), conn, "6281234567890", att, "look")
	if err != nil {
		t.Fatalf("SendMedia() error = %v", err)
	}
	if res.Message != "look" {
		t.Errorf("Result.Message = %q, want %q", res.Message, "look")
	}
	if m.fetches != 1 {
		t.Errorf("fetches = %d, want 1", m.fetches)
	}

	sent := factory.Last().Sent()
	if len(sent) != 1 || sent[0].MimeType != "image/png" || sent[0].Caption != "look" {
		t.Errorf("sent = %+v", sent)
	}
}

func TestSendMedia_ValidationOrder(t *testing.T) {
	d, m := newDispatcher(t)
	conn, _ := newConn(t, session.StateIdle, nil)
	ctx := context.Background()

	tests := []struct {
		name      string
		recipient string
		att       Attachment
		wantErr   error
	}{
		{"no source", "6281234567890", Attachment{Kind: KindPhoto}, ErrMissingParameters},
		{"bad recipient", "abc", Attachment{Source: "https://x/y.png", Kind: KindPhoto}, ErrInvalidRecipientFormat},
		{"unknown kind", "6281234567890", Attachment{Source: "https://x/y.pdf", Kind: "document"}, ErrUnsupportedMediaKind},
		{"idle session", "6281234567890", Attachment{Source: "https://x/y.png", Kind: KindPhoto}, session.ErrAwaitingConnection},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := d.SendMedia(ctx, conn, tt.recipient, tt.att, ""); !errors.Is(err, tt.wantErr) {
				t.Errorf("SendMedia() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
	if m.fetches != 0 {
		t.Errorf("fetches = %d, want 0 for rejected sends", m.fetches)
	}
}

func TestSendMedia_NotAnImage(t *testing.T) {
	d, m := newDispatcher(t)
	conn, _ := newConn(t, session.StateConnected, nil)

	if err := os.WriteFile(filepath.Join(m.dir, "notes.png"), []byte("plain text"), 0o600); err != nil {
		t.Fatal(err)
	}
	att := Attachment{Source: "notes.png", Name: "notes.png", Kind: KindPhoto}
	if _, err := d.SendMediaUpload(context.Background(), conn, "6281234567890", att, ""); !errors.Is(err, ErrUnsupportedMediaKind) {
		t.Errorf("SendMediaUpload() error = %v, want ErrUnsupportedMediaKind", err)
	}
}

func TestSendMediaUpload(t *testing.T) {
	d, m := newDispatcher(t)
	conn, factory := newConn(t, session.StateConnected, nil)

	if err := os.WriteFile(filepath.Join(m.dir, "staged.png"), pngHeader, 0o600); err != nil {
		t.Fatal(err)
	}

	att := Attachment{Source: "staged.png", Kind: KindPhoto}
	if _, err := d.SendMediaUpload(context.Background(), conn, "6281234567890", att, "cap"); err != nil {
		t.Fatalf("SendMediaUpload() error = %v", err)
	}
	if m.fetches != 0 {
		t.Error("upload path downloaded media")
	}
	if len(factory.Last().Sent()) != 1 {
		t.Error("image not sent")
	}

	missing := Attachment{Source: "gone.png", Kind: KindPhoto}
	if _, err := d.SendMediaUpload(context.Background(), conn, "6281234567890", missing, ""); err == nil {
		t.Error("SendMediaUpload() with missing file succeeded")
	}
}
