package media

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func newImageServer(t *testing.T, hits *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if strings.HasSuffix(r.URL.Path, "/missing.png") {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte("content-of:" + r.URL.Path))
	}))
	t.Cleanup(srv.Close)
	return srv
}

// ─── Fetch ─────────────────────────────────────────────────────────

func TestStore_FetchDownloadsOnce(t *testing.T) {
	var hits atomic.Int32
	srv := newImageServer(t, &hits)
	s := NewStore(t.TempDir(), 5*time.Second)
	ctx := context.Background()

	url := srv.URL + "/a/photo.png"
	first, err := s.Fetch(ctx, "t1", url, NameFromURL(url))
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	second, err := s.Fetch(ctx, "t1", url, NameFromURL(url))
	if err != nil {
		t.Fatal(err)
	}

	if first != second {
		t.Errorf("cache paths differ: %q vs %q", first, second)
	}
	if hits.Load() != 1 {
		t.Errorf("server hits = %d, want 1", hits.Load())
	}
	data, err := os.ReadFile(first)
	if err != nil || string(data) != "content-of:/a/photo.png" {
		t.Errorf("cached content = %q, %v", data, err)
	}
	if !strings.HasPrefix(first, filepath.Join(s.Root(), "t1")+string(filepath.Separator)) {
		t.Errorf("cache path %q not below tenant dir", first)
	}
}

func TestStore_FetchSameNameDifferentSource(t *testing.T) {
	var hits atomic.Int32
	srv := newImageServer(t, &hits)
	s := NewStore(t.TempDir(), 5*time.Second)
	ctx := context.Background()

	p1, err := s.Fetch(ctx, "t1", srv.URL+"/a/photo.png", "photo.png")
	if err != nil {
		t.Fatal(err)
	}
	p2, err := s.Fetch(ctx, "t1", srv.URL+"/b/photo.png", "photo.png")
	if err != nil {
		t.Fatal(err)
	}
	p3, err := s.Fetch(ctx, "t2", srv.URL+"/a/photo.png", "photo.png")
	if err != nil {
		t.Fatal(err)
	}

	if p1 == p2 || p1 == p3 {
		t.Fatalf("distinct sources or tenants share a cache entry: %q %q %q", p1, p2, p3)
	}
	d2, _ := os.ReadFile(p2)
	if string(d2) != "content-of:/b/photo.png" {
		t.Errorf("second source served stale content %q", d2)
	}
	if hits.Load() != 3 {
		t.Errorf("server hits = %d, want 3", hits.Load())
	}
}

func TestStore_FetchConcurrentSharesTransfer(t *testing.T) {
	release := make(chan struct{})
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		<-release
		_, _ = w.Write([]byte("img"))
	}))
	defer srv.Close()

	s := NewStore(t.TempDir(), 5*time.Second)
	url := srv.URL + "/slow.png"

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Fetch(context.Background(), "t1", url, "slow.png")
			errs <- err
		}()
	}

	// Give the goroutines time to pile up on the in-flight download.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Errorf("Fetch() error = %v", err)
		}
	}
	if hits.Load() != 1 {
		t.Errorf("server hits = %d, want 1", hits.Load())
	}
}

func TestStore_FetchErrors(t *testing.T) {
	var hits atomic.Int32
	srv := newImageServer(t, &hits)
	s := NewStore(t.TempDir(), 5*time.Second)
	ctx := context.Background()

	tests := []struct {
		name    string
		url     string
		wantErr error
	}{
		{"not found", srv.URL + "/missing.png", ErrDownloadFailed},
		{"bad scheme", "ftp://example.com/a.png", ErrInvalidSource},
		{"relative", "/a.png", ErrInvalidSource},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Fetch(ctx, "t1", tt.url, "a.png")
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Fetch() error = %v, want %v", err, tt.wantErr)
			}
		})
	}

	// A failed download must not leave a cache entry behind.
	p, err := s.CachePath("t1", srv.URL+"/missing.png", "a.png")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(p); !os.IsNotExist(err) {
		t.Errorf("failed download left %q behind", p)
	}
}

func TestNameFromURL(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{"https://cdn.example.com/img/cat.jpg", "cat.jpg"},
		{"https://cdn.example.com/img/cat.jpg?x=1", "cat.jpg"},
		{"https://cdn.example.com/", defaultDownloadName},
		{"::bad", defaultDownloadName},
	}
	for _, tt := range tests {
		if got := NameFromURL(tt.url); got != tt.want {
			t.Errorf("NameFromURL(%q) = %q, want %q", tt.url, got, tt.want)
		}
	}
}

func TestStore_FetchSizeLimit(t *testing.T) {
	const limit = 10

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body := bytes.Repeat([]byte("x"), limit)
		if strings.Contains(r.URL.Path, "over") {
			body = append(body, 'x')
		}
		if strings.Contains(r.URL.Path, "chunked") {
			// Flushing before the body suppresses Content-Length.
			w.(http.Flusher).Flush()
		}
		_, _ = w.Write(body)
	}))
	defer srv.Close()

	s := NewStore(t.TempDir(), 5*time.Second)
	s.SetMaxDownloadSize(limit)
	ctx := context.Background()

	tests := []struct {
		name    string
		path    string
		wantErr error
	}{
		{"at limit", "/exact.png", nil},
		{"declared over limit", "/over.png", ErrTooLarge},
		{"streamed over limit", "/chunked-over.png", ErrTooLarge},
		{"streamed at limit", "/chunked.png", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			url := srv.URL + tt.path
			p, err := s.Fetch(ctx, "t1", url, NameFromURL(url))
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Fetch() error = %v, want %v", err, tt.wantErr)
			}
			if tt.wantErr != nil {
				if !errors.Is(err, ErrDownloadFailed) {
					t.Errorf("Fetch() error = %v, want it to wrap ErrDownloadFailed", err)
				}
				cached, _ := s.CachePath("t1", url, NameFromURL(url))
				if _, statErr := os.Stat(cached); !os.IsNotExist(statErr) {
					t.Errorf("oversized download left %q behind", cached)
				}
				return
			}
			if info, statErr := os.Stat(p); statErr != nil || info.Size() != limit {
				t.Errorf("cached file = %v, %v; want %d bytes", info, statErr, limit)
			}
		})
	}

	entries, err := os.ReadDir(filepath.Join(s.Root(), "t1"))
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".download-") {
			t.Errorf("temp file %q left behind", e.Name())
		}
	}
}

// ─── Staging ───────────────────────────────────────────────────────

func TestStore_StageAndResolve(t *testing.T) {
	s := NewStore(t.TempDir(), 0)

	name, err := s.Stage(bytes.NewReader([]byte("png-bytes")), "Holiday.PNG")
	if err != nil {
		t.Fatalf("Stage() error = %v", err)
	}
	if filepath.Ext(name) != ".png" {
		t.Errorf("staged name %q lost its extension", name)
	}

	p, err := s.Staged(name)
	if err != nil {
		t.Fatalf("Staged() error = %v", err)
	}
	data, _ := os.ReadFile(p)
	if string(data) != "png-bytes" {
		t.Errorf("staged content = %q", data)
	}
}

func TestStore_StagedRejectsTraversal(t *testing.T) {
	root := t.TempDir()
	s := NewStore(filepath.Join(root, "tmp"), 0)
	if err := os.WriteFile(filepath.Join(root, "secret"), []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}

	for _, name := range []string{"", "../secret", "missing.png", "."} {
		if _, err := s.Staged(name); !errors.Is(err, ErrNotFound) {
			t.Errorf("Staged(%q) error = %v, want ErrNotFound", name, err)
		}
	}
}

// ─── Purge ─────────────────────────────────────────────────────────

func TestPurge_RemovesOnlyOldFiles(t *testing.T) {
	dir := t.TempDir()
	now := time.Now()

	oldFile := filepath.Join(dir, "old.png")
	newFile := filepath.Join(dir, "new.png")
	nestedOld := filepath.Join(dir, "t1", "old.jpg")

	for _, p := range []string{oldFile, newFile, nestedOld} {
		if err := os.MkdirAll(filepath.Dir(p), 0o750); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte("x"), 0o600); err != nil {
			t.Fatal(err)
		}
	}
	old := now.Add(-4 * time.Hour)
	for _, p := range []string{oldFile, nestedOld} {
		if err := os.Chtimes(p, old, old); err != nil {
			t.Fatal(err)
		}
	}

	removed, err := Purge(dir, 3*time.Hour, now)
	if err != nil {
		t.Fatalf("Purge() error = %v", err)
	}
	if removed != 2 {
		t.Errorf("removed = %d, want 2", removed)
	}
	if _, err := os.Stat(oldFile); !os.IsNotExist(err) {
		t.Error("old file survived")
	}
	if _, err := os.Stat(newFile); err != nil {
		t.Error("new file removed")
	}
	if _, err := os.Stat(filepath.Dir(nestedOld)); err != nil {
		t.Error("tenant directory removed")
	}
}

func TestPurge_MissingDir(t *testing.T) {
	removed, err := Purge(filepath.Join(t.TempDir(), "nope"), time.Hour, time.Now())
	if err != nil || removed != 0 {
		t.Errorf("Purge() = %d, %v; want 0, nil", removed, err)
	}
}

func TestStore_PurgeTenant(t *testing.T) {
	s := NewStore(t.TempDir(), 0)
	dir, err := s.TenantDir("t1")
	if err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		t.Fatal(err)
	}
	p := filepath.Join(dir, "x.png")
	if err := os.WriteFile(p, []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}
	old := time.Now().Add(-2 * time.Hour)
	if err := os.Chtimes(p, old, old); err != nil {
		t.Fatal(err)
	}

	removed, err := s.PurgeTenant("t1", time.Hour)
	if err != nil || removed != 1 {
		t.Errorf("PurgeTenant() = %d, %v; want 1, nil", removed, err)
	}
	if _, err := s.PurgeTenant("../x", time.Hour); err == nil {
		t.Error("PurgeTenant() accepted invalid tenant")
	}
}
