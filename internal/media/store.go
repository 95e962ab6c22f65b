package media

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/nerrad567/wa-gateway/internal/credentials"
)

const (
	dirPerm  = 0o750
	filePerm = 0o640

	// urlKeyLen is the number of hex characters of the URL hash kept in
	// cache file names.
	urlKeyLen = 16

	defaultDownloadName = "media"

	// DefaultMaxDownloadSize caps a remote attachment when no limit is set.
	DefaultMaxDownloadSize int64 = 16 << 20
)

// Logger is the logging interface used by the media store.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}

// Store manages staged uploads and downloaded media below one root.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
type Store struct {
	root    string
	client  *http.Client
	maxSize int64
	group   singleflight.Group
	logger  Logger
}

// NewStore creates a Store rooted at root. timeout bounds each download;
// zero means no client-side limit beyond the caller's context.
func NewStore(root string, timeout time.Duration) *Store {
	return &Store{
		root:    root,
		client:  &http.Client{Timeout: timeout},
		maxSize: DefaultMaxDownloadSize,
		logger:  noopLogger{},
	}
}

// SetLogger sets the logger for the store.
func (s *Store) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	s.logger = logger
}

// SetMaxDownloadSize sets the largest remote attachment Fetch accepts.
// Non-positive values restore DefaultMaxDownloadSize.
func (s *Store) SetMaxDownloadSize(n int64) {
	if n <= 0 {
		n = DefaultMaxDownloadSize
	}
	s.maxSize = n
}

// Root returns the temp root.
func (s *Store) Root() string {
	return s.root
}

// TenantDir returns the tenant's download cache directory.
func (s *Store) TenantDir(tenantID string) (string, error) {
	if err := credentials.ValidateTenantID(tenantID); err != nil {
		return "", err
	}
	return filepath.Join(s.root, tenantID), nil
}

// NameFromURL returns the last path segment of rawURL, the logical display
// name of a remote attachment.
func NameFromURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return defaultDownloadName
	}
	name := sanitizeName(path.Base(u.Path))
	if name == "" {
		return defaultDownloadName
	}
	return name
}

// CachePath returns where a download of rawURL named name is cached for
// the tenant.
func (s *Store) CachePath(tenantID, rawURL, name string) (string, error) {
	dir, err := s.TenantDir(tenantID)
	if err != nil {
		return "", err
	}
	name = sanitizeName(name)
	if name == "" {
		name = NameFromURL(rawURL)
	}
	sum := sha256.Sum256([]byte(rawURL))
	return filepath.Join(dir, hex.EncodeToString(sum[:])[:urlKeyLen]+"-"+name), nil
}

// Fetch downloads rawURL into the tenant's cache and returns the local
// path. A cached copy is returned without contacting the source.
func (s *Store) Fetch(ctx context.Context, tenantID, rawURL, name string) (string, error) {
	if err := validateSource(rawURL); err != nil {
		return "", err
	}
	dest, err := s.CachePath(tenantID, rawURL, name)
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(dest); err == nil {
		s.logger.Debug("media cache hit", "tenant_id", tenantID, "path", dest)
		return dest, nil
	}

	_, err, _ = s.group.Do(dest, func() (any, error) {
		if _, err := os.Stat(dest); err == nil {
			return nil, nil
		}
		return nil, s.download(ctx, rawURL, dest)
	})
	if err != nil {
		return "", err
	}
	return dest, nil
}

// download streams rawURL into dest through a temp file in the same
// directory, so a partial transfer never appears under the final name.
func (s *Store) download(ctx context.Context, rawURL, dest string) error {
	if err := os.MkdirAll(filepath.Dir(dest), dirPerm); err != nil {
		return fmt.Errorf("creating media dir: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidSource, err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDownloadFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: %s returned %d", ErrDownloadFailed, rawURL, resp.StatusCode)
	}
	if resp.ContentLength > s.maxSize {
		return fmt.Errorf("%w: %s is %d bytes, limit %d", ErrTooLarge, rawURL, resp.ContentLength, s.maxSize)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dest), ".download-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()

	written, copyErr := io.Copy(tmp, io.LimitReader(resp.Body, s.maxSize+1))
	if copyErr == nil && written > s.maxSize {
		copyErr = fmt.Errorf("%w: %s exceeds %d bytes", ErrTooLarge, rawURL, s.maxSize)
	}
	closeErr := tmp.Close()
	if copyErr != nil || closeErr != nil {
		_ = os.Remove(tmpName)
		if errors.Is(copyErr, ErrTooLarge) {
			return copyErr
		}
		if copyErr != nil {
			return fmt.Errorf("%w: %w", ErrDownloadFailed, copyErr)
		}
		return fmt.Errorf("writing download: %w", closeErr)
	}
	if err := os.Rename(tmpName, dest); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("storing download: %w", err)
	}

	s.logger.Debug("media downloaded", "url", rawURL, "path", dest, "bytes", written)
	return nil
}

// Stage writes r to a new upload file named with a random ID and the
// extension of originalName. It returns the staged file name.
func (s *Store) Stage(r io.Reader, originalName string) (string, error) {
	if err := os.MkdirAll(s.root, dirPerm); err != nil {
		return "", fmt.Errorf("creating temp root: %w", err)
	}

	name := stagedName(originalName)
	f, err := os.OpenFile(filepath.Join(s.root, name), os.O_CREATE|os.O_EXCL|os.O_WRONLY, filePerm)
	if err != nil {
		return "", fmt.Errorf("creating staged file: %w", err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		_ = os.Remove(f.Name())
		return "", fmt.Errorf("writing staged file: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("closing staged file: %w", err)
	}
	return name, nil
}

// Staged returns the path of a staged upload.
func (s *Store) Staged(name string) (string, error) {
	clean := sanitizeName(name)
	if clean == "" || clean != name {
		return "", fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	p := filepath.Join(s.root, clean)
	info, err := os.Stat(p)
	if err != nil || !info.Mode().IsRegular() {
		return "", fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	return p, nil
}

// PurgeTenant removes the tenant's cached downloads older than maxAge.
func (s *Store) PurgeTenant(tenantID string, maxAge time.Duration) (int, error) {
	dir, err := s.TenantDir(tenantID)
	if err != nil {
		return 0, err
	}
	return Purge(dir, maxAge, time.Now())
}

// Purge removes regular files below dir whose modification time is older
// than maxAge relative to now. Directories are kept. A missing dir is not
// an error. Returns the number of files removed.
func Purge(dir string, maxAge time.Duration, now time.Time) (int, error) {
	cutoff := now.Add(-maxAge)
	removed := 0

	err := filepath.WalkDir(dir, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil //nolint:nilerr // file vanished mid-walk
		}
		if info.ModTime().Before(cutoff) {
			if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
				return fmt.Errorf("removing %s: %w", p, err)
			}
			removed++
		}
		return nil
	})
	return removed, err
}

func validateSource(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidSource, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: %q", ErrInvalidSource, rawURL)
	}
	return nil
}

func stagedName(originalName string) string {
	ext := strings.ToLower(filepath.Ext(sanitizeName(originalName)))
	return uuid.NewString() + ext
}

// sanitizeName reduces name to a single safe path element.
func sanitizeName(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, `\`, "/"))
	switch name {
	case ".", "..", "/":
		return ""
	}
	return name
}
