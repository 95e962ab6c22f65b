package credentials

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	// storeFileName is the device store written by the protocol client.
	storeFileName = "session.db"

	dirPerm = 0o700
)

// Material locates one tenant's authentication state on disk.
type Material struct {
	TenantID string
	Dir      string
}

// StorePath returns the path of the protocol client's device store.
func (m Material) StorePath() string {
	return filepath.Join(m.Dir, storeFileName)
}

// Exists reports whether any credential state has been persisted yet.
func (m Material) Exists() bool {
	_, err := os.Stat(m.StorePath())
	return err == nil
}

// Store manages credential directories below a single base directory.
//
// Thread Safety:
//   - Safe for concurrent use. Operations for one tenant are serialised by
//     the owning session, not by the store.
type Store struct {
	base string
}

// NewStore creates a Store rooted at base. The directory is created lazily.
func NewStore(base string) *Store {
	return &Store{base: base}
}

// Base returns the root directory.
func (s *Store) Base() string {
	return s.base
}

// Dir returns the credential directory for a tenant without touching disk.
func (s *Store) Dir(tenantID string) (string, error) {
	if err := ValidateTenantID(tenantID); err != nil {
		return "", err
	}
	return filepath.Join(s.base, tenantID), nil
}

// Ensure creates the tenant's credential directory if it does not exist.
func (s *Store) Ensure(tenantID string) (string, error) {
	dir, err := s.Dir(tenantID)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return "", fmt.Errorf("creating credential dir: %w", err)
	}
	return dir, nil
}

// Load returns the tenant's credential material, creating the empty
// directory on first use. The protocol client opens or initialises the
// device store inside it.
func (s *Store) Load(ctx context.Context, tenantID string) (Material, error) {
	if err := ctx.Err(); err != nil {
		return Material{}, err
	}
	dir, err := s.Ensure(tenantID)
	if err != nil {
		return Material{}, err
	}
	return Material{TenantID: tenantID, Dir: dir}, nil
}

// Delete recursively removes the tenant's credential directory.
// A missing directory is not an error.
func (s *Store) Delete(tenantID string) error {
	dir, err := s.Dir(tenantID)
	if err != nil {
		return err
	}
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("removing credential dir: %w", err)
	}
	return nil
}

// Tenants lists tenant IDs whose device store exists on disk. Used at
// startup to restore sessions that were paired before a restart; a bare
// directory left by Ensure holds nothing to restore and is skipped.
func (s *Store) Tenants() ([]string, error) {
	entries, err := os.ReadDir(s.base)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("listing credential dirs: %w", err)
	}

	var ids []string
	for _, e := range entries {
		if !e.IsDir() || ValidateTenantID(e.Name()) != nil {
			continue
		}
		m := Material{TenantID: e.Name(), Dir: filepath.Join(s.base, e.Name())}
		if !m.Exists() {
			continue
		}
		ids = append(ids, e.Name())
	}
	return ids, nil
}

// ValidateTenantID rejects IDs that are empty or could escape a base
// directory when joined as a path element.
func ValidateTenantID(tenantID string) error {
	switch {
	case strings.TrimSpace(tenantID) == "":
		return fmt.Errorf("%w: empty", ErrInvalidTenantID)
	case tenantID == "." || tenantID == "..":
		return fmt.Errorf("%w: %q", ErrInvalidTenantID, tenantID)
	case strings.ContainsAny(tenantID, `/\`) || strings.ContainsRune(tenantID, 0):
		return fmt.Errorf("%w: %q contains a path separator", ErrInvalidTenantID, tenantID)
	}
	return nil
}
