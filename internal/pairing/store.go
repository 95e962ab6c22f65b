// Package pairing persists the latest QR pairing payload per tenant so a
// polling caller can fetch it independently of the session that produced it.
package pairing

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/nerrad567/wa-gateway/internal/credentials"
)

const (
	dirPerm  = 0o750
	filePerm = 0o600
)

// Artifact is a stored pairing payload.
type Artifact struct {
	TenantID  string
	Payload   string
	UpdatedAt time.Time
}

// Store keeps one payload file per tenant inside a single directory.
type Store struct {
	dir string
}

// NewStore creates a Store writing below dir.
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// Path returns the deterministic file path for a tenant's payload.
func (s *Store) Path(tenantID string) string {
	return filepath.Join(s.dir, "qr-code-"+tenantID+".txt")
}

// Put writes or overwrites the tenant's pairing payload.
func (s *Store) Put(tenantID, payload string) error {
	if err := credentials.ValidateTenantID(tenantID); err != nil {
		return err
	}
	if err := os.MkdirAll(s.dir, dirPerm); err != nil {
		return fmt.Errorf("creating pairing dir: %w", err)
	}

	// Write to a sibling then rename so pollers never see a partial payload.
	path := s.Path(tenantID)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(payload), filePerm); err != nil {
		return fmt.Errorf("writing pairing payload: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("storing pairing payload: %w", err)
	}
	return nil
}

// Get returns the tenant's latest pairing payload. Every read failure,
// including a missing file, is reported as ErrPairingNotAvailable.
func (s *Store) Get(tenantID string) (Artifact, error) {
	if err := credentials.ValidateTenantID(tenantID); err != nil {
		return Artifact{}, fmt.Errorf("%w: %w", ErrPairingNotAvailable, err)
	}

	path := s.Path(tenantID)
	data, err := os.ReadFile(path)
	if err != nil {
		return Artifact{}, fmt.Errorf("%w: %w", ErrPairingNotAvailable, err)
	}
	if len(data) == 0 {
		return Artifact{}, ErrPairingNotAvailable
	}

	art := Artifact{TenantID: tenantID, Payload: string(data), UpdatedAt: time.Now()}
	if info, err := os.Stat(path); err == nil {
		art.UpdatedAt = info.ModTime()
	}
	return art, nil
}

// Delete removes the tenant's payload. A missing file is not an error.
func (s *Store) Delete(tenantID string) error {
	if err := credentials.ValidateTenantID(tenantID); err != nil {
		return err
	}
	if err := os.Remove(s.Path(tenantID)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing pairing payload: %w", err)
	}
	return nil
}
