package credentials

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"testing"
)

func TestStore_LoadCreatesDirectory(t *testing.T) {
	base := t.TempDir()
	s := NewStore(base)

	m, err := s.Load(context.Background(), "t1")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if m.Dir != filepath.Join(base, "t1") {
		t.Errorf("Dir = %q, want %q", m.Dir, filepath.Join(base, "t1"))
	}
	info, err := os.Stat(m.Dir)
	if err != nil {
		t.Fatalf("credential dir missing: %v", err)
	}
	if !info.IsDir() {
		t.Error("credential path is not a directory")
	}
	if m.Exists() {
		t.Error("Exists() = true before any state was written")
	}

	if err := os.WriteFile(m.StorePath(), []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}
	if !m.Exists() {
		t.Error("Exists() = false after writing device store")
	}
}

func TestStore_LoadIsRepeatable(t *testing.T) {
	s := NewStore(t.TempDir())
	ctx := context.Background()

	first, err := s.Load(ctx, "t1")
	if err != nil {
		t.Fatalf("first Load() error = %v", err)
	}
	if err := os.WriteFile(first.StorePath(), []byte("keys"), 0o600); err != nil {
		t.Fatal(err)
	}

	second, err := s.Load(ctx, "t1")
	if err != nil {
		t.Fatalf("second Load() error = %v", err)
	}
	data, err := os.ReadFile(second.StorePath())
	if err != nil || string(data) != "keys" {
		t.Errorf("existing state not preserved: %q, %v", data, err)
	}
}

func TestStore_LoadHonoursCancellation(t *testing.T) {
	s := NewStore(t.TempDir())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := s.Load(ctx, "t1"); !errors.Is(err, context.Canceled) {
		t.Errorf("Load() error = %v, want context.Canceled", err)
	}
}

func TestStore_Delete(t *testing.T) {
	s := NewStore(t.TempDir())

	m, err := s.Load(context.Background(), "t1")
	if err != nil {
		t.Fatal(err)
	}
	nested := filepath.Join(m.Dir, "sub")
	if err := os.MkdirAll(nested, 0o700); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(nested, "f"), []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}

	if err := s.Delete("t1"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := os.Stat(m.Dir); !os.IsNotExist(err) {
		t.Errorf("credential dir still present after Delete(): %v", err)
	}

	// Deleting again is tolerated.
	if err := s.Delete("t1"); err != nil {
		t.Errorf("second Delete() error = %v", err)
	}
}

func TestStore_Tenants(t *testing.T) {
	base := t.TempDir()
	s := NewStore(base)

	for _, id := range []string{"b", "a"} {
		m, err := s.Load(context.Background(), id)
		if err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(m.StorePath(), []byte("x"), 0o600); err != nil {
			t.Fatal(err)
		}
	}
	// Never written to by a client.
	if _, err := s.Ensure("bare"); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(base, "stray.txt"), nil, 0o600); err != nil {
		t.Fatal(err)
	}

	got, err := s.Tenants()
	if err != nil {
		t.Fatalf("Tenants() error = %v", err)
	}
	sort.Strings(got)
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Errorf("Tenants() = %v, want [a b] without the bare dir", got)
	}

	empty, err := NewStore(filepath.Join(base, "missing")).Tenants()
	if err != nil || len(empty) != 0 {
		t.Errorf("Tenants() on missing base = %v, %v", empty, err)
	}
}

func TestValidateTenantID(t *testing.T) {
	tests := []struct {
		id      string
		wantErr bool
	}{
		{"t1", false},
		{"6281234567890", false},
		{"tenant-with.dots", false},
		{"", true},
		{"  ", true},
		{".", true},
		{"..", true},
		{"../etc", true},
		{`a\b`, true},
	}

	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			err := ValidateTenantID(tt.id)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateTenantID(%q) error = %v, wantErr %v", tt.id, err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidTenantID) {
				t.Errorf("error %v does not wrap ErrInvalidTenantID", err)
			}
		})
	}
}
