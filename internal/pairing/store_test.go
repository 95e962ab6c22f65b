package pairing

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestStore_PutGet(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "qr")
	s := NewStore(dir)

	if err := s.Put("t1", "2@abc,def"); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	art, err := s.Get("t1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if art.Payload != "2@abc,def" {
		t.Errorf("Payload = %q, want %q", art.Payload, "2@abc,def")
	}
	if art.UpdatedAt.IsZero() {
		t.Error("UpdatedAt is zero")
	}
	if _, err := os.Stat(filepath.Join(dir, "qr-code-t1.txt")); err != nil {
		t.Errorf("payload file not at deterministic path: %v", err)
	}
}

func TestStore_PutOverwrites(t *testing.T) {
	s := NewStore(t.TempDir())

	if err := s.Put("t1", "first"); err != nil {
		t.Fatal(err)
	}
	if err := s.Put("t1", "second"); err != nil {
		t.Fatal(err)
	}

	art, err := s.Get("t1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if art.Payload != "second" {
		t.Errorf("Payload = %q, want %q", art.Payload, "second")
	}
}

func TestStore_GetNotAvailable(t *testing.T) {
	s := NewStore(t.TempDir())

	tests := []struct {
		name  string
		setup func()
		id    string
	}{
		{name: "never written", setup: func() {}, id: "t1"},
		{
			name: "file removed",
			setup: func() {
				_ = s.Put("t2", "code")
				_ = os.Remove(s.Path("t2"))
			},
			id: "t2",
		},
		{
			name:  "empty payload",
			setup: func() { _ = os.WriteFile(s.Path("t3"), nil, 0o600) },
			id:    "t3",
		},
		{name: "invalid tenant", setup: func() {}, id: "../x"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.setup()
			if _, err := s.Get(tt.id); !errors.Is(err, ErrPairingNotAvailable) {
				t.Errorf("Get(%q) error = %v, want ErrPairingNotAvailable", tt.id, err)
			}
		})
	}
}

func TestStore_Delete(t *testing.T) {
	s := NewStore(t.TempDir())

	if err := s.Put("t1", "code"); err != nil {
		t.Fatal(err)
	}
	if err := s.Delete("t1"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := s.Get("t1"); !errors.Is(err, ErrPairingNotAvailable) {
		t.Errorf("Get() after Delete() error = %v, want ErrPairingNotAvailable", err)
	}
	if err := s.Delete("t1"); err != nil {
		t.Errorf("second Delete() error = %v", err)
	}
}
