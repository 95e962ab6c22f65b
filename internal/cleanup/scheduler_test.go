package cleanup

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func writeAged(t *testing.T, path string, age time.Duration) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}
	mt := time.Now().Add(-age)
	if err := os.Chtimes(path, mt, mt); err != nil {
		t.Fatal(err)
	}
}

func TestNew_Schedule(t *testing.T) {
	tests := []struct {
		name     string
		schedule string
		wantErr  bool
	}{
		{"default every three hours", "0 0 */3 * * *", false},
		{"descriptor", "@every 90m", false},
		{"five fields rejected", "0 */3 * * *", true},
		{"garbage", "soon", true},
		{"empty", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(Config{Schedule: tt.schedule, Dir: t.TempDir(), MaxAge: time.Hour}, nil)
			if (err != nil) != tt.wantErr {
				t.Errorf("New(%q) error = %v, wantErr %v", tt.schedule, err, tt.wantErr)
			}
		})
	}

	if _, err := New(Config{}, nil); !errors.Is(err, ErrNoSchedule) {
		t.Errorf("New(empty) error = %v, want ErrNoSchedule", err)
	}
}

func TestRunOnce_RemovesOldFilesRecursively(t *testing.T) {
	dir := t.TempDir()
	old := filepath.Join(dir, "staged-old.png")
	oldNested := filepath.Join(dir, "tenant-a", "cached.jpg")
	fresh := filepath.Join(dir, "tenant-a", "fresh.jpg")
	writeAged(t, old, 4*time.Hour)
	writeAged(t, oldNested, 5*time.Hour)
	writeAged(t, fresh, time.Minute)

	var (
		mu   sync.Mutex
		seen []Result
	)
	s, err := New(Config{Schedule: "@every 1h", Dir: dir, MaxAge: 3 * time.Hour}, nil, func(r Result) {
		mu.Lock()
		seen = append(seen, r)
		mu.Unlock()
	})
	if err != nil {
		t.Fatal(err)
	}

	res := s.RunOnce()
	if res.Err != nil || res.Removed != 2 {
		t.Fatalf("RunOnce() = %+v, want 2 removed", res)
	}
	for _, p := range []string{old, oldNested} {
		if _, err := os.Stat(p); !os.IsNotExist(err) {
			t.Errorf("%s still exists", p)
		}
	}
	if _, err := os.Stat(fresh); err != nil {
		t.Errorf("fresh file removed: %v", err)
	}
	if _, err := os.Stat(filepath.Dir(fresh)); err != nil {
		t.Errorf("tenant directory removed: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 1 || seen[0].Removed != 2 {
		t.Errorf("hooks saw %+v", seen)
	}
}

func TestRunOnce_MissingDir(t *testing.T) {
	s, err := New(Config{Schedule: "@every 1h", Dir: filepath.Join(t.TempDir(), "absent"), MaxAge: time.Hour}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if res := s.RunOnce(); res.Err != nil || res.Removed != 0 {
		t.Errorf("RunOnce() on missing dir = %+v", res)
	}
}

func TestStartStop(t *testing.T) {
	s, err := New(Config{Schedule: "0 0 */3 * * *", Dir: t.TempDir(), MaxAge: time.Hour}, nil)
	if err != nil {
		t.Fatal(err)
	}

	if !s.Next().IsZero() {
		t.Error("Next() before Start should be zero")
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)
	s.Start(ctx)

	next := s.Next()
	if next.IsZero() || next.Before(time.Now()) {
		t.Errorf("Next() = %v, want a future time", next)
	}
	if next.Minute() != 0 || next.Second() != 0 || next.Hour()%3 != 0 {
		t.Errorf("Next() = %v, want a three-hour boundary", next)
	}

	cancel()
	s.Stop()
	s.Stop()
}
