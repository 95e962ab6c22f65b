package cleanup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/nerrad567/wa-gateway/internal/media"
)

// ErrNoSchedule is returned when the schedule expression is empty.
var ErrNoSchedule = errors.New("cleanup: schedule is empty")

// Config describes one purge job.
type Config struct {
	// Schedule is a cron expression with a seconds field, or a
	// descriptor such as "@every 3h".
	Schedule string

	// Dir is purged recursively.
	Dir string

	// MaxAge is the minimum age of files to remove.
	MaxAge time.Duration
}

// Result describes one purge pass.
type Result struct {
	Removed int
	Err     error
	Started time.Time
	Took    time.Duration
}

// Hook observes completed passes.
type Hook func(Result)

// Scheduler runs the purge job on its cron schedule.
type Scheduler struct {
	cfg    Config
	cron   *cron.Cron
	logger *slog.Logger
	hooks  []Hook
	now    func() time.Time

	mu       sync.Mutex
	started  bool
	stopOnce sync.Once
}

var parser = cron.NewParser(
	cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// New validates the schedule and registers the purge job. The scheduler
// does not run until Start.
func New(cfg Config, logger *slog.Logger, hooks ...Hook) (*Scheduler, error) {
	if cfg.Schedule == "" {
		return nil, ErrNoSchedule
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	s := &Scheduler{
		cfg:    cfg,
		logger: logger,
		hooks:  hooks,
		now:    time.Now,
	}

	cl := cronLogger{l: logger}
	s.cron = cron.New(
		cron.WithParser(parser),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)

	if _, err := s.cron.AddFunc(cfg.Schedule, func() { s.RunOnce() }); err != nil {
		return nil, fmt.Errorf("cleanup: invalid schedule %q: %w", cfg.Schedule, err)
	}
	return s, nil
}

// Start begins running the job. The scheduler stops when ctx is done
// or Stop is called.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.mu.Unlock()

	s.cron.Start()
	s.logger.Info("temp cleanup scheduled",
		"schedule", s.cfg.Schedule,
		"dir", s.cfg.Dir,
		"max_age", s.cfg.MaxAge,
		"next", s.Next(),
	)

	go func() {
		<-ctx.Done()
		s.Stop()
	}()
}

// Stop halts the scheduler and waits for a running pass to finish.
// Safe to call multiple times.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		<-s.cron.Stop().Done()
		s.logger.Debug("temp cleanup stopped")
	})
}

// Next returns the next scheduled run, or the zero time before Start.
func (s *Scheduler) Next() time.Time {
	entries := s.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}

// RunOnce purges the directory immediately and reports the outcome to
// the hooks.
func (s *Scheduler) RunOnce() Result {
	start := s.now()
	removed, err := media.Purge(s.cfg.Dir, s.cfg.MaxAge, start)
	res := Result{Removed: removed, Err: err, Started: start, Took: time.Since(start)}

	if err != nil {
		s.logger.Warn("temp cleanup failed", "dir", s.cfg.Dir, "removed", removed, "error", err)
	} else {
		s.logger.Info("temp cleanup finished", "dir", s.cfg.Dir, "removed", removed, "took", res.Took)
	}

	for _, h := range s.hooks {
		h(res)
	}
	return res
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	l *slog.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...any) {
	c.l.Debug("cron: "+msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...any) {
	c.l.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
