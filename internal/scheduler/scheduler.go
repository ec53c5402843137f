// Package scheduler runs periodic database maintenance for the studio:
// revision pruning and VACUUM on a cron schedule.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/rendis/mabelstudio/internal/streaming"
	"github.com/rendis/mabelstudio/pkg/schema"
)

// Maintainer is the slice of store.Store the scheduler needs.
type Maintainer interface {
	PruneRevisions(ctx context.Context, keep int) (int64, error)
	Vacuum(ctx context.Context) error
}

// Config controls the maintenance schedule.
type Config struct {
	// Cron is a five-field cron expression. Empty disables the loop.
	Cron string
	// Retention is the number of revisions kept per project. Zero keeps all.
	Retention int
	// PollInterval is how often the loop checks whether a run is due.
	PollInterval time.Duration
}

// Result describes one maintenance run.
type Result struct {
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
	Pruned    int64         `json:"pruned"`
	Vacuumed  bool          `json:"vacuumed"`
}

// Scheduler runs maintenance when its cron schedule comes due.
type Scheduler struct {
	store    Maintainer
	hub      streaming.Hub
	cfg      Config
	schedule cron.Schedule
	logger   *slog.Logger
	now      func() time.Time

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	nextRun time.Time
	last    *Result

	runMu sync.Mutex
}

// NewScheduler validates the cron expression and returns a stopped Scheduler.
// hub may be nil.
func NewScheduler(m Maintainer, cfg Config, hub streaming.Hub, logger *slog.Logger) (*Scheduler, error) {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Minute
	}
	s := &Scheduler{
		store:  m,
		hub:    hub,
		cfg:    cfg,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
	if cfg.Cron != "" {
		sched, err := ParseCron(cfg.Cron)
		if err != nil {
			return nil, err
		}
		s.schedule = sched
	}
	return s, nil
}

// ParseCron parses a standard five-field cron expression.
func ParseCron(expr string) (cron.Schedule, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	sched, err := parser.Parse(expr)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "invalid cron expression %q", expr).WithCause(err)
	}
	return sched, nil
}

// Start launches the background loop. It is a no-op when no cron expression
// is configured.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.schedule == nil {
		s.logger.Info("maintenance disabled")
		return nil
	}

	s.mu.Lock()
	if s.done != nil {
		s.mu.Unlock()
		return fmt.Errorf("scheduler already started")
	}
	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.nextRun = s.schedule.Next(s.now())
	next := s.nextRun
	s.mu.Unlock()

	go s.loop(loopCtx)
	s.logger.Info("maintenance scheduled", slog.String("cron", s.cfg.Cron), slog.Time("next_run", next))
	return nil
}

func (s *Scheduler) loop(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	now := s.now()
	s.mu.Lock()
	due := !s.nextRun.After(now)
	if due {
		s.nextRun = s.schedule.Next(now)
	}
	s.mu.Unlock()

	if !due {
		return
	}
	if _, err := s.RunOnce(ctx); err != nil {
		s.logger.Error("maintenance failed", slog.String("error", err.Error()))
	}
}

// RunOnce prunes revisions and vacuums the database immediately. Concurrent
// calls do not overlap: a second caller waits for the first to finish.
func (s *Scheduler) RunOnce(ctx context.Context) (*Result, error) {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	res := &Result{StartedAt: s.now()}
	pruned, err := s.store.PruneRevisions(ctx, s.cfg.Retention)
	if err != nil {
		return nil, fmt.Errorf("prune revisions: %w", err)
	}
	res.Pruned = pruned

	if err := s.store.Vacuum(ctx); err != nil {
		return nil, fmt.Errorf("vacuum: %w", err)
	}
	res.Vacuumed = true
	res.Duration = s.now().Sub(res.StartedAt)

	s.mu.Lock()
	s.last = res
	s.mu.Unlock()

	s.logger.Info("maintenance finished",
		slog.Int64("pruned", res.Pruned),
		slog.Duration("duration", res.Duration),
	)
	if s.hub != nil {
		_ = s.hub.Publish(ctx, streaming.Event{Type: schema.EventRevisionsPruned, Payload: res})
	}
	return res, nil
}

// NextRun returns the next scheduled run, or the zero time when stopped.
func (s *Scheduler) NextRun() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextRun
}

// LastResult returns the most recent run, or nil.
func (s *Scheduler) LastResult() *Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// Stop shuts down the loop and waits for it to exit.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.nextRun = time.Time{}
	s.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	<-done
	s.logger.Info("maintenance stopped")
	return nil
}
