package core

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
)

// Notifier pushes out-of-band notifications about lifecycle events.
type Notifier interface {
	Send(ctx context.Context, title, body string) error
}

// maxMaterializedPerSweep bounds how many overdue occurrences a single
// sweep materializes for one task, so a long-idle daemon catches up over
// several sweeps instead of generating unbounded work at once.
const maxMaterializedPerSweep = 25

// Sweeper periodically materializes due instances for active recurring
// tasks and notifies when a task reaches its end condition. Overlapping
// sweeps are skipped; per-task serialization is the manager's job.
type Sweeper struct {
	manager  *Manager
	store    Store
	clock    Clock
	notifier Notifier
	logger   *slog.Logger

	cron     *cron.Cron
	sweeping atomic.Bool

	ctx context.Context
}

// NewSweeper constructs a sweeper. notifier may be nil.
func NewSweeper(manager *Manager, store Store, clock Clock, notifier Notifier, logger *slog.Logger, location *time.Location) *Sweeper {
	if location == nil {
		location = time.Local
	}
	if clock == nil {
		clock = SystemClock()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{
		manager:  manager,
		store:    store,
		clock:    clock,
		notifier: notifier,
		logger:   logger,
		cron:     cron.New(cron.WithLocation(location)),
	}
}

// Start begins sweeping on the given cadence. ctx is used for background
// store operations.
func (s *Sweeper) Start(ctx context.Context, every time.Duration) {
	s.ctx = ctx
	s.cron.Schedule(cron.Every(every), cron.FuncJob(func() {
		s.Sweep(s.ctxOrBackground())
	}))
	s.cron.Start()
}

// Stop stops the sweep loop and returns a context that is done once any
// in-flight sweep dispatch has finished.
func (s *Sweeper) Stop() context.Context {
	return s.cron.Stop()
}

// Sweep runs one pass over all active tasks. Safe to call directly; a pass
// already in progress makes the call a no-op.
func (s *Sweeper) Sweep(ctx context.Context) {
	if !s.sweeping.CompareAndSwap(false, true) {
		return
	}
	defer s.sweeping.Store(false)

	active := StateActive
	tasks, err := s.store.ListTasks(ctx, &active)
	if err != nil {
		s.logger.Error("list tasks for sweep", "err", err)
		return
	}
	now := s.clock.Now()
	for _, task := range tasks {
		s.sweepTask(ctx, task, now)
	}
}

func (s *Sweeper) sweepTask(ctx context.Context, task *RecurringTask, now time.Time) {
	for i := 0; i < maxMaterializedPerSweep; i++ {
		stats, err := s.manager.Stats(ctx, task.ID)
		if err != nil {
			s.logger.Error("task stats for sweep", "task_id", task.ID, "err", err)
			return
		}
		if stats.NextInstanceDate == nil {
			// End condition reached; one generate call marks it exhausted.
			if _, err := s.manager.GenerateNextInstance(ctx, task.ID); err != nil {
				s.logger.Error("finalize exhausted task", "task_id", task.ID, "err", err)
			}
			break
		}
		if stats.NextInstanceDate.After(now) {
			break
		}
		inst, err := s.manager.GenerateNextInstance(ctx, task.ID)
		if err != nil {
			s.logger.Error("materialize instance", "task_id", task.ID, "err", err)
			return
		}
		if inst == nil {
			break
		}
		s.logger.Debug("instance materialized", "task_id", task.ID, "instance_id", inst.ID, "date", inst.Date)
	}

	cur, err := s.store.GetTask(ctx, task.ID)
	if err != nil {
		return
	}
	if cur.State == StateExhausted && s.notifier != nil {
		body := fmt.Sprintf("%q has reached its end condition (%s)", cur.Title, FormatPattern(&cur.Config))
		if err := s.notifier.Send(ctx, "Recurring task finished", body); err != nil {
			s.logger.Warn("send exhaustion notification", "task_id", cur.ID, "err", err)
		}
	}
}

func (s *Sweeper) ctxOrBackground() context.Context {
	if s.ctx != nil {
		return s.ctx
	}
	return context.Background()
}
