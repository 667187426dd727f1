package core

import (
	"context"
	"log/slog"
	"math"
)

// Facade is the single surface the rest of the application talks to. It
// wraps the lifecycle manager for per-task operations and is the only
// component that fans out across all recurring tasks at once.
type Facade struct {
	manager *Manager
	store   Store
	clock   Clock
	logger  *slog.Logger
}

// NewFacade constructs the integration facade.
func NewFacade(manager *Manager, store Store, clock Clock, logger *slog.Logger) *Facade {
	if clock == nil {
		clock = SystemClock()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Facade{manager: manager, store: store, clock: clock, logger: logger}
}

// Manager exposes the per-task lifecycle operations.
func (f *Facade) Manager() *Manager { return f.manager }

// Instance loads a single instance by ID.
func (f *Facade) Instance(ctx context.Context, instanceID string) (*Instance, error) {
	return f.store.GetInstance(ctx, instanceID)
}

// SystemStatistics aggregates counts across every recurring task for
// dashboard consumption.
func (f *Facade) SystemStatistics(ctx context.Context) (*SystemStatistics, error) {
	tasks, err := f.store.ListTasks(ctx, nil)
	if err != nil {
		return nil, err
	}
	stats := &SystemStatistics{
		TotalTasks:     len(tasks),
		TasksByPattern: make(map[Pattern]int),
		TasksByState:   make(map[LifecycleState]int),
	}
	for _, task := range tasks {
		stats.TasksByPattern[task.Config.Pattern]++
		stats.TasksByState[task.State]++

		instances, err := f.store.ListInstances(ctx, task.ID)
		if err != nil {
			return nil, err
		}
		stats.TotalInstances += len(instances)
		for _, inst := range instances {
			if inst.Completed {
				stats.CompletedCount++
			}
		}
	}
	if stats.TotalInstances > 0 {
		stats.CompletionRate = float64(stats.CompletedCount) / float64(stats.TotalInstances)
	}
	return stats, nil
}

// HealthReport scores the system 0-100 from the ratio of completed
// instances to currently overdue ones. An empty system scores 100; every
// additional overdue instance lowers the score.
func (f *Facade) HealthReport(ctx context.Context) (*HealthReport, error) {
	tasks, err := f.store.ListTasks(ctx, nil)
	if err != nil {
		return nil, err
	}
	now := f.clock.Now()
	report := &HealthReport{GeneratedAt: now}
	for _, task := range tasks {
		switch task.State {
		case StateActive:
			report.ActiveTasks++
		case StatePaused:
			report.PausedTasks++
		case StateExhausted:
			report.ExhaustedTasks++
		}
		instances, err := f.store.ListInstances(ctx, task.ID)
		if err != nil {
			return nil, err
		}
		for _, inst := range instances {
			if inst.Completed {
				report.CompletedOnTime++
			} else if inst.Date.Before(now) {
				report.OverdueInstances++
			}
		}
	}
	total := report.CompletedOnTime + report.OverdueInstances
	if total == 0 {
		report.Score = 100
	} else {
		report.Score = int(math.Round(100 * float64(report.CompletedOnTime) / float64(total)))
	}
	return report, nil
}
