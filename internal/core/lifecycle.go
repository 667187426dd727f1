package core

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// Store abstracts the persistence layer used by the lifecycle manager and
// facade. Any backend satisfying this contract works; an in-memory map is
// sufficient for tests.
type Store interface {
	// Task operations
	GetTask(ctx context.Context, id string) (*RecurringTask, error)
	ListTasks(ctx context.Context, state *LifecycleState) ([]*RecurringTask, error)
	InsertTask(ctx context.Context, task *RecurringTask) error
	UpdateTask(ctx context.Context, task *RecurringTask) error
	DeleteTask(ctx context.Context, id string) error

	// Instance operations
	InsertInstance(ctx context.Context, inst *Instance) error
	GetInstance(ctx context.Context, id string) (*Instance, error)
	ListInstances(ctx context.Context, taskID string) ([]*Instance, error)
	UpdateInstance(ctx context.Context, inst *Instance) error
	DeleteInstances(ctx context.Context, ids []string) error
}

// Manager owns the instance lifecycle of recurring tasks: creation,
// generation, completion, pause/resume, regeneration and statistics.
// Mutations against the same task are serialized; different tasks proceed
// in parallel.
type Manager struct {
	store  Store
	clock  Clock
	logger *slog.Logger

	locks sync.Map // task ID -> *sync.Mutex
}

// NewManager constructs a lifecycle manager with the given dependencies.
func NewManager(store Store, clock Clock, logger *slog.Logger) *Manager {
	if clock == nil {
		clock = SystemClock()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{store: store, clock: clock, logger: logger}
}

func (m *Manager) lock(taskID string) func() {
	v, _ := m.locks.LoadOrStore(taskID, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// CreateRecurringTask validates and stores a new recurring task. The task
// starts Active with zero instances; generation is lazy. A failed
// validation returns a ValidationError carrying the full error list and no
// partial state is written.
func (m *Manager) CreateRecurringTask(ctx context.Context, task *RecurringTask) (*RecurringTask, error) {
	var cfg *RecurrenceConfig
	if task != nil {
		cfg = &task.Config
	}
	res := ValidateFull(task, cfg, m.clock.Now())
	if !res.Valid {
		return nil, &ValidationError{Errors: res.Errors, Warnings: res.Warnings}
	}

	if task.ID == "" {
		task.ID = NewID()
	}
	if task.Priority == "" {
		task.Priority = PriorityMedium
	}
	if task.Config.Interval == 0 {
		task.Config.Interval = 1
	}
	if task.Config.EndCondition == "" {
		task.Config.EndCondition = EndNever
	}
	task.State = StateActive
	task.InstanceSeq = 0

	if err := m.store.InsertTask(ctx, task); err != nil {
		return nil, err
	}
	if len(res.Warnings) > 0 {
		m.logger.Warn("recurring task created with warnings", "task_id", task.ID, "warnings", res.Warnings)
	}
	m.logger.Info("recurring task created", "task_id", task.ID, "pattern", task.Config.Pattern)
	return task, nil
}

// GetTask loads a recurring task by ID.
func (m *Manager) GetTask(ctx context.Context, taskID string) (*RecurringTask, error) {
	return m.store.GetTask(ctx, taskID)
}

// ListTasks lists recurring tasks, optionally filtered by lifecycle state.
func (m *Manager) ListTasks(ctx context.Context, state *LifecycleState) ([]*RecurringTask, error) {
	return m.store.ListTasks(ctx, state)
}

// ListInstances lists all instances of a task in ascending date order.
func (m *Manager) ListInstances(ctx context.Context, taskID string) ([]*Instance, error) {
	if _, err := m.store.GetTask(ctx, taskID); err != nil {
		return nil, err
	}
	return m.store.ListInstances(ctx, taskID)
}

// DeleteTask removes a task and all of its instances.
func (m *Manager) DeleteTask(ctx context.Context, taskID string) error {
	unlock := m.lock(taskID)
	defer unlock()
	return m.store.DeleteTask(ctx, taskID)
}

// GenerateNextInstance appends the single next occurrence of the task and
// returns it. It returns nil without error when the task is Paused or
// Exhausted; hitting the end condition marks the task Exhausted. Repeated
// calls always advance forward and never produce a duplicate date.
func (m *Manager) GenerateNextInstance(ctx context.Context, taskID string) (*Instance, error) {
	unlock := m.lock(taskID)
	defer unlock()

	task, err := m.store.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if task.State != StateActive {
		return nil, nil
	}
	instances, err := m.store.ListInstances(ctx, taskID)
	if err != nil {
		return nil, err
	}
	date, ok, err := nextOccurrence(task, instances)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, m.exhaust(ctx, task)
	}

	task.InstanceSeq++
	inst := &Instance{
		ID:        InstanceID(task.ID, task.InstanceSeq),
		TaskID:    task.ID,
		Date:      date,
		Status:    InstanceStatusPending,
		Generated: task.InstanceSeq > 1,
	}
	if err := m.store.InsertInstance(ctx, inst); err != nil {
		return nil, err
	}
	if err := m.store.UpdateTask(ctx, task); err != nil {
		return nil, err
	}
	return inst, nil
}

// UpdateConfig replaces the task's recurrence config. Existing instances
// are untouched; callers usually follow up with RegenerateAllInstances.
func (m *Manager) UpdateConfig(ctx context.Context, taskID string, cfg *RecurrenceConfig) error {
	if cfg == nil {
		return fmt.Errorf("%w: recurrence config is required", ErrInvalidConfig)
	}
	if res := ValidatePatternRules(cfg); !res.Valid {
		return &ValidationError{Errors: res.Errors, Warnings: res.Warnings}
	}
	unlock := m.lock(taskID)
	defer unlock()

	task, err := m.store.GetTask(ctx, taskID)
	if err != nil {
		return err
	}
	if cfg.Interval == 0 {
		cfg.Interval = 1
	}
	if cfg.EndCondition == "" {
		cfg.EndCondition = EndNever
	}
	if cfg.StartDate.IsZero() {
		cfg.StartDate = task.Config.StartDate
	}
	task.Config = *cfg
	if err := m.store.UpdateTask(ctx, task); err != nil {
		return err
	}
	m.logger.Info("recurrence config updated", "task_id", taskID, "pattern", cfg.Pattern)
	return nil
}

// RegenerateAllInstances discards pending future instances and recomputes
// the schedule from the current date forward, up to upTo new instances.
// Completed and historical instances are preserved unchanged. Used after
// the underlying config changes.
func (m *Manager) RegenerateAllInstances(ctx context.Context, taskID string, upTo int) ([]*Instance, error) {
	if upTo <= 0 {
		return nil, fmt.Errorf("%w: regeneration requires a positive instance cap", ErrInvalidConfig)
	}
	unlock := m.lock(taskID)
	defer unlock()

	task, err := m.store.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if res := ValidatePatternRules(&task.Config); !res.Valid {
		return nil, &ValidationError{Errors: res.Errors, Warnings: res.Warnings}
	}
	instances, err := m.store.ListInstances(ctx, taskID)
	if err != nil {
		return nil, err
	}

	now := m.clock.Now()
	kept := make([]*Instance, 0, len(instances))
	var discard []string
	keptDates := make(map[int64]struct{})
	for _, inst := range instances {
		if inst.Completed || inst.Date.Before(now) {
			kept = append(kept, inst)
			keptDates[inst.Date.UnixNano()] = struct{}{}
			continue
		}
		discard = append(discard, inst.ID)
	}
	if len(discard) > 0 {
		if err := m.store.DeleteInstances(ctx, discard); err != nil {
			return nil, err
		}
	}
	if task.State != StateActive {
		sortInstances(kept)
		return kept, nil
	}

	cfg := &task.Config
	// Occurrences before now were never materialized but still occupy
	// positions in the sequence. Widen the generation window until upTo
	// usable dates are in hand or the sequence runs out.
	budget := len(kept) + upTo
	var occs []time.Time
	for {
		occs, err = GenerateOccurrences(cfg.StartDate, cfg, budget)
		if err != nil {
			return nil, err
		}
		usable := 0
		for _, d := range occs {
			if d.Before(now) {
				continue
			}
			if _, dup := keptDates[d.UnixNano()]; dup {
				continue
			}
			usable++
		}
		if usable >= upTo || len(occs) < budget {
			break
		}
		budget *= 2
	}

	out := append([]*Instance{}, kept...)
	created := 0
	for _, d := range occs {
		if created >= upTo {
			break
		}
		if d.Before(now) {
			continue
		}
		if _, dup := keptDates[d.UnixNano()]; dup {
			continue
		}
		task.InstanceSeq++
		inst := &Instance{
			ID:        InstanceID(task.ID, task.InstanceSeq),
			TaskID:    task.ID,
			Date:      d,
			Status:    InstanceStatusPending,
			Generated: task.InstanceSeq > 1,
		}
		if err := m.store.InsertInstance(ctx, inst); err != nil {
			return nil, err
		}
		out = append(out, inst)
		created++
	}
	if created == 0 && cfg.HasEndCondition() && len(occs) < budget {
		if err := m.exhaust(ctx, task); err != nil {
			return nil, err
		}
	} else if err := m.store.UpdateTask(ctx, task); err != nil {
		return nil, err
	}
	sortInstances(out)
	return out, nil
}

// CompleteInstance marks the instance completed. Completion is idempotent
// and has no side effect on sibling instances; it may mark the parent task
// Exhausted when the end condition is now satisfied.
func (m *Manager) CompleteInstance(ctx context.Context, instanceID string) (*Instance, error) {
	inst, err := m.store.GetInstance(ctx, instanceID)
	if err != nil {
		return nil, err
	}
	unlock := m.lock(inst.TaskID)
	defer unlock()

	// Reload under the task lock.
	inst, err = m.store.GetInstance(ctx, instanceID)
	if err != nil {
		return nil, err
	}
	if !inst.Completed {
		now := m.clock.Now()
		inst.Completed = true
		inst.Status = InstanceStatusCompleted
		inst.CompletedAt = &now
		if err := m.store.UpdateInstance(ctx, inst); err != nil {
			return nil, err
		}
	}

	task, err := m.store.GetTask(ctx, inst.TaskID)
	if err != nil {
		return inst, nil
	}
	if task.State == StateActive {
		instances, err := m.store.ListInstances(ctx, task.ID)
		if err == nil {
			if _, ok, err := nextOccurrence(task, instances); err == nil && !ok {
				if err := m.exhaust(ctx, task); err != nil {
					m.logger.Error("mark task exhausted", "task_id", task.ID, "err", err)
				}
			}
		}
	}
	return inst, nil
}

// Pause stops instance generation for the task. Existing instances are
// retained. Pausing an Exhausted task is a no-op.
func (m *Manager) Pause(ctx context.Context, taskID string) (*RecurringTask, error) {
	return m.setState(ctx, taskID, StateActive, StatePaused)
}

// Resume re-enables instance generation for a paused task. An Exhausted
// task is never resurrected.
func (m *Manager) Resume(ctx context.Context, taskID string) (*RecurringTask, error) {
	return m.setState(ctx, taskID, StatePaused, StateActive)
}

func (m *Manager) setState(ctx context.Context, taskID string, from, to LifecycleState) (*RecurringTask, error) {
	unlock := m.lock(taskID)
	defer unlock()

	task, err := m.store.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if task.State == from {
		task.State = to
		if err := m.store.UpdateTask(ctx, task); err != nil {
			return nil, err
		}
		m.logger.Info("recurring task state changed", "task_id", taskID, "state", to)
	}
	return task, nil
}

// Stats derives aggregate statistics from the task's stored instance set
// plus one lookahead for the next occurrence date.
func (m *Manager) Stats(ctx context.Context, taskID string) (*TaskStats, error) {
	task, err := m.store.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	instances, err := m.store.ListInstances(ctx, taskID)
	if err != nil {
		return nil, err
	}
	stats := &TaskStats{TotalInstances: len(instances)}
	for _, inst := range instances {
		if inst.Completed {
			stats.CompletedInstances++
		} else {
			stats.PendingInstances++
		}
	}
	if task.State == StateActive {
		if d, ok, err := nextOccurrence(task, instances); err == nil && ok {
			stats.NextInstanceDate = &d
		}
	}
	return stats, nil
}

// exhaust transitions the task into its terminal state. Idempotent.
func (m *Manager) exhaust(ctx context.Context, task *RecurringTask) error {
	if task.State == StateExhausted {
		return nil
	}
	task.State = StateExhausted
	if err := m.store.UpdateTask(ctx, task); err != nil {
		return err
	}
	m.logger.Info("recurring task exhausted", "task_id", task.ID)
	return nil
}

// nextOccurrence computes the next occurrence strictly after the latest
// known instance, anchored at the config's start date so interval phase
// never drifts. ok is false once the end condition leaves nothing ahead.
func nextOccurrence(task *RecurringTask, instances []*Instance) (time.Time, bool, error) {
	cfg := &task.Config
	n := len(instances)
	if cfg.MaxOccurrences != nil && n >= *cfg.MaxOccurrences {
		return time.Time{}, false, nil
	}
	var last time.Time
	for _, inst := range instances {
		if inst.Date.After(last) {
			last = inst.Date
		}
	}
	occs, err := GenerateOccurrences(cfg.StartDate, cfg, n+1)
	if err != nil {
		return time.Time{}, false, err
	}
	for _, d := range occs {
		if last.IsZero() || d.After(last) {
			return d, true, nil
		}
	}
	return time.Time{}, false, nil
}

func sortInstances(instances []*Instance) {
	sort.Slice(instances, func(i, j int) bool {
		return instances[i].Date.Before(instances[j].Date)
	})
}
