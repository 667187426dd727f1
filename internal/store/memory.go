package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"taskcycle/internal/core"
)

// Memory is a map-backed core.Store for tests and embedded library use.
type Memory struct {
	mu        sync.RWMutex
	tasks     map[string]core.RecurringTask
	instances map[string]core.Instance
}

// NewMemory constructs an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		tasks:     make(map[string]core.RecurringTask),
		instances: make(map[string]core.Instance),
	}
}

func (m *Memory) InsertTask(ctx context.Context, task *core.RecurringTask) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	task.CreatedAt = now
	task.UpdatedAt = now
	m.tasks[task.ID] = cloneTask(task)
	return nil
}

func (m *Memory) UpdateTask(ctx context.Context, task *core.RecurringTask) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tasks[task.ID]; !ok {
		return fmt.Errorf("task %s: %w", task.ID, core.ErrNotFound)
	}
	task.UpdatedAt = time.Now().UTC()
	m.tasks[task.ID] = cloneTask(task)
	return nil
}

func (m *Memory) GetTask(ctx context.Context, id string) (*core.RecurringTask, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	task, ok := m.tasks[id]
	if !ok {
		return nil, fmt.Errorf("task %s: %w", id, core.ErrNotFound)
	}
	out := task
	return &out, nil
}

func (m *Memory) ListTasks(ctx context.Context, state *core.LifecycleState) ([]*core.RecurringTask, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var tasks []*core.RecurringTask
	for id := range m.tasks {
		task := m.tasks[id]
		if state != nil && task.State != *state {
			continue
		}
		out := task
		tasks = append(tasks, &out)
	}
	sort.Slice(tasks, func(i, j int) bool {
		return tasks[i].CreatedAt.After(tasks[j].CreatedAt)
	})
	return tasks, nil
}

func (m *Memory) DeleteTask(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tasks[id]; !ok {
		return fmt.Errorf("task %s: %w", id, core.ErrNotFound)
	}
	delete(m.tasks, id)
	for instID, inst := range m.instances {
		if inst.TaskID == id {
			delete(m.instances, instID)
		}
	}
	return nil
}

func (m *Memory) InsertInstance(ctx context.Context, inst *core.Instance) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	inst.CreatedAt = time.Now().UTC()
	m.instances[inst.ID] = *inst
	return nil
}

func (m *Memory) GetInstance(ctx context.Context, id string) (*core.Instance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	inst, ok := m.instances[id]
	if !ok {
		return nil, fmt.Errorf("instance %s: %w", id, core.ErrNotFound)
	}
	out := inst
	return &out, nil
}

func (m *Memory) ListInstances(ctx context.Context, taskID string) ([]*core.Instance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var instances []*core.Instance
	for id := range m.instances {
		inst := m.instances[id]
		if inst.TaskID != taskID {
			continue
		}
		out := inst
		instances = append(instances, &out)
	}
	sort.Slice(instances, func(i, j int) bool {
		return instances[i].Date.Before(instances[j].Date)
	})
	return instances, nil
}

func (m *Memory) UpdateInstance(ctx context.Context, inst *core.Instance) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.instances[inst.ID]; !ok {
		return fmt.Errorf("instance %s: %w", inst.ID, core.ErrNotFound)
	}
	m.instances[inst.ID] = *inst
	return nil
}

func (m *Memory) DeleteInstances(ctx context.Context, ids []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		delete(m.instances, id)
	}
	return nil
}

func cloneTask(task *core.RecurringTask) core.RecurringTask {
	out := *task
	out.Config.DaysOfWeek = append([]int(nil), task.Config.DaysOfWeek...)
	out.Config.MonthDays = append([]int(nil), task.Config.MonthDays...)
	return out
}
