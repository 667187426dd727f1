package core_test

import (
	"context"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"taskcycle/internal/core"
	"taskcycle/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func newManager(mem *store.Memory, now time.Time) *core.Manager {
	return core.NewManager(mem, core.FixedClock{T: now}, slog.Default())
}

func mustCreate(t *testing.T, m *core.Manager, task *core.RecurringTask) *core.RecurringTask {
	t.Helper()
	created, err := m.CreateRecurringTask(context.Background(), task)
	require.NoError(t, err)
	return created
}

func dailyTask(start time.Time) *core.RecurringTask {
	return &core.RecurringTask{
		Title: "Water plants",
		Config: core.RecurrenceConfig{
			Pattern:   core.PatternDaily,
			StartDate: start,
		},
	}
}

func TestCreateRecurringTaskAppliesDefaults(t *testing.T) {
	m := newManager(store.NewMemory(), day(2026, 6, 1))

	created := mustCreate(t, m, dailyTask(day(2026, 6, 2)))

	assert.NotEmpty(t, created.ID)
	assert.Equal(t, core.PriorityMedium, created.Priority)
	assert.Equal(t, core.StateActive, created.State)
	assert.Equal(t, 1, created.Config.Interval)
	assert.Equal(t, core.EndNever, created.Config.EndCondition)
	assert.Zero(t, created.InstanceSeq)
}

func TestCreateRecurringTaskValidationFailure(t *testing.T) {
	mem := store.NewMemory()
	m := newManager(mem, day(2026, 6, 1))

	task := &core.RecurringTask{
		Config: core.RecurrenceConfig{StartDate: day(2026, 5, 1)},
	}
	_, err := m.CreateRecurringTask(context.Background(), task)

	var verr *core.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Errors, "Task title is required")
	assert.Contains(t, verr.Errors, "Recurring pattern is required")
	assert.Contains(t, verr.Errors, "Start date cannot be in the past")

	// Nothing was persisted.
	tasks, err := mem.ListTasks(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, tasks)
}

func TestGenerateNextInstanceAdvancesSequence(t *testing.T) {
	m := newManager(store.NewMemory(), day(2026, 6, 1))
	task := mustCreate(t, m, dailyTask(day(2026, 6, 2)))

	ctx := context.Background()
	var dates []time.Time
	for i := 0; i < 3; i++ {
		inst, err := m.GenerateNextInstance(ctx, task.ID)
		require.NoError(t, err)
		require.NotNil(t, inst)
		dates = append(dates, inst.Date)
		assert.Equal(t, fmt.Sprintf("%s-%d", task.ID, i+1), inst.ID)
		assert.Equal(t, i > 0, inst.Generated)
	}
	assert.Equal(t, []time.Time{day(2026, 6, 2), day(2026, 6, 3), day(2026, 6, 4)}, dates)
}

func TestGenerateNextInstanceExhaustsAtMaxOccurrences(t *testing.T) {
	mem := store.NewMemory()
	m := newManager(mem, day(2026, 6, 1))

	max := 3
	task := dailyTask(day(2026, 6, 2))
	task.Config.EndCondition = core.EndAfterOccurrences
	task.Config.MaxOccurrences = &max
	created := mustCreate(t, m, task)

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		inst, err := m.GenerateNextInstance(ctx, created.ID)
		require.NoError(t, err)
		require.NotNil(t, inst)
	}

	// The fourth call generates nothing and flips the task to exhausted.
	inst, err := m.GenerateNextInstance(ctx, created.ID)
	require.NoError(t, err)
	assert.Nil(t, inst)

	got, err := m.GetTask(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, core.StateExhausted, got.State)

	instances, err := m.ListInstances(ctx, created.ID)
	require.NoError(t, err)
	assert.Len(t, instances, 3)
}

func TestExhaustedIsTerminal(t *testing.T) {
	m := newManager(store.NewMemory(), day(2026, 6, 1))

	max := 1
	task := dailyTask(day(2026, 6, 2))
	task.Config.EndCondition = core.EndAfterOccurrences
	task.Config.MaxOccurrences = &max
	created := mustCreate(t, m, task)

	ctx := context.Background()
	_, err := m.GenerateNextInstance(ctx, created.ID)
	require.NoError(t, err)
	_, err = m.GenerateNextInstance(ctx, created.ID)
	require.NoError(t, err)

	got, err := m.Resume(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, core.StateExhausted, got.State)

	inst, err := m.GenerateNextInstance(ctx, created.ID)
	require.NoError(t, err)
	assert.Nil(t, inst)
}

func TestPauseIsNonDestructive(t *testing.T) {
	m := newManager(store.NewMemory(), day(2026, 6, 1))
	created := mustCreate(t, m, dailyTask(day(2026, 6, 2)))

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := m.GenerateNextInstance(ctx, created.ID)
		require.NoError(t, err)
	}

	paused, err := m.Pause(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, core.StatePaused, paused.State)

	inst, err := m.GenerateNextInstance(ctx, created.ID)
	require.NoError(t, err)
	assert.Nil(t, inst)

	instances, err := m.ListInstances(ctx, created.ID)
	require.NoError(t, err)
	assert.Len(t, instances, 3)

	// Resuming picks up exactly where the sequence left off.
	_, err = m.Resume(ctx, created.ID)
	require.NoError(t, err)
	inst, err = m.GenerateNextInstance(ctx, created.ID)
	require.NoError(t, err)
	require.NotNil(t, inst)
	assert.Equal(t, day(2026, 6, 5), inst.Date)
}

func TestCompleteInstanceIsIdempotent(t *testing.T) {
	m := newManager(store.NewMemory(), day(2026, 6, 1))
	created := mustCreate(t, m, dailyTask(day(2026, 6, 2)))

	ctx := context.Background()
	inst, err := m.GenerateNextInstance(ctx, created.ID)
	require.NoError(t, err)

	first, err := m.CompleteInstance(ctx, inst.ID)
	require.NoError(t, err)
	assert.True(t, first.Completed)
	assert.Equal(t, core.InstanceStatusCompleted, first.Status)
	require.NotNil(t, first.CompletedAt)

	second, err := m.CompleteInstance(ctx, inst.ID)
	require.NoError(t, err)
	assert.True(t, second.Completed)
	assert.Equal(t, first.CompletedAt, second.CompletedAt)
}

func TestCompleteInstanceMarksTaskExhausted(t *testing.T) {
	m := newManager(store.NewMemory(), day(2026, 6, 1))

	max := 1
	task := dailyTask(day(2026, 6, 2))
	task.Config.EndCondition = core.EndAfterOccurrences
	task.Config.MaxOccurrences = &max
	created := mustCreate(t, m, task)

	ctx := context.Background()
	inst, err := m.GenerateNextInstance(ctx, created.ID)
	require.NoError(t, err)

	_, err = m.CompleteInstance(ctx, inst.ID)
	require.NoError(t, err)

	got, err := m.GetTask(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, core.StateExhausted, got.State)
}

func TestRegenerateAllInstancesPreservesHistory(t *testing.T) {
	mem := store.NewMemory()
	m := newManager(mem, day(2026, 6, 8))
	created := mustCreate(t, m, dailyTask(day(2026, 6, 8)))

	ctx := context.Background()
	var firstIDs []string
	for i := 0; i < 3; i++ {
		inst, err := m.GenerateNextInstance(ctx, created.ID)
		require.NoError(t, err)
		firstIDs = append(firstIDs, inst.ID)
	}
	_, err := m.CompleteInstance(ctx, firstIDs[0])
	require.NoError(t, err)

	// A day and a half later: Jun 8 is completed, Jun 9 is history,
	// Jun 10 is still pending in the future.
	later := core.NewManager(mem, core.FixedClock{T: time.Date(2026, 6, 9, 12, 0, 0, 0, time.UTC)}, slog.Default())
	out, err := later.RegenerateAllInstances(ctx, created.ID, 3)
	require.NoError(t, err)

	require.Len(t, out, 5)
	assert.Equal(t, firstIDs[0], out[0].ID)
	assert.True(t, out[0].Completed)
	assert.Equal(t, firstIDs[1], out[1].ID)
	wantDates := []time.Time{
		day(2026, 6, 8), day(2026, 6, 9), day(2026, 6, 10), day(2026, 6, 11), day(2026, 6, 12),
	}
	for i, inst := range out {
		assert.Equal(t, wantDates[i], inst.Date)
	}
	// The discarded pending instance's ID is never reused.
	for _, inst := range out[2:] {
		assert.NotEqual(t, firstIDs[2], inst.ID)
	}
}

func TestRegenerateAllInstancesAfterLongIdle(t *testing.T) {
	mem := store.NewMemory()
	m := newManager(mem, day(2026, 1, 1))
	created := mustCreate(t, m, dailyTask(day(2026, 1, 1)))

	// Months pass without a single instance being materialized. The
	// elapsed occurrences must not eat the regeneration cap.
	later := core.NewManager(mem, core.FixedClock{T: day(2026, 6, 1)}, slog.Default())
	out, err := later.RegenerateAllInstances(context.Background(), created.ID, 3)
	require.NoError(t, err)

	require.Len(t, out, 3)
	assert.Equal(t, day(2026, 6, 1), out[0].Date)
	assert.Equal(t, day(2026, 6, 2), out[1].Date)
	assert.Equal(t, day(2026, 6, 3), out[2].Date)
}

func TestRegenerateAllInstancesKeepsIntervalPhase(t *testing.T) {
	mem := store.NewMemory()
	m := newManager(mem, day(2026, 1, 1))
	task := dailyTask(day(2026, 1, 1))
	task.Config.Interval = 3
	created := mustCreate(t, m, task)

	later := core.NewManager(mem, core.FixedClock{T: day(2026, 6, 1)}, slog.Default())
	out, err := later.RegenerateAllInstances(context.Background(), created.ID, 2)
	require.NoError(t, err)

	// The 3-day cadence counts from the start date, not from now:
	// Jan 1 + 153 days lands on Jun 3.
	require.Len(t, out, 2)
	assert.Equal(t, day(2026, 6, 3), out[0].Date)
	assert.Equal(t, day(2026, 6, 6), out[1].Date)
}

func TestRegenerateAllInstancesExhaustsStaleBoundedTask(t *testing.T) {
	mem := store.NewMemory()
	m := newManager(mem, day(2026, 1, 1))

	max := 5
	task := dailyTask(day(2026, 1, 1))
	task.Config.EndCondition = core.EndAfterOccurrences
	task.Config.MaxOccurrences = &max
	created := mustCreate(t, m, task)

	// All five occurrences are long past; nothing is left to schedule.
	later := core.NewManager(mem, core.FixedClock{T: day(2026, 6, 1)}, slog.Default())
	out, err := later.RegenerateAllInstances(context.Background(), created.ID, 3)
	require.NoError(t, err)
	assert.Empty(t, out)

	got, err := later.GetTask(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, core.StateExhausted, got.State)
}

func TestRegenerateAllInstancesRequiresPositiveCap(t *testing.T) {
	m := newManager(store.NewMemory(), day(2026, 6, 1))
	created := mustCreate(t, m, dailyTask(day(2026, 6, 2)))

	_, err := m.RegenerateAllInstances(context.Background(), created.ID, 0)
	assert.ErrorIs(t, err, core.ErrInvalidConfig)
}

func TestUpdateConfigRejectsInvalidPattern(t *testing.T) {
	m := newManager(store.NewMemory(), day(2026, 6, 1))
	created := mustCreate(t, m, dailyTask(day(2026, 6, 2)))

	err := m.UpdateConfig(context.Background(), created.ID, &core.RecurrenceConfig{
		Pattern:   "hourly",
		StartDate: day(2026, 6, 2),
	})
	var verr *core.ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestUpdateConfigThenRegenerate(t *testing.T) {
	mem := store.NewMemory()
	m := newManager(mem, day(2026, 6, 1))
	created := mustCreate(t, m, dailyTask(day(2026, 6, 7)))

	ctx := context.Background()
	_, err := m.GenerateNextInstance(ctx, created.ID)
	require.NoError(t, err)

	// Switch to weekly on Sundays. 2026-06-07 is a Sunday.
	err = m.UpdateConfig(ctx, created.ID, &core.RecurrenceConfig{
		Pattern:    core.PatternWeekly,
		DaysOfWeek: []int{0},
		StartDate:  day(2026, 6, 7),
	})
	require.NoError(t, err)

	out, err := m.RegenerateAllInstances(ctx, created.ID, 3)
	require.NoError(t, err)
	require.Len(t, out, 3)
	assert.Equal(t, day(2026, 6, 7), out[0].Date)
	assert.Equal(t, day(2026, 6, 14), out[1].Date)
	assert.Equal(t, day(2026, 6, 21), out[2].Date)
}

func TestStatsReportsNextInstanceDate(t *testing.T) {
	m := newManager(store.NewMemory(), day(2026, 6, 1))
	created := mustCreate(t, m, dailyTask(day(2026, 6, 2)))

	ctx := context.Background()
	inst, err := m.GenerateNextInstance(ctx, created.ID)
	require.NoError(t, err)
	_, err = m.CompleteInstance(ctx, inst.ID)
	require.NoError(t, err)
	_, err = m.GenerateNextInstance(ctx, created.ID)
	require.NoError(t, err)

	stats, err := m.Stats(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalInstances)
	assert.Equal(t, 1, stats.CompletedInstances)
	assert.Equal(t, 1, stats.PendingInstances)
	require.NotNil(t, stats.NextInstanceDate)
	assert.Equal(t, day(2026, 6, 4), *stats.NextInstanceDate)
}

func TestDeleteTaskRemovesInstances(t *testing.T) {
	mem := store.NewMemory()
	m := newManager(mem, day(2026, 6, 1))
	created := mustCreate(t, m, dailyTask(day(2026, 6, 2)))

	ctx := context.Background()
	inst, err := m.GenerateNextInstance(ctx, created.ID)
	require.NoError(t, err)

	require.NoError(t, m.DeleteTask(ctx, created.ID))

	_, err = m.GetTask(ctx, created.ID)
	assert.ErrorIs(t, err, core.ErrNotFound)
	_, err = mem.GetInstance(ctx, inst.ID)
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestNotFoundErrors(t *testing.T) {
	m := newManager(store.NewMemory(), day(2026, 6, 1))
	ctx := context.Background()

	_, err := m.GetTask(ctx, "missing")
	assert.ErrorIs(t, err, core.ErrNotFound)
	_, err = m.CompleteInstance(ctx, "missing")
	assert.ErrorIs(t, err, core.ErrNotFound)
	_, err = m.Pause(ctx, "missing")
	assert.ErrorIs(t, err, core.ErrNotFound)
	_, err = m.ListInstances(ctx, "missing")
	assert.ErrorIs(t, err, core.ErrNotFound)
	assert.ErrorIs(t, m.DeleteTask(ctx, "missing"), core.ErrNotFound)
}
