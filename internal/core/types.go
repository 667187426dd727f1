package core

import (
	"time"
)

// Pattern describes the recurrence family of a recurring task.
type Pattern string

const (
	PatternDaily   Pattern = "daily"
	PatternWeekly  Pattern = "weekly"
	PatternMonthly Pattern = "monthly"
	PatternYearly  Pattern = "yearly"
	PatternCustom  Pattern = "custom"
)

// CustomUnit is the stepping unit for the custom pattern.
type CustomUnit string

const (
	UnitDays   CustomUnit = "days"
	UnitWeeks  CustomUnit = "weeks"
	UnitMonths CustomUnit = "months"
)

// EndCondition describes how a recurrence terminates.
type EndCondition string

const (
	EndNever            EndCondition = "never"
	EndOnDate           EndCondition = "on_date"
	EndAfterOccurrences EndCondition = "after_occurrences"
)

// LifecycleState describes the lifecycle of a recurring task.
// Exhausted is terminal; a task never leaves it.
type LifecycleState string

const (
	StateActive    LifecycleState = "active"
	StatePaused    LifecycleState = "paused"
	StateExhausted LifecycleState = "exhausted"
)

// InstanceStatus describes the state of an individual occurrence.
type InstanceStatus string

const (
	InstanceStatusPending    InstanceStatus = "pending"
	InstanceStatusActive     InstanceStatus = "active"
	InstanceStatusInProgress InstanceStatus = "in_progress"
	InstanceStatusCompleted  InstanceStatus = "completed"
	InstanceStatusArchived   InstanceStatus = "archived"
)

// Priority is the urgency level of a recurring task.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// MonthPositionLast selects the last matching weekday of a month instead of
// an ordinal one. Positions 1-4 pick the nth weekday.
const MonthPositionLast = 5

// RecurrenceConfig describes how a task repeats.
//
// Exactly one end-condition mechanism is authoritative per EndCondition,
// but both EndDate and MaxOccurrences may be populated; generation then
// stops on whichever triggers first.
type RecurrenceConfig struct {
	Pattern  Pattern
	Interval int // every N pattern units, >= 1

	CustomUnit CustomUnit // used when Pattern == custom

	DaysOfWeek    []int // weekday indices 0-6 (Sunday = 0), weekly patterns
	MonthDays     []int // day-of-month values 1-31, monthly patterns
	MonthPosition *int  // ordinal weekday-of-month, 1-4 or MonthPositionLast
	MonthWeekday  *int  // weekday for MonthPosition, 0-6

	StartDate time.Time

	EndCondition   EndCondition
	EndDate        *time.Time
	MaxOccurrences *int
}

// IntervalOrDefault returns the configured interval, defaulting to 1.
func (c *RecurrenceConfig) IntervalOrDefault() int {
	if c.Interval < 1 {
		return 1
	}
	return c.Interval
}

// IsComplex reports whether the config uses any of the advanced knobs that
// make occurrence generation more expensive than a plain fixed step.
func (c *RecurrenceConfig) IsComplex() bool {
	return len(c.DaysOfWeek) > 0 || len(c.MonthDays) > 0 || c.MonthPosition != nil || c.Interval > 1
}

// HasEndCondition reports whether any terminating mechanism is in effect.
func (c *RecurrenceConfig) HasEndCondition() bool {
	if c.EndCondition == EndOnDate || c.EndCondition == EndAfterOccurrences {
		return true
	}
	return c.EndDate != nil || c.MaxOccurrences != nil
}

// RecurringTask is a task plus its attached recurrence configuration.
// It owns zero or more Instances, generated lazily.
type RecurringTask struct {
	ID          string
	Title       string
	Description *string
	Priority    Priority
	DueDate     *time.Time
	ParentID    *string // set when the task is a subtask

	Config RecurrenceConfig
	State  LifecycleState

	// InstanceSeq is the last sequence number handed out for this task.
	// It only grows, so regenerated instances never reuse an ID.
	InstanceSeq int

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Instance is a single dated occurrence of a recurring task.
type Instance struct {
	ID     string
	TaskID string

	Date      time.Time
	Status    InstanceStatus
	Completed bool

	// Generated is false only for the seed occurrence (sequence 1).
	Generated bool

	CreatedAt   time.Time
	CompletedAt *time.Time
}

// TaskStats aggregates the instance set of a single recurring task.
type TaskStats struct {
	TotalInstances     int
	CompletedInstances int
	PendingInstances   int
	NextInstanceDate   *time.Time
}

// SystemStatistics aggregates all recurring tasks for dashboards.
type SystemStatistics struct {
	TotalTasks     int
	TasksByPattern map[Pattern]int
	TasksByState   map[LifecycleState]int
	TotalInstances int
	CompletedCount int
	CompletionRate float64 // completed / total instances, 0 when empty
}

// HealthReport scores the system 0-100 from on-time completions versus
// overdue instances. More overdue instances always means a lower score.
type HealthReport struct {
	Score            int
	CompletedOnTime  int
	OverdueInstances int
	ActiveTasks      int
	PausedTasks      int
	ExhaustedTasks   int
	GeneratedAt      time.Time
}
