package core

import (
	"fmt"
	"time"
)

// Result is the outcome of a validation pass. Errors block the mutating
// operation; warnings are advisory and never block.
type Result struct {
	Valid    bool
	Errors   []string
	Warnings []string
}

// PerformanceResult is the outcome of the performance-safety heuristics.
type PerformanceResult struct {
	Safe     bool
	Warnings []string
}

const (
	largeIntervalThreshold = 100
	longDurationYears      = 5
)

// ValidateConfig runs the structural checks on a recurrence config. The
// start date must not be before the calendar day of now.
func ValidateConfig(cfg *RecurrenceConfig, now time.Time) Result {
	var errs []string
	if cfg == nil {
		return Result{Errors: []string{"Recurrence config is required"}}
	}
	if cfg.Pattern == "" {
		errs = append(errs, "Recurring pattern is required")
	}
	if cfg.StartDate.IsZero() {
		errs = append(errs, "Start date is required for recurring tasks")
	} else if dateOnly(cfg.StartDate).Before(dateOnly(now)) {
		errs = append(errs, "Start date cannot be in the past")
	}
	if cfg.EndDate != nil && !cfg.StartDate.IsZero() && dateOnly(*cfg.EndDate).Before(dateOnly(cfg.StartDate)) {
		errs = append(errs, "End date must be on or after the start date")
	}
	if cfg.MaxOccurrences != nil && *cfg.MaxOccurrences < 1 {
		errs = append(errs, "Max occurrences must be at least 1")
	}
	if cfg.Interval != 0 && cfg.Interval < 1 {
		errs = append(errs, "Interval must be at least 1")
	}
	switch cfg.EndCondition {
	case EndOnDate:
		if cfg.EndDate == nil {
			errs = append(errs, "End date is required when the recurrence ends on a date")
		}
	case EndAfterOccurrences:
		if cfg.MaxOccurrences == nil {
			errs = append(errs, "Max occurrences is required when the recurrence ends after a number of occurrences")
		}
	case EndNever, "":
	default:
		errs = append(errs, fmt.Sprintf("Unknown end condition %q", cfg.EndCondition))
	}
	return Result{Valid: len(errs) == 0, Errors: errs}
}

// ValidatePatternRules runs the pattern-specific checks.
func ValidatePatternRules(cfg *RecurrenceConfig) Result {
	var errs, warns []string
	if cfg == nil {
		return Result{Errors: []string{"Recurrence config is required"}}
	}
	switch cfg.Pattern {
	case PatternDaily, PatternWeekly, PatternMonthly, PatternYearly:
	case PatternCustom:
		switch cfg.CustomUnit {
		case UnitDays, UnitWeeks, UnitMonths:
		default:
			errs = append(errs, "Custom pattern requires a unit of days, weeks or months")
		}
	case "":
	default:
		errs = append(errs, fmt.Sprintf("Unknown recurrence pattern %q", cfg.Pattern))
	}
	for _, d := range cfg.DaysOfWeek {
		if d < 0 || d > 6 {
			errs = append(errs, fmt.Sprintf("Weekday index %d is out of range (0-6)", d))
		}
	}
	for _, d := range cfg.MonthDays {
		if d < 1 || d > 31 {
			errs = append(errs, fmt.Sprintf("Month day %d is out of range (1-31)", d))
		}
	}
	if (cfg.MonthPosition == nil) != (cfg.MonthWeekday == nil) {
		errs = append(errs, "Month position and month weekday must be set together")
	}
	if cfg.MonthPosition != nil && (*cfg.MonthPosition < 1 || *cfg.MonthPosition > MonthPositionLast) {
		errs = append(errs, fmt.Sprintf("Month position must be between 1 and %d", MonthPositionLast))
	}
	if cfg.MonthWeekday != nil && (*cfg.MonthWeekday < 0 || *cfg.MonthWeekday > 6) {
		errs = append(errs, "Month weekday must be between 0 and 6")
	}
	if cfg.Interval > largeIntervalThreshold {
		warns = append(warns, fmt.Sprintf("Interval of %d is unusually large", cfg.Interval))
	}
	return Result{Valid: len(errs) == 0, Errors: errs, Warnings: warns}
}

// ValidateBusinessRules runs the cross-cutting checks between a task and
// its recurrence config.
func ValidateBusinessRules(task *RecurringTask, cfg *RecurrenceConfig) Result {
	var errs, warns []string
	if task == nil {
		return Result{Errors: []string{"Task is required"}}
	}
	if task.Title == "" {
		errs = append(errs, "Task title is required")
	}
	if cfg != nil {
		if task.DueDate != nil && !cfg.StartDate.IsZero() && dateOnly(*task.DueDate).Before(dateOnly(cfg.StartDate)) {
			errs = append(errs, "Task due date cannot be before the recurrence start date")
		}
		if task.ParentID != nil {
			warns = append(warns, "Recurring subtasks add scheduling complexity")
		}
		if !cfg.HasEndCondition() && cfg.Pattern == PatternDaily && cfg.IntervalOrDefault() == 1 {
			warns = append(warns, "Daily recurrence with no end condition can generate a very large number of instances")
		}
		if cfg.EndDate != nil && !cfg.StartDate.IsZero() {
			if cfg.EndDate.Sub(cfg.StartDate) > longDurationYears*365*24*time.Hour {
				warns = append(warns, fmt.Sprintf("Recurrence spans more than %d years", longDurationYears))
			}
		}
	}
	return Result{Valid: len(errs) == 0, Errors: errs, Warnings: warns}
}

// ValidatePerformance runs the performance-safety heuristics. Warnings here
// never block; Safe is false when any heuristic fires.
func ValidatePerformance(cfg *RecurrenceConfig) PerformanceResult {
	var warns []string
	if cfg == nil {
		return PerformanceResult{Safe: true}
	}
	if !cfg.HasEndCondition() {
		warns = append(warns, "Recurrence has no end condition; instance generation is only bounded by explicit caps")
	}
	if cfg.IsComplex() {
		warns = append(warns, "Complex recurrence patterns are more expensive to evaluate")
	}
	return PerformanceResult{Safe: len(warns) == 0, Warnings: warns}
}

// ValidateConfigFull runs the structural and pattern checks together, for
// callers validating a config that has no owning task.
func ValidateConfigFull(cfg *RecurrenceConfig, now time.Time) Result {
	return mergeResults(ValidateConfig(cfg, now), ValidatePatternRules(cfg))
}

// ValidateFull is the single authoritative validation gate run before any
// mutation that touches a task's recurrence. It aggregates every check;
// the result is invalid iff any structural, pattern or business error
// exists. Warnings are carried through but never block.
func ValidateFull(task *RecurringTask, cfg *RecurrenceConfig, now time.Time) Result {
	out := mergeResults(
		ValidateBusinessRules(task, cfg),
		ValidateConfig(cfg, now),
		ValidatePatternRules(cfg),
	)
	out.Warnings = append(out.Warnings, ValidatePerformance(cfg).Warnings...)
	return out
}

func mergeResults(results ...Result) Result {
	var out Result
	for _, r := range results {
		out.Errors = append(out.Errors, r.Errors...)
		out.Warnings = append(out.Warnings, r.Warnings...)
	}
	out.Valid = len(out.Errors) == 0
	return out
}
