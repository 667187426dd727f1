package core

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// GenerateOccurrences returns the ordered sequence of occurrence dates for
// cfg, starting the search at anchor (inclusive). The result is strictly
// ascending and never longer than maxCount; generation additionally stops
// once the computed date passes cfg.EndDate or the occurrence count reaches
// cfg.MaxOccurrences, whichever triggers first.
//
// maxCount is mandatory: the engine never produces an unbounded sequence.
func GenerateOccurrences(anchor time.Time, cfg *RecurrenceConfig, maxCount int) ([]time.Time, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: config is required", ErrInvalidConfig)
	}
	if maxCount <= 0 {
		return nil, fmt.Errorf("%w: max count must be positive", ErrInvalidConfig)
	}

	limit := maxCount
	if cfg.MaxOccurrences != nil {
		if *cfg.MaxOccurrences < 1 {
			return nil, fmt.Errorf("%w: max occurrences must be at least 1", ErrInvalidConfig)
		}
		if *cfg.MaxOccurrences < limit {
			limit = *cfg.MaxOccurrences
		}
	}

	gen, err := newGenerator(anchor, cfg)
	if err != nil {
		return nil, err
	}

	out := make([]time.Time, 0, limit)
	for len(out) < limit {
		d, ok := gen()
		if !ok {
			break
		}
		if d.Before(anchor) {
			continue
		}
		// Clamping can collapse two configured month days onto the same
		// date; keep the sequence strictly ascending.
		if len(out) > 0 && !d.After(out[len(out)-1]) {
			continue
		}
		if cfg.EndDate != nil && dateOnly(d).After(dateOnly(*cfg.EndDate)) {
			break
		}
		out = append(out, d)
	}
	return out, nil
}

// generator emits candidate dates in ascending order, forever. Bounding is
// the caller's job.
type generator func() (time.Time, bool)

func newGenerator(anchor time.Time, cfg *RecurrenceConfig) (generator, error) {
	interval := cfg.IntervalOrDefault()

	switch cfg.Pattern {
	case PatternDaily:
		return stepGenerator(anchor, interval), nil

	case PatternWeekly:
		if len(cfg.DaysOfWeek) == 0 {
			return stepGenerator(anchor, 7*interval), nil
		}
		days, err := sortedWeekdays(cfg.DaysOfWeek)
		if err != nil {
			return nil, err
		}
		return weekdayGenerator(anchor, days, interval), nil

	case PatternMonthly:
		if len(cfg.MonthDays) > 0 {
			days, err := sortedMonthDays(cfg.MonthDays)
			if err != nil {
				return nil, err
			}
			return monthDayGenerator(anchor, days, interval), nil
		}
		if cfg.MonthPosition != nil || cfg.MonthWeekday != nil {
			if cfg.MonthPosition == nil || cfg.MonthWeekday == nil {
				return nil, fmt.Errorf("%w: month position and month weekday must be set together", ErrInvalidConfig)
			}
			pos, wd := *cfg.MonthPosition, *cfg.MonthWeekday
			if pos < 1 || pos > MonthPositionLast {
				return nil, fmt.Errorf("%w: month position must be between 1 and %d", ErrInvalidConfig, MonthPositionLast)
			}
			if wd < 0 || wd > 6 {
				return nil, fmt.Errorf("%w: month weekday must be between 0 and 6", ErrInvalidConfig)
			}
			return nthWeekdayGenerator(anchor, pos, wd, interval), nil
		}
		// Common case: repeat on the anchor's day of month.
		return monthDayGenerator(anchor, []int{anchor.Day()}, interval), nil

	case PatternYearly:
		return yearlyGenerator(anchor, interval), nil

	case PatternCustom:
		switch cfg.CustomUnit {
		case UnitDays:
			return stepGenerator(anchor, interval), nil
		case UnitWeeks:
			return stepGenerator(anchor, 7*interval), nil
		case UnitMonths:
			return monthDayGenerator(anchor, []int{anchor.Day()}, interval), nil
		default:
			return nil, fmt.Errorf("%w: custom pattern requires a unit of days, weeks or months", ErrInvalidConfig)
		}

	case "":
		return nil, fmt.Errorf("%w: pattern is required", ErrInvalidConfig)
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidPattern, cfg.Pattern)
	}
}

// stepGenerator emits anchor, anchor+step days, anchor+2*step days, ...
func stepGenerator(anchor time.Time, stepDays int) generator {
	cur := anchor
	return func() (time.Time, bool) {
		d := cur
		cur = cur.AddDate(0, 0, stepDays)
		return d, true
	}
}

// weekdayGenerator emits the selected weekdays of each interval-week window,
// in ascending weekday order. Windows start on Sunday.
func weekdayGenerator(anchor time.Time, days []int, interval int) generator {
	weekStart := anchor.AddDate(0, 0, -int(anchor.Weekday()))
	i := 0
	return func() (time.Time, bool) {
		d := weekStart.AddDate(0, 0, days[i])
		i++
		if i == len(days) {
			i = 0
			weekStart = weekStart.AddDate(0, 0, 7*interval)
		}
		return d, true
	}
}

// monthDayGenerator emits the configured days of month for each
// interval-month step, clamping days past the month's end to its last day.
func monthDayGenerator(anchor time.Time, days []int, interval int) generator {
	monthIdx := anchor.Year()*12 + int(anchor.Month()) - 1
	i := 0
	return func() (time.Time, bool) {
		year, month := monthIdx/12, time.Month(monthIdx%12+1)
		d := clampedDate(anchor, year, month, days[i])
		i++
		if i == len(days) {
			i = 0
			monthIdx += interval
		}
		return d, true
	}
}

// nthWeekdayGenerator emits the pos-th weekday of each interval-month step.
// Position MonthPositionLast, or an ordinal past the month's weekday count,
// resolves to the last matching weekday of that month.
func nthWeekdayGenerator(anchor time.Time, pos, weekday, interval int) generator {
	monthIdx := anchor.Year()*12 + int(anchor.Month()) - 1
	return func() (time.Time, bool) {
		year, month := monthIdx/12, time.Month(monthIdx%12+1)
		monthIdx += interval
		return nthWeekdayOfMonth(anchor, year, month, pos, weekday), true
	}
}

func yearlyGenerator(anchor time.Time, interval int) generator {
	year := anchor.Year()
	return func() (time.Time, bool) {
		d := clampedDate(anchor, year, anchor.Month(), anchor.Day())
		year += interval
		return d, true
	}
}

func nthWeekdayOfMonth(base time.Time, year int, month time.Month, pos, weekday int) time.Time {
	first := time.Date(year, month, 1, 0, 0, 0, 0, base.Location())
	offset := (weekday - int(first.Weekday()) + 7) % 7
	day := 1 + offset + (pos-1)*7
	if pos >= MonthPositionLast || day > daysIn(year, month) {
		day = 1 + offset
		for day+7 <= daysIn(year, month) {
			day += 7
		}
	}
	return clampedDate(base, year, month, day)
}

// clampedDate builds a date carrying base's time of day, clamping day to the
// month's length instead of letting time.Date roll into the next month.
func clampedDate(base time.Time, year int, month time.Month, day int) time.Time {
	if max := daysIn(year, month); day > max {
		day = max
	}
	return time.Date(year, month, day, base.Hour(), base.Minute(), base.Second(), base.Nanosecond(), base.Location())
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func sortedWeekdays(days []int) ([]int, error) {
	out, err := sortedUnique(days, 0, 6)
	if err != nil {
		return nil, fmt.Errorf("%w: weekday indices must be between 0 and 6", ErrInvalidConfig)
	}
	return out, nil
}

func sortedMonthDays(days []int) ([]int, error) {
	out, err := sortedUnique(days, 1, 31)
	if err != nil {
		return nil, fmt.Errorf("%w: month days must be between 1 and 31", ErrInvalidConfig)
	}
	return out, nil
}

func sortedUnique(values []int, min, max int) ([]int, error) {
	seen := make(map[int]struct{}, len(values))
	out := make([]int, 0, len(values))
	for _, v := range values {
		if v < min || v > max {
			return nil, fmt.Errorf("value %d out of range", v)
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.Ints(out)
	return out, nil
}

var shortWeekdays = [7]string{"Sun", "Mon", "Tue", "Wed", "Thu", "Fri", "Sat"}

var ordinals = map[int]string{1: "1st", 2: "2nd", 3: "3rd", 4: "4th", MonthPositionLast: "last"}

// FormatPattern renders a recurrence config as a short human-readable
// description, e.g. "Every 2 weeks on Mon, Wed".
func FormatPattern(cfg *RecurrenceConfig) string {
	if cfg == nil {
		return ""
	}
	interval := cfg.IntervalOrDefault()

	switch cfg.Pattern {
	case PatternDaily:
		return everyN(interval, "day")
	case PatternWeekly:
		s := everyN(interval, "week")
		if days, err := sortedWeekdays(cfg.DaysOfWeek); err == nil && len(days) > 0 {
			names := make([]string, len(days))
			for i, d := range days {
				names[i] = shortWeekdays[d]
			}
			s += " on " + strings.Join(names, ", ")
		}
		return s
	case PatternMonthly:
		s := everyN(interval, "month")
		if days, err := sortedMonthDays(cfg.MonthDays); err == nil && len(days) > 0 {
			names := make([]string, len(days))
			for i, d := range days {
				names[i] = fmt.Sprintf("%d", d)
			}
			return s + " on day " + strings.Join(names, ", ")
		}
		if cfg.MonthPosition != nil && cfg.MonthWeekday != nil {
			ord, ok := ordinals[*cfg.MonthPosition]
			if ok && *cfg.MonthWeekday >= 0 && *cfg.MonthWeekday <= 6 {
				return fmt.Sprintf("%s on the %s %s", s, ord, time.Weekday(*cfg.MonthWeekday))
			}
		}
		return s
	case PatternYearly:
		return everyN(interval, "year")
	case PatternCustom:
		switch cfg.CustomUnit {
		case UnitDays:
			return everyN(interval, "day")
		case UnitWeeks:
			return everyN(interval, "week")
		case UnitMonths:
			return everyN(interval, "month")
		}
		return everyN(interval, "interval")
	default:
		return string(cfg.Pattern)
	}
}

func everyN(n int, unit string) string {
	if n <= 1 {
		return "Every " + unit
	}
	return fmt.Sprintf("Every %d %ss", n, unit)
}
