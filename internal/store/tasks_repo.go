package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"taskcycle/internal/core"
)

func (s *Store) InsertTask(ctx context.Context, task *core.RecurringTask) error {
	now := time.Now().UTC()
	task.CreatedAt = now
	task.UpdatedAt = now
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO tasks (id, title, description, priority, due_date, parent_id,
			pattern, interval, custom_unit, days_of_week, month_days, month_position, month_weekday,
			start_date, end_condition, end_date, max_occurrences,
			state, instance_seq, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, task.ID, task.Title, nullableString(task.Description), task.Priority,
		nullableTime(task.DueDate), nullableString(task.ParentID),
		task.Config.Pattern, task.Config.IntervalOrDefault(), nullableUnit(task.Config.CustomUnit),
		nullableInts(task.Config.DaysOfWeek), nullableInts(task.Config.MonthDays),
		nullableInt(task.Config.MonthPosition), nullableInt(task.Config.MonthWeekday),
		task.Config.StartDate.UTC().Format(time.RFC3339Nano), task.Config.EndCondition,
		nullableTime(task.Config.EndDate), nullableInt(task.Config.MaxOccurrences),
		task.State, task.InstanceSeq,
		task.CreatedAt.Format(time.RFC3339Nano), task.UpdatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("insert task: %w", err)
	}
	return nil
}

func (s *Store) UpdateTask(ctx context.Context, task *core.RecurringTask) error {
	task.UpdatedAt = time.Now().UTC()
	res, err := s.DB.ExecContext(ctx, `
		UPDATE tasks
		SET title = ?, description = ?, priority = ?, due_date = ?, parent_id = ?,
			pattern = ?, interval = ?, custom_unit = ?, days_of_week = ?, month_days = ?,
			month_position = ?, month_weekday = ?, start_date = ?, end_condition = ?,
			end_date = ?, max_occurrences = ?, state = ?, instance_seq = ?, updated_at = ?
		WHERE id = ?
	`, task.Title, nullableString(task.Description), task.Priority,
		nullableTime(task.DueDate), nullableString(task.ParentID),
		task.Config.Pattern, task.Config.IntervalOrDefault(), nullableUnit(task.Config.CustomUnit),
		nullableInts(task.Config.DaysOfWeek), nullableInts(task.Config.MonthDays),
		nullableInt(task.Config.MonthPosition), nullableInt(task.Config.MonthWeekday),
		task.Config.StartDate.UTC().Format(time.RFC3339Nano), task.Config.EndCondition,
		nullableTime(task.Config.EndDate), nullableInt(task.Config.MaxOccurrences),
		task.State, task.InstanceSeq, task.UpdatedAt.Format(time.RFC3339Nano), task.ID)
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update task rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("task %s: %w", task.ID, core.ErrNotFound)
	}
	return nil
}

func (s *Store) DeleteTask(ctx context.Context, id string) error {
	res, err := s.DB.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return fmt.Errorf("task %s: %w", id, core.ErrNotFound)
	}
	return nil
}

const taskColumns = `id, title, description, priority, due_date, parent_id,
	pattern, interval, custom_unit, days_of_week, month_days, month_position, month_weekday,
	start_date, end_condition, end_date, max_occurrences, state, instance_seq, created_at, updated_at`

func (s *Store) GetTask(ctx context.Context, id string) (*core.RecurringTask, error) {
	row := s.DB.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	task, err := scanTask(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("task %s: %w", id, core.ErrNotFound)
		}
		return nil, err
	}
	return task, nil
}

func (s *Store) ListTasks(ctx context.Context, state *core.LifecycleState) ([]*core.RecurringTask, error) {
	var rows *sql.Rows
	var err error
	if state != nil {
		rows, err = s.DB.QueryContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE state = ? ORDER BY created_at DESC`, *state)
	} else {
		rows, err = s.DB.QueryContext(ctx, `SELECT `+taskColumns+` FROM tasks ORDER BY created_at DESC`)
	}
	if err != nil {
		return nil, fmt.Errorf("query tasks: %w", err)
	}
	defer rows.Close()
	var tasks []*core.RecurringTask
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return tasks, nil
}

func scanTask(scanner interface {
	Scan(dest ...any) error
}) (*core.RecurringTask, error) {
	var (
		id            string
		title         string
		description   sql.NullString
		priority      string
		dueDate       sql.NullString
		parentID      sql.NullString
		pattern       string
		interval      int
		customUnit    sql.NullString
		daysOfWeek    sql.NullString
		monthDays     sql.NullString
		monthPosition sql.NullInt64
		monthWeekday  sql.NullInt64
		startDate     string
		endCondition  string
		endDate       sql.NullString
		maxOccur      sql.NullInt64
		state         string
		instanceSeq   int
		createdAt     string
		updatedAt     string
	)
	if err := scanner.Scan(&id, &title, &description, &priority, &dueDate, &parentID,
		&pattern, &interval, &customUnit, &daysOfWeek, &monthDays, &monthPosition, &monthWeekday,
		&startDate, &endCondition, &endDate, &maxOccur, &state, &instanceSeq, &createdAt, &updatedAt); err != nil {
		return nil, fmt.Errorf("scan task: %w", err)
	}
	task := &core.RecurringTask{
		ID:       id,
		Title:    title,
		Priority: core.Priority(priority),
		Config: core.RecurrenceConfig{
			Pattern:      core.Pattern(pattern),
			Interval:     interval,
			EndCondition: core.EndCondition(endCondition),
		},
		State:       core.LifecycleState(state),
		InstanceSeq: instanceSeq,
	}
	if description.Valid {
		task.Description = &description.String
	}
	if parentID.Valid {
		task.ParentID = &parentID.String
	}
	if dueDate.Valid {
		if t, err := time.Parse(time.RFC3339Nano, dueDate.String); err == nil {
			task.DueDate = &t
		}
	}
	if customUnit.Valid {
		task.Config.CustomUnit = core.CustomUnit(customUnit.String)
	}
	if daysOfWeek.Valid {
		task.Config.DaysOfWeek = parseInts(daysOfWeek.String)
	}
	if monthDays.Valid {
		task.Config.MonthDays = parseInts(monthDays.String)
	}
	if monthPosition.Valid {
		val := int(monthPosition.Int64)
		task.Config.MonthPosition = &val
	}
	if monthWeekday.Valid {
		val := int(monthWeekday.Int64)
		task.Config.MonthWeekday = &val
	}
	if t, err := time.Parse(time.RFC3339Nano, startDate); err == nil {
		task.Config.StartDate = t
	}
	if endDate.Valid {
		if t, err := time.Parse(time.RFC3339Nano, endDate.String); err == nil {
			task.Config.EndDate = &t
		}
	}
	if maxOccur.Valid {
		val := int(maxOccur.Int64)
		task.Config.MaxOccurrences = &val
	}
	if t, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
		task.CreatedAt = t
	}
	if t, err := time.Parse(time.RFC3339Nano, updatedAt); err == nil {
		task.UpdatedAt = t
	}
	return task, nil
}

func nullableString(value *string) any {
	if value == nil {
		return nil
	}
	return *value
}

func nullableInt(value *int) any {
	if value == nil {
		return nil
	}
	return *value
}

func nullableTime(value *time.Time) any {
	if value == nil {
		return nil
	}
	return value.UTC().Format(time.RFC3339Nano)
}

func nullableUnit(unit core.CustomUnit) any {
	if unit == "" {
		return nil
	}
	return string(unit)
}

// nullableInts stores an int set as a comma-joined string.
func nullableInts(values []int) any {
	if len(values) == 0 {
		return nil
	}
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = strconv.Itoa(v)
	}
	return strings.Join(parts, ",")
}

func parseInts(value string) []int {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		if v, err := strconv.Atoi(strings.TrimSpace(p)); err == nil {
			out = append(out, v)
		}
	}
	return out
}
