package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"taskcycle/internal/core"
)

func (s *Store) InsertInstance(ctx context.Context, inst *core.Instance) error {
	inst.CreatedAt = time.Now().UTC()
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO instances (id, task_id, date, status, completed, generated, created_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, inst.ID, inst.TaskID, inst.Date.UTC().Format(time.RFC3339Nano), inst.Status,
		boolInt(inst.Completed), boolInt(inst.Generated),
		inst.CreatedAt.Format(time.RFC3339Nano), nullableTime(inst.CompletedAt))
	if err != nil {
		return fmt.Errorf("insert instance: %w", err)
	}
	return nil
}

func (s *Store) GetInstance(ctx context.Context, id string) (*core.Instance, error) {
	row := s.DB.QueryRowContext(ctx, `
		SELECT id, task_id, date, status, completed, generated, created_at, completed_at
		FROM instances WHERE id = ?
	`, id)
	inst, err := scanInstance(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("instance %s: %w", id, core.ErrNotFound)
		}
		return nil, err
	}
	return inst, nil
}

func (s *Store) ListInstances(ctx context.Context, taskID string) ([]*core.Instance, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT id, task_id, date, status, completed, generated, created_at, completed_at
		FROM instances
		WHERE task_id = ?
		ORDER BY date ASC
	`, taskID)
	if err != nil {
		return nil, fmt.Errorf("list instances: %w", err)
	}
	defer rows.Close()
	var instances []*core.Instance
	for rows.Next() {
		inst, err := scanInstance(rows)
		if err != nil {
			return nil, err
		}
		instances = append(instances, inst)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return instances, nil
}

func (s *Store) UpdateInstance(ctx context.Context, inst *core.Instance) error {
	res, err := s.DB.ExecContext(ctx, `
		UPDATE instances
		SET date = ?, status = ?, completed = ?, completed_at = ?
		WHERE id = ?
	`, inst.Date.UTC().Format(time.RFC3339Nano), inst.Status,
		boolInt(inst.Completed), nullableTime(inst.CompletedAt), inst.ID)
	if err != nil {
		return fmt.Errorf("update instance: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return fmt.Errorf("instance %s: %w", inst.ID, core.ErrNotFound)
	}
	return nil
}

func (s *Store) DeleteInstances(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	if _, err := s.DB.ExecContext(ctx, `DELETE FROM instances WHERE id IN (`+placeholders+`)`, args...); err != nil {
		return fmt.Errorf("delete instances: %w", err)
	}
	return nil
}

func scanInstance(scanner interface {
	Scan(dest ...any) error
}) (*core.Instance, error) {
	var (
		id          string
		taskID      string
		date        string
		status      string
		completed   int
		generated   int
		createdAt   string
		completedAt sql.NullString
	)
	if err := scanner.Scan(&id, &taskID, &date, &status, &completed, &generated, &createdAt, &completedAt); err != nil {
		return nil, fmt.Errorf("scan instance: %w", err)
	}
	inst := &core.Instance{
		ID:        id,
		TaskID:    taskID,
		Status:    core.InstanceStatus(status),
		Completed: completed != 0,
		Generated: generated != 0,
	}
	if t, err := time.Parse(time.RFC3339Nano, date); err == nil {
		inst.Date = t
	}
	if t, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
		inst.CreatedAt = t
	}
	if completedAt.Valid {
		if t, err := time.Parse(time.RFC3339Nano, completedAt.String); err == nil {
			inst.CompletedAt = &t
		}
	}
	return inst, nil
}

func boolInt(v bool) int {
	if v {
		return 1
	}
	return 0
}
