package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"taskcycle/internal/core"

	"github.com/go-chi/chi/v5"
)

type recurrencePayload struct {
	Pattern        string  `json:"pattern"`
	Interval       int     `json:"interval,omitempty"`
	CustomUnit     string  `json:"custom_unit,omitempty"`
	DaysOfWeek     []int   `json:"custom_days_of_week,omitempty"`
	MonthDays      []int   `json:"custom_month_days,omitempty"`
	MonthPosition  *int    `json:"custom_month_position,omitempty"`
	MonthWeekday   *int    `json:"custom_month_day,omitempty"`
	StartDate      string  `json:"start_date,omitempty"`
	EndCondition   string  `json:"end_condition,omitempty"`
	EndDate        *string `json:"end_date,omitempty"`
	MaxOccurrences *int    `json:"max_occurrences,omitempty"`
}

type createTaskRequest struct {
	Title       string             `json:"title"`
	Description *string            `json:"description"`
	Priority    string             `json:"priority"`
	DueDate     *string            `json:"due_date"`
	ParentID    *string            `json:"parent_id"`
	Recurrence  *recurrencePayload `json:"recurrence"`
}

type taskResponse struct {
	ID          string            `json:"id"`
	Title       string            `json:"title"`
	Description *string           `json:"description,omitempty"`
	Priority    string            `json:"priority"`
	DueDate     *string           `json:"due_date,omitempty"`
	ParentID    *string           `json:"parent_id,omitempty"`
	Recurrence  recurrencePayload `json:"recurrence"`
	Schedule    string            `json:"schedule"`
	State       string            `json:"state"`
	CreatedAt   string            `json:"created_at"`
	UpdatedAt   string            `json:"updated_at"`
}

type instanceResponse struct {
	ID          string  `json:"id"`
	TaskID      string  `json:"task_id"`
	Date        string  `json:"date"`
	Status      string  `json:"status"`
	Completed   bool    `json:"completed"`
	Generated   bool    `json:"generated"`
	CompletedAt *string `json:"completed_at,omitempty"`
}

func (s *Server) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	var req createTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}
	if req.Recurrence == nil {
		writeError(w, http.StatusBadRequest, "invalid_input", "recurrence config is required")
		return
	}
	cfg, err := toConfig(req.Recurrence)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_input", err.Error())
		return
	}

	task := &core.RecurringTask{
		Title:       strings.TrimSpace(req.Title),
		Description: req.Description,
		Priority:    core.Priority(req.Priority),
		ParentID:    req.ParentID,
		Config:      *cfg,
	}
	if req.DueDate != nil {
		due, err := parseDate(*req.DueDate)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_input", "invalid due_date")
			return
		}
		task.DueDate = &due
	}

	created, err := s.facade.Manager().CreateRecurringTask(r.Context(), task)
	if err != nil {
		s.writeCoreError(w, err, "failed to create recurring task")
		return
	}
	writeJSON(w, http.StatusCreated, taskToResponse(created))
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	var stateFilter *core.LifecycleState
	if state := strings.TrimSpace(r.URL.Query().Get("state")); state != "" {
		st := core.LifecycleState(state)
		switch st {
		case core.StateActive, core.StatePaused, core.StateExhausted:
			stateFilter = &st
		default:
			writeError(w, http.StatusBadRequest, "invalid_input", "state must be active, paused or exhausted")
			return
		}
	}
	tasks, err := s.facade.Manager().ListTasks(r.Context(), stateFilter)
	if err != nil {
		s.writeCoreError(w, err, "failed to list tasks")
		return
	}
	res := make([]taskResponse, 0, len(tasks))
	for _, t := range tasks {
		res = append(res, taskToResponse(t))
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")
	task, err := s.facade.Manager().GetTask(r.Context(), taskID)
	if err != nil {
		s.writeCoreError(w, err, "failed to load task")
		return
	}
	writeJSON(w, http.StatusOK, taskToResponse(task))
}

func (s *Server) handleDeleteTask(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")
	if err := s.facade.Manager().DeleteTask(r.Context(), taskID); err != nil {
		s.writeCoreError(w, err, "failed to delete task")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handlePauseTask(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")
	task, err := s.facade.Manager().Pause(r.Context(), taskID)
	if err != nil {
		s.writeCoreError(w, err, "failed to pause task")
		return
	}
	writeJSON(w, http.StatusOK, taskToResponse(task))
}

func (s *Server) handleResumeTask(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")
	task, err := s.facade.Manager().Resume(r.Context(), taskID)
	if err != nil {
		s.writeCoreError(w, err, "failed to resume task")
		return
	}
	writeJSON(w, http.StatusOK, taskToResponse(task))
}

func (s *Server) handleTaskStats(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")
	stats, err := s.facade.Manager().Stats(r.Context(), taskID)
	if err != nil {
		s.writeCoreError(w, err, "failed to load task stats")
		return
	}
	resp := map[string]any{
		"total_instances":     stats.TotalInstances,
		"completed_instances": stats.CompletedInstances,
		"pending_instances":   stats.PendingInstances,
	}
	if stats.NextInstanceDate != nil {
		resp["next_instance_date"] = stats.NextInstanceDate.UTC().Format(time.RFC3339)
	}
	writeJSON(w, http.StatusOK, resp)
}

func toConfig(p *recurrencePayload) (*core.RecurrenceConfig, error) {
	cfg := &core.RecurrenceConfig{
		Pattern:        core.Pattern(strings.TrimSpace(p.Pattern)),
		Interval:       p.Interval,
		CustomUnit:     core.CustomUnit(p.CustomUnit),
		DaysOfWeek:     p.DaysOfWeek,
		MonthDays:      p.MonthDays,
		MonthPosition:  p.MonthPosition,
		MonthWeekday:   p.MonthWeekday,
		EndCondition:   core.EndCondition(p.EndCondition),
		MaxOccurrences: p.MaxOccurrences,
	}
	if p.StartDate != "" {
		start, err := parseDate(p.StartDate)
		if err != nil {
			return nil, fmt.Errorf("invalid start_date: %w", err)
		}
		cfg.StartDate = start
	}
	if p.EndDate != nil {
		end, err := parseDate(*p.EndDate)
		if err != nil {
			return nil, fmt.Errorf("invalid end_date: %w", err)
		}
		cfg.EndDate = &end
	}
	return cfg, nil
}

func configToPayload(cfg *core.RecurrenceConfig) recurrencePayload {
	p := recurrencePayload{
		Pattern:        string(cfg.Pattern),
		Interval:       cfg.Interval,
		CustomUnit:     string(cfg.CustomUnit),
		DaysOfWeek:     cfg.DaysOfWeek,
		MonthDays:      cfg.MonthDays,
		MonthPosition:  cfg.MonthPosition,
		MonthWeekday:   cfg.MonthWeekday,
		EndCondition:   string(cfg.EndCondition),
		MaxOccurrences: cfg.MaxOccurrences,
	}
	if !cfg.StartDate.IsZero() {
		p.StartDate = cfg.StartDate.UTC().Format(time.RFC3339)
	}
	if cfg.EndDate != nil {
		formatted := cfg.EndDate.UTC().Format(time.RFC3339)
		p.EndDate = &formatted
	}
	return p
}

func taskToResponse(task *core.RecurringTask) taskResponse {
	resp := taskResponse{
		ID:          task.ID,
		Title:       task.Title,
		Description: task.Description,
		Priority:    string(task.Priority),
		ParentID:    task.ParentID,
		Recurrence:  configToPayload(&task.Config),
		Schedule:    core.FormatPattern(&task.Config),
		State:       string(task.State),
		CreatedAt:   task.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:   task.UpdatedAt.UTC().Format(time.RFC3339),
	}
	if task.DueDate != nil {
		formatted := task.DueDate.UTC().Format(time.RFC3339)
		resp.DueDate = &formatted
	}
	return resp
}

func instanceToResponse(inst *core.Instance) instanceResponse {
	resp := instanceResponse{
		ID:        inst.ID,
		TaskID:    inst.TaskID,
		Date:      inst.Date.UTC().Format(time.RFC3339),
		Status:    string(inst.Status),
		Completed: inst.Completed,
		Generated: inst.Generated,
	}
	if inst.CompletedAt != nil {
		formatted := inst.CompletedAt.UTC().Format(time.RFC3339)
		resp.CompletedAt = &formatted
	}
	return resp
}

// parseDate accepts RFC3339 timestamps and plain dates.
func parseDate(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", value)
}
