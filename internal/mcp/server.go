package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"taskcycle/internal/core"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// MCPServer represents the MCP server that handles protocol communication.
type MCPServer struct {
	facade   *core.Facade
	logger   *slog.Logger
	location *time.Location
}

// NewMCPServer creates a new MCP server instance.
func NewMCPServer(facade *core.Facade, logger *slog.Logger, location *time.Location) *MCPServer {
	return &MCPServer{
		facade:   facade,
		logger:   logger,
		location: location,
	}
}

// Run starts the MCP server using stdio transport.
func (s *MCPServer) Run() error {
	mcpServer := server.NewMCPServer(
		"taskcycle",
		"1.0.0",
		server.WithToolCapabilities(true),
	)

	s.registerTools(mcpServer)

	s.logger.Info("MCP server starting on stdio")

	return server.ServeStdio(mcpServer)
}

// registerTools registers all available MCP tools.
func (s *MCPServer) registerTools(mcpServer *server.MCPServer) {
	// recurring_create_task
	mcpServer.AddTool(mcp.NewTool("recurring_create_task",
		mcp.WithDescription("Create a recurring task. Supported patterns: daily, weekly, monthly, yearly, custom"),
		mcp.WithString("title",
			mcp.Required(),
			mcp.Description("Task title"),
		),
		mcp.WithString("pattern",
			mcp.Required(),
			mcp.Description("Recurrence pattern"),
			mcp.Enum("daily", "weekly", "monthly", "yearly", "custom"),
		),
		mcp.WithString("start_date",
			mcp.Required(),
			mcp.Description("Start date, RFC3339 or YYYY-MM-DD"),
		),
		mcp.WithNumber("interval",
			mcp.Description("Repeat every N pattern units, default 1"),
			mcp.Min(1),
		),
		mcp.WithString("custom_unit",
			mcp.Description("Unit for the custom pattern"),
			mcp.Enum("days", "weeks", "months"),
		),
		mcp.WithString("days_of_week",
			mcp.Description("Comma-separated weekday indices 0-6 (Sunday = 0), e.g. '1,3,5'"),
		),
		mcp.WithString("month_days",
			mcp.Description("Comma-separated days of month 1-31, e.g. '1,15'"),
		),
		mcp.WithNumber("month_position",
			mcp.Description("Ordinal weekday of month, 1-4 or 5 for last; requires month_weekday"),
			mcp.Min(1),
			mcp.Max(5),
		),
		mcp.WithNumber("month_weekday",
			mcp.Description("Weekday 0-6 for month_position"),
			mcp.Min(0),
			mcp.Max(6),
		),
		mcp.WithString("end_condition",
			mcp.Description("How the recurrence ends, default never"),
			mcp.Enum("never", "on_date", "after_occurrences"),
		),
		mcp.WithString("end_date",
			mcp.Description("Last allowed occurrence date"),
		),
		mcp.WithNumber("max_occurrences",
			mcp.Description("Total number of occurrences"),
			mcp.Min(1),
		),
		mcp.WithString("priority",
			mcp.Description("Task priority, default medium"),
			mcp.Enum("low", "medium", "high", "urgent"),
		),
		mcp.WithString("description",
			mcp.Description("Task description"),
		),
	), s.handleCreateTask)

	// recurring_list_tasks
	mcpServer.AddTool(mcp.NewTool("recurring_list_tasks",
		mcp.WithDescription("List recurring tasks"),
		mcp.WithString("state",
			mcp.Description("Filter by lifecycle state"),
			mcp.Enum("active", "paused", "exhausted"),
		),
	), s.handleListTasks)

	// recurring_get_task
	mcpServer.AddTool(mcp.NewTool("recurring_get_task",
		mcp.WithDescription("Show a recurring task with its instances"),
		mcp.WithString("task_id",
			mcp.Required(),
			mcp.Description("Task ID"),
		),
	), s.handleGetTask)

	// recurring_pause_task
	mcpServer.AddTool(mcp.NewTool("recurring_pause_task",
		mcp.WithDescription("Pause instance generation for a task; existing instances are kept"),
		mcp.WithString("task_id",
			mcp.Required(),
			mcp.Description("Task ID"),
		),
	), s.handlePauseTask)

	// recurring_resume_task
	mcpServer.AddTool(mcp.NewTool("recurring_resume_task",
		mcp.WithDescription("Resume a paused task"),
		mcp.WithString("task_id",
			mcp.Required(),
			mcp.Description("Task ID"),
		),
	), s.handleResumeTask)

	// recurring_generate_next
	mcpServer.AddTool(mcp.NewTool("recurring_generate_next",
		mcp.WithDescription("Generate the next instance of a recurring task"),
		mcp.WithString("task_id",
			mcp.Required(),
			mcp.Description("Task ID"),
		),
	), s.handleGenerateNext)

	// recurring_complete_instance
	mcpServer.AddTool(mcp.NewTool("recurring_complete_instance",
		mcp.WithDescription("Mark an instance as completed"),
		mcp.WithString("instance_id",
			mcp.Required(),
			mcp.Description("Instance ID"),
		),
	), s.handleCompleteInstance)

	// recurring_task_stats
	mcpServer.AddTool(mcp.NewTool("recurring_task_stats",
		mcp.WithDescription("Show instance statistics for a task"),
		mcp.WithString("task_id",
			mcp.Required(),
			mcp.Description("Task ID"),
		),
	), s.handleTaskStats)

	// recurring_preview_pattern
	mcpServer.AddTool(mcp.NewTool("recurring_preview_pattern",
		mcp.WithDescription("Preview the upcoming dates of a recurrence pattern without creating a task"),
		mcp.WithString("pattern",
			mcp.Required(),
			mcp.Description("Recurrence pattern"),
			mcp.Enum("daily", "weekly", "monthly", "yearly", "custom"),
		),
		mcp.WithString("start_date",
			mcp.Required(),
			mcp.Description("Start date, RFC3339 or YYYY-MM-DD"),
		),
		mcp.WithNumber("interval",
			mcp.Description("Repeat every N pattern units, default 1"),
			mcp.Min(1),
		),
		mcp.WithString("custom_unit",
			mcp.Description("Unit for the custom pattern"),
			mcp.Enum("days", "weeks", "months"),
		),
		mcp.WithString("days_of_week",
			mcp.Description("Comma-separated weekday indices 0-6"),
		),
		mcp.WithString("month_days",
			mcp.Description("Comma-separated days of month 1-31"),
		),
		mcp.WithNumber("count",
			mcp.Description("Number of dates to preview, default 5"),
			mcp.Min(1),
			mcp.Max(50),
		),
	), s.handlePreviewPattern)

	// recurring_system_health
	mcpServer.AddTool(mcp.NewTool("recurring_system_health",
		mcp.WithDescription("Show the system health score and task counts"),
	), s.handleSystemHealth)

	s.logger.Info("MCP tools registered", "count", 10)
}

// handleCreateTask handles the recurring_create_task tool call.
func (s *MCPServer) handleCreateTask(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	cfg, err := s.parseConfig(request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	task := &core.RecurringTask{
		Title:    strings.TrimSpace(mcp.ParseString(request, "title", "")),
		Priority: core.Priority(mcp.ParseString(request, "priority", "")),
		Config:   *cfg,
	}
	if desc := mcp.ParseString(request, "description", ""); desc != "" {
		task.Description = &desc
	}

	created, err := s.facade.Manager().CreateRecurringTask(ctx, task)
	if err != nil {
		var verr *core.ValidationError
		if errors.As(err, &verr) {
			return mcp.NewToolResultError("Validation failed:\n- " + strings.Join(verr.Errors, "\n- ")), nil
		}
		s.logger.Error("create recurring task", "err", err)
		return mcp.NewToolResultError(fmt.Sprintf("Failed to create task: %v", err)), nil
	}

	result := fmt.Sprintf("Task created\nID: %s\nSchedule: %s\nState: %s",
		created.ID,
		core.FormatPattern(&created.Config),
		created.State,
	)
	return mcp.NewToolResultText(result), nil
}

// handleListTasks handles the recurring_list_tasks tool call.
func (s *MCPServer) handleListTasks(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	stateStr := mcp.ParseString(request, "state", "")
	var stateFilter *core.LifecycleState
	switch core.LifecycleState(stateStr) {
	case core.StateActive, core.StatePaused, core.StateExhausted:
		st := core.LifecycleState(stateStr)
		stateFilter = &st
	}

	tasks, err := s.facade.Manager().ListTasks(ctx, stateFilter)
	if err != nil {
		s.logger.Error("list tasks", "err", err)
		return mcp.NewToolResultError(fmt.Sprintf("Failed to list tasks: %v", err)), nil
	}

	if len(tasks) == 0 {
		return mcp.NewToolResultText("No recurring tasks found"), nil
	}

	result := fmt.Sprintf("Found %d recurring tasks:\n\n", len(tasks))
	for _, t := range tasks {
		result += fmt.Sprintf("%s %s\n", stateToIcon(t.State), t.ID)
		result += fmt.Sprintf("  Title: %s\n", t.Title)
		result += fmt.Sprintf("  Schedule: %s\n", core.FormatPattern(&t.Config))
		result += fmt.Sprintf("  State: %s\n", t.State)
		result += "\n"
	}
	return mcp.NewToolResultText(result), nil
}

// handleGetTask handles the recurring_get_task tool call.
func (s *MCPServer) handleGetTask(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	taskID := mcp.ParseString(request, "task_id", "")

	task, err := s.facade.Manager().GetTask(ctx, taskID)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return mcp.NewToolResultError(fmt.Sprintf("Task not found: %s", taskID)), nil
		}
		return mcp.NewToolResultError(fmt.Sprintf("Failed to load task: %v", err)), nil
	}
	instances, err := s.facade.Manager().ListInstances(ctx, taskID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to list instances: %v", err)), nil
	}

	result := fmt.Sprintf("Task ID: %s\n", task.ID)
	result += fmt.Sprintf("Title: %s\n", task.Title)
	if task.Description != nil {
		result += fmt.Sprintf("Description: %s\n", *task.Description)
	}
	result += fmt.Sprintf("Priority: %s\n", task.Priority)
	result += fmt.Sprintf("Schedule: %s\n", core.FormatPattern(&task.Config))
	result += fmt.Sprintf("State: %s\n", task.State)
	result += fmt.Sprintf("Created: %s\n", task.CreatedAt.In(s.location).Format("2006-01-02 15:04:05"))
	if len(instances) > 0 {
		result += fmt.Sprintf("\nInstances (%d):\n", len(instances))
		for _, inst := range instances {
			marker := " "
			if inst.Completed {
				marker = "x"
			}
			result += fmt.Sprintf("  [%s] %s  %s\n", marker, inst.Date.In(s.location).Format("2006-01-02"), inst.ID)
		}
	}
	return mcp.NewToolResultText(result), nil
}

// handlePauseTask handles the recurring_pause_task tool call.
func (s *MCPServer) handlePauseTask(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	taskID := mcp.ParseString(request, "task_id", "")

	task, err := s.facade.Manager().Pause(ctx, taskID)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return mcp.NewToolResultError(fmt.Sprintf("Task not found: %s", taskID)), nil
		}
		return mcp.NewToolResultError(fmt.Sprintf("Failed to pause task: %v", err)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Task %s is now %s", task.ID, task.State)), nil
}

// handleResumeTask handles the recurring_resume_task tool call.
func (s *MCPServer) handleResumeTask(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	taskID := mcp.ParseString(request, "task_id", "")

	task, err := s.facade.Manager().Resume(ctx, taskID)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return mcp.NewToolResultError(fmt.Sprintf("Task not found: %s", taskID)), nil
		}
		return mcp.NewToolResultError(fmt.Sprintf("Failed to resume task: %v", err)), nil
	}
	if task.State == core.StateExhausted {
		return mcp.NewToolResultText(fmt.Sprintf("Task %s is exhausted and cannot be resumed", task.ID)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Task %s is now %s", task.ID, task.State)), nil
}

// handleGenerateNext handles the recurring_generate_next tool call.
func (s *MCPServer) handleGenerateNext(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	taskID := mcp.ParseString(request, "task_id", "")

	inst, err := s.facade.Manager().GenerateNextInstance(ctx, taskID)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return mcp.NewToolResultError(fmt.Sprintf("Task not found: %s", taskID)), nil
		}
		return mcp.NewToolResultError(fmt.Sprintf("Failed to generate instance: %v", err)), nil
	}
	if inst == nil {
		task, err := s.facade.Manager().GetTask(ctx, taskID)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Failed to load task: %v", err)), nil
		}
		return mcp.NewToolResultText(fmt.Sprintf("No instance generated; task is %s", task.State)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Instance generated\nID: %s\nDate: %s",
		inst.ID,
		inst.Date.In(s.location).Format("2006-01-02"),
	)), nil
}

// handleCompleteInstance handles the recurring_complete_instance tool call.
func (s *MCPServer) handleCompleteInstance(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	instanceID := mcp.ParseString(request, "instance_id", "")

	inst, err := s.facade.Manager().CompleteInstance(ctx, instanceID)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return mcp.NewToolResultError(fmt.Sprintf("Instance not found: %s", instanceID)), nil
		}
		return mcp.NewToolResultError(fmt.Sprintf("Failed to complete instance: %v", err)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Instance completed\nID: %s\nDate: %s",
		inst.ID,
		inst.Date.In(s.location).Format("2006-01-02"),
	)), nil
}

// handleTaskStats handles the recurring_task_stats tool call.
func (s *MCPServer) handleTaskStats(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	taskID := mcp.ParseString(request, "task_id", "")

	stats, err := s.facade.Manager().Stats(ctx, taskID)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return mcp.NewToolResultError(fmt.Sprintf("Task not found: %s", taskID)), nil
		}
		return mcp.NewToolResultError(fmt.Sprintf("Failed to load stats: %v", err)), nil
	}

	result := fmt.Sprintf("Total instances: %d\n", stats.TotalInstances)
	result += fmt.Sprintf("Completed: %d\n", stats.CompletedInstances)
	result += fmt.Sprintf("Pending: %d\n", stats.PendingInstances)
	if stats.NextInstanceDate != nil {
		result += fmt.Sprintf("Next instance: %s\n", stats.NextInstanceDate.In(s.location).Format("2006-01-02"))
	} else {
		result += "Next instance: -\n"
	}
	return mcp.NewToolResultText(result), nil
}

// handlePreviewPattern handles the recurring_preview_pattern tool call.
func (s *MCPServer) handlePreviewPattern(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	cfg, err := s.parseConfig(request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	count := int(mcp.ParseFloat64(request, "count", 5))

	occs, err := core.GenerateOccurrences(cfg.StartDate, cfg, count)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Invalid pattern: %v", err)), nil
	}

	result := fmt.Sprintf("Schedule: %s\n", core.FormatPattern(cfg))
	result += fmt.Sprintf("Timezone: %s\n\n", s.location)
	result += "Upcoming dates:\n"
	for i, t := range occs {
		result += fmt.Sprintf("  %d. %s\n", i+1, t.In(s.location).Format("2006-01-02"))
	}
	return mcp.NewToolResultText(result), nil
}

// handleSystemHealth handles the recurring_system_health tool call.
func (s *MCPServer) handleSystemHealth(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	report, err := s.facade.HealthReport(ctx)
	if err != nil {
		s.logger.Error("health report", "err", err)
		return mcp.NewToolResultError(fmt.Sprintf("Failed to compute health report: %v", err)), nil
	}

	result := fmt.Sprintf("Health score: %d/100\n\n", report.Score)
	result += fmt.Sprintf("Active tasks: %d\n", report.ActiveTasks)
	result += fmt.Sprintf("Paused tasks: %d\n", report.PausedTasks)
	result += fmt.Sprintf("Exhausted tasks: %d\n", report.ExhaustedTasks)
	result += fmt.Sprintf("Completed instances: %d\n", report.CompletedOnTime)
	result += fmt.Sprintf("Overdue instances: %d\n", report.OverdueInstances)
	return mcp.NewToolResultText(result), nil
}

// parseConfig builds a recurrence config from the shared tool parameters.
func (s *MCPServer) parseConfig(request mcp.CallToolRequest) (*core.RecurrenceConfig, error) {
	cfg := &core.RecurrenceConfig{
		Pattern:      core.Pattern(mcp.ParseString(request, "pattern", "")),
		Interval:     int(mcp.ParseFloat64(request, "interval", 0)),
		CustomUnit:   core.CustomUnit(mcp.ParseString(request, "custom_unit", "")),
		EndCondition: core.EndCondition(mcp.ParseString(request, "end_condition", "")),
	}

	startStr := mcp.ParseString(request, "start_date", "")
	if startStr != "" {
		start, err := parseDate(startStr)
		if err != nil {
			return nil, fmt.Errorf("invalid start_date: %v", err)
		}
		cfg.StartDate = start
	}
	if endStr := mcp.ParseString(request, "end_date", ""); endStr != "" {
		end, err := parseDate(endStr)
		if err != nil {
			return nil, fmt.Errorf("invalid end_date: %v", err)
		}
		cfg.EndDate = &end
	}
	if max := int(mcp.ParseFloat64(request, "max_occurrences", 0)); max > 0 {
		cfg.MaxOccurrences = &max
	}

	var err error
	if cfg.DaysOfWeek, err = parseIntList(mcp.ParseString(request, "days_of_week", "")); err != nil {
		return nil, fmt.Errorf("invalid days_of_week: %v", err)
	}
	if cfg.MonthDays, err = parseIntList(mcp.ParseString(request, "month_days", "")); err != nil {
		return nil, fmt.Errorf("invalid month_days: %v", err)
	}
	if pos := int(mcp.ParseFloat64(request, "month_position", 0)); pos > 0 {
		cfg.MonthPosition = &pos
	}
	if wd := int(mcp.ParseFloat64(request, "month_weekday", -1)); wd >= 0 {
		cfg.MonthWeekday = &wd
	}
	return cfg, nil
}

// Helper functions

func parseDate(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", value)
}

func parseIntList(value string) ([]int, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	parts := strings.Split(value, ",")
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}

func stateToIcon(state core.LifecycleState) string {
	switch state {
	case core.StateActive:
		return "▶️"
	case core.StatePaused:
		return "⏸️"
	case core.StateExhausted:
		return "🏁"
	default:
		return "❓"
	}
}
