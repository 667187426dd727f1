package api

import (
	"net/http"
	"time"
)

func (s *Server) handleSystemStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.facade.SystemStatistics(r.Context())
	if err != nil {
		s.writeCoreError(w, err, "failed to compute system statistics")
		return
	}
	byPattern := make(map[string]int, len(stats.TasksByPattern))
	for p, n := range stats.TasksByPattern {
		byPattern[string(p)] = n
	}
	byState := make(map[string]int, len(stats.TasksByState))
	for st, n := range stats.TasksByState {
		byState[string(st)] = n
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"total_tasks":      stats.TotalTasks,
		"tasks_by_pattern": byPattern,
		"tasks_by_state":   byState,
		"total_instances":  stats.TotalInstances,
		"completed_count":  stats.CompletedCount,
		"completion_rate":  stats.CompletionRate,
	})
}

func (s *Server) handleSystemHealth(w http.ResponseWriter, r *http.Request) {
	report, err := s.facade.HealthReport(r.Context())
	if err != nil {
		s.writeCoreError(w, err, "failed to compute health report")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"score":             report.Score,
		"completed_on_time": report.CompletedOnTime,
		"overdue_instances": report.OverdueInstances,
		"active_tasks":      report.ActiveTasks,
		"paused_tasks":      report.PausedTasks,
		"exhausted_tasks":   report.ExhaustedTasks,
		"generated_at":      report.GeneratedAt.UTC().Format(time.RFC3339),
	})
}
