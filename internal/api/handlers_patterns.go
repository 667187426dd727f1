package api

import (
	"encoding/json"
	"net/http"
	"time"

	"taskcycle/internal/core"
)

const (
	defaultPreviewCount = 5
	maxPreviewCount     = 100
)

type patternPreviewRequest struct {
	Recurrence *recurrencePayload `json:"recurrence"`
	Anchor     string             `json:"anchor,omitempty"`
	Count      int                `json:"count,omitempty"`
}

func (s *Server) handlePatternPreview(w http.ResponseWriter, r *http.Request) {
	var req patternPreviewRequest
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
	count := req.Count
	if count <= 0 {
		count = defaultPreviewCount
	}
	if count > maxPreviewCount {
		count = maxPreviewCount
	}
	anchor := cfg.StartDate
	if req.Anchor != "" {
		anchor, err = parseDate(req.Anchor)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_input", "invalid anchor date")
			return
		}
	}
	if anchor.IsZero() {
		anchor = s.clock.Now().In(s.location)
	}

	occs, err := core.GenerateOccurrences(anchor, cfg, count)
	if err != nil {
		s.writeCoreError(w, err, "failed to preview pattern")
		return
	}
	dates := make([]string, 0, len(occs))
	for _, d := range occs {
		dates = append(dates, d.UTC().Format(time.RFC3339))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"schedule":   core.FormatPattern(cfg),
		"next_dates": dates,
	})
}

type validateRequest struct {
	Title      string             `json:"title,omitempty"`
	DueDate    *string            `json:"due_date,omitempty"`
	ParentID   *string            `json:"parent_id,omitempty"`
	Recurrence *recurrencePayload `json:"recurrence"`
}

func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	var req validateRequest
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

	var task *core.RecurringTask
	if req.Title != "" || req.DueDate != nil || req.ParentID != nil {
		task = &core.RecurringTask{
			Title:    req.Title,
			ParentID: req.ParentID,
			Config:   *cfg,
		}
		if req.DueDate != nil {
			due, err := parseDate(*req.DueDate)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_input", "invalid due_date")
				return
			}
			task.DueDate = &due
		}
	}

	now := s.clock.Now().In(s.location)
	var res core.Result
	if task != nil {
		res = core.ValidateFull(task, cfg, now)
	} else {
		res = core.ValidateConfigFull(cfg, now)
	}
	perf := core.ValidatePerformance(cfg)

	writeJSON(w, http.StatusOK, map[string]any{
		"valid":                res.Valid,
		"errors":               res.Errors,
		"warnings":             res.Warnings,
		"performance_safe":     perf.Safe,
		"performance_warnings": perf.Warnings,
	})
}
