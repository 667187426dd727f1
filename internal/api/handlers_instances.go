package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
)

const defaultRegenerateCap = 10

func (s *Server) handleListInstances(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")
	instances, err := s.facade.Manager().ListInstances(r.Context(), taskID)
	if err != nil {
		s.writeCoreError(w, err, "failed to list instances")
		return
	}
	res := make([]instanceResponse, 0, len(instances))
	for _, inst := range instances {
		res = append(res, instanceToResponse(inst))
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleGenerateInstance(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")
	inst, err := s.facade.Manager().GenerateNextInstance(r.Context(), taskID)
	if err != nil {
		s.writeCoreError(w, err, "failed to generate instance")
		return
	}
	if inst == nil {
		// Paused or exhausted: nothing was generated.
		task, err := s.facade.Manager().GetTask(r.Context(), taskID)
		if err != nil {
			s.writeCoreError(w, err, "failed to load task")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"instance": nil,
			"state":    string(task.State),
		})
		return
	}
	writeJSON(w, http.StatusCreated, instanceToResponse(inst))
}

func (s *Server) handleRegenerateInstances(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")
	upTo := defaultRegenerateCap
	if raw := strings.TrimSpace(r.URL.Query().Get("up_to")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "invalid_input", "up_to must be a positive integer")
			return
		}
		upTo = n
	}
	// Optional body may replace the recurrence config before regeneration.
	if r.Body != nil && r.ContentLength != 0 {
		var body struct {
			Recurrence *recurrencePayload `json:"recurrence"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
			return
		}
		if body.Recurrence != nil {
			cfg, err := toConfig(body.Recurrence)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_input", err.Error())
				return
			}
			if err := s.facade.Manager().UpdateConfig(r.Context(), taskID, cfg); err != nil {
				s.writeCoreError(w, err, "failed to update recurrence config")
				return
			}
		}
	}

	instances, err := s.facade.Manager().RegenerateAllInstances(r.Context(), taskID, upTo)
	if err != nil {
		s.writeCoreError(w, err, "failed to regenerate instances")
		return
	}
	res := make([]instanceResponse, 0, len(instances))
	for _, inst := range instances {
		res = append(res, instanceToResponse(inst))
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleGetInstance(w http.ResponseWriter, r *http.Request) {
	instanceID := chi.URLParam(r, "instanceID")
	inst, err := s.facade.Instance(r.Context(), instanceID)
	if err != nil {
		s.writeCoreError(w, err, "failed to load instance")
		return
	}
	writeJSON(w, http.StatusOK, instanceToResponse(inst))
}

func (s *Server) handleCompleteInstance(w http.ResponseWriter, r *http.Request) {
	instanceID := chi.URLParam(r, "instanceID")
	inst, err := s.facade.Manager().CompleteInstance(r.Context(), instanceID)
	if err != nil {
		s.writeCoreError(w, err, "failed to complete instance")
		return
	}
	writeJSON(w, http.StatusOK, instanceToResponse(inst))
}
