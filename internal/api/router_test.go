package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"taskcycle/internal/core"
	"taskcycle/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, authToken string) *Server {
	t.Helper()
	mem := store.NewMemory()
	clock := core.FixedClock{T: time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)}
	manager := core.NewManager(mem, clock, slog.Default())
	facade := core.NewFacade(manager, mem, clock, slog.Default())
	s, err := NewServer("127.0.0.1:0", authToken, facade, clock, slog.Default(), time.UTC)
	require.NoError(t, err)
	return s
}

func doJSON(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out))
	return out
}

func createTaskPayload() map[string]any {
	return map[string]any{
		"title":    "Water plants",
		"priority": "high",
		"recurrence": map[string]any{
			"pattern":             "weekly",
			"interval":            2,
			"custom_days_of_week": []int{1, 3},
			"start_date":          "2026-06-08",
		},
	}
}

func createTask(t *testing.T, s *Server) string {
	t.Helper()
	rec := doJSON(t, s, http.MethodPost, "/v1/tasks", createTaskPayload())
	require.Equal(t, http.StatusCreated, rec.Code)
	body := decodeBody(t, rec)
	id, _ := body["id"].(string)
	require.NotEmpty(t, id)
	return id
}

func TestCreateTask(t *testing.T) {
	s := newTestServer(t, "")

	rec := doJSON(t, s, http.MethodPost, "/v1/tasks", createTaskPayload())
	require.Equal(t, http.StatusCreated, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, "Water plants", body["title"])
	assert.Equal(t, "high", body["priority"])
	assert.Equal(t, "active", body["state"])
	assert.Equal(t, "Every 2 weeks on Mon, Wed", body["schedule"])
}

func TestCreateTaskValidationFailure(t *testing.T) {
	s := newTestServer(t, "")

	payload := map[string]any{
		"recurrence": map[string]any{
			"pattern":    "daily",
			"start_date": "2026-01-01",
		},
	}
	rec := doJSON(t, s, http.MethodPost, "/v1/tasks", payload)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	body := decodeBody(t, rec)
	errObj, ok := body["error"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "validation_failed", errObj["code"])
	errList, ok := errObj["errors"].([]any)
	require.True(t, ok)
	assert.Contains(t, errList, "Task title is required")
	assert.Contains(t, errList, "Start date cannot be in the past")
}

func TestCreateTaskInvalidJSON(t *testing.T) {
	s := newTestServer(t, "")

	req := httptest.NewRequest(http.MethodPost, "/v1/tasks", bytes.NewBufferString("{"))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetTaskNotFound(t *testing.T) {
	s := newTestServer(t, "")

	rec := doJSON(t, s, http.MethodGet, "/v1/tasks/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListTasksRejectsUnknownState(t *testing.T) {
	s := newTestServer(t, "")

	rec := doJSON(t, s, http.MethodGet, "/v1/tasks?state=running", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPauseResumeRoundTrip(t *testing.T) {
	s := newTestServer(t, "")
	id := createTask(t, s)

	rec := doJSON(t, s, http.MethodPost, "/v1/tasks/"+id+"/pause", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "paused", decodeBody(t, rec)["state"])

	rec = doJSON(t, s, http.MethodPost, "/v1/tasks/"+id+"/resume", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "active", decodeBody(t, rec)["state"])
}

func TestGenerateAndCompleteInstance(t *testing.T) {
	s := newTestServer(t, "")
	id := createTask(t, s)

	rec := doJSON(t, s, http.MethodPost, "/v1/tasks/"+id+"/instances/generate", nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	inst := decodeBody(t, rec)
	instID, _ := inst["id"].(string)
	require.NotEmpty(t, instID)
	assert.Equal(t, "2026-06-08T00:00:00Z", inst["date"])

	rec = doJSON(t, s, http.MethodPost, "/v1/instances/"+instID+"/complete", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	completed := decodeBody(t, rec)
	assert.Equal(t, true, completed["completed"])
	assert.NotEmpty(t, completed["completed_at"])

	rec = doJSON(t, s, http.MethodGet, "/v1/tasks/"+id+"/instances", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list []map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&list))
	assert.Len(t, list, 1)
}

func TestGenerateOnPausedTaskReturnsState(t *testing.T) {
	s := newTestServer(t, "")
	id := createTask(t, s)

	rec := doJSON(t, s, http.MethodPost, "/v1/tasks/"+id+"/pause", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, s, http.MethodPost, "/v1/tasks/"+id+"/instances/generate", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Nil(t, body["instance"])
	assert.Equal(t, "paused", body["state"])
}

func TestRegenerateInstances(t *testing.T) {
	s := newTestServer(t, "")
	id := createTask(t, s)

	rec := doJSON(t, s, http.MethodPost, "/v1/tasks/"+id+"/instances/regenerate?up_to=3", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var list []map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&list))
	assert.Len(t, list, 3)
}

func TestTaskStats(t *testing.T) {
	s := newTestServer(t, "")
	id := createTask(t, s)

	rec := doJSON(t, s, http.MethodPost, "/v1/tasks/"+id+"/instances/generate", nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, s, http.MethodGet, "/v1/tasks/"+id+"/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, float64(1), body["total_instances"])
	assert.Equal(t, float64(1), body["pending_instances"])
	assert.NotEmpty(t, body["next_instance_date"])
}

func TestPatternPreview(t *testing.T) {
	s := newTestServer(t, "")

	payload := map[string]any{
		"recurrence": map[string]any{
			"pattern":    "daily",
			"start_date": "2026-06-08",
		},
		"count": 3,
	}
	rec := doJSON(t, s, http.MethodPost, "/v1/patterns/preview", payload)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, "Every day", body["schedule"])
	dates, ok := body["next_dates"].([]any)
	require.True(t, ok)
	require.Len(t, dates, 3)
	assert.Equal(t, "2026-06-08T00:00:00Z", dates[0])
}

func TestPatternValidate(t *testing.T) {
	s := newTestServer(t, "")

	// The start date is judged against the server's clock, so a date just
	// before the fixed 2026-06-01 clock is deterministically "in the past".
	payload := map[string]any{
		"recurrence": map[string]any{
			"pattern":             "weekly",
			"custom_days_of_week": []int{9},
			"start_date":          "2026-05-31",
		},
	}
	rec := doJSON(t, s, http.MethodPost, "/v1/patterns/validate", payload)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, false, body["valid"])
	errList, ok := body["errors"].([]any)
	require.True(t, ok)
	assert.Contains(t, errList, "Weekday index 9 is out of range (0-6)")
	assert.Contains(t, errList, "Start date cannot be in the past")
}

func TestPatternPreviewDefaultsAnchorToClock(t *testing.T) {
	s := newTestServer(t, "")

	payload := map[string]any{
		"recurrence": map[string]any{"pattern": "daily"},
		"count":      2,
	}
	rec := doJSON(t, s, http.MethodPost, "/v1/patterns/preview", payload)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	dates, ok := body["next_dates"].([]any)
	require.True(t, ok)
	require.Len(t, dates, 2)
	assert.Equal(t, "2026-06-01T00:00:00Z", dates[0])
	assert.Equal(t, "2026-06-02T00:00:00Z", dates[1])
}

func TestSystemEndpoints(t *testing.T) {
	s := newTestServer(t, "")
	createTask(t, s)

	rec := doJSON(t, s, http.MethodGet, "/v1/system/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	stats := decodeBody(t, rec)
	assert.Equal(t, float64(1), stats["total_tasks"])

	rec = doJSON(t, s, http.MethodGet, "/v1/system/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	health := decodeBody(t, rec)
	assert.Equal(t, float64(100), health["score"])
	assert.Equal(t, float64(1), health["active_tasks"])
}

func TestAuthMiddleware(t *testing.T) {
	s := newTestServer(t, "secret")

	req := httptest.NewRequest(http.MethodGet, "/v1/tasks", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/v1/tasks", nil)
	req.Header.Set("Authorization", "Bearer secret")
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/v1/tasks?token=secret", nil)
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestDeleteTask(t *testing.T) {
	s := newTestServer(t, "")
	id := createTask(t, s)

	rec := doJSON(t, s, http.MethodDelete, "/v1/tasks/"+id, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = doJSON(t, s, http.MethodGet, fmt.Sprintf("/v1/tasks/%s", id), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
