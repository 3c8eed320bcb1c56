package config

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"tasksched/app"
	"tasksched/domain/task"
	"tasksched/internal/logging"
	"tasksched/internal/validator"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupServer(t *testing.T) *echo.Echo {
	t.Helper()
	cfg := app.NewConfig().WithDBURL("file:" + t.TempDir() + "/routes.sqlite")
	a := app.New(cfg, logging.Discard())
	require.NoError(t, a.Open())
	t.Cleanup(func() { a.Stop(context.Background()) })

	e := echo.New()
	e.Validator = validator.New()
	require.NoError(t, AddRoutes(e, a.Container()))
	return e
}

func do(e *echo.Echo, method, target string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestRoutes_Health(t *testing.T) {
	e := setupServer(t)

	rec := do(e, http.MethodGet, "/health", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"ok":true`)
}

func TestRoutes_SubmitAndList(t *testing.T) {
	e := setupServer(t)
	body := map[string]string{"name": "backup", "command": "echo hi", "due_date": "2026-06-01T10:00:00Z"}

	rec := do(e, http.MethodPost, "/api/v1/tasks", body)
	assert.Equal(t, http.StatusCreated, rec.Code)

	rec = do(e, http.MethodPost, "/api/v1/tasks", body)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(e, http.MethodGet, "/api/v1/tasks?state=waiting_to_run", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var tasks []task.Task
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &tasks))
	require.Len(t, tasks, 1)
	assert.Equal(t, "backup", tasks[0].Name)
}

func TestRoutes_UnknownRun(t *testing.T) {
	e := setupServer(t)

	rec := do(e, http.MethodGet, "/api/v1/logs/does-not-exist", nil)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRoutes_TaskLogsEmpty(t *testing.T) {
	e := setupServer(t)

	rec := do(e, http.MethodGet, "/api/v1/tasks/backup/logs", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())
}
