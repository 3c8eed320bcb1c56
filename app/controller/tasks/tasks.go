// Package tasks serves task submission and run log inspection.
package tasks

import (
	"context"
	"errors"
	"net/http"
	"time"

	"tasksched/app/services/taskproducer"
	"tasksched/domain/task"

	"github.com/labstack/echo/v4"
)

type (
	Store interface {
		ListTasks(ctx context.Context, filters task.TaskFilters) ([]task.Task, error)
		FindLogs(ctx context.Context, taskName string) ([]task.TaskLog, error)
		FindLogByRunID(ctx context.Context, runID string) (*task.TaskLog, error)
	}
	Submitter interface {
		Insert(ctx context.Context, name, command string, dueDate time.Time) (bool, error)
	}
	Handler struct {
		store     Store
		submitter Submitter
		now       func() time.Time
	}
	TaskRequest struct {
		Name    string     `json:"name" validate:"required,max=255"`
		Command string     `json:"command" validate:"required"`
		DueDate *time.Time `json:"due_date"`
	}
	TaskResponse struct {
		Name     string     `json:"name"`
		Command  string     `json:"command"`
		DueDate  time.Time  `json:"due_date"`
		State    task.State `json:"state"`
		Inserted bool       `json:"inserted"`
	}
)

func NewHandler(store Store, submitter Submitter) *Handler {
	return &Handler{store: store, submitter: submitter, now: time.Now}
}

// Create inserts a task. A missing due date means now. Answers 201 for a
// new task and 200 when the same name and due date already exist.
func (h Handler) Create(c echo.Context) error {
	var req TaskRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request"})
	}

	if err := c.Validate(&req); err != nil {
		return err
	}

	if err := taskproducer.ValidateCommand(req.Command); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}

	due := h.now()
	if req.DueDate != nil {
		due = *req.DueDate
	}
	due = task.NormalizeDueDate(due)

	inserted, err := h.submitter.Insert(c.Request().Context(), req.Name, req.Command, due)
	if err != nil {
		if errors.Is(err, taskproducer.ErrEmptyName) || errors.Is(err, taskproducer.ErrEmptyCommand) {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
		}
		return c.JSON(http.StatusInternalServerError, map[string]string{
			"error": "Failed to save task: " + err.Error(),
		})
	}

	status := http.StatusOK
	if inserted {
		status = http.StatusCreated
	}
	return c.JSON(status, TaskResponse{
		Name:     req.Name,
		Command:  req.Command,
		DueDate:  due,
		State:    task.StateWaitingToRun,
		Inserted: inserted,
	})
}

func (h Handler) Index(c echo.Context) error {
	var filters task.TaskFilters

	if name := c.QueryParam("name"); name != "" {
		filters.Name = &name
	}

	if s := c.QueryParam("state"); s != "" {
		state := task.State(s)
		if !state.Valid() {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "Unknown state: " + s})
		}
		filters.State = &state
	}

	tasks, err := h.store.ListTasks(c.Request().Context(), filters)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{
			"error": "Failed to fetch tasks: " + err.Error(),
		})
	}

	return c.JSON(http.StatusOK, tasks)
}

func (h Handler) Logs(c echo.Context) error {
	logs, err := h.store.FindLogs(c.Request().Context(), c.Param("name"))
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{
			"error": "Failed to fetch logs: " + err.Error(),
		})
	}

	return c.JSON(http.StatusOK, logs)
}

func (h Handler) Log(c echo.Context) error {
	entry, err := h.store.FindLogByRunID(c.Request().Context(), c.Param("run_id"))
	if err != nil {
		if errors.Is(err, task.ErrLogNotFound) {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "Log not found"})
		}
		return c.JSON(http.StatusInternalServerError, map[string]string{
			"error": "Failed to fetch log: " + err.Error(),
		})
	}

	return c.JSON(http.StatusOK, entry)
}

func (h *Handler) RegisterRoutes(tasks, logs *echo.Group) {
	tasks.POST("", h.Create)
	tasks.GET("", h.Index)
	tasks.GET("/:name/logs", h.Logs)
	logs.GET("/:run_id", h.Log)
}
