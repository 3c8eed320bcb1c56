package task

import (
	"context"
	"time"
)

// LogAppender is the slice of Repository the output stream needs.
type LogAppender interface {
	AppendLog(ctx context.Context, runID, output, errText string) error
}

type Repository interface {
	LogAppender
	FetchDueTasks(ctx context.Context, now time.Time) ([]Task, error)
	SetTaskState(ctx context.Context, name string, dueDate time.Time, state State) error
	CreateLog(ctx context.Context, taskName string) (string, error)
	FinalizeLog(ctx context.Context, runID, returnCode string, completedAt time.Time) error
	InsertTask(ctx context.Context, name, command string, dueDate time.Time) (bool, error)
	ListTasks(ctx context.Context, filters TaskFilters) ([]Task, error)
	FindLogs(ctx context.Context, taskName string) ([]TaskLog, error)
	FindLogByRunID(ctx context.Context, runID string) (*TaskLog, error)
}
