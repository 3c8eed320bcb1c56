package gorm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"tasksched/domain/task"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type TaskRepository struct {
	db  *gorm.DB
	now func() time.Time
}

func NewTaskRepository(db *gorm.DB) task.Repository {
	return &TaskRepository{db: db, now: time.Now}
}

func (r *TaskRepository) FetchDueTasks(ctx context.Context, now time.Time) ([]task.Task, error) {
	tasks := []task.Task{}
	err := r.db.WithContext(ctx).
		Where("task_due_date <= ? AND task_state = ?", now.UTC(), task.StateWaitingToRun).
		Order("task_due_date asc, task_name asc").
		Find(&tasks).Error
	return tasks, err
}

// SetTaskState moves a task to state only from its single allowed
// predecessor, in one conditional UPDATE. dueDate is matched exactly as
// stored; rows written by other producers may carry seconds.
func (r *TaskRepository) SetTaskState(ctx context.Context, name string, dueDate time.Time, state task.State) error {
	from, ok := task.Predecessor(state)
	if !ok {
		return fmt.Errorf("%w: cannot move to %q", task.ErrInvalidTransition, state)
	}

	res := r.db.WithContext(ctx).Model(&task.Task{}).
		Where("task_name = ? AND task_due_date = ? AND task_state = ?", name, dueDate, from).
		Update("task_state", state)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		return nil
	}

	var current task.Task
	err := r.db.WithContext(ctx).
		Where("task_name = ? AND task_due_date = ?", name, dueDate).
		First(&current).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return task.ErrTaskNotFound
	}
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: %s -> %s", task.ErrInvalidTransition, current.State, state)
}

func (r *TaskRepository) CreateLog(ctx context.Context, taskName string) (string, error) {
	l := &task.TaskLog{
		RunID:    uuid.NewString(),
		TaskName: taskName,
		RunDate:  r.now().UTC(),
	}
	if err := r.db.WithContext(ctx).Create(l).Error; err != nil {
		return "", err
	}
	return l.RunID, nil
}

// AppendLog concatenates onto the stored text in a single statement so
// concurrent appends for one run never lose a chunk.
func (r *TaskRepository) AppendLog(ctx context.Context, runID, output, errText string) error {
	res := r.db.WithContext(ctx).Model(&task.TaskLog{}).
		Where("run_id = ? AND complete_date IS NULL", runID).
		Updates(map[string]any{
			"output": gorm.Expr(r.concat("output"), output),
			"error":  gorm.Expr(r.concat("error"), errText),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return r.closedOrMissing(ctx, runID)
	}
	return nil
}

// FinalizeLog writes return code and completion time exactly once.
func (r *TaskRepository) FinalizeLog(ctx context.Context, runID, returnCode string, completedAt time.Time) error {
	res := r.db.WithContext(ctx).Model(&task.TaskLog{}).
		Where("run_id = ? AND complete_date IS NULL", runID).
		Updates(map[string]any{
			"return_code":   returnCode,
			"complete_date": completedAt.UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return r.closedOrMissing(ctx, runID)
	}
	return nil
}

// InsertTask reports whether a new row was written; a duplicate
// (name, due date) is a no-op.
func (r *TaskRepository) InsertTask(ctx context.Context, name, command string, dueDate time.Time) (bool, error) {
	if strings.TrimSpace(name) == "" {
		return false, errors.New("task name is required")
	}
	if strings.TrimSpace(command) == "" {
		return false, errors.New("task command is required")
	}

	t := &task.Task{
		Name:    name,
		Command: command,
		DueDate: task.NormalizeDueDate(dueDate),
		State:   task.StateWaitingToRun,
	}
	res := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(t)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *TaskRepository) ListTasks(ctx context.Context, filters task.TaskFilters) ([]task.Task, error) {
	tasks := []task.Task{}
	query := r.db.WithContext(ctx)

	if filters.Name != nil {
		query = query.Where("task_name = ?", *filters.Name)
	}
	if filters.State != nil {
		query = query.Where("task_state = ?", *filters.State)
	}

	err := query.Order("task_due_date desc, task_name asc").Find(&tasks).Error
	return tasks, err
}

func (r *TaskRepository) FindLogs(ctx context.Context, taskName string) ([]task.TaskLog, error) {
	logs := []task.TaskLog{}
	err := r.db.WithContext(ctx).
		Where("task_name = ?", taskName).
		Order("run_date desc").
		Find(&logs).Error
	return logs, err
}

func (r *TaskRepository) FindLogByRunID(ctx context.Context, runID string) (*task.TaskLog, error) {
	var l task.TaskLog
	err := r.db.WithContext(ctx).First(&l, "run_id = ?", runID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, task.ErrLogNotFound
	}
	if err != nil {
		return nil, err
	}
	return &l, nil
}

// closedOrMissing explains a write that matched no open log. An unknown run
// is closed too, and also matches ErrLogNotFound.
func (r *TaskRepository) closedOrMissing(ctx context.Context, runID string) error {
	_, err := r.FindLogByRunID(ctx, runID)
	switch {
	case errors.Is(err, task.ErrLogNotFound):
		return fmt.Errorf("%w: %w", task.ErrLogClosed, task.ErrLogNotFound)
	case err != nil:
		return err
	}
	return task.ErrLogClosed
}

func (r *TaskRepository) concat(column string) string {
	if r.db.Dialector.Name() == "mysql" {
		return fmt.Sprintf("CONCAT(COALESCE(%s, ''), ?)", column)
	}
	return fmt.Sprintf("COALESCE(%s, '') || ?", column)
}
