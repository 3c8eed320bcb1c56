package task

import (
	"errors"
	"time"
)

var (
	ErrTaskNotFound      = errors.New("task not found")
	ErrInvalidTransition = errors.New("invalid task state transition")
	ErrLogNotFound       = errors.New("task log not found")
	ErrLogClosed         = errors.New("task log already finalized")
)

// ReturnCodeExecutorError marks a run whose executor failed before a
// process exit status could be obtained.
const ReturnCodeExecutorError = "executor_error"

type State string

const (
	StateWaitingToRun State = "waiting_to_run"
	StateRunning      State = "running"
	StateCompleted    State = "completed"
	StateFailed       State = "failed"
)

// predecessors lists, for every target state, the only state a task may
// move from.
var predecessors = map[State]State{
	StateRunning:   StateWaitingToRun,
	StateCompleted: StateRunning,
	StateFailed:    StateRunning,
}

// Predecessor returns the state a task must be in to move to s.
func Predecessor(s State) (State, bool) {
	p, ok := predecessors[s]
	return p, ok
}

func (s State) Valid() bool {
	switch s {
	case StateWaitingToRun, StateRunning, StateCompleted, StateFailed:
		return true
	}
	return false
}

func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// Task is keyed by (Name, DueDate).
type Task struct {
	Name    string    `json:"name" gorm:"column:task_name;primaryKey;size:255"`
	Command string    `json:"command" gorm:"column:task_command;not null"`
	DueDate time.Time `json:"due_date" gorm:"column:task_due_date;primaryKey;index:idx_tasks_due_state,priority:1"`
	State   State     `json:"state" gorm:"column:task_state;size:32;not null;default:waiting_to_run;index:idx_tasks_due_state,priority:2"`
}

func (Task) TableName() string {
	return "tasks"
}

// TaskLog is the record of one execution attempt.
type TaskLog struct {
	RunID        string     `json:"run_id" gorm:"column:run_id;primaryKey;size:36"`
	TaskName     string     `json:"task_name" gorm:"column:task_name;size:255;index;not null"`
	RunDate      time.Time  `json:"run_date" gorm:"column:run_date;not null"`
	Output       string     `json:"output" gorm:"column:output;not null;default:''"`
	Error        string     `json:"error" gorm:"column:error;not null;default:''"`
	CompleteDate *time.Time `json:"complete_date,omitempty" gorm:"column:complete_date"`
	ReturnCode   *string    `json:"return_code,omitempty" gorm:"column:return_code;size:64"`
}

func (TaskLog) TableName() string {
	return "task_log"
}

func (l TaskLog) Completed() bool {
	return l.CompleteDate != nil
}

type TaskFilters struct {
	Name  *string
	State *State
}

// NormalizeDueDate truncates a due date to minute granularity in UTC.
func NormalizeDueDate(t time.Time) time.Time {
	return t.UTC().Truncate(time.Minute)
}
