// Package taskrunner drives one task execution from waiting_to_run to a
// terminal state.
package taskrunner

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strconv"
	"time"

	"tasksched/domain/task"
	"tasksched/internal/cmdexec"
	"tasksched/internal/logstream"

	log "github.com/sirupsen/logrus"
)

type Config struct {
	FlushInterval time.Duration
	// CommandTimeout of zero lets a command run for as long as it takes.
	CommandTimeout time.Duration
}

// Result describes how far one invocation got. Err is set when a store
// write failed and the task was left in State; State is empty when the
// claim lost to another runner. ExecErr is set when the executor could
// not run the command.
type Result struct {
	RunID      string
	ReturnCode string
	State      task.State
	Err        error
	ExecErr    error
}

type TaskRunner struct {
	repo     task.Repository
	executor cmdexec.Executor
	config   Config
	logger   *log.Entry
	now      func() time.Time
}

func New(repo task.Repository, executor cmdexec.Executor, cfg Config, logger *log.Entry) *TaskRunner {
	if logger == nil {
		logger = log.NewEntry(log.StandardLogger())
	}
	return &TaskRunner{
		repo:     repo,
		executor: executor,
		config:   cfg,
		logger:   logger,
		now:      time.Now,
	}
}

// Run executes t once. Steps are strictly sequential: claim, create log,
// execute with streaming, finalize log, record terminal state. A failed
// store write stops the invocation where it is.
func (r *TaskRunner) Run(ctx context.Context, t task.Task) Result {
	logger := r.logger.WithFields(log.Fields{
		"task":     t.Name,
		"due_date": t.DueDate.UTC().Format(time.RFC3339),
	})

	if err := r.repo.SetTaskState(ctx, t.Name, t.DueDate, task.StateRunning); err != nil {
		logger.WithError(err).Error("failed to mark task running")
		res := Result{Err: fmt.Errorf("mark running: %w", err)}
		// Another claimant or a missing row leaves the state unknown here.
		if !errors.Is(err, task.ErrInvalidTransition) && !errors.Is(err, task.ErrTaskNotFound) {
			res.State = task.StateWaitingToRun
		}
		return res
	}

	runID, err := r.repo.CreateLog(ctx, t.Name)
	if err != nil {
		logger.WithError(err).Error("failed to create task log")
		return Result{State: task.StateRunning, Err: fmt.Errorf("create log: %w", err)}
	}
	logger = logger.WithField("run_id", runID)
	logger.Info("task started")

	code, execErr := r.execute(ctx, t.Command, runID, logger)

	returnCode := strconv.Itoa(code)
	state := task.StateCompleted
	switch {
	case execErr != nil:
		returnCode = task.ReturnCodeExecutorError
		state = task.StateFailed
		logger.WithError(execErr).Warn("executor failed")
	case code != 0:
		state = task.StateFailed
	}
	res := Result{RunID: runID, ReturnCode: returnCode, State: task.StateRunning, ExecErr: execErr}

	if err := r.repo.FinalizeLog(ctx, runID, returnCode, r.now()); err != nil {
		logger.WithError(err).Error("failed to finalize task log")
		res.Err = fmt.Errorf("finalize log: %w", err)
		return res
	}

	if err := r.repo.SetTaskState(ctx, t.Name, t.DueDate, state); err != nil {
		logger.WithError(err).Error("failed to record task outcome")
		res.Err = fmt.Errorf("mark %s: %w", state, err)
		return res
	}
	res.State = state

	logger.WithFields(log.Fields{"return_code": returnCode, "state": state}).Info("task finished")
	return res
}

// execute runs the command with output streamed into the run's log. An
// executor error or a panic is written to the error stream before the
// final flush.
func (r *TaskRunner) execute(ctx context.Context, command, runID string, logger *log.Entry) (code int, err error) {
	execCtx := ctx
	if r.config.CommandTimeout > 0 {
		var cancel context.CancelFunc
		execCtx, cancel = context.WithTimeoutCause(ctx, r.config.CommandTimeout,
			fmt.Errorf("command timed out after %s", r.config.CommandTimeout))
		defer cancel()
	}

	stream := logstream.New(ctx, r.repo, runID, logstream.Options{
		FlushInterval: r.config.FlushInterval,
		Logger:        logger,
	})

	defer func() {
		if p := recover(); p != nil {
			code, err = -1, fmt.Errorf("panic during execution: %v", p)
			logger.WithField("stack", string(debug.Stack())).Error("recovered from panic")
		}
		if err != nil {
			fmt.Fprintln(stream.Stderr(), err.Error())
		}
		if closeErr := stream.Close(ctx); closeErr != nil {
			logger.WithError(closeErr).Error("failed to flush remaining task output")
		}
	}()

	return r.executor.Execute(execCtx, command, stream.Stdout(), stream.Stderr())
}
