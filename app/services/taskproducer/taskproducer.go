// Package taskproducer inserts tasks into the store, one at a time or
// expanded from a cron expression.
package taskproducer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"tasksched/domain/task"

	"github.com/mattn/go-shellwords"
	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"
)

var (
	ErrEmptyName    = errors.New("task name is required")
	ErrEmptyCommand = errors.New("task command is required")
	ErrInvalidCount = errors.New("count must be positive")
)

// MaxScheduleCount bounds how many occurrences one Schedule call inserts.
const MaxScheduleCount = 1000

type Inserter interface {
	InsertTask(ctx context.Context, name, command string, dueDate time.Time) (bool, error)
}

type Producer struct {
	repo   Inserter
	parser cron.Parser
	logger *log.Entry
}

// ScheduleResult lists the occurrences a Schedule call produced.
type ScheduleResult struct {
	Inserted   []time.Time
	Duplicates []time.Time
}

func New(repo Inserter, logger *log.Entry) *Producer {
	if logger == nil {
		logger = log.NewEntry(log.StandardLogger())
	}
	return &Producer{
		repo:   repo,
		parser: cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
		logger: logger,
	}
}

// ValidateCommand rejects commands the shell could not tokenize, such as
// unbalanced quotes.
func ValidateCommand(command string) error {
	if strings.TrimSpace(command) == "" {
		return ErrEmptyCommand
	}
	if _, err := shellwords.Parse(command); err != nil {
		return fmt.Errorf("invalid command syntax: %w", err)
	}
	return nil
}

// Insert stores one task due at dueDate, truncated to the minute. It
// reports false when the (name, due date) pair already exists.
func (p *Producer) Insert(ctx context.Context, name, command string, dueDate time.Time) (bool, error) {
	if strings.TrimSpace(name) == "" {
		return false, ErrEmptyName
	}
	if err := ValidateCommand(command); err != nil {
		return false, err
	}

	dueDate = task.NormalizeDueDate(dueDate)
	inserted, err := p.repo.InsertTask(ctx, name, command, dueDate)
	if err != nil {
		return false, fmt.Errorf("insert task %s: %w", name, err)
	}

	p.logger.WithFields(log.Fields{
		"task":     name,
		"due_date": dueDate.Format(time.RFC3339),
		"inserted": inserted,
	}).Debug("task submitted")
	return inserted, nil
}

// Schedule inserts the next count occurrences of expr after from. Running
// it again over an overlapping window only reports duplicates.
func (p *Producer) Schedule(ctx context.Context, name, command, expr string, from time.Time, count int) (ScheduleResult, error) {
	var res ScheduleResult
	if count <= 0 || count > MaxScheduleCount {
		return res, fmt.Errorf("%w: got %d, max %d", ErrInvalidCount, count, MaxScheduleCount)
	}

	schedule, err := p.parser.Parse(expr)
	if err != nil {
		return res, fmt.Errorf("parse cron expression %q: %w", expr, err)
	}

	next := from.UTC()
	for i := 0; i < count; i++ {
		next = schedule.Next(next)
		if next.IsZero() {
			break
		}

		inserted, err := p.Insert(ctx, name, command, next)
		if err != nil {
			return res, err
		}
		if inserted {
			res.Inserted = append(res.Inserted, next)
		} else {
			res.Duplicates = append(res.Duplicates, next)
		}
	}
	return res, nil
}
