// Package dispatcher turns one poll of the store into concurrent task runs.
package dispatcher

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"tasksched/app/services/taskrunner"
	"tasksched/domain/task"

	log "github.com/sirupsen/logrus"
)

type Runner interface {
	Run(ctx context.Context, t task.Task) taskrunner.Result
}

type Fetcher interface {
	FetchDueTasks(ctx context.Context, now time.Time) ([]task.Task, error)
}

type Config struct {
	// MaxConcurrent caps runs in flight. Zero means unbounded.
	MaxConcurrent int
}

type Dispatcher struct {
	fetcher  Fetcher
	runner   Runner
	logger   *log.Entry
	now      func() time.Time
	slots    chan struct{}
	inflight sync.Map
	wg       sync.WaitGroup
}

func New(fetcher Fetcher, runner Runner, cfg Config, logger *log.Entry) *Dispatcher {
	if logger == nil {
		logger = log.NewEntry(log.StandardLogger())
	}
	d := &Dispatcher{
		fetcher: fetcher,
		runner:  runner,
		logger:  logger,
		now:     time.Now,
	}
	if cfg.MaxConcurrent > 0 {
		d.slots = make(chan struct{}, cfg.MaxConcurrent)
	}
	return d
}

// Poll fetches due tasks and starts one run per task without waiting for
// any of them. Tasks already running in this process, or that do not fit
// under MaxConcurrent, are left for a later poll.
//
// Runs are detached from ctx cancellation so shutdown lets them finish.
func (d *Dispatcher) Poll(ctx context.Context) error {
	tasks, err := d.fetcher.FetchDueTasks(ctx, d.now())
	if err != nil {
		return fmt.Errorf("fetch due tasks: %w", err)
	}
	if len(tasks) == 0 {
		return nil
	}

	runCtx := context.WithoutCancel(ctx)
	started := 0
	for _, t := range tasks {
		key := inflightKey(t)
		if _, busy := d.inflight.LoadOrStore(key, struct{}{}); busy {
			continue
		}
		if !d.acquire() {
			d.inflight.Delete(key)
			d.logger.WithField("task", t.Name).Debug("concurrency limit reached, deferring task")
			continue
		}

		started++
		d.wg.Add(1)
		go d.run(runCtx, key, t)
	}

	d.logger.WithFields(log.Fields{"due": len(tasks), "started": started}).Debug("dispatched due tasks")
	return nil
}

func (d *Dispatcher) run(ctx context.Context, key string, t task.Task) {
	defer d.wg.Done()
	defer d.inflight.Delete(key)
	defer d.release()
	defer func() {
		if p := recover(); p != nil {
			d.logger.WithFields(log.Fields{
				"task":  t.Name,
				"panic": p,
				"stack": string(debug.Stack()),
			}).Error("task run panicked")
		}
	}()

	d.runner.Run(ctx, t)
}

func (d *Dispatcher) acquire() bool {
	if d.slots == nil {
		return true
	}
	select {
	case d.slots <- struct{}{}:
		return true
	default:
		return false
	}
}

func (d *Dispatcher) release() {
	if d.slots != nil {
		<-d.slots
	}
}

// Wait blocks until every started run has returned or ctx is done.
func (d *Dispatcher) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// InFlight reports the number of runs currently executing.
func (d *Dispatcher) InFlight() int {
	n := 0
	d.inflight.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

func inflightKey(t task.Task) string {
	return t.Name + "@" + task.NormalizeDueDate(t.DueDate).Format(time.RFC3339)
}
