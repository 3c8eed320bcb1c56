// Package schedulerjob polls the task store on a fixed cadence.
package schedulerjob

import (
	"context"
	"sync"
)

type TriggerFunc func(context.Context, func() error)

// Poller runs one scheduling cycle.
type Poller interface {
	Poll(ctx context.Context) error
}

type SchedulerJobConfig struct {
	Trigger TriggerFunc
}

type SchedulerJob struct {
	config SchedulerJobConfig
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New() SchedulerJob {
	return NewWithConfig(SchedulerJobConfig{
		Trigger: Trigger,
	})
}

func NewWithConfig(cfg SchedulerJobConfig) SchedulerJob {
	if cfg.Trigger == nil {
		cfg.Trigger = Trigger
	}

	return SchedulerJob{
		config: cfg,
	}
}

func (sj *SchedulerJob) Register(ctx context.Context, poller Poller) context.CancelFunc {
	ctx, cancel := context.WithCancel(ctx)
	sj.cancel = cancel

	sj.wg.Add(1)
	go func() {
		defer sj.wg.Done()
		sj.config.Trigger(ctx, func() error {
			return poller.Poll(ctx)
		})
	}()

	return cancel
}

// Shutdown stops polling. Runs already dispatched are not waited for.
func (sj *SchedulerJob) Shutdown() {
	if sj.cancel != nil {
		sj.cancel()
	}
	sj.wg.Wait()
}
