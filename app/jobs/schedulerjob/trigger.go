package schedulerjob

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
)

type TriggerConfig struct {
	Interval time.Duration
	// Logger receives failed cycles. Nil uses the standard logger.
	Logger *log.Entry
}

func DefaultTriggerConfig() TriggerConfig {
	return TriggerConfig{
		Interval: 5 * time.Second,
	}
}

// TriggerWithConfig calls fn once right away and then every Interval until
// ctx is done. A failing cycle is logged and the next one still runs.
func TriggerWithConfig(ctx context.Context, fn func() error, config TriggerConfig) {
	if config.Interval <= 0 {
		config.Interval = DefaultTriggerConfig().Interval
	}
	if config.Logger == nil {
		config.Logger = log.NewEntry(log.StandardLogger())
	}

	for {
		if ctx.Err() != nil {
			return
		}
		if err := fn(); err != nil {
			config.Logger.WithError(err).Error("scheduler cycle failed")
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(config.Interval):
		}
	}
}

func Trigger(ctx context.Context, fn func() error) {
	TriggerWithConfig(ctx, fn, DefaultTriggerConfig())
}

// IntervalTrigger binds a poll interval and logger to a TriggerFunc.
func IntervalTrigger(interval time.Duration, logger *log.Entry) TriggerFunc {
	return func(ctx context.Context, fn func() error) {
		TriggerWithConfig(ctx, fn, TriggerConfig{Interval: interval, Logger: logger})
	}
}
