package app

import (
	"context"
	"fmt"

	"tasksched/app/jobs/schedulerjob"
	"tasksched/app/services/dispatcher"
	"tasksched/app/services/taskproducer"
	"tasksched/app/services/taskrunner"
	"tasksched/domain/task"
	"tasksched/internal/dbconn"
	gormRepo "tasksched/internal/repository/gorm"

	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

type Container struct {
	DB             *gorm.DB
	TaskRepository task.Repository
	Producer       *taskproducer.Producer
	Runner         *taskrunner.TaskRunner
	Dispatcher     *dispatcher.Dispatcher
}

func NewContainer(db *gorm.DB, cfg *Config, logger *log.Logger) *Container {
	entry := log.NewEntry(logger)

	// Initialize repositories
	taskRepo := gormRepo.NewTaskRepository(db)

	// Initialize services
	runner := taskrunner.New(taskRepo, cfg.Executor(entry), taskrunner.Config{
		FlushInterval:  cfg.FlushInterval,
		CommandTimeout: cfg.CommandTimeout,
	}, entry)

	return &Container{
		DB:             db,
		TaskRepository: taskRepo,
		Producer:       taskproducer.New(taskRepo, entry),
		Runner:         runner,
		Dispatcher:     dispatcher.New(taskRepo, runner, dispatcher.Config{MaxConcurrent: cfg.MaxConcurrent}, entry),
	}
}

func (c *Container) Migrate() error {
	return dbconn.Migrate(c.DB)
}

// App owns the store connection and the polling job.
type App struct {
	config    *Config
	logger    *log.Logger
	db        *gorm.DB
	container *Container
	job       schedulerjob.SchedulerJob
}

func New(cfg *Config, logger *log.Logger) *App {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &App{config: cfg, logger: logger}
}

// Open connects to the store and migrates the schema without starting
// the scheduler.
func (a *App) Open() error {
	if a.db != nil {
		return nil
	}

	db, err := dbconn.Open(a.config.DBOptions()...)
	if err != nil {
		return fmt.Errorf("db connection failed: %w", err)
	}

	container := NewContainer(db, a.config, a.logger)
	if err := container.Migrate(); err != nil {
		dbconn.Close(db)
		return fmt.Errorf("migration failed: %w", err)
	}

	a.db = db
	a.container = container
	return nil
}

// Start opens the store and begins polling every PollInterval.
func (a *App) Start(ctx context.Context) error {
	if err := a.config.Validate(); err != nil {
		return err
	}
	if err := a.Open(); err != nil {
		return err
	}

	a.job = schedulerjob.NewWithConfig(schedulerjob.SchedulerJobConfig{
		Trigger: schedulerjob.IntervalTrigger(a.config.PollInterval, log.NewEntry(a.logger)),
	})
	a.job.Register(ctx, a.container.Dispatcher)

	a.logger.WithFields(log.Fields{
		"dialect":        a.config.DBDialect,
		"local_mode":     a.config.LocalMode,
		"poll_interval":  a.config.PollInterval,
		"max_concurrent": a.config.MaxConcurrent,
	}).Info("scheduler started")
	return nil
}

// Stop halts polling, waits for in-flight runs until ctx is done, and
// closes the store connection.
func (a *App) Stop(ctx context.Context) error {
	a.job.Shutdown()

	var waitErr error
	if a.container != nil {
		if waitErr = a.container.Dispatcher.Wait(ctx); waitErr != nil {
			a.logger.WithField("in_flight", a.container.Dispatcher.InFlight()).
				Warn("shutdown grace period ended with tasks still running")
		}
	}

	if err := dbconn.Close(a.db); err != nil {
		return err
	}
	a.db = nil
	return waitErr
}

func (a *App) Container() *Container {
	return a.container
}
