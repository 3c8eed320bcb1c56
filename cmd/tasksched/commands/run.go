package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"tasksched/app"
	"tasksched/config"
	"tasksched/internal/logging"
	"tasksched/internal/validator"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	glog "github.com/labstack/gommon/log"
	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v3"
)

// RunCommand returns the long running scheduler command
func RunCommand() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "Poll the task store and execute due tasks until interrupted",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "http-addr",
				Usage: "Serve the task API on this address (overrides TASKSCHED_HTTP_ADDR)",
			},
			&cli.BoolFlag{
				Name:  "local",
				Usage: "Run commands on this host instead of over SSH (overrides LOCAL_MODE)",
			},
			&cli.DurationFlag{
				Name:  "grace",
				Usage: "How long shutdown waits for running tasks",
				Value: 30 * time.Second,
			},
		},
		Action: runAction,
	}
}

func runAction(ctx context.Context, c *cli.Command) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	logger, cleanup, err := logging.New(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := WatchSignals(cancel)
	defer stop()

	a := app.New(cfg, logger)
	if err := a.Start(ctx); err != nil {
		return err
	}

	var e *echo.Echo
	if cfg.HTTPAddr != "" {
		e, err = newServer(a.Container(), logger)
		if err != nil {
			a.Stop(context.Background())
			return err
		}
		go func() {
			if err := e.Start(cfg.HTTPAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.WithError(err).Error("http server stopped")
				cancel()
			}
		}()
		logger.WithField("addr", cfg.HTTPAddr).Info("task API listening")
	}

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, done := context.WithTimeout(context.Background(), c.Duration("grace"))
	defer done()

	if e != nil {
		if err := e.Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).Warn("http server shutdown failed")
		}
	}

	if err := a.Stop(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func newServer(container *app.Container, logger *log.Logger) (*echo.Echo, error) {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Logger.SetLevel(echoLevel(logger.GetLevel()))
	e.Validator = validator.New()

	e.Use(middleware.Logger())
	e.Use(middleware.Recover())

	if err := config.AddRoutes(e, container); err != nil {
		return nil, err
	}
	return e, nil
}

func echoLevel(level log.Level) glog.Lvl {
	switch level {
	case log.TraceLevel, log.DebugLevel:
		return glog.DEBUG
	case log.InfoLevel:
		return glog.INFO
	case log.WarnLevel:
		return glog.WARN
	default:
		return glog.ERROR
	}
}
