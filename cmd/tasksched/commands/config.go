package commands

import (
	"context"
	"fmt"

	"tasksched/app"
	"tasksched/config/appconf"
	"tasksched/internal/logging"

	"github.com/urfave/cli/v3"
)

// loadConfig resolves settings once: flags over environment over the
// config file over defaults.
func loadConfig(c *cli.Command) (*app.Config, error) {
	if path := c.String("config"); path != "" {
		if err := appconf.LoadFile(path); err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
	}

	cfg := configFromEnv()
	if c.IsSet("http-addr") {
		cfg.WithHTTPAddr(c.String("http-addr"))
	}
	if c.IsSet("local") {
		cfg.WithLocalMode(c.Bool("local"))
	}
	return cfg, nil
}

func configFromEnv() *app.Config {
	cfg := app.NewConfig()
	cfg.DBDialect = appconf.DBDialect()
	cfg.DBURL = appconf.DBURL()
	cfg.DBHost = appconf.DBHost()
	cfg.DBPort = appconf.DBPort()
	cfg.DBName = appconf.DBName()
	cfg.DBUser = appconf.DBUser()
	cfg.DBPassword = appconf.DBPassword()
	cfg.SSH.Host = appconf.SSHHost()
	cfg.SSH.Port = appconf.SSHPort()
	cfg.SSH.User = appconf.SSHUser()
	cfg.SSH.Password = appconf.SSHPassword()
	cfg.SSH.KeyPath = appconf.SSHKeyPath()
	cfg.SSH.KnownHostsPath = appconf.SSHKnownHosts()
	cfg.SSH.ConnectTimeout = appconf.SSHConnectTimeout()
	cfg.LocalMode = appconf.LocalMode()
	cfg.PollInterval = appconf.PollInterval()
	cfg.FlushInterval = appconf.FlushInterval()
	cfg.CommandTimeout = appconf.CommandTimeout()
	cfg.MaxConcurrent = appconf.MaxConcurrent()
	cfg.LogLevel = appconf.LogLevel()
	cfg.LogFile = appconf.LogFile()
	cfg.HTTPAddr = appconf.HTTPAddr()
	return cfg
}

// openStore connects to the task store for the one-shot commands. The
// returned close func releases the connection and log file.
func openStore(c *cli.Command) (*app.App, func(), error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, nil, err
	}

	logger, cleanup, err := logging.New(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		return nil, nil, err
	}

	a := app.New(cfg, logger)
	if err := a.Open(); err != nil {
		cleanup()
		return nil, nil, err
	}

	return a, func() {
		if err := a.Stop(context.Background()); err != nil {
			logger.WithError(err).Warn("failed to close store")
		}
		cleanup()
	}, nil
}
