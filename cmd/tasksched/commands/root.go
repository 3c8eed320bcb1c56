// Package commands implements the tasksched command line.
package commands

import (
	"tasksched/version"

	"github.com/urfave/cli/v3"
)

// NewApp creates the root CLI application
func NewApp() *cli.Command {
	return &cli.Command{
		Name:    "tasksched",
		Usage:   "Task scheduler - run due commands from a task store locally or over SSH",
		Version: version.Version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Usage:   "Path to a YAML config file",
				Sources: cli.EnvVars("TASKSCHED_CONFIG"),
			},
			&cli.StringFlag{
				Name:  "format",
				Usage: "Output format: table or json",
				Value: "table",
			},
		},
		Commands: []*cli.Command{
			RunCommand(),
			TaskCommand(),
			LogCommand(),
			VersionCommand(),
		},
	}
}
