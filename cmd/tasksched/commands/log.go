package commands

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"
)

// LogCommand returns the log command for reading run records
func LogCommand() *cli.Command {
	return &cli.Command{
		Name:  "log",
		Usage: "Inspect task run logs",
		Commands: []*cli.Command{
			{
				Name:      "show",
				Usage:     "Show one run's output, error text and return code",
				ArgsUsage: "<run-id>",
				Action:    showLogAction,
			},
			{
				Name:  "list",
				Usage: "List the runs of a task, newest first",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "task",
						Usage:    "Task name",
						Required: true,
					},
				},
				Action: listLogAction,
			},
		},
	}
}

func showLogAction(ctx context.Context, c *cli.Command) error {
	if c.Args().Len() != 1 {
		return fmt.Errorf("run ID is required")
	}

	a, closeStore, err := openStore(c)
	if err != nil {
		return err
	}
	defer closeStore()

	entry, err := a.Container().TaskRepository.FindLogByRunID(ctx, c.Args().First())
	if err != nil {
		return fmt.Errorf("failed to get log: %w", err)
	}

	return printResult(c, entry)
}

func listLogAction(ctx context.Context, c *cli.Command) error {
	a, closeStore, err := openStore(c)
	if err != nil {
		return err
	}
	defer closeStore()

	logs, err := a.Container().TaskRepository.FindLogs(ctx, c.String("task"))
	if err != nil {
		return fmt.Errorf("failed to list logs: %w", err)
	}

	return printResult(c, logs)
}
