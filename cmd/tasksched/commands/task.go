package commands

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"tasksched/cmd/tasksched/output"
	"tasksched/domain/task"

	"github.com/urfave/cli/v3"
)

// TaskCommand returns the task command with subcommands
func TaskCommand() *cli.Command {
	return &cli.Command{
		Name:  "task",
		Usage: "Submit and inspect tasks",
		Commands: []*cli.Command{
			addTaskCommand(),
			scheduleTaskCommand(),
			listTaskCommand(),
		},
	}
}

func commandSourceFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:     "name",
			Usage:    "Task name",
			Required: true,
		},
		&cli.StringFlag{
			Name:  "command",
			Usage: "Command to execute (inline)",
		},
		&cli.StringFlag{
			Name:  "file",
			Usage: "Path to script file to execute",
		},
	}
}

func addTaskCommand() *cli.Command {
	return &cli.Command{
		Name:  "add",
		Usage: "Insert one task",
		Flags: append(commandSourceFlags(), &cli.StringFlag{
			Name:  "due",
			Usage: "Due date in RFC 3339, or \"now\"",
			Value: "now",
		}),
		Action: addTaskAction,
	}
}

func addTaskAction(ctx context.Context, c *cli.Command) error {
	command, err := resolveCommand(c)
	if err != nil {
		return err
	}

	due, err := parseDueDate(c.String("due"), time.Now())
	if err != nil {
		return err
	}

	a, closeStore, err := openStore(c)
	if err != nil {
		return err
	}
	defer closeStore()

	inserted, err := a.Container().Producer.Insert(ctx, c.String("name"), command, due)
	if err != nil {
		return fmt.Errorf("failed to add task: %w", err)
	}

	return printResult(c, map[string]any{
		"name":     c.String("name"),
		"due_date": task.NormalizeDueDate(due),
		"inserted": inserted,
	})
}

func scheduleTaskCommand() *cli.Command {
	return &cli.Command{
		Name:  "schedule",
		Usage: "Insert the next occurrences of a cron expression",
		Flags: append(commandSourceFlags(),
			&cli.StringFlag{
				Name:     "cron",
				Usage:    "Five field cron expression or descriptor such as @hourly",
				Required: true,
			},
			&cli.IntFlag{
				Name:  "count",
				Usage: "Number of occurrences to insert",
				Value: 10,
			},
			&cli.StringFlag{
				Name:  "from",
				Usage: "Start expanding after this RFC 3339 time (default now)",
				Value: "now",
			},
		),
		Action: scheduleTaskAction,
	}
}

func scheduleTaskAction(ctx context.Context, c *cli.Command) error {
	command, err := resolveCommand(c)
	if err != nil {
		return err
	}

	from, err := parseDueDate(c.String("from"), time.Now())
	if err != nil {
		return err
	}

	a, closeStore, err := openStore(c)
	if err != nil {
		return err
	}
	defer closeStore()

	res, err := a.Container().Producer.Schedule(ctx, c.String("name"), command, c.String("cron"), from, int(c.Int("count")))
	if err != nil {
		return fmt.Errorf("failed to schedule task: %w", err)
	}

	return printResult(c, map[string]any{
		"name":       c.String("name"),
		"inserted":   res.Inserted,
		"duplicates": res.Duplicates,
	})
}

func listTaskCommand() *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "List tasks",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "name",
				Usage: "Filter by task name",
			},
			&cli.StringFlag{
				Name:  "state",
				Usage: "Filter by state (waiting_to_run, running, completed, failed)",
			},
		},
		Action: listTaskAction,
	}
}

func listTaskAction(ctx context.Context, c *cli.Command) error {
	var filters task.TaskFilters
	if c.IsSet("name") {
		name := c.String("name")
		filters.Name = &name
	}
	if c.IsSet("state") {
		state := task.State(c.String("state"))
		if !state.Valid() {
			return fmt.Errorf("unknown state %q", c.String("state"))
		}
		filters.State = &state
	}

	a, closeStore, err := openStore(c)
	if err != nil {
		return err
	}
	defer closeStore()

	tasks, err := a.Container().TaskRepository.ListTasks(ctx, filters)
	if err != nil {
		return fmt.Errorf("failed to list tasks: %w", err)
	}

	return printResult(c, tasks)
}

// resolveCommand reads the command from --command or --file, exactly one
// of which must be set.
func resolveCommand(c *cli.Command) (string, error) {
	if err := validateCommandSource(c.IsSet("command"), c.IsSet("file")); err != nil {
		return "", err
	}
	if c.IsSet("file") {
		content, err := readScriptFile(c.String("file"))
		if err != nil {
			return "", fmt.Errorf("failed to read script file: %w", err)
		}
		return content, nil
	}
	return c.String("command"), nil
}

func validateCommandSource(hasCommand, hasFile bool) error {
	if hasCommand && hasFile {
		return fmt.Errorf("cannot use both --command and --file flags")
	}
	if !hasCommand && !hasFile {
		return fmt.Errorf("must provide either --command or --file flag")
	}
	return nil
}

// readScriptFile reads and returns the contents of a script file
func readScriptFile(filePath string) (string, error) {
	content, err := os.ReadFile(filePath)
	if err != nil {
		return "", err
	}
	return string(content), nil
}

func parseDueDate(raw string, now time.Time) (time.Time, error) {
	if raw == "" || strings.EqualFold(raw, "now") {
		return now, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid due date %q: want RFC 3339 such as 2026-01-02T15:04:00Z", raw)
	}
	return t, nil
}

func printResult(c *cli.Command, data any) error {
	formatter, err := output.New(c.String("format"))
	if err != nil {
		return err
	}
	text, err := formatter.Format(data)
	if err != nil {
		return fmt.Errorf("failed to format output: %w", err)
	}
	fmt.Fprintln(c.Root().Writer, text)
	return nil
}
