package main

import (
	"context"
	"fmt"
	"os"

	"tasksched/cmd/tasksched/commands"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"
)

func newApp() *cli.Command {
	return commands.NewApp()
}

func main() {
	if err := newApp().Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
