package commands

import (
	"bytes"
	"context"
	"testing"

	"tasksched/version"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewApp(t *testing.T) {
	app := NewApp()
	require.NotNil(t, app)
	assert.Equal(t, "tasksched", app.Name)
	assert.NotEmpty(t, app.Usage)
}

func TestAppVersion(t *testing.T) {
	app := NewApp()
	require.NotNil(t, app)
	assert.Equal(t, version.Version, app.Version)
}

func TestAppHasHelpFlag(t *testing.T) {
	app := NewApp()
	require.NotNil(t, app)

	var buf bytes.Buffer
	app.Writer = &buf

	err := app.Run(context.Background(), []string{"tasksched", "--help"})
	require.NoError(t, err)

	output := buf.String()
	assert.Contains(t, output, "tasksched", "Help should contain app name")
	assert.Contains(t, output, "Task scheduler", "Help should contain usage description")
	assert.Contains(t, output, "USAGE", "Help should contain USAGE section")
}

func TestAppHasSubcommands(t *testing.T) {
	app := NewApp()

	names := map[string]bool{}
	for _, cmd := range app.Commands {
		names[cmd.Name] = true
	}

	for _, want := range []string{"run", "task", "log", "version"} {
		assert.True(t, names[want], want)
	}
}

func TestVersionCommand(t *testing.T) {
	app := NewApp()
	var buf bytes.Buffer
	app.Writer = &buf

	require.NoError(t, app.Run(context.Background(), []string{"tasksched", "version"}))

	assert.Contains(t, buf.String(), version.Version)
}
