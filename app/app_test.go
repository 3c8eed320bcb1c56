package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"tasksched/domain/task"
	"tasksched/internal/cmdexec"
	"tasksched/internal/dbconn"
	"tasksched/internal/logging"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) (*Config, string) {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.sqlite")
	cfg := NewConfig().
		WithDBURL(fmt.Sprintf("file:%s", dbPath)).
		WithPollInterval(20 * time.Millisecond)
	cfg.FlushInterval = 20 * time.Millisecond
	return cfg, dbPath
}

func TestSqliteDBCreation(t *testing.T) {
	cfg, dbPath := testConfig(t)

	app := New(cfg, logging.Discard())
	require.NoError(t, app.Start(context.Background()))
	defer app.Stop(context.Background())

	_, err := os.Stat(dbPath)
	assert.NoError(t, err, "database file was not created")
}

func TestSqliteDBPersistence(t *testing.T) {
	cfg, _ := testConfig(t)
	due := time.Now().Add(time.Hour)

	app1 := New(cfg, logging.Discard())
	require.NoError(t, app1.Open())
	inserted, err := app1.Container().Producer.Insert(context.Background(), "later", "echo later", due)
	require.NoError(t, err)
	require.True(t, inserted)
	require.NoError(t, app1.Stop(context.Background()))

	app2 := New(cfg, logging.Discard())
	require.NoError(t, app2.Open())
	defer app2.Stop(context.Background())

	tasks, err := app2.Container().TaskRepository.ListTasks(context.Background(), task.TaskFilters{})
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, "later", tasks[0].Name)
}

func TestApp_RunsDueTaskToCompletion(t *testing.T) {
	cfg, _ := testConfig(t)

	app := New(cfg, logging.Discard())
	require.NoError(t, app.Open())
	repo := app.Container().TaskRepository
	_, err := app.Container().Producer.Insert(context.Background(), "hello", `echo "hi"`, time.Now().Add(-time.Minute))
	require.NoError(t, err)

	require.NoError(t, app.Start(context.Background()))
	defer app.Stop(context.Background())

	name := "hello"
	assert.Eventually(t, func() bool {
		tasks, err := repo.ListTasks(context.Background(), task.TaskFilters{Name: &name})
		return err == nil && len(tasks) == 1 && tasks[0].State == task.StateCompleted
	}, 5*time.Second, 20*time.Millisecond)

	logs, err := repo.FindLogs(context.Background(), name)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Contains(t, logs[0].Output, "hi")
	require.NotNil(t, logs[0].ReturnCode)
	assert.Equal(t, "0", *logs[0].ReturnCode)
}

func TestConfig_Validate(t *testing.T) {
	t.Run("local mode needs no ssh settings", func(t *testing.T) {
		assert.NoError(t, NewConfig().WithLocalMode(true).Validate())
	})

	t.Run("remote mode needs host user and credentials", func(t *testing.T) {
		cfg := NewConfig().WithLocalMode(false)
		assert.ErrorContains(t, cfg.Validate(), "SSH_HOST")

		cfg.SSH.Host = "runner.internal"
		assert.ErrorContains(t, cfg.Validate(), "SSH_USER")

		cfg.SSH.User = "deploy"
		assert.ErrorContains(t, cfg.Validate(), "SSH_PASSWORD")

		cfg.SSH.KeyPath = "/etc/tasksched/id_ed25519"
		assert.NoError(t, cfg.Validate())
	})

	t.Run("negative concurrency is rejected", func(t *testing.T) {
		cfg := NewConfig()
		cfg.MaxConcurrent = -1
		assert.Error(t, cfg.Validate())
	})
}

func TestNewConfig_EmbeddedDefaults(t *testing.T) {
	cfg := NewConfig()

	assert.Equal(t, dbconn.DialectSQLite, cfg.DBDialect)
	assert.True(t, cfg.LocalMode)
	assert.Equal(t, 5*time.Second, cfg.PollInterval)
	assert.NoError(t, cfg.Validate())
}

func TestConfig_Executor(t *testing.T) {
	assert.IsType(t, &cmdexec.Local{}, NewConfig().WithLocalMode(true).Executor(nil))
	assert.IsType(t, &cmdexec.Remote{}, NewConfig().WithLocalMode(false).Executor(nil))
}
