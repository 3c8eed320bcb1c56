package dispatcher

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"tasksched/app/services/taskrunner"
	"tasksched/domain/task"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockFetcher struct {
	mock.Mock
}

func (m *MockFetcher) FetchDueTasks(ctx context.Context, now time.Time) ([]task.Task, error) {
	args := m.Called(ctx, now)
	tasks, _ := args.Get(0).([]task.Task)
	return tasks, args.Error(1)
}

// blockingRunner counts runs and holds each until release is closed.
type blockingRunner struct {
	mu      sync.Mutex
	runs    map[string]int
	started chan string
	release chan struct{}
}

func newBlockingRunner() *blockingRunner {
	return &blockingRunner{
		runs:    map[string]int{},
		started: make(chan string, 100),
		release: make(chan struct{}),
	}
}

func (r *blockingRunner) Run(ctx context.Context, t task.Task) taskrunner.Result {
	r.mu.Lock()
	r.runs[t.Name]++
	r.mu.Unlock()
	r.started <- t.Name
	<-r.release
	return taskrunner.Result{State: task.StateCompleted}
}

func (r *blockingRunner) count(name string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.runs[name]
}

type panicRunner struct{}

func (panicRunner) Run(ctx context.Context, t task.Task) taskrunner.Result {
	panic("runner exploded")
}

var due = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func dueTasks(names ...string) []task.Task {
	tasks := make([]task.Task, 0, len(names))
	for _, n := range names {
		tasks = append(tasks, task.Task{Name: n, Command: "true", DueDate: due, State: task.StateWaitingToRun})
	}
	return tasks
}

func waitStarted(t *testing.T, r *blockingRunner, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-r.started:
		case <-time.After(2 * time.Second):
			t.Fatalf("only %d of %d runs started", i, n)
		}
	}
}

// TestPoll_StartsOneRunPerTask - each due task runs exactly once
func TestPoll_StartsOneRunPerTask(t *testing.T) {
	fetcher := new(MockFetcher)
	fetcher.On("FetchDueTasks", mock.Anything, mock.Anything).Return(dueTasks("a", "b", "c"), nil)
	runner := newBlockingRunner()
	d := New(fetcher, runner, Config{}, nil)

	require.NoError(t, d.Poll(context.Background()))
	waitStarted(t, runner, 3)
	assert.Equal(t, 3, d.InFlight())

	close(runner.release)
	require.NoError(t, d.Wait(context.Background()))

	for _, name := range []string{"a", "b", "c"} {
		assert.Equal(t, 1, runner.count(name), name)
	}
	assert.Equal(t, 0, d.InFlight())
}

// TestPoll_ReturnsWithoutWaiting - Poll does not block on running tasks
func TestPoll_ReturnsWithoutWaiting(t *testing.T) {
	fetcher := new(MockFetcher)
	fetcher.On("FetchDueTasks", mock.Anything, mock.Anything).Return(dueTasks("slow"), nil)
	runner := newBlockingRunner()
	defer close(runner.release)
	d := New(fetcher, runner, Config{}, nil)

	done := make(chan error, 1)
	go func() { done <- d.Poll(context.Background()) }()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Poll blocked on a running task")
	}
}

// TestPoll_FetchError - error is wrapped and nothing runs
func TestPoll_FetchError(t *testing.T) {
	fetcher := new(MockFetcher)
	fetcher.On("FetchDueTasks", mock.Anything, mock.Anything).Return(nil, errors.New("connection reset"))
	runner := newBlockingRunner()
	d := New(fetcher, runner, Config{}, nil)

	err := d.Poll(context.Background())

	assert.ErrorContains(t, err, "fetch due tasks")
	assert.Equal(t, 0, d.InFlight())
}

// TestPoll_SkipsTasksAlreadyInFlight - an overlapping poll does not double start
func TestPoll_SkipsTasksAlreadyInFlight(t *testing.T) {
	fetcher := new(MockFetcher)
	fetcher.On("FetchDueTasks", mock.Anything, mock.Anything).Return(dueTasks("a"), nil)
	runner := newBlockingRunner()
	d := New(fetcher, runner, Config{}, nil)

	require.NoError(t, d.Poll(context.Background()))
	waitStarted(t, runner, 1)
	require.NoError(t, d.Poll(context.Background()))

	close(runner.release)
	require.NoError(t, d.Wait(context.Background()))
	assert.Equal(t, 1, runner.count("a"))
}

// TestPoll_RespectsMaxConcurrent - extra tasks wait for a later poll
func TestPoll_RespectsMaxConcurrent(t *testing.T) {
	fetcher := new(MockFetcher)
	fetcher.On("FetchDueTasks", mock.Anything, mock.Anything).Return(dueTasks("a", "b", "c"), nil)
	runner := newBlockingRunner()
	d := New(fetcher, runner, Config{MaxConcurrent: 2}, nil)

	require.NoError(t, d.Poll(context.Background()))
	waitStarted(t, runner, 2)

	assert.Equal(t, 2, d.InFlight())
	assert.Equal(t, 0, runner.count("c"))

	close(runner.release)
	require.NoError(t, d.Wait(context.Background()))
}

// TestPoll_ContainsRunnerPanic - a panicking run does not take down the process
func TestPoll_ContainsRunnerPanic(t *testing.T) {
	fetcher := new(MockFetcher)
	fetcher.On("FetchDueTasks", mock.Anything, mock.Anything).Return(dueTasks("a", "b"), nil)
	d := New(fetcher, panicRunner{}, Config{MaxConcurrent: 1}, nil)

	require.NoError(t, d.Poll(context.Background()))
	require.NoError(t, d.Wait(context.Background()))

	assert.Equal(t, 0, d.InFlight())
	assert.Empty(t, d.slots)
}

// TestPoll_RunsSurviveCancellation - cancelling the poll context does not cancel runs
func TestPoll_RunsSurviveCancellation(t *testing.T) {
	fetcher := new(MockFetcher)
	fetcher.On("FetchDueTasks", mock.Anything, mock.Anything).Return(dueTasks("a"), nil)

	var sawCancel atomic.Bool
	release := make(chan struct{})
	runner := runnerFunc(func(ctx context.Context, _ task.Task) taskrunner.Result {
		<-release
		sawCancel.Store(ctx.Err() != nil)
		return taskrunner.Result{}
	})
	d := New(fetcher, runner, Config{}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, d.Poll(ctx))
	cancel()
	close(release)
	require.NoError(t, d.Wait(context.Background()))

	assert.False(t, sawCancel.Load())
}

// TestWait_HonoursDeadline - Wait gives up when its context ends
func TestWait_HonoursDeadline(t *testing.T) {
	fetcher := new(MockFetcher)
	fetcher.On("FetchDueTasks", mock.Anything, mock.Anything).Return(dueTasks("a"), nil)
	runner := newBlockingRunner()
	defer close(runner.release)
	d := New(fetcher, runner, Config{}, nil)
	require.NoError(t, d.Poll(context.Background()))
	waitStarted(t, runner, 1)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	assert.ErrorIs(t, d.Wait(ctx), context.DeadlineExceeded)
}

type runnerFunc func(context.Context, task.Task) taskrunner.Result

func (f runnerFunc) Run(ctx context.Context, t task.Task) taskrunner.Result {
	return f(ctx, t)
}
