package lifecycle

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// mockLogger captures log calls for testing
type mockLogger struct {
	mu    sync.Mutex
	calls []logCall
}

type logCall struct {
	level   string
	message string
	args    []interface{}
}

func (m *mockLogger) Debug(ctx context.Context, msg string, args ...interface{}) {
	m.record("debug", msg, args)
}

func (m *mockLogger) Info(ctx context.Context, msg string, args ...interface{}) {
	m.record("info", msg, args)
}

func (m *mockLogger) Error(ctx context.Context, msg string, args ...interface{}) {
	m.record("error", msg, args)
}

func (m *mockLogger) record(level, msg string, args []interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, logCall{level: level, message: msg, args: args})
}

func (m *mockLogger) count(level string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		if c.level == level {
			n++
		}
	}
	return n
}

func TestNew_AppliesDefaults(t *testing.T) {
	task := New(Config{Task: func(ctx context.Context) error { return nil }})

	assert.Equal(t, 30*time.Second, task.Period())
	assert.Equal(t, "periodic task", task.config.Name)
}

func TestRun_CalledAtConfiguredInterval(t *testing.T) {
	var runs atomic.Int32
	task := New(Config{
		Period: 20 * time.Millisecond,
		Task: func(ctx context.Context) error {
			runs.Add(1)
			return nil
		},
	})

	ctx, cancel := context.WithTimeout(context.Background(), 110*time.Millisecond)
	defer cancel()

	err := task.Run(ctx)

	assert.NoError(t, err)
	assert.GreaterOrEqual(t, runs.Load(), int32(3))
	assert.LessOrEqual(t, runs.Load(), int32(6))
}

func TestRun_StopsOnContextCancellation(t *testing.T) {
	task := New(Config{Period: time.Hour, Task: func(ctx context.Context) error { return nil }})
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		done <- task.Run(ctx)
	}()
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestRun_LogsErrorsAndContinues(t *testing.T) {
	logger := &mockLogger{}
	var runs atomic.Int32
	task := New(Config{
		Period: 10 * time.Millisecond,
		Logger: logger,
		Task: func(ctx context.Context) error {
			runs.Add(1)
			return errors.New("store unavailable")
		},
	})

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()

	assert.NoError(t, task.Run(ctx))
	assert.GreaterOrEqual(t, runs.Load(), int32(2))
	assert.Equal(t, int(runs.Load()), logger.count("error"))
}

func TestRun_StopOnErrorReturnsTaskError(t *testing.T) {
	boom := errors.New("boom")
	task := New(Config{
		Period:      5 * time.Millisecond,
		StopOnError: true,
		Task:        func(ctx context.Context) error { return boom },
	})

	err := task.Run(context.Background())

	assert.ErrorIs(t, err, boom)
}

func TestSetPeriod_RejectsNonPositive(t *testing.T) {
	task := New(Config{Task: func(ctx context.Context) error { return nil }})

	assert.ErrorIs(t, task.SetPeriod(0), ErrInvalidPeriod)
	assert.ErrorIs(t, task.SetPeriod(-time.Second), ErrInvalidPeriod)
	assert.Equal(t, 30*time.Second, task.Period())
}

func TestSetPeriod_RetimesRunningLoop(t *testing.T) {
	ran := make(chan struct{}, 1)
	task := New(Config{
		Period: time.Hour,
		Task: func(ctx context.Context) error {
			select {
			case ran <- struct{}{}:
			default:
			}
			return nil
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- task.Run(ctx)
	}()

	require.NoError(t, task.SetPeriod(10*time.Millisecond))
	assert.Equal(t, 10*time.Millisecond, task.Period())

	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("task did not run after period change")
	}

	cancel()
	assert.NoError(t, <-done)
}

func TestSetPeriod_BeforeRunKeepsLatest(t *testing.T) {
	task := New(Config{Task: func(ctx context.Context) error { return nil }})

	require.NoError(t, task.SetPeriod(time.Minute))
	require.NoError(t, task.SetPeriod(2*time.Minute))

	assert.Equal(t, 2*time.Minute, <-task.reset)
}

func TestRunOnce_LogsSuccess(t *testing.T) {
	logger := &mockLogger{}
	task := New(Config{Logger: logger, Task: func(ctx context.Context) error { return nil }})

	require.NoError(t, task.RunOnce(context.Background()))
	assert.Equal(t, 1, logger.count("debug"))
}
