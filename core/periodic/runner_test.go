package periodic

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunnerRunsImmediatelyAndOnTick(t *testing.T) {
	var calls int32
	r := New(nil, Task{
		Name:     "count",
		Interval: 10 * time.Millisecond,
		Run: func(context.Context) error {
			atomic.AddInt32(&calls, 1)
			return nil
		},
	})
	r.Start(context.Background())
	require.Eventually(t, func() bool { return atomic.LoadInt32(&calls) >= 3 }, time.Second, 5*time.Millisecond)
	r.Stop()

	after := atomic.LoadInt32(&calls)
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, after, atomic.LoadInt32(&calls), "no runs after Stop")
}

func TestRunnerContinuesAfterFailureAndPanic(t *testing.T) {
	var (
		mu       sync.Mutex
		failures []string
		calls    int32
	)
	hook := func(task string, err error) {
		mu.Lock()
		defer mu.Unlock()
		failures = append(failures, task)
	}
	r := New(hook,
		Task{
			Name:     "flaky",
			Interval: 5 * time.Millisecond,
			Run: func(context.Context) error {
				n := atomic.AddInt32(&calls, 1)
				if n == 1 {
					return errors.New("boom")
				}
				if n == 2 {
					panic("kaboom")
				}
				return nil
			},
		},
	)
	r.Start(context.Background())
	require.Eventually(t, func() bool { return atomic.LoadInt32(&calls) >= 4 }, time.Second, 5*time.Millisecond)
	r.Stop()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"flaky", "flaky"}, failures)
}

func TestRunnerSkipInitial(t *testing.T) {
	var calls int32
	r := New(nil, Task{
		Name:        "delayed",
		Interval:    time.Hour,
		SkipInitial: true,
		Run: func(context.Context) error {
			atomic.AddInt32(&calls, 1)
			return nil
		},
	})
	r.Start(context.Background())
	time.Sleep(20 * time.Millisecond)
	r.Stop()
	assert.Zero(t, atomic.LoadInt32(&calls))
}

func TestRunOnceAndInvalidTasks(t *testing.T) {
	var calls int32
	r := New(nil,
		Task{Name: "no-run", Interval: time.Second},
		Task{Name: "no-interval", Run: func(context.Context) error { return nil }},
		Task{Name: "ok", Interval: time.Second, Run: func(context.Context) error {
			atomic.AddInt32(&calls, 1)
			return nil
		}},
	)
	r.RunOnce(context.Background())
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
}
