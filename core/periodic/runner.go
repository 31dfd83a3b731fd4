// Package periodic runs named background tasks on fixed intervals.
package periodic

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/smartschedule/schedulebot/core/logger"
)

const component = "periodic"

// Task is one unit of recurring work. A failing run is logged and the task
// keeps its schedule.
type Task struct {
	Name     string
	Interval time.Duration
	// SkipInitial delays the first run by one interval.
	SkipInitial bool
	Run         func(ctx context.Context) error
}

// FailureHook observes failed runs, for example to count them.
type FailureHook func(task string, err error)

// Runner drives a set of tasks, one goroutine per task.
type Runner struct {
	tasks     []Task
	onFailure FailureHook

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New builds a runner for tasks. Tasks without a Run func or with a
// non-positive interval are ignored.
func New(onFailure FailureHook, tasks ...Task) *Runner {
	valid := make([]Task, 0, len(tasks))
	for _, t := range tasks {
		if t.Run == nil || t.Interval <= 0 {
			continue
		}
		valid = append(valid, t)
	}
	return &Runner{tasks: valid, onFailure: onFailure}
}

// Start launches every task loop. Loops stop when ctx is cancelled or Stop is called.
func (r *Runner) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return
	}
	r.running = true

	ctx, r.cancel = context.WithCancel(ctx)
	for _, t := range r.tasks {
		r.wg.Add(1)
		go r.loop(ctx, t)
	}
	logger.Info(ctx, component, "runner.started", slog.Int("count", len(r.tasks)))
}

// Stop cancels all loops and waits for in-flight runs to return.
func (r *Runner) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	cancel := r.cancel
	r.mu.Unlock()

	cancel()
	r.wg.Wait()
	logger.Info(logger.Background(), component, "runner.stopped")
}

// RunOnce executes every task a single time, in order. It is used on shutdown
// to flush state and by tests.
func (r *Runner) RunOnce(ctx context.Context) {
	for _, t := range r.tasks {
		r.runTask(ctx, t)
	}
}

func (r *Runner) loop(ctx context.Context, t Task) {
	defer r.wg.Done()

	if !t.SkipInitial {
		r.runTask(ctx, t)
	}

	ticker := time.NewTicker(t.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.runTask(ctx, t)
		case <-ctx.Done():
			return
		}
	}
}

func (r *Runner) runTask(ctx context.Context, t Task) {
	if ctx.Err() != nil {
		return
	}
	start := time.Now()
	err := r.safeRun(ctx, t)
	if err == nil {
		if logger.ShouldSampleDebug() {
			logger.Debug(ctx, component, "task.done",
				slog.String("task", t.Name),
				slog.Duration("duration", logger.Took(start)),
			)
		}
		return
	}
	logger.Warn(ctx, component, "task.failed",
		slog.String("task", t.Name),
		slog.String("status", "fail"),
		slog.Duration("duration", logger.Took(start)),
		logger.Err(err),
	)
	if r.onFailure != nil {
		r.onFailure(t.Name, err)
	}
}

func (r *Runner) safeRun(ctx context.Context, t Task) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			logger.Error(ctx, component, "task.panic",
				slog.String("task", t.Name),
				slog.String("stack", string(debug.Stack())),
			)
			err = fmt.Errorf("panic: %v", rec)
		}
	}()
	return t.Run(ctx)
}
