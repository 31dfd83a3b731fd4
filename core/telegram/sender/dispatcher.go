package sender

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/smartschedule/schedulebot/core/logger"
	"github.com/smartschedule/schedulebot/core/netutil"

	tele "gopkg.in/telebot.v4"
)

const component = "tg.sender"

var (
	// ErrQueueClosed is returned when enqueue is attempted after dispatcher stop.
	ErrQueueClosed = errors.New("telegram sender: queue closed")
	// ErrQueueFull indicates the queue is saturated and the job was not accepted.
	ErrQueueFull = errors.New("telegram sender: queue full")

	errNilRun = errors.New("telegram sender: nil run function")
)

// Options controls the behaviour of the outbound dispatcher.
type Options struct {
	QueueSize    int
	Workers      int
	MaxRetries   int
	RetryBackoff time.Duration
	// MaxDuration bounds the time spent retrying a single job.
	MaxDuration time.Duration
	// OnFailure observes jobs that failed after all attempts.
	OnFailure func(action, kind string)
}

func (o Options) withDefaults() Options {
	if o.QueueSize <= 0 {
		o.QueueSize = 256
	}
	if o.Workers <= 0 {
		o.Workers = 4
	}
	if o.MaxRetries < 0 {
		o.MaxRetries = 0
	}
	if o.RetryBackoff <= 0 {
		o.RetryBackoff = 2 * time.Second
	}
	if o.MaxDuration <= 0 {
		o.MaxDuration = 12 * time.Second
	}
	return o
}

// job is one outbound Bot API call. action names the operation ("send",
// "edit", "delete", ...) and endpoint the recipient or method.
type job struct {
	ctx      context.Context
	action   string
	endpoint string
	run      func() error
}

func (j job) attrs(extra ...slog.Attr) []slog.Attr {
	attrs := []slog.Attr{slog.String("action", j.action)}
	if j.endpoint != "" {
		attrs = append(attrs, slog.String("endpoint", j.endpoint))
	}
	return append(attrs, extra...)
}

// Dispatcher executes outbound Telegram calls with retries, either queued
// on a worker pool (Enqueue) or inline (Run).
type Dispatcher struct {
	opts Options
	jobs chan job
	stop chan struct{}
	once sync.Once
	wg   sync.WaitGroup
	errs atomic.Uint64
}

// NewDispatcher starts the worker pool. Zero options select defaults.
func NewDispatcher(opts Options) *Dispatcher {
	opts = opts.withDefaults()
	d := &Dispatcher{
		opts: opts,
		jobs: make(chan job, opts.QueueSize),
		stop: make(chan struct{}),
	}
	d.wg.Add(opts.Workers)
	for i := 0; i < opts.Workers; i++ {
		go func() {
			defer d.wg.Done()
			for j := range d.jobs {
				_ = d.execute(j)
			}
		}()
	}
	return d
}

// Enqueue schedules run on the worker pool. run must be safe to repeat.
func (d *Dispatcher) Enqueue(ctx context.Context, action, endpoint string, run func() error) error {
	if run == nil {
		return errNilRun
	}
	select {
	case <-d.stop:
		return ErrQueueClosed
	default:
	}
	select {
	case d.jobs <- job{ctx: ctx, action: action, endpoint: endpoint, run: run}:
		return nil
	default:
		return ErrQueueFull
	}
}

// Run executes fn inline with the same retry policy as queued jobs and
// returns the last error.
func (d *Dispatcher) Run(ctx context.Context, action, endpoint string, fn func() error) error {
	if fn == nil {
		return errNilRun
	}
	return d.execute(job{ctx: ctx, action: action, endpoint: endpoint, run: fn})
}

// ErrorCount returns the number of jobs that failed after all attempts.
func (d *Dispatcher) ErrorCount() uint64 {
	return d.errs.Load()
}

// Close stops accepting jobs and waits for queued ones to finish.
func (d *Dispatcher) Close() {
	d.once.Do(func() {
		close(d.stop)
		close(d.jobs)
		d.wg.Wait()
	})
}

func (d *Dispatcher) execute(j job) error {
	ctx := j.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	deadline, cancel := context.WithTimeout(ctx, d.opts.MaxDuration)
	defer cancel()

	start := time.Now()
	attempts := d.opts.MaxRetries + 1
	var err error
	for attempt := 1; ; attempt++ {
		if err = j.run(); err == nil {
			if attempt > 1 {
				logger.Info(ctx, component, "send.recovered", j.attrs(
					slog.Int("attempt", attempt),
					slog.Duration("elapsed", logger.Took(start)),
				)...)
			}
			return nil
		}
		if attempt == attempts || !retryable(err) {
			break
		}
		delay := backoff(err, d.opts.RetryBackoff, attempt)
		logger.Debug(ctx, component, "send.retry", j.attrs(
			slog.Int("attempt", attempt),
			slog.Duration("delay", delay),
		)...)
		if !sleep(deadline, delay) {
			err = errors.Join(err, deadline.Err())
			break
		}
	}

	d.errs.Add(1)
	kind := ClassifyError(err)
	level := slog.LevelError
	if kind == KindForbidden || kind == KindNotModified {
		level = slog.LevelWarn
	}
	logger.Event(ctx, component, level, "send.fail", j.attrs(
		slog.String("err", redactToken(err)),
		slog.String("err_code", kind),
		slog.Int("attempts", attempts),
		slog.Duration("elapsed", logger.Took(start)),
	)...)
	if d.opts.OnFailure != nil {
		d.opts.OnFailure(j.action, kind)
	}
	return err
}

func retryable(err error) bool {
	var flood tele.FloodError
	return netutil.ShouldRetry(err) || errors.As(err, &flood)
}

// backoff grows linearly with the attempt; a flood wait asked by Telegram
// takes precedence when longer.
func backoff(err error, base time.Duration, attempt int) time.Duration {
	delay := base * time.Duration(attempt)
	var flood tele.FloodError
	if errors.As(err, &flood) && flood.RetryAfter > 0 {
		if wait := time.Duration(flood.RetryAfter) * time.Second; wait > delay {
			delay = wait
		}
	}
	return delay
}

// sleep waits for d unless ctx ends first, reporting whether it slept fully.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
