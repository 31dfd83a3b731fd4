package logger

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/smartschedule/schedulebot/core/buildinfo"
	coreconfig "github.com/smartschedule/schedulebot/core/config"
)

var (
	initOnce     sync.Once
	shutdownOnce sync.Once

	sink     *lineSink
	logFile  io.Closer
	levelVar slog.LevelVar

	traceOverride atomic.Bool

	// L is the base logger. It falls back to slog.Default until InitLogger runs
	// so packages can log from tests without initialization.
	L = slog.Default()

	// DB logs database-related events.
	DB = L
	// TG logs Telegram transport events.
	TG = L
	// MIG logs database migration events.
	MIG = L
)

// settings is the resolved logging section.
type settings struct {
	level      slog.Level
	format     logFormat
	debugEvery int
	file       string
	profile    string
}

func settingsFrom(cfg *coreconfig.Config) settings {
	s := settings{level: slog.LevelInfo, format: formatJSON, debugEvery: defaultDebugEvery, profile: "prod"}
	if cfg == nil {
		return s
	}
	lc := cfg.Logging
	if p := strings.ToLower(strings.TrimSpace(lc.Profile)); p != "" {
		s.profile = p
	}
	switch strings.ToLower(strings.TrimSpace(lc.Level)) {
	case "debug":
		s.level = slog.LevelDebug
	case "warn", "warning":
		s.level = slog.LevelWarn
	case "error":
		s.level = slog.LevelError
	}
	switch strings.ToLower(strings.TrimSpace(lc.Format)) {
	case "kv", "text", "pretty":
		s.format = formatKV
	case "json":
	default:
		if s.profile == "debug" || s.profile == "dev" {
			s.format = formatKV
		}
	}
	if lc.DebugEvery > 0 {
		s.debugEvery = lc.DebugEvery
	}
	if dir, file := strings.TrimSpace(lc.Dir), strings.TrimSpace(lc.File); dir != "" && file != "" {
		s.file = filepath.Join(dir, file)
	}
	return s
}

// InitLogger configures the global structured logger. Only the first call
// has an effect. A log file that cannot be opened leaves stdout as the only
// output.
func InitLogger(cfg *coreconfig.Config) error {
	initOnce.Do(func() {
		s := settingsFrom(cfg)
		levelVar.Set(s.level)
		setDebugEvery(s.debugEvery)
		traceOverride.Store(envFlag("TRACE") || envFlag("LOG_TRACE"))

		outputs := []io.Writer{os.Stdout}
		var fileErr error
		if s.file != "" {
			var f *os.File
			if f, fileErr = openLogFile(s.file); fileErr == nil {
				logFile = f
				outputs = append(outputs, f)
			}
		}
		sink = newLineSink(64<<10, outputs...)

		L = slog.New(newStructuredHandler(sink, s.format, &levelVar))
		slog.SetDefault(L)
		DB = Component("db")
		TG = Component("tg")
		MIG = Component("db.migrate")

		Info(context.Background(), "app", "startup",
			slog.String("go_version", runtime.Version()),
			slog.String("build_version", buildinfo.Version),
			slog.String("build_commit", buildinfo.Commit),
			slog.String("build_time", buildinfo.Date),
			slog.String("cfg_profile", s.profile),
		)
		if fileErr != nil {
			Warn(context.Background(), "app", "log_file.unavailable", Err(fileErr))
		}
	})
	return nil
}

func openLogFile(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("logger: create log dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("logger: open log file: %w", err)
	}
	return f, nil
}

// Shutdown flushes buffered log output and closes the log file.
func Shutdown() error {
	var err error
	shutdownOnce.Do(func() {
		var errs []error
		if sink != nil {
			errs = append(errs, sink.Close())
		}
		if logFile != nil {
			errs = append(errs, logFile.Close())
		}
		err = errors.Join(errs...)
	})
	return err
}

// envFlag reports whether the variable is set to an affirmative value.
func envFlag(name string) bool {
	v, err := strconv.ParseBool(strings.TrimSpace(os.Getenv(name)))
	return err == nil && v
}

// Background returns context.Background() for call sites outside an update.
func Background() context.Context {
	return context.Background()
}

// LogEvent writes one record with the given event name through logg, or
// through the context logger when logg is nil. The message stays empty;
// event and component identify the line.
func LogEvent(ctx context.Context, logg *slog.Logger, level slog.Level, event string, attrs ...slog.Attr) {
	if logg == nil {
		logg = FromContext(ctx)
	}
	if event != "" {
		attrs = append([]slog.Attr{slog.String("event", event)}, attrs...)
	}
	logg.LogAttrs(ctx, level, "", attrs...)
}

// Component returns the base logger tagged with component=name.
func Component(name string) *slog.Logger {
	if name = strings.TrimSpace(name); name == "" {
		return L
	}
	return L.With("component", name)
}

// Event is LogEvent on the component logger. Debug, Info, Warn and Error
// fix the level.
func Event(ctx context.Context, component string, level slog.Level, event string, attrs ...slog.Attr) {
	LogEvent(ctx, Component(component), level, event, attrs...)
}

func Debug(ctx context.Context, component, event string, attrs ...slog.Attr) {
	Event(ctx, component, slog.LevelDebug, event, attrs...)
}

func Info(ctx context.Context, component, event string, attrs ...slog.Attr) {
	Event(ctx, component, slog.LevelInfo, event, attrs...)
}

func Warn(ctx context.Context, component, event string, attrs ...slog.Attr) {
	Event(ctx, component, slog.LevelWarn, event, attrs...)
}

func Error(ctx context.Context, component, event string, attrs ...slog.Attr) {
	Event(ctx, component, slog.LevelError, event, attrs...)
}
