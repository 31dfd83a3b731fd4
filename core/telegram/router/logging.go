package router

import (
	"log/slog"
	"strings"
	"time"

	"github.com/smartschedule/schedulebot/core/logger"
	tghelpers "github.com/smartschedule/schedulebot/core/telegram/helpers"
	tgsender "github.com/smartschedule/schedulebot/core/telegram/sender"

	tele "gopkg.in/telebot.v4"
)

// span times one handler invocation and writes a single handler.handled
// line when it ends.
type span struct {
	c     tele.Context
	name  string
	start time.Time
	attrs []slog.Attr
}

func startSpan(c tele.Context, name string, attrs ...slog.Attr) span {
	return span{c: c, name: name, start: time.Now(), attrs: attrs}
}

// run tags the update context with the handler name, calls fn and logs
// the outcome.
func (s span) run(fn tele.HandlerFunc) error {
	tghelpers.WithHandler(s.c, s.name)
	err := fn(s.c)
	s.end(logger.Status(err), err)
	return err
}

func (s span) end(status string, err error) {
	attrs := append([]slog.Attr{
		slog.String("status", status),
		slog.String("handler", s.name),
		slog.Duration("duration", logger.Took(s.start)),
	}, s.attrs...)
	if err != nil {
		attrs = append(attrs, logger.Err(err), slog.String("err_code", tgsender.ClassifyError(err)))
	}
	logger.Info(tghelpers.WithHandler(s.c, s.name), "tg", "handler.handled", attrs...)
}

// handlerName turns a command key such as "/Start" into a log-friendly name.
func handlerName(key string) string {
	key = strings.TrimPrefix(strings.TrimSpace(key), "/")
	if key == "" {
		return "unknown"
	}
	return strings.ToLower(strings.ReplaceAll(key, " ", "_"))
}
