package middleware

import (
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/smartschedule/schedulebot/core/logger"
	"github.com/smartschedule/schedulebot/core/telegram/callbacks"
	tghelpers "github.com/smartschedule/schedulebot/core/telegram/helpers"

	tele "gopkg.in/telebot.v4"
)

// LoggerMiddleware builds the update context and logs one sampled receipt
// line per update. It is safe to apply on several branches: only the first
// application on an update does anything.
//
// Message text itself is never logged; the line carries its length and
// command.
func LoggerMiddleware(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		if _, seen := tghelpers.ContextFrom(c); seen {
			return next(c)
		}
		ctx := tghelpers.BuildContext(c)

		if logger.ShouldSampleDebug() {
			logger.Debug(ctx, "tg", "update.received", receiptAttrs(c)...)
		}
		return next(c)
	}
}

func receiptAttrs(c tele.Context) []slog.Attr {
	upd := c.Update()
	attrs := []slog.Attr{
		slog.String("status", "ok"),
		slog.String("kind", UpdateKind(upd)),
	}
	if user := c.Sender(); user != nil && user.Username != "" {
		attrs = append(attrs, slog.String("username", logger.SanitizeLimit(user.Username, 64)))
	}

	switch {
	case upd.Callback != nil:
		if token, _ := callbacks.ParseCallbackData(upd.Callback); token != "" {
			attrs = append(attrs,
				slog.String("cb_key", logger.SanitizeLimit(token, 64)),
				slog.String("op", callbacks.Family(token)),
			)
		}
	case upd.Message != nil:
		text := c.Text()
		attrs = append(attrs, slog.Int("text_len", utf8.RuneCountInString(text)))
		if cmd, ok := commandOf(text); ok {
			attrs = append(attrs, slog.String("op", cmd))
		}
	}
	return attrs
}

// commandOf returns the leading "/command" of text without arguments or
// bot mention.
func commandOf(text string) (string, bool) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return "", false
	}
	cmd, _, _ := strings.Cut(text, " ")
	cmd, _, _ = strings.Cut(cmd, "@")
	return logger.SanitizeLimit(cmd, 32), len(cmd) > 1
}
