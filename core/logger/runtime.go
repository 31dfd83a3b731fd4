package logger

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"unicode"
)

type ctxKey int

const (
	metaKey ctxKey = iota
	loggerKey
)

// updateMeta is the correlation data of one Telegram update. It travels as a
// single context value and is copied on every change.
type updateMeta struct {
	rid      string
	updateID int
	userID   int64
	chatID   int64
	handler  string
}

func metaFrom(ctx context.Context) updateMeta {
	if ctx == nil {
		return updateMeta{}
	}
	m, _ := ctx.Value(metaKey).(updateMeta)
	return m
}

func withMeta(ctx context.Context, change func(*updateMeta)) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	m := metaFrom(ctx)
	change(&m)
	return context.WithValue(ctx, metaKey, m)
}

// WithLogger stores log in ctx for propagation across layers.
func WithLogger(ctx context.Context, log *slog.Logger) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if log == nil {
		return ctx
	}
	return context.WithValue(ctx, loggerKey, log)
}

// FromContext returns the logger stored in ctx or the global one.
func FromContext(ctx context.Context) *slog.Logger {
	if ctx != nil {
		if l, ok := ctx.Value(loggerKey).(*slog.Logger); ok && l != nil {
			return l
		}
	}
	return L
}

// WithRID attaches the request correlation id.
func WithRID(ctx context.Context, rid string) context.Context {
	return withMeta(ctx, func(m *updateMeta) { m.rid = rid })
}

// WithUpdateMeta attaches the update, user and chat ids.
func WithUpdateMeta(ctx context.Context, updateID int, userID, chatID int64) context.Context {
	return withMeta(ctx, func(m *updateMeta) {
		m.updateID, m.userID, m.chatID = updateID, userID, chatID
	})
}

// WithHandler attaches the name of the handler serving the update.
func WithHandler(ctx context.Context, handler string) context.Context {
	if handler == "" {
		if ctx == nil {
			return context.Background()
		}
		return ctx
	}
	return withMeta(ctx, func(m *updateMeta) { m.handler = handler })
}

// RIDFrom returns the correlation id of ctx.
func RIDFrom(ctx context.Context) string { return metaFrom(ctx).rid }

// HandlerFrom returns the handler name of ctx.
func HandlerFrom(ctx context.Context) string { return metaFrom(ctx).handler }

// UserIDFrom returns the Telegram user id of ctx.
func UserIDFrom(ctx context.Context) int64 { return metaFrom(ctx).userID }

// ChatIDFrom returns the chat id of ctx.
func ChatIDFrom(ctx context.Context) int64 { return metaFrom(ctx).chatID }

// UpdateIDFrom returns the update id of ctx.
func UpdateIDFrom(ctx context.Context) int { return metaFrom(ctx).updateID }

// BuildRID returns the correlation id of an update: update, chat and user
// ids in base36 joined by dots: update 12 from user 7 in a private chat is
// "c.7.7".
func BuildRID(updateID int, chatID, userID int64) string {
	var b strings.Builder
	b.WriteString(strconv.FormatInt(int64(updateID), 36))
	b.WriteByte('.')
	b.WriteString(strconv.FormatInt(chatID, 36))
	b.WriteByte('.')
	b.WriteString(strconv.FormatInt(userID, 36))
	return b.String()
}

// Sanitize drops control and format characters except tab and newline, so
// user-supplied names and callback data cannot break log lines.
func Sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if unicode.IsControl(r) || unicode.Is(unicode.Cf, r) {
			return -1
		}
		return r
	}, s)
}

// SanitizeLimit applies Sanitize and keeps at most max runes.
func SanitizeLimit(s string, max int) string {
	if max <= 0 {
		return ""
	}
	s = Sanitize(s)
	n := 0
	for i := range s {
		if n == max {
			return s[:i]
		}
		n++
	}
	return s
}
