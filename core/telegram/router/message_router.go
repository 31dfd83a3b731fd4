package router

import (
	"log/slog"
	"strings"
	"unicode/utf8"

	tg "github.com/smartschedule/schedulebot/core/telegram"
	"github.com/smartschedule/schedulebot/core/telegram/middleware"

	tele "gopkg.in/telebot.v4"
)

// TextRoutes sends every text message to handle. Registered commands are
// named after the command in handler summaries; other text logs as "text".
func TextRoutes(reg *tg.Registry, handle tele.HandlerFunc) []tg.Route {
	if handle == nil {
		return nil
	}
	handler := func(c tele.Context) error {
		text := c.Text()
		name := "text"
		if strings.HasPrefix(text, "/") {
			name = "unknown_command"
			if key, _, ok := reg.LookupCommand(text); ok {
				name = handlerName(key)
			}
		}
		return startSpan(c, name, slog.Int("len", utf8.RuneCountInString(text))).run(handle)
	}
	return []tg.Route{{
		Endpoint: tele.OnText,
		Handler:  middleware.RecoverMiddleware(middleware.LoggerMiddleware(handler)),
	}}
}
