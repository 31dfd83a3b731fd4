package router

import (
	"log/slog"

	"github.com/smartschedule/schedulebot/core/logger"
	tg "github.com/smartschedule/schedulebot/core/telegram"
	"github.com/smartschedule/schedulebot/core/telegram/callbacks"
	tghelpers "github.com/smartschedule/schedulebot/core/telegram/helpers"
	"github.com/smartschedule/schedulebot/core/telegram/middleware"

	tele "gopkg.in/telebot.v4"
)

// CallbackRoute answers every callback query and passes it to handle.
// Handler names in summaries use the token family, e.g. "callback.group".
func CallbackRoute(handle tele.HandlerFunc) tg.Route {
	handler := func(c tele.Context) error {
		if c.Callback() == nil {
			return nil
		}

		data := callbacks.Data(c)
		s := startSpan(c, "callback."+callbacks.Family(data), slog.String("cb_key", logger.SanitizeLimit(data, 64)))
		tghelpers.Respond(c)

		if handle == nil {
			s.end("cancelled", nil)
			return nil
		}
		return s.run(handle)
	}
	return tg.Route{
		Endpoint: tele.OnCallback,
		Handler:  middleware.RecoverMiddleware(middleware.LoggerMiddleware(handler)),
	}
}
