package middleware

import (
	"time"

	tghelpers "github.com/smartschedule/schedulebot/core/telegram/helpers"

	tele "gopkg.in/telebot.v4"
)

// ActivityRecorder receives one call per inbound update that carries a sender.
type ActivityRecorder interface {
	RecordActivity(userID int64, displayName string, at time.Time)
}

// PresenceMiddleware records the sender's activity before any routing so
// every interaction counts, whatever handler runs afterwards.
func PresenceMiddleware(rec ActivityRecorder) tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		if rec == nil {
			return next
		}
		return func(c tele.Context) error {
			if user := c.Sender(); user != nil && user.ID != 0 {
				rec.RecordActivity(user.ID, tghelpers.DisplayName(user), time.Now())
			}
			return next(c)
		}
	}
}
