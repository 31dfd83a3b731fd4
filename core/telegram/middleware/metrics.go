package middleware

import (
	"time"

	"github.com/smartschedule/schedulebot/core/logger"
	"github.com/smartschedule/schedulebot/core/metrics"

	tele "gopkg.in/telebot.v4"
)

// MetricsMiddleware counts inbound updates by kind and times the handler chain.
// A nil collector turns it into a pass-through.
func MetricsMiddleware(m *metrics.Metrics) tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		if m == nil {
			return next
		}
		return func(c tele.Context) error {
			kind := UpdateKind(c.Update())
			m.RecordUpdate(kind)
			start := time.Now()
			err := next(c)
			m.ObserveHandler(kind, logger.Status(err), time.Since(start))
			return err
		}
	}
}
