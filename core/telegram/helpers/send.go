package helpers

import (
	"errors"
	"log/slog"
	"sync/atomic"

	"github.com/smartschedule/schedulebot/core/logger"
	"github.com/smartschedule/schedulebot/core/telegram/sender"

	tele "gopkg.in/telebot.v4"
)

var globalDispatcher atomic.Pointer[sender.Dispatcher]

// SetDispatcher wires the asynchronous sender used by helper functions.
func SetDispatcher(d *sender.Dispatcher) {
	globalDispatcher.Store(d)
}

func sendAsync(c tele.Context, action, endpoint string, run func() error) error {
	disp := globalDispatcher.Load()
	if disp == nil {
		return run()
	}

	ctx := BuildContext(c)
	if err := disp.Enqueue(ctx, action, endpoint, run); err != nil {
		if errors.Is(err, sender.ErrQueueFull) || errors.Is(err, sender.ErrQueueClosed) {
			logger.Warn(ctx, "tg.sender", "queue.fallback",
				slog.String("action", action),
				slog.String("endpoint", endpoint),
				logger.Err(err),
			)
			return run()
		}
		return err
	}
	return nil
}

// SendText sends raw text (no parse mode) to the current recipient without
// blocking the update handler.
func SendText(c tele.Context, text string) error {
	return sendAsync(c, "send.text", "sendMessage", func() error {
		return c.Send(text)
	})
}

// Respond answers the pending callback query, if any, so the client stops
// showing a spinner.
func Respond(c tele.Context) {
	if c == nil || c.Callback() == nil {
		return
	}
	if err := c.Respond(); err != nil {
		logger.Debug(BuildContext(c), "tg", "callback.respond_failed", logger.Err(err))
	}
}
