package helpers

import (
	"context"

	"github.com/smartschedule/schedulebot/core/logger"

	tele "gopkg.in/telebot.v4"
)

// updateCtxKey is where the per-update context lives in tele.Context.
const updateCtxKey = "update_ctx"

// UpdateIDs returns the update, chat and sender ids of c. Missing parts are zero.
func UpdateIDs(c tele.Context) (updateID int, chatID, userID int64) {
	if c == nil {
		return 0, 0, 0
	}
	if chat := c.Chat(); chat != nil {
		chatID = chat.ID
	}
	if user := c.Sender(); user != nil {
		userID = user.ID
	}
	return c.Update().ID, chatID, userID
}

// StoreContext attaches ctx to c so later middleware and handlers share it.
func StoreContext(c tele.Context, ctx context.Context) {
	if c != nil && ctx != nil {
		c.Set(updateCtxKey, ctx)
	}
}

// ContextFrom returns the context stored on c, if any.
func ContextFrom(c tele.Context) (context.Context, bool) {
	if c == nil {
		return nil, false
	}
	ctx, ok := c.Get(updateCtxKey).(context.Context)
	return ctx, ok && ctx != nil
}

// BuildContext returns the update context of c, creating it on first use.
// It carries the rid and the update, chat and user ids for logging.
func BuildContext(c tele.Context) context.Context {
	if ctx, ok := ContextFrom(c); ok {
		return ctx
	}
	updateID, chatID, userID := UpdateIDs(c)

	ctx := logger.WithRID(context.Background(), logger.BuildRID(updateID, chatID, userID))
	ctx = logger.WithUpdateMeta(ctx, updateID, userID, chatID)
	ctx = logger.WithLogger(ctx, logger.Component("tg"))
	StoreContext(c, ctx)
	return ctx
}

// WithHandler tags the update context with the handler name.
func WithHandler(c tele.Context, handler string) context.Context {
	ctx := BuildContext(c)
	if handler != "" {
		ctx = logger.WithHandler(ctx, handler)
		StoreContext(c, ctx)
	}
	return ctx
}
