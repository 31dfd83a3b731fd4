package telegram

import (
	"strings"
	"time"

	coreconfig "github.com/smartschedule/schedulebot/core/config"
	"github.com/smartschedule/schedulebot/core/metrics"
	"github.com/smartschedule/schedulebot/core/telegram/middleware"

	tele "gopkg.in/telebot.v4"
)

// MiddlewareOptions selects the optional parts of the shared chain.
type MiddlewareOptions struct {
	Metrics   *metrics.Metrics
	Presence  middleware.ActivityRecorder
	OnLimited func(tele.Context) error
}

// DefaultMiddlewares builds the shared middleware chain for bots. Presence is
// recorded before rate limiting so throttled updates still count as activity.
func DefaultMiddlewares(cfg *coreconfig.Config, opts MiddlewareOptions) []Middleware {
	mws := []Middleware{
		{Name: "recover", Use: middleware.RecoverMiddleware},
		{Name: "metrics", Use: middleware.MetricsMiddleware(opts.Metrics)},
		{Name: "presence", Use: middleware.PresenceMiddleware(opts.Presence)},
	}

	if cfg != nil {
		interval := time.Duration(cfg.RateLimit.IntervalMS) * time.Millisecond
		if interval > 0 {
			ex := make(map[string]struct{}, len(cfg.RateLimit.ExcludeUpdates))
			for _, t := range cfg.RateLimit.ExcludeUpdates {
				ex[strings.ToLower(t)] = struct{}{}
			}
			mws = append(mws, Middleware{
				Name: "rate_limit",
				Use: middleware.RateLimitMiddleware(middleware.RateLimitOptions{
					Interval:  interval,
					Exclude:   ex,
					OnLimited: opts.OnLimited,
				}),
			})
		}
	}

	return append(mws, Middleware{Name: "logger", Use: middleware.LoggerMiddleware})
}
