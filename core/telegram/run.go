package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	coreconfig "github.com/smartschedule/schedulebot/core/config"
	"github.com/smartschedule/schedulebot/core/logger"
	"github.com/smartschedule/schedulebot/core/netutil"
	tghelpers "github.com/smartschedule/schedulebot/core/telegram/helpers"
	tgsender "github.com/smartschedule/schedulebot/core/telegram/sender"

	tele "gopkg.in/telebot.v4"
)

// Middleware describes a global bot middleware to be registered via bot.Use.
type Middleware struct {
	Name string
	Use  func(next tele.HandlerFunc) tele.HandlerFunc
}

// Route declares a single bot handler bound to an arbitrary endpoint.
// Endpoint values are passed directly to tele.Bot.Handle.
type Route struct {
	Endpoint any
	Handler  tele.HandlerFunc
}

// RunOptions controls the behaviour of RunTelegram.
type RunOptions struct {
	Config   *coreconfig.Config
	Registry *Registry
	// Bot is used as-is when set; otherwise RunTelegram builds one from Config.
	Bot *tele.Bot

	Dispatcher *tgsender.Dispatcher

	Middlewares []Middleware
	Routes      []Route

	OnStart func(ctx context.Context, rt Runtime) error
	OnStop  func(ctx context.Context, rt Runtime) error
}

// Runtime exposes runtime components to lifecycle hooks.
type Runtime struct {
	Bot        *tele.Bot
	Dispatcher *tgsender.Dispatcher
	Registry   *Registry
}

// NewBot builds a telebot instance for the configured run mode with the
// shared retrying HTTP client.
func NewBot(cfg *coreconfig.Config) (*tele.Bot, error) {
	if cfg == nil {
		return nil, fmt.Errorf("telegram: nil config provided")
	}
	poller := BuildPoller(PollerOptions{
		RunMode:                cfg.Telegram.RunMode,
		LongPollTimeoutSeconds: cfg.Telegram.LongPollTimeoutSeconds,
		Webhook: WebhookOptions{
			Listen: cfg.Webhook.Listen,
			Port:   cfg.Webhook.Port,
			URL:    cfg.Webhook.URL,
		},
	})
	return NewBotWithToken(cfg.Telegram.Token, poller)
}

// NewBotWithToken builds a bot for token. A nil poller gives a send-only bot
// that never calls Start, as used for the operator channel.
func NewBotWithToken(token string, poller tele.Poller) (*tele.Bot, error) {
	if strings.TrimSpace(token) == "" {
		return nil, fmt.Errorf("telegram: empty token")
	}
	bot, err := tele.NewBot(tele.Settings{
		Token:  token,
		Poller: poller,
		Client: netutil.NewHTTPClient(netutil.ClientOptions{}),
		// handler failures are already reported by the route summary
		OnError: func(err error, c tele.Context) {
			ctx := logger.Background()
			if c != nil {
				ctx = tghelpers.BuildContext(c)
			}
			logger.Debug(ctx, "tg", "handler.error", logger.Err(err))
		},
	})
	if err != nil {
		return nil, fmt.Errorf("telegram: bot initialization failed: %w", err)
	}
	return bot, nil
}

// RunTelegram wires the bot from opts and serves updates until ctx is done.
// OnStop runs with a fresh context bounded by stopTimeout, since ctx is
// already cancelled by then.
func RunTelegram(ctx context.Context, opts RunOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if opts.Config == nil {
		return fmt.Errorf("telegram: nil config provided")
	}

	rt, release, err := wire(ctx, opts)
	if err != nil {
		return err
	}
	defer release()

	if opts.OnStart != nil {
		if err := opts.OnStart(ctx, rt); err != nil {
			return err
		}
	}

	runErr := serve(ctx, rt.Bot)

	if opts.OnStop != nil {
		stopCtx, cancel := context.WithTimeout(context.Background(), stopTimeout)
		defer cancel()
		if err := opts.OnStop(stopCtx, rt); err != nil {
			return err
		}
	}
	if errors.Is(runErr, context.Canceled) {
		return nil
	}
	return runErr
}

const stopTimeout = 15 * time.Second

// wire builds the runtime: bot, dispatcher, middlewares, routes and the
// command menu. release undoes the dispatcher part.
func wire(ctx context.Context, opts RunOptions) (Runtime, func(), error) {
	rt := Runtime{Bot: opts.Bot, Dispatcher: opts.Dispatcher, Registry: opts.Registry}
	if rt.Registry == nil {
		rt.Registry = NewRegistry()
	}

	start := time.Now()
	if rt.Bot == nil {
		bot, err := NewBot(opts.Config)
		if err != nil {
			return Runtime{}, nil, err
		}
		rt.Bot = bot
	}
	logMode(ctx, rt.Bot, opts.Config, time.Since(start))

	owned := rt.Dispatcher == nil
	if owned {
		rt.Dispatcher = tgsender.NewDispatcher(tgsender.Options{})
	}
	tghelpers.SetDispatcher(rt.Dispatcher)
	release := func() {
		tghelpers.SetDispatcher(nil)
		if owned {
			rt.Dispatcher.Close()
		}
	}

	for _, mw := range opts.Middlewares {
		if mw.Use != nil {
			rt.Bot.Use(mw.Use)
		}
	}
	for _, route := range opts.Routes {
		if route.Endpoint != nil && route.Handler != nil {
			rt.Bot.Handle(route.Endpoint, route.Handler)
		}
	}
	InitBotCommands(rt.Bot, rt.Registry)
	return rt, release, nil
}

// logMode reports the update source. Long polling first drops a webhook
// left over from an earlier webhook deployment.
func logMode(ctx context.Context, bot *tele.Bot, cfg *coreconfig.Config, took time.Duration) {
	if hook, ok := bot.Poller.(*tele.Webhook); ok {
		logger.Info(ctx, "tg", "mode.selected",
			slog.String("mode", "webhook"),
			slog.String("listen", hook.Listen),
			slog.Duration("duration", logger.RoundMS(took)),
		)
		return
	}
	logger.Info(ctx, "tg", "mode.selected",
		slog.String("mode", "polling"),
		slog.Duration("duration", logger.RoundMS(took)),
	)
	if strings.EqualFold(cfg.Telegram.RunMode, coreconfig.RunModeLongpoll) {
		if err := bot.RemoveWebhook(false); err != nil {
			logger.Warn(ctx, "tg", "webhook.delete_failed", logger.Err(err))
		}
	}
}

// serve runs the poller until ctx is done or the bot stops by itself.
func serve(ctx context.Context, bot *tele.Bot) error {
	done := make(chan struct{})
	go func() {
		defer close(done)
		bot.Start()
	}()
	select {
	case <-ctx.Done():
		bot.Stop()
		<-done
		return ctx.Err()
	case <-done:
		return nil
	}
}
