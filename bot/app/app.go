// Package app wires the schedule bot: configuration, infrastructure, the
// conversation machine, routes and background tasks.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/smartschedule/schedulebot/bot/config"
	"github.com/smartschedule/schedulebot/bot/conversation"
	"github.com/smartschedule/schedulebot/bot/export"
	"github.com/smartschedule/schedulebot/bot/presence"
	"github.com/smartschedule/schedulebot/bot/schedule"
	"github.com/smartschedule/schedulebot/bot/snapshot"
	"github.com/smartschedule/schedulebot/bot/stats"
	"github.com/smartschedule/schedulebot/bot/subscription"
	"github.com/smartschedule/schedulebot/bot/transport"
	"github.com/smartschedule/schedulebot/core/bootstrap"
	"github.com/smartschedule/schedulebot/core/logger"
	"github.com/smartschedule/schedulebot/core/metrics"
	"github.com/smartschedule/schedulebot/core/periodic"
	coretelegram "github.com/smartschedule/schedulebot/core/telegram"
	"github.com/smartschedule/schedulebot/core/telegram/commands"
	tghelpers "github.com/smartschedule/schedulebot/core/telegram/helpers"
	"github.com/smartschedule/schedulebot/core/telegram/sender"
	"github.com/smartschedule/schedulebot/migrations"

	tele "gopkg.in/telebot.v4"
)

const (
	component = "app"

	evictInterval = 10 * time.Minute

	textSlowDown = "⏳ Too many requests, please wait a moment."
)

// App owns every long-lived component of the bot.
type App struct {
	cfg *config.Config
	db  *sqlx.DB

	bot        *tele.Bot
	dispatcher *sender.Dispatcher
	metrics    *metrics.Metrics
	registry   *coretelegram.Registry

	presence  *presence.Store
	snapshots snapshot.Store
	machine   *conversation.Machine
	tasks     *periodic.Runner
}

// Bootstrap initializes logging and storage, connects the bots and restores
// presence from the last snapshot.
func Bootstrap(ctx context.Context, cfg *config.Config) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("app: nil config")
	}

	opts := bootstrap.Options{Config: cfg.CoreConfig()}
	if cfg.UsesDatabase() {
		opts.Database = &cfg.Database
		opts.Migrations = migrations.FS
	}
	res, err := bootstrap.Run(ctx, opts)
	if err != nil {
		return nil, err
	}

	bot, err := coretelegram.NewBot(cfg.CoreConfig())
	if err != nil {
		closeDB(res.DB)
		return nil, err
	}

	m := metrics.New()
	disp := sender.NewDispatcher(sender.Options{
		MaxRetries: 2,
		OnFailure:  m.RecordOutboundError,
	})

	var report stats.Channel
	if cfg.Stats.OperatorChatID != 0 {
		opBot := bot
		if token := strings.TrimSpace(cfg.Stats.OperatorToken); token != "" && token != cfg.Telegram.Token {
			if opBot, err = coretelegram.NewBotWithToken(token, nil); err != nil {
				disp.Close()
				closeDB(res.DB)
				return nil, fmt.Errorf("app: operator bot: %w", err)
			}
		}
		report = transport.NewOperatorChannel(opBot, disp, cfg.Stats.OperatorChatID)
	}

	var store snapshot.Store
	if cfg.UsesDatabase() {
		store = snapshot.NewPostgresStore(res.DB)
	} else {
		store = snapshot.NewFileStore(cfg.Snapshot.Path)
	}

	a, err := assemble(ctx, cfg, parts{
		bot:        bot,
		api:        bot,
		members:    bot,
		db:         res.DB,
		dispatcher: disp,
		metrics:    m,
		report:     report,
		snapshots:  store,
	})
	if err != nil {
		disp.Close()
		closeDB(res.DB)
		return nil, err
	}
	return a, nil
}

type parts struct {
	bot        *tele.Bot
	api        transport.API
	members    subscription.MemberLookup
	db         *sqlx.DB
	dispatcher *sender.Dispatcher
	metrics    *metrics.Metrics
	report     stats.Channel
	snapshots  snapshot.Store
}

func assemble(ctx context.Context, cfg *config.Config, p parts) (*App, error) {
	a := &App{
		cfg:        cfg,
		db:         p.db,
		bot:        p.bot,
		dispatcher: p.dispatcher,
		metrics:    p.metrics,
		registry:   coretelegram.NewRegistry(),
		presence:   presence.NewStore(cfg.Stats.ActiveWindow()),
		snapshots:  p.snapshots,
	}

	a.restorePresence(ctx)

	client := schedule.New(schedule.Options{
		BaseURL:       cfg.Schedule.BaseURL,
		WebAppBaseURL: cfg.Schedule.WebAppBaseURL,
		Timeout:       time.Duration(cfg.Schedule.TimeoutSeconds) * time.Second,
	})
	a.machine = conversation.New(conversation.Options{
		Messenger:     transport.NewMessenger(p.api, p.dispatcher),
		Schedule:      client,
		Subscriptions: subscription.NewChecker(p.members, cfg.Subscription.Channel),
		Export:        export.TeachersXLSX,
		Days:          conversation.NewDayResolver(cfg.Schedule.Location(), cfg.Schedule.WeekdayNames, nil),
		AdminSecret:   cfg.Admin.Secret,
		ChannelURL:    cfg.Subscription.ChannelURL,
		Contact:       cfg.Admin.Contact,
		ChunkSize:     cfg.Schedule.ChunkSize,
		ChunkDelay:    time.Duration(cfg.Schedule.ChunkDelayMS) * time.Millisecond,
		Shards:        cfg.Conversations.Shards,
	})

	a.registry.RegisterCommand(conversation.CmdStart, commands.Command{Description: "Restart the bot"})
	a.registry.RegisterCommand(conversation.CmdHelp, commands.Command{Description: "Help and information"})
	a.registry.RegisterCommand(conversation.CmdAdmin, commands.Command{Description: "Teacher list export", Hidden: true})

	a.tasks = periodic.New(func(task string, _ error) {
		a.metrics.RecordTaskFailure(task)
	}, a.buildTasks(p.report)...)

	logger.Info(ctx, component, "app.assembled",
		slog.String("snapshot", cfg.Snapshot.Backend),
		slog.Bool("operator", p.report != nil),
		slog.Bool("subscription", cfg.Subscription.Channel != ""),
	)
	return a, nil
}

// restorePresence merges the stored snapshot into presence. A read failure
// leaves presence as is and reports false.
func (a *App) restorePresence(ctx context.Context) bool {
	data, err := a.snapshots.Load(ctx)
	if err != nil {
		logger.Error(ctx, "snapshot", "load.failed",
			slog.String("status", "error"),
			logger.Err(err),
		)
		return false
	}
	added := a.presence.Restore(data.Known, data.Names)
	logger.Info(ctx, "presence", "restored", slog.Int("known", added))
	return true
}

func (a *App) buildTasks(report stats.Channel) []periodic.Task {
	interval := a.cfg.Stats.Interval()
	ttl := time.Duration(a.cfg.Conversations.IdleTTLMinutes) * time.Minute

	tasks := []periodic.Task{
		{
			Name:        "snapshot.save",
			Interval:    interval,
			SkipInitial: true,
			Run:         a.saveSnapshot,
		},
		{
			Name:     "conversations.evict",
			Interval: evictInterval,
			Run: func(ctx context.Context) error {
				if n := a.machine.EvictIdle(time.Now().Add(-ttl)); n > 0 {
					logger.Debug(ctx, "conversation", "evicted", slog.Int("count", n))
				}
				return nil
			},
		},
		{
			Name:     "metrics.presence",
			Interval: interval,
			Run: func(context.Context) error {
				st := a.presence.Snapshot(time.Now())
				a.metrics.SetPresence(st.Known, st.ActiveCount())
				a.metrics.SetConversations(a.machine.Conversations())
				return nil
			},
		},
	}
	if report != nil {
		pub := stats.NewPublisher(report, a.presence, nil)
		tasks = append(tasks, periodic.Task{
			Name:     "stats.publish",
			Interval: interval,
			Run:      pub.Publish,
		})
	}
	return tasks
}

func (a *App) saveSnapshot(ctx context.Context) error {
	data := snapshot.FromNames(a.presence.Known())
	err := a.snapshots.Save(ctx, data)
	if errors.Is(err, snapshot.ErrSaveSuspended) {
		if !a.restorePresence(ctx) {
			logger.Warn(ctx, "snapshot", "save.skipped", slog.Int("known", len(data.Known)))
			return nil
		}
		data = snapshot.FromNames(a.presence.Known())
		err = a.snapshots.Save(ctx, data)
	}
	if err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	logger.Debug(ctx, "snapshot", "saved", slog.Int("known", len(data.Known)))
	return nil
}

// TelegramRunOptions implements cmd.TelegramApp.
func (a *App) TelegramRunOptions() (coretelegram.RunOptions, error) {
	core := a.cfg.CoreConfig()
	return coretelegram.RunOptions{
		Config:     core,
		Registry:   a.registry,
		Bot:        a.bot,
		Dispatcher: a.dispatcher,
		Middlewares: coretelegram.DefaultMiddlewares(core, coretelegram.MiddlewareOptions{
			Metrics:  a.metrics,
			Presence: a.presence,
			OnLimited: func(c tele.Context) error {
				return tghelpers.SendText(c, textSlowDown)
			},
		}),
		Routes:  a.routes(),
		OnStart: a.onStart,
		OnStop:  a.onStop,
	}, nil
}

func (a *App) onStart(ctx context.Context, _ coretelegram.Runtime) error {
	a.tasks.Start(ctx)
	if listen := a.cfg.Metrics.Listen; listen != "" {
		go func() {
			if err := a.metrics.Serve(ctx, listen, a.cfg.Metrics.Path); err != nil {
				logger.Error(ctx, component, "metrics.serve_failed", logger.Err(err))
			}
		}()
		logger.Info(ctx, component, "metrics.listening", slog.String("listen", listen))
	}
	return nil
}

// onStop halts the background tasks and writes the final snapshot.
func (a *App) onStop(ctx context.Context, _ coretelegram.Runtime) error {
	a.tasks.Stop()
	if err := a.saveSnapshot(ctx); err != nil {
		logger.Error(ctx, component, "snapshot.final_failed",
			slog.String("status", "error"),
			logger.Err(err),
		)
		return err
	}
	return nil
}

// Close implements cmd.TelegramApp.
func (a *App) Close() error {
	if a.dispatcher != nil {
		a.dispatcher.Close()
		logger.Info(logger.Background(), component, "outbound.summary",
			slog.Uint64("failed", a.dispatcher.ErrorCount()),
		)
	}
	if a.db != nil {
		return a.db.Close()
	}
	return nil
}

func closeDB(db *sqlx.DB) {
	if db != nil {
		_ = db.Close()
	}
}
