package telegram

import (
	"context"
	"log/slog"
	"sort"
	"strings"

	"github.com/smartschedule/schedulebot/core/logger"
	"github.com/smartschedule/schedulebot/core/telegram/commands"

	tele "gopkg.in/telebot.v4"
)

const wireComponent = "tg.wire"

// Registry holds the slash commands the bot advertises and recognizes.
type Registry struct {
	commands map[string]commands.Command
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{commands: make(map[string]commands.Command)}
}

// RegisterCommand adds cmd under name, which must start with '/'. Invalid
// and duplicate registrations are logged and ignored.
func (r *Registry) RegisterCommand(name string, cmd commands.Command) {
	if r == nil {
		return
	}
	reason := ""
	switch _, dup := r.commands[name]; {
	case cmd.Description == "":
		reason = "no_description"
	case !strings.HasPrefix(name, "/") || len(name) < 2:
		reason = "bad_name"
	case dup:
		reason = "duplicate"
	}
	if reason != "" {
		logger.Warn(context.Background(), wireComponent, "command.skipped",
			slog.String("name", logger.SanitizeLimit(name, 64)),
			slog.String("reason", reason),
		)
		return
	}
	r.commands[name] = cmd
}

// ListCommands returns a slice of tele.Command, optionally filtering out hidden and admin-only commands.
func (r *Registry) ListCommands(visibleOnly bool) []tele.Command {
	var list []tele.Command
	for cmd, meta := range r.commands {
		if visibleOnly && (meta.Hidden || meta.AdminOnly) {
			continue
		}
		list = append(list, tele.Command{Text: strings.TrimPrefix(cmd, "/"), Description: meta.Description})
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Text < list[j].Text })
	return list
}

// LookupCommand resolves text such as "/start" or "/start@my_bot" to a
// registered command by name or alias, returning the canonical key.
func (r *Registry) LookupCommand(text string) (string, commands.Command, bool) {
	if r == nil {
		return "", commands.Command{}, false
	}
	name := strings.TrimSpace(text)
	if i := strings.IndexAny(name, " \n"); i >= 0 {
		name = name[:i]
	}
	if i := strings.IndexByte(name, '@'); i >= 0 {
		name = name[:i]
	}
	if !strings.HasPrefix(name, "/") {
		name = "/" + name
	}
	if cmd, ok := r.commands[name]; ok {
		return name, cmd, true
	}
	for key, cmd := range r.commands {
		for _, alias := range cmd.Aliases {
			if alias == name || "/"+alias == name {
				return key, cmd, true
			}
		}
	}
	return "", commands.Command{}, false
}

// InitBotCommands publishes the visible commands as the bot's menu.
func InitBotCommands(bot *tele.Bot, reg *Registry) {
	if bot == nil || reg == nil {
		return
	}
	ctx := context.Background()
	menu := reg.ListCommands(true)
	if err := bot.SetCommands(menu); err != nil {
		logger.Error(ctx, wireComponent, "menu.set_failed", logger.Err(err))
		return
	}
	logger.Info(ctx, wireComponent, "menu.set", slog.Int("count", len(menu)))
}
