package app

import (
	"strings"

	"github.com/smartschedule/schedulebot/bot/conversation"
	coretelegram "github.com/smartschedule/schedulebot/core/telegram"
	"github.com/smartschedule/schedulebot/core/telegram/callbacks"
	tghelpers "github.com/smartschedule/schedulebot/core/telegram/helpers"
	"github.com/smartschedule/schedulebot/core/telegram/router"

	tele "gopkg.in/telebot.v4"
)

func (a *App) routes() []coretelegram.Route {
	routes := router.TextRoutes(a.registry, a.onText)
	return append(routes, router.CallbackRoute(a.onCallback))
}

func (a *App) onText(c tele.Context) error {
	ev, ok := baseEvent(c)
	if !ok {
		return nil
	}
	ev.Text = commandText(c.Text(), a.botName())
	return a.machine.HandleText(tghelpers.BuildContext(c), ev)
}

func (a *App) onCallback(c tele.Context) error {
	ev, ok := baseEvent(c)
	if !ok {
		return nil
	}
	ev.Data = callbacks.Data(c)
	if msg := c.Callback().Message; msg != nil {
		ev.MessageID = msg.ID
	}
	return a.machine.HandleCallback(tghelpers.BuildContext(c), ev)
}

func (a *App) botName() string {
	if a.bot == nil || a.bot.Me == nil {
		return ""
	}
	return a.bot.Me.Username
}

func baseEvent(c tele.Context) (conversation.Event, bool) {
	chat, user := c.Chat(), c.Sender()
	if chat == nil || user == nil {
		return conversation.Event{}, false
	}
	return conversation.Event{ChatID: chat.ID, UserID: user.ID}, true
}

// commandText strips the "@botname" suffix Telegram adds to commands in
// group chats. Any other text is returned unchanged.
func commandText(text, botName string) string {
	if botName == "" || !strings.HasPrefix(text, "/") {
		return text
	}
	cmd, mention, ok := strings.Cut(text, "@")
	if !ok || strings.ContainsAny(cmd, " \n") || !strings.EqualFold(mention, botName) {
		return text
	}
	return cmd
}
