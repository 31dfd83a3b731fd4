package transport

import (
	"context"
	"strconv"

	"github.com/smartschedule/schedulebot/core/telegram/sender"

	tele "gopkg.in/telebot.v4"
)

// OperatorChannel posts the stats report to one chat. It implements
// stats.Channel.
type OperatorChannel struct {
	api  API
	disp *sender.Dispatcher
	chat int64
}

// NewOperatorChannel targets chatID through api, which may belong to a
// separate operator bot.
func NewOperatorChannel(api API, disp *sender.Dispatcher, chatID int64) *OperatorChannel {
	return &OperatorChannel{api: api, disp: disp, chat: chatID}
}

// Send posts text as plain text and returns the new message id.
func (o *OperatorChannel) Send(ctx context.Context, text string) (int, error) {
	var id int
	err := run(ctx, o.disp, "stats.send", "sendMessage", func() error {
		msg, err := o.api.Send(tele.ChatID(o.chat), text)
		if err != nil {
			return err
		}
		if msg != nil {
			id = msg.ID
		}
		return nil
	})
	return id, err
}

// Edit replaces the text of messageID.
func (o *OperatorChannel) Edit(ctx context.Context, messageID int, text string) error {
	stored := tele.StoredMessage{MessageID: strconv.Itoa(messageID), ChatID: o.chat}
	return run(ctx, o.disp, "stats.edit", "editMessageText", func() error {
		_, err := o.api.Edit(stored, text)
		return err
	})
}
