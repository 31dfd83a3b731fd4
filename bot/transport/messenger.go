// Package transport delivers conversation output through the Telegram Bot API.
package transport

import (
	"bytes"
	"context"
	"fmt"
	"strconv"

	"github.com/smartschedule/schedulebot/bot/conversation"
	"github.com/smartschedule/schedulebot/core/telegram/keyboard"
	"github.com/smartschedule/schedulebot/core/telegram/sender"

	tele "gopkg.in/telebot.v4"
)

// API is the part of *tele.Bot used for outbound calls.
type API interface {
	Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error)
	Edit(msg tele.Editable, what interface{}, opts ...interface{}) (*tele.Message, error)
	Delete(msg tele.Editable) error
	Raw(method string, payload interface{}) ([]byte, error)
}

// Messenger implements conversation.Messenger. Every call goes through the
// dispatcher so transient failures are retried and failures are logged once.
type Messenger struct {
	api  API
	disp *sender.Dispatcher
}

// NewMessenger wraps api. A nil dispatcher runs calls directly.
func NewMessenger(api API, disp *sender.Dispatcher) *Messenger {
	return &Messenger{api: api, disp: disp}
}

func (m *Messenger) Send(ctx context.Context, chatID int64, msg conversation.Message) error {
	opts := &tele.SendOptions{ParseMode: tele.ModeHTML}
	switch {
	case len(msg.Buttons) > 0:
		opts.ReplyMarkup = keyboard.InlineButtonsRows(msg.Buttons...)
	case len(msg.ReplyKeyboard) > 0:
		opts.ReplyMarkup = keyboard.ReplyButtons(msg.ReplyKeyboard...)
	}
	return run(ctx, m.disp, "send.text", "sendMessage", func() error {
		_, err := m.api.Send(tele.ChatID(chatID), msg.Text, opts)
		return err
	})
}

func (m *Messenger) Delete(ctx context.Context, chatID int64, messageID int) error {
	stored := tele.StoredMessage{MessageID: strconv.Itoa(messageID), ChatID: chatID}
	return run(ctx, m.disp, "delete.message", "deleteMessage", func() error {
		return m.api.Delete(stored)
	})
}

type webAppInfo struct {
	URL string `json:"url"`
}

type menuButton struct {
	Type   string      `json:"type"`
	Text   string      `json:"text,omitempty"`
	WebApp *webAppInfo `json:"web_app,omitempty"`
}

// SetMenuLink installs a web app menu button, or the default one for an empty url.
func (m *Messenger) SetMenuLink(ctx context.Context, chatID int64, text, url string) error {
	button := menuButton{Type: "default"}
	if url != "" {
		button = menuButton{Type: "web_app", Text: text, WebApp: &webAppInfo{URL: url}}
	}
	payload := map[string]interface{}{
		"chat_id":     chatID,
		"menu_button": button,
	}
	return run(ctx, m.disp, "menu.set", "setChatMenuButton", func() error {
		_, err := m.api.Raw("setChatMenuButton", payload)
		return err
	})
}

func (m *Messenger) SendDocument(ctx context.Context, chatID int64, doc conversation.Document) error {
	return run(ctx, m.disp, "send.document", "sendDocument", func() error {
		// a fresh reader per attempt so retries upload the whole file
		file := &tele.Document{
			File:     tele.FromReader(bytes.NewReader(doc.Data)),
			FileName: doc.FileName,
			Caption:  doc.Caption,
		}
		_, err := m.api.Send(tele.ChatID(chatID), file)
		return err
	})
}

func run(ctx context.Context, disp *sender.Dispatcher, action, endpoint string, fn func() error) error {
	var err error
	if disp == nil {
		err = fn()
	} else {
		err = disp.Run(ctx, action, endpoint, fn)
	}
	if err != nil && sender.IsForbidden(err) {
		return fmt.Errorf("%w: %w", conversation.ErrBlocked, err)
	}
	return err
}
