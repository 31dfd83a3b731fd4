package transport

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v4"

	"github.com/smartschedule/schedulebot/bot/conversation"
	"github.com/smartschedule/schedulebot/core/telegram/keyboard"
	"github.com/smartschedule/schedulebot/core/telegram/sender"
)

type sendCall struct {
	to   tele.Recipient
	what interface{}
	opts []interface{}
}

type fakeAPI struct {
	sends   []sendCall
	edits   []tele.Editable
	deletes []tele.Editable
	raws    map[string]interface{}
	err     error
	nextID  int
}

func (f *fakeAPI) Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error) {
	f.sends = append(f.sends, sendCall{to: to, what: what, opts: opts})
	if f.err != nil {
		return nil, f.err
	}
	f.nextID++
	return &tele.Message{ID: f.nextID}, nil
}

func (f *fakeAPI) Edit(msg tele.Editable, _ interface{}, _ ...interface{}) (*tele.Message, error) {
	f.edits = append(f.edits, msg)
	return nil, f.err
}

func (f *fakeAPI) Delete(msg tele.Editable) error {
	f.deletes = append(f.deletes, msg)
	return f.err
}

func (f *fakeAPI) Raw(method string, payload interface{}) ([]byte, error) {
	if f.raws == nil {
		f.raws = map[string]interface{}{}
	}
	f.raws[method] = payload
	return []byte(`{"ok":true,"result":true}`), f.err
}

func TestSendUsesHTMLAndKeyboards(t *testing.T) {
	api := &fakeAPI{}
	m := NewMessenger(api, nil)
	ctx := context.Background()

	require.NoError(t, m.Send(ctx, 42, conversation.Message{
		Text:    "<b>hi</b>",
		Buttons: [][]keyboard.InlineBtn{{{Text: "Econ", Data: "faculty_Econ"}}},
	}))
	require.NoError(t, m.Send(ctx, 42, conversation.Message{
		Text:          "pick",
		ReplyKeyboard: [][]string{{"Monday"}},
	}))
	require.Len(t, api.sends, 2)

	first := api.sends[0]
	assert.Equal(t, "42", first.to.Recipient())
	assert.Equal(t, "<b>hi</b>", first.what)
	opts := first.opts[0].(*tele.SendOptions)
	assert.Equal(t, tele.ModeHTML, opts.ParseMode)
	require.Len(t, opts.ReplyMarkup.InlineKeyboard, 1)
	assert.Equal(t, "faculty_Econ", opts.ReplyMarkup.InlineKeyboard[0][0].Data)

	reply := api.sends[1].opts[0].(*tele.SendOptions).ReplyMarkup
	assert.True(t, reply.ResizeKeyboard)
	assert.Equal(t, "Monday", reply.ReplyKeyboard[0][0].Text)
}

func TestDeleteTargetsStoredMessage(t *testing.T) {
	api := &fakeAPI{}
	require.NoError(t, NewMessenger(api, nil).Delete(context.Background(), 42, 7))

	require.Len(t, api.deletes, 1)
	id, chat := api.deletes[0].MessageSig()
	assert.Equal(t, "7", id)
	assert.EqualValues(t, 42, chat)
}

func TestSetMenuLink(t *testing.T) {
	api := &fakeAPI{}
	m := NewMessenger(api, nil)

	require.NoError(t, m.SetMenuLink(context.Background(), 42, "Full schedule", "https://web.example/g"))
	payload := api.raws["setChatMenuButton"].(map[string]interface{})
	assert.EqualValues(t, 42, payload["chat_id"])
	assert.Equal(t, menuButton{Type: "web_app", Text: "Full schedule", WebApp: &webAppInfo{URL: "https://web.example/g"}}, payload["menu_button"])

	require.NoError(t, m.SetMenuLink(context.Background(), 42, "", ""))
	payload = api.raws["setChatMenuButton"].(map[string]interface{})
	assert.Equal(t, menuButton{Type: "default"}, payload["menu_button"])
}

func TestSendDocument(t *testing.T) {
	api := &fakeAPI{}
	doc := conversation.Document{FileName: "teachers.xlsx", Caption: "list", Data: []byte("PK")}
	require.NoError(t, NewMessenger(api, nil).SendDocument(context.Background(), 42, doc))

	require.Len(t, api.sends, 1)
	file, ok := api.sends[0].what.(*tele.Document)
	require.True(t, ok)
	assert.Equal(t, "teachers.xlsx", file.FileName)
	assert.Equal(t, "list", file.Caption)
	data, err := io.ReadAll(file.File.FileReader)
	require.NoError(t, err)
	assert.Equal(t, []byte("PK"), data)
}

func TestForbiddenMapsToBlocked(t *testing.T) {
	api := &fakeAPI{err: &tele.Error{Code: 403, Description: "Forbidden: bot was blocked by the user"}}
	d := sender.NewDispatcher(sender.Options{Workers: 1, RetryBackoff: time.Millisecond})
	defer d.Close()
	m := NewMessenger(api, d)

	err := m.Send(context.Background(), 42, conversation.Message{Text: "hi"})
	require.Error(t, err)
	assert.ErrorIs(t, err, conversation.ErrBlocked)
	assert.Len(t, api.sends, 1)

	api.err = errors.New("telegram: message to delete not found (400)")
	err = m.Delete(context.Background(), 42, 1)
	require.Error(t, err)
	assert.NotErrorIs(t, err, conversation.ErrBlocked)
}

func TestOperatorChannel(t *testing.T) {
	api := &fakeAPI{nextID: 99}
	ch := NewOperatorChannel(api, nil, -100500)

	id, err := ch.Send(context.Background(), "report")
	require.NoError(t, err)
	assert.Equal(t, 100, id)
	assert.Equal(t, "-100500", api.sends[0].to.Recipient())
	assert.Empty(t, api.sends[0].opts)

	require.NoError(t, ch.Edit(context.Background(), id, "report 2"))
	msgID, chat := api.edits[0].MessageSig()
	assert.Equal(t, "100", msgID)
	assert.EqualValues(t, -100500, chat)

	api.err = tele.ErrSameMessageContent
	err = ch.Edit(context.Background(), id, "report 2")
	assert.True(t, sender.IsNotModified(err))
}
