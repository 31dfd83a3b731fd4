package stats

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	tele "gopkg.in/telebot.v4"

	"github.com/smartschedule/schedulebot/bot/presence"
)

type fakeChannel struct {
	sent    []string
	edits   []string
	editIDs []int
	nextID  int
	sendErr error
	editErr error
}

func (f *fakeChannel) Send(_ context.Context, text string) (int, error) {
	if f.sendErr != nil {
		return 0, f.sendErr
	}
	f.nextID++
	f.sent = append(f.sent, text)
	return f.nextID, nil
}

func (f *fakeChannel) Edit(_ context.Context, id int, text string) error {
	f.editIDs = append(f.editIDs, id)
	f.edits = append(f.edits, text)
	return f.editErr
}

var now = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

func newPublisher(ch Channel) (*Publisher, *presence.Store) {
	store := presence.NewStore(5 * time.Minute)
	return NewPublisher(ch, store, func() time.Time { return now }), store
}

func TestPublishSendsThenEdits(t *testing.T) {
	ch := &fakeChannel{nextID: 100}
	p, store := newPublisher(ch)
	ctx := context.Background()

	require.NoError(t, p.Publish(ctx))
	assert.Equal(t, 101, p.MessageID())
	require.Len(t, ch.sent, 1)
	assert.Contains(t, ch.sent[0], "Total users: 0")
	assert.Contains(t, ch.sent[0], "No active users.")

	store.RecordActivity(7, "alice", now)
	require.NoError(t, p.Publish(ctx))
	require.NoError(t, p.Publish(ctx))

	assert.Len(t, ch.sent, 1)
	assert.Equal(t, []int{101, 101}, ch.editIDs)
	assert.Contains(t, ch.edits[0], "ID: 7, Username: alice")
}

func TestPublishNotModifiedIsSuccess(t *testing.T) {
	ch := &fakeChannel{}
	p, _ := newPublisher(ch)
	ctx := context.Background()
	require.NoError(t, p.Publish(ctx))

	ch.editErr = tele.ErrSameMessageContent
	assert.NoError(t, p.Publish(ctx))

	ch.editErr = errors.New("telegram: Bad Request: message is not modified (400)")
	assert.NoError(t, p.Publish(ctx))
	assert.Equal(t, 1, p.MessageID())
}

func TestPublishRetriesInitialSend(t *testing.T) {
	ch := &fakeChannel{sendErr: errors.New("network down")}
	p, _ := newPublisher(ch)
	ctx := context.Background()

	assert.Error(t, p.Publish(ctx))
	assert.Equal(t, 0, p.MessageID())

	ch.sendErr = nil
	require.NoError(t, p.Publish(ctx))
	assert.Equal(t, 1, p.MessageID())
	assert.Empty(t, ch.edits)
}

func TestPublishEditFailure(t *testing.T) {
	ch := &fakeChannel{}
	p, _ := newPublisher(ch)
	ctx := context.Background()
	require.NoError(t, p.Publish(ctx))

	ch.editErr = errors.New("timeout")
	assert.Error(t, p.Publish(ctx))
	assert.Equal(t, 1, p.MessageID())

	ch.editErr = errors.New("telegram: Bad Request: message to edit not found (400)")
	assert.NoError(t, p.Publish(ctx))
	assert.Equal(t, 0, p.MessageID())

	ch.editErr = nil
	require.NoError(t, p.Publish(ctx))
	assert.Len(t, ch.sent, 2)
}

func TestFormat(t *testing.T) {
	text := Format(presence.Stats{
		Known: 3,
		Active: []presence.Record{
			{UserID: 7, DisplayName: "A:B"},
			{UserID: 9},
		},
	})
	assert.Equal(t, "📊 Statistics:\nTotal users: 3\nOnline users: 2\nActive users:\nID: 7, Username: A:B\nID: 9, Username: unknown\n", text)
}

func TestFormatCapsActiveList(t *testing.T) {
	st := presence.Stats{Known: 500}
	for i := 0; i < 150; i++ {
		st.Active = append(st.Active, presence.Record{
			UserID:      int64(1_000_000_000 + i),
			DisplayName: fmt.Sprintf("Firstname Lastname (@user_%03d)", i),
		})
	}

	text := Format(st)
	assert.LessOrEqual(t, utf8.RuneCountInString(text), maxReportRunes)
	assert.Contains(t, text, "Online users: 150\n")
	assert.Contains(t, text, "ID: 1000000000, Username: Firstname Lastname (@user_000)\n")

	shown := strings.Count(text, "ID: ")
	require.Less(t, shown, 150)
	assert.True(t, strings.HasSuffix(text, fmt.Sprintf("… and %d more", 150-shown)))
}
