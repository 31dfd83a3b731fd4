// Package stats renders the presence report and keeps one operator message
// up to date with it.
package stats

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/smartschedule/schedulebot/bot/presence"
	"github.com/smartschedule/schedulebot/core/logger"
	"github.com/smartschedule/schedulebot/core/telegram/sender"
)

const (
	component = "stats"

	// maxReportRunes keeps the report under Telegram's 4096 character limit.
	maxReportRunes = 3900
	overflowRunes  = 32
)

// Channel is the operator destination of the report.
type Channel interface {
	Send(ctx context.Context, text string) (int, error)
	Edit(ctx context.Context, messageID int, text string) error
}

// Source provides presence stats at a given instant.
type Source interface {
	Snapshot(now time.Time) presence.Stats
}

// Publisher sends the first report fresh and edits that message afterwards.
type Publisher struct {
	channel Channel
	source  Source
	now     func() time.Time

	mu        sync.Mutex
	messageID int
}

// NewPublisher builds a publisher. now defaults to time.Now.
func NewPublisher(channel Channel, source Source, now func() time.Time) *Publisher {
	if now == nil {
		now = time.Now
	}
	return &Publisher{channel: channel, source: source, now: now}
}

// MessageID returns the id of the report message, 0 until one was sent.
func (p *Publisher) MessageID() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.messageID
}

// Publish renders the current stats and delivers them. An edit rejected
// because nothing changed counts as success. When the previous message is
// gone the next call sends a new one.
func (p *Publisher) Publish(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	st := p.source.Snapshot(p.now())
	text := Format(st)

	if p.messageID == 0 {
		id, err := p.channel.Send(ctx, text)
		if err != nil {
			return fmt.Errorf("send report: %w", err)
		}
		p.messageID = id
		logger.Info(ctx, component, "report.sent",
			slog.Int("message_id", id),
			slog.Int("known", st.Known),
			slog.Int("active", st.ActiveCount()),
		)
		return nil
	}

	err := p.channel.Edit(ctx, p.messageID, text)
	switch {
	case err == nil:
		logger.Debug(ctx, component, "report.edited",
			slog.Int("message_id", p.messageID),
			slog.Int("known", st.Known),
			slog.Int("active", st.ActiveCount()),
		)
		return nil
	case sender.IsNotModified(err):
		return nil
	case isMessageGone(err):
		logger.Warn(ctx, component, "report.lost", slog.Int("message_id", p.messageID))
		p.messageID = 0
		return nil
	}
	return fmt.Errorf("edit report %d: %w", p.messageID, err)
}

func isMessageGone(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "message to edit not found") ||
		strings.Contains(msg, "message can't be edited")
}

// Format renders the operator report. Active users past the message size
// limit are summarized in a trailing "and N more" line.
func Format(st presence.Stats) string {
	var b strings.Builder
	b.WriteString("📊 Statistics:\n")
	fmt.Fprintf(&b, "Total users: %d\n", st.Known)
	fmt.Fprintf(&b, "Online users: %d\n", st.ActiveCount())
	b.WriteString("Active users:\n")
	if len(st.Active) == 0 {
		b.WriteString("No active users.")
		return b.String()
	}
	size := utf8.RuneCountInString(b.String())
	for i, rec := range st.Active {
		name := rec.DisplayName
		if name == "" {
			name = "unknown"
		}
		line := fmt.Sprintf("ID: %d, Username: %s\n", rec.UserID, name)
		n := utf8.RuneCountInString(line)
		if size+n+overflowRunes > maxReportRunes {
			fmt.Fprintf(&b, "… and %d more", len(st.Active)-i)
			break
		}
		b.WriteString(line)
		size += n
	}
	return b.String()
}
