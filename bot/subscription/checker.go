// Package subscription checks that a user joined the required channel.
package subscription

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/smartschedule/schedulebot/core/logger"

	tele "gopkg.in/telebot.v4"
)

// MemberLookup is the part of *tele.Bot the checker needs.
type MemberLookup interface {
	ChatMemberOf(chat, user tele.Recipient) (*tele.ChatMember, error)
}

type recipient string

func (r recipient) Recipient() string { return string(r) }

// Checker answers membership questions for one channel.
type Checker struct {
	lookup  MemberLookup
	channel string
}

// NewChecker builds a checker for channel ("@name" or a numeric id). An
// empty channel treats everyone as subscribed.
func NewChecker(lookup MemberLookup, channel string) *Checker {
	return &Checker{lookup: lookup, channel: strings.TrimSpace(channel)}
}

// IsMember reports whether userID is a member, administrator or creator.
func (c *Checker) IsMember(ctx context.Context, userID int64) (bool, error) {
	if c.channel == "" || c.lookup == nil {
		return true, nil
	}
	member, err := c.lookup.ChatMemberOf(recipient(c.channel), recipient(fmt.Sprint(userID)))
	if err != nil {
		if isUnknownUser(err) {
			return false, nil
		}
		return false, fmt.Errorf("subscription: check %d in %s: %w", userID, c.channel, err)
	}
	ok := Subscribed(member)
	logger.Debug(ctx, "subscription", "check",
		slog.Int64("user_id", userID),
		slog.String("role", string(member.Role)),
		slog.Bool("subscribed", ok),
	)
	return ok, nil
}

// Subscribed maps a chat member record to the subscription decision.
func Subscribed(m *tele.ChatMember) bool {
	if m == nil {
		return false
	}
	switch m.Role {
	case tele.Member, tele.Administrator, tele.Creator:
		return true
	case tele.Restricted:
		return m.Member
	}
	return false
}

func isUnknownUser(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "user not found") || strings.Contains(msg, "participant_id_invalid")
}
