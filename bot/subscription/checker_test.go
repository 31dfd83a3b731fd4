package subscription

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	tele "gopkg.in/telebot.v4"
)

type fakeLookup struct {
	chat, user string
	member     *tele.ChatMember
	err        error
}

func (f *fakeLookup) ChatMemberOf(chat, user tele.Recipient) (*tele.ChatMember, error) {
	f.chat = chat.Recipient()
	f.user = user.Recipient()
	return f.member, f.err
}

func TestIsMemberRoles(t *testing.T) {
	cases := []struct {
		member *tele.ChatMember
		want   bool
	}{
		{&tele.ChatMember{Role: tele.Member}, true},
		{&tele.ChatMember{Role: tele.Administrator}, true},
		{&tele.ChatMember{Role: tele.Creator}, true},
		{&tele.ChatMember{Role: tele.Restricted, Member: true}, true},
		{&tele.ChatMember{Role: tele.Restricted}, false},
		{&tele.ChatMember{Role: tele.Left}, false},
		{&tele.ChatMember{Role: tele.Kicked}, false},
	}
	for _, tc := range cases {
		lookup := &fakeLookup{member: tc.member}
		ok, err := NewChecker(lookup, "@campus").IsMember(context.Background(), 7)
		require.NoError(t, err)
		assert.Equal(t, tc.want, ok, tc.member.Role)
		assert.Equal(t, "@campus", lookup.chat)
		assert.Equal(t, "7", lookup.user)
	}
}

func TestIsMemberWithoutChannel(t *testing.T) {
	ok, err := NewChecker(nil, "").IsMember(context.Background(), 7)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestIsMemberErrors(t *testing.T) {
	lookup := &fakeLookup{err: errors.New("telegram: Bad Request: user not found (400)")}
	ok, err := NewChecker(lookup, "@campus").IsMember(context.Background(), 7)
	require.NoError(t, err)
	assert.False(t, ok)

	lookup.err = errors.New("connection reset")
	_, err = NewChecker(lookup, "@campus").IsMember(context.Background(), 7)
	assert.Error(t, err)
}
