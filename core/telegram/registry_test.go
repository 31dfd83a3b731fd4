package telegram

import (
	"testing"

	"github.com/smartschedule/schedulebot/core/telegram/commands"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryLookupAndList(t *testing.T) {
	reg := NewRegistry()
	reg.RegisterCommand("/start", commands.Command{Description: "Start over", Aliases: []string{"begin"}})
	reg.RegisterCommand("/admin", commands.Command{Description: "Admin export", Hidden: true})
	reg.RegisterCommand("teacher", commands.Command{Description: "no slash"})
	reg.RegisterCommand("/empty", commands.Command{})
	reg.RegisterCommand("/start", commands.Command{Description: "Second start"})

	key, _, ok := reg.LookupCommand("/start@schedule_bot")
	require.True(t, ok)
	assert.Equal(t, "/start", key)

	key, _, ok = reg.LookupCommand("/begin now")
	require.True(t, ok)
	assert.Equal(t, "/start", key)

	_, cmd, ok := reg.LookupCommand("/start")
	require.True(t, ok)
	assert.Equal(t, "Start over", cmd.Description)

	_, cmd, ok = reg.LookupCommand("/admin")
	require.True(t, ok)
	assert.True(t, cmd.Hidden)

	_, _, ok = reg.LookupCommand("/unknown")
	assert.False(t, ok)

	visible := reg.ListCommands(true)
	require.Len(t, visible, 1)
	assert.Equal(t, "start", visible[0].Text)
	assert.Len(t, reg.ListCommands(false), 2)
}
