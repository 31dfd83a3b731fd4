package commands

// Command describes a slash command shown in, or hidden from, the bot menu.
// Dispatch is handled by the conversation layer, so no handler is attached.
type Command struct {
	Description string
	AdminOnly   bool
	Hidden      bool
	Aliases     []string
}
