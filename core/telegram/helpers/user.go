package helpers

import (
	"strings"

	tele "gopkg.in/telebot.v4"
)

// DisplayName returns the user's @-less username, or "first last" when the
// user has none. It returns "" for a nil user.
func DisplayName(u *tele.User) string {
	if u == nil {
		return ""
	}
	if name := strings.TrimSpace(u.Username); name != "" {
		return name
	}
	return strings.TrimSpace(strings.TrimSpace(u.FirstName) + " " + strings.TrimSpace(u.LastName))
}
