package middleware

import tele "gopkg.in/telebot.v4"

// UpdateKind classifies an update as "callback", "message" or "other".
func UpdateKind(upd tele.Update) string {
	switch {
	case upd.Callback != nil:
		return "callback"
	case upd.Message != nil:
		return "message"
	}
	return "other"
}
