package callbacks

import (
	"strings"

	tele "gopkg.in/telebot.v4"
)

// ParseCallbackData splits callback data into key and payload. Telebot's
// \f<unique>|<payload> encoding is unwrapped; raw data without the prefix is
// returned whole as the key.
func ParseCallbackData(cb *tele.Callback) (string, string) {
	if cb == nil {
		return "", ""
	}
	if cb.Unique != "" {
		return cb.Unique, cb.Data
	}
	raw := strings.TrimSpace(cb.Data)
	if !strings.HasPrefix(raw, "\f") {
		return raw, ""
	}
	parts := strings.SplitN(strings.TrimPrefix(raw, "\f"), "|", 2)
	unique := strings.TrimSpace(parts[0])
	payload := ""
	if len(parts) == 2 {
		payload = parts[1]
	}
	return unique, payload
}

// Data returns the raw callback data of the current update without any telebot prefix.
func Data(c tele.Context) string {
	cb := c.Callback()
	if cb == nil {
		return ""
	}
	if cb.Unique != "" {
		if cb.Data == "" {
			return cb.Unique
		}
		return cb.Unique + "|" + cb.Data
	}
	key, payload := ParseCallbackData(cb)
	if payload == "" {
		return key
	}
	return key + "|" + payload
}

// Family returns the leading segment of a token such as "group_Econ_1_A1",
// which keeps handler names in logs bounded.
func Family(token string) string {
	token = strings.TrimSpace(token)
	if token == "" {
		return "unknown"
	}
	if i := strings.IndexByte(token, '_'); i > 0 {
		return strings.ToLower(token[:i])
	}
	return strings.ToLower(token)
}
