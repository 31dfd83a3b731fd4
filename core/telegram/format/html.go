package format

import "strings"

var htmlEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

// EscapeHTML escapes text for Telegram's HTML parse mode. Only &, < and > need escaping.
func EscapeHTML(text string) string {
	return htmlEscaper.Replace(text)
}

// Bold wraps escaped text in <b> tags.
func Bold(text string) string {
	return "<b>" + EscapeHTML(text) + "</b>"
}
