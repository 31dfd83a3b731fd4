package sender

import (
	"context"
	"crypto/tls"
	"errors"
	"net"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	tele "gopkg.in/telebot.v4"
)

// Failure kinds used as the err_code log value and the metrics label.
const (
	// KindForbidden labels failures caused by a user blocking the bot or leaving a chat.
	KindForbidden = "forbidden"
	// KindNotModified labels edits whose content equals the current message.
	KindNotModified = "not_modified"
	KindFlood       = "flood"
	KindTimeout     = "timeout"
	KindDNS         = "dns"
	KindDial        = "dial"
	KindTLS         = "tls"
	KindHTTP4xx     = "http_4xx"
	KindHTTP5xx     = "http_5xx"
	KindUnknown     = "unknown"
)

var (
	// trailing "(403)" of telebot error strings
	statusSuffixRe = regexp.MustCompile(`\((\d{3})\)\s*$`)
	tokenRe        = regexp.MustCompile(`bot[0-9]+:[A-Za-z0-9_-]+`)
)

// IsForbidden reports whether Telegram refused delivery to the recipient.
func IsForbidden(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *tele.Error
	if errors.As(err, &apiErr) && apiErr.Code == http.StatusForbidden {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "forbidden:")
}

// IsNotModified reports whether an edit was rejected because nothing changed.
func IsNotModified(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, tele.ErrSameMessageContent) {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "message is not modified")
}

// ClassifyError maps an outbound failure to one of the Kind labels, or ""
// for nil.
func ClassifyError(err error) string {
	if err == nil {
		return ""
	}
	if IsNotModified(err) {
		return KindNotModified
	}
	if IsForbidden(err) {
		return KindForbidden
	}

	var (
		flood  tele.FloodError
		dnsErr *net.DNSError
		opErr  *net.OpError
		netErr net.Error
		alert  tls.AlertError
	)
	switch {
	case errors.As(err, &flood):
		return KindFlood
	case errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	case errors.As(err, &dnsErr):
		if dnsErr.IsTimeout {
			return KindTimeout
		}
		return KindDNS
	case errors.As(err, &netErr) && netErr.Timeout():
		return KindTimeout
	case errors.As(err, &opErr) && opErr.Op == "dial":
		return KindDial
	case errors.As(err, &alert):
		return KindTLS
	}

	switch code := statusCode(err); {
	case code >= 500:
		return KindHTTP5xx
	case code >= 400:
		return KindHTTP4xx
	}
	return KindUnknown
}

// statusCode extracts the HTTP status of a Bot API failure, 0 when unknown.
func statusCode(err error) int {
	var apiErr *tele.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	var groupErr tele.GroupError
	if errors.As(err, &groupErr) {
		return http.StatusBadRequest
	}
	if m := statusSuffixRe.FindStringSubmatch(err.Error()); m != nil {
		code, _ := strconv.Atoi(m[1])
		return code
	}
	return 0
}

// redactToken strips bot tokens from error text before it is logged.
func redactToken(err error) string {
	if err == nil {
		return ""
	}
	return tokenRe.ReplaceAllString(err.Error(), "bot<redacted>")
}
