package logger

import "strings"

const (
	// LevelDebug represents the debug severity level name.
	LevelDebug = "DEBUG"
	// LevelInfo represents the info severity level name.
	LevelInfo = "INFO"
	// LevelWarn represents the warning severity level name.
	LevelWarn = "WARN"
	// LevelError represents the error severity level name.
	LevelError = "ERROR"
)

// normalizeStatus lower-cases status values: ok, fail, error, skip, retry,
// rate_limited, cancelled.
func normalizeStatus(status string) string {
	status = strings.ToLower(strings.TrimSpace(status))
	if status == "canceled" {
		return "cancelled"
	}
	return status
}

func levelName(level string) string {
	switch strings.ToLower(level) {
	case "", "info":
		return LevelInfo
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	}
	return strings.ToUpper(level)
}

// keyOrder is the position of well-known keys in a log line. Correlation
// comes first, then the update's conversation context, then outcome details.
// Other keys follow alphabetically.
var keyOrder = []string{
	"ts", "level", "component", "event", "status",
	"rid", "update_id", "user_id", "chat_id", "handler",
	"op", "kind", "cb_key", "role", "faculty", "course", "group", "day",
	"chunks", "known", "active", "count", "task", "message_id",
	"duration_ms", "elapsed_ms", "startup_duration_ms", "uptime_ms",
	"path", "http_code", "endpoint", "action", "mode", "listen", "public_url",
	"err", "err_code", "cause", "attempt", "attempts", "delay_ms",
}

var keyRank = func() map[string]int {
	m := make(map[string]int, len(keyOrder))
	for i, k := range keyOrder {
		m[k] = i
	}
	return m
}()
