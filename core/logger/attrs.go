package logger

import (
	"log/slog"
	"time"
)

const maxErrRunes = 512

// Err is the "err" attribute for err, sanitized and bounded.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.String("err", "")
	}
	return slog.String("err", SanitizeLimit(err.Error(), maxErrRunes))
}

// Status maps err to the "ok"/"error" status value.
func Status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// Took returns the time since start rounded to milliseconds.
func Took(start time.Time) time.Duration {
	return RoundMS(time.Since(start))
}

// RoundMS rounds d to the nearest millisecond; negative durations become zero.
func RoundMS(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return d.Round(time.Millisecond)
}
