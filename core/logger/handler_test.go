package logger

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	coreconfig "github.com/smartschedule/schedulebot/core/config"
)

type lineBuffer struct {
	mu    sync.Mutex
	lines []string
}

func (b *lineBuffer) Write(line []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lines = append(b.lines, strings.TrimSuffix(string(line), "\n"))
	return nil
}

func (b *lineBuffer) last(t *testing.T) string {
	t.Helper()
	b.mu.Lock()
	defer b.mu.Unlock()
	require.NotEmpty(t, b.lines)
	return b.lines[len(b.lines)-1]
}

func testLogger(format logFormat) (*slog.Logger, *lineBuffer) {
	buf := &lineBuffer{}
	return slog.New(newStructuredHandler(buf, format, slog.LevelInfo)), buf
}

func TestKVLineOrder(t *testing.T) {
	log, buf := testLogger(formatKV)
	ctx := WithRID(Background(), BuildRID(42, 9, 7))
	ctx = WithUpdateMeta(ctx, 42, 7, 9)
	ctx = WithHandler(ctx, "text")

	LogEvent(ctx, log.With("component", "conversation"), slog.LevelInfo, "day.sent",
		slog.String("day", "Monday"),
		slog.String("status", "OK"),
		slog.Int("chunks", 0),
		slog.String("role", "student"),
	)

	line := buf.last(t)
	want := []string{"ts=", "level=INFO", "component=conversation", "event=day.sent", "status=ok",
		"rid=16.9.7", "update_id=42", "user_id=7", "chat_id=9", "handler=text", "role=student", "day=Monday", "chunks=0"}
	tokens := strings.Split(line, " ")
	require.Len(t, tokens, len(want), line)
	for i, prefix := range want {
		assert.True(t, strings.HasPrefix(tokens[i], prefix), "token %d = %s, want %s", i, tokens[i], prefix)
	}
}

func TestJSONLine(t *testing.T) {
	log, buf := testLogger(formatJSON)
	LogEvent(WithUpdateMeta(Background(), 11, 22, 33), log.With("component", "schedule"), slog.LevelError, "request.fail",
		slog.String("path", "/get_day"),
		Err(errors.New("boom")),
		slog.String("extra", "z"),
	)

	line := buf.last(t)
	prefixes := []string{`{"ts":`, `"level":"ERROR"`, `"component":"schedule"`, `"event":"request.fail"`,
		`"update_id":11`, `"user_id":22`, `"chat_id":33`, `"path":"/get_day"`, `"err":"boom"`, `"extra":"z"}`}
	pos := -1
	for _, pref := range prefixes {
		idx := strings.Index(line, pref)
		require.NotEqual(t, -1, idx, "%s missing in %s", pref, line)
		require.Greater(t, idx, pos, "%s out of order in %s", pref, line)
		pos = idx
	}
	assert.NotContains(t, line, "rid")
}

func TestValueNormalization(t *testing.T) {
	log, buf := testLogger(formatKV)
	LogEvent(Background(), log.WithGroup("sel"), slog.LevelWarn, "",
		slog.Duration("duration", 1500*time.Microsecond),
		slog.Duration("delay_ms", 2*time.Second),
		slog.String("empty", ""),
		slog.String("name", "Tom Jerry"),
	)

	line := buf.last(t)
	assert.Contains(t, line, "event=unknown")
	assert.Contains(t, line, "component=app")
	assert.Contains(t, line, "sel.duration_ms=2")
	assert.Contains(t, line, "sel.delay_ms=2000")
	assert.Contains(t, line, `sel.name="Tom Jerry"`)
	assert.NotContains(t, line, "empty")
}

func TestLevelFilter(t *testing.T) {
	log, buf := testLogger(formatKV)
	LogEvent(Background(), log, slog.LevelDebug, "noise")
	assert.Empty(t, buf.lines)
}

func TestLineSinkFlushAndClose(t *testing.T) {
	var out bytes.Buffer
	s := newLineSink(16, &out)
	require.NoError(t, s.Write([]byte("one\n")))
	require.NoError(t, s.Write([]byte("two\n")))
	require.NoError(t, s.Flush())
	assert.Equal(t, "one\ntwo\n", out.String())

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	assert.ErrorIs(t, s.Write([]byte("late\n")), errSinkClosed)
	assert.NoError(t, s.Flush())
}

func TestDebugSampling(t *testing.T) {
	t.Cleanup(func() { setDebugEvery(defaultDebugEvery) })
	setDebugEvery(3)
	var got []bool
	for i := 0; i < 6; i++ {
		got = append(got, ShouldSampleDebug())
	}
	assert.Equal(t, []bool{true, false, false, true, false, false}, got)

	setDebugEvery(0)
	assert.True(t, ShouldSampleDebug())
	assert.True(t, ShouldSampleDebug())
}

func TestSettingsFrom(t *testing.T) {
	s := settingsFrom(nil)
	assert.Equal(t, formatJSON, s.format)
	assert.Equal(t, slog.LevelInfo, s.level)
	assert.Equal(t, defaultDebugEvery, s.debugEvery)

	s = settingsFrom(&coreconfig.Config{Logging: coreconfig.LoggingConfig{
		Level:      "warning",
		Profile:    "Dev",
		DebugEvery: 5,
		Dir:        "logs",
		File:       "bot.log",
	}})
	assert.Equal(t, formatKV, s.format)
	assert.Equal(t, slog.LevelWarn, s.level)
	assert.Equal(t, 5, s.debugEvery)
	assert.Equal(t, "logs/bot.log", s.file)

	s = settingsFrom(&coreconfig.Config{Logging: coreconfig.LoggingConfig{Format: "json", Profile: "debug", File: "bot.log"}})
	assert.Equal(t, formatJSON, s.format)
	assert.Empty(t, s.file)
}

func TestBuildRID(t *testing.T) {
	assert.Equal(t, "z.10.0", BuildRID(35, 36, 0))
	assert.Equal(t, "c.-1.7", BuildRID(12, -1, 7))
}

func TestContextMetaIsCopied(t *testing.T) {
	base := WithUpdateMeta(Background(), 1, 2, 3)
	tagged := WithHandler(base, "callback")

	assert.Empty(t, HandlerFrom(base))
	assert.Equal(t, "callback", HandlerFrom(tagged))
	assert.Equal(t, int64(3), ChatIDFrom(tagged))
	assert.Equal(t, 1, UpdateIDFrom(tagged))
}

func TestSanitizeLimit(t *testing.T) {
	assert.Equal(t, "ab\tc", Sanitize("a\x00b\tc\u200b"))
	assert.Equal(t, "При", SanitizeLimit("Привет", 3))
	assert.Equal(t, "abc", SanitizeLimit("abc", 10))
	assert.Equal(t, "", SanitizeLimit("abc", 0))
}
