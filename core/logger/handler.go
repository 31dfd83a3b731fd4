package logger

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
)

type logFormat string

const (
	formatJSON logFormat = "json"
	formatKV   logFormat = "kv"

	timeFormatMillis = "2006-01-02T15:04:05.000Z07:00"
)

type lineWriter interface {
	Write(line []byte) error
}

// structuredHandler renders records as one JSON object or one key=value line
// with a stable key order.
type structuredHandler struct {
	level  slog.Leveler
	out    lineWriter
	format logFormat
	attrs  []slog.Attr
	groups []string
}

func newStructuredHandler(out lineWriter, format logFormat, level slog.Leveler) *structuredHandler {
	if level == nil {
		level = slog.LevelInfo
	}
	return &structuredHandler{level: level, out: out, format: format}
}

// Enabled implements slog.Handler.
func (h *structuredHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

// Handle implements slog.Handler.
func (h *structuredHandler) Handle(ctx context.Context, r slog.Record) error {
	if h.out == nil {
		return fmt.Errorf("logger: writer not initialized")
	}

	var fs fieldSet
	fs.set("ts", r.Time.UTC().Truncate(time.Millisecond).Format(timeFormatMillis))
	fs.set("level", levelName(r.Level.String()))
	prefix := strings.Join(h.groups, ".")
	for _, a := range h.attrs {
		fs.addAttr(prefix, a)
	}
	r.Attrs(func(a slog.Attr) bool {
		fs.addAttr(prefix, a)
		return true
	})

	m := metaFrom(ctx)
	fs.setDefault("rid", m.rid)
	fs.setDefault("handler", m.handler)
	for key, id := range map[string]int64{"update_id": int64(m.updateID), "user_id": m.userID, "chat_id": m.chatID} {
		if id != 0 {
			fs.setDefault(key, id)
		}
	}

	event := r.Message
	if event == "" {
		event = "unknown"
	}
	fs.setDefault("event", event)
	fs.setDefault("component", "app")
	if status, ok := fs.get("status").(string); ok {
		fs.set("status", normalizeStatus(status))
	}

	var line []byte
	var err error
	if h.format == formatJSON {
		line, err = fs.json()
	} else {
		line = fs.kv()
	}
	if err != nil {
		return err
	}
	return h.out.Write(append(line, '\n'))
}

// WithAttrs implements slog.Handler.
func (h *structuredHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	clone.attrs = append(append([]slog.Attr(nil), h.attrs...), attrs...)
	return &clone
}

// WithGroup implements slog.Handler. Grouped keys are joined with dots.
func (h *structuredHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := *h
	clone.groups = append(append([]string(nil), h.groups...), name)
	return &clone
}

// fieldSet collects the fields of one line. Later values replace earlier
// ones; empty strings and nil are never stored.
type fieldSet struct {
	keys []string
	vals map[string]any
}

func (fs *fieldSet) set(key string, val any) {
	if key == "" || isEmpty(val) {
		return
	}
	if fs.vals == nil {
		fs.vals = make(map[string]any, 16)
	}
	if _, ok := fs.vals[key]; !ok {
		fs.keys = append(fs.keys, key)
	}
	fs.vals[key] = val
}

func (fs *fieldSet) setDefault(key string, val any) {
	if _, ok := fs.vals[key]; !ok {
		fs.set(key, val)
	}
}

func (fs *fieldSet) get(key string) any { return fs.vals[key] }

func (fs *fieldSet) addAttr(prefix string, a slog.Attr) {
	key := a.Key
	if prefix != "" && key != "" {
		key = prefix + "." + key
	} else if key == "" {
		key = prefix
	}
	v := a.Value.Resolve()
	if v.Kind() == slog.KindGroup {
		for _, child := range v.Group() {
			fs.addAttr(key, child)
		}
		return
	}
	k, val := attrValue(key, v)
	fs.set(k, val)
}

func isEmpty(val any) bool {
	switch v := val.(type) {
	case nil:
		return true
	case string:
		return v == ""
	}
	return false
}

// attrValue converts v to a plain JSON-friendly value. Durations become
// whole milliseconds under a key ending in "_ms".
func attrValue(key string, v slog.Value) (string, any) {
	switch v.Kind() {
	case slog.KindString:
		return key, strings.TrimSpace(v.String())
	case slog.KindInt64:
		return key, v.Int64()
	case slog.KindUint64:
		if u := v.Uint64(); u <= math.MaxInt64 {
			return key, int64(u)
		}
		return key, v.Uint64()
	case slog.KindFloat64:
		return key, v.Float64()
	case slog.KindBool:
		return key, v.Bool()
	case slog.KindDuration:
		return msKey(key), RoundMS(v.Duration()).Milliseconds()
	case slog.KindTime:
		return key, v.Time().UTC().Format(time.RFC3339Nano)
	}
	switch x := v.Any().(type) {
	case nil:
		return key, nil
	case error:
		return key, SanitizeLimit(x.Error(), maxErrRunes)
	case fmt.Stringer:
		return key, x.String()
	default:
		return key, fmt.Sprint(x)
	}
}

func msKey(key string) string {
	if strings.HasSuffix(key, "_ms") {
		return key
	}
	return key + "_ms"
}

// ordered returns the keys with well-known ones first.
func (fs *fieldSet) ordered() []string {
	keys := append([]string(nil), fs.keys...)
	sort.SliceStable(keys, func(i, j int) bool {
		ri, iok := keyRank[keys[i]]
		rj, jok := keyRank[keys[j]]
		switch {
		case iok && jok:
			return ri < rj
		case iok != jok:
			return iok
		}
		return keys[i] < keys[j]
	})
	return keys
}

func (fs *fieldSet) json() ([]byte, error) {
	var b strings.Builder
	b.WriteByte('{')
	for i, key := range fs.ordered() {
		data, err := json.Marshal(fs.vals[key])
		if err != nil {
			return nil, fmt.Errorf("logger: encode %s: %w", key, err)
		}
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.Quote(key))
		b.WriteByte(':')
		b.Write(data)
	}
	b.WriteByte('}')
	return []byte(b.String()), nil
}

func (fs *fieldSet) kv() []byte {
	var b strings.Builder
	for i, key := range fs.ordered() {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(key)
		b.WriteByte('=')
		s := fmt.Sprint(fs.vals[key])
		if strings.IndexFunc(s, needsQuote) >= 0 {
			s = strconv.Quote(s)
		}
		b.WriteString(s)
	}
	return []byte(b.String())
}

func needsQuote(r rune) bool {
	return r <= ' ' || r == '=' || r == '"'
}
