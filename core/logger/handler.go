package logger

import (
	"bytes"
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

type lineFormat int

const (
	formatJSON lineFormat = iota
	formatKV
)

const (
	keyComponent = "component"
	keyEvent     = "event"
	keyRID       = "rid"
	keySession   = "session_id"
	keyChannel   = "channel"

	tsLayout = "2006-01-02T15:04:05.000Z07:00"
)

// leadKeys open every line in this order; other keys follow sorted.
var leadKeys = []string{
	"ts", "level", keyComponent, keyEvent, "status",
	keyRID, keySession, keyChannel, "stage", "step", "action",
	"update_id", "chat_id", "user_id", "handler",
	"method", "path", "http_code", "duration_ms",
	"err", "err_code",
}

var leadRank = func() map[string]int {
	m := make(map[string]int, len(leadKeys))
	for i, k := range leadKeys {
		m[k] = i
	}
	return m
}()

type field struct {
	key string
	val any
}

// lineHandler renders records as one JSON object or one key=value line.
type lineHandler struct {
	level  slog.Leveler
	out    *sink
	format lineFormat
	attrs  []field
	prefix string
}

func newLineHandler(level slog.Leveler, out *sink, format lineFormat) *lineHandler {
	return &lineHandler{level: level, out: out, format: format}
}

// Enabled reports whether lvl passes the configured threshold.
func (h *lineHandler) Enabled(_ context.Context, lvl slog.Level) bool {
	return lvl >= h.level.Level()
}

// Handle renders r and writes it as a single line.
func (h *lineHandler) Handle(ctx context.Context, r slog.Record) error {
	fields := make(map[string]any, 12+len(h.attrs)+r.NumAttrs())
	fields["ts"] = r.Time.UTC().Format(tsLayout)
	fields["level"] = r.Level.String()
	for _, f := range h.attrs {
		fields[f.key] = f.val
	}
	r.Attrs(func(a slog.Attr) bool {
		for _, f := range flatten(h.prefix, a) {
			fields[f.key] = f.val
		}
		return true
	})
	for _, f := range contextFields(ctx) {
		if _, set := fields[f.key]; !set {
			fields[f.key] = f.val
		}
	}
	if _, set := fields[keyEvent]; !set {
		fields[keyEvent] = cmp.Or(r.Message, "unknown")
	}
	if _, set := fields[keyComponent]; !set {
		fields[keyComponent] = "app"
	}

	var line []byte
	var err error
	if h.format == formatKV {
		line = renderKV(fields)
	} else if line, err = renderJSON(fields); err != nil {
		return err
	}
	return h.out.write(append(line, '\n'))
}

// WithAttrs pre-renders attrs onto a copy of the handler.
func (h *lineHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	c := *h
	c.attrs = append([]field(nil), h.attrs...)
	for _, a := range attrs {
		c.attrs = append(c.attrs, flatten(h.prefix, a)...)
	}
	return &c
}

// WithGroup prefixes later attribute keys with name.
func (h *lineHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	c := *h
	c.prefix = joinKey(h.prefix, name)
	return &c
}

func joinKey(prefix, key string) string {
	if prefix == "" {
		return key
	}
	if key == "" {
		return prefix
	}
	return prefix + "." + key
}

// flatten expands groups into dotted keys and drops empty values.
// Durations are logged as whole milliseconds under a "_ms" key.
func flatten(prefix string, a slog.Attr) []field {
	key := joinKey(prefix, a.Key)
	v := a.Value.Resolve()
	if v.Kind() == slog.KindGroup {
		var out []field
		for _, child := range v.Group() {
			out = append(out, flatten(key, child)...)
		}
		return out
	}
	if key == "" {
		return nil
	}
	if d, ok := durationOf(v); ok {
		if !strings.HasSuffix(key, "_ms") {
			key += "_ms"
		}
		return []field{{key, RoundMS(d).Milliseconds()}}
	}
	val, ok := plain(v)
	if !ok {
		return nil
	}
	return []field{{key, val}}
}

func durationOf(v slog.Value) (time.Duration, bool) {
	if v.Kind() == slog.KindDuration {
		return v.Duration(), true
	}
	if v.Kind() == slog.KindAny {
		d, ok := v.Any().(time.Duration)
		return d, ok
	}
	return 0, false
}

func plain(v slog.Value) (any, bool) {
	switch v.Kind() {
	case slog.KindString:
		s := strings.TrimSpace(v.String())
		return s, s != ""
	case slog.KindInt64:
		return v.Int64(), true
	case slog.KindUint64:
		return v.Uint64(), true
	case slog.KindFloat64:
		return v.Float64(), true
	case slog.KindBool:
		return v.Bool(), true
	case slog.KindTime:
		return v.Time().UTC().Format(time.RFC3339Nano), true
	}
	switch x := v.Any().(type) {
	case nil:
		return nil, false
	case error:
		return x.Error(), true
	case fmt.Stringer:
		s := x.String()
		return s, s != ""
	default:
		return fmt.Sprint(x), true
	}
}

func sortedKeys(fields map[string]any) []string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		ri, iLead := leadRank[keys[i]]
		rj, jLead := leadRank[keys[j]]
		switch {
		case iLead && jLead:
			return ri < rj
		case iLead != jLead:
			return iLead
		}
		return keys[i] < keys[j]
	})
	return keys
}

func renderJSON(fields map[string]any) ([]byte, error) {
	var b bytes.Buffer
	b.WriteByte('{')
	for i, k := range sortedKeys(fields) {
		v, err := json.Marshal(fields[k])
		if err != nil {
			return nil, fmt.Errorf("logger: encode %s: %w", k, err)
		}
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.Quote(k))
		b.WriteByte(':')
		b.Write(v)
	}
	b.WriteByte('}')
	return b.Bytes(), nil
}

func renderKV(fields map[string]any) []byte {
	var b bytes.Buffer
	for i, k := range sortedKeys(fields) {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(k)
		b.WriteByte('=')
		s := fmt.Sprint(fields[k])
		if strings.ContainsFunc(s, func(r rune) bool { return r <= ' ' || r == '=' || r == '"' }) {
			s = strconv.Quote(s)
		}
		b.WriteString(s)
	}
	return b.Bytes()
}

// sink serializes whole lines onto stdout and an optional log file.
type sink struct {
	mu   sync.Mutex
	std  io.Writer
	file *os.File
}

func (s *sink) write(line []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var errs []error
	if s.std != nil {
		if _, err := s.std.Write(line); err != nil {
			errs = append(errs, err)
		}
	}
	if s.file != nil {
		if _, err := s.file.Write(line); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// close closes the log file; stdout keeps receiving lines.
func (s *sink) close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}
