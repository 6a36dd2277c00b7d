package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func render(t *testing.T, format lineFormat, ctx context.Context, event string, attrs ...slog.Attr) string {
	t.Helper()
	buf := &bytes.Buffer{}
	l := slog.New(newLineHandler(slog.LevelDebug, &sink{std: buf}, format))
	l.LogAttrs(ctx, slog.LevelInfo, event, attrs...)
	out := buf.String()
	if strings.Count(out, "\n") != 1 || !strings.HasSuffix(out, "\n") {
		t.Fatalf("expected exactly one line, got %q", out)
	}
	return strings.TrimSuffix(out, "\n")
}

func TestKVLeadKeysComeFirst(t *testing.T) {
	ctx := WithRID(context.Background(), "5:10:20")
	ctx = WithUpdateMeta(ctx, 5, 20, 10)

	line := render(t, formatKV, ctx, "conversation.transition",
		slog.String("zeta", "last"),
		slog.String(keyComponent, "conversation"),
		slog.String("status", "ok"),
	)
	tokens := strings.Split(line, " ")
	want := []string{"ts=", "level=INFO", "component=conversation", "event=conversation.transition", "status=ok", "rid=5:10:20", "update_id=5", "chat_id=10", "user_id=20", "zeta=last"}
	if len(tokens) != len(want) {
		t.Fatalf("tokens = %v", tokens)
	}
	for i, prefix := range want {
		if !strings.HasPrefix(tokens[i], prefix) {
			t.Fatalf("token %d = %s, want prefix %s", i, tokens[i], prefix)
		}
	}
}

func TestJSONLineIsValidAndOrdered(t *testing.T) {
	ctx := WithSession(context.Background(), "3f1c", "web")
	line := render(t, formatJSON, ctx, "crm.deal_add",
		slog.String(keyComponent, "crm"),
		slog.Any("err", errors.New("bitrix: 503")),
		slog.Duration("duration", 1500*time.Microsecond),
	)

	var decoded map[string]any
	if err := json.Unmarshal([]byte(line), &decoded); err != nil {
		t.Fatalf("invalid JSON %s: %v", line, err)
	}
	if decoded["err"] != "bitrix: 503" {
		t.Fatalf("err = %v", decoded["err"])
	}
	if decoded["duration_ms"] != float64(2) {
		t.Fatalf("duration_ms = %v", decoded["duration_ms"])
	}
	order := []string{`"ts":`, `"level":"INFO"`, `"component":"crm"`, `"event":"crm.deal_add"`, `"session_id":"3f1c"`, `"channel":"web"`, `"duration_ms":2`, `"err":`}
	pos := -1
	for _, key := range order {
		idx := strings.Index(line, key)
		if idx <= pos {
			t.Fatalf("%s out of order in %s", key, line)
		}
		pos = idx
	}
}

func TestDefaultsAndEmptyValues(t *testing.T) {
	line := render(t, formatKV, context.Background(), "", slog.String("blank", "  "), slog.Any("none", nil))
	if !strings.Contains(line, "component=app") || !strings.Contains(line, "event=unknown") {
		t.Fatalf("missing defaults: %s", line)
	}
	if strings.Contains(line, "blank") || strings.Contains(line, "none") {
		t.Fatalf("empty values should be dropped: %s", line)
	}
}

func TestExplicitAttrWinsOverContext(t *testing.T) {
	ctx := WithSession(context.Background(), "from-ctx", "telegram")
	line := render(t, formatKV, ctx, "send", slog.String(keySession, "explicit"))
	if !strings.Contains(line, "session_id=explicit") || strings.Contains(line, "from-ctx") {
		t.Fatalf("explicit session id not kept: %s", line)
	}
}

func TestGroupsAndQuoting(t *testing.T) {
	buf := &bytes.Buffer{}
	l := slog.New(newLineHandler(slog.LevelInfo, &sink{std: buf}, formatKV)).
		With(slog.String(keyComponent, "http")).
		WithGroup("req")
	l.Info("http.request", slog.String("path", "/api/chat/message"), slog.String("ua", `a "b"`))

	line := buf.String()
	for _, want := range []string{"component=http", "req.path=/api/chat/message", `req.ua="a \"b\""`} {
		if !strings.Contains(line, want) {
			t.Fatalf("missing %s in %s", want, line)
		}
	}
}

func TestLevelThreshold(t *testing.T) {
	buf := &bytes.Buffer{}
	l := slog.New(newLineHandler(slog.LevelWarn, &sink{std: buf}, formatJSON))
	l.Info("dropped")
	l.Warn("kept")
	if strings.Contains(buf.String(), "dropped") || !strings.Contains(buf.String(), "kept") {
		t.Fatalf("unexpected output %q", buf.String())
	}
}

func TestHelpersAreSafeBeforeInit(t *testing.T) {
	saved := L
	L = nil
	defer func() { L = saved }()
	Info(context.Background(), "app", "noop")
}

func TestSessionContext(t *testing.T) {
	ctx := WithSession(context.Background(), "", "")
	if got := SessionIDFrom(ctx); got != "" {
		t.Fatalf("expected empty session id, got %q", got)
	}
	ctx = WithSession(ctx, "42", "telegram")
	if got := SessionIDFrom(ctx); got != "42" {
		t.Fatalf("session id = %q", got)
	}
	if got := RIDFrom(WithRID(ctx, "r1")); got != "r1" {
		t.Fatalf("rid = %q", got)
	}
}

func TestClip(t *testing.T) {
	cases := map[string]struct {
		in    string
		limit int
		want  string
	}{
		"controls": {in: "a\x00b\u200bc\nd", limit: 10, want: "abc\nd"},
		"runes":    {in: "привет", limit: 3, want: "при"},
		"zero":     {in: "abc", limit: 0, want: ""},
	}
	for name, tc := range cases {
		if got := Clip(tc.in, tc.limit); got != tc.want {
			t.Fatalf("%s: Clip(%q, %d) = %q, want %q", name, tc.in, tc.limit, got, tc.want)
		}
	}
}
