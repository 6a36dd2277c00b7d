package logger

import (
	"context"
	"fmt"
	"strings"
	"unicode"
)

type ctxKey int

const (
	ridKey ctxKey = iota
	updateKey
	sessionKey
	handlerKey
)

type updateMeta struct {
	updateID int
	userID   int64
	chatID   int64
}

type sessionMeta struct {
	id      string
	channel string
}

func orBackground(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}

// WithRID attaches a request correlation id.
func WithRID(ctx context.Context, rid string) context.Context {
	return context.WithValue(orBackground(ctx), ridKey, rid)
}

// RIDFrom returns the correlation id stored by WithRID.
func RIDFrom(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	rid, _ := ctx.Value(ridKey).(string)
	return rid
}

// WithUpdateMeta attaches Telegram update, user and chat ids.
func WithUpdateMeta(ctx context.Context, updateID int, userID, chatID int64) context.Context {
	return context.WithValue(orBackground(ctx), updateKey, updateMeta{updateID: updateID, userID: userID, chatID: chatID})
}

// WithSession attaches the conversation session id and its channel.
// Empty values leave the context untouched.
func WithSession(ctx context.Context, sessionID, channel string) context.Context {
	ctx = orBackground(ctx)
	if sessionID == "" && channel == "" {
		return ctx
	}
	return context.WithValue(ctx, sessionKey, sessionMeta{id: sessionID, channel: channel})
}

// SessionIDFrom returns the session id stored by WithSession.
func SessionIDFrom(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	meta, _ := ctx.Value(sessionKey).(sessionMeta)
	return meta.id
}

// WithHandler names the Telegram handler serving the update.
func WithHandler(ctx context.Context, handler string) context.Context {
	ctx = orBackground(ctx)
	if handler == "" {
		return ctx
	}
	return context.WithValue(ctx, handlerKey, handler)
}

// contextFields lists the identifiers stored in ctx as log fields.
func contextFields(ctx context.Context) []field {
	if ctx == nil {
		return nil
	}
	var out []field
	if rid := RIDFrom(ctx); rid != "" {
		out = append(out, field{keyRID, rid})
	}
	if meta, ok := ctx.Value(sessionKey).(sessionMeta); ok {
		if meta.id != "" {
			out = append(out, field{keySession, meta.id})
		}
		if meta.channel != "" {
			out = append(out, field{keyChannel, meta.channel})
		}
	}
	if meta, ok := ctx.Value(updateKey).(updateMeta); ok {
		if meta.updateID != 0 {
			out = append(out, field{"update_id", int64(meta.updateID)})
		}
		if meta.chatID != 0 {
			out = append(out, field{"chat_id", meta.chatID})
		}
		if meta.userID != 0 {
			out = append(out, field{"user_id", meta.userID})
		}
	}
	if h, ok := ctx.Value(handlerKey).(string); ok && h != "" {
		out = append(out, field{"handler", h})
	}
	return out
}

// BuildRID renders the Telegram correlation id as updateID:chatID:userID.
func BuildRID(updateID int, chatID, userID int64) string {
	return fmt.Sprintf("%d:%d:%d", updateID, chatID, userID)
}

// Clip drops control characters (tabs and newlines survive) and keeps at most
// limit runes, for user text copied into logs.
func Clip(s string, limit int) string {
	if limit <= 0 || s == "" {
		return ""
	}
	var b strings.Builder
	n := 0
	for _, r := range s {
		if r != '\n' && r != '\t' && (unicode.IsControl(r) || unicode.Is(unicode.Cf, r)) {
			continue
		}
		if n == limit {
			break
		}
		b.WriteRune(r)
		n++
	}
	return b.String()
}
