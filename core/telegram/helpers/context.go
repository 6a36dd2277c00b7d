// Package helpers carries the per-update log context and the queued send
// path shared by Telegram handlers and middleware.
package helpers

import (
	"context"
	"strconv"

	"github.com/m3rciful/leadbot/core/conversation"
	"github.com/m3rciful/leadbot/core/logger"

	tele "gopkg.in/telebot.v4"
)

const (
	ctxStoreKey = "logger_ctx"
	ridStoreKey = "rid"
)

// BuildContext returns the log context of the update behind c, deriving it
// on first use: rid, update ids and the chat's conversation session.
func BuildContext(c tele.Context) context.Context {
	if ctx, ok := c.Get(ctxStoreKey).(context.Context); ok && ctx != nil {
		return ctx
	}

	var chatID, userID int64
	if chat := c.Chat(); chat != nil {
		chatID = chat.ID
	}
	if user := c.Sender(); user != nil {
		userID = user.ID
	}
	updateID := c.Update().ID
	rid := logger.BuildRID(updateID, chatID, userID)

	ctx := logger.WithRID(context.Background(), rid)
	ctx = logger.WithUpdateMeta(ctx, updateID, userID, chatID)
	if chatID != 0 {
		ctx = logger.WithSession(ctx, strconv.FormatInt(chatID, 10), string(conversation.ChannelTelegram))
	}
	c.Set(ridStoreKey, rid)
	c.Set(ctxStoreKey, ctx)
	return ctx
}

// HasContext reports whether BuildContext already ran for this update.
func HasContext(c tele.Context) bool {
	_, ok := c.Get(ctxStoreKey).(context.Context)
	return ok
}

// WithHandler records the serving handler in the update's log context.
func WithHandler(c tele.Context, handler string) context.Context {
	ctx := logger.WithHandler(BuildContext(c), handler)
	c.Set(ctxStoreKey, ctx)
	return ctx
}
