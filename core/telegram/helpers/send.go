package helpers

import (
	"errors"
	"log/slog"
	"sync/atomic"

	"github.com/m3rciful/leadbot/core/logger"
	"github.com/m3rciful/leadbot/core/telegram/sender"

	tele "gopkg.in/telebot.v4"
)

const (
	queuedStoreKey   = "queued_messages"
	keyboardStoreKey = "queued_keyboard"
)

var dispatcher atomic.Pointer[sender.Dispatcher]

// SetDispatcher routes sends through d; nil makes them synchronous.
func SetDispatcher(d *sender.Dispatcher) {
	dispatcher.Store(d)
}

// Outgoing is one message of a multi-part reply.
type Outgoing struct {
	What any
	Opts []any
}

// SendSequence sends msgs to the current chat in order as a single job, so
// parts of one reply never interleave. A retried job resumes after the last
// delivered message.
func SendSequence(c tele.Context, action string, msgs ...Outgoing) error {
	if len(msgs) == 0 {
		return nil
	}
	delivered := 0
	deliver := func() error {
		for ; delivered < len(msgs); delivered++ {
			m := msgs[delivered]
			if err := c.Send(m.What, m.Opts...); err != nil {
				return err
			}
		}
		return nil
	}

	var err error
	if d := dispatcher.Load(); d != nil {
		ctx := BuildContext(c)
		err = d.Enqueue(ctx, action, deliver)
		if errors.Is(err, sender.ErrQueueFull) || errors.Is(err, sender.ErrQueueClosed) {
			logger.Warn(ctx, "tg.sender", "send.inline",
				slog.String("action", action),
				slog.Any("err", err),
			)
			err = deliver()
		}
	} else {
		err = deliver()
	}
	if err == nil {
		countQueued(c, msgs)
	}
	return err
}

// SendText sends plain text to the current chat.
func SendText(c tele.Context, text string, opts ...any) error {
	return SendSequence(c, "send.text", Outgoing{What: text, Opts: opts})
}

// Typing shows the typing indicator; a failure is logged and otherwise ignored.
func Typing(c tele.Context) {
	if err := c.Notify(tele.Typing); err != nil {
		logger.Debug(BuildContext(c), "tg.sender", "send.typing",
			slog.String("status", "error"),
			slog.Any("err", err),
		)
	}
}

// Queued reports how many messages the current update handed to the sender
// and whether any of them carried a keyboard.
func Queued(c tele.Context) (int, bool) {
	n, _ := c.Get(queuedStoreKey).(int)
	kb, _ := c.Get(keyboardStoreKey).(bool)
	return n, kb
}

func countQueued(c tele.Context, msgs []Outgoing) {
	n, kb := Queued(c)
	for _, m := range msgs {
		kb = kb || hasMarkup(m.Opts)
	}
	c.Set(queuedStoreKey, n+len(msgs))
	c.Set(keyboardStoreKey, kb)
}

func hasMarkup(opts []any) bool {
	for _, o := range opts {
		switch v := o.(type) {
		case *tele.ReplyMarkup:
			if v != nil {
				return true
			}
		case *tele.SendOptions:
			if v != nil && v.ReplyMarkup != nil {
				return true
			}
		}
	}
	return false
}
