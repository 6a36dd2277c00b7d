package middleware

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v4"
)

type updateContext struct {
	tele.Context

	userID int64
	update tele.Update
	store  map[string]any
}

func newUpdateContext(userID int64, callback bool) *updateContext {
	upd := tele.Update{ID: 1, Message: &tele.Message{Text: "hi"}}
	if callback {
		upd = tele.Update{ID: 2, Callback: &tele.Callback{Data: "\fpayment"}}
	}
	return &updateContext{userID: userID, update: upd, store: map[string]any{}}
}

func (u *updateContext) Sender() *tele.User { return &tele.User{ID: u.userID} }
func (u *updateContext) Chat() *tele.Chat { return &tele.Chat{ID: u.userID} }
func (u *updateContext) Update() tele.Update { return u.update }
func (u *updateContext) Text() string { return "hi" }
func (u *updateContext) Get(key string) interface{} { return u.store[key] }
func (u *updateContext) Set(key string, v interface{}) { u.store[key] = v }

func TestRateLimitMiddleware(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	limited := 0
	mw := RateLimitMiddleware(RateLimitOptions{
		Interval:  time.Second,
		Exclude:   map[string]struct{}{"callback": {}},
		OnLimited: func(tele.Context) error { limited++; return nil },
		Now:       func() time.Time { return now },
	})

	calls := 0
	h := mw(func(tele.Context) error { calls++; return nil })

	require.NoError(t, h(newUpdateContext(1, false)))
	require.NoError(t, h(newUpdateContext(1, false)))
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, limited)

	require.NoError(t, h(newUpdateContext(2, false)))
	assert.Equal(t, 2, calls)

	require.NoError(t, h(newUpdateContext(1, true)))
	assert.Equal(t, 3, calls)

	now = now.Add(1500 * time.Millisecond)
	require.NoError(t, h(newUpdateContext(1, false)))
	assert.Equal(t, 4, calls)
}

func TestRecoverMiddleware(t *testing.T) {
	h := RecoverMiddleware(func(tele.Context) error { panic("boom") })
	err := h(newUpdateContext(1, false))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")

	sentinel := errors.New("plain")
	h = RecoverMiddleware(func(tele.Context) error { return sentinel })
	assert.ErrorIs(t, h(newUpdateContext(1, false)), sentinel)
}

func TestLoggerMiddlewareStoresSessionContext(t *testing.T) {
	c := newUpdateContext(99, false)
	h := LoggerMiddleware(func(tele.Context) error { return nil })

	require.NoError(t, h(c))
	assert.NotEmpty(t, c.store["rid"])
	assert.NotNil(t, c.store["logger_ctx"])
}

func TestLoggerMiddlewareKeepsFirstContext(t *testing.T) {
	c := newUpdateContext(7, true)
	var seen []any
	inner := LoggerMiddleware(func(c tele.Context) error {
		seen = append(seen, c.Get("logger_ctx"))
		return nil
	})
	outer := LoggerMiddleware(inner)

	require.NoError(t, outer(c))
	require.Len(t, seen, 1)
	assert.Same(t, c.store["logger_ctx"], seen[0])
	assert.Equal(t, "callback", updateKind(c.update))
}
