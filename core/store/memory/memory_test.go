package memory

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m3rciful/leadbot/core/conversation"
)

func TestSessionSnapshotsAreIsolated(t *testing.T) {
	ctx := context.Background()
	s := New()

	sess := conversation.NewSession("s1", conversation.ChannelWeb, time.Now())
	sess.Answers[conversation.FieldEmail] = "a@b.c"
	require.NoError(t, s.PutSession(ctx, sess))

	sess.Answers[conversation.FieldPhone] = "123"

	got, ok, err := s.GetSession(ctx, "s1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, map[conversation.FieldKey]string{conversation.FieldEmail: "a@b.c"}, got.Answers)

	_, ok, err = s.GetSession(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRecentMessagesOldestFirst(t *testing.T) {
	ctx := context.Background()
	s := New()
	for i := 0; i < 7; i++ {
		require.NoError(t, s.AppendMessage(ctx, conversation.Message{
			SessionID: "s1",
			Text:      fmt.Sprintf("m%d", i),
			Direction: conversation.DirectionIncoming,
		}))
	}

	msgs, err := s.RecentMessages(ctx, "s1", 3)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, "m4", msgs[0].Text)
	assert.Equal(t, "m6", msgs[2].Text)
}

func TestDealIndexKeepsFirstLink(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.SaveDeal(ctx, "s1", "10"))
	require.NoError(t, s.SaveDeal(ctx, "s1", "11"))

	id, ok, err := s.LookupDeal(ctx, "s1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "10", id)
}

func TestSaveAnswerKeepsOrder(t *testing.T) {
	ctx := context.Background()
	s := New()
	for step, value := range []string{"Анна", "30"} {
		q, ok := conversation.QuestionAt(conversation.SegmentIndividual, step+1)
		require.True(t, ok)
		require.NoError(t, s.SaveAnswer(ctx, "s1", q, value))
	}

	got := s.answers["s1"]
	require.Len(t, got, 2)
	assert.Equal(t, conversation.FieldFullName, got[0].key)
	assert.Equal(t, "30", got[1].value)
	assert.Empty(t, s.answers["s2"])
}
