package keyboard

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m3rciful/leadbot/core/conversation"
)

func TestForKeyboardNone(t *testing.T) {
	assert.Nil(t, ForKeyboard(conversation.KeyboardNone))
}

func TestForKeyboardSegment(t *testing.T) {
	m := ForKeyboard(conversation.KeyboardSegment)
	require.NotNil(t, m)
	require.Len(t, m.InlineKeyboard, 1)
	row := m.InlineKeyboard[0]
	require.Len(t, row, 2)
	assert.Equal(t, conversation.LabelCompany, row[0].Text)
	assert.Equal(t, "segment_company", row[0].Unique)
	assert.Equal(t, conversation.LabelIndividual, row[1].Text)
}

func TestForKeyboardActions(t *testing.T) {
	m := ForKeyboard(conversation.KeyboardActions)
	require.NotNil(t, m)
	require.Len(t, m.InlineKeyboard, 3)
	assert.Equal(t, conversation.LabelContactManager, m.InlineKeyboard[0][0].Text)
	assert.Equal(t, "payment", m.InlineKeyboard[1][0].Unique)
	assert.Equal(t, "additional_question", m.InlineKeyboard[2][0].Unique)
}

func TestGridChunksRows(t *testing.T) {
	actions := []conversation.Action{
		conversation.ActionContactManager, conversation.ActionPayment, conversation.ActionAdditionalQuestion,
	}
	m := Grid(actions, 2)
	require.Len(t, m.InlineKeyboard, 2)
	assert.Len(t, m.InlineKeyboard[0], 2)
	assert.Len(t, m.InlineKeyboard[1], 1)
	assert.Equal(t, "additional_question", m.InlineKeyboard[1][0].Unique)

	assert.Len(t, Grid(actions, 0).InlineKeyboard, 3)
}
