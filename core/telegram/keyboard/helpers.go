// Package keyboard renders conversation keyboards as Telegram inline markup.
package keyboard

import (
	"slices"

	"github.com/m3rciful/leadbot/core/conversation"

	tele "gopkg.in/telebot.v4"
)

// ForKeyboard renders a conversation keyboard. The segment choice sits on one
// row; handoff actions get a row each. KeyboardNone yields nil.
func ForKeyboard(k conversation.Keyboard) *tele.ReplyMarkup {
	actions := k.Actions()
	if len(actions) == 0 {
		return nil
	}
	perRow := 1
	if k == conversation.KeyboardSegment {
		perRow = len(actions)
	}
	return Grid(actions, perRow)
}

// Grid lays actions out left to right, perRow buttons per row. Each button's
// unique key is the action itself, which is what the callback router looks up.
func Grid(actions []conversation.Action, perRow int) *tele.ReplyMarkup {
	markup := &tele.ReplyMarkup{}
	for chunk := range slices.Chunk(actions, max(perRow, 1)) {
		row := make([]tele.InlineButton, 0, len(chunk))
		for _, a := range chunk {
			row = append(row, *markup.Data(a.Label(), string(a)).Inline())
		}
		markup.InlineKeyboard = append(markup.InlineKeyboard, row)
	}
	return markup
}
