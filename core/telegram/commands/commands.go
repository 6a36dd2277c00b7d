package commands

import (
	tele "gopkg.in/telebot.v4"
)

// Command is a slash command: Hidden keeps it out of the Telegram menu and
// Aliases are extra names typed without the slash.
type Command struct {
	Handler     tele.HandlerFunc
	Description string
	Hidden      bool
	Aliases     []string
}
