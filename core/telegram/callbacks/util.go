// Package callbacks decodes inline button presses.
package callbacks

import (
	"strings"

	tele "gopkg.in/telebot.v4"
)

// ParseCallbackData returns the button's unique key and its payload.
// telebot fills Unique for buttons it built itself; otherwise the raw data
// has the form "\f<unique>|<payload>".
func ParseCallbackData(cb *tele.Callback) (unique, payload string) {
	switch {
	case cb == nil:
		return "", ""
	case cb.Unique != "":
		return cb.Unique, cb.Data
	}
	unique, payload, _ = strings.Cut(strings.TrimPrefix(cb.Data, "\f"), "|")
	return strings.TrimSpace(unique), payload
}
