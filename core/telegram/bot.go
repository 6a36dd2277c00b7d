package telegram

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/m3rciful/leadbot/core/conversation"
	tghelpers "github.com/m3rciful/leadbot/core/telegram/helpers"
	"github.com/m3rciful/leadbot/core/telegram/commands"
	"github.com/m3rciful/leadbot/core/telegram/keyboard"

	tele "gopkg.in/telebot.v4"
)

// Conversation handles one inbound chat event.
type Conversation interface {
	Handle(ctx context.Context, in conversation.Inbound) (conversation.Reply, error)
}

// Adapter translates Telegram updates into conversation inputs and renders replies.
// The chat id is the session id.
type Adapter struct {
	conv Conversation
}

// NewAdapter returns an Adapter bound to the conversation controller.
func NewAdapter(conv Conversation) *Adapter {
	return &Adapter{conv: conv}
}

// Register wires /start, every button action and the free-text fallback.
func (a *Adapter) Register(reg *Registry) error {
	if err := reg.RegisterCommand("/start", commands.Command{
		Handler:     a.OnStart,
		Description: "Начать диалог",
	}); err != nil {
		return err
	}
	for _, action := range []conversation.Action{
		conversation.ActionSegmentCompany,
		conversation.ActionSegmentIndividual,
		conversation.ActionContactManager,
		conversation.ActionPayment,
		conversation.ActionAdditionalQuestion,
	} {
		if err := reg.RegisterCallback(string(action), a.OnAction(action)); err != nil {
			return fmt.Errorf("register action %s: %w", action, err)
		}
	}
	reg.SetTextFallback(a.OnText)
	return nil
}

// OnStart handles the /start command.
func (a *Adapter) OnStart(c tele.Context) error {
	return a.handle(c, conversation.StartInput())
}

// OnText handles free text.
func (a *Adapter) OnText(c tele.Context) error {
	tghelpers.Typing(c)
	return a.handle(c, conversation.TextInput(c.Text()))
}

// OnAction returns the callback handler for one button.
func (a *Adapter) OnAction(action conversation.Action) tele.HandlerFunc {
	return func(c tele.Context) error {
		if action == conversation.ActionAdditionalQuestion || action == conversation.ActionContactManager {
			tghelpers.Typing(c)
		}
		return a.handle(c, conversation.ActionInput(action))
	}
}

// OnUnsupported answers media and other non-text messages.
func (a *Adapter) OnUnsupported(c tele.Context) error {
	return tghelpers.SendText(c, textUnsupported)
}

const textUnsupported = "Пожалуйста, отправьте текстовое сообщение."

func (a *Adapter) handle(c tele.Context, in conversation.Input) error {
	chat := c.Chat()
	if chat == nil {
		return nil
	}
	ctx := tghelpers.BuildContext(c)

	reply, err := a.conv.Handle(ctx, conversation.Inbound{
		SessionID: SessionID(chat.ID),
		Channel:   conversation.ChannelTelegram,
		Input:     in,
	})
	if err != nil {
		if errors.Is(err, conversation.ErrMalformedInbound) || errors.Is(err, conversation.ErrChannelMismatch) {
			return nil
		}
		_ = tghelpers.SendText(c, conversation.TextGenericFailure)
		return err
	}
	return tghelpers.SendSequence(c, "send.reply", Render(reply)...)
}

// SessionID maps a chat id onto a conversation session id.
func SessionID(chatID int64) string {
	return strconv.FormatInt(chatID, 10)
}

// Render converts a reply into the ordered Telegram messages: the text with
// its keyboard, then the video, then the link line.
func Render(reply conversation.Reply) []tghelpers.Outgoing {
	var out []tghelpers.Outgoing
	if reply.Text != "" {
		msg := tghelpers.Outgoing{What: reply.Text}
		if kb := keyboard.ForKeyboard(reply.Keyboard); kb != nil {
			msg.Opts = []any{&tele.SendOptions{ReplyMarkup: kb}}
		}
		out = append(out, msg)
	}
	if reply.VideoURL != "" {
		out = append(out, tghelpers.Outgoing{What: &tele.Video{File: tele.FromURL(reply.VideoURL)}})
	}
	if reply.LinkURL != "" {
		out = append(out, tghelpers.Outgoing{What: conversation.TextLinkPrefix + reply.LinkURL})
	}
	return out
}
