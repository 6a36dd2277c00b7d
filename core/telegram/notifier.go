package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/m3rciful/leadbot/core/conversation"
	"github.com/m3rciful/leadbot/core/logger"

	tele "gopkg.in/telebot.v4"
)

// Sender is the subset of tele.Bot used to reach the manager chat.
type Sender interface {
	Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error)
}

// Notifier sends manager alerts to a fixed Telegram chat.
type Notifier struct {
	bot     Sender
	adminID int64
}

// NewNotifier returns a Notifier posting to adminID.
func NewNotifier(bot Sender, adminID int64) *Notifier {
	return &Notifier{bot: bot, adminID: adminID}
}

// NotifyManager posts the session summary to the manager chat.
func (n *Notifier) NotifyManager(ctx context.Context, s conversation.Session) error {
	if n.adminID == 0 {
		return fmt.Errorf("telegram notifier: admin id not configured")
	}
	if _, err := n.bot.Send(tele.ChatID(n.adminID), ManagerNotice(s)); err != nil {
		return fmt.Errorf("telegram notifier: %w", err)
	}
	logger.Info(ctx, "tg", "manager.notified", slog.String("status", "ok"))
	return nil
}

// ManagerNotice renders the alert text with the collected answers.
func ManagerNotice(s conversation.Session) string {
	var b strings.Builder
	b.WriteString("Запрос на связь с менеджером\n")
	fmt.Fprintf(&b, "Канал: %s\n", s.Channel)
	fmt.Fprintf(&b, "Сессия: %s\n", s.ID)
	if s.CRMRecordID != "" {
		fmt.Fprintf(&b, "Сделка: %s\n", s.CRMRecordID)
	}
	switch s.Segment {
	case conversation.SegmentCompany:
		b.WriteString("Сегмент: " + conversation.LabelCompany + "\n")
	case conversation.SegmentIndividual:
		b.WriteString("Сегмент: " + conversation.LabelIndividual + "\n")
	}
	for _, q := range conversation.QuestionSet(s.Segment) {
		if v := s.Answers[q.Key]; v != "" {
			fmt.Fprintf(&b, "%s %s\n", q.Prompt, v)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}
