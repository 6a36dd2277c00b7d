package conversation

import (
	"fmt"
	"strings"
)

const notSpecified = "Не указано"

type profileField struct {
	key         FieldKey
	promptLabel string
	dealLabel   string
}

var companyProfile = []profileField{
	{FieldCompanyName, "Компания", "Название компании"},
	{FieldIndustry, "Сфера деятельности", "Сфера деятельности"},
	{FieldEmployeeCount, "Количество сотрудников", "Количество сотрудников"},
	{FieldEmail, "Email", "Email"},
	{FieldPhone, "Телефон", "Телефон"},
}

var individualProfile = []profileField{
	{FieldFullName, "Имя", "Имя"},
	{FieldAge, "Возраст", "Возраст"},
	{FieldEmail, "Email", "Email"},
	{FieldPhone, "Телефон", "Телефон"},
}

func profileFor(segment Segment) []profileField {
	if segment == SegmentCompany {
		return companyProfile
	}
	return individualProfile
}

func answerOrDefault(answers map[FieldKey]string, key FieldKey) string {
	if v := strings.TrimSpace(answers[key]); v != "" {
		return v
	}
	return notSpecified
}

const assistantRules = `Правила:
1. Отвечайте вежливо и профессионально.
2. Если вы не знаете ответ, честно признайтесь в этом.
3. Если пользователь запрашивает видео или ссылки, вы можете включить их в ответ в формате [VIDEO:URL] или [LINK:URL].
4. Не предоставляйте ложную информацию.
5. Если пользователь хочет связаться с менеджером, предложите ему нажать кнопку "Связаться с менеджером".`

// SystemPrompt renders the assistant instructions with the collected profile of the session.
func SystemPrompt(s Session) string {
	place := "веб-чата"
	if s.Channel == ChannelTelegram {
		place = "Telegram-бота"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Вы - AI-ассистент для %s компании. Ваша задача - помогать пользователям, отвечать на их вопросы и предоставлять полезную информацию.\n\n", place)
	b.WriteString("Информация о пользователе:\n")
	for _, f := range profileFor(s.Segment) {
		fmt.Fprintf(&b, "%s: %s\n", f.promptLabel, answerOrDefault(s.Answers, f.key))
	}
	b.WriteString("\n")
	b.WriteString(assistantRules)
	return b.String()
}

// ConversationText renders dialog history as User/Assistant lines ending with an open Assistant turn.
// System entries are not part of the dialog and are skipped.
func ConversationText(history []Message) string {
	var b strings.Builder
	for _, m := range history {
		switch m.Direction {
		case DirectionIncoming:
			b.WriteString("User: ")
		case DirectionOutgoing:
			b.WriteString("Assistant: ")
		default:
			continue
		}
		b.WriteString(m.Text)
		b.WriteByte('\n')
	}
	b.WriteString("Assistant:")
	return b.String()
}

// Transcript renders recent messages for the CRM deal comments.
func Transcript(history []Message) string {
	parts := make([]string, 0, len(history))
	for _, m := range history {
		author := "Бот"
		switch m.Direction {
		case DirectionIncoming:
			author = "Пользователь"
		case DirectionSystem:
			author = "Система"
		}
		parts = append(parts, author+": "+m.Text)
	}
	return "Последняя переписка:\n\n" + strings.Join(parts, "\n\n")
}

// DealDraft is the CRM deal content derived from a finished survey.
type DealDraft struct {
	Title    string
	Comments string
	Email    string
	Phone    string
	Source   Channel
}

// BuildDealDraft derives deal title, comments and contacts from the session answers.
func BuildDealDraft(s Session) DealDraft {
	var title, segment string
	if s.Segment == SegmentCompany {
		title = "Сделка с компанией " + answerOrDefault(s.Answers, FieldCompanyName)
		segment = LabelCompany
	} else {
		title = "Сделка с " + answerOrDefault(s.Answers, FieldFullName)
		segment = LabelIndividual
	}

	lines := []string{"Сегмент: " + segment}
	for _, f := range profileFor(s.Segment) {
		lines = append(lines, f.dealLabel+": "+answerOrDefault(s.Answers, f.key))
	}

	return DealDraft{
		Title:    title,
		Comments: strings.Join(lines, "\n"),
		Email:    strings.TrimSpace(s.Answers[FieldEmail]),
		Phone:    strings.TrimSpace(s.Answers[FieldPhone]),
		Source:   s.Channel,
	}
}
