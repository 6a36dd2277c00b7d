package conversation

import "strings"

// Machine is the pure transition function of the dialog script.
type Machine struct {
	paymentURL string
}

// NewMachine returns a Machine that hands out paymentURL on the payment command.
func NewMachine(paymentURL string) *Machine {
	if strings.TrimSpace(paymentURL) == "" {
		paymentURL = DefaultPaymentURL
	}
	return &Machine{paymentURL: paymentURL}
}

// Transition computes the next session state and the side effects to run for one input.
// It performs no I/O; the input session is never mutated.
func (m *Machine) Transition(s Session, in Input) (Session, []Intent) {
	next := s.Clone()
	switch s.Stage {
	case StageStart:
		next.Stage = StageSegmentation
		return next, []Intent{reply(TextSegmentationPrompt, KeyboardSegment)}
	case StageSegmentation:
		return m.segmentation(next, in)
	case StageSurvey:
		return m.survey(next, in)
	case StageAIDialog:
		return m.dialog(next, in)
	}
	return next, []Intent{reply(TextGenericFailure, KeyboardNone)}
}

func (m *Machine) segmentation(s Session, in Input) (Session, []Intent) {
	switch in.Kind {
	case InputStart:
		return s, []Intent{reply(TextSegmentationPrompt, KeyboardSegment)}
	case InputAction:
		switch in.Action {
		case ActionSegmentCompany:
			return enterSurvey(s, SegmentCompany)
		case ActionSegmentIndividual:
			return enterSurvey(s, SegmentIndividual)
		}
		return s, []Intent{reply(TextActionUnavailable, KeyboardSegment)}
	}
	if mentionsCompany(in.Text) {
		return enterSurvey(s, SegmentCompany)
	}
	return enterSurvey(s, SegmentIndividual)
}

func enterSurvey(s Session, segment Segment) (Session, []Intent) {
	s.Segment = segment
	s.Stage = StageSurvey
	s.Step = 1
	q, _ := QuestionAt(segment, 1)
	return s, []Intent{reply(q.Prompt, KeyboardNone)}
}

func mentionsCompany(text string) bool {
	lower := strings.ToLower(text)
	return strings.Contains(lower, "компания") || strings.Contains(lower, "company")
}

func (m *Machine) survey(s Session, in Input) (Session, []Intent) {
	q, ok := QuestionAt(s.Segment, s.Step)
	if !ok {
		return s, []Intent{reply(TextGenericFailure, KeyboardNone)}
	}
	switch in.Kind {
	case InputStart:
		return s, []Intent{reply(q.Prompt, KeyboardNone)}
	case InputAction:
		return s, []Intent{reply(TextActionUnavailable, KeyboardNone)}
	}

	answer := strings.TrimSpace(in.Text)
	s.Answers[q.Key] = answer
	intents := []Intent{{Kind: IntentPersistAnswer, Question: q, Text: answer}}

	if s.Step == len(QuestionSet(s.Segment)) {
		s.Stage = StageAIDialog
		s.Step = 0
		return s, append(intents,
			reply(TextSurveyComplete, KeyboardActions),
			Intent{Kind: IntentCreateDeal},
		)
	}
	s.Step++
	nextQ, _ := QuestionAt(s.Segment, s.Step)
	return s, append(intents, reply(nextQ.Prompt, KeyboardNone))
}

func (m *Machine) dialog(s Session, in Input) (Session, []Intent) {
	switch in.Kind {
	case InputStart:
		return s, []Intent{reply(TextSurveyComplete, KeyboardActions)}
	case InputText:
		return s, []Intent{
			{Kind: IntentInvokeAI, Text: in.Text},
			{Kind: IntentUpdateDeal},
		}
	}

	switch in.Action {
	case ActionContactManager:
		return s, []Intent{
			reply(TextManagerAck, KeyboardNone),
			{Kind: IntentDealStage, Stage: DealStageContactRequested, Text: TextManagerRequested},
			{Kind: IntentSystemMessage, Text: TextManagerRequested},
			{Kind: IntentNotifyManager},
		}
	case ActionPayment:
		return s, []Intent{
			reply(TextPaymentPrefix+m.paymentURL, KeyboardNone),
			{Kind: IntentDealStage, Stage: DealStagePaymentRequested, Text: "Пользователь запросил ссылку на оплату"},
		}
	case ActionAdditionalQuestion:
		return s, []Intent{reply(TextAdditionalQuestion, KeyboardNone)}
	}
	return s, []Intent{reply(TextActionUnavailable, KeyboardActions)}
}

func reply(text string, kb Keyboard) Intent {
	return Intent{Kind: IntentReply, Text: text, Keyboard: kb}
}
