package conversation

// Keyboard selects the button set attached to a reply.
type Keyboard uint8

const (
	KeyboardNone Keyboard = iota
	// KeyboardSegment offers the company / individual choice.
	KeyboardSegment
	// KeyboardActions offers the manual handoff commands.
	KeyboardActions
)

// Actions lists the buttons of the keyboard in display order.
func (k Keyboard) Actions() []Action {
	switch k {
	case KeyboardSegment:
		return []Action{ActionSegmentCompany, ActionSegmentIndividual}
	case KeyboardActions:
		return []Action{ActionContactManager, ActionPayment, ActionAdditionalQuestion}
	}
	return nil
}

// IntentKind enumerates the side effects a transition may request.
type IntentKind uint8

const (
	// IntentReply sends Text (with Keyboard) back to the user.
	IntentReply IntentKind = iota
	// IntentPersistAnswer records Question/Text in the answer log.
	IntentPersistAnswer
	// IntentCreateDeal creates or updates the CRM deal from the survey answers.
	IntentCreateDeal
	// IntentUpdateDeal copies the recent transcript into the deal comments.
	IntentUpdateDeal
	// IntentDealStage moves the deal to Stage with Text as comment.
	IntentDealStage
	// IntentInvokeAI asks the responder for a reply to the conversation.
	IntentInvokeAI
	// IntentNotifyManager alerts a human manager about the session.
	IntentNotifyManager
	// IntentSystemMessage appends Text to the log with the system direction.
	IntentSystemMessage
)

func (k IntentKind) String() string {
	switch k {
	case IntentReply:
		return "reply"
	case IntentPersistAnswer:
		return "persist_answer"
	case IntentCreateDeal:
		return "create_deal"
	case IntentUpdateDeal:
		return "update_deal"
	case IntentDealStage:
		return "deal_stage"
	case IntentInvokeAI:
		return "invoke_ai"
	case IntentNotifyManager:
		return "notify_manager"
	case IntentSystemMessage:
		return "system_message"
	}
	return "unknown"
}

// CRM deal stages set by handoff commands.
const (
	DealStageContactRequested = "CONTACT_REQUESTED"
	DealStagePaymentRequested = "PAYMENT_REQUESTED"
)

// Intent is a side-effect request emitted by Transition and executed by the Controller.
type Intent struct {
	Kind     IntentKind
	Text     string
	Keyboard Keyboard
	Question Question
	Stage    string
}
