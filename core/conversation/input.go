package conversation

// InputKind distinguishes free text from explicit commands.
type InputKind uint8

const (
	// InputText is free text typed by the user.
	InputText InputKind = iota
	// InputStart is a platform start command or a freshly opened web session.
	InputStart
	// InputAction is a button press.
	InputAction
)

// Action is a button identifier. Values double as Telegram callback data.
type Action string

const (
	ActionSegmentCompany     Action = "segment_company"
	ActionSegmentIndividual  Action = "segment_individual"
	ActionContactManager     Action = "contact_manager"
	ActionPayment            Action = "payment"
	ActionAdditionalQuestion Action = "additional_question"
)

// ParseAction validates a raw action identifier.
func ParseAction(raw string) (Action, bool) {
	switch a := Action(raw); a {
	case ActionSegmentCompany, ActionSegmentIndividual, ActionContactManager, ActionPayment, ActionAdditionalQuestion:
		return a, true
	}
	return "", false
}

// Label returns the button caption for the action.
func (a Action) Label() string {
	switch a {
	case ActionSegmentCompany:
		return LabelCompany
	case ActionSegmentIndividual:
		return LabelIndividual
	case ActionContactManager:
		return LabelContactManager
	case ActionPayment:
		return LabelPayment
	case ActionAdditionalQuestion:
		return LabelAdditionalQuestion
	}
	return string(a)
}

// Input is one normalized inbound event.
type Input struct {
	Kind   InputKind
	Text   string
	Action Action
}

// TextInput builds a free-text input.
func TextInput(text string) Input { return Input{Kind: InputText, Text: text} }

// StartInput builds a start input.
func StartInput() Input { return Input{Kind: InputStart} }

// ActionInput builds a button press input.
func ActionInput(a Action) Input { return Input{Kind: InputAction, Action: a} }

// logText renders the input for the message log.
func (in Input) logText() string {
	switch in.Kind {
	case InputStart:
		return "/start"
	case InputAction:
		return in.Action.Label()
	default:
		return in.Text
	}
}
