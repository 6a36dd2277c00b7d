package conversation

// FieldKey names one collected survey answer.
type FieldKey string

const (
	FieldCompanyName   FieldKey = "companyName"
	FieldIndustry      FieldKey = "industry"
	FieldEmployeeCount FieldKey = "employeeCount"
	FieldEmail         FieldKey = "email"
	FieldPhone         FieldKey = "phone"
	FieldFullName      FieldKey = "fullName"
	FieldAge           FieldKey = "age"
)

// Question pairs an answer field with the prompt that asks for it.
type Question struct {
	Key    FieldKey
	Prompt string
}

var companyQuestions = []Question{
	{Key: FieldCompanyName, Prompt: "Название вашей компании?"},
	{Key: FieldIndustry, Prompt: "Какая у вас сфера деятельности?"},
	{Key: FieldEmployeeCount, Prompt: "Количество сотрудников в компании?"},
	{Key: FieldEmail, Prompt: "Контактный email?"},
	{Key: FieldPhone, Prompt: "Контактный телефон?"},
}

var individualQuestions = []Question{
	{Key: FieldFullName, Prompt: "Как вас зовут (полное имя)?"},
	{Key: FieldAge, Prompt: "Ваш возраст?"},
	{Key: FieldEmail, Prompt: "Контактный email?"},
	{Key: FieldPhone, Prompt: "Контактный телефон?"},
}

// QuestionSet returns the ordered survey for a segment. SegmentNone has no questions.
func QuestionSet(segment Segment) []Question {
	switch segment {
	case SegmentCompany:
		return companyQuestions
	case SegmentIndividual:
		return individualQuestions
	default:
		return nil
	}
}

// QuestionAt returns question step (1-based) of the segment's survey.
func QuestionAt(segment Segment, step int) (Question, bool) {
	set := QuestionSet(segment)
	if step < 1 || step > len(set) {
		return Question{}, false
	}
	return set[step-1], true
}
