package conversation

// User-facing texts of the scripted dialog.
const (
	TextSegmentationPrompt = "Добро пожаловать! Выберите категорию:"
	TextSurveyComplete     = "Спасибо за ответы! Теперь вы можете задать любой вопрос нашему AI-ассистенту."
	TextAIApology          = "Извините, произошла ошибка при обработке вашего запроса. Пожалуйста, попробуйте еще раз позже."
	TextManagerAck         = "Наш менеджер свяжется с вами в ближайшее время. Пожалуйста, ожидайте."
	TextPaymentPrefix      = "Вот ссылка для оплаты: "
	TextAdditionalQuestion = "Пожалуйста, задайте ваш дополнительный вопрос:"
	TextActionUnavailable  = "Это действие сейчас недоступно. Пожалуйста, продолжите диалог."
	TextGenericFailure     = "Извините, произошла ошибка. Пожалуйста, попробуйте еще раз."
	TextLinkPrefix         = "Дополнительная информация: "
	TextManagerRequested   = "Пользователь запросил связь с менеджером"

	LabelCompany            = "Компания"
	LabelIndividual         = "Частное лицо"
	LabelContactManager     = "Связаться с менеджером"
	LabelPayment            = "Перейти к оплате"
	LabelAdditionalQuestion = "Дополнительный вопрос"
)

// DefaultPaymentURL is used when no payment link is configured.
const DefaultPaymentURL = "https://payment.example.com/checkout"
