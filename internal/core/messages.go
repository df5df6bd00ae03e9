package core

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"
)

// userMessages holds the user-facing text for each error code. Each code has
// its own stable message so the transport can explain a failure without
// inspecting internal detail.
var userMessages = map[Code]map[language.Tag]string{
	CodeUnauthorized: {
		language.English: "Sorry, you are not authorized to use this bot. Ask an administrator for an invitation.",
		language.French:  "Désolé, vous n'êtes pas autorisé à utiliser ce bot. Demandez une invitation à un administrateur.",
		language.Arabic:  "عذراً، لست مخولاً باستخدام هذا البوت. اطلب دعوة من المسؤول.",
	},
	CodePermissionDenied: {
		language.English: "This command is only available to administrators.",
		language.French:  "Cette commande est réservée aux administrateurs.",
		language.Arabic:  "هذا الأمر متاح للمسؤولين فقط.",
	},
	CodeInvalidToken: {
		language.English: "This invitation link is invalid, expired or already used.",
		language.French:  "Ce lien d'invitation est invalide, expiré ou déjà utilisé.",
		language.Arabic:  "رابط الدعوة هذا غير صالح أو منتهي الصلاحية أو مستخدم مسبقاً.",
	},
	CodeAlreadyAuthorized: {
		language.English: "You already have access.",
		language.French:  "Vous avez déjà accès.",
		language.Arabic:  "لديك صلاحية الوصول بالفعل.",
	},
	CodeUpstreamUnavailable: {
		language.English: "The transcription or analysis service is unavailable. Please try again later.",
		language.French:  "Le service de transcription ou d'analyse est indisponible. Veuillez réessayer plus tard.",
		language.Arabic:  "خدمة النسخ أو التحليل غير متاحة حالياً. يرجى المحاولة لاحقاً.",
	},
	CodeAnalysisParse: {
		language.English: "I could not understand the voice message. Please try recording again.",
		language.French:  "Je n'ai pas compris le message vocal. Veuillez réessayer l'enregistrement.",
		language.Arabic:  "لم أتمكن من فهم الرسالة الصوتية. يرجى إعادة التسجيل.",
	},
	CodeLinkBuild: {
		language.English: "A calendar link could not be created for this task.",
		language.French:  "Impossible de créer un lien d'agenda pour cette tâche.",
		language.Arabic:  "تعذر إنشاء رابط التقويم لهذه المهمة.",
	},
	CodeInvalidInput: {
		language.English: "The request is invalid.",
		language.French:  "La requête est invalide.",
		language.Arabic:  "الطلب غير صالح.",
	},
	CodeInternal: {
		language.English: "Something went wrong. Please try again.",
		language.French:  "Une erreur est survenue. Veuillez réessayer.",
		language.Arabic:  "حدث خطأ ما. يرجى المحاولة مرة أخرى.",
	},
}

var messageCatalog = buildCatalog()

func buildCatalog() catalog.Catalog {
	b := catalog.NewBuilder(catalog.Fallback(language.English))
	for code, texts := range userMessages {
		for tag, text := range texts {
			// SetString only fails on malformed tags; the table uses constants.
			_ = b.SetString(tag, messageKey(code), text)
		}
	}
	return b
}

func messageKey(code Code) string {
	return "error." + string(code)
}

// UserMessage returns the stable user-facing message for err in lang.
// Errors without a code are reported as internal errors.
func UserMessage(err error, lang Language) string {
	if err == nil {
		return ""
	}
	p := message.NewPrinter(lang.Tag(), message.Catalog(messageCatalog))
	return p.Sprintf(messageKey(CodeOf(err)))
}
