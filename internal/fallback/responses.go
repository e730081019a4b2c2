package fallback

import "github.com/careassist/hospital-assistant/internal/classifier"

// Response represents a fixed assistant text
type Response struct {
	Content string
	Action  string // "none", "retry", "rephrase"
}

var (
	welcomes = map[string]Response{
		"en": {
			Content: "Hello! I'm your hospital assistant. I can help you book appointments, find departments, check visiting hours and more. How can I help you today?",
			Action:  "none",
		},
		"es": {
			Content: "¡Hola! Soy tu asistente del hospital. Puedo ayudarte a reservar citas, encontrar departamentos, consultar horarios de visita y más. ¿En qué puedo ayudarte hoy?",
			Action:  "none",
		},
		"fr": {
			Content: "Bonjour ! Je suis votre assistant hospitalier. Je peux vous aider à prendre rendez-vous, trouver un service, connaître les horaires de visite et plus encore. Comment puis-je vous aider ?",
			Action:  "none",
		},
	}

	noMatches = map[string]Response{
		"en": {
			Content: classifier.NoMatchResponse,
			Action:  "rephrase",
		},
		"es": {
			Content: "No estoy seguro de haber entendido. Puedo ayudarte con citas, departamentos, horarios de visita, farmacia y resultados de laboratorio. ¿Podrías reformular tu pregunta?",
			Action:  "rephrase",
		},
		"fr": {
			Content: "Je ne suis pas sûr d'avoir compris. Je peux vous aider pour les rendez-vous, les services, les horaires de visite, la pharmacie et les résultats d'analyses. Pourriez-vous reformuler ?",
			Action:  "rephrase",
		},
	}

	processingFailures = map[string]Response{
		"en": {
			Content: "I'm sorry, something went wrong while processing your message. Please try again. If this is an emergency, call 911 or go to the nearest Emergency Department.",
			Action:  "retry",
		},
		"es": {
			Content: "Lo siento, algo salió mal al procesar tu mensaje. Por favor intenta de nuevo. Si es una emergencia, llama al 911 o acude a la sala de emergencias más cercana.",
			Action:  "retry",
		},
		"fr": {
			Content: "Désolé, une erreur s'est produite lors du traitement de votre message. Veuillez réessayer. En cas d'urgence, appelez le 15 ou rendez-vous aux urgences les plus proches.",
			Action:  "retry",
		},
	}
)

// Welcome returns the greeting that seeds every new session
func Welcome(language string) Response {
	return pick(welcomes, language)
}

// NoMatch returns the guidance shown when no intent matched
func NoMatch(language string) Response {
	return pick(noMatches, language)
}

// ProcessingFailure returns the apology used when the reply pipeline fails
func ProcessingFailure(language string) Response {
	return pick(processingFailures, language)
}

func pick(responses map[string]Response, language string) Response {
	if response, ok := responses[language]; ok {
		return response
	}
	return responses["en"]
}
