// Package response turns a matched intent and the user's mood into the
// final assistant text.
package response

import (
	"strings"

	"github.com/careassist/hospital-assistant/internal/classifier"
	"github.com/careassist/hospital-assistant/internal/sentiment"
)

var empathy = map[string]map[sentiment.Emotion]string{
	"en": {
		sentiment.EmotionAnxious:  "I understand this may be worrying for you. ",
		sentiment.EmotionPain:     "I'm sorry to hear you're in pain. ",
		sentiment.EmotionAngry:    "I apologize for any frustration this has caused. ",
		sentiment.EmotionConfused: "Let me help clarify. ",
	},
	"es": {
		sentiment.EmotionAnxious:  "Entiendo que esto puede preocuparte. ",
		sentiment.EmotionPain:     "Lamento que tengas dolor. ",
		sentiment.EmotionAngry:    "Disculpa las molestias que esto te ha causado. ",
		sentiment.EmotionConfused: "Déjame aclararlo. ",
	},
}

var departmentLabels = map[string]string{
	"en": "Recommended Department(s)",
	"es": "Departamento(s) recomendado(s)",
}

// Compose builds the reply: an empathy prefix for the detected emotion,
// the intent's chosen response, then any recommended departments.
// Grateful and neutral moods get no prefix.
func Compose(intent classifier.MatchedIntent, mood sentiment.Result, language string) string {
	var b strings.Builder

	b.WriteString(EmpathyPrefix(mood.Emotion, language))
	b.WriteString(intent.Response)

	if len(intent.Departments) > 0 {
		b.WriteString("\n\n🏥 ")
		b.WriteString(lookup(departmentLabels, language))
		b.WriteString(": ")
		b.WriteString(strings.Join(intent.Departments, ", "))
	}

	return b.String()
}

// EmpathyPrefix returns the phrase prepended for emotion, or "".
func EmpathyPrefix(emotion sentiment.Emotion, language string) string {
	phrases, ok := empathy[language]
	if !ok {
		phrases = empathy["en"]
	}
	return phrases[emotion]
}

func lookup(m map[string]string, language string) string {
	if v, ok := m[language]; ok {
		return v
	}
	return m["en"]
}
