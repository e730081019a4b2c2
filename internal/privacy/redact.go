// Package privacy strips patient identifiers from text before it reaches logs.
package privacy

import (
	"regexp"
)

const maxLogRunes = 200

type rule struct {
	pattern *regexp.Regexp
	token   string
}

// Applied in order; medical record numbers go first so their digits are
// not claimed by the phone pattern.
var rules = []rule{
	{
		pattern: regexp.MustCompile(`(?i)\b(?:MRN|medical record(?: number)?|patient id)[-:#\s]*[A-Z0-9]{6,}\b`),
		token:   "[MEDICAL_ID]",
	},
	{
		pattern: regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`),
		token:   "[EMAIL]",
	},
	{
		pattern: regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`),
		token:   "[SSN]",
	},
	{
		pattern: regexp.MustCompile(`\b\d{4}[-\s]\d{4}[-\s]\d{4}[-\s]\d{4}\b`),
		token:   "[CARD]",
	},
	{
		// 555-123-4567, (555) 123-4567, +1 555.123.4567, 555-1234
		pattern: regexp.MustCompile(`(\+\d{1,3}[-.\s]?)?\(?\d{3}\)?[-.\s]?\d{3}[-.\s]\d{4}\b|\b\d{3}[-.\s]\d{4}\b`),
		token:   "[PHONE]",
	},
	{
		// dates of birth such as 03/14/1985 or 3-4-85
		pattern: regexp.MustCompile(`\b\d{1,2}[/-]\d{1,2}[/-](?:\d{4}|\d{2})\b`),
		token:   "[DATE]",
	},
}

// RedactSensitiveData replaces identifiers in text with placeholder tokens
func RedactSensitiveData(text string) string {
	for _, r := range rules {
		text = r.pattern.ReplaceAllString(text, r.token)
	}
	return text
}

// SanitizeForLogging redacts text and truncates it to a log-friendly length
func SanitizeForLogging(text string) string {
	redacted := []rune(RedactSensitiveData(text))
	if len(redacted) > maxLogRunes {
		return string(redacted[:maxLogRunes-3]) + "..."
	}
	return string(redacted)
}

// ContainsPII checks if text contains potential PII
func ContainsPII(text string) bool {
	for _, r := range rules {
		if r.pattern.MatchString(text) {
			return true
		}
	}
	return false
}
