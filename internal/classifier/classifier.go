package classifier

import (
	"math/rand/v2"
	"strings"

	"github.com/careassist/hospital-assistant/internal/fuzzy"
	"github.com/careassist/hospital-assistant/internal/knowledge"
)

const (
	// NoMatchTag marks the fallback result when no intent clears the threshold.
	NoMatchTag = "no_match"

	// NoMatchResponse is the fixed guidance returned with NoMatchTag.
	NoMatchResponse = "I'm not sure I understood that. I can help with booking appointments, finding departments, visiting hours, pharmacy and lab results. Could you rephrase your question?"

	// DefaultAcceptThreshold is the score the best intent must reach.
	DefaultAcceptThreshold = 0.5
)

// MatchedIntent contains the classification result
type MatchedIntent struct {
	Tag            string              `json:"tag"`
	Confidence     float64             `json:"confidence"`
	Response       string              `json:"response"`
	Severity       string              `json:"severity,omitempty"`
	Departments    []string            `json:"departments,omitempty"`
	Priority       string              `json:"priority,omitempty"`
	IsEmergency    bool                `json:"is_emergency"`
	Entities       map[string][]string `json:"entities,omitempty"`
	MatchedPattern string              `json:"matched_pattern,omitempty"`
}

// Rand is the source used to pick one of an intent's responses. The
// classifier is shared across sessions, so implementations must be safe
// for concurrent use.
type Rand interface {
	Intn(n int) int
}

// globalRand draws from the goroutine-safe top-level math/rand/v2 source.
type globalRand struct{}

func (globalRand) Intn(n int) int { return rand.IntN(n) }

// Classifier matches utterances against the knowledge base catalog
type Classifier struct {
	kb              *knowledge.Base
	matcher         *fuzzy.Matcher
	rnd             Rand
	matchThreshold  float64
	acceptThreshold float64
}

// Option configures a Classifier.
type Option func(*Classifier)

// WithRand injects the response picker, e.g. a seeded source in tests.
func WithRand(r Rand) Option {
	return func(c *Classifier) { c.rnd = r }
}

// WithMatcher replaces the default fuzzy matcher.
func WithMatcher(m *fuzzy.Matcher) Option {
	return func(c *Classifier) { c.matcher = m }
}

// WithThresholds overrides the per-intent match threshold and the final
// acceptance threshold. Non-positive values keep the defaults.
func WithThresholds(match, accept float64) Option {
	return func(c *Classifier) {
		if match > 0 {
			c.matchThreshold = match
		}
		if accept > 0 {
			c.acceptThreshold = accept
		}
	}
}

// NewClassifier creates a new intent classifier over kb
func NewClassifier(kb *knowledge.Base, opts ...Option) *Classifier {
	c := &Classifier{
		kb:              kb,
		matcher:         fuzzy.NewMatcher(),
		rnd:             globalRand{},
		matchThreshold:  fuzzy.DefaultMatchThreshold,
		acceptThreshold: DefaultAcceptThreshold,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Classify determines the intent of the utterance. It never fails: an
// utterance nothing matches yields the no_match result.
func (c *Classifier) Classify(utterance string) MatchedIntent {
	normalized := knowledge.Normalize(utterance)

	// Emergency keywords preempt every other rule
	if c.ContainsEmergency(normalized) {
		if intent, ok := c.kb.EmergencyIntent(); ok {
			result := c.build(intent, 1.0, normalized)
			result.IsEmergency = true
			return result
		}
	}

	var (
		best      knowledge.Intent
		bestMatch fuzzy.Match
		found     bool
	)
	for _, intent := range c.kb.Intents {
		match, ok := c.matcher.BestMatch(normalized, intent.Patterns, c.matchThreshold)
		if !ok {
			continue
		}
		if !found || match.Score > bestMatch.Score {
			best, bestMatch, found = intent, match, true
		}
	}

	if !found || bestMatch.Score < c.acceptThreshold {
		return NoMatch()
	}

	result := c.build(best, bestMatch.Score, normalized)
	result.MatchedPattern = bestMatch.Pattern
	return result
}

// ContainsEmergency reports whether the normalized text holds any
// configured emergency keyword.
func (c *Classifier) ContainsEmergency(normalized string) bool {
	return c.kb.ContainsEmergency(normalized)
}

// ExtractEntities collects known entity strings found in the normalized
// text, per category. Categories without hits are left out.
func (c *Classifier) ExtractEntities(normalized string) map[string][]string {
	entities := make(map[string][]string)
	for category, values := range c.kb.Entities {
		for _, value := range values {
			if strings.Contains(normalized, value) {
				entities[category] = append(entities[category], value)
			}
		}
	}
	return entities
}

// NoMatch returns the fixed fallback result.
func NoMatch() MatchedIntent {
	return MatchedIntent{
		Tag:        NoMatchTag,
		Confidence: 0,
		Response:   NoMatchResponse,
	}
}

func (c *Classifier) build(intent knowledge.Intent, confidence float64, normalized string) MatchedIntent {
	return MatchedIntent{
		Tag:         intent.Tag,
		Confidence:  confidence,
		Response:    c.pickResponse(intent.Responses),
		Severity:    intent.Severity,
		Departments: intent.RecommendedDepartments,
		Priority:    intent.Priority,
		IsEmergency: intent.Emergency,
		Entities:    c.ExtractEntities(normalized),
	}
}

// pickResponse returns "" for an intent without responses; the caller
// treats that as a malformed catalog entry.
func (c *Classifier) pickResponse(responses []string) string {
	if len(responses) == 0 {
		return ""
	}
	return responses[c.rnd.Intn(len(responses))]
}

