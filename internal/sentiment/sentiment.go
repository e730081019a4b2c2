// Package sentiment labels how the user feels from keyword buckets checked
// in a fixed priority order.
package sentiment

import (
	"strings"

	"github.com/careassist/hospital-assistant/internal/knowledge"
)

// Label is the coarse sentiment category.
type Label string

const (
	LabelPositive Label = "positive"
	LabelNegative Label = "negative"
	LabelNeutral  Label = "neutral"
	LabelUrgent   Label = "urgent"
	LabelAnxious  Label = "anxious"
)

// Emotion is the discrete emotion detected, if any.
type Emotion string

const (
	EmotionAnxious  Emotion = "anxious"
	EmotionAngry    Emotion = "angry"
	EmotionGrateful Emotion = "grateful"
	EmotionConfused Emotion = "confused"
	EmotionPain     Emotion = "pain"
	EmotionNeutral  Emotion = "neutral"
)

var emojis = map[Label]string{
	LabelPositive: "😊",
	LabelNegative: "😔",
	LabelNeutral:  "😐",
	LabelUrgent:   "🚨",
	LabelAnxious:  "😟",
}

// Emoji returns the display emoji for a label.
func Emoji(l Label) string {
	if e, ok := emojis[l]; ok {
		return e
	}
	return emojis[LabelNeutral]
}

// Result is the outcome of one classification.
type Result struct {
	Score     float64 `json:"score"`
	Label     Label   `json:"label"`
	Emoji     string  `json:"emoji"`
	Intensity float64 `json:"intensity"`
	Emotion   Emotion `json:"emotion,omitempty"`
}

// Config holds the intensity heuristics. Counts are divided by the
// divisor and capped at 1.0.
type Config struct {
	AnxiousDivisor    float64 `yaml:"anxiousDivisor"`
	PainDivisor       float64 `yaml:"painDivisor"`
	AngryDivisor      float64 `yaml:"angryDivisor"`
	GratefulDivisor   float64 `yaml:"gratefulDivisor"`
	ConfusedIntensity float64 `yaml:"confusedIntensity"`
	NeutralIntensity  float64 `yaml:"neutralIntensity"`
}

// DefaultConfig returns the stock heuristics.
func DefaultConfig() Config {
	return Config{
		AnxiousDivisor:    3,
		PainDivisor:       2,
		AngryDivisor:      2,
		GratefulDivisor:   2,
		ConfusedIntensity: 0.5,
		NeutralIntensity:  0.3,
	}
}

// withDefaults fills zero fields so a partially specified config works.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.AnxiousDivisor <= 0 {
		c.AnxiousDivisor = d.AnxiousDivisor
	}
	if c.PainDivisor <= 0 {
		c.PainDivisor = d.PainDivisor
	}
	if c.AngryDivisor <= 0 {
		c.AngryDivisor = d.AngryDivisor
	}
	if c.GratefulDivisor <= 0 {
		c.GratefulDivisor = d.GratefulDivisor
	}
	if c.ConfusedIntensity <= 0 {
		c.ConfusedIntensity = d.ConfusedIntensity
	}
	if c.NeutralIntensity <= 0 {
		c.NeutralIntensity = d.NeutralIntensity
	}
	return c
}

// Classifier applies the bucket chain.
type Classifier struct {
	kb      *knowledge.Base
	buckets map[string][]string
	cfg     Config
}

// NewClassifier builds a sentiment classifier from the knowledge base
func NewClassifier(kb *knowledge.Base, cfg Config) *Classifier {
	return &Classifier{
		kb:      kb,
		buckets: kb.SentimentKeywords,
		cfg:     cfg.withDefaults(),
	}
}

// Classify labels the utterance. The first rule that fires wins:
// emergency, anxious, pain, angry, confused, grateful, then neutral.
func (c *Classifier) Classify(utterance string) Result {
	text := knowledge.Normalize(utterance)

	if c.kb.ContainsEmergency(text) {
		return newResult(-0.9, LabelUrgent, EmotionPain, 1.0)
	}
	if n := countHits(text, c.buckets[knowledge.BucketAnxious]); n > 0 {
		return newResult(-0.4, LabelAnxious, EmotionAnxious, capped(n, c.cfg.AnxiousDivisor))
	}
	if n := countHits(text, c.buckets[knowledge.BucketPain]); n > 0 {
		return newResult(-0.6, LabelNegative, EmotionPain, capped(n, c.cfg.PainDivisor))
	}
	if n := countHits(text, c.buckets[knowledge.BucketAngry]); n > 0 {
		return newResult(-0.5, LabelNegative, EmotionAngry, capped(n, c.cfg.AngryDivisor))
	}
	if countHits(text, c.buckets[knowledge.BucketConfused]) > 0 {
		return newResult(-0.2, LabelNeutral, EmotionConfused, c.cfg.ConfusedIntensity)
	}
	if n := countHits(text, c.buckets[knowledge.BucketGrateful]); n > 0 {
		return newResult(0.8, LabelPositive, EmotionGrateful, capped(n, c.cfg.GratefulDivisor))
	}

	return newResult(0, LabelNeutral, EmotionNeutral, c.cfg.NeutralIntensity)
}

func newResult(score float64, label Label, emotion Emotion, intensity float64) Result {
	return Result{
		Score:     score,
		Label:     label,
		Emoji:     Emoji(label),
		Intensity: intensity,
		Emotion:   emotion,
	}
}

// countHits counts distinct keywords present in text, not occurrences.
func countHits(text string, keywords []string) int {
	seen := make(map[string]bool, len(keywords))
	for _, kw := range keywords {
		if kw == "" || seen[kw] {
			continue
		}
		if strings.Contains(text, kw) {
			seen[kw] = true
		}
	}
	return len(seen)
}

func capped(count int, divisor float64) float64 {
	return min(float64(count)/divisor, 1.0)
}
