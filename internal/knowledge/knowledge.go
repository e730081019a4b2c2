// Package knowledge loads the intent catalog, emergency keywords, entity
// lists and sentiment buckets the assistant classifies against.
package knowledge

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed data/hospital.yaml
var defaultCatalog []byte

// Sentiment bucket names.
const (
	BucketAnxious  = "anxious"
	BucketPain     = "pain"
	BucketAngry    = "angry"
	BucketConfused = "confused"
	BucketGrateful = "grateful"
)

// Intent is one catalog entry.
type Intent struct {
	Tag                    string   `yaml:"tag" json:"tag"`
	Patterns               []string `yaml:"patterns" json:"patterns"`
	Responses              []string `yaml:"responses" json:"responses"`
	Severity               string   `yaml:"severity,omitempty" json:"severity,omitempty"`
	RecommendedDepartments []string `yaml:"recommended_departments,omitempty" json:"recommended_departments,omitempty"`
	Emergency              bool     `yaml:"emergency,omitempty" json:"emergency,omitempty"`
	Priority               string   `yaml:"priority,omitempty" json:"priority,omitempty"`
}

// Base is the whole knowledge resource. It is read-only after Load.
type Base struct {
	Intents           []Intent            `yaml:"intents" json:"intents"`
	EmergencyKeywords []string            `yaml:"emergency_keywords" json:"emergency_keywords"`
	Entities          map[string][]string `yaml:"entities" json:"entities"`
	SentimentKeywords map[string][]string `yaml:"sentiment_keywords" json:"sentiment_keywords"`
}

// Load parses a YAML (or JSON) knowledge document.
func Load(r io.Reader) (*Base, error) {
	var kb Base
	dec := yaml.NewDecoder(r)
	if err := dec.Decode(&kb); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("knowledge base is empty")
		}
		return nil, fmt.Errorf("failed to parse knowledge base: %w", err)
	}

	kb.normalize()
	return &kb, nil
}

// LoadFile reads a knowledge base from disk.
func LoadFile(path string) (*Base, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open knowledge base: %w", err)
	}
	defer f.Close()

	return Load(f)
}

// Default returns the embedded hospital catalog.
func Default() (*Base, error) {
	return Load(bytes.NewReader(defaultCatalog))
}

// MustDefault is Default for callers that cannot recover, such as tests.
func MustDefault() *Base {
	kb, err := Default()
	if err != nil {
		panic(err)
	}
	return kb
}

// EmergencyIntent returns the first intent flagged as an emergency.
func (kb *Base) EmergencyIntent() (Intent, bool) {
	for _, intent := range kb.Intents {
		if intent.Emergency {
			return intent, true
		}
	}
	return Intent{}, false
}

// Validate reports every structural problem in the catalog at once.
func (kb *Base) Validate() error {
	var errs []error
	seen := make(map[string]bool, len(kb.Intents))

	for i, intent := range kb.Intents {
		if intent.Tag == "" {
			errs = append(errs, fmt.Errorf("intent #%d: missing tag", i))
			continue
		}
		if seen[intent.Tag] {
			errs = append(errs, fmt.Errorf("intent %q: duplicate tag", intent.Tag))
		}
		seen[intent.Tag] = true

		if len(intent.Patterns) == 0 {
			errs = append(errs, fmt.Errorf("intent %q: no patterns", intent.Tag))
		}
		if len(intent.Responses) == 0 {
			errs = append(errs, fmt.Errorf("intent %q: no responses", intent.Tag))
		}
	}

	emergencies := 0
	for _, intent := range kb.Intents {
		if intent.Emergency {
			emergencies++
		}
	}
	if emergencies > 1 {
		errs = append(errs, fmt.Errorf("%d intents flagged as emergency, only the first is used", emergencies))
	}

	for bucket := range kb.SentimentKeywords {
		switch bucket {
		case BucketAnxious, BucketPain, BucketAngry, BucketConfused, BucketGrateful:
		default:
			errs = append(errs, fmt.Errorf("unknown sentiment bucket %q", bucket))
		}
	}

	return errors.Join(errs...)
}

// normalize lowercases every keyword list so matching can work on the
// normalized utterance directly.
func (kb *Base) normalize() {
	kb.EmergencyKeywords = lowerAll(kb.EmergencyKeywords)
	for category, values := range kb.Entities {
		kb.Entities[category] = lowerAll(values)
	}
	for bucket, values := range kb.SentimentKeywords {
		kb.SentimentKeywords[bucket] = lowerAll(values)
	}
}

// Normalize lowercases text, trims it and collapses runs of whitespace to
// a single space. Keywords and utterances both go through it so they
// compare the same way.
func Normalize(text string) string {
	return strings.Join(strings.Fields(strings.ToLower(text)), " ")
}

// ContainsEmergency reports whether normalized text holds any emergency
// keyword.
func (kb *Base) ContainsEmergency(normalized string) bool {
	for _, keyword := range kb.EmergencyKeywords {
		if strings.Contains(normalized, keyword) {
			return true
		}
	}
	return false
}

func lowerAll(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = Normalize(v)
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}
