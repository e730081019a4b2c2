// Package fuzzy scores free-text utterances against example patterns while
// tolerating typos and small paraphrases.
package fuzzy

import (
	"strings"

	"github.com/careassist/hospital-assistant/internal/similarity"
)

const (
	// DefaultWordThreshold is the per-token similarity needed to count a
	// pattern word as present in the input.
	DefaultWordThreshold = 0.7

	// DefaultMatchThreshold is the minimum score BestMatch accepts.
	DefaultMatchThreshold = 0.6

	exactScore           = 1.0
	inputContainsScore   = 0.95
	patternContainsScore = 0.9

	wordWeight     = 0.6
	sentenceWeight = 0.4
)

// Match is the best pattern found for an input and its score.
type Match struct {
	Pattern string  `json:"pattern"`
	Score   float64 `json:"score"`
}

// Matcher holds the token threshold used while scoring.
type Matcher struct {
	WordThreshold float64
}

// NewMatcher creates a matcher with the default word threshold
func NewMatcher() *Matcher {
	return &Matcher{WordThreshold: DefaultWordThreshold}
}

// Score rates how well input matches pattern using the matcher's word threshold
func (m *Matcher) Score(input, pattern string) float64 {
	return Score(input, pattern, m.wordThreshold())
}

// BestMatch returns the highest scoring pattern that clears threshold.
// Ties keep the earliest pattern.
func (m *Matcher) BestMatch(input string, patterns []string, threshold float64) (Match, bool) {
	var (
		best  Match
		found bool
	)
	for _, p := range patterns {
		score := m.Score(input, p)
		if score < threshold {
			continue
		}
		if !found || score > best.Score {
			best = Match{Pattern: p, Score: score}
			found = true
		}
	}
	return best, found
}

// Accepted lists every pattern whose score clears threshold, in order.
func (m *Matcher) Accepted(input string, patterns []string, threshold float64) []string {
	accepted := make([]string, 0, len(patterns))
	for _, p := range patterns {
		if m.Score(input, p) >= threshold {
			accepted = append(accepted, p)
		}
	}
	return accepted
}

func (m *Matcher) wordThreshold() float64 {
	if m == nil || m.WordThreshold <= 0 {
		return DefaultWordThreshold
	}
	return m.WordThreshold
}

// Score rates input against pattern in [0,1].
//
// Exact and containment matches short-circuit with fixed scores. Otherwise
// the score blends the fraction of pattern words found in the input with
// the whole-sentence similarity, never dropping below the latter.
func Score(input, pattern string, threshold float64) float64 {
	in := strings.ToLower(strings.TrimSpace(input))
	pat := strings.ToLower(strings.TrimSpace(pattern))

	if in == pat {
		return exactScore
	}
	if in != "" && pat != "" {
		if strings.Contains(in, pat) {
			return inputContainsScore
		}
		if strings.Contains(pat, in) {
			return patternContainsScore
		}
	}

	inputWords := strings.Fields(in)
	patternWords := strings.Fields(pat)

	wordScore := 0.0
	if len(patternWords) > 0 {
		matched := 0
		for _, pw := range patternWords {
			best := 0.0
			for _, iw := range inputWords {
				if s := similarity.Similarity(pw, iw); s > best {
					best = s
				}
			}
			if best >= threshold {
				matched++
			}
		}
		wordScore = float64(matched) / float64(len(patternWords))
	}

	sentenceScore := similarity.Similarity(in, pat)
	return max(wordWeight*wordScore+sentenceWeight*sentenceScore, sentenceScore)
}
