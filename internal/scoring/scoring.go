// Package scoring holds the deterministic heuristics that assign importance,
// sentiment, and recency bias to memories. These are intentionally simple
// keyword and lexicon functions, not models; they can be swapped out without
// touching the rest of the engine.
package scoring

import (
	"math"
	"strings"
	"time"
)

// Keyword families for importance scoring. Hits are discrete but the final
// score is squashed through a logistic so it stays smooth.
var (
	taskWords = []string{
		"deadline", "due", "exam", "quiz", "assignment", "homework",
		"project", "submit", "meeting", "schedule", "task",
	}

	selfRefPhrases = []string{
		"i need", "i have to", "i must", "i should", "my plan", "my goal",
	}

	authorityWords = []string{
		"teacher", "professor", "boss", "manager", "principal",
		"doctor", "mom", "dad",
	}

	noveltyWords = []string{
		"new", "first", "never", "discovered", "learned", "realized",
	}

	// importantTags contribute a flat bonus per overlapping tag.
	importantTags = map[string]bool{
		"school":     true,
		"assignment": true,
		"study":      true,
	}
)

// ImportanceScorer assigns an importance score in [0,1] to a piece of text.
type ImportanceScorer struct{}

// Score scans the lower-cased text for the four keyword families, adds a
// bonus per overlapping important tag, and squashes the accumulated raw
// score through 1/(1+e^(-4(s-0.35))) before clamping to [0,1].
func (ImportanceScorer) Score(text string, tags []string) float64 {
	lower := strings.ToLower(text)

	var s float64
	for _, w := range taskWords {
		if strings.Contains(lower, w) {
			s += 0.15
		}
	}
	for _, p := range selfRefPhrases {
		if strings.Contains(lower, p) {
			s += 0.10
		}
	}
	for _, w := range authorityWords {
		if strings.Contains(lower, w) {
			s += 0.10
		}
	}
	for _, w := range noveltyWords {
		if strings.Contains(lower, w) {
			s += 0.05
		}
	}
	for _, t := range tags {
		if importantTags[strings.ToLower(t)] {
			s += 0.10
		}
	}

	squashed := 1.0 / (1.0 + math.Exp(-4.0*(s-0.35)))
	return Clamp01(squashed)
}

// Affect lexicons for sentiment. Negative is checked first.
var (
	negativeWords = []string{
		"sad", "angry", "afraid", "anxious", "worried", "stressed",
		"upset", "hate", "terrible", "awful", "failed", "frustrated",
	}

	positiveWords = []string{
		"happy", "glad", "excited", "great", "love", "wonderful",
		"proud", "relieved", "fun", "awesome",
	}
)

// SentimentScorer assigns a coarse sentiment in [-1,1] via lexicon lookup.
type SentimentScorer struct{}

// Sentiment returns -0.6 when any negative-affect word is present, +0.6 when
// any positive-affect word is present, and 0 otherwise.
func (SentimentScorer) Sentiment(text string) float64 {
	lower := strings.ToLower(text)
	for _, w := range negativeWords {
		if strings.Contains(lower, w) {
			return -0.6
		}
	}
	for _, w := range positiveWords {
		if strings.Contains(lower, w) {
			return 0.6
		}
	}
	return 0
}

// RecencyBiasCalculator computes an exponentially decaying freshness score
// parameterized by a half-life in days.
type RecencyBiasCalculator struct {
	tau float64 // decay time constant in seconds
}

// NewRecencyBiasCalculator builds a calculator with
// tau = halfLifeDays*86400/ln(2).
func NewRecencyBiasCalculator(halfLifeDays float64) RecencyBiasCalculator {
	return RecencyBiasCalculator{tau: halfLifeDays * 86400.0 / math.Ln2}
}

// RecencyBias returns exp(-age/tau) for the age of createdAt relative to
// reference. Non-positive tau or age (including future timestamps) yields 1.
func (c RecencyBiasCalculator) RecencyBias(createdAt, reference time.Time) float64 {
	age := reference.Sub(createdAt).Seconds()
	if c.tau <= 0 || age <= 0 {
		return 1.0
	}
	return math.Exp(-age / c.tau)
}

// Clamp01 clamps v to [0,1].
func Clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
