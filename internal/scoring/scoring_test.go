package scoring

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestImportanceScoreRangeAndOrdering(t *testing.T) {
	var s ImportanceScorer

	low := s.Score("the weather is mild today", nil)
	high := s.Score("I need to submit my homework before the deadline, the teacher said so", []string{"school"})

	assert.GreaterOrEqual(t, low, 0.0)
	assert.LessOrEqual(t, high, 1.0)
	assert.Greater(t, high, low, "keyword-dense text must score higher")
}

func TestImportanceScoreIsLogistic(t *testing.T) {
	var s ImportanceScorer

	// No hits: raw score 0 → 1/(1+e^(4*0.35)).
	want := 1.0 / (1.0 + math.Exp(4.0*0.35))
	assert.InDelta(t, want, s.Score("nothing notable here", nil), 1e-9)
}

func TestImportanceTagBonus(t *testing.T) {
	var s ImportanceScorer

	without := s.Score("reading a book", nil)
	with := s.Score("reading a book", []string{"study"})
	assert.Greater(t, with, without)
}

func TestSentimentLexicon(t *testing.T) {
	var s SentimentScorer

	assert.Equal(t, -0.6, s.Sentiment("I am worried about the exam"))
	assert.Equal(t, 0.6, s.Sentiment("that was a great day"))
	assert.Equal(t, 0.0, s.Sentiment("the sky is blue"))

	// Negative is checked before positive.
	assert.Equal(t, -0.6, s.Sentiment("happy but also stressed"))
}

func TestRecencyBiasDecay(t *testing.T) {
	c := NewRecencyBiasCalculator(7)
	ref := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	// Exactly one half-life old → 0.5.
	created := ref.AddDate(0, 0, -7)
	assert.InDelta(t, 0.5, c.RecencyBias(created, ref), 1e-9)

	// Fresh and future timestamps pin to 1.
	assert.Equal(t, 1.0, c.RecencyBias(ref, ref))
	assert.Equal(t, 1.0, c.RecencyBias(ref.Add(time.Hour), ref))
}

func TestRecencyBiasNonPositiveHalfLife(t *testing.T) {
	c := NewRecencyBiasCalculator(0)
	assert.Equal(t, 1.0, c.RecencyBias(time.Unix(0, 0), time.Now()))
}

func TestClamp01(t *testing.T) {
	assert.Equal(t, 0.0, Clamp01(-0.2))
	assert.Equal(t, 1.0, Clamp01(1.7))
	assert.Equal(t, 0.4, Clamp01(0.4))
}
