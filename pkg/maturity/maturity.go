// Package maturity computes the essence-maturity score: a single scalar
// reflecting how much the node has "learned" about its owner, derived from
// the volume of corrections, extracted patterns, and accumulated context.
package maturity

import (
	"context"
	"math"
	"strings"
)

const (
	midpointCorrections = 50
	midpointPatterns    = 20
	midpointContext     = 500

	weightCorrections = 0.40
	weightPatterns     = 0.35
	weightContext      = 0.25
)

// DataSource is the minimal view of persisted state the score is computed
// from. pkg/store's Store satisfies this structurally; maturity never
// imports store directly to avoid a dependency cycle with packages that
// import both.
type DataSource interface {
	CorrectionCount(ctx context.Context) (int, error)
	PatternCount(ctx context.Context) (int, error)
	ContextWordCount(ctx context.Context) (int, error)
}

// sigmoid maps a non-negative count to (0, 1) via a logistic curve centered
// on midpoint: f(x, m) = 1 / (1 + exp(-(x - m) / (m / 2))).
func sigmoid(value float64, midpoint float64) float64 {
	return 1 / (1 + math.Exp(-(value-midpoint)/(midpoint/2)))
}

// Calculate computes the maturity score as a weighted average of the
// correction-count, pattern-count, and context-word-count factors, clamped
// to [0, 1] and rounded to 4 decimals.
func Calculate(ctx context.Context, source DataSource) (float64, error) {
	corrections, err := source.CorrectionCount(ctx)
	if err != nil {
		return 0, err
	}
	patterns, err := source.PatternCount(ctx)
	if err != nil {
		return 0, err
	}
	words, err := source.ContextWordCount(ctx)
	if err != nil {
		return 0, err
	}

	score := weightCorrections*sigmoid(float64(corrections), midpointCorrections) +
		weightPatterns*sigmoid(float64(patterns), midpointPatterns) +
		weightContext*sigmoid(float64(words), midpointContext)

	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}

	return round4(score), nil
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}

// Label returns the descriptive band for a maturity score.
func Label(score float64) string {
	switch {
	case score < 0.2:
		return "nascent"
	case score < 0.4:
		return "emerging"
	case score < 0.6:
		return "developing"
	case score < 0.8:
		return "established"
	default:
		return "mature"
	}
}

// WordCount counts whitespace-delimited words in s, matching the
// context.md word-count factor.
func WordCount(s string) int {
	return len(strings.Fields(s))
}
