// Package confidence combines routing and grounding sub-scores into a single
// confidence value in [0, 1].
package confidence

import (
	"errors"
	"fmt"
)

// ErrInvalidWeights is returned when weights do not line up with scores or
// do not sum to a positive value.
var ErrInvalidWeights = errors.New("invalid confidence weights")

// Labels returned by Label.
const (
	LabelHigh   = "high"
	LabelMedium = "medium"
	LabelLow    = "low"
)

// Clamp limits score to [0, 1].
func Clamp(score float64) float64 {
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

// Combine returns the weighted average of the clamped scores. A nil weights
// slice weights every score equally. No scores yields 0.
func Combine(scores []float64, weights []float64) (float64, error) {
	if len(scores) == 0 {
		return 0, nil
	}
	if weights == nil {
		weights = make([]float64, len(scores))
		for i := range weights {
			weights[i] = 1
		}
	}
	if len(weights) != len(scores) {
		return 0, fmt.Errorf("%w: %d weights for %d scores", ErrInvalidWeights, len(weights), len(scores))
	}

	var sum, total float64
	for i, s := range scores {
		sum += Clamp(s) * weights[i]
		total += weights[i]
	}
	if total <= 0 {
		return 0, fmt.Errorf("%w: weights must sum to a positive value", ErrInvalidWeights)
	}
	return Clamp(sum / total), nil
}

// Label buckets a score into high (>= 0.8), medium (>= 0.5) or low.
func Label(score float64) string {
	s := Clamp(score)
	switch {
	case s >= 0.8:
		return LabelHigh
	case s >= 0.5:
		return LabelMedium
	default:
		return LabelLow
	}
}
