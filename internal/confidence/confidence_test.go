package confidence

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClamp(t *testing.T) {
	assert.Equal(t, 0.0, Clamp(-0.2))
	assert.Equal(t, 1.0, Clamp(1.7))
	assert.Equal(t, 0.42, Clamp(0.42))
}

func TestCombine_EqualWeights(t *testing.T) {
	got, err := Combine([]float64{0.2, 0.8}, nil)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, got, 1e-9)
}

func TestCombine_ClampsInputs(t *testing.T) {
	got, err := Combine([]float64{2.0, -1.0}, []float64{1, 1})
	require.NoError(t, err)
	assert.InDelta(t, 0.5, got, 1e-9)
}

func TestCombine_Empty(t *testing.T) {
	got, err := Combine(nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 0.0, got)
}

func TestCombine_InvalidWeights(t *testing.T) {
	_, err := Combine([]float64{0.5}, []float64{1, 2})
	assert.ErrorIs(t, err, ErrInvalidWeights)

	_, err = Combine([]float64{0.5, 0.5}, []float64{0, 0})
	assert.ErrorIs(t, err, ErrInvalidWeights)
}

func TestLabel(t *testing.T) {
	tests := []struct {
		score float64
		want  string
	}{
		{0.95, LabelHigh},
		{0.8, LabelHigh},
		{0.5, LabelMedium},
		{0.49, LabelLow},
		{-3, LabelLow},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Label(tt.score), "score %v", tt.score)
	}
}

func TestCombine_Properties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("result always within [0,1]", prop.ForAll(
		func(scores []float64) bool {
			got, err := Combine(scores, nil)
			if err != nil {
				return false
			}
			return got >= 0 && got <= 1
		},
		gen.SliceOf(gen.Float64Range(-10, 10)),
	))

	properties.Property("single score with weight 1 is returned unchanged", prop.ForAll(
		func(score float64) bool {
			got, err := Combine([]float64{score}, []float64{1})
			return err == nil && got == score
		},
		gen.Float64Range(0, 1),
	))

	properties.TestingRun(t)
}
