package similarity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/faceapi/internal/resultcode"
)

func TestCosineScore(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 0, 0}, []float32{1, 0, 0}, 1},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, 0},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0.5},
		{"scale invariant", []float32{2, 2}, []float32{1, 1}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Cosine{}.Score(tt.a, tt.b)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-6)
		})
	}
}

func TestCosineDimensionMismatch(t *testing.T) {
	_, err := Cosine{}.Score([]float32{1, 0}, []float32{1, 0, 0})
	assert.Equal(t, resultcode.DimensionMismatch, resultcode.Of(err))

	_, err = Cosine{}.Score(nil, nil)
	assert.Equal(t, resultcode.DimensionMismatch, resultcode.Of(err))
}

func TestCosineZeroVector(t *testing.T) {
	_, err := Cosine{}.Score([]float32{0, 0}, []float32{1, 1})
	assert.Equal(t, resultcode.DimensionMismatch, resultcode.Of(err))

	_, err = Cosine{}.Score([]float32{1, 1}, []float32{0, 0})
	assert.Equal(t, resultcode.DimensionMismatch, resultcode.Of(err))
}

func TestCosineDistanceRoundTrip(t *testing.T) {
	for _, score := range []float64{0, 0.25, 0.8, 1} {
		assert.InDelta(t, score, FromCosineDistance(ToCosineDistance(score)), 1e-9)
	}
	assert.Equal(t, 1.0, FromCosineDistance(0))
	assert.Equal(t, 0.0, FromCosineDistance(2))
}
