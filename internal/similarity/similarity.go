// Package similarity provides the pluggable scoring function used by matching
// and search. Scores are in [0, 1]; higher means more similar and search
// thresholds are lower bounds on the score.
package similarity

import (
	"fmt"
	"math"

	"github.com/your-org/faceapi/internal/resultcode"
)

type Scorer interface {
	Score(a, b []float32) (float64, error)
}

// ScorerFunc adapts a plain function to Scorer.
type ScorerFunc func(a, b []float32) (float64, error)

func (f ScorerFunc) Score(a, b []float32) (float64, error) {
	return f(a, b)
}

// Cosine maps cosine similarity from [-1, 1] onto [0, 1].
type Cosine struct{}

func (Cosine) Score(a, b []float32) (float64, error) {
	if len(a) == 0 || len(a) != len(b) {
		return 0, fmt.Errorf("%w: %d vs %d", resultcode.ErrDimensionMismatch, len(a), len(b))
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	// A zero vector has no direction to compare.
	if normA == 0 || normB == 0 {
		return 0, fmt.Errorf("%w: zero-norm embedding", resultcode.ErrDimensionMismatch)
	}

	cos := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	cos = math.Max(-1, math.Min(1, cos))
	return (1 + cos) / 2, nil
}

// FromCosineDistance converts a pgvector cosine distance (1 - cos, in [0, 2])
// into the same [0, 1] score Cosine produces.
func FromCosineDistance(d float64) float64 {
	return math.Max(0, math.Min(1, 1-d/2))
}

// ToCosineDistance is the inverse of FromCosineDistance.
func ToCosineDistance(score float64) float64 {
	return 2 * (1 - score)
}
