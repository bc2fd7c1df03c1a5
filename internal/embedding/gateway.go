// Package embedding provides fixed-dimension text encoders.
package embedding

import (
	"context"
	"fmt"
	"math"

	"github.com/khanglvm/osm-tag-search/internal/apperror"
)

// Gateway encodes text into a vector of Dimension() floats.
//
// Implementations are safe for concurrent use and deterministic for a given
// Model() version: the same text always yields the same vector.
type Gateway interface {
	Encode(ctx context.Context, text string) ([]float32, error)
	Dimension() int
	Model() string
}

// CheckDimension returns ErrSchemaMismatch when the gateway does not produce
// vectors of the expected size.
func CheckDimension(g Gateway, want int) error {
	if got := g.Dimension(); got != want {
		return fmt.Errorf("embedding model %s has dimension %d, index expects %d: %w",
			g.Model(), got, want, apperror.ErrSchemaMismatch)
	}
	return nil
}

// Cosine returns the cosine similarity of a and b, or 0 when the lengths differ
// or either vector is zero.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0.0
	}

	var dotProduct float64
	var normA float64
	var normB float64

	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0.0
	}

	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}
