package retrieval

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCosineSimilarity(t *testing.T) {
	nan := float32(math.NaN())
	inf := float32(math.Inf(1))

	tests := []struct {
		name     string
		a, b     []float32
		expected float64
	}{
		{name: "identical", a: []float32{1, 2, 3}, b: []float32{1, 2, 3}, expected: 1},
		{name: "orthogonal", a: []float32{1, 0}, b: []float32{0, 1}, expected: 0},
		{name: "opposite", a: []float32{1, 1}, b: []float32{-1, -1}, expected: -1},
		{name: "diagonal", a: []float32{1, 0}, b: []float32{1, 1}, expected: 1 / math.Sqrt2},
		{name: "scale invariant", a: []float32{2, 4}, b: []float32{1, 2}, expected: 1},
		{name: "both empty", a: []float32{}, b: []float32{}, expected: 0},
		{name: "nil", a: nil, b: []float32{1}, expected: 0},
		{name: "length mismatch", a: []float32{1, 2}, b: []float32{1, 2, 3}, expected: 0},
		{name: "zero vector", a: []float32{0, 0}, b: []float32{1, 1}, expected: 0},
		{name: "both zero", a: []float32{0, 0}, b: []float32{0, 0}, expected: 0},
		{name: "NaN component", a: []float32{nan, 1}, b: []float32{1, 1}, expected: 0},
		{name: "Inf component", a: []float32{1, 1}, b: []float32{inf, 1}, expected: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CosineSimilarity(tt.a, tt.b)
			assert.InDelta(t, tt.expected, got, 1e-6)
			assert.False(t, math.IsNaN(got))
		})
	}
}

func TestCosineSimilarity_Bounds(t *testing.T) {
	vectors := [][]float32{
		{0.1, -0.3, 0.7},
		{5, 5, 5},
		{-2, 0.5, 1e-3},
		{1e6, -1e6, 3},
		{0.33, 0.33, -0.33},
	}
	for i, a := range vectors {
		assert.InDelta(t, 1.0, CosineSimilarity(a, a), 1e-9, "self similarity of vector %d", i)
		for j, b := range vectors {
			sim := CosineSimilarity(a, b)
			assert.GreaterOrEqual(t, sim, -1.0, "pair %d,%d", i, j)
			assert.LessOrEqual(t, sim, 1.0, "pair %d,%d", i, j)
		}
	}
}
