package retrieval

import "math"

// CosineSimilarity returns dot(a,b) / (|a|*|b|).
//
// Inputs that cannot be compared (empty, different lengths, zero norm, or
// containing NaN/Inf) yield 0. A zero result therefore means "could not
// compare" as often as it means orthogonal.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}

	var dot, na, nb float64
	for i := range a {
		va, vb := float64(a[i]), float64(b[i])
		if !finite(va) || !finite(vb) {
			return 0
		}
		dot += va * vb
		na += va * va
		nb += vb * vb
	}
	if na == 0 || nb == 0 {
		return 0
	}

	sim := dot / (math.Sqrt(na) * math.Sqrt(nb))
	if !finite(sim) {
		return 0
	}
	// Rounding can push parallel vectors slightly past the unit interval.
	return math.Max(-1, math.Min(1, sim))
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
