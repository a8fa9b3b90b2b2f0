package matcher

import "math"

// CosineDistance computes 1 - cosine similarity of a and b, in [0, 2].
// ok is false when the lengths differ, a vector is empty or has zero norm.
func CosineDistance(a, b []float32) (distance float64, ok bool) {
	if len(a) != len(b) || len(a) == 0 {
		return 0, false
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0, false
	}

	similarity := dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
	// Clamp to [-1, 1] to handle floating point errors
	similarity = max(-1, min(1, similarity))

	return 1 - similarity, true
}

// round3 rounds to three decimals, the precision reported to clients.
func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
