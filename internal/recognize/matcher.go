package recognize

import (
	"math"

	"github.com/kozaktomas/face-attendance/internal/gallery"
)

// Distance computes the Euclidean distance between two embeddings.
// Mismatched or empty inputs get +Inf so they can never win a match.
func Distance(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return math.Inf(1)
	}
	var sum float64
	for i := range a {
		diff := float64(a[i]) - float64(b[i])
		sum += diff * diff
	}
	return math.Sqrt(sum)
}

// Match finds the candidate closest to the query embedding. Returns nil and
// the best distance (or +Inf for no candidates) when nothing lies within
// tolerance. Ties resolve to the earliest candidate in slice order, which is
// the gallery's insertion order, so results are deterministic.
func Match(query []float32, candidates []gallery.Identity, tolerance float64) (*gallery.Identity, float64) {
	best := -1
	bestDistance := math.Inf(1)

	for i := range candidates {
		d := Distance(query, candidates[i].Embedding)
		if d < bestDistance {
			bestDistance = d
			best = i
		}
	}

	if best < 0 || bestDistance > tolerance {
		return nil, bestDistance
	}
	return &candidates[best], bestDistance
}
