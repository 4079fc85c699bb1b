package gemini

import "math"

// cosine returns the cosine similarity of a and b clamped to [0, 1]. Vectors
// of different length or zero norm score 0.
func cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}

	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return clamp01(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}

func clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

// bestMatch averages, for every vector in from, its highest similarity to
// any vector in to.
func bestMatch(from, to [][]float32) float64 {
	if len(from) == 0 {
		return 0
	}
	var sum float64
	for _, f := range from {
		best := 0.0
		for _, t := range to {
			if s := cosine(f, t); s > best {
				best = s
			}
		}
		sum += best
	}
	return sum / float64(len(from))
}

// listSimilarity is the symmetric best-match average of two embedded lists.
// Two empty lists are identical; one empty list matches nothing.
func listSimilarity(a, b [][]float32) float64 {
	switch {
	case len(a) == 0 && len(b) == 0:
		return 1
	case len(a) == 0 || len(b) == 0:
		return 0
	}
	return clamp01((bestMatch(a, b) + bestMatch(b, a)) / 2)
}
