package ai

import "math"

// Norm is the Euclidean length of v.
func Norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

// CosineSimilarity returns 0 when the vectors are empty, differ in length or
// either has zero norm.
func CosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	return cosine(a, b, Norm(a))
}

// cosine takes the norm of a precomputed so a scan pays for it once.
// a and b must have the same length.
func cosine(a, b []float32, normA float64) float32 {
	if normA == 0 {
		return 0
	}
	var dot, sumB float64
	for i, x := range a {
		y := float64(b[i])
		dot += float64(x) * y
		sumB += y * y
	}
	if sumB == 0 {
		return 0
	}
	return float32(dot / (normA * math.Sqrt(sumB)))
}
