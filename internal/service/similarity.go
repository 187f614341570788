package service

import (
	"fmt"
	"math"
)

// CosineSimilarity computes the cosine similarity of two equal-length
// vectors, in [-1, 1]. Mismatched lengths are a programmer error — every
// vector in one comparison must come from the same embedding model — so
// it panics rather than coercing.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		panic(fmt.Sprintf("cosine similarity: vector length mismatch: %d vs %d", len(a), len(b)))
	}
	if len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// NormalizeConfidence maps a cosine similarity from [-1, 1] to [0, 1].
// Every threshold in the pipeline compares against this normalized value.
func NormalizeConfidence(cosine float64) float64 {
	c := (cosine + 1) / 2
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}

// ImageConfidence is the normalized similarity between an image embedding
// and a text or reference embedding.
func ImageConfidence(imageVec, otherVec []float32) float64 {
	return NormalizeConfidence(CosineSimilarity(imageVec, otherVec))
}
