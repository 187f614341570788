package service

import (
	"math"
	"testing"
)

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name     string
		a, b     []float32
		expected float64
	}{
		{
			name:     "identical vectors",
			a:        []float32{1, 2, 3},
			b:        []float32{1, 2, 3},
			expected: 1,
		},
		{
			name:     "orthogonal vectors",
			a:        []float32{1, 0},
			b:        []float32{0, 1},
			expected: 0,
		},
		{
			name:     "opposite vectors",
			a:        []float32{1, 0},
			b:        []float32{-1, 0},
			expected: -1,
		},
		{
			name:     "scaled vectors keep direction",
			a:        []float32{1, 1},
			b:        []float32{10, 10},
			expected: 1,
		},
		{
			name:     "zero vector",
			a:        []float32{0, 0},
			b:        []float32{1, 1},
			expected: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CosineSimilarity(tt.a, tt.b)
			if math.Abs(got-tt.expected) > 1e-9 {
				t.Errorf("expected %v, got %v", tt.expected, got)
			}
		})
	}
}

func TestCosineSimilarity_LengthMismatchPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on length mismatch")
		}
	}()
	CosineSimilarity([]float32{1, 2}, []float32{1, 2, 3})
}

func TestNormalizeConfidence(t *testing.T) {
	tests := []struct {
		cosine   float64
		expected float64
	}{
		{cosine: 1, expected: 1},
		{cosine: 0, expected: 0.5},
		{cosine: -1, expected: 0},
		{cosine: 0.4, expected: 0.7},
	}

	for _, tt := range tests {
		got := NormalizeConfidence(tt.cosine)
		if math.Abs(got-tt.expected) > 1e-9 {
			t.Errorf("NormalizeConfidence(%v): expected %v, got %v", tt.cosine, tt.expected, got)
		}
	}
}
