package service

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"

	"github.com/machinemate/machinemate/internal/config"
)

func TestParseEmbeddingPayload(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		expected []float32
		wantErr  bool
	}{
		{
			name:     "bare array",
			body:     `[0.1, 0.2, 0.3]`,
			expected: []float32{0.1, 0.2, 0.3},
		},
		{
			name:     "wrapped object",
			body:     `{"embedding": [0.4, 0.5]}`,
			expected: []float32{0.4, 0.5},
		},
		{
			name:     "nested batch of one",
			body:     `[[0.6, 0.7]]`,
			expected: []float32{0.6, 0.7},
		},
		{
			name:    "empty array",
			body:    `[]`,
			wantErr: true,
		},
		{
			name:    "empty object",
			body:    `{}`,
			wantErr: true,
		},
		{
			name:    "garbage",
			body:    `"not a vector"`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			vec, err := parseEmbeddingPayload([]byte(tt.body))
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %v", vec)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !reflect.DeepEqual(vec, tt.expected) {
				t.Errorf("expected %v, got %v", tt.expected, vec)
			}
		})
	}
}

func TestEmbeddingService_EmbedText(t *testing.T) {
	var gotAuth string
	var gotBody embedRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_ = json.NewEncoder(w).Encode(map[string][]float32{"embedding": {1, 2, 3}})
	}))
	defer server.Close()

	svc := NewEmbeddingService(&config.EmbeddingConfig{
		BaseURL:    server.URL,
		APIKey:     "secret",
		Model:      "test-model",
		Dimensions: 3,
	})

	vec, err := svc.EmbedText(context.Background(), "a treadmill in a gym")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(vec, []float32{1, 2, 3}) {
		t.Errorf("unexpected vector: %v", vec)
	}
	if gotAuth != "Bearer secret" {
		t.Errorf("expected bearer credential, got %q", gotAuth)
	}
	if gotBody.Text != "a treadmill in a gym" {
		t.Errorf("unexpected text payload: %q", gotBody.Text)
	}
	if gotBody.Image != "" {
		t.Error("text request must not carry an image")
	}
}

func TestEmbeddingService_EmbedImageSendsDataURI(t *testing.T) {
	var gotBody embedRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_ = json.NewEncoder(w).Encode([]float32{0.5, 0.5})
	}))
	defer server.Close()

	svc := NewEmbeddingService(&config.EmbeddingConfig{
		BaseURL:    server.URL,
		APIKey:     "secret",
		Model:      "test-model",
		Dimensions: 2,
	})

	path := writeTestPNG(t, 8, 8)
	vec, err := svc.EmbedImage(context.Background(), path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(vec) != 2 {
		t.Errorf("unexpected vector: %v", vec)
	}
	if !strings.HasPrefix(gotBody.Image, "data:image/png;base64,") {
		t.Errorf("expected a PNG data URI, got prefix %q", firstN(gotBody.Image, 30))
	}
}

func TestEmbeddingService_DimensionMismatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([]float32{1, 2})
	}))
	defer server.Close()

	svc := NewEmbeddingService(&config.EmbeddingConfig{
		BaseURL:    server.URL,
		APIKey:     "secret",
		Model:      "test-model",
		Dimensions: 3,
	})

	if _, err := svc.EmbedText(context.Background(), "text"); err == nil {
		t.Fatal("expected dimension mismatch error")
	}
}

func TestEmbeddingService_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	svc := NewEmbeddingService(&config.EmbeddingConfig{
		BaseURL: server.URL,
		APIKey:  "secret",
		Model:   "test-model",
	})

	if _, err := svc.EmbedText(context.Background(), "text"); err == nil {
		t.Fatal("expected error on non-2xx response")
	}
}

func TestEmbeddingService_AcceptsAny2xx(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode([]float32{1, 2})
	}))
	defer server.Close()

	svc := NewEmbeddingService(&config.EmbeddingConfig{
		BaseURL:    server.URL,
		APIKey:     "secret",
		Model:      "test-model",
		Dimensions: 2,
	})

	vec, err := svc.EmbedText(context.Background(), "text")
	if err != nil {
		t.Fatalf("a 201 response must be accepted: %v", err)
	}
	if !reflect.DeepEqual(vec, []float32{1, 2}) {
		t.Errorf("unexpected vector: %v", vec)
	}
}

func firstN(s string, n int) string {
	if len(s) < n {
		return s
	}
	return s[:n]
}
