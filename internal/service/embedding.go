package service

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/machinemate/machinemate/internal/config"
	applog "github.com/machinemate/machinemate/internal/logger"
)

// EmbeddingService talks to the embedding inference endpoint. Images and
// texts map into the same vector space, so one client serves both.
type EmbeddingService struct {
	client     *resty.Client
	model      string
	dimensions int
}

// NewEmbeddingService creates an embedding client from config.
func NewEmbeddingService(cfg *config.EmbeddingConfig) *EmbeddingService {
	client := resty.New()
	client.SetBaseURL(cfg.BaseURL)
	client.SetHeader("Authorization", "Bearer "+cfg.APIKey)
	client.SetHeader("Content-Type", "application/json")
	if cfg.Timeout > 0 {
		client.SetTimeout(cfg.Timeout)
	} else {
		client.SetTimeout(10 * time.Second)
	}

	return &EmbeddingService{
		client:     client,
		model:      cfg.Model,
		dimensions: cfg.Dimensions,
	}
}

// GetModel returns the model name being used.
func (s *EmbeddingService) GetModel() string {
	return s.model
}

// Dimensions returns the expected vector length.
func (s *EmbeddingService) Dimensions() int {
	return s.dimensions
}

type embedRequest struct {
	Model string `json:"model,omitempty"`
	Image string `json:"image,omitempty"`
	Text  string `json:"text,omitempty"`
}

// EmbedImage reads the image at path, base64-encodes it as a data URI and
// asks the endpoint for its embedding.
func (s *EmbeddingService) EmbedImage(ctx context.Context, path string) ([]float32, error) {
	imageData, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read image: %w", err)
	}

	mimeType := detectImageMIME(imageData)
	base64Image := base64.StdEncoding.EncodeToString(imageData)
	dataURL := fmt.Sprintf("data:%s;base64,%s", mimeType, base64Image)

	vec, err := s.embed(ctx, embedRequest{Model: s.model, Image: dataURL})
	if err != nil {
		return nil, fmt.Errorf("image embedding failed: %w", err)
	}
	applog.CtxDebug(ctx, "embedded image: dims=%d", len(vec))
	return vec, nil
}

// EmbedText asks the endpoint for a text embedding in the shared space.
func (s *EmbeddingService) EmbedText(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, fmt.Errorf("empty text")
	}
	vec, err := s.embed(ctx, embedRequest{Model: s.model, Text: text})
	if err != nil {
		return nil, fmt.Errorf("text embedding failed: %w", err)
	}
	return vec, nil
}

func (s *EmbeddingService) embed(ctx context.Context, req embedRequest) ([]float32, error) {
	httpResp, err := s.client.R().
		SetContext(ctx).
		SetBody(req).
		Post("/embed")

	if err != nil {
		return nil, fmt.Errorf("failed to call embedding API: %w", err)
	}
	if httpResp.StatusCode()/100 != 2 {
		return nil, fmt.Errorf("embedding API error: status %d", httpResp.StatusCode())
	}

	vec, err := parseEmbeddingPayload(httpResp.Body())
	if err != nil {
		return nil, err
	}
	if s.dimensions > 0 && len(vec) != s.dimensions {
		return nil, fmt.Errorf("unexpected embedding dimension: got %d, expected %d", len(vec), s.dimensions)
	}
	return vec, nil
}

// parseEmbeddingPayload accepts the three shapes inference servers return:
// a bare array, an {"embedding": [...]} object, or a nested [[...]] batch
// of one.
func parseEmbeddingPayload(body []byte) ([]float32, error) {
	var bare []float32
	if err := json.Unmarshal(body, &bare); err == nil && len(bare) > 0 {
		return bare, nil
	}

	var wrapped struct {
		Embedding []float32 `json:"embedding"`
	}
	if err := json.Unmarshal(body, &wrapped); err == nil && len(wrapped.Embedding) > 0 {
		return wrapped.Embedding, nil
	}

	var nested [][]float32
	if err := json.Unmarshal(body, &nested); err == nil && len(nested) > 0 && len(nested[0]) > 0 {
		return nested[0], nil
	}

	return nil, fmt.Errorf("unrecognized embedding payload")
}

// detectImageMIME sniffs the image format from magic bytes, defaulting to
// JPEG which is what the normalizer emits.
func detectImageMIME(data []byte) string {
	if len(data) >= 8 {
		if data[0] == 0x89 && data[1] == 'P' && data[2] == 'N' && data[3] == 'G' {
			return "image/png"
		}
		if data[0] == 'R' && data[1] == 'I' && data[2] == 'F' && data[3] == 'F' {
			return "image/webp"
		}
		if data[0] == 'G' && data[1] == 'I' && data[2] == 'F' {
			return "image/gif"
		}
	}
	return "image/jpeg"
}
