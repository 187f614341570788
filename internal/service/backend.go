package service

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/machinemate/machinemate/internal/config"
	applog "github.com/machinemate/machinemate/internal/logger"
)

// BackendService calls the remote identification backend. It is the first
// tier of the pipeline and every failure mode here is non-fatal: the
// caller falls through to local identification.
type BackendService struct {
	client  *resty.Client
	enabled bool
}

// BackendResult is the backend's verdict on one photo.
type BackendResult struct {
	Machine    string  `json:"machine"`
	Confidence float64 `json:"confidence"`
	TraceID    string  `json:"trace_id"`
	Mocked     bool    `json:"mocked"`
}

// NewBackendService creates the backend client. With no base URL or API
// key configured the service is disabled and Identify reports that.
func NewBackendService(cfg *config.BackendConfig) *BackendService {
	enabled := cfg.Enabled()
	client := resty.New()
	if enabled {
		client.SetBaseURL(cfg.BaseURL)
		client.SetHeader("Authorization", "Bearer "+cfg.APIKey)
		if cfg.Timeout > 0 {
			client.SetTimeout(cfg.Timeout)
		} else {
			client.SetTimeout(15 * time.Second)
		}
	}
	return &BackendService{client: client, enabled: enabled}
}

// Enabled reports whether the backend tier is configured.
func (s *BackendService) Enabled() bool {
	return s.enabled
}

var errBackendDisabled = fmt.Errorf("backend not configured")

// Identify uploads the photo at path and returns the backend's verdict.
// The context carries the per-request deadline; a slow backend is a
// timeout error, not a hang.
func (s *BackendService) Identify(ctx context.Context, path string) (*BackendResult, error) {
	if !s.enabled {
		return nil, errBackendDisabled
	}

	var result BackendResult
	start := time.Now()
	httpResp, err := s.client.R().
		SetContext(ctx).
		SetFile("photo", path).
		SetResult(&result).
		Post("/identify")

	if err != nil {
		return nil, fmt.Errorf("backend request failed: %w", err)
	}
	if httpResp.StatusCode()/100 != 2 {
		return nil, fmt.Errorf("backend error: status %d", httpResp.StatusCode())
	}
	if result.Machine == "" {
		return nil, fmt.Errorf("backend returned no machine name")
	}

	applog.CtxInfo(ctx, "backend identified: machine=%s confidence=%.2f trace=%s photo=%s duration_ms=%d",
		result.Machine, result.Confidence, result.TraceID, filepath.Base(path), time.Since(start).Milliseconds())
	return &result, nil
}
