package service

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/machinemate/machinemate/internal/config"
)

func TestBackendService_Identify(t *testing.T) {
	server := backendServer(t, "Treadmill", 0.9)
	defer server.Close()

	svc := NewBackendService(&config.BackendConfig{BaseURL: server.URL, APIKey: "test"})
	result, err := svc.Identify(context.Background(), writeTestPNG(t, 8, 8))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Machine != "Treadmill" || result.Confidence != 0.9 {
		t.Errorf("unexpected result: %+v", result)
	}
	if result.TraceID != "backend-trace" {
		t.Errorf("expected the server's trace id, got %q", result.TraceID)
	}
}

func TestBackendService_AcceptsAny2xx(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"machine":    "Treadmill",
			"confidence": 0.8,
		})
	}))
	defer server.Close()

	svc := NewBackendService(&config.BackendConfig{BaseURL: server.URL, APIKey: "test"})
	result, err := svc.Identify(context.Background(), writeTestPNG(t, 8, 8))
	if err != nil {
		t.Fatalf("a 202 response must be accepted: %v", err)
	}
	if result.Machine != "Treadmill" {
		t.Errorf("unexpected machine: %q", result.Machine)
	}
}

func TestBackendService_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	svc := NewBackendService(&config.BackendConfig{BaseURL: server.URL, APIKey: "test"})
	if _, err := svc.Identify(context.Background(), writeTestPNG(t, 8, 8)); err == nil {
		t.Fatal("expected error on non-2xx response")
	}
}
