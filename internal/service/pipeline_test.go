package service

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/machinemate/machinemate/internal/config"
	"github.com/machinemate/machinemate/internal/domain"
	"github.com/machinemate/machinemate/internal/vocab"
)

// newTestPipeline wires a pipeline against httptest endpoints. Empty URLs
// disable the corresponding tier.
func newTestPipeline(t *testing.T, backendURL, embedURL string, store *fakeCacheStore, catalog MachineCatalog) *Pipeline {
	t.Helper()

	cfg := &config.Config{
		Backend: config.BackendConfig{
			Timeout: 2 * time.Second,
		},
		Embedding: config.EmbeddingConfig{
			Model:      "test-model",
			Dimensions: 2,
			Timeout:    2 * time.Second,
		},
		Pipeline: *testPipelineConfig(),
		Cache:    *testCacheConfig(),
	}
	if backendURL != "" {
		cfg.Backend.BaseURL = backendURL
		cfg.Backend.APIKey = "test"
	}
	if embedURL != "" {
		cfg.Embedding.BaseURL = embedURL
		cfg.Embedding.APIKey = "test"
	}

	embedder := NewEmbeddingService(&cfg.Embedding)
	cache := NewEmbeddingCache(store, cfg.Embedding.Model, &cfg.Cache)

	return NewPipeline(
		NewBackendService(&cfg.Backend),
		NewPhotoNormalizer(&cfg.Pipeline, t.TempDir()),
		embedder,
		cache,
		NewDomainGate(embedder, cache, &cfg.Pipeline, &cfg.Cache),
		NewLabelRanker(embedder, cache, &cfg.Pipeline, &cfg.Cache),
		NewCatalogResolver(catalog, &cfg.Pipeline),
		NewFallbackGenerator(),
		catalog,
		nil,
		cfg,
	)
}

// promptStore pre-populates every domain and label prompt so the local
// tier never embeds text. photo-aligned labels get vector [1,0].
func promptStore(alignedLabels ...string) *fakeCacheStore {
	store := newFakeCacheStore()
	store.entries["domain_prompt_v1:"+vocab.DomainPositiveID] = []float32{1, 0}
	store.entries["domain_prompt_v1:"+vocab.DomainNegativeID] = []float32{0, 1}
	for _, label := range vocab.Labels {
		vec := []float32{0, 1}
		for _, aligned := range alignedLabels {
			if label.ID == aligned {
				vec = []float32{1, 0}
			}
		}
		store.entries["label_prompt_v3:"+label.ID] = vec
	}
	return store
}

// embedServer returns the given vector for every embedding request.
func embedServer(t *testing.T, vec []float32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(vec)
	}))
}

func backendServer(t *testing.T, machine string, confidence float64) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if _, _, err := r.FormFile("photo"); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"machine":    machine,
			"confidence": confidence,
			"trace_id":   "backend-trace",
		})
	}))
}

func TestPipeline_BackendSuccess(t *testing.T) {
	backend := backendServer(t, "Seated Leg Press", 0.9)
	defer backend.Close()

	pipeline := newTestPipeline(t, backend.URL, "", newFakeCacheStore(), defaultTestCatalog())
	photo := domain.PhotoRef{URI: writeTestPNG(t, 32, 32)}

	result, err := pipeline.Identify(context.Background(), photo, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.Kind != domain.ResultCatalog {
		t.Fatalf("expected catalog result, got %s", result.Kind)
	}
	if result.MachineID != "seated-leg-press" {
		t.Errorf("expected seated-leg-press, got %s", result.MachineID)
	}
	if result.Source != domain.SourceBackendAPI {
		t.Errorf("expected backend_api source, got %s", result.Source)
	}
	if result.LowConfidence {
		t.Error("0.9 against threshold 0.7 must not be low confidence")
	}
	if result.ConfidenceValue() != 0.9 {
		t.Errorf("expected confidence 0.9, got %v", result.ConfidenceValue())
	}
	if result.TraceID != "backend-trace" {
		t.Errorf("expected the backend's trace id carried through, got %q", result.TraceID)
	}
}

func TestPipeline_BackendLowConfidence(t *testing.T) {
	backend := backendServer(t, "Treadmill", 0.5)
	defer backend.Close()

	pipeline := newTestPipeline(t, backend.URL, "", newFakeCacheStore(), defaultTestCatalog())
	photo := domain.PhotoRef{URI: writeTestPNG(t, 32, 32)}

	result, err := pipeline.Identify(context.Background(), photo, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Source != domain.SourceBackendAPI {
		t.Fatalf("expected backend_api source, got %s", result.Source)
	}
	if !result.LowConfidence {
		t.Error("0.5 against threshold 0.7 must be low confidence")
	}
}

func TestPipeline_BackendThresholdOverride(t *testing.T) {
	backend := backendServer(t, "Treadmill", 0.5)
	defer backend.Close()

	pipeline := newTestPipeline(t, backend.URL, "", newFakeCacheStore(), defaultTestCatalog())
	photo := domain.PhotoRef{URI: writeTestPNG(t, 32, 32)}

	opts := &IdentifyOptions{ConfidenceThreshold: domain.Float64Ptr(0.4)}
	result, err := pipeline.Identify(context.Background(), photo, opts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.LowConfidence {
		t.Error("0.5 against overridden threshold 0.4 must not be low confidence")
	}
}

func TestPipeline_BackendUnknownNameIsTerminal(t *testing.T) {
	backend := backendServer(t, "Smith Machine", 0.9)
	defer backend.Close()

	pipeline := newTestPipeline(t, backend.URL, "", newFakeCacheStore(), defaultTestCatalog())
	photo := domain.PhotoRef{URI: writeTestPNG(t, 32, 32)}

	result, err := pipeline.Identify(context.Background(), photo, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Kind != domain.ResultGenericLabel {
		t.Fatalf("expected generic label for unknown backend name, got %s", result.Kind)
	}
	if result.LabelName != "Smith Machine" {
		t.Errorf("expected the backend name carried through, got %q", result.LabelName)
	}
	if result.Source != domain.SourceBackendAPI {
		t.Errorf("expected backend_api source, got %s", result.Source)
	}
	if result.TraceID != "backend-trace" {
		t.Errorf("expected the backend's trace id carried through, got %q", result.TraceID)
	}
}

func TestPipeline_BackendFailureFallsToLocal(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer backend.Close()

	embed := embedServer(t, []float32{1, 0})
	defer embed.Close()

	pipeline := newTestPipeline(t, backend.URL, embed.URL, promptStore("treadmill"), defaultTestCatalog())
	photo := domain.PhotoRef{URI: writeTestPNG(t, 32, 32)}

	result, err := pipeline.Identify(context.Background(), photo, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Kind != domain.ResultCatalog {
		t.Fatalf("expected catalog result, got %s", result.Kind)
	}
	if result.MachineID != "treadmill" {
		t.Errorf("expected treadmill, got %s", result.MachineID)
	}
	if result.Source != domain.SourceLocalPipeline {
		t.Errorf("expected local_pipeline source, got %s", result.Source)
	}
	if result.LowConfidence {
		t.Error("perfectly aligned photo must not be low confidence")
	}
}

func TestPipeline_NotGymShortCircuits(t *testing.T) {
	// Photo aligned with the negative domain prompt.
	embed := embedServer(t, []float32{0, 1})
	defer embed.Close()

	pipeline := newTestPipeline(t, "", embed.URL, promptStore(), defaultTestCatalog())
	photo := domain.PhotoRef{URI: writeTestPNG(t, 32, 32)}

	result, err := pipeline.Identify(context.Background(), photo, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Kind != domain.ResultNotGym {
		t.Fatalf("expected not_gym result, got %s", result.Kind)
	}
	if result.Source != domain.SourceLocalPipeline {
		t.Errorf("expected local_pipeline source, got %s", result.Source)
	}
	if result.MachineID != "" || len(result.Candidates) != 0 {
		t.Error("not_gym must carry no machine recommendation")
	}
	// Negative prompt matches fully: rejection confidence is 1.0.
	if result.ConfidenceValue() != 1.0 {
		t.Errorf("expected rejection confidence 1.0, got %v", result.ConfidenceValue())
	}
}

func TestPipeline_DescriptionTierResolvesUnmappedLabel(t *testing.T) {
	// free_weights wins the ranking but has no catalog mapping; the
	// description embeddings (served by the endpoint) all align with
	// the photo, so the description tier picks a machine.
	embed := embedServer(t, []float32{1, 0})
	defer embed.Close()

	pipeline := newTestPipeline(t, "", embed.URL, promptStore("free_weights"), defaultTestCatalog())
	photo := domain.PhotoRef{URI: writeTestPNG(t, 32, 32)}

	result, err := pipeline.Identify(context.Background(), photo, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Kind != domain.ResultCatalog {
		t.Fatalf("expected description tier to resolve a machine, got %s", result.Kind)
	}
	if result.Source != domain.SourceLocalPipeline {
		t.Errorf("expected local_pipeline source, got %s", result.Source)
	}
	// All machines score identically; the alphabetically first wins.
	if result.MachineID != "chest-press-machine" {
		t.Errorf("expected deterministic best machine, got %s", result.MachineID)
	}
}

func TestPipeline_AllTiersDownFallsBack(t *testing.T) {
	pipeline := newTestPipeline(t, "", "", newFakeCacheStore(), defaultTestCatalog())
	photo := domain.PhotoRef{URI: "/photos/dead-network.jpg"}

	result, err := pipeline.Identify(context.Background(), photo, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Source != domain.SourceFallback {
		t.Fatalf("expected fallback source, got %s", result.Source)
	}
	if !result.LowConfidence || result.Confidence != nil {
		t.Error("fallback must be low confidence with no confidence value")
	}
	if result.TraceID == "" {
		t.Error("expected a trace id")
	}
}

func TestPipeline_EmptyCatalogFailsFast(t *testing.T) {
	backend := backendServer(t, "Treadmill", 0.9)
	defer backend.Close()

	empty := &fakeCatalog{}
	pipeline := newTestPipeline(t, backend.URL, "", newFakeCacheStore(), empty)

	_, err := pipeline.Identify(context.Background(), domain.PhotoRef{URI: "x"}, nil)
	if !errors.Is(err, ErrEmptyCatalog) {
		t.Fatalf("expected ErrEmptyCatalog, got %v", err)
	}
}
