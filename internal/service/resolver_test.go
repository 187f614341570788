package service

import (
	"context"
	"reflect"
	"strings"
	"testing"

	"github.com/machinemate/machinemate/internal/domain"
	"github.com/machinemate/machinemate/internal/vocab"
)

// fakeCatalog is an in-memory MachineCatalog.
type fakeCatalog struct {
	machines []domain.Machine
	listErr  error
}

func (f *fakeCatalog) ListActive(ctx context.Context) ([]domain.Machine, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.machines, nil
}

func (f *fakeCatalog) GetByName(ctx context.Context, name string) (*domain.Machine, error) {
	for i := range f.machines {
		if strings.EqualFold(f.machines[i].Name, name) {
			return &f.machines[i], nil
		}
	}
	return nil, nil
}

func defaultTestCatalog() *fakeCatalog {
	return &fakeCatalog{machines: defaultMachines()}
}

func scoredRanking(ids []string, scores []float64, low bool) *Ranking {
	ranked := make([]LabelScore, len(ids))
	for i, id := range ids {
		label := vocab.LabelByID(id)
		ranked[i] = LabelScore{Label: *label, Fused: scores[i]}
	}
	return &Ranking{Scores: ranked, LowConfidence: low}
}

func TestCatalogResolver_MappedTopLabel(t *testing.T) {
	resolver := NewCatalogResolver(defaultTestCatalog(), testPipelineConfig())

	ranking := scoredRanking(
		[]string{"treadmill", "seated_leg_press", "free_weights"},
		[]float64{0.8, 0.6, 0.5},
		false,
	)

	result, err := resolver.Resolve(context.Background(), ranking)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.Kind != domain.ResultCatalog {
		t.Fatalf("expected catalog result, got %s", result.Kind)
	}
	if result.MachineID != "treadmill" {
		t.Errorf("expected primary treadmill, got %s", result.MachineID)
	}
	if result.Source != domain.SourceLocalPipeline {
		t.Errorf("expected local_pipeline source, got %s", result.Source)
	}
	if result.ConfidenceValue() != 0.8 {
		t.Errorf("expected confidence 0.8, got %v", result.ConfidenceValue())
	}

	// Primary first, then the other resolved top-N entry, then the rest
	// of the catalog alphabetically, no duplicates.
	want := []string{
		"treadmill",
		"seated-leg-press",
		"chest-press-machine",
		"lat-pulldown",
		"seated-cable-row",
		"shoulder-press-machine",
	}
	if !reflect.DeepEqual(result.Candidates, want) {
		t.Errorf("candidate order mismatch:\nwant %v\ngot  %v", want, result.Candidates)
	}
}

func TestCatalogResolver_UnmappedTopLabelIsGeneric(t *testing.T) {
	resolver := NewCatalogResolver(defaultTestCatalog(), testPipelineConfig())

	ranking := scoredRanking(
		[]string{"free_weights", "treadmill"},
		[]float64{0.7, 0.5},
		false,
	)

	result, err := resolver.Resolve(context.Background(), ranking)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.Kind != domain.ResultGenericLabel {
		t.Fatalf("expected generic label result, got %s", result.Kind)
	}
	if result.LabelID != "free_weights" {
		t.Errorf("expected label free_weights, got %s", result.LabelID)
	}
	// Generic candidates are label ids, not machine ids.
	want := []string{"free_weights", "treadmill"}
	if !reflect.DeepEqual(result.Candidates, want) {
		t.Errorf("expected label candidates %v, got %v", want, result.Candidates)
	}
}

func TestCatalogResolver_ReferenceTagResolvesUnmappedLabel(t *testing.T) {
	resolver := NewCatalogResolver(defaultTestCatalog(), testPipelineConfig())

	// The ranker carries the best-scoring reference's catalog tag on the
	// score; the resolver trusts it for labels without a static mapping.
	ranking := scoredRanking([]string{"free_weights"}, []float64{0.7}, false)
	ranking.Scores[0].BestReferenceMachineID = "chest-press-machine"

	result, err := resolver.Resolve(context.Background(), ranking)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.Kind != domain.ResultCatalog {
		t.Fatalf("expected catalog result via reference tag, got %s", result.Kind)
	}
	if result.MachineID != "chest-press-machine" {
		t.Errorf("expected chest-press-machine, got %s", result.MachineID)
	}
}

func TestCatalogResolver_TopNCap(t *testing.T) {
	cfg := testPipelineConfig()
	cfg.MaxCandidates = 2
	resolver := NewCatalogResolver(defaultTestCatalog(), cfg)

	ranking := scoredRanking(
		[]string{"free_weights", "cable_crossover", "treadmill"},
		[]float64{0.7, 0.6, 0.5},
		false,
	)

	result, err := resolver.Resolve(context.Background(), ranking)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Kind != domain.ResultGenericLabel {
		t.Fatalf("expected generic label result, got %s", result.Kind)
	}
	want := []string{"free_weights", "cable_crossover"}
	if !reflect.DeepEqual(result.Candidates, want) {
		t.Errorf("expected capped candidates %v, got %v", want, result.Candidates)
	}
}

func TestCatalogResolver_ResolveByName(t *testing.T) {
	resolver := NewCatalogResolver(defaultTestCatalog(), testPipelineConfig())

	result, err := resolver.ResolveByName(context.Background(), "seated leg press", 0.9, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result == nil {
		t.Fatal("expected a match for case-insensitive name")
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
	if result.Candidates[0] != "seated-leg-press" {
		t.Errorf("expected primary first in candidates, got %v", result.Candidates)
	}
}

func TestCatalogResolver_ResolveByNameMiss(t *testing.T) {
	resolver := NewCatalogResolver(defaultTestCatalog(), testPipelineConfig())

	result, err := resolver.ResolveByName(context.Background(), "Smith Machine", 0.9, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != nil {
		t.Fatalf("expected no match, got %+v", result)
	}
}

func TestVocabMappingsPointAtSeedCatalog(t *testing.T) {
	seeded := make(map[string]bool)
	for _, m := range defaultMachines() {
		seeded[m.ID] = true
	}
	for labelID, machineID := range vocab.LabelToMachine {
		if !seeded[machineID] {
			t.Errorf("label %s maps to unknown machine %s", labelID, machineID)
		}
	}
}
