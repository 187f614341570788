package service

import (
	"context"
	"sort"

	"github.com/machinemate/machinemate/internal/config"
	"github.com/machinemate/machinemate/internal/domain"
	applog "github.com/machinemate/machinemate/internal/logger"
	"github.com/machinemate/machinemate/internal/vocab"
)

// CatalogResolver turns ranked labels (or a backend-reported machine name)
// into catalog-backed identification results with an ordered candidate
// list for disambiguation.
type CatalogResolver struct {
	machines      MachineCatalog
	maxCandidates int
}

// MachineCatalog is the catalog surface the resolver needs. The
// gorm-backed machine repository implements it.
type MachineCatalog interface {
	ListActive(ctx context.Context) ([]domain.Machine, error)
	GetByName(ctx context.Context, name string) (*domain.Machine, error)
}

// NewCatalogResolver creates the resolver over the machine catalog.
func NewCatalogResolver(machines MachineCatalog, cfg *config.PipelineConfig) *CatalogResolver {
	return &CatalogResolver{machines: machines, maxCandidates: cfg.MaxCandidates}
}

// Resolve maps a ranking's top labels to catalog entries. When the top
// label maps to a machine the result is a Catalog result; when it does
// not, a GenericLabel result carrying the top label ids as candidates.
// Labels without a static mapping fall back to the catalog id tagged on
// their best-scoring reference photo, carried in the ranking.
func (r *CatalogResolver) Resolve(ctx context.Context, ranking *Ranking) (*domain.IdentificationResult, error) {
	catalog, err := r.machines.ListActive(ctx)
	if err != nil {
		return nil, err
	}

	topN := ranking.Scores
	if len(topN) > r.maxCandidates {
		topN = topN[:r.maxCandidates]
	}

	top := ranking.Top()
	confidence := top.Fused

	primaryID := r.machineIDForLabel(top)
	if primaryID == "" {
		// Unmapped top label: hand the label ids to the UI and let the
		// user browse the catalog manually.
		labelIDs := make([]string, 0, len(topN))
		for _, s := range topN {
			labelIDs = append(labelIDs, s.Label.ID)
		}
		applog.CtxInfo(ctx, "resolved to generic label: label=%s confidence=%.3f", top.Label.ID, confidence)
		return &domain.IdentificationResult{
			Kind:          domain.ResultGenericLabel,
			LabelID:       top.Label.ID,
			LabelName:     top.Label.DisplayName,
			Candidates:    labelIDs,
			Confidence:    domain.Float64Ptr(confidence),
			LowConfidence: ranking.LowConfidence,
			Source:        domain.SourceLocalPipeline,
		}, nil
	}

	// Candidate order: resolved primary, then the rest of the top-N
	// that resolve, then every remaining catalog item alphabetically.
	candidates := []string{primaryID}
	seen := map[string]bool{primaryID: true}
	for _, s := range topN[1:] {
		if id := r.machineIDForLabel(s); id != "" && !seen[id] {
			candidates = append(candidates, id)
			seen[id] = true
		}
	}
	for _, id := range sortedCatalogIDs(catalog) {
		if !seen[id] {
			candidates = append(candidates, id)
			seen[id] = true
		}
	}

	applog.CtxInfo(ctx, "resolved to catalog: machine=%s label=%s confidence=%.3f low_confidence=%t",
		primaryID, top.Label.ID, confidence, ranking.LowConfidence)
	return &domain.IdentificationResult{
		Kind:          domain.ResultCatalog,
		MachineID:     primaryID,
		LabelID:       top.Label.ID,
		Candidates:    candidates,
		Confidence:    domain.Float64Ptr(confidence),
		LowConfidence: ranking.LowConfidence,
		Source:        domain.SourceLocalPipeline,
	}, nil
}

// ResolveByName resolves a backend-reported machine name directly against
// the catalog, case-insensitively. No ranking involved. Returns nil when
// the name matches nothing.
func (r *CatalogResolver) ResolveByName(ctx context.Context, name string, confidence float64, lowConfidence bool) (*domain.IdentificationResult, error) {
	machine, err := r.machines.GetByName(ctx, name)
	if err != nil {
		return nil, err
	}
	if machine == nil {
		return nil, nil
	}

	catalog, err := r.machines.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	candidates := []string{machine.ID}
	for _, id := range sortedCatalogIDs(catalog) {
		if id != machine.ID {
			candidates = append(candidates, id)
		}
	}

	return &domain.IdentificationResult{
		Kind:          domain.ResultCatalog,
		MachineID:     machine.ID,
		Candidates:    candidates,
		Confidence:    domain.Float64Ptr(confidence),
		LowConfidence: lowConfidence,
		Source:        domain.SourceBackendAPI,
	}, nil
}

// machineIDForLabel resolves a scored label to a catalog machine id,
// first via the static mapping and then via the catalog id tagged on the
// label's best-scoring reference photo.
func (r *CatalogResolver) machineIDForLabel(score LabelScore) string {
	if id, ok := vocab.LabelToMachine[score.Label.ID]; ok {
		return id
	}
	return score.BestReferenceMachineID
}

func sortedCatalogIDs(catalog []domain.Machine) []string {
	ids := make([]string, 0, len(catalog))
	for _, m := range catalog {
		ids = append(ids, m.ID)
	}
	sort.Strings(ids)
	return ids
}
