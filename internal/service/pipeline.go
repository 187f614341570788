package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/machinemate/machinemate/internal/config"
	"github.com/machinemate/machinemate/internal/domain"
	applog "github.com/machinemate/machinemate/internal/logger"
)

// ErrEmptyCatalog is returned when identification is attempted with no
// active machines in the catalog. It is the only hard error Identify
// returns; everything else degrades through the tiers.
var ErrEmptyCatalog = errors.New("identification requires a non-empty catalog")

// ReferenceSource lists reference-photo embeddings. The qdrant-backed
// repository implements it; a nil source means no references.
type ReferenceSource interface {
	ListAll(ctx context.Context) ([]domain.ReferenceEmbedding, error)
}

// IdentifyOptions are per-request overrides.
type IdentifyOptions struct {
	// ConfidenceThreshold overrides the configured backend confidence
	// threshold when non-nil.
	ConfidenceThreshold *float64
}

// Pipeline is the identification orchestrator. It tries the remote
// backend, then the local embedding pipeline, then the deterministic
// fallback, and always produces exactly one result tagged with its
// source. No tier's failure propagates past it.
type Pipeline struct {
	backend    *BackendService
	normalizer *PhotoNormalizer
	embedder   *EmbeddingService
	cache      *EmbeddingCache
	gate       *DomainGate
	ranker     *LabelRanker
	resolver   *CatalogResolver
	fallback   *FallbackGenerator
	machines   MachineCatalog
	references ReferenceSource

	cfg            *config.PipelineConfig
	descPrefix     string
	backendTimeout time.Duration
	embedTimeout   time.Duration
	localEnabled   bool
}

// NewPipeline wires the orchestrator. references may be nil.
func NewPipeline(
	backend *BackendService,
	normalizer *PhotoNormalizer,
	embedder *EmbeddingService,
	cache *EmbeddingCache,
	gate *DomainGate,
	ranker *LabelRanker,
	resolver *CatalogResolver,
	fallback *FallbackGenerator,
	machines MachineCatalog,
	references ReferenceSource,
	cfg *config.Config,
) *Pipeline {
	return &Pipeline{
		backend:        backend,
		normalizer:     normalizer,
		embedder:       embedder,
		cache:          cache,
		gate:           gate,
		ranker:         ranker,
		resolver:       resolver,
		fallback:       fallback,
		machines:       machines,
		references:     references,
		cfg:            &cfg.Pipeline,
		descPrefix:     cfg.Cache.MachineDescPrefix,
		backendTimeout: cfg.Backend.Timeout,
		embedTimeout:   cfg.Embedding.Timeout,
		localEnabled:   cfg.Embedding.Enabled(),
	}
}

// Identify runs the full pipeline for one photo. The returned result
// always carries a trace id and a source. The only error is an empty
// catalog, checked before any network call.
func (p *Pipeline) Identify(ctx context.Context, photo domain.PhotoRef, opts *IdentifyOptions) (*domain.IdentificationResult, error) {
	catalog, err := p.machines.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	if len(catalog) == 0 {
		return nil, ErrEmptyCatalog
	}

	traceID := uuid.New().String()
	ctx = applog.SetTraceID(ctx, traceID)
	ctx = applog.SetPhoto(ctx, photo.URI)

	if err := p.cache.Migrate(ctx); err != nil {
		applog.CtxWarn(ctx, "cache migration failed, continuing: %v", err)
	}

	if result := p.tryBackend(ctx, photo, opts); result != nil {
		// The backend tier sets its own trace id so responses can be
		// correlated with the remote service's logs.
		if result.TraceID == "" {
			result.TraceID = traceID
		}
		return result, nil
	}

	if result := p.tryLocal(ctx, photo, catalog); result != nil {
		result.TraceID = traceID
		return result, nil
	}

	result, err := p.fallback.Generate(ctx, photo, catalog)
	if err != nil {
		return nil, err
	}
	result.TraceID = traceID
	return result, nil
}

// tryBackend runs the backend-first tier. Any failure returns nil and the
// pipeline falls through; a backend success is always terminal, even when
// the reported name matches nothing in the catalog.
func (p *Pipeline) tryBackend(ctx context.Context, photo domain.PhotoRef, opts *IdentifyOptions) *domain.IdentificationResult {
	if !p.backend.Enabled() {
		return nil
	}

	bctx, cancel := context.WithTimeout(ctx, p.backendTimeout)
	defer cancel()

	verdict, err := p.backend.Identify(bctx, photo.URI)
	if err != nil {
		applog.CtxWarn(ctx, "backend tier failed, falling through: %v", err)
		return nil
	}

	threshold := p.cfg.BackendThreshold
	if opts != nil && opts.ConfidenceThreshold != nil {
		threshold = *opts.ConfidenceThreshold
	}
	lowConfidence := verdict.Confidence < threshold

	result, err := p.resolver.ResolveByName(ctx, verdict.Machine, verdict.Confidence, lowConfidence)
	if err != nil {
		applog.CtxWarn(ctx, "backend name resolution failed, falling through: %v", err)
		return nil
	}
	if result != nil {
		result.TraceID = verdict.TraceID
		return result
	}

	// Backend named something outside the catalog: still terminal, the
	// UI gets the raw label plus manual browsing.
	return &domain.IdentificationResult{
		Kind:          domain.ResultGenericLabel,
		LabelName:     verdict.Machine,
		Confidence:    domain.Float64Ptr(verdict.Confidence),
		LowConfidence: lowConfidence,
		Source:        domain.SourceBackendAPI,
		TraceID:       verdict.TraceID,
	}
}

// tryLocal runs the local embedding tier: normalize, embed, domain gate,
// rank, resolve. Returns nil when any required step fails, which drops
// the request to the fallback tier.
func (p *Pipeline) tryLocal(ctx context.Context, photo domain.PhotoRef, catalog []domain.Machine) *domain.IdentificationResult {
	if !p.localEnabled {
		return nil
	}

	normPath, cleanup := p.normalizer.Normalize(ctx, photo.URI)
	defer cleanup()

	ectx, cancel := context.WithTimeout(ctx, p.embedTimeout)
	photoVec, err := p.embedder.EmbedImage(ectx, normPath)
	cancel()
	if err != nil {
		applog.CtxWarn(ctx, "image embedding failed, falling through: %v", err)
		return nil
	}

	verdict := p.gate.Check(ctx, photoVec)
	if !verdict.IsGym {
		applog.CtxInfo(ctx, "photo rejected as non-gym: conf=%.3f", verdict.Confidence)
		return &domain.IdentificationResult{
			Kind:       domain.ResultNotGym,
			Confidence: domain.Float64Ptr(verdict.Confidence),
			Source:     domain.SourceLocalPipeline,
		}
	}

	references := p.loadReferences(ctx)

	ranking, err := p.ranker.Rank(ctx, photoVec, references)
	if err != nil {
		applog.CtxWarn(ctx, "label ranking failed, falling through: %v", err)
		return nil
	}

	result, err := p.resolver.Resolve(ctx, ranking)
	if err != nil {
		applog.CtxWarn(ctx, "catalog resolution failed, falling through: %v", err)
		return nil
	}

	// An unmapped top label gets one more chance: direct similarity
	// against the catalog's own description embeddings.
	if result.Kind == domain.ResultGenericLabel {
		if descResult := p.resolveByDescription(ctx, photoVec, catalog); descResult != nil {
			return descResult
		}
	}
	return result
}

// resolveByDescription compares the photo embedding against each catalog
// machine's description embedding and resolves to the best match when it
// clears the label threshold. Returns nil when nothing clears it.
func (p *Pipeline) resolveByDescription(ctx context.Context, photoVec []float32, catalog []domain.Machine) *domain.IdentificationResult {
	type machineScore struct {
		id    string
		score float64
	}
	scores := make([]machineScore, len(catalog))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.MaxConcurrency)
	for i, machine := range catalog {
		i, machine := i, machine
		g.Go(func() error {
			vec, err := p.cache.GetOrCompute(gctx, p.descPrefix+machine.ID, func(ctx context.Context) ([]float32, error) {
				return p.embedder.EmbedText(ctx, machine.EmbeddingText())
			})
			if err != nil {
				applog.CtxWarn(gctx, "description embedding skipped: machine=%s err=%v", machine.ID, err)
				return nil
			}
			scores[i] = machineScore{id: machine.ID, score: ImageConfidence(photoVec, vec)}
			return nil
		})
	}
	_ = g.Wait()

	best := machineScore{}
	for _, s := range scores {
		if s.id != "" && (s.score > best.score || (s.score == best.score && s.id < best.id)) {
			best = s
		}
	}
	if best.id == "" || best.score < p.cfg.LabelThreshold {
		return nil
	}

	candidates := []string{best.id}
	for _, id := range sortedCatalogIDs(catalog) {
		if id != best.id {
			candidates = append(candidates, id)
		}
	}

	applog.CtxInfo(ctx, "resolved by description similarity: machine=%s score=%.3f", best.id, best.score)
	return &domain.IdentificationResult{
		Kind:          domain.ResultCatalog,
		MachineID:     best.id,
		Candidates:    candidates,
		Confidence:    domain.Float64Ptr(best.score),
		LowConfidence: best.score < p.cfg.HighConfidenceThreshold,
		Source:        domain.SourceLocalPipeline,
	}
}

// loadReferences fetches all reference embeddings grouped by label.
// References are an optional signal; any failure degrades to text-only
// ranking.
func (p *Pipeline) loadReferences(ctx context.Context) map[string][]domain.ReferenceEmbedding {
	if p.references == nil {
		return nil
	}
	refs, err := p.references.ListAll(ctx)
	if err != nil {
		applog.CtxWarn(ctx, "reference embeddings unavailable, text-only ranking: %v", err)
		return nil
	}
	grouped := make(map[string][]domain.ReferenceEmbedding, len(refs))
	for _, ref := range refs {
		grouped[ref.LabelID] = append(grouped[ref.LabelID], ref)
	}
	return grouped
}
