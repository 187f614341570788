package service

import (
	"context"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/machinemate/machinemate/internal/config"
	"github.com/machinemate/machinemate/internal/domain"
	applog "github.com/machinemate/machinemate/internal/logger"
	"github.com/machinemate/machinemate/internal/vocab"
)

// LabelScore is one label's fused score against a photo.
type LabelScore struct {
	Label          domain.Label
	TextScore      float64
	ReferenceScore *float64 // nil when the label has no reference photos
	// BestReferenceMachineID is the catalog id tagged on the
	// best-scoring reference photo, "" when untagged or no references.
	BestReferenceMachineID string
	Fused                  float64
}

// Ranking is the full scored vocabulary for one photo, best first.
type Ranking struct {
	Scores []LabelScore
	// LowConfidence is set when the top score fails the absolute
	// threshold, or sits below the high-confidence bar without a clear
	// gap to the runner-up.
	LowConfidence bool
}

// Top returns the best-scoring label.
func (r *Ranking) Top() LabelScore {
	return r.Scores[0]
}

// LabelRanker scores a photo embedding against every vocabulary label,
// fusing text-prompt similarity with reference-photo similarity.
type LabelRanker struct {
	embedder *EmbeddingService
	cache    *EmbeddingCache

	promptPrefix string
	textWeight   float64
	refWeight    float64
	threshold    float64
	highBar      float64
	requiredGap  float64
	concurrency  int
}

// NewLabelRanker creates the ranker. Fusion weights come pre-validated
// from config and sum to 1.
func NewLabelRanker(embedder *EmbeddingService, cache *EmbeddingCache, pcfg *config.PipelineConfig, ccfg *config.CacheConfig) *LabelRanker {
	return &LabelRanker{
		embedder:     embedder,
		cache:        cache,
		promptPrefix: ccfg.LabelPromptPrefix,
		textWeight:   pcfg.TextWeight,
		refWeight:    pcfg.ReferenceWeight,
		threshold:    pcfg.LabelThreshold,
		highBar:      pcfg.HighConfidenceThreshold,
		requiredGap:  pcfg.RequiredGap,
		concurrency:  pcfg.MaxConcurrency,
	}
}

// Rank scores photoVec against every label in the vocabulary. references
// maps label id to that label's reference-photo embeddings; a missing or
// empty entry means the label scores on text alone at full weight. Labels
// whose prompt embedding cannot be obtained are skipped; the error is
// returned only when every label failed.
func (r *LabelRanker) Rank(ctx context.Context, photoVec []float32, references map[string][]domain.ReferenceEmbedding) (*Ranking, error) {
	labels := vocab.Labels

	scores := make([]*LabelScore, len(labels))
	var mu sync.Mutex
	var firstErr error

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)

	for i, label := range labels {
		i, label := i, label
		g.Go(func() error {
			score, err := r.scoreLabel(gctx, photoVec, label, references[label.ID])
			if err != nil {
				applog.CtxWarn(gctx, "label scoring skipped: label=%s err=%v", label.ID, err)
				mu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
				return nil
			}
			scores[i] = score
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	ranked := make([]LabelScore, 0, len(scores))
	for _, s := range scores {
		if s != nil {
			ranked = append(ranked, *s)
		}
	}
	if len(ranked) == 0 {
		return nil, firstErr
	}

	// Ties break alphabetically so repeated runs rank identically.
	sort.Slice(ranked, func(a, b int) bool {
		if ranked[a].Fused != ranked[b].Fused {
			return ranked[a].Fused > ranked[b].Fused
		}
		return ranked[a].Label.ID < ranked[b].Label.ID
	})

	ranking := &Ranking{Scores: ranked}
	ranking.LowConfidence = r.isLowConfidence(ranked)

	top := ranking.Top()
	applog.CtxDebug(ctx, "label ranking: top=%s fused=%.3f low_confidence=%t", top.Label.ID, top.Fused, ranking.LowConfidence)
	return ranking, nil
}

func (r *LabelRanker) scoreLabel(ctx context.Context, photoVec []float32, label domain.Label, refs []domain.ReferenceEmbedding) (*LabelScore, error) {
	promptVec, err := r.cache.GetOrCompute(ctx, r.promptPrefix+label.ID, func(ctx context.Context) ([]float32, error) {
		return r.embedder.EmbedText(ctx, label.PromptText)
	})
	if err != nil {
		return nil, err
	}

	score := &LabelScore{
		Label:     label,
		TextScore: ImageConfidence(photoVec, promptVec),
	}

	if len(refs) == 0 {
		score.Fused = r.textWeight * score.TextScore
		return score, nil
	}

	best := -1.0
	bestMachine := ""
	for _, ref := range refs {
		if s := ImageConfidence(photoVec, ref.Vector); s > best {
			best = s
			bestMachine = ref.MachineID
		}
	}
	score.ReferenceScore = &best
	score.BestReferenceMachineID = bestMachine
	score.Fused = r.textWeight*score.TextScore + r.refWeight*best
	return score, nil
}

func (r *LabelRanker) isLowConfidence(ranked []LabelScore) bool {
	top := ranked[0].Fused
	if top < r.threshold {
		return true
	}
	if top >= r.highBar {
		return false
	}
	if len(ranked) < 2 {
		return false
	}
	return top-ranked[1].Fused < r.requiredGap
}
