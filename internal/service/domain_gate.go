package service

import (
	"context"
	"math"

	"github.com/machinemate/machinemate/internal/config"
	applog "github.com/machinemate/machinemate/internal/logger"
	"github.com/machinemate/machinemate/internal/vocab"
)

// DomainVerdict is the gate's answer for one photo.
type DomainVerdict struct {
	IsGym         bool
	PositiveScore float64
	NegativeScore float64
	// Confidence is the gate's confidence in its verdict: the positive
	// score for a gym photo, max(negativeScore, 1-positiveScore) otherwise.
	Confidence float64
	// Abstained means the gate could not form an opinion (prompt
	// embeddings unavailable) and the photo should be treated as gym.
	Abstained bool
}

// DomainGate decides whether a photo shows gym equipment at all, by
// comparing its embedding against a positive and a negative text prompt.
type DomainGate struct {
	embedder  *EmbeddingService
	cache     *EmbeddingCache
	prefix    string
	threshold float64
	margin    float64
}

// NewDomainGate creates the gate. Prompt embeddings are cached under the
// domain-prompt namespace.
func NewDomainGate(embedder *EmbeddingService, cache *EmbeddingCache, pcfg *config.PipelineConfig, ccfg *config.CacheConfig) *DomainGate {
	return &DomainGate{
		embedder:  embedder,
		cache:     cache,
		prefix:    ccfg.DomainPromptPrefix,
		threshold: pcfg.DomainThreshold,
		margin:    pcfg.DomainMargin,
	}
}

// Check classifies the photo embedding as gym or not-gym. The photo is gym
// when the positive score clears the threshold and beats the negative
// score by the margin. If either prompt embedding cannot be obtained the
// gate abstains rather than rejecting photos blind.
func (g *DomainGate) Check(ctx context.Context, photoVec []float32) DomainVerdict {
	posVec, err := g.promptVector(ctx, vocab.DomainPositiveID, vocab.DomainPositivePrompt)
	if err != nil {
		applog.CtxWarn(ctx, "domain gate abstaining, positive prompt unavailable: %v", err)
		return DomainVerdict{IsGym: true, Abstained: true}
	}
	negVec, err := g.promptVector(ctx, vocab.DomainNegativeID, vocab.DomainNegativePrompt)
	if err != nil {
		applog.CtxWarn(ctx, "domain gate abstaining, negative prompt unavailable: %v", err)
		return DomainVerdict{IsGym: true, Abstained: true}
	}

	pos := ImageConfidence(photoVec, posVec)
	neg := ImageConfidence(photoVec, negVec)

	verdict := DomainVerdict{
		IsGym:         pos >= g.threshold && pos-neg >= g.margin,
		PositiveScore: pos,
		NegativeScore: neg,
	}
	if verdict.IsGym {
		verdict.Confidence = pos
	} else {
		verdict.Confidence = math.Max(neg, 1-pos)
	}
	applog.CtxDebug(ctx, "domain gate: gym=%t pos=%.3f neg=%.3f conf=%.3f", verdict.IsGym, pos, neg, verdict.Confidence)
	return verdict
}

func (g *DomainGate) promptVector(ctx context.Context, id, prompt string) ([]float32, error) {
	key := g.prefix + id
	return g.cache.GetOrCompute(ctx, key, func(ctx context.Context) ([]float32, error) {
		return g.embedder.EmbedText(ctx, prompt)
	})
}
