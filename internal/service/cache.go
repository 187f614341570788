package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/machinemate/machinemate/internal/config"
	applog "github.com/machinemate/machinemate/internal/logger"
	"github.com/machinemate/machinemate/internal/repository"
)

// CacheStore is the persistence surface the embedding cache needs. The
// gorm-backed repository implements it; tests use an in-memory fake.
type CacheStore interface {
	Get(ctx context.Context, key string) ([]float32, error)
	Put(ctx context.Context, key string, vector []float32, model string) error
	Delete(ctx context.Context, key string) error
	DeleteByPrefix(ctx context.Context, prefix string) (int64, error)
	HasMarker(ctx context.Context, marker string) (bool, error)
	SetMarker(ctx context.Context, marker string) error
}

// EmbedFunc computes the vector for a cache key on a miss.
type EmbedFunc func(ctx context.Context) ([]float32, error)

// EmbeddingCache fronts the persistent store with an in-process map and
// deduplicates concurrent misses for the same key, so a cold start with
// many labels computes each prompt embedding exactly once.
type EmbeddingCache struct {
	store CacheStore
	model string
	cfg   *config.CacheConfig

	mu  sync.RWMutex
	hot map[string][]float32

	group singleflight.Group

	migrateOnce sync.Once
	migrateErr  error
}

// NewEmbeddingCache creates the cache. model tags new persistent entries.
func NewEmbeddingCache(store CacheStore, model string, cfg *config.CacheConfig) *EmbeddingCache {
	return &EmbeddingCache{
		store: store,
		model: model,
		cfg:   cfg,
		hot:   make(map[string][]float32),
	}
}

// GetOrCompute returns the cached vector for key, computing and storing it
// on a miss. A corrupt persistent entry is deleted and treated as a miss,
// so the recomputed vector can take its row. Store write failures are
// logged but do not fail the call: the computed vector is still returned.
func (c *EmbeddingCache) GetOrCompute(ctx context.Context, key string, compute EmbedFunc) ([]float32, error) {
	c.mu.RLock()
	vec, ok := c.hot[key]
	c.mu.RUnlock()
	if ok {
		return vec, nil
	}

	result, err, _ := c.group.Do(key, func() (interface{}, error) {
		vec, err := c.store.Get(ctx, key)
		if err == nil {
			return vec, nil
		}
		switch {
		case errors.Is(err, repository.ErrCacheCorrupt):
			// Inserts keep existing rows, so the corrupt row has to go
			// before the recomputed vector can be persisted.
			if derr := c.store.Delete(ctx, key); derr != nil {
				applog.CtxWarn(ctx, "corrupt cache entry delete failed: key=%s err=%v", key, derr)
			} else {
				applog.CtxWarn(ctx, "corrupt cache entry dropped, recomputing: key=%s", key)
			}
		case !errors.Is(err, repository.ErrCacheMiss):
			applog.CtxWarn(ctx, "embedding cache read failed, recomputing: key=%s err=%v", key, err)
		}

		start := time.Now()
		vec, err = compute(ctx)
		if err != nil {
			return nil, err
		}
		applog.CtxDebug(ctx, "embedding cache fill: key=%s duration_ms=%d", key, time.Since(start).Milliseconds())

		if err := c.store.Put(ctx, key, vec, c.model); err != nil {
			applog.CtxWarn(ctx, "embedding cache write failed: key=%s err=%v", key, err)
		}
		return vec, nil
	})
	if err != nil {
		return nil, err
	}

	vec = result.([]float32)
	c.mu.Lock()
	c.hot[key] = vec
	c.mu.Unlock()
	return vec, nil
}

// Migrate sweeps persistent entries under retired prefixes, exactly once
// per marker: a prior run that left the marker makes this a no-op. Safe to
// call from every process start; concurrent callers within one process
// share a single sweep.
func (c *EmbeddingCache) Migrate(ctx context.Context) error {
	c.migrateOnce.Do(func() {
		c.migrateErr = c.runMigration(ctx)
	})
	return c.migrateErr
}

func (c *EmbeddingCache) runMigration(ctx context.Context) error {
	if c.cfg == nil || c.cfg.MigrationMarker == "" || len(c.cfg.RetiredPrefixes) == 0 {
		return nil
	}

	done, err := c.store.HasMarker(ctx, c.cfg.MigrationMarker)
	if err != nil {
		return err
	}
	if done {
		return nil
	}

	var total int64
	for _, prefix := range c.cfg.RetiredPrefixes {
		n, err := c.store.DeleteByPrefix(ctx, prefix)
		if err != nil {
			return err
		}
		total += n
	}

	if err := c.store.SetMarker(ctx, c.cfg.MigrationMarker); err != nil {
		return err
	}
	applog.CtxInfo(ctx, "embedding cache migration complete: marker=%s removed=%d", c.cfg.MigrationMarker, total)
	return nil
}
