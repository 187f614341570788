package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/machinemate/machinemate/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrCacheMiss is returned when no entry exists for a key.
var ErrCacheMiss = errors.New("embedding cache: miss")

// ErrCacheCorrupt is returned when a persisted entry cannot be decoded.
// Callers should delete the entry and treat the lookup as a miss.
var ErrCacheCorrupt = errors.New("embedding cache: corrupt entry")

// EmbeddingCacheRepository persists text embeddings under versioned keys.
// Writes are idempotent: a key always maps to the same vector once its
// namespace version is fixed, so racing writers may both succeed.
type EmbeddingCacheRepository struct {
	db *gorm.DB
}

// NewEmbeddingCacheRepository creates a new EmbeddingCacheRepository.
// Parameters:
//   - db: GORM database handle used for queries.
// Returns:
//   - *EmbeddingCacheRepository: repository instance bound to db.
func NewEmbeddingCacheRepository(db *gorm.DB) *EmbeddingCacheRepository {
	return &EmbeddingCacheRepository{db: db}
}

// Get retrieves the vector stored under key.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - key: full versioned cache key.
// Returns:
//   - []float32: decoded vector on a hit.
//   - error: ErrCacheMiss, ErrCacheCorrupt, or a database error.
func (r *EmbeddingCacheRepository) Get(ctx context.Context, key string) ([]float32, error) {
	var entry domain.EmbeddingCacheEntry
	if err := r.db.WithContext(ctx).First(&entry, "key = ?", key).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCacheMiss
		}
		return nil, err
	}

	var vector []float32
	if err := json.Unmarshal([]byte(entry.Vector), &vector); err != nil {
		return nil, fmt.Errorf("%w: key=%s: %v", ErrCacheCorrupt, key, err)
	}
	if len(vector) == 0 || (entry.Dimension > 0 && len(vector) != entry.Dimension) {
		return nil, fmt.Errorf("%w: key=%s: dimension mismatch", ErrCacheCorrupt, key)
	}
	return vector, nil
}

// Put stores a vector under key. Existing entries are left untouched:
// cache entries are immutable, and concurrent writers racing on the same
// key both write the same value anyway.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - key: full versioned cache key.
//   - vector: embedding to persist.
//   - model: embedding model identifier, recorded for diagnostics.
// Returns:
//   - error: non-nil if the write fails.
func (r *EmbeddingCacheRepository) Put(ctx context.Context, key string, vector []float32, model string) error {
	encoded, err := json.Marshal(vector)
	if err != nil {
		return fmt.Errorf("failed to encode vector: %w", err)
	}

	entry := domain.EmbeddingCacheEntry{
		Key:       key,
		Vector:    string(encoded),
		Dimension: len(vector),
		Model:     model,
		CreatedAt: time.Now(),
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "key"}},
			DoNothing: true,
		}).
		Create(&entry).Error
}

// Delete removes the entry stored under key. Missing keys are not an error.
func (r *EmbeddingCacheRepository) Delete(ctx context.Context, key string) error {
	return r.db.WithContext(ctx).
		Delete(&domain.EmbeddingCacheEntry{}, "key = ?", key).Error
}

// DeleteByPrefix removes every entry whose key starts with prefix and
// returns the number of rows deleted.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - prefix: retired namespace prefix.
// Returns:
//   - int64: number of deleted entries.
//   - error: non-nil if the delete fails.
func (r *EmbeddingCacheRepository) DeleteByPrefix(ctx context.Context, prefix string) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("key LIKE ? ESCAPE '\\'", escapeLike(prefix)+"%").
		Delete(&domain.EmbeddingCacheEntry{})
	return result.RowsAffected, result.Error
}

// HasMarker reports whether the migration-complete marker key exists.
func (r *EmbeddingCacheRepository) HasMarker(ctx context.Context, marker string) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&domain.EmbeddingCacheEntry{}).
		Where("key = ?", marker).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// SetMarker writes the migration-complete marker key.
func (r *EmbeddingCacheRepository) SetMarker(ctx context.Context, marker string) error {
	entry := domain.EmbeddingCacheEntry{
		Key:       marker,
		Vector:    "[]",
		Dimension: 0,
		CreatedAt: time.Now(),
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "key"}},
			DoNothing: true,
		}).
		Create(&entry).Error
}

// escapeLike escapes LIKE wildcards in a literal prefix.
func escapeLike(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '%', '_', '\\':
			out = append(out, '\\')
		}
		out = append(out, s[i])
	}
	return string(out)
}
