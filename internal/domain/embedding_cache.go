package domain

import "time"

// EmbeddingCacheEntry persists one text embedding under a versioned key.
// Key is "<namespace prefix><id>"; Vector is a JSON-encoded float array.
// Entries are immutable once written: changing a prompt's meaning requires
// bumping the namespace version, never rewriting the row.
type EmbeddingCacheEntry struct {
	Key       string    `gorm:"type:text;primaryKey" json:"key"`
	Vector    string    `gorm:"type:text;not null" json:"vector"`
	Dimension int       `gorm:"not null" json:"dimension"`
	Model     string    `gorm:"type:text" json:"model"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName specifies the table name for GORM.
func (EmbeddingCacheEntry) TableName() string {
	return "embedding_cache"
}
