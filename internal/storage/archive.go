package storage

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	applog "github.com/machinemate/machinemate/internal/logger"
)

// PhotoArchive stores identified photos in object storage for later
// review and reference-set curation. Archiving is best-effort: a failed
// upload is logged, never surfaced to the identify caller.
type PhotoArchive struct {
	store ObjectStorage
}

// NewPhotoArchive creates the archive. store may be nil, which disables
// archiving.
func NewPhotoArchive(store ObjectStorage) *PhotoArchive {
	return &PhotoArchive{store: store}
}

// Enabled reports whether archiving is configured.
func (a *PhotoArchive) Enabled() bool {
	return a != nil && a.store != nil
}

// Archive uploads the photo at path under a date-partitioned key and
// returns its public URL. Returns "" when archiving is disabled or the
// upload fails.
func (a *PhotoArchive) Archive(ctx context.Context, path string) string {
	if !a.Enabled() {
		return ""
	}

	data, err := os.ReadFile(path)
	if err != nil {
		applog.CtxWarn(ctx, "photo archive read failed: photo=%s err=%v", filepath.Base(path), err)
		return ""
	}

	key := archiveKey(path)
	if err := a.store.Upload(ctx, key, bytes.NewReader(data), int64(len(data)), contentTypeFor(path)); err != nil {
		applog.CtxWarn(ctx, "photo archive upload failed: key=%s err=%v", key, err)
		return ""
	}

	url := a.store.GetURL(key)
	applog.CtxDebug(ctx, "photo archived: key=%s size=%d", key, len(data))
	return url
}

// archiveKey builds a date-partitioned object key keeping the original
// extension.
func archiveKey(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	if ext == "" {
		ext = ".jpg"
	}
	now := time.Now().UTC()
	return fmt.Sprintf("photos/%04d/%02d/%s%s", now.Year(), now.Month(), uuid.New().String(), ext)
}

func contentTypeFor(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		return "image/png"
	case ".webp":
		return "image/webp"
	case ".gif":
		return "image/gif"
	default:
		return "image/jpeg"
	}
}
