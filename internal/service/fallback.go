package service

import (
	"context"
	"crypto/md5"
	"encoding/binary"
	"fmt"

	"github.com/machinemate/machinemate/internal/domain"
	applog "github.com/machinemate/machinemate/internal/logger"
)

// FallbackGenerator picks a candidate with no network at all: hash the
// photo reference, index into the alphabetical catalog. The same photo
// always gets the same guess, and the result is always flagged low
// confidence with no confidence value so the UI forces manual
// disambiguation.
type FallbackGenerator struct{}

// NewFallbackGenerator creates the generator.
func NewFallbackGenerator() *FallbackGenerator {
	return &FallbackGenerator{}
}

// Generate produces the deterministic fallback result for photo against
// the given catalog snapshot. Purely computational; the only failure is
// an empty catalog.
func (f *FallbackGenerator) Generate(ctx context.Context, photo domain.PhotoRef, catalog []domain.Machine) (*domain.IdentificationResult, error) {
	if len(catalog) == 0 {
		return nil, fmt.Errorf("fallback requires a non-empty catalog")
	}

	ids := sortedCatalogIDs(catalog)
	idx := hashPhotoRef(photo.URI) % uint64(len(ids))
	primary := ids[idx]

	applog.CtxInfo(ctx, "fallback selection: machine=%s photo=%s", primary, photo.URI)
	return &domain.IdentificationResult{
		Kind:          domain.ResultCatalog,
		MachineID:     primary,
		Candidates:    ids,
		Confidence:    nil,
		LowConfidence: true,
		Source:        domain.SourceFallback,
	}, nil
}

// hashPhotoRef maps a photo reference string to a stable non-negative
// integer.
func hashPhotoRef(uri string) uint64 {
	sum := md5.Sum([]byte(uri))
	return binary.BigEndian.Uint64(sum[:8])
}
