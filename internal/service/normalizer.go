package service

import (
	"context"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"

	"github.com/machinemate/machinemate/internal/config"
	applog "github.com/machinemate/machinemate/internal/logger"
)

const normalizedJPEGQuality = 90

// PhotoNormalizer prepares a photo for embedding: scale the long edge down,
// center-crop a square, resize to the model input size, re-encode as JPEG.
// Normalization is best-effort — any failure returns the original path so
// the pipeline never dies on a weird file.
type PhotoNormalizer struct {
	longEdge     int
	cropFraction float64
	inputSize    int
	workDir      string
}

// NewPhotoNormalizer creates a normalizer writing temp files under workDir
// (os.TempDir() when empty).
func NewPhotoNormalizer(cfg *config.PipelineConfig, workDir string) *PhotoNormalizer {
	if workDir == "" {
		workDir = os.TempDir()
	}
	return &PhotoNormalizer{
		longEdge:     cfg.NormalizeLongEdge,
		cropFraction: cfg.CropFraction,
		inputSize:    cfg.ModelInputSize,
		workDir:      workDir,
	}
}

// Normalize returns the path of the normalized copy of the photo at path,
// and a cleanup func for the temp file. On any decode or encode failure it
// logs and returns the original path with a no-op cleanup.
func (n *PhotoNormalizer) Normalize(ctx context.Context, path string) (string, func()) {
	noop := func() {}

	outPath, err := n.normalize(path)
	if err != nil {
		applog.CtxWarn(ctx, "photo normalization failed, using original: photo=%s err=%v", filepath.Base(path), err)
		return path, noop
	}
	return outPath, func() { _ = os.Remove(outPath) }
}

func (n *PhotoNormalizer) normalize(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open photo: %w", err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return "", fmt.Errorf("failed to decode photo: %w", err)
	}

	img = scaleLongEdge(img, n.longEdge)
	img = centerCropSquare(img, n.cropFraction)
	img = resizeTo(img, n.inputSize, n.inputSize)

	outPath := filepath.Join(n.workDir, fmt.Sprintf("norm_%s.jpg", uuid.New().String()))
	out, err := os.Create(outPath)
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	defer out.Close()

	if err := jpeg.Encode(out, img, &jpeg.Options{Quality: normalizedJPEGQuality}); err != nil {
		_ = os.Remove(outPath)
		return "", fmt.Errorf("failed to encode jpeg: %w", err)
	}
	return outPath, nil
}

// scaleLongEdge scales img so its longer edge is at most longEdge,
// preserving aspect ratio. Images already small enough pass through.
func scaleLongEdge(img image.Image, longEdge int) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	long := w
	if h > long {
		long = h
	}
	if longEdge <= 0 || long <= longEdge {
		return img
	}

	scale := float64(longEdge) / float64(long)
	nw := int(float64(w) * scale)
	nh := int(float64(h) * scale)
	if nw < 1 {
		nw = 1
	}
	if nh < 1 {
		nh = 1
	}
	return resizeTo(img, nw, nh)
}

// centerCropSquare crops a centered square whose side is fraction of the
// shorter edge. The crop keeps the machine in frame while trimming gym
// clutter at the borders.
func centerCropSquare(img image.Image, fraction float64) image.Image {
	if fraction <= 0 || fraction > 1 {
		fraction = 1
	}
	b := img.Bounds()
	short := b.Dx()
	if b.Dy() < short {
		short = b.Dy()
	}
	side := int(float64(short) * fraction)
	if side < 1 {
		side = 1
	}

	x0 := b.Min.X + (b.Dx()-side)/2
	y0 := b.Min.Y + (b.Dy()-side)/2
	rect := image.Rect(0, 0, side, side)

	dst := image.NewRGBA(rect)
	draw.Copy(dst, image.Point{}, img, image.Rect(x0, y0, x0+side, y0+side), draw.Src, nil)
	return dst
}

func resizeTo(img image.Image, w, h int) image.Image {
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Src, nil)
	return dst
}
