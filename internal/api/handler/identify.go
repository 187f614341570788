package handler

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/machinemate/machinemate/internal/domain"
	applog "github.com/machinemate/machinemate/internal/logger"
	"github.com/machinemate/machinemate/internal/service"
	"github.com/machinemate/machinemate/internal/storage"
)

// IdentifyHandler handles photo identification requests.
type IdentifyHandler struct {
	pipeline *service.Pipeline
	archive  *storage.PhotoArchive
	workDir  string
}

// NewIdentifyHandler creates a new identify handler.
// Parameters:
//   - pipeline: identification pipeline.
//   - archive: photo archive, may be disabled.
// Returns:
//   - *IdentifyHandler: initialized handler.
func NewIdentifyHandler(pipeline *service.Pipeline, archive *storage.PhotoArchive) *IdentifyHandler {
	return &IdentifyHandler{
		pipeline: pipeline,
		archive:  archive,
		workDir:  os.TempDir(),
	}
}

// Identify handles POST /api/v1/identify. Accepts a multipart photo
// upload plus an optional confidence_threshold form field.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *IdentifyHandler) Identify(c *gin.Context) {
	file, err := c.FormFile("photo")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Photo file is required: " + err.Error(),
		})
		return
	}

	tmpPath := filepath.Join(h.workDir, fmt.Sprintf("upload_%s%s", uuid.New().String(), filepath.Ext(file.Filename)))
	if err := c.SaveUploadedFile(file, tmpPath); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to store upload: " + err.Error(),
		})
		return
	}
	defer os.Remove(tmpPath)

	var opts *service.IdentifyOptions
	if raw := c.PostForm("confidence_threshold"); raw != "" {
		threshold, err := strconv.ParseFloat(raw, 64)
		if err != nil || threshold < 0 || threshold > 1 {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "confidence_threshold must be a number in [0,1]",
			})
			return
		}
		opts = &service.IdentifyOptions{ConfidenceThreshold: &threshold}
	}

	ctx := c.Request.Context()

	if url := h.archive.Archive(ctx, tmpPath); url != "" {
		applog.CtxDebug(ctx, "upload archived: url=%s", url)
	}

	result, err := h.pipeline.Identify(ctx, domain.PhotoRef{URI: tmpPath}, opts)
	if err != nil {
		status := http.StatusInternalServerError
		if err == service.ErrEmptyCatalog {
			status = http.StatusConflict
		}
		c.JSON(status, gin.H{
			"error": "Identification failed: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, result)
}
