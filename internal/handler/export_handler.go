package handler

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mysociety/ceuk-marking-sub000/internal/models"
	"github.com/mysociety/ceuk-marking-sub000/internal/service"
	appErrors "github.com/mysociety/ceuk-marking-sub000/pkg/errors"
	"github.com/mysociety/ceuk-marking-sub000/pkg/response"
)

type exportJobManager interface {
	CreateJob(ctx context.Context, req service.ExportRequest) (*models.ExportJob, error)
	GetStatus(ctx context.Context, id string) (*models.ExportJob, error)
	ResolveDownload(ctx context.Context, token string) (*service.ExportDownload, error)
}

// ExportHandler exposes the asynchronous export pipeline.
type ExportHandler struct {
	exports exportJobManager
}

// NewExportHandler constructs an ExportHandler.
func NewExportHandler(exports exportJobManager) *ExportHandler {
	return &ExportHandler{exports: exports}
}

type createExportRequest struct {
	Type   models.ExportType   `json:"type"`
	Format models.ExportFormat `json:"format"`
}

// CreateExport queues an export of the session's scoring output.
func (h *ExportHandler) CreateExport(c *gin.Context) {
	var req createExportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid request body"))
		return
	}
	job, err := h.exports.CreateJob(c.Request.Context(), service.ExportRequest{
		Session: c.Param("session"),
		Type:    req.Type,
		Format:  req.Format,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, job)
}

// GetExportStatus reports job state, including the download URL once
// finished.
func (h *ExportHandler) GetExportStatus(c *gin.Context) {
	job, err := h.exports.GetStatus(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, job)
}

// Download streams a finished export file for a valid signed token.
func (h *ExportHandler) Download(c *gin.Context) {
	download, err := h.exports.ResolveDownload(c.Request.Context(), c.Param("token"))
	if err != nil {
		response.Error(c, err)
		return
	}
	defer download.File.Close() //nolint:errcheck

	info, err := download.File.Stat()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to stat export file"))
		return
	}

	contentType := "text/csv"
	if download.Format == models.ExportFormatPDF {
		contentType = "application/pdf"
	}
	c.DataFromReader(http.StatusOK, info.Size(), contentType, download.File, map[string]string{
		"Content-Disposition": fmt.Sprintf("attachment; filename=%q", download.Filename),
	})
}
