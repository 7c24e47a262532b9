package handlers

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/soundprediction/kgpath/pkg/driver"
	"github.com/soundprediction/kgpath/pkg/server/dto"
)

// IngestHandler loads triples into graphs that support it.
type IngestHandler struct {
	loader driver.Loader
	logger *slog.Logger
}

// NewIngestHandler creates a new ingest handler. loader may be nil, in
// which case the endpoint answers 501.
func NewIngestHandler(loader driver.Loader, logger *slog.Logger) *IngestHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &IngestHandler{loader: loader, logger: logger}
}

// AddTriples handles POST /api/v1/ingest/triples
func (h *IngestHandler) AddTriples(c *gin.Context) {
	if h.loader == nil {
		writeError(c, http.StatusNotImplemented, "not_configured", dto.ErrNotConfigured)
		return
	}
	var req dto.IngestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	if err := req.Validate(); err != nil {
		writeError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}

	ctx := c.Request.Context()
	if len(req.Triples) > 0 {
		if err := h.loader.AddTriples(ctx, req.Triples); err != nil {
			h.logger.ErrorContext(ctx, "Failed to add triples", "count", len(req.Triples), "error", err)
			writeError(c, http.StatusInternalServerError, "ingest_failed", err)
			return
		}
	}
	if len(req.Labels) > 0 {
		if err := h.loader.SetLabels(ctx, req.Labels); err != nil {
			h.logger.ErrorContext(ctx, "Failed to set labels", "count", len(req.Labels), "error", err)
			writeError(c, http.StatusInternalServerError, "ingest_failed", err)
			return
		}
	}

	h.logger.InfoContext(ctx, "Ingested graph data", "triples", len(req.Triples), "labels", len(req.Labels))
	c.JSON(http.StatusOK, dto.IngestResponse{
		Success: true,
		Message: fmt.Sprintf("Added %d triples and %d labels", len(req.Triples), len(req.Labels)),
		Triples: len(req.Triples),
		Labels:  len(req.Labels),
	})
}
