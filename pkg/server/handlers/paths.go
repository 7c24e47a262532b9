package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/soundprediction/kgpath/pkg/search"
	"github.com/soundprediction/kgpath/pkg/server/dto"
	"github.com/soundprediction/kgpath/pkg/types"
)

// PathsHandler runs path search for a single sample.
type PathsHandler struct {
	finder  search.PathFinder
	maxPath int
	timeout time.Duration
	logger  *slog.Logger
}

// NewPathsHandler creates a paths handler. timeout <= 0 disables the
// per-request deadline.
func NewPathsHandler(finder search.PathFinder, maxPath int, timeout time.Duration, logger *slog.Logger) *PathsHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &PathsHandler{finder: finder, maxPath: maxPath, timeout: timeout, logger: logger}
}

// FindPaths handles POST /api/v1/paths. The body is an input record; the
// response is the same record with paths. ?max_path overrides the server
// default.
func (h *PathsHandler) FindPaths(c *gin.Context) {
	if h.finder == nil {
		writeError(c, http.StatusNotImplemented, "not_configured", dto.ErrNotConfigured)
		return
	}
	maxPath := h.maxPath
	if raw := c.Query("max_path"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(c, http.StatusBadRequest, "invalid_request", dto.ErrInvalidMaxPath)
			return
		}
		maxPath = n
	}

	var sample types.Sample
	if err := c.ShouldBindJSON(&sample); err != nil {
		writeError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	if err := sample.Validate(); err != nil {
		writeError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}

	ctx := context.WithValue(c.Request.Context(), types.SampleIDKey, sample.ID)
	if h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}

	paths, err := h.finder.FindPaths(ctx, &sample, maxPath)
	if err != nil {
		status, code := statusFor(err)
		h.logger.ErrorContext(ctx, "Path search failed", "sample_id", sample.ID, "error", err)
		writeError(c, status, code, err)
		return
	}
	if paths == nil {
		paths = []types.Path{}
	}
	sample.Paths = paths
	c.JSON(http.StatusOK, &sample)
}
