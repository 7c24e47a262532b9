package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/soundprediction/kgpath/pkg/server/dto"
)

// ScoreHandler handles relation scoring requests
type ScoreHandler struct {
	scorer Scorer
	logger *slog.Logger
}

// NewScoreHandler creates a new score handler
func NewScoreHandler(s Scorer, logger *slog.Logger) *ScoreHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ScoreHandler{scorer: s, logger: logger}
}

// Score handles POST /api/v1/score
func (h *ScoreHandler) Score(c *gin.Context) {
	if h.scorer == nil {
		writeError(c, http.StatusNotImplemented, "not_configured", dto.ErrNotConfigured)
		return
	}
	var req dto.ScoreRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	if err := req.Validate(); err != nil {
		writeError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	prev, err := req.History()
	if err != nil {
		writeError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}

	score, err := h.scorer.Score(c.Request.Context(), req.Question, prev, req.NextRelation)
	if err != nil {
		status, code := statusFor(err)
		h.logger.ErrorContext(c.Request.Context(), "Scoring failed", "error", err)
		writeError(c, status, code, err)
		return
	}
	c.JSON(http.StatusOK, dto.ScoreResponse{Score: score})
}

// ScoreBatch handles POST /api/v1/score/batch
func (h *ScoreHandler) ScoreBatch(c *gin.Context) {
	if h.scorer == nil {
		writeError(c, http.StatusNotImplemented, "not_configured", dto.ErrNotConfigured)
		return
	}
	var req dto.BatchScoreRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	if err := req.Validate(); err != nil {
		writeError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	prev, err := req.History()
	if err != nil {
		writeError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}

	scores, err := h.scorer.ScoreBatch(c.Request.Context(), req.Question, prev, req.Candidates)
	if err != nil {
		status, code := statusFor(err)
		h.logger.ErrorContext(c.Request.Context(), "Batch scoring failed", "error", err, "candidates", len(req.Candidates))
		writeError(c, status, code, err)
		return
	}
	resp := dto.BatchScoreResponse{Scores: make([]dto.RelationScore, len(scores))}
	for i, s := range scores {
		resp.Scores[i] = dto.RelationScore{Relation: req.Candidates[i], Score: s}
	}
	c.JSON(http.StatusOK, resp)
}
