// Package handlers implements the HTTP endpoints of the kgpath server.
package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/soundprediction/kgpath/pkg/driver"
	"github.com/soundprediction/kgpath/pkg/server/dto"
	"github.com/soundprediction/kgpath/pkg/types"
)

// Scorer is the scoring surface the handlers need.
// *scorer.RelationScorer implements it.
type Scorer interface {
	Score(ctx context.Context, question string, prev types.RelationHistory, next string) (float64, error)
	ScoreBatch(ctx context.Context, question string, prev types.RelationHistory, candidates []string) ([]float64, error)
}

// scorerStats is optionally implemented by a Scorer.
type scorerStats interface {
	ComputeCount() int64
	CacheLen() int
}

func writeError(c *gin.Context, status int, code string, err error) {
	c.JSON(status, dto.ErrorResponse{Error: code, Message: err.Error(), Code: status})
}

// statusFor maps an error from search or scoring to an HTTP status.
func statusFor(err error) (int, string) {
	var cke *types.CacheKeyError
	var bqe *driver.BackendQueryError
	switch {
	case errors.As(err, &cke):
		return http.StatusBadRequest, "invalid_request"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "timeout"
	case errors.Is(err, context.Canceled):
		return 499, "cancelled"
	case errors.As(err, &bqe):
		return http.StatusBadGateway, "backend_error"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}
