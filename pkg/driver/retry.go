package driver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/sony/gobreaker"

	"github.com/soundprediction/kgpath/pkg/config"
	"github.com/soundprediction/kgpath/pkg/types"
)

// DefaultRetryConfig returns the default retry configuration
func DefaultRetryConfig() config.RetryConfig {
	return config.RetryConfig{
		MaxRetries:    3,
		InitialDelay:  1 * time.Second,
		MaxDelay:      30 * time.Second,
		BackoffFactor: 2.0,
	}
}

// RetryDriver wraps a GraphDriver and retries transient failures with
// exponential backoff.
type RetryDriver struct {
	next   GraphDriver
	config config.RetryConfig
	logger *slog.Logger
	sleep  func(ctx context.Context, d time.Duration) error
}

var _ GraphDriver = (*RetryDriver)(nil)

// NewRetryDriver creates a new retry wrapper
func NewRetryDriver(next GraphDriver, cfg config.RetryConfig, logger *slog.Logger) *RetryDriver {
	def := DefaultRetryConfig()
	// Ensure sensible defaults
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = def.MaxRetries
	}
	if cfg.InitialDelay <= 0 {
		cfg.InitialDelay = def.InitialDelay
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = def.MaxDelay
	}
	if cfg.BackoffFactor <= 0 {
		cfg.BackoffFactor = def.BackoffFactor
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RetryDriver{next: next, config: cfg, logger: logger, sleep: sleepContext}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func withRetry[T any](ctx context.Context, r *RetryDriver, op string, fn func() (T, error)) (T, error) {
	var zero T
	var lastErr error

	for attempt := 0; attempt <= r.config.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := r.calculateDelay(attempt)
			r.logger.Warn("Retrying graph backend query",
				"op", op, "attempt", attempt, "delay", delay, "error", lastErr)
			if err := r.sleep(ctx, delay); err != nil {
				return zero, fmt.Errorf("context cancelled during retry backoff: %w (last error: %w)", err, lastErr)
			}
		}

		v, err := fn()
		if err == nil {
			return v, nil
		}
		lastErr = err

		if ctx.Err() != nil || !isRetryableError(err) {
			return zero, err
		}
	}

	return zero, fmt.Errorf("failed after %d retries: %w", r.config.MaxRetries, lastErr)
}

// calculateDelay returns InitialDelay * BackoffFactor^(attempt-1), capped at MaxDelay.
func (r *RetryDriver) calculateDelay(attempt int) time.Duration {
	delay := float64(r.config.InitialDelay) * math.Pow(r.config.BackoffFactor, float64(attempt-1))
	if delay > float64(r.config.MaxDelay) {
		delay = float64(r.config.MaxDelay)
	}
	return time.Duration(delay)
}

func (r *RetryDriver) SearchOneHop(ctx context.Context, src, dst types.Entity) ([]types.Path, error) {
	return withRetry(ctx, r, OpOneHop, func() ([]types.Path, error) {
		return r.next.SearchOneHop(ctx, src, dst)
	})
}

func (r *RetryDriver) SearchTwoHop(ctx context.Context, src, dst types.Entity) ([]types.Path, error) {
	return withRetry(ctx, r, OpTwoHop, func() ([]types.Path, error) {
		return r.next.SearchTwoHop(ctx, src, dst)
	})
}

func (r *RetryDriver) Relations(ctx context.Context, entity types.Entity, limit int) ([]types.Relation, error) {
	return withRetry(ctx, r, OpRelations, func() ([]types.Relation, error) {
		return r.next.Relations(ctx, entity, limit)
	})
}

func (r *RetryDriver) Objects(ctx context.Context, entity types.Entity, rel types.Relation, limit int) ([]types.Entity, error) {
	return withRetry(ctx, r, OpObjects, func() ([]types.Entity, error) {
		return r.next.Objects(ctx, entity, rel, limit)
	})
}

func (r *RetryDriver) Label(ctx context.Context, id string) (string, error) {
	return withRetry(ctx, r, OpLabel, func() (string, error) {
		return r.next.Label(ctx, id)
	})
}

func (r *RetryDriver) Provider() GraphProvider { return r.next.Provider() }

func (r *RetryDriver) Close() error { return r.next.Close() }

// isRetryableError determines if an error is retryable
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}

	// Permanent failures
	switch {
	case errors.Is(err, context.Canceled),
		errors.Is(err, ErrInvalidIdentifier),
		errors.Is(err, ErrMalformedResponse),
		errors.Is(err, ErrDriverClosed),
		errors.Is(err, gobreaker.ErrOpenState),
		errors.Is(err, gobreaker.ErrTooManyRequests):
		return false
	}

	type httpErrorWithStatusCode interface {
		HTTPStatusCode() int
	}
	var httpErr httpErrorWithStatusCode
	if errors.As(err, &httpErr) {
		statusCode := httpErr.HTTPStatusCode()
		return statusCode >= 500 || statusCode == http.StatusTooManyRequests
	}

	if neo4j.IsRetryable(err) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	errMsg := strings.ToLower(err.Error())
	retryablePatterns := []string{
		"500", "internal server error",
		"502", "bad gateway",
		"503", "service unavailable",
		"504", "gateway timeout",
		"timeout",
		"connection reset",
		"connection refused",
		"temporary failure",
		"too many requests",
		"429",
	}
	for _, pattern := range retryablePatterns {
		if strings.Contains(errMsg, pattern) {
			return true
		}
	}
	return false
}

// Unwrap returns the wrapped driver.
func (r *RetryDriver) Unwrap() GraphDriver { return r.next }
