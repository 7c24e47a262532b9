package driver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"

	"github.com/soundprediction/kgpath/pkg/alert"
	"github.com/soundprediction/kgpath/pkg/config"
	"github.com/soundprediction/kgpath/pkg/metrics"
	"github.com/soundprediction/kgpath/pkg/types"
)

// CircuitBreakerDriver wraps a GraphDriver with circuit breaking logic.
// When the breaker is open calls fail fast with gobreaker.ErrOpenState.
type CircuitBreakerDriver struct {
	next GraphDriver
	cb   *gobreaker.CircuitBreaker
	name string
}

var _ GraphDriver = (*CircuitBreakerDriver)(nil)

// NewCircuitBreakerDriver creates a new circuit breaker wrapper.
func NewCircuitBreakerDriver(next GraphDriver, cfg config.CircuitBreakerConfig, alerter alert.Alerter, recorder metrics.Recorder, logger *slog.Logger) *CircuitBreakerDriver {
	if logger == nil {
		logger = slog.Default()
	}
	recorder = metrics.OrNoop(recorder)
	name := "graph-" + string(next.Provider())

	st := gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.MaxRequests,
		Interval:    time.Duration(cfg.Interval) * time.Second,
		Timeout:     time.Duration(cfg.Timeout) * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= cfg.ReadyToTripRatio
		},
		// Caller mistakes and cancellations say nothing about backend health.
		IsSuccessful: func(err error) bool {
			return err == nil ||
				errors.Is(err, ErrInvalidIdentifier) ||
				errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			recorder.SetBreakerState(name, to.String())
			logger.Warn("Circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
			if to == gobreaker.StateOpen && alerter != nil {
				msg := fmt.Sprintf("Circuit Breaker '%s' changed status from %s to %s. Too many failures detected.", name, from, to)
				if err := alerter.Alert(fmt.Sprintf("URGENT: Circuit Breaker Tripped - %s", name), msg); err != nil {
					logger.Error("Failed to send circuit breaker alert", "breaker", name, "error", err)
				}
			}
		},
	}
	recorder.SetBreakerState(name, gobreaker.StateClosed.String())

	return &CircuitBreakerDriver{
		next: next,
		cb:   gobreaker.NewCircuitBreaker(st),
		name: name,
	}
}

// State reports the current breaker state.
func (c *CircuitBreakerDriver) State() gobreaker.State { return c.cb.State() }

func breakerCall[T any](c *CircuitBreakerDriver, fn func() (T, error)) (T, error) {
	var zero T
	v, err := c.cb.Execute(func() (interface{}, error) {
		return fn()
	})
	if err != nil {
		return zero, err
	}
	return v.(T), nil
}

func (c *CircuitBreakerDriver) SearchOneHop(ctx context.Context, src, dst types.Entity) ([]types.Path, error) {
	return breakerCall(c, func() ([]types.Path, error) { return c.next.SearchOneHop(ctx, src, dst) })
}

func (c *CircuitBreakerDriver) SearchTwoHop(ctx context.Context, src, dst types.Entity) ([]types.Path, error) {
	return breakerCall(c, func() ([]types.Path, error) { return c.next.SearchTwoHop(ctx, src, dst) })
}

func (c *CircuitBreakerDriver) Relations(ctx context.Context, entity types.Entity, limit int) ([]types.Relation, error) {
	return breakerCall(c, func() ([]types.Relation, error) { return c.next.Relations(ctx, entity, limit) })
}

func (c *CircuitBreakerDriver) Objects(ctx context.Context, entity types.Entity, rel types.Relation, limit int) ([]types.Entity, error) {
	return breakerCall(c, func() ([]types.Entity, error) { return c.next.Objects(ctx, entity, rel, limit) })
}

func (c *CircuitBreakerDriver) Label(ctx context.Context, id string) (string, error) {
	return breakerCall(c, func() (string, error) { return c.next.Label(ctx, id) })
}

func (c *CircuitBreakerDriver) Provider() GraphProvider { return c.next.Provider() }

func (c *CircuitBreakerDriver) Close() error { return c.next.Close() }

// Unwrap returns the wrapped driver.
func (c *CircuitBreakerDriver) Unwrap() GraphDriver { return c.next }
