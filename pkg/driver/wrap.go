package driver

import (
	"log/slog"

	"github.com/soundprediction/kgpath/pkg/alert"
	"github.com/soundprediction/kgpath/pkg/cache"
	"github.com/soundprediction/kgpath/pkg/config"
	"github.com/soundprediction/kgpath/pkg/metrics"
)

// LabelCacheOptions configures label memoization.
type LabelCacheOptions struct {
	Size  int
	Store cache.Store
}

// WrapOptions selects the wrappers applied by Wrap. Nil fields are skipped.
type WrapOptions struct {
	Retry          *config.RetryConfig
	CircuitBreaker *config.CircuitBreakerConfig
	Alerter        alert.Alerter
	Recorder       metrics.Recorder
	Tracing        bool
	LabelCache     *LabelCacheOptions
	Logger         *slog.Logger
}

// Wrap layers the configured wrappers around base. From the outside in:
// label cache, retry, circuit breaker, instrumentation.
//
// Retry sits outside the breaker so an open breaker stops retries at once,
// and instrumentation sits innermost so every attempt is measured.
func Wrap(base GraphDriver, opts WrapOptions) GraphDriver {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	d := GraphDriver(NewInstrumentedDriver(base, opts.Recorder, opts.Tracing))
	if opts.CircuitBreaker != nil && opts.CircuitBreaker.Enabled {
		d = NewCircuitBreakerDriver(d, *opts.CircuitBreaker, opts.Alerter, opts.Recorder, logger)
	}
	if opts.Retry != nil {
		d = NewRetryDriver(d, *opts.Retry, logger)
	}
	if opts.LabelCache != nil {
		d = NewLabelCacheDriver(d, opts.LabelCache.Size, opts.LabelCache.Store, opts.Recorder, logger)
	}
	return d
}

// AsLoader walks through wrappers and returns the first driver that
// implements Loader, or nil. Writes go straight to that driver, so cached
// labels are not refreshed.
func AsLoader(d GraphDriver) Loader {
	for d != nil {
		if l, ok := d.(Loader); ok {
			return l
		}
		u, ok := d.(interface{ Unwrap() GraphDriver })
		if !ok {
			return nil
		}
		d = u.Unwrap()
	}
	return nil
}
