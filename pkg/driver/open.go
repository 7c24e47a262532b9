package driver

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/soundprediction/kgpath/pkg/alert"
	"github.com/soundprediction/kgpath/pkg/cache"
	"github.com/soundprediction/kgpath/pkg/config"
	"github.com/soundprediction/kgpath/pkg/metrics"
)

// Open creates the backend named by cfg.Driver without any wrappers.
func Open(ctx context.Context, cfg config.DatabaseConfig, logger *slog.Logger) (GraphDriver, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("driver", cfg.Driver)

	switch GraphProvider(cfg.Driver) {
	case GraphProviderWikidata:
		w, err := NewWikidataDriver(WikidataConfig{Endpoint: cfg.Endpoint, Timeout: cfg.Timeout}, logger)
		if err != nil {
			return nil, err
		}
		return w, nil
	case GraphProviderNeo4j:
		n, err := NewNeo4jDriver(ctx, cfg.URI, cfg.Username, cfg.Password, cfg.Database, logger)
		if err != nil {
			return nil, err
		}
		return n, nil
	case GraphProviderLadybug:
		l, err := NewLadybugDriver(cfg.URI, logger)
		if err != nil {
			return nil, err
		}
		return l, nil
	case GraphProviderMemory:
		m, err := NewMemoryDriverFromFiles(cfg.TriplesPath, cfg.LabelsPath)
		if err != nil {
			return nil, err
		}
		logger.Info("Loaded in-memory graph", "triples", m.Len(), "path", cfg.TriplesPath)
		return m, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, cfg.Driver)
	}
}

// OpenWrapped opens the configured backend and applies retry, circuit
// breaking, instrumentation and label caching as cfg describes.
func OpenWrapped(ctx context.Context, cfg *config.Config, alerter alert.Alerter, recorder metrics.Recorder, logger *slog.Logger) (GraphDriver, error) {
	if logger == nil {
		logger = slog.Default()
	}
	base, err := Open(ctx, cfg.Database, logger)
	if err != nil {
		return nil, err
	}

	retry := cfg.Retry
	breaker := cfg.CircuitBreaker
	opts := WrapOptions{
		Retry:          &retry,
		CircuitBreaker: &breaker,
		Alerter:        alerter,
		Recorder:       recorder,
		Tracing:        cfg.Telemetry.Tracing,
		Logger:         logger,
	}

	if lc := cfg.Database.LabelCache; lc.Enabled {
		opts.LabelCache = &LabelCacheOptions{Size: lc.Size}
		if lc.Path != "" {
			store, err := cache.NewBadgerStore(lc.Path, logger)
			if err != nil {
				_ = base.Close()
				return nil, fmt.Errorf("failed to open label cache: %w", err)
			}
			opts.LabelCache.Store = store
		}
	}
	return Wrap(base, opts), nil
}
