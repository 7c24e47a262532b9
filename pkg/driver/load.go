package driver

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/soundprediction/kgpath/pkg/types"
)

// DefaultLoadBatchSize is the number of triples sent to a Loader per call.
const DefaultLoadBatchSize = 5000

// LoadStats counts what LoadTSV sent to the loader.
type LoadStats struct {
	Triples int
	Labels  int
	Batches int
}

// LoadTSV streams "subject\trelation\tobject" lines from triples and
// "id\tlabel" lines from labels into loader in batches. labels may be nil.
// Labels are applied after all triples so they can attach to relations
// created by the triples.
func LoadTSV(ctx context.Context, loader Loader, triples, labels io.Reader, batchSize int, logger *slog.Logger) (LoadStats, error) {
	if batchSize <= 0 {
		batchSize = DefaultLoadBatchSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	var stats LoadStats

	batch := make([]types.Triplet, 0, batchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := loader.AddTriples(ctx, batch); err != nil {
			return fmt.Errorf("batch %d: %w", stats.Batches+1, err)
		}
		stats.Triples += len(batch)
		stats.Batches++
		logger.Debug("Loaded triple batch", "batch", stats.Batches, "triples", stats.Triples)
		batch = batch[:0]
		return nil
	}

	err := scanTSV(triples, 3, func(f []string) error {
		batch = append(batch, types.NewTriplet(f[0], f[1], f[2]))
		if len(batch) < batchSize {
			return nil
		}
		return flush()
	})
	if err == nil {
		err = flush()
	}
	if err != nil {
		return stats, fmt.Errorf("failed to load triples: %w", err)
	}

	if labels == nil {
		return stats, nil
	}
	pending := make(map[string]string, batchSize)
	flushLabels := func() error {
		if len(pending) == 0 {
			return nil
		}
		if err := loader.SetLabels(ctx, pending); err != nil {
			return err
		}
		stats.Labels += len(pending)
		pending = make(map[string]string, batchSize)
		return nil
	}
	err = scanTSV(labels, 2, func(f []string) error {
		pending[f[0]] = f[1]
		if len(pending) < batchSize {
			return nil
		}
		return flushLabels()
	})
	if err == nil {
		err = flushLabels()
	}
	if err != nil {
		return stats, fmt.Errorf("failed to load labels: %w", err)
	}
	return stats, nil
}
