package search

import (
	"context"
	"log/slog"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/soundprediction/kgpath/pkg/driver"
	"github.com/soundprediction/kgpath/pkg/types"
)

const tracerName = "github.com/soundprediction/kgpath/pkg/search"

func newTracer(enabled bool) trace.Tracer {
	if enabled {
		return otel.Tracer(tracerName)
	}
	return noop.NewTracerProvider().Tracer(tracerName)
}

// EnumeratorOptions configures an Enumerator.
type EnumeratorOptions struct {
	Policy  PairErrorPolicy
	Logger  *slog.Logger
	Tracing bool
}

// Enumerator lists one-hop and two-hop paths between entity pairs.
type Enumerator struct {
	graph        driver.GraphDriver
	policy       PairErrorPolicy
	logger       *slog.Logger
	tracer       trace.Tracer
	skippedPairs atomic.Int64
}

var _ PathFinder = (*Enumerator)(nil)

// NewEnumerator creates an enumerator over graph.
func NewEnumerator(graph driver.GraphDriver, opts EnumeratorOptions) *Enumerator {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	policy := opts.Policy
	if policy == "" {
		policy = PairErrorFailSample
	}
	return &Enumerator{graph: graph, policy: policy, logger: logger, tracer: newTracer(opts.Tracing)}
}

// SearchOneHop returns the direct edges src -r-> dst as single-triplet paths.
func (e *Enumerator) SearchOneHop(ctx context.Context, src, dst types.Entity) ([]types.Path, error) {
	paths, err := e.graph.SearchOneHop(ctx, src, dst)
	if err != nil {
		return nil, err
	}
	return e.accept(paths, src, dst), nil
}

// SearchTwoHop returns the chains src -r1-> m -r2-> dst.
func (e *Enumerator) SearchTwoHop(ctx context.Context, src, dst types.Entity) ([]types.Path, error) {
	paths, err := e.graph.SearchTwoHop(ctx, src, dst)
	if err != nil {
		return nil, err
	}
	return e.accept(paths, src, dst), nil
}

// accept drops backend rows that are not connected src -> dst paths and
// repeated rows.
func (e *Enumerator) accept(paths []types.Path, src, dst types.Entity) []types.Path {
	out := make([]types.Path, 0, len(paths))
	seen := make(map[string]struct{}, len(paths))
	for _, p := range paths {
		if err := p.Validate(src, dst); err != nil {
			e.logger.Warn("Dropping invalid path from backend", "path", p.String(), "error", err)
			continue
		}
		k := p.Key()
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, p)
	}
	return out
}

// EnumeratePaths walks the cross product of sources and destinations in
// input order, collecting one-hop then two-hop paths for each pair, and
// stops once maxPath distinct paths exist. maxPath <= 0 means DefaultMaxPath.
func (e *Enumerator) EnumeratePaths(ctx context.Context, sources, destinations []types.Entity, maxPath int) ([]types.Path, error) {
	return e.collect(ctx, sources, destinations, normalizeMaxPath(maxPath))
}

// FindPaths implements PathFinder.
func (e *Enumerator) FindPaths(ctx context.Context, sample *types.Sample, maxPath int) ([]types.Path, error) {
	return e.EnumeratePaths(ctx, sample.QuestionEntities, sample.AnswerEntities, maxPath)
}

// SkippedPairs returns how many pairs were dropped under PairErrorSkipPair.
func (e *Enumerator) SkippedPairs() int64 { return e.skippedPairs.Load() }

func (e *Enumerator) collect(ctx context.Context, sources, destinations []types.Entity, limit int) ([]types.Path, error) {
	sources = types.UniqueEntities(sources)
	destinations = types.UniqueEntities(destinations)

	ctx, span := e.tracer.Start(ctx, "search.enumerate", trace.WithAttributes(
		attribute.Int("search.sources", len(sources)),
		attribute.Int("search.destinations", len(destinations)),
		attribute.Int("search.limit", limit),
	))
	defer span.End()

	paths := make([]types.Path, 0, min(limit, 64))
	seen := make(map[string]struct{})

pairs:
	for _, src := range sources {
		for _, dst := range destinations {
			if len(paths) >= limit {
				break pairs
			}
			found, err := e.pairPaths(ctx, src, dst, limit-len(paths))
			if err != nil {
				if ctx.Err() != nil || e.policy != PairErrorSkipPair {
					span.RecordError(err)
					span.SetStatus(codes.Error, err.Error())
					return nil, err
				}
				e.skippedPairs.Add(1)
				e.logger.Warn("Skipping entity pair after backend error", "src", src, "dst", dst, "error", err)
				continue
			}
			for _, p := range found {
				k := p.Key()
				if _, dup := seen[k]; dup {
					continue
				}
				seen[k] = struct{}{}
				paths = append(paths, p)
			}
		}
	}

	if len(paths) > limit {
		paths = paths[:limit]
	}
	span.SetAttributes(attribute.Int("search.paths", len(paths)))
	return paths, nil
}

// pairPaths returns the one-hop paths of a pair followed by its two-hop
// paths. The two-hop lookup is skipped when the distinct one-hop paths
// already fill the remaining room.
func (e *Enumerator) pairPaths(ctx context.Context, src, dst types.Entity, room int) ([]types.Path, error) {
	one, err := e.SearchOneHop(ctx, src, dst)
	if err != nil {
		return nil, err
	}
	if len(one) >= room {
		return one, nil
	}
	two, err := e.SearchTwoHop(ctx, src, dst)
	if err != nil {
		return nil, err
	}
	return append(one, two...), nil
}
