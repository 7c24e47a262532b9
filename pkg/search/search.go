package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/soundprediction/kgpath/pkg/config"
	"github.com/soundprediction/kgpath/pkg/driver"
	"github.com/soundprediction/kgpath/pkg/types"
)

// DefaultMaxPath is used when maxPath <= 0.
const DefaultMaxPath = 100

// Strategy names a PathFinder implementation.
type Strategy string

const (
	StrategyEnumerate Strategy = "enumerate"
	StrategyRanked    Strategy = "ranked"
	StrategyBeam      Strategy = "beam"
)

// PairErrorPolicy decides what a backend failure for one (source,
// destination) pair does to the sample.
type PairErrorPolicy string

const (
	// PairErrorFailSample propagates the error, so the sample is skipped.
	PairErrorFailSample PairErrorPolicy = "fail_sample"
	// PairErrorSkipPair drops the pair's paths and continues.
	PairErrorSkipPair PairErrorPolicy = "skip_pair"
)

// ErrScorerRequired is returned when a scored strategy has no scorer.
var ErrScorerRequired = errors.New("search strategy requires a relation scorer")

// PathFinder finds paths from a sample's question entities to its answer
// entities.
type PathFinder interface {
	FindPaths(ctx context.Context, sample *types.Sample, maxPath int) ([]types.Path, error)
}

// Scorer rates candidate relation labels. *scorer.RelationScorer implements it.
type Scorer interface {
	ScoreBatch(ctx context.Context, question string, prev types.RelationHistory, candidates []string) ([]float64, error)
}

// New builds the PathFinder named by cfg.Strategy. scorer may be nil for
// the enumerate strategy.
func New(cfg config.SearchConfig, graph driver.GraphDriver, scorer Scorer, tracing bool, logger *slog.Logger) (PathFinder, error) {
	enum := NewEnumerator(graph, EnumeratorOptions{
		Policy:  PairErrorPolicy(cfg.PairErrorPolicy),
		Logger:  logger,
		Tracing: tracing,
	})

	switch Strategy(cfg.Strategy) {
	case StrategyEnumerate, "":
		return enum, nil
	case StrategyRanked:
		if scorer == nil {
			return nil, ErrScorerRequired
		}
		return NewRankedEnumerator(enum, graph, scorer, cfg.CollectFactor), nil
	case StrategyBeam:
		if scorer == nil {
			return nil, ErrScorerRequired
		}
		return NewBeamSearcher(graph, scorer, BeamOptions{
			BeamWidth:     cfg.BeamWidth,
			MaxHops:       cfg.MaxHops,
			RelationLimit: cfg.RelationLimit,
			ObjectLimit:   cfg.ObjectLimit,
			Tracing:       tracing,
		}, logger), nil
	default:
		return nil, fmt.Errorf("%w: %q", config.ErrUnknownStrategy, cfg.Strategy)
	}
}

func normalizeMaxPath(maxPath int) int {
	if maxPath <= 0 {
		return DefaultMaxPath
	}
	return maxPath
}

// scoredPath is a path with its mean relation score.
type scoredPath struct {
	path  types.Path
	score float64
}

// rankPaths stable-sorts by descending score and keeps at most limit paths.
func rankPaths(scored []scoredPath, limit int) []types.Path {
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].score > scored[j].score
	})
	if len(scored) > limit {
		scored = scored[:limit]
	}
	out := make([]types.Path, len(scored))
	for i, sp := range scored {
		out[i] = sp.path
	}
	return out
}

// labelOf resolves a relation label. Lookup failures other than
// cancellation fall back to the id.
func labelOf(ctx context.Context, graph driver.GraphDriver, rel types.Relation, logger *slog.Logger) (string, error) {
	label, err := graph.Label(ctx, string(rel))
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		logger.Debug("Relation label lookup failed, using id", "relation", rel, "error", err)
		return string(rel), nil
	}
	if label == "" {
		return string(rel), nil
	}
	return label, nil
}
