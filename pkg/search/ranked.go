package search

import (
	"context"
	"log/slog"

	"github.com/soundprediction/kgpath/pkg/driver"
	"github.com/soundprediction/kgpath/pkg/types"
	"github.com/soundprediction/kgpath/pkg/utils"
)

// DefaultCollectFactor sizes the candidate pool of a RankedEnumerator.
const DefaultCollectFactor = 4

// RankedEnumerator enumerates up to CollectFactor*maxPath paths, orders
// them by mean relation score and keeps the best maxPath. Ties keep
// enumeration order. Scores only rank; no valid path is rejected for a
// low score.
type RankedEnumerator struct {
	enum          *Enumerator
	graph         driver.GraphDriver
	scorer        Scorer
	collectFactor int
	logger        *slog.Logger
}

var _ PathFinder = (*RankedEnumerator)(nil)

// NewRankedEnumerator wraps enum. collectFactor <= 0 uses DefaultCollectFactor.
func NewRankedEnumerator(enum *Enumerator, graph driver.GraphDriver, scorer Scorer, collectFactor int) *RankedEnumerator {
	if collectFactor <= 0 {
		collectFactor = DefaultCollectFactor
	}
	return &RankedEnumerator{enum: enum, graph: graph, scorer: scorer, collectFactor: collectFactor, logger: enum.logger}
}

// FindPaths implements PathFinder.
func (r *RankedEnumerator) FindPaths(ctx context.Context, sample *types.Sample, maxPath int) ([]types.Path, error) {
	maxPath = normalizeMaxPath(maxPath)
	candidates, err := r.enum.collect(ctx, sample.QuestionEntities, sample.AnswerEntities, maxPath*r.collectFactor)
	if err != nil {
		return nil, err
	}
	scored := make([]scoredPath, len(candidates))
	for i, p := range candidates {
		score, err := r.scorePath(ctx, sample.Question, p)
		if err != nil {
			return nil, err
		}
		scored[i] = scoredPath{path: p, score: score}
	}
	return rankPaths(scored, maxPath), nil
}

// scorePath averages the score of each hop given the relations before it.
func (r *RankedEnumerator) scorePath(ctx context.Context, question string, p types.Path) (float64, error) {
	var history types.RelationHistory
	hops := make([]float64, 0, len(p))
	for _, t := range p {
		label, err := labelOf(ctx, r.graph, t.Relation, r.logger)
		if err != nil {
			return 0, err
		}
		s, err := r.scorer.ScoreBatch(ctx, question, history, []string{label})
		if err != nil {
			return 0, err
		}
		hops = append(hops, s[0])
		if history, err = history.Append(label); err != nil {
			return 0, err
		}
	}
	return utils.Mean(hops), nil
}
