package search

import (
	"context"
	"log/slog"
	"sort"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/soundprediction/kgpath/pkg/driver"
	"github.com/soundprediction/kgpath/pkg/types"
	"github.com/soundprediction/kgpath/pkg/utils"
)

// Beam search defaults.
const (
	DefaultBeamWidth     = 10
	DefaultMaxHops       = 2
	DefaultRelationLimit = 200
	DefaultObjectLimit   = 50
)

// BeamOptions configures a BeamSearcher. Zero values use the defaults.
type BeamOptions struct {
	BeamWidth     int
	MaxHops       int
	RelationLimit int
	ObjectLimit   int
	Tracing       bool
}

// BeamSearcher walks outward from the question entities, expanding only
// the BeamWidth best-scoring relations at each hop.
type BeamSearcher struct {
	graph  driver.GraphDriver
	scorer Scorer
	opts   BeamOptions
	logger *slog.Logger
	tracer trace.Tracer
}

var _ PathFinder = (*BeamSearcher)(nil)

// NewBeamSearcher creates a beam searcher.
func NewBeamSearcher(graph driver.GraphDriver, scorer Scorer, opts BeamOptions, logger *slog.Logger) *BeamSearcher {
	if opts.BeamWidth <= 0 {
		opts.BeamWidth = DefaultBeamWidth
	}
	if opts.MaxHops <= 0 {
		opts.MaxHops = DefaultMaxHops
	}
	if opts.RelationLimit <= 0 {
		opts.RelationLimit = DefaultRelationLimit
	}
	if opts.ObjectLimit <= 0 {
		opts.ObjectLimit = DefaultObjectLimit
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &BeamSearcher{graph: graph, scorer: scorer, opts: opts, logger: logger, tracer: newTracer(opts.Tracing)}
}

type beam struct {
	frontier types.Entity
	path     types.Path
	history  types.RelationHistory
	hops     []float64
}

func (b beam) visits(e types.Entity) bool {
	return e == b.frontier || b.path.Visits(e)
}

type expansion struct {
	from  beam
	rel   types.Relation
	label string
	hops  []float64
	score float64
}

// FindPaths implements PathFinder.
func (s *BeamSearcher) FindPaths(ctx context.Context, sample *types.Sample, maxPath int) ([]types.Path, error) {
	maxPath = normalizeMaxPath(maxPath)
	answers := types.NewEntitySet(sample.AnswerEntities)

	ctx, span := s.tracer.Start(ctx, "search.beam", trace.WithAttributes(
		attribute.String("search.sample_id", sample.ID),
		attribute.Int("search.beam_width", s.opts.BeamWidth),
		attribute.Int("search.max_hops", s.opts.MaxHops),
	))
	defer span.End()

	var beams []beam
	for _, src := range types.UniqueEntities(sample.QuestionEntities) {
		beams = append(beams, beam{frontier: src})
	}

	var completed []scoredPath
	seen := make(map[string]struct{})

	for hop := 1; hop <= s.opts.MaxHops && len(beams) > 0 && len(completed) < maxPath; hop++ {
		expansions, err := s.expand(ctx, sample.Question, beams)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}

		var next []beam
		for _, ex := range expansions {
			objs, err := s.graph.Objects(ctx, ex.from.frontier, ex.rel, s.opts.ObjectLimit)
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
				return nil, err
			}
			for _, obj := range objs {
				if ex.from.visits(obj) {
					continue
				}
				p := ex.from.path.Extend(types.Triplet{Subject: ex.from.frontier, Relation: ex.rel, Object: obj})
				if answers.Contains(obj) {
					k := p.Key()
					if _, dup := seen[k]; !dup {
						seen[k] = struct{}{}
						completed = append(completed, scoredPath{path: p, score: ex.score})
					}
					continue
				}
				history, err := ex.from.history.Append(ex.label)
				if err != nil {
					return nil, err
				}
				next = append(next, beam{frontier: obj, path: p, history: history, hops: ex.hops})
			}
		}
		if len(next) > s.opts.BeamWidth {
			next = next[:s.opts.BeamWidth]
		}
		s.logger.Debug("Beam search hop finished",
			"sample_id", sample.ID, "hop", hop, "expansions", len(expansions), "beams", len(next), "completed", len(completed))
		beams = next
	}

	span.SetAttributes(attribute.Int("search.paths", min(len(completed), maxPath)))
	return rankPaths(completed, maxPath), nil
}

// expand scores every outgoing relation of every beam and returns the
// BeamWidth best expansions, best first.
func (s *BeamSearcher) expand(ctx context.Context, question string, beams []beam) ([]expansion, error) {
	var all []expansion
	for _, b := range beams {
		rels, err := s.graph.Relations(ctx, b.frontier, s.opts.RelationLimit)
		if err != nil {
			return nil, err
		}
		if len(rels) == 0 {
			continue
		}
		labels := make([]string, len(rels))
		for i, r := range rels {
			if labels[i], err = labelOf(ctx, s.graph, r, s.logger); err != nil {
				return nil, err
			}
		}
		scores, err := s.scorer.ScoreBatch(ctx, question, b.history, labels)
		if err != nil {
			return nil, err
		}
		for i, r := range rels {
			hops := append(append(make([]float64, 0, len(b.hops)+1), b.hops...), scores[i])
			all = append(all, expansion{from: b, rel: r, label: labels[i], hops: hops, score: utils.Mean(hops)})
		}
	}

	sort.SliceStable(all, func(i, j int) bool { return all[i].score > all[j].score })
	if len(all) > s.opts.BeamWidth {
		all = all[:s.opts.BeamWidth]
	}
	return all, nil
}
