package scorer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/soundprediction/kgpath/pkg/cache"
	"github.com/soundprediction/kgpath/pkg/config"
	"github.com/soundprediction/kgpath/pkg/encoder"
	"github.com/soundprediction/kgpath/pkg/metrics"
	"github.com/soundprediction/kgpath/pkg/types"
	"github.com/soundprediction/kgpath/pkg/utils"
)

const tracerName = "github.com/soundprediction/kgpath/pkg/scorer"

// DefaultCacheSize bounds the in-memory score cache when Options.CacheSize is 0.
const DefaultCacheSize = 500_000

// QueryText renders the question side of a score.
func QueryText(question string, prev types.RelationHistory) string {
	return "query: " + question + " [SEP] " + prev.Join(" # ")
}

// RelationText renders a candidate relation.
func RelationText(next string) string {
	return "relation: " + next
}

// Options configures a RelationScorer.
type Options struct {
	// CacheSize bounds the in-memory cache. Negative means unbounded.
	CacheSize int
	CacheTTL  time.Duration
	// Store is an optional shared second-level cache.
	Store    cache.Store
	Recorder metrics.Recorder
	Logger   *slog.Logger
	Tracing  bool
}

// RelationScorer computes memoized relation scores. It is safe for
// concurrent use.
type RelationScorer struct {
	encoder  encoder.Encoder
	memo     *cache.Memo[types.ScoreKey, float64]
	mu       sync.Mutex
	computed atomic.Int64
	recorder metrics.Recorder
	logger   *slog.Logger
	tracer   trace.Tracer
}

// New creates a scorer around enc.
func New(enc encoder.Encoder, opts Options) *RelationScorer {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	size := opts.CacheSize
	switch {
	case size == 0:
		size = DefaultCacheSize
	case size < 0:
		size = 0
	}

	s := &RelationScorer{
		encoder:  enc,
		recorder: metrics.OrNoop(opts.Recorder),
		logger:   logger,
		tracer:   noop.NewTracerProvider().Tracer(tracerName),
	}
	if opts.Tracing {
		s.tracer = otel.Tracer(tracerName)
	}

	memoOpts := cache.MemoOptions[types.ScoreKey, float64]{
		Name:     "scores",
		Size:     size,
		TTL:      opts.CacheTTL,
		Recorder: opts.Recorder,
		Logger:   logger,
	}
	if opts.Store != nil {
		// Scores are only comparable within one model.
		namespace := enc.Name() + "|"
		memoOpts.Store = opts.Store
		memoOpts.Key = func(k types.ScoreKey) string { return namespace + k.String() }
		memoOpts.Codec = cache.Float64Codec{}
	}
	s.memo = cache.NewMemo(memoOpts)
	return s
}

// FromConfig creates a scorer with the cache store named in cfg.
func FromConfig(ctx context.Context, enc encoder.Encoder, cfg config.ScorerConfig, recorder metrics.Recorder, tracing bool, logger *slog.Logger) (*RelationScorer, error) {
	store, err := OpenStore(ctx, cfg.Cache, logger)
	if err != nil {
		return nil, err
	}
	return New(enc, Options{
		CacheSize: cfg.Cache.Size,
		CacheTTL:  cfg.Cache.TTL,
		Store:     store,
		Recorder:  recorder,
		Logger:    logger,
		Tracing:   tracing,
	}), nil
}

// OpenStore opens the second-level cache named by cfg.Store. "none" and ""
// return a nil store.
func OpenStore(ctx context.Context, cfg config.CacheConfig, logger *slog.Logger) (cache.Store, error) {
	switch cfg.Store {
	case "", "none":
		return nil, nil
	case "badger":
		store, err := cache.NewBadgerStore(cfg.Path, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to open score cache: %w", err)
		}
		return store, nil
	case "redis":
		store, err := cache.NewRedisStore(ctx, cache.RedisOptions{URL: cfg.RedisURL, Prefix: cfg.Prefix})
		if err != nil {
			return nil, fmt.Errorf("failed to open score cache: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("%w: %q", config.ErrUnknownStore, cfg.Store)
	}
}

// Score returns the similarity in [-1, 1] between the question with its
// relation history and the candidate relation label.
func (s *RelationScorer) Score(ctx context.Context, question string, prev types.RelationHistory, next string) (float64, error) {
	scores, err := s.ScoreBatch(ctx, question, prev, []string{next})
	if err != nil {
		return 0, err
	}
	return scores[0], nil
}

// ScoreBatch scores several candidates against one question and history.
// Cache misses are computed in a single encoder pass.
func (s *RelationScorer) ScoreBatch(ctx context.Context, question string, prev types.RelationHistory, candidates []string) ([]float64, error) {
	scores := make([]float64, len(candidates))
	if len(candidates) == 0 {
		return scores, nil
	}

	keys := make([]types.ScoreKey, len(candidates))
	var missing []int
	for i, c := range candidates {
		k, err := types.NewScoreKey(question, prev, c)
		if err != nil {
			return nil, err
		}
		keys[i] = k
		if v, ok := s.memo.Get(ctx, k); ok {
			scores[i] = v
		} else {
			missing = append(missing, i)
		}
	}
	if len(missing) == 0 {
		return scores, nil
	}

	if err := s.compute(ctx, question, prev, keys, missing, scores); err != nil {
		return nil, err
	}
	return scores, nil
}

// compute fills scores[i] for each missing index. Another caller may have
// computed some keys while this one waited for the lock, so they are
// checked again first.
func (s *RelationScorer) compute(ctx context.Context, question string, prev types.RelationHistory, keys []types.ScoreKey, missing []int, scores []float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	todo := make(map[types.ScoreKey][]int)
	var order []types.ScoreKey
	for _, i := range missing {
		if v, ok := s.memo.Peek(keys[i]); ok {
			scores[i] = v
			continue
		}
		if _, seen := todo[keys[i]]; !seen {
			order = append(order, keys[i])
		}
		todo[keys[i]] = append(todo[keys[i]], i)
	}
	if len(order) == 0 {
		return nil
	}

	ctx, span := s.tracer.Start(ctx, "scorer.compute", trace.WithAttributes(
		attribute.Int("scorer.candidates", len(order)),
		attribute.Int("scorer.history_len", prev.Len()),
	))
	defer span.End()

	texts := make([]string, 0, len(order)+1)
	texts = append(texts, QueryText(question, prev))
	for _, k := range order {
		texts = append(texts, RelationText(k.Next))
	}

	start := time.Now()
	vecs, err := encoder.Embed(ctx, s.encoder, texts)
	s.recorder.ObserveEncodeSeconds(time.Since(start).Seconds())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to encode relation candidates: %w", err)
	}

	query := vecs[0]
	for j, k := range order {
		v := utils.CosineSimilarity(query, vecs[j+1])
		s.memo.Add(ctx, k, v)
		for _, i := range todo[k] {
			scores[i] = v
		}
	}
	s.computed.Add(int64(len(order)))
	s.recorder.AddScoresComputed(len(order))
	s.logger.Debug("Computed relation scores", "question", question, "history", prev.Len(), "computed", len(order))
	return nil
}

// ComputeCount returns how many scores were computed rather than served
// from cache.
func (s *RelationScorer) ComputeCount() int64 { return s.computed.Load() }

// CacheLen returns the number of scores held in memory.
func (s *RelationScorer) CacheLen() int { return s.memo.Len() }

// CacheStats returns cache hit and miss counts.
func (s *RelationScorer) CacheStats() (hits, misses int64) { return s.memo.Stats() }

// Encoder returns the underlying encoder.
func (s *RelationScorer) Encoder() encoder.Encoder { return s.encoder }

// Close closes the cache store and the encoder.
func (s *RelationScorer) Close() error {
	storeErr := s.memo.Close()
	if err := s.encoder.Close(); err != nil {
		return err
	}
	return storeErr
}
