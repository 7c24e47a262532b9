package kgpath

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/soundprediction/kgpath/pkg/alert"
	"github.com/soundprediction/kgpath/pkg/config"
	"github.com/soundprediction/kgpath/pkg/driver"
	"github.com/soundprediction/kgpath/pkg/encoder"
	"github.com/soundprediction/kgpath/pkg/metrics"
	"github.com/soundprediction/kgpath/pkg/runner"
	"github.com/soundprediction/kgpath/pkg/scorer"
	"github.com/soundprediction/kgpath/pkg/search"
	"github.com/soundprediction/kgpath/pkg/types"
)

// ErrNoScorer is returned by scoring calls on a client opened without one.
var ErrNoScorer = errors.New("client has no relation scorer")

// Options adjusts how a Client is assembled. Zero values fall back to what
// the configuration describes.
type Options struct {
	// Graph replaces the configured backend. The client takes ownership.
	Graph driver.GraphDriver
	// Encoder replaces the configured encoder. The client takes ownership.
	Encoder encoder.Encoder
	// RequireScorer loads the encoder even when the search strategy does
	// not need it. Load failures are then fatal.
	RequireScorer bool

	Alerter  alert.Alerter
	Recorder metrics.Recorder
	Logger   *slog.Logger
}

// Client wires a graph backend, an optional relation scorer and a path
// finder from one configuration.
type Client struct {
	config   *config.Config
	graph    driver.GraphDriver
	scorer   *scorer.RelationScorer
	finder   search.PathFinder
	recorder metrics.Recorder
	logger   *slog.Logger
}

// NewClient opens the backend and builds the scorer and path finder. The
// scorer is built when the search strategy ranks by relation score or when
// opts.RequireScorer is set; an encoder that fails to load is a
// *encoder.ModelLoadError.
func NewClient(ctx context.Context, cfg *config.Config, opts Options) (*Client, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	recorder := metrics.OrNoop(opts.Recorder)
	alerter := opts.Alerter
	if alerter == nil {
		alerter = alert.FromConfig(cfg.Alert, logger)
	}

	c := &Client{config: cfg, recorder: recorder, logger: logger}

	graph := opts.Graph
	if graph == nil {
		var err error
		graph, err = driver.OpenWrapped(ctx, cfg, alerter, recorder, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to open graph backend: %w", err)
		}
	}
	c.graph = graph

	if opts.RequireScorer || needsScorer(cfg.Search.Strategy) {
		enc := opts.Encoder
		if enc == nil {
			var err error
			enc, err = encoder.New(cfg.Encoder, logger)
			if err != nil {
				_ = c.Close()
				return nil, err
			}
		}
		s, err := scorer.FromConfig(ctx, enc, cfg.Scorer, recorder, cfg.Telemetry.Tracing, logger)
		if err != nil {
			_ = enc.Close()
			_ = c.Close()
			return nil, fmt.Errorf("failed to create scorer: %w", err)
		}
		c.scorer = s
	}

	var relScorer search.Scorer
	if c.scorer != nil {
		relScorer = c.scorer
	}
	finder, err := search.New(cfg.Search, c.graph, relScorer, cfg.Telemetry.Tracing, logger)
	if err != nil {
		_ = c.Close()
		return nil, err
	}
	c.finder = finder

	logger.Info("kgpath client ready",
		"backend", c.graph.Provider(),
		"strategy", cfg.Search.Strategy,
		"scorer", c.scorer != nil)
	return c, nil
}

func needsScorer(strategy string) bool {
	switch search.Strategy(strategy) {
	case search.StrategyRanked, search.StrategyBeam:
		return true
	default:
		return false
	}
}

// Config returns the configuration the client was built from.
func (c *Client) Config() *config.Config { return c.config }

// Graph returns the (wrapped) graph backend.
func (c *Client) Graph() driver.GraphDriver { return c.graph }

// Loader returns the backend as a driver.Loader, or nil when the backend
// is read-only.
func (c *Client) Loader() driver.Loader { return driver.AsLoader(c.graph) }

// Scorer returns the relation scorer, or nil.
func (c *Client) Scorer() *scorer.RelationScorer { return c.scorer }

// Finder returns the configured path finder.
func (c *Client) Finder() search.PathFinder { return c.finder }

// FindPaths runs path search for one sample. maxPath <= 0 uses the
// configured search.max_path.
func (c *Client) FindPaths(ctx context.Context, sample *types.Sample, maxPath int) ([]types.Path, error) {
	if maxPath <= 0 {
		maxPath = c.config.Search.MaxPath
	}
	return c.finder.FindPaths(ctx, sample, maxPath)
}

// Score scores one candidate relation.
func (c *Client) Score(ctx context.Context, question string, prev types.RelationHistory, next string) (float64, error) {
	if c.scorer == nil {
		return 0, ErrNoScorer
	}
	return c.scorer.Score(ctx, question, prev, next)
}

// ScoreBatch scores several candidates against one history.
func (c *Client) ScoreBatch(ctx context.Context, question string, prev types.RelationHistory, candidates []string) ([]float64, error) {
	if c.scorer == nil {
		return nil, ErrNoScorer
	}
	return c.scorer.ScoreBatch(ctx, question, prev, candidates)
}

// NewRunner returns a batch runner over the client's path finder. Numeric
// options left at zero are taken from the configuration.
func (c *Client) NewRunner(opts runner.Options) *runner.Runner {
	defaults := runner.OptionsFromConfig(c.config)
	if opts.Workers == 0 {
		opts.Workers = defaults.Workers
	}
	if opts.ChunkSize == 0 {
		opts.ChunkSize = defaults.ChunkSize
	}
	if opts.SampleTimeout == 0 {
		opts.SampleTimeout = defaults.SampleTimeout
	}
	if opts.MaxPath == 0 {
		opts.MaxPath = defaults.MaxPath
	}
	opts.RepairInput = opts.RepairInput || defaults.RepairInput
	if opts.Recorder == nil {
		opts.Recorder = c.recorder
	}
	if opts.Logger == nil {
		opts.Logger = c.logger
	}
	return runner.New(c.finder, opts)
}

// Run finds paths for every JSONL sample of in and writes them to out.
func (c *Client) Run(ctx context.Context, in io.Reader, out io.Writer) (runner.Summary, error) {
	return c.NewRunner(runner.Options{}).Run(ctx, in, out)
}

// Close releases the scorer (cache store and encoder) and the backend.
func (c *Client) Close() error {
	var errs []error
	if c.scorer != nil {
		errs = append(errs, c.scorer.Close())
	}
	if c.graph != nil {
		errs = append(errs, c.graph.Close())
	}
	return errors.Join(errs...)
}
