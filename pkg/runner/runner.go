// Package runner drives path search over a JSONL stream of samples.
//
// Each sample is an isolated unit of work: a failure, panic or timeout in
// one sample is logged, counted as skipped and leaves the sample out of the
// output, and the run moves on. Output order always matches input order.
package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/soundprediction/kgpath/pkg/config"
	"github.com/soundprediction/kgpath/pkg/jsonl"
	"github.com/soundprediction/kgpath/pkg/metrics"
	"github.com/soundprediction/kgpath/pkg/search"
	"github.com/soundprediction/kgpath/pkg/telemetry"
	"github.com/soundprediction/kgpath/pkg/types"
	"github.com/soundprediction/kgpath/pkg/utils"
)

// DefaultChunkSize is the number of samples handed to the worker pool at
// once.
const DefaultChunkSize = 64

// SampleProcessingError reports a sample that was skipped.
type SampleProcessingError struct {
	SampleID string
	Line     int
	Err      error
}

func (e *SampleProcessingError) Error() string {
	if e.SampleID == "" {
		return fmt.Sprintf("sample at line %d: %v", e.Line, e.Err)
	}
	return fmt.Sprintf("sample %s (line %d): %v", e.SampleID, e.Line, e.Err)
}

func (e *SampleProcessingError) Unwrap() error { return e.Err }

// Options configures a Runner.
type Options struct {
	Workers       int
	ChunkSize     int
	SampleTimeout time.Duration
	MaxPath       int
	RunID         string
	// RepairInput passes undecodable lines through jsonrepair. Off by
	// default; truncated lines are skipped either way.
	RepairInput   bool

	Recorder metrics.Recorder
	Tracker  *telemetry.SampleTracker
	Paths    *telemetry.PathsWriter
	Logger   *slog.Logger
}

// OptionsFromConfig fills the numeric options from configuration.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Workers:       cfg.Runner.Workers,
		ChunkSize:     cfg.Runner.ChunkSize,
		SampleTimeout: cfg.Runner.SampleTimeout,
		MaxPath:       cfg.Search.MaxPath,
		RepairInput:   cfg.Runner.RepairInput,
	}
}

// Summary counts the outcomes of a run.
type Summary struct {
	RunID     string
	Processed int
	Skipped   int
	Repaired  int
	Duration  time.Duration
}

// Total is Processed + Skipped.
func (s Summary) Total() int { return s.Processed + s.Skipped }

func (s Summary) String() string {
	return fmt.Sprintf("Processed %d samples, skipped %d samples, total %d samples", s.Processed, s.Skipped, s.Total())
}

// Runner finds paths for every sample of an input stream.
type Runner struct {
	finder   search.PathFinder
	opts     Options
	pool     *utils.WorkerPool[item, *types.Sample]
	recorder metrics.Recorder
	logger   *slog.Logger
}

type item struct {
	line   int
	sample *types.Sample
}

// New creates a runner. Workers <= 0 runs samples one at a time.
func New(finder search.PathFinder, opts Options) *Runner {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = DefaultChunkSize
	}
	if opts.RunID == "" {
		opts.RunID = utils.GenerateUUID()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	r := &Runner{
		finder:   finder,
		opts:     opts,
		recorder: metrics.OrNoop(opts.Recorder),
		logger:   logger.With("run_id", opts.RunID),
	}
	r.pool = utils.NewWorkerPool(opts.Workers, func(ctx context.Context, it item) (*types.Sample, error) {
		return r.ProcessSample(ctx, it.sample, it.line)
	})
	return r
}

// RunID identifies this runner's run.
func (r *Runner) RunID() string { return r.opts.RunID }

// ProcessSample finds the paths of one sample under the per-sample
// deadline and sets sample.Paths. Errors are *SampleProcessingError.
func (r *Runner) ProcessSample(ctx context.Context, sample *types.Sample, line int) (*types.Sample, error) {
	ctx = context.WithValue(ctx, types.RunIDKey, r.opts.RunID)
	ctx = context.WithValue(ctx, types.SampleIDKey, sample.ID)
	if r.opts.SampleTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.opts.SampleTimeout)
		defer cancel()
	}

	paths, err := r.finder.FindPaths(ctx, sample, r.opts.MaxPath)
	if err != nil {
		return nil, &SampleProcessingError{SampleID: sample.ID, Line: line, Err: err}
	}
	if paths == nil {
		paths = []types.Path{}
	}
	sample.Paths = paths
	return sample, nil
}

// Run reads samples from in and writes every processed sample to out. It
// returns an error only when reading, writing or the context fails; sample
// failures are counted in the Summary.
func (r *Runner) Run(ctx context.Context, in io.Reader, out io.Writer) (Summary, error) {
	start := time.Now()
	summary := Summary{RunID: r.opts.RunID}
	reader := jsonl.NewReader[types.Sample](in, r.opts.RepairInput)
	writer := jsonl.NewWriter(out)

	r.logger.Info("Starting path search run", "workers", r.opts.Workers, "chunk_size", r.opts.ChunkSize, "max_path", r.opts.MaxPath)

	finish := func(err error) (Summary, error) {
		summary.Repaired = reader.Repaired()
		summary.Duration = time.Since(start)
		if ferr := writer.Flush(); ferr != nil && err == nil {
			err = fmt.Errorf("failed to flush output: %w", ferr)
		}
		r.logger.Info(summary.String(), "repaired", summary.Repaired, "duration", summary.Duration)
		return summary, err
	}

	eof := false
	for !eof {
		if err := ctx.Err(); err != nil {
			return finish(err)
		}

		chunk := make([]item, 0, r.opts.ChunkSize)
		for len(chunk) < r.opts.ChunkSize {
			l, err := reader.Next()
			if errors.Is(err, io.EOF) {
				eof = true
				break
			}
			if err != nil {
				return finish(err)
			}
			if l.Err != nil {
				r.skip(&summary, &SampleProcessingError{Line: l.Number, Err: l.Err}, 0)
				continue
			}
			s := l.Value
			chunk = append(chunk, item{line: l.Number, sample: &s})
		}
		if len(chunk) == 0 {
			continue
		}

		chunkStart := time.Now()
		results := r.pool.Process(ctx, chunk)
		if err := ctx.Err(); err != nil {
			// Samples that finished before cancellation are still written.
			// The rest are not counted.
			for i, res := range results {
				if res.Err == nil {
					if werr := r.emit(writer, &summary, res.Value, chunk[i].line, 0); werr != nil {
						return finish(werr)
					}
				}
			}
			return finish(err)
		}

		perSample := time.Since(chunkStart) / time.Duration(len(chunk))
		for i, res := range results {
			if res.Err != nil {
				var spe *SampleProcessingError
				if !errors.As(res.Err, &spe) {
					spe = &SampleProcessingError{SampleID: chunk[i].sample.ID, Line: chunk[i].line, Err: res.Err}
				}
				r.skip(&summary, spe, perSample)
				continue
			}
			if err := r.emit(writer, &summary, res.Value, chunk[i].line, perSample); err != nil {
				return finish(err)
			}
		}
		if err := writer.Flush(); err != nil {
			return finish(fmt.Errorf("failed to flush output: %w", err))
		}
	}
	return finish(nil)
}

func (r *Runner) emit(w *jsonl.Writer, summary *Summary, sample *types.Sample, line int, took time.Duration) error {
	if err := w.Write(sample); err != nil {
		// An unencodable sample is skipped like any other failure.
		r.skip(summary, &SampleProcessingError{SampleID: sample.ID, Line: line, Err: err}, took)
		return nil
	}
	if r.opts.Paths != nil {
		if err := r.opts.Paths.WriteSample(sample); err != nil {
			return err
		}
	}
	summary.Processed++
	r.recorder.IncSamples(metrics.OutcomeProcessed)
	r.recorder.ObserveSampleSeconds(true, took.Seconds())
	r.opts.Tracker.Record(telemetry.SampleOutcome{
		RunID:      r.opts.RunID,
		SampleID:   sample.ID,
		Line:       line,
		Status:     metrics.OutcomeProcessed,
		Paths:      len(sample.Paths),
		DurationMs: took.Milliseconds(),
	})
	r.logger.Debug("Sample processed", "sample_id", sample.ID, "line", line, "paths", len(sample.Paths))
	return nil
}

func (r *Runner) skip(summary *Summary, err *SampleProcessingError, took time.Duration) {
	summary.Skipped++
	r.recorder.IncSamples(metrics.OutcomeSkipped)
	r.recorder.ObserveSampleSeconds(false, took.Seconds())
	r.opts.Tracker.Record(telemetry.SampleOutcome{
		RunID:      r.opts.RunID,
		SampleID:   err.SampleID,
		Line:       err.Line,
		Status:     metrics.OutcomeSkipped,
		DurationMs: took.Milliseconds(),
		Error:      err.Err.Error(),
	})
	r.logger.Error("Skipping sample", "sample_id", err.SampleID, "line", err.Line, "error", err.Err)
}
