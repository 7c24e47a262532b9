// Package trainer fits the native relation encoder with a contrastive
// objective: a query should be closer to its positive relation than to
// any of its negatives.
package trainer

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/soundprediction/kgpath/pkg/config"
	"github.com/soundprediction/kgpath/pkg/encoder"
	"github.com/soundprediction/kgpath/pkg/metrics"
	"github.com/soundprediction/kgpath/pkg/utils"
)

// Defaults for a freshly initialized model.
const (
	DefaultVocabSize   = 50000
	DefaultHashBuckets = 2048
	DefaultDimensions  = 128
	DefaultModelName   = "kgpath-relation-scorer"
	adagradEps         = 1e-8
)

// Options configures a Trainer.
type Options struct {
	Config   config.TrainerConfig
	Recorder metrics.Recorder
	Logger   *slog.Logger
}

// Trainer owns the model being fit and its optimizer state.
type Trainer struct {
	cfg      config.TrainerConfig
	model    *encoder.NativeEncoder
	rng      *rand.Rand
	accum    map[int][]float64
	recorder metrics.Recorder
	logger   *slog.Logger
}

// Report summarizes a training run.
type Report struct {
	Epochs     []EpochLog
	Train      int
	Validation int
	OutputDir  string
}

// New prepares a trainer. If cfg.ModelNameOrPath is a native artifact it
// is loaded and training continues from it; a load failure is a
// *encoder.ModelLoadError. Otherwise a vocabulary is built from examples
// and the model starts from random weights, with ModelNameOrPath recorded
// as its base model.
func New(examples []Example, opts Options) (*Trainer, error) {
	cfg := withDefaults(opts.Config)
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if len(examples) == 0 {
		return nil, ErrNoExamples
	}

	rng := rand.New(rand.NewPCG(uint64(cfg.Seed), uint64(cfg.Seed)^0x9e3779b97f4a7c15))

	var model *encoder.NativeEncoder
	if encoder.IsArtifact(cfg.ModelNameOrPath) {
		m, err := encoder.LoadNative(cfg.ModelNameOrPath)
		if err != nil {
			return nil, err
		}
		model = m
		logger.Info("Continuing training from artifact", "path", cfg.ModelNameOrPath, "rows", m.Rows(), "dimensions", m.Dimensions())
	} else {
		tcfg := encoder.TokenizerConfig{Lowercase: true, MaxLength: cfg.MaxLength, HashBuckets: DefaultHashBuckets}
		var texts []string
		for _, ex := range examples {
			texts = append(texts, ex.Texts()...)
		}
		tok := encoder.NewTokenizer(tcfg, encoder.BuildVocab(tcfg, texts, DefaultVocabSize, 1))
		model = encoder.NewNativeEncoder(DefaultModelName, cfg.ModelNameOrPath, cfg.Dimensions, tok, rng)
		logger.Info("Initialized encoder", "base_model", cfg.ModelNameOrPath, "vocab", tok.VocabSize(), "dimensions", cfg.Dimensions)
	}

	return &Trainer{
		cfg:      cfg,
		model:    model,
		rng:      rng,
		accum:    make(map[int][]float64),
		recorder: metrics.OrNoop(opts.Recorder),
		logger:   logger,
	}, nil
}

func withDefaults(cfg config.TrainerConfig) config.TrainerConfig {
	if cfg.MaxEpochs <= 0 {
		cfg.MaxEpochs = 10
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 16
	}
	if cfg.MaxLength <= 0 {
		cfg.MaxLength = encoder.DefaultMaxLength
	}
	if cfg.LearningRate <= 0 {
		cfg.LearningRate = 0.05
	}
	if cfg.Temperature <= 0 {
		cfg.Temperature = 0.05
	}
	if cfg.TrainRatio <= 0 || cfg.TrainRatio > 1 {
		cfg.TrainRatio = 0.95
	}
	if cfg.Dropout < 0 || cfg.Dropout >= 1 {
		cfg.Dropout = 0
	}
	if cfg.Dimensions <= 0 {
		cfg.Dimensions = DefaultDimensions
	}
	if cfg.Workers <= 0 {
		cfg.Workers = utils.GetSemaphoreLimit()
	}
	return cfg
}

// Model returns the encoder being trained.
func (t *Trainer) Model() *encoder.NativeEncoder { return t.model }

// Fit trains on the first TrainRatio of examples, validates on the rest
// after every epoch, and saves the artifact and training log to
// OutputDir when it is set.
func (t *Trainer) Fit(ctx context.Context, examples []Example) (*Report, error) {
	train, val := Split(examples, t.cfg.TrainRatio)
	if len(train) == 0 {
		return nil, ErrNoExamples
	}
	report := &Report{Train: len(train), Validation: len(val), OutputDir: t.cfg.OutputDir}

	epochs := t.cfg.MaxEpochs
	if t.cfg.FastDevRun {
		epochs = 1
	}
	t.logger.Info("Starting training",
		"train", len(train), "validation", len(val), "epochs", epochs,
		"batch_size", t.cfg.BatchSize, "fast_dev_run", t.cfg.FastDevRun)

	order := make([]int, len(train))
	for i := range order {
		order[i] = i
	}

	for epoch := 1; epoch <= epochs; epoch++ {
		start := time.Now()
		t.rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })

		var lossSum float64
		var seen, steps int
		for b := 0; b < len(order); b += t.cfg.BatchSize {
			if err := ctx.Err(); err != nil {
				return report, err
			}
			end := min(b+t.cfg.BatchSize, len(order))
			batch := make([]Example, 0, end-b)
			for _, i := range order[b:end] {
				batch = append(batch, train[i])
			}
			loss, err := t.Step(ctx, batch)
			if err != nil {
				return report, err
			}
			lossSum += loss * float64(len(batch))
			seen += len(batch)
			steps++
			if t.cfg.FastDevRun {
				break
			}
		}

		entry := EpochLog{
			Epoch:         epoch,
			TrainLoss:     lossSum / float64(seen),
			TrainExamples: seen,
			Steps:         steps,
		}
		evalSet := val
		if t.cfg.FastDevRun && len(evalSet) > t.cfg.BatchSize {
			evalSet = evalSet[:t.cfg.BatchSize]
		}
		if len(evalSet) > 0 {
			vloss, acc, err := t.Evaluate(ctx, evalSet)
			if err != nil {
				return report, err
			}
			entry.ValLoss, entry.ValAccuracy, entry.ValExamples = vloss, acc, len(evalSet)
			t.recorder.SetTrainingLoss("validation", epoch, vloss)
		}
		entry.DurationMs = time.Since(start).Milliseconds()
		t.recorder.SetTrainingLoss("train", epoch, entry.TrainLoss)
		report.Epochs = append(report.Epochs, entry)

		t.logger.Info("Epoch finished",
			"epoch", epoch, "train_loss", entry.TrainLoss, "val_loss", entry.ValLoss,
			"val_accuracy", entry.ValAccuracy, "steps", steps, "duration_ms", entry.DurationMs)
	}

	if t.cfg.OutputDir != "" {
		if err := t.model.Save(t.cfg.OutputDir); err != nil {
			return report, fmt.Errorf("failed to save encoder: %w", err)
		}
		if err := WriteLog(filepath.Join(t.cfg.OutputDir, LogFile), report.Epochs); err != nil {
			return report, err
		}
		t.logger.Info("Saved encoder", "path", t.cfg.OutputDir)
	}
	return report, nil
}

// Step runs one optimizer step over batch and returns its mean loss.
// Per-example gradients are computed concurrently and summed in batch
// order, so a fixed seed gives identical weights.
func (t *Trainer) Step(ctx context.Context, batch []Example) (float64, error) {
	seeds := make([]uint64, len(batch))
	for i := range seeds {
		seeds[i] = t.rng.Uint64()
	}
	results, err := t.forward(ctx, batch, func(i int) *rand.Rand {
		return rand.New(rand.NewPCG(seeds[i], uint64(i)))
	}, true)
	if err != nil {
		return 0, err
	}

	total := make(gradient)
	var loss float64
	for _, r := range results {
		total.merge(r.grad)
		loss += r.loss
	}
	t.apply(total, float64(len(batch)))
	return loss / float64(len(batch)), nil
}

// Evaluate returns the mean loss and the fraction of examples whose
// positive scores highest. Dropout is off.
func (t *Trainer) Evaluate(ctx context.Context, examples []Example) (float64, float64, error) {
	if len(examples) == 0 {
		return 0, 0, nil
	}
	results, err := t.forward(ctx, examples, nil, false)
	if err != nil {
		return 0, 0, err
	}
	var loss float64
	correct := 0
	for _, r := range results {
		loss += r.loss
		if r.correct {
			correct++
		}
	}
	n := float64(len(examples))
	return loss / n, float64(correct) / n, nil
}

func (t *Trainer) forward(ctx context.Context, examples []Example, rngFor func(int) *rand.Rand, backward bool) ([]result, error) {
	results := make([]result, len(examples))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(t.cfg.Workers)
	tok := t.model.Tokenizer()
	for i, ex := range examples {
		g.Go(func() (err error) {
			defer utils.RecoverAsError(&err)
			if err := ctx.Err(); err != nil {
				return err
			}
			var rng *rand.Rand
			if rngFor != nil {
				rng = rngFor(i)
			}
			seqs := tokenize(tok, ex.Texts(), t.cfg.Dropout, rng)
			results[i] = contrastive(t.model, seqs, t.cfg.Temperature, backward)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// apply performs a sparse Adagrad update with the gradient averaged over n
// examples.
func (t *Trainer) apply(grad gradient, n float64) {
	lr := t.cfg.LearningRate
	t.model.Update(grad.ids(), func(id int, row []float32) {
		g := grad[id]
		acc, ok := t.accum[id]
		if !ok {
			acc = make([]float64, len(row))
			t.accum[id] = acc
		}
		for i := range row {
			gi := g[i] / n
			acc[i] += gi * gi
			row[i] -= float32(lr * gi / (math.Sqrt(acc[i]) + adagradEps))
		}
	})
}
