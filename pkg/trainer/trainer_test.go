package trainer

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soundprediction/kgpath/pkg/config"
	"github.com/soundprediction/kgpath/pkg/encoder"
	"github.com/soundprediction/kgpath/pkg/metrics"
	"github.com/soundprediction/kgpath/pkg/scorer"
	"github.com/soundprediction/kgpath/pkg/types"
)

var relations = map[string]string{
	"where was %s born":      "place of birth",
	"who is %s married to":   "spouse",
	"which company hired %s": "employer",
}

func syntheticExamples(names int) []Example {
	var out []Example
	for i := 0; i < names; i++ {
		name := fmt.Sprintf("person%d", i)
		for _, tmpl := range []string{"where was %s born", "who is %s married to", "which company hired %s"} {
			pos := relations[tmpl]
			var negs []string
			for _, r := range []string{"place of birth", "spouse", "employer"} {
				if r != pos {
					negs = append(negs, r)
				}
			}
			out = append(out, NewExample(fmt.Sprintf(tmpl, name), types.RelationHistory{}, pos, negs))
		}
	}
	return out
}

func testConfig(t *testing.T) config.TrainerConfig {
	return config.TrainerConfig{
		ModelNameOrPath: "intfloat/e5-small",
		OutputDir:       filepath.Join(t.TempDir(), "scorer"),
		MaxEpochs:       8,
		BatchSize:       4,
		LearningRate:    0.05,
		Temperature:     0.05,
		TrainRatio:      0.95,
		Dimensions:      16,
		Workers:         3,
		Seed:            42,
	}
}

type lossRecorder struct {
	metrics.Noop
	mu     sync.Mutex
	losses map[string][]float64
}

func (r *lossRecorder) SetTrainingLoss(split string, _ int, loss float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.losses == nil {
		r.losses = make(map[string][]float64)
	}
	r.losses[split] = append(r.losses[split], loss)
}

func TestExampleTexts(t *testing.T) {
	ex := NewExample("who wrote it", types.MustRelationHistory("author", "genre"), "publisher", []string{"spouse"})
	assert.Equal(t, "who wrote it [SEP] author # genre", ex.Query)
	assert.Equal(t, []string{
		"query: who wrote it [SEP] author # genre",
		"relation: publisher",
		"relation: spouse",
	}, ex.Texts())
	assert.Equal(t, scorer.QueryText("who wrote it", types.MustRelationHistory("author", "genre")), ex.Texts()[0])
}

func TestReadExamples(t *testing.T) {
	in := strings.Join([]string{
		`{"query": "q1", "positive": "p", "negatives": ["n"]}`,
		`{"query": "", "positive": "p"}`,
		`{"query": "q2", "positive": "p", "negatives": ["n",],}`,
		`not json`,
		`{"query": "q3", "positive": "p"}`,
	}, "\n")

	examples, skipped, err := ReadExamples(strings.NewReader(in), nil)
	require.NoError(t, err)
	require.Len(t, examples, 3)
	assert.Equal(t, 2, skipped)
	assert.Equal(t, "q2", examples[1].Query)
	assert.Empty(t, examples[2].Negatives)
}

func TestLoadExamplesMissingFile(t *testing.T) {
	_, _, err := LoadExamples(filepath.Join(t.TempDir(), "missing.jsonl"), nil)
	assert.Error(t, err)
}

func TestSplit(t *testing.T) {
	examples := syntheticExamples(20)
	require.Len(t, examples, 60)

	train, val := Split(examples, 0.95)
	assert.Len(t, train, 57)
	assert.Len(t, val, 3)
	assert.Equal(t, examples[57], val[0])

	train, val = Split(examples[:1], 0.95)
	assert.Len(t, train, 1)
	assert.Empty(t, val)

	train, _ = Split(examples, 0)
	assert.Len(t, train, 60)
}

func TestContrastiveGradientMatchesFiniteDifference(t *testing.T) {
	tcfg := encoder.TokenizerConfig{Lowercase: true, MaxLength: 32}
	ex := NewExample("where was ada born", types.RelationHistory{}, "place of birth", []string{"spouse", "employer"})
	tok := encoder.NewTokenizer(tcfg, encoder.BuildVocab(tcfg, ex.Texts(), 0, 1))
	model := encoder.NewNativeEncoder("t", "", 8, tok, newRand(3))
	seqs := tokenize(tok, ex.Texts(), 0, nil)

	const temp = 0.5
	res := contrastive(model, seqs, temp, true)
	require.NotEmpty(t, res.grad)

	lossAt := func(id, dim int, delta float32) float64 {
		model.Update([]int{id}, func(_ int, row []float32) { row[dim] += delta })
		defer model.Update([]int{id}, func(_ int, row []float32) { row[dim] -= delta })
		return contrastive(model, seqs, temp, false).loss
	}

	const h = 1e-3
	for _, id := range res.grad.ids()[:4] {
		for dim := 0; dim < 8; dim += 3 {
			numeric := (lossAt(id, dim, h) - lossAt(id, dim, -h)) / (2 * h)
			assert.InDelta(t, numeric, res.grad[id][dim], 1e-3, "row %d dim %d", id, dim)
		}
	}
}

func TestContrastiveSingleCandidate(t *testing.T) {
	tcfg := encoder.TokenizerConfig{MaxLength: 32}
	tok := encoder.NewTokenizer(tcfg, []string{"query", ":", "a", "relation", "b"})
	model := encoder.NewNativeEncoder("t", "", 4, tok, newRand(1))

	res := contrastive(model, tokenize(tok, []string{"query: a", "relation: b"}, 0, nil), 0.05, true)
	assert.InDelta(t, 0, res.loss, 1e-12)
	assert.True(t, res.correct)
	for id, g := range res.grad {
		for _, x := range g {
			assert.Zero(t, x, "row %d", id)
		}
	}
}

func TestTokenDropoutKeepsCLS(t *testing.T) {
	tok := encoder.NewTokenizer(encoder.TokenizerConfig{MaxLength: 32}, []string{"a", "b", "c"})
	seqs := tokenize(tok, []string{"a b c a b c"}, 0.9999, newRand(5))
	require.NotEmpty(t, seqs[0])
	assert.Equal(t, tok.Encode("x")[0], seqs[0][0])
	assert.Less(t, len(seqs[0]), 7)

	assert.Equal(t, tok.Encode("a b c"), tokenize(tok, []string{"a b c"}, 0.5, nil)[0], "no rng means no dropout")
}

func TestFitReducesLossAndSavesArtifact(t *testing.T) {
	examples := syntheticExamples(10)
	cfg := testConfig(t)
	rec := &lossRecorder{}

	tr, err := New(examples, Options{Config: cfg, Recorder: rec})
	require.NoError(t, err)
	ctx := context.Background()

	before, _, err := tr.Evaluate(ctx, examples)
	require.NoError(t, err)

	report, err := tr.Fit(ctx, examples)
	require.NoError(t, err)
	require.Len(t, report.Epochs, cfg.MaxEpochs)
	assert.Equal(t, 28, report.Train)
	assert.Equal(t, 2, report.Validation)
	assert.Less(t, report.Epochs[len(report.Epochs)-1].TrainLoss, report.Epochs[0].TrainLoss)
	assert.Equal(t, 7, report.Epochs[0].Steps)
	assert.Len(t, rec.losses["train"], cfg.MaxEpochs)
	assert.Len(t, rec.losses["validation"], cfg.MaxEpochs)

	after, _, err := tr.Evaluate(ctx, examples)
	require.NoError(t, err)
	assert.Less(t, after, before)

	loaded, err := encoder.LoadNative(cfg.OutputDir)
	require.NoError(t, err)
	assert.Equal(t, DefaultModelName, loaded.Name())
	assert.Equal(t, "intfloat/e5-small", loaded.Manifest().BaseModel)
	assert.Equal(t, 16, loaded.Dimensions())

	logs, err := ReadLog(filepath.Join(cfg.OutputDir, LogFile))
	require.NoError(t, err)
	require.Len(t, logs, cfg.MaxEpochs)
	assert.InDelta(t, report.Epochs[0].TrainLoss, logs[0].TrainLoss, 1e-12)

	// The saved artifact scores exactly like the in-memory model.
	sc := scorer.New(loaded, scorer.Options{})
	live := scorer.New(tr.Model(), scorer.Options{})
	q := "where was person3 born [SEP] "
	a, err := sc.Score(ctx, q, types.RelationHistory{}, "place of birth")
	require.NoError(t, err)
	b, err := live.Score(ctx, q, types.RelationHistory{}, "place of birth")
	require.NoError(t, err)
	assert.InDelta(t, b, a, 1e-6)
	assert.False(t, math.IsNaN(a))
}

func TestFitDeterministic(t *testing.T) {
	examples := syntheticExamples(6)
	run := func() ([]EpochLog, []float32) {
		cfg := testConfig(t)
		cfg.MaxEpochs = 2
		cfg.Dropout = 0.2
		cfg.OutputDir = ""
		tr, err := New(examples, Options{Config: cfg})
		require.NoError(t, err)
		report, err := tr.Fit(context.Background(), examples)
		require.NoError(t, err)
		row := make([]float32, cfg.Dimensions)
		tr.Model().Row(2, row)
		for i := range report.Epochs {
			report.Epochs[i].DurationMs = 0
		}
		return report.Epochs, row
	}

	logs1, row1 := run()
	logs2, row2 := run()
	assert.Equal(t, logs1, logs2)
	assert.Equal(t, row1, row2)
}

func TestFitFastDevRun(t *testing.T) {
	examples := syntheticExamples(20)
	cfg := testConfig(t)
	cfg.FastDevRun = true

	tr, err := New(examples, Options{Config: cfg})
	require.NoError(t, err)
	report, err := tr.Fit(context.Background(), examples)
	require.NoError(t, err)

	require.Len(t, report.Epochs, 1)
	assert.Equal(t, 1, report.Epochs[0].Steps)
	assert.Equal(t, cfg.BatchSize, report.Epochs[0].TrainExamples)
	assert.Equal(t, 3, report.Epochs[0].ValExamples)
}

func TestFitContinuesFromArtifact(t *testing.T) {
	examples := syntheticExamples(4)
	cfg := testConfig(t)
	cfg.MaxEpochs = 1

	first, err := New(examples, Options{Config: cfg})
	require.NoError(t, err)
	_, err = first.Fit(context.Background(), examples)
	require.NoError(t, err)

	cfg2 := cfg
	cfg2.ModelNameOrPath = cfg.OutputDir
	cfg2.OutputDir = filepath.Join(t.TempDir(), "second")
	second, err := New(examples, Options{Config: cfg2})
	require.NoError(t, err)
	assert.Equal(t, first.Model().Rows(), second.Model().Rows())
	assert.Equal(t, first.Model().Tokenizer().Vocab(), second.Model().Tokenizer().Vocab())
}

func TestNewBrokenArtifactIsModelLoadError(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, encoder.ManifestFile), []byte("format: [broken"), 0o644))
	cfg := testConfig(t)
	cfg.ModelNameOrPath = dir

	_, err := New(syntheticExamples(1), Options{Config: cfg})
	var mle *encoder.ModelLoadError
	require.ErrorAs(t, err, &mle)
	assert.Equal(t, dir, mle.Path)
}

func TestNewRequiresExamples(t *testing.T) {
	_, err := New(nil, Options{Config: testConfig(t)})
	assert.ErrorIs(t, err, ErrNoExamples)
}

func TestFitCancelled(t *testing.T) {
	examples := syntheticExamples(4)
	tr, err := New(examples, Options{Config: testConfig(t)})
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = tr.Fit(ctx, examples)
	assert.ErrorIs(t, err, context.Canceled)
}
