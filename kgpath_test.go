package kgpath

import (
	"bytes"
	"context"
	"math/rand/v2"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soundprediction/kgpath/pkg/config"
	"github.com/soundprediction/kgpath/pkg/driver"
	"github.com/soundprediction/kgpath/pkg/encoder"
	"github.com/soundprediction/kgpath/pkg/types"
)

func newGraph(t *testing.T) *driver.MemoryDriver {
	t.Helper()
	g := driver.NewMemoryDriver()
	require.NoError(t, g.AddTriples(context.Background(), []types.Triplet{
		types.NewTriplet("Q1", "P50", "Q2"),
		types.NewTriplet("Q1", "P31", "Q3"),
		types.NewTriplet("Q3", "P279", "Q2"),
	}))
	require.NoError(t, g.SetLabels(context.Background(), map[string]string{
		"P50": "author", "P31": "instance of", "P279": "subclass of",
	}))
	return g
}

func newEncoder() encoder.Encoder {
	tok := encoder.NewTokenizer(encoder.TokenizerConfig{Lowercase: true, HashBuckets: 64}, nil)
	return encoder.NewNativeEncoder("test", "", 16, tok, rand.New(rand.NewPCG(3, 5)))
}

func TestClientEnumerate(t *testing.T) {
	cfg := config.Default()
	c, err := NewClient(context.Background(), cfg, Options{Graph: newGraph(t)})
	require.NoError(t, err)
	defer c.Close()

	assert.Nil(t, c.Scorer())
	assert.NotNil(t, c.Loader())

	sample := &types.Sample{ID: "1", Question: "q", QuestionEntities: types.Entities("Q1"), AnswerEntities: types.Entities("Q2")}
	paths, err := c.FindPaths(context.Background(), sample, 0)
	require.NoError(t, err)
	require.Len(t, paths, 2)
	assert.Len(t, paths[0], 1)

	_, err = c.Score(context.Background(), "q", types.RelationHistory{}, "author")
	assert.ErrorIs(t, err, ErrNoScorer)
}

func TestClientBeamLoadsScorer(t *testing.T) {
	cfg := config.Default()
	cfg.Search.Strategy = "beam"
	c, err := NewClient(context.Background(), cfg, Options{Graph: newGraph(t), Encoder: newEncoder()})
	require.NoError(t, err)
	defer c.Close()

	require.NotNil(t, c.Scorer())
	sample := &types.Sample{ID: "1", Question: "who wrote it?", QuestionEntities: types.Entities("Q1"), AnswerEntities: types.Entities("Q2")}
	paths, err := c.FindPaths(context.Background(), sample, 10)
	require.NoError(t, err)
	require.NotEmpty(t, paths)
	for _, p := range paths {
		assert.Equal(t, types.Entity("Q1"), p.Source())
		assert.Equal(t, types.Entity("Q2"), p.Destination())
	}

	score, err := c.Score(context.Background(), "who wrote it?", types.RelationHistory{}, "author")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, score, -1.0)
	assert.LessOrEqual(t, score, 1.0)
}

func TestClientMissingModelIsFatal(t *testing.T) {
	cfg := config.Default()
	cfg.Encoder.Model = t.TempDir()
	_, err := NewClient(context.Background(), cfg, Options{Graph: newGraph(t), RequireScorer: true})
	var mle *encoder.ModelLoadError
	assert.ErrorAs(t, err, &mle)
}

func TestClientRun(t *testing.T) {
	cfg := config.Default()
	c, err := NewClient(context.Background(), cfg, Options{Graph: newGraph(t)})
	require.NoError(t, err)
	defer c.Close()

	in := strings.NewReader(`{"id":"a","question":"q","question_entities":["Q1"],"answer_entities":["Q2"],"split":"test"}
{"id":"b","question":"q","question_entities":["Q3"],"answer_entities":["Q2"]}
`)
	var out bytes.Buffer
	summary, err := c.Run(context.Background(), in, &out)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Processed)
	assert.Equal(t, 0, summary.Skipped)

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], `"split":"test"`)
	assert.Contains(t, lines[1], `"paths":[[["Q3","P279","Q2"]]]`)
}

func TestClientUnknownStrategy(t *testing.T) {
	cfg := config.Default()
	cfg.Search.Strategy = "dfs"
	_, err := NewClient(context.Background(), cfg, Options{Graph: newGraph(t)})
	assert.ErrorIs(t, err, config.ErrUnknownStrategy)
}
