package search

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soundprediction/kgpath/pkg/config"
	"github.com/soundprediction/kgpath/pkg/driver"
	"github.com/soundprediction/kgpath/pkg/types"
)

var errTimeout = errors.New("i/o timeout")

func newGraph(t *testing.T, triples [][3]string, labels map[string]string) *driver.MemoryDriver {
	t.Helper()
	g := driver.NewMemoryDriver()
	ts := make([]types.Triplet, len(triples))
	for i, tr := range triples {
		ts[i] = types.NewTriplet(tr[0], tr[1], tr[2])
	}
	require.NoError(t, g.AddTriples(context.Background(), ts))
	if labels != nil {
		require.NoError(t, g.SetLabels(context.Background(), labels))
	}
	return g
}

// failingGraph fails one-hop lookups for the listed pairs.
type failingGraph struct {
	*driver.MemoryDriver
	fail  map[[2]types.Entity]bool
	mu    sync.Mutex
	calls int
}

func (f *failingGraph) SearchOneHop(ctx context.Context, src, dst types.Entity) ([]types.Path, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.fail[[2]types.Entity{src, dst}] {
		return nil, &driver.BackendQueryError{Op: driver.OpOneHop, Src: string(src), Dst: string(dst), Err: errTimeout}
	}
	return f.MemoryDriver.SearchOneHop(ctx, src, dst)
}

// repeatingGraph returns every one-hop row twice.
type repeatingGraph struct {
	*driver.MemoryDriver
}

func (r *repeatingGraph) SearchOneHop(ctx context.Context, src, dst types.Entity) ([]types.Path, error) {
	paths, err := r.MemoryDriver.SearchOneHop(ctx, src, dst)
	if err != nil {
		return nil, err
	}
	return append(paths, paths...), nil
}

// labelScorer scores a candidate by its label alone.
type labelScorer struct {
	scores map[string]float64
	mu     sync.Mutex
	calls  int
}

func (s *labelScorer) ScoreBatch(_ context.Context, _ string, _ types.RelationHistory, candidates []string) ([]float64, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	out := make([]float64, len(candidates))
	for i, c := range candidates {
		out[i] = s.scores[c]
	}
	return out, nil
}

func sample(src, dst []string) *types.Sample {
	return &types.Sample{
		ID:               "s1",
		Question:         "where was he born?",
		QuestionEntities: types.Entities(src...),
		AnswerEntities:   types.Entities(dst...),
	}
}

func assertEndpoints(t *testing.T, paths []types.Path, s *types.Sample) {
	t.Helper()
	sources := types.NewEntitySet(s.QuestionEntities)
	answers := types.NewEntitySet(s.AnswerEntities)
	for _, p := range paths {
		require.NotEmpty(t, p)
		assert.True(t, p.Connected(), "path %s", p)
		assert.True(t, sources.Contains(p.Source()), "path %s", p)
		assert.True(t, answers.Contains(p.Destination()), "path %s", p)
	}
}

func TestSearchOneHopDirectEdge(t *testing.T) {
	g := newGraph(t, [][3]string{{"Q1", "P31", "Q2"}}, nil)
	e := NewEnumerator(g, EnumeratorOptions{})

	paths, err := e.SearchOneHop(context.Background(), "Q1", "Q2")
	require.NoError(t, err)
	assert.Equal(t, []types.Path{{types.NewTriplet("Q1", "P31", "Q2")}}, paths)
}

func TestSearchTwoHopViaIntermediate(t *testing.T) {
	g := newGraph(t, [][3]string{{"Q1", "P17", "Q5"}, {"Q5", "P131", "Q2"}}, nil)
	e := NewEnumerator(g, EnumeratorOptions{})
	ctx := context.Background()

	one, err := e.SearchOneHop(ctx, "Q1", "Q2")
	require.NoError(t, err)
	assert.Empty(t, one)

	two, err := e.SearchTwoHop(ctx, "Q1", "Q2")
	require.NoError(t, err)
	assert.Equal(t, []types.Path{{
		types.NewTriplet("Q1", "P17", "Q5"),
		types.NewTriplet("Q5", "P131", "Q2"),
	}}, two)
}

func TestEnumeratePathsOneHopBeforeTwoHop(t *testing.T) {
	g := newGraph(t, [][3]string{
		{"Q1", "P17", "Q5"},
		{"Q5", "P131", "Q2"},
		{"Q1", "P19", "Q2"},
	}, nil)
	e := NewEnumerator(g, EnumeratorOptions{})

	paths, err := e.EnumeratePaths(context.Background(), types.Entities("Q1"), types.Entities("Q2"), 10)
	require.NoError(t, err)
	require.Len(t, paths, 2)
	assert.Equal(t, types.Path{types.NewTriplet("Q1", "P19", "Q2")}, paths[0])
	assert.Len(t, paths[1], 2)
}

func TestEnumeratePathsMaxPathTruncation(t *testing.T) {
	var triples [][3]string
	for i := 1; i <= 5; i++ {
		triples = append(triples, [3]string{"Q1", fmt.Sprintf("P%d", i), "Q2"})
	}
	g := newGraph(t, triples, nil)
	e := NewEnumerator(g, EnumeratorOptions{})

	paths, err := e.EnumeratePaths(context.Background(), types.Entities("Q1"), types.Entities("Q2"), 2)
	require.NoError(t, err)
	assert.Equal(t, []types.Path{
		{types.NewTriplet("Q1", "P1", "Q2")},
		{types.NewTriplet("Q1", "P2", "Q2")},
	}, paths)
}

func TestEnumeratePathsStopsAfterLimitAcrossPairs(t *testing.T) {
	g := &failingGraph{
		MemoryDriver: newGraph(t, [][3]string{{"Q1", "P1", "Q2"}, {"Q1", "P2", "Q2"}}, nil),
	}
	e := NewEnumerator(g, EnumeratorOptions{})

	paths, err := e.EnumeratePaths(context.Background(), types.Entities("Q1", "Q3"), types.Entities("Q2", "Q4"), 2)
	require.NoError(t, err)
	assert.Len(t, paths, 2)
	assert.Equal(t, 1, g.calls)
}

func TestEnumeratePathsDeterministic(t *testing.T) {
	g := newGraph(t, [][3]string{
		{"Q1", "P31", "Q5"},
		{"Q5", "P279", "Q61"},
		{"Q1", "P19", "Q61"},
		{"Q1", "P27", "Q30"},
		{"Q30", "P36", "Q61"},
		{"Q7", "P40", "Q61"},
	}, nil)
	e := NewEnumerator(g, EnumeratorOptions{})
	ctx := context.Background()
	s := sample([]string{"Q1", "Q7"}, []string{"Q61", "Q5"})

	first, err := e.FindPaths(ctx, s, 100)
	require.NoError(t, err)
	second, err := e.FindPaths(ctx, s, 100)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Len(t, first, 5)
	assertEndpoints(t, first, s)
}

func TestEnumeratePathsDeduplicates(t *testing.T) {
	g := newGraph(t, [][3]string{{"Q1", "P31", "Q2"}}, nil)
	e := NewEnumerator(g, EnumeratorOptions{})

	paths, err := e.FindPaths(context.Background(), sample([]string{"Q1", "Q1"}, []string{"Q2", "Q2"}), 10)
	require.NoError(t, err)
	assert.Len(t, paths, 1)
}

func TestEnumeratePathsRepeatedOneHopRowsLeaveRoomForTwoHop(t *testing.T) {
	g := &repeatingGraph{newGraph(t, [][3]string{
		{"Q1", "P31", "Q2"},
		{"Q1", "P17", "Q5"},
		{"Q5", "P131", "Q2"},
	}, nil)}
	e := NewEnumerator(g, EnumeratorOptions{})

	one, err := e.SearchOneHop(context.Background(), "Q1", "Q2")
	require.NoError(t, err)
	assert.Len(t, one, 1)

	paths, err := e.EnumeratePaths(context.Background(), []types.Entity{"Q1"}, []types.Entity{"Q2"}, 2)
	require.NoError(t, err)
	assert.Equal(t, []types.Path{
		{types.NewTriplet("Q1", "P31", "Q2")},
		{types.NewTriplet("Q1", "P17", "Q5"), types.NewTriplet("Q5", "P131", "Q2")},
	}, paths)
}

func TestEnumeratePathsNoPathsIsEmptyNotNil(t *testing.T) {
	g := newGraph(t, [][3]string{{"Q1", "P31", "Q2"}}, nil)
	e := NewEnumerator(g, EnumeratorOptions{})

	paths, err := e.FindPaths(context.Background(), sample([]string{"Q9"}, []string{"Q2"}), 10)
	require.NoError(t, err)
	assert.NotNil(t, paths)
	assert.Empty(t, paths)
}

func TestEnumeratePathsDefaultMaxPath(t *testing.T) {
	var triples [][3]string
	for i := 0; i < DefaultMaxPath+20; i++ {
		triples = append(triples, [3]string{"Q1", fmt.Sprintf("P%d", i), "Q2"})
	}
	g := newGraph(t, triples, nil)
	e := NewEnumerator(g, EnumeratorOptions{})

	paths, err := e.EnumeratePaths(context.Background(), types.Entities("Q1"), types.Entities("Q2"), 0)
	require.NoError(t, err)
	assert.Len(t, paths, DefaultMaxPath)
}

func TestEnumeratePairErrorFailsSample(t *testing.T) {
	g := &failingGraph{
		MemoryDriver: newGraph(t, [][3]string{{"Q1", "P1", "Q2"}, {"Q1", "P2", "Q3"}, {"Q1", "P3", "Q4"}}, nil),
		fail:         map[[2]types.Entity]bool{{"Q1", "Q3"}: true},
	}
	e := NewEnumerator(g, EnumeratorOptions{})

	paths, err := e.FindPaths(context.Background(), sample([]string{"Q1"}, []string{"Q2", "Q3", "Q4"}), 10)
	require.Error(t, err)
	assert.Nil(t, paths)

	var bqe *driver.BackendQueryError
	require.ErrorAs(t, err, &bqe)
	assert.Equal(t, "Q3", bqe.Dst)
	assert.ErrorIs(t, err, errTimeout)
	assert.Zero(t, e.SkippedPairs())
}

func TestEnumeratePairErrorSkipPair(t *testing.T) {
	g := &failingGraph{
		MemoryDriver: newGraph(t, [][3]string{{"Q1", "P1", "Q2"}, {"Q1", "P2", "Q3"}, {"Q1", "P3", "Q4"}}, nil),
		fail:         map[[2]types.Entity]bool{{"Q1", "Q3"}: true},
	}
	e := NewEnumerator(g, EnumeratorOptions{Policy: PairErrorSkipPair})

	paths, err := e.FindPaths(context.Background(), sample([]string{"Q1"}, []string{"Q2", "Q3", "Q4"}), 10)
	require.NoError(t, err)
	assert.Equal(t, []types.Path{
		{types.NewTriplet("Q1", "P1", "Q2")},
		{types.NewTriplet("Q1", "P3", "Q4")},
	}, paths)
	assert.Equal(t, int64(1), e.SkippedPairs())
}

func TestEnumerateSkipPairStillFailsOnCancel(t *testing.T) {
	g := newGraph(t, [][3]string{{"Q1", "P1", "Q2"}}, nil)
	e := NewEnumerator(g, EnumeratorOptions{Policy: PairErrorSkipPair})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.FindPaths(ctx, sample([]string{"Q1"}, []string{"Q2"}), 10)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRankedEnumeratorOrdersByScore(t *testing.T) {
	g := newGraph(t, [][3]string{
		{"Q1", "P1", "Q2"},
		{"Q1", "P2", "Q2"},
		{"Q1", "P3", "Q2"},
	}, map[string]string{"P1": "spouse", "P2": "place of birth", "P3": "residence"})
	sc := &labelScorer{scores: map[string]float64{"spouse": 0.1, "place of birth": 0.9, "residence": 0.5}}
	r := NewRankedEnumerator(NewEnumerator(g, EnumeratorOptions{}), g, sc, 0)

	paths, err := r.FindPaths(context.Background(), sample([]string{"Q1"}, []string{"Q2"}), 2)
	require.NoError(t, err)
	assert.Equal(t, []types.Path{
		{types.NewTriplet("Q1", "P2", "Q2")},
		{types.NewTriplet("Q1", "P3", "Q2")},
	}, paths)
}

func TestRankedEnumeratorTiesKeepEnumerationOrder(t *testing.T) {
	g := newGraph(t, [][3]string{
		{"Q1", "P1", "Q2"},
		{"Q1", "P2", "Q2"},
		{"Q1", "P3", "Q2"},
	}, nil)
	r := NewRankedEnumerator(NewEnumerator(g, EnumeratorOptions{}), g, &labelScorer{}, 1)

	paths, err := r.FindPaths(context.Background(), sample([]string{"Q1"}, []string{"Q2"}), 3)
	require.NoError(t, err)
	require.Len(t, paths, 3)
	for i, p := range paths {
		assert.Equal(t, types.Relation(fmt.Sprintf("P%d", i+1)), p[0].Relation)
	}
}

func TestRankedEnumeratorTwoHopMeanScore(t *testing.T) {
	g := newGraph(t, [][3]string{
		{"Q1", "P17", "Q5"},
		{"Q5", "P131", "Q2"},
		{"Q1", "P31", "Q2"},
	}, map[string]string{"P17": "country", "P131": "located in", "P31": "instance of"})
	sc := &labelScorer{scores: map[string]float64{"country": 0.6, "located in": 1.0, "instance of": 0.7}}
	r := NewRankedEnumerator(NewEnumerator(g, EnumeratorOptions{}), g, sc, 0)

	paths, err := r.FindPaths(context.Background(), sample([]string{"Q1"}, []string{"Q2"}), 5)
	require.NoError(t, err)
	require.Len(t, paths, 2)
	assert.Len(t, paths[0], 2, "mean 0.8 beats 0.7")
}

func beamGraph(t *testing.T) *driver.MemoryDriver {
	return newGraph(t, [][3]string{
		{"Q1", "P17", "Q5"},
		{"Q5", "P131", "Q2"},
		{"Q1", "P31", "Q9"},
		{"Q9", "P131", "Q2"},
	}, map[string]string{"P17": "country", "P131": "located in", "P31": "instance of"})
}

func TestBeamSearchFindsTwoHopPath(t *testing.T) {
	sc := &labelScorer{scores: map[string]float64{"country": 0.5, "located in": 0.9, "instance of": 0.1}}
	b := NewBeamSearcher(beamGraph(t), sc, BeamOptions{}, nil)
	s := sample([]string{"Q1"}, []string{"Q2"})

	paths, err := b.FindPaths(context.Background(), s, 10)
	require.NoError(t, err)
	require.Len(t, paths, 2)
	assert.Equal(t, types.Path{
		types.NewTriplet("Q1", "P17", "Q5"),
		types.NewTriplet("Q5", "P131", "Q2"),
	}, paths[0])
	assertEndpoints(t, paths, s)
}

func TestBeamSearchWidthPrunes(t *testing.T) {
	sc := &labelScorer{scores: map[string]float64{"country": 0.5, "located in": 0.9, "instance of": 0.8}}
	b := NewBeamSearcher(beamGraph(t), sc, BeamOptions{BeamWidth: 1}, nil)

	paths, err := b.FindPaths(context.Background(), sample([]string{"Q1"}, []string{"Q2"}), 10)
	require.NoError(t, err)
	require.Len(t, paths, 1)
	assert.Equal(t, types.Entity("Q9"), paths[0][0].Object)
}

func TestBeamSearchMaxHops(t *testing.T) {
	sc := &labelScorer{scores: map[string]float64{"country": 0.5, "located in": 0.9}}
	b := NewBeamSearcher(beamGraph(t), sc, BeamOptions{MaxHops: 1}, nil)

	paths, err := b.FindPaths(context.Background(), sample([]string{"Q1"}, []string{"Q2"}), 10)
	require.NoError(t, err)
	assert.Empty(t, paths)
}

func TestBeamSearchMaxPath(t *testing.T) {
	sc := &labelScorer{scores: map[string]float64{"country": 0.5, "located in": 0.9, "instance of": 0.4}}
	b := NewBeamSearcher(beamGraph(t), sc, BeamOptions{}, nil)

	paths, err := b.FindPaths(context.Background(), sample([]string{"Q1"}, []string{"Q2"}), 1)
	require.NoError(t, err)
	assert.Len(t, paths, 1)
}

func TestBeamSearchAvoidsCycles(t *testing.T) {
	g := newGraph(t, [][3]string{
		{"Q1", "P1", "Q5"},
		{"Q5", "P2", "Q1"},
	}, nil)
	b := NewBeamSearcher(g, &labelScorer{}, BeamOptions{MaxHops: 4}, nil)

	paths, err := b.FindPaths(context.Background(), sample([]string{"Q1"}, []string{"Q1"}), 10)
	require.NoError(t, err)
	assert.Empty(t, paths)
}

func TestNewStrategies(t *testing.T) {
	g := beamGraph(t)
	sc := &labelScorer{}

	f, err := New(config.SearchConfig{}, g, nil, false, nil)
	require.NoError(t, err)
	assert.IsType(t, &Enumerator{}, f)

	f, err = New(config.SearchConfig{Strategy: "ranked"}, g, sc, false, nil)
	require.NoError(t, err)
	assert.IsType(t, &RankedEnumerator{}, f)

	f, err = New(config.SearchConfig{Strategy: "beam", BeamWidth: 3}, g, sc, true, nil)
	require.NoError(t, err)
	require.IsType(t, &BeamSearcher{}, f)
	assert.Equal(t, 3, f.(*BeamSearcher).opts.BeamWidth)

	_, err = New(config.SearchConfig{Strategy: "beam"}, g, nil, false, nil)
	assert.ErrorIs(t, err, ErrScorerRequired)

	_, err = New(config.SearchConfig{Strategy: "dfs"}, g, sc, false, nil)
	assert.ErrorIs(t, err, config.ErrUnknownStrategy)
}
