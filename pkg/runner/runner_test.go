package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soundprediction/kgpath/pkg/driver"
	"github.com/soundprediction/kgpath/pkg/jsonl"
	"github.com/soundprediction/kgpath/pkg/metrics"
	"github.com/soundprediction/kgpath/pkg/search"
	"github.com/soundprediction/kgpath/pkg/telemetry"
	"github.com/soundprediction/kgpath/pkg/types"
)

type finderFunc func(ctx context.Context, s *types.Sample, maxPath int) ([]types.Path, error)

func (f finderFunc) FindPaths(ctx context.Context, s *types.Sample, maxPath int) ([]types.Path, error) {
	return f(ctx, s, maxPath)
}

// echoFinder returns one path from the first question entity to the first
// answer entity.
func echoFinder(ctx context.Context, s *types.Sample, _ int) ([]types.Path, error) {
	return []types.Path{{{Subject: s.QuestionEntities[0], Relation: "P1", Object: s.AnswerEntities[0]}}}, nil
}

type countingRecorder struct {
	metrics.Noop
	mu       sync.Mutex
	outcomes map[string]int
}

func (c *countingRecorder) IncSamples(outcome string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.outcomes == nil {
		c.outcomes = make(map[string]int)
	}
	c.outcomes[outcome]++
}

func sampleLine(id string, src string, dst ...string) string {
	return fmt.Sprintf(`{"id": %q, "question": "q %s", "question_entities": [%q], "answer_entities": ["%s"]}`,
		id, id, src, strings.Join(dst, `", "`))
}

func readOutput(t *testing.T, out *bytes.Buffer) []types.Sample {
	t.Helper()
	lines, err := jsonl.ReadAll[types.Sample](out, false)
	require.NoError(t, err)
	samples := make([]types.Sample, len(lines))
	for i, l := range lines {
		require.NoError(t, l.Err)
		samples[i] = l.Value
	}
	return samples
}

func ids(samples []types.Sample) []string {
	out := make([]string, len(samples))
	for i, s := range samples {
		out[i] = s.ID
	}
	return out
}

// timeoutGraph fails one-hop lookups for a single pair.
type timeoutGraph struct {
	*driver.MemoryDriver
	src, dst types.Entity
}

func (g *timeoutGraph) SearchOneHop(ctx context.Context, src, dst types.Entity) ([]types.Path, error) {
	if src == g.src && dst == g.dst {
		return nil, &driver.BackendQueryError{Op: driver.OpOneHop, Src: string(src), Dst: string(dst), Err: context.DeadlineExceeded}
	}
	return g.MemoryDriver.SearchOneHop(ctx, src, dst)
}

func TestRunBackendTimeoutSkipsSample(t *testing.T) {
	mem := driver.NewMemoryDriver()
	require.NoError(t, mem.AddTriples(context.Background(), []types.Triplet{
		types.NewTriplet("Q1", "P31", "Q2"),
		types.NewTriplet("Q1", "P17", "Q4"),
		types.NewTriplet("Q7", "P19", "Q8"),
	}))
	graph := &timeoutGraph{MemoryDriver: mem, src: "Q1", dst: "Q3"}
	rec := &countingRecorder{}
	r := New(search.NewEnumerator(graph, search.EnumeratorOptions{}), Options{MaxPath: 10, Recorder: rec})

	in := strings.Join([]string{
		sampleLine("s1", "Q1", "Q2"),
		sampleLine("s2", "Q1", "Q2", "Q3", "Q4"),
		sampleLine("s3", "Q7", "Q8"),
	}, "\n")
	var out bytes.Buffer
	summary, err := r.Run(context.Background(), strings.NewReader(in), &out)
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Processed)
	assert.Equal(t, 1, summary.Skipped)
	assert.Equal(t, 3, summary.Total())
	assert.Equal(t, "Processed 2 samples, skipped 1 samples, total 3 samples", summary.String())
	assert.Equal(t, 2, rec.outcomes[metrics.OutcomeProcessed])
	assert.Equal(t, 1, rec.outcomes[metrics.OutcomeSkipped])

	samples := readOutput(t, &out)
	assert.Equal(t, []string{"s1", "s3"}, ids(samples))
	assert.Equal(t, []types.Path{{types.NewTriplet("Q7", "P19", "Q8")}}, samples[1].Paths)
}

func TestRunPreservesOrderWithWorkers(t *testing.T) {
	finder := finderFunc(func(ctx context.Context, s *types.Sample, maxPath int) ([]types.Path, error) {
		var n int
		fmt.Sscanf(s.ID, "s%d", &n)
		time.Sleep(time.Duration((7*n)%5) * time.Millisecond)
		return echoFinder(ctx, s, maxPath)
	})
	r := New(finder, Options{Workers: 4, ChunkSize: 5})

	var lines, want []string
	for i := 0; i < 23; i++ {
		id := fmt.Sprintf("s%d", i)
		lines = append(lines, sampleLine(id, "Q1", "Q2"))
		want = append(want, id)
	}
	var out bytes.Buffer
	summary, err := r.Run(context.Background(), strings.NewReader(strings.Join(lines, "\n")), &out)
	require.NoError(t, err)
	assert.Equal(t, 23, summary.Processed)
	assert.Equal(t, want, ids(readOutput(t, &out)))
}

func TestRunIsolatesPanicsAndTimeouts(t *testing.T) {
	finder := finderFunc(func(ctx context.Context, s *types.Sample, maxPath int) ([]types.Path, error) {
		switch s.ID {
		case "panics":
			panic("nil map")
		case "hangs":
			<-ctx.Done()
			return nil, ctx.Err()
		}
		return echoFinder(ctx, s, maxPath)
	})
	dir := t.TempDir()
	tracker, err := telemetry.NewSampleTracker(dir, "run-x")
	require.NoError(t, err)
	r := New(finder, Options{Workers: 2, SampleTimeout: 20 * time.Millisecond, RunID: "run-x", Tracker: tracker})

	in := strings.Join([]string{
		sampleLine("a", "Q1", "Q2"),
		sampleLine("panics", "Q1", "Q2"),
		sampleLine("hangs", "Q1", "Q2"),
		sampleLine("b", "Q1", "Q2"),
	}, "\n")
	var out bytes.Buffer
	summary, err := r.Run(context.Background(), strings.NewReader(in), &out)
	require.NoError(t, err)
	assert.Equal(t, "run-x", summary.RunID)
	assert.Equal(t, 2, summary.Processed)
	assert.Equal(t, 2, summary.Skipped)
	assert.Equal(t, []string{"a", "b"}, ids(readOutput(t, &out)))

	require.NoError(t, tracker.Close())
	rows, err := parquet.ReadFile[telemetry.SampleOutcome](filepath.Join(dir, "samples_run-x.parquet"))
	require.NoError(t, err)
	require.Len(t, rows, 4)
	byID := make(map[string]telemetry.SampleOutcome)
	for _, row := range rows {
		byID[row.SampleID] = row
	}
	assert.Equal(t, metrics.OutcomeSkipped, byID["panics"].Status)
	assert.Contains(t, byID["panics"].Error, "panic")
	assert.Equal(t, metrics.OutcomeSkipped, byID["hangs"].Status)
	assert.Contains(t, byID["hangs"].Error, "deadline")
	assert.Equal(t, 1, byID["a"].Paths)
}

func TestRunCountsMalformedLines(t *testing.T) {
	r := New(finderFunc(echoFinder), Options{})
	in := sampleLine("a", "Q1", "Q2") + "\n[1, 2\n\n" + sampleLine("b", "Q1", "Q2")

	var out bytes.Buffer
	summary, err := r.Run(context.Background(), strings.NewReader(in), &out)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Processed)
	assert.Equal(t, 1, summary.Skipped)
	assert.Equal(t, []string{"a", "b"}, ids(readOutput(t, &out)))
}

func TestRunSkipsTruncatedLine(t *testing.T) {
	truncated := `{"id": "s1", "question": "q", "question_entities": ["Q1"], "answer_entities": ["Q2", "Q12`
	in := truncated + "\n" + sampleLine("b", "Q1", "Q2")

	for _, repair := range []bool{false, true} {
		t.Run(fmt.Sprintf("repair=%t", repair), func(t *testing.T) {
			r := New(finderFunc(echoFinder), Options{RepairInput: repair})
			var out bytes.Buffer
			summary, err := r.Run(context.Background(), strings.NewReader(in), &out)
			require.NoError(t, err)
			assert.Equal(t, 1, summary.Processed)
			assert.Equal(t, 1, summary.Skipped)
			assert.Equal(t, 0, summary.Repaired)
			assert.Equal(t, []string{"b"}, ids(readOutput(t, &out)))
			assert.NotContains(t, out.String(), "Q12")
		})
	}
}

func TestRunRepairInputIsOptIn(t *testing.T) {
	trailingComma := `{"id": "a", "question": "q", "question_entities": ["Q1"], "answer_entities": ["Q2",],}`

	var out bytes.Buffer
	summary, err := New(finderFunc(echoFinder), Options{}).Run(context.Background(), strings.NewReader(trailingComma), &out)
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Processed)
	assert.Equal(t, 1, summary.Skipped)

	out.Reset()
	summary, err = New(finderFunc(echoFinder), Options{RepairInput: true}).Run(context.Background(), strings.NewReader(trailingComma), &out)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Processed)
	assert.Equal(t, 1, summary.Repaired)
	assert.Equal(t, []string{"a"}, ids(readOutput(t, &out)))
}

func TestRunWritesPathsParquet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "paths.parquet")
	pw, err := telemetry.NewPathsWriter(path)
	require.NoError(t, err)
	r := New(finderFunc(echoFinder), Options{Paths: pw})

	in := sampleLine("a", "Q1", "Q2") + "\n" + sampleLine("b", "Q3", "Q4")
	_, err = r.Run(context.Background(), strings.NewReader(in), &bytes.Buffer{})
	require.NoError(t, err)
	require.NoError(t, pw.Close())

	rows, err := parquet.ReadFile[telemetry.PathRow](path)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "b", rows[1].SampleID)
	assert.Equal(t, "Q3", rows[1].Subject)
}

func TestRunEmptyPathsWrittenAsEmptyArray(t *testing.T) {
	r := New(finderFunc(func(context.Context, *types.Sample, int) ([]types.Path, error) { return nil, nil }), Options{})

	var out bytes.Buffer
	_, err := r.Run(context.Background(), strings.NewReader(sampleLine("a", "Q1", "Q2")), &out)
	require.NoError(t, err)
	assert.Contains(t, out.String(), `"paths":[]`)
}

func TestRunCancelledContext(t *testing.T) {
	r := New(finderFunc(echoFinder), Options{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var out bytes.Buffer
	summary, err := r.Run(ctx, strings.NewReader(sampleLine("a", "Q1", "Q2")), &out)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, summary.Total())
	assert.Zero(t, out.Len())
}

func TestProcessSampleWrapsErrors(t *testing.T) {
	boom := errors.New("boom")
	r := New(finderFunc(func(context.Context, *types.Sample, int) ([]types.Path, error) { return nil, boom }), Options{})

	_, err := r.ProcessSample(context.Background(), &types.Sample{ID: "x"}, 7)
	var spe *SampleProcessingError
	require.ErrorAs(t, err, &spe)
	assert.Equal(t, "x", spe.SampleID)
	assert.Equal(t, 7, spe.Line)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, "sample x (line 7): boom", err.Error())
}

func TestProcessSampleCarriesContextValues(t *testing.T) {
	var gotRun, gotSample any
	r := New(finderFunc(func(ctx context.Context, s *types.Sample, _ int) ([]types.Path, error) {
		gotRun, gotSample = ctx.Value(types.RunIDKey), ctx.Value(types.SampleIDKey)
		return nil, nil
	}), Options{RunID: "r1"})

	_, err := r.ProcessSample(context.Background(), &types.Sample{ID: "x"}, 1)
	require.NoError(t, err)
	assert.Equal(t, "r1", gotRun)
	assert.Equal(t, "x", gotSample)
}
