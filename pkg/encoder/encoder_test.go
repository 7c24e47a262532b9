package encoder

import (
	"context"
	"encoding/json"
	"math/rand/v2"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soundprediction/kgpath/pkg/config"
	"github.com/soundprediction/kgpath/pkg/utils"
)

func testTokenizer() *Tokenizer {
	return NewTokenizer(TokenizerConfig{Lowercase: true, MaxLength: 8, HashBuckets: 16},
		[]string{"query", ":", "relation", "place", "of", "birth", "[SEP]"})
}

func TestTokenizerSplit(t *testing.T) {
	tok := testTokenizer()
	assert.Equal(t,
		[]string{"query", ":", "where", "was", "adams", "born", "?", "[SEP]", "place", "#", "of"},
		tok.Split("query: Where was Adams born? [SEP] place # OF"))
}

func TestTokenizerEncode(t *testing.T) {
	tok := testTokenizer()
	assert.Equal(t, 9, tok.VocabSize())
	assert.Equal(t, 25, tok.Rows())

	ids := tok.Encode("relation: place of birth")
	assert.Equal(t, []int{0, 4, 3, 5, 6, 7}, ids)

	// truncated to MaxLength including [CLS]
	long := tok.Encode("a b c d e f g h i j k")
	assert.Len(t, long, 8)

	// out-of-vocabulary tokens land in hash buckets, deterministically
	oov := tok.Encode("zebra")
	require.Len(t, oov, 2)
	assert.GreaterOrEqual(t, oov[1], tok.VocabSize())
	assert.Less(t, oov[1], tok.Rows())
	assert.Equal(t, oov, tok.Encode("ZEBRA"))

	noBuckets := NewTokenizer(TokenizerConfig{}, nil)
	assert.Equal(t, []int{0, 1}, noBuckets.Encode("zebra"))
	assert.Equal(t, []int{0}, noBuckets.Encode(""))
}

func TestBuildVocab(t *testing.T) {
	vocab := BuildVocab(TokenizerConfig{Lowercase: true},
		[]string{"Place of birth", "place of death", "country"}, 3, 1)
	assert.Equal(t, []string{"of", "place", "birth"}, vocab)

	vocab = BuildVocab(TokenizerConfig{Lowercase: true}, []string{"a b", "a"}, 0, 2)
	assert.Equal(t, []string{"a"}, vocab)
}

func newTestEncoder(t *testing.T) *NativeEncoder {
	t.Helper()
	return NewNativeEncoder("test", "intfloat/e5-small", 8, testTokenizer(), rand.New(rand.NewPCG(1, 2)))
}

func TestNativeEncoderPadsAndMasks(t *testing.T) {
	enc := newTestEncoder(t)
	b, err := enc.Encode(context.Background(), []string{"relation: place of birth", "query"})
	require.NoError(t, err)
	require.Equal(t, 2, b.Len())
	assert.Equal(t, []int{1, 1, 1, 1, 1, 1}, b.Mask[0])
	assert.Equal(t, []int{1, 1, 0, 0, 0, 0}, b.Mask[1])
	assert.Equal(t, make([]float32, 8), b.Hidden[1][5])

	pooled, err := AveragePool(b, enc.Dimensions())
	require.NoError(t, err)
	want := utils.MaskedMean(b.Hidden[1][:2], []int{1, 1}, 8)
	assert.Equal(t, want, pooled[1])
}

func TestNativeEncoderIsDeterministic(t *testing.T) {
	enc := newTestEncoder(t)
	ctx := context.Background()
	a, err := Embed(ctx, enc, []string{"relation: place of birth"})
	require.NoError(t, err)
	b, err := Embed(ctx, enc, []string{"relation: place of birth"})
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.InDelta(t, 1.0, utils.CosineSimilarity(a[0], b[0]), 1e-9)
}

func TestNativeEncoderHonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := newTestEncoder(t).Encode(ctx, []string{"x"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNativeEncoderSaveAndLoad(t *testing.T) {
	enc := newTestEncoder(t)
	dir := filepath.Join(t.TempDir(), "scorer")
	require.NoError(t, enc.Save(dir))
	assert.True(t, IsArtifact(dir))

	loaded, err := LoadNative(dir)
	require.NoError(t, err)
	assert.Equal(t, "test", loaded.Name())
	assert.Equal(t, "intfloat/e5-small", loaded.Manifest().BaseModel)
	assert.Equal(t, enc.Tokenizer().Vocab(), loaded.Tokenizer().Vocab())

	ctx := context.Background()
	texts := []string{"query: where was adams born? [SEP] ", "relation: place of birth"}
	want, err := Embed(ctx, enc, texts)
	require.NoError(t, err)
	got, err := Embed(ctx, loaded, texts)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestLoadNativeErrors(t *testing.T) {
	_, err := LoadNative(filepath.Join(t.TempDir(), "missing"))
	var loadErr *ModelLoadError
	require.ErrorAs(t, err, &loadErr)
	assert.Contains(t, loadErr.Error(), "missing")

	dir := t.TempDir()
	require.NoError(t, newTestEncoder(t).Save(dir))
	require.NoError(t, os.WriteFile(filepath.Join(dir, WeightsFile), []byte("KGPW"), 0o644))
	_, err = LoadNative(dir)
	assert.ErrorAs(t, err, &loadErr)

	require.NoError(t, os.WriteFile(filepath.Join(dir, ManifestFile), []byte("format: other\n"), 0o644))
	_, err = LoadNative(dir)
	assert.ErrorAs(t, err, &loadErr)
}

func TestNativeEncoderUpdate(t *testing.T) {
	enc := newTestEncoder(t)
	enc.Update([]int{3}, func(_ int, row []float32) {
		for i := range row {
			row[i] = 1
		}
	})
	got := make([]float32, 8)
	enc.Row(3, got)
	assert.Equal(t, []float32{1, 1, 1, 1, 1, 1, 1, 1}, got)
}

func TestOpenAIEncoder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/embeddings", r.URL.Path)
		var req struct {
			Input []string `json:"input"`
			Model string   `json:"model"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "e5", req.Model)

		data := make([]map[string]any, len(req.Input))
		for i := range req.Input {
			// reverse order to exercise index handling
			j := len(req.Input) - 1 - i
			data[i] = map[string]any{"object": "embedding", "index": j, "embedding": []float32{float32(j), 1, 0}}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"object": "list", "data": data, "model": req.Model})
	}))
	defer srv.Close()

	enc, err := NewOpenAIEncoder(OpenAIConfig{BaseURL: srv.URL, Model: "e5"})
	require.NoError(t, err)
	assert.Equal(t, 0, enc.Dimensions())

	vecs, err := Embed(context.Background(), enc, []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{0, 1, 0}, {1, 1, 0}}, vecs)
	assert.Equal(t, 3, enc.Dimensions())
}

func TestNewOpenAIEncoderValidation(t *testing.T) {
	_, err := NewOpenAIEncoder(OpenAIConfig{})
	assert.Error(t, err)
	_, err = NewOpenAIEncoder(OpenAIConfig{BaseURL: "localhost"})
	assert.Error(t, err)

	enc, err := NewOpenAIEncoder(OpenAIConfig{APIKey: "sk-test"})
	require.NoError(t, err)
	assert.Equal(t, 1536, enc.Dimensions())
}

func TestNew(t *testing.T) {
	_, err := New(config.EncoderConfig{Provider: "word2vec"}, nil)
	assert.ErrorIs(t, err, ErrUnknownProvider)

	_, err = New(config.EncoderConfig{Provider: "native", Model: t.TempDir()}, nil)
	var loadErr *ModelLoadError
	assert.ErrorAs(t, err, &loadErr)

	dir := t.TempDir()
	require.NoError(t, newTestEncoder(t).Save(dir))
	enc, err := New(config.EncoderConfig{Provider: "native", Model: dir}, nil)
	require.NoError(t, err)
	assert.Equal(t, 8, enc.Dimensions())
}
