package encoder

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// NativeEncoder is a token-embedding model: each token's hidden state is
// its embedding row. It is the model pkg/trainer fits.
type NativeEncoder struct {
	mu        sync.RWMutex
	manifest  Manifest
	tokenizer *Tokenizer
	weights   [][]float32
}

var _ Encoder = (*NativeEncoder)(nil)

// NewNativeEncoder initializes a model with random rows drawn from rng.
func NewNativeEncoder(name, baseModel string, dim int, tok *Tokenizer, rng *rand.Rand) *NativeEncoder {
	scale := 1 / math.Sqrt(float64(dim))
	weights := make([][]float32, tok.Rows())
	for i := range weights {
		row := make([]float32, dim)
		for j := range row {
			row[j] = float32(rng.NormFloat64() * scale)
		}
		weights[i] = row
	}
	return &NativeEncoder{
		manifest: Manifest{
			Format:     nativeFormat,
			Name:       name,
			BaseModel:  baseModel,
			Dimensions: dim,
			Tokenizer:  tok.Config(),
		},
		tokenizer: tok,
		weights:   weights,
	}
}

func (n *NativeEncoder) Name() string { return n.manifest.Name }

func (n *NativeEncoder) Dimensions() int { return n.manifest.Dimensions }

// Manifest returns the artifact metadata.
func (n *NativeEncoder) Manifest() Manifest { return n.manifest }

// Tokenizer returns the model's tokenizer.
func (n *NativeEncoder) Tokenizer() *Tokenizer { return n.tokenizer }

func (n *NativeEncoder) Close() error { return nil }

// Encode returns the embedding rows of each text's tokens, padded to the
// longest text in the batch.
func (n *NativeEncoder) Encode(ctx context.Context, texts []string) (*Batch, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ids := make([][]int, len(texts))
	width := 0
	for i, text := range texts {
		ids[i] = n.tokenizer.Encode(text)
		width = max(width, len(ids[i]))
	}

	n.mu.RLock()
	defer n.mu.RUnlock()

	dim := n.manifest.Dimensions
	b := &Batch{Hidden: make([][][]float32, len(texts)), Mask: make([][]int, len(texts))}
	for i, row := range ids {
		hidden := make([][]float32, width)
		mask := make([]int, width)
		for t := range hidden {
			state := make([]float32, dim)
			if t < len(row) {
				copy(state, n.weights[row[t]])
				mask[t] = 1
			}
			hidden[t] = state
		}
		b.Hidden[i], b.Mask[i] = hidden, mask
	}
	return b, nil
}

// Rows returns the number of embedding rows.
func (n *NativeEncoder) Rows() int { return len(n.weights) }

// Row copies embedding row id into dst.
func (n *NativeEncoder) Row(id int, dst []float32) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	copy(dst, n.weights[id])
}

// Update calls fn with each selected row under the write lock. It is how
// the trainer applies sparse gradient steps.
func (n *NativeEncoder) Update(ids []int, fn func(id int, row []float32)) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, id := range ids {
		fn(id, n.weights[id])
	}
}

// Save writes the artifact to dir, creating it if needed.
func (n *NativeEncoder) Save(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}

	n.mu.RLock()
	defer n.mu.RUnlock()

	m := n.manifest
	m.CreatedAt = time.Now().UTC().Truncate(time.Second)
	if err := writeManifest(filepath.Join(dir, ManifestFile), m); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}

	if err := writeFile(filepath.Join(dir, VocabFile), func(f *os.File) error {
		return n.tokenizer.WriteVocab(f)
	}); err != nil {
		return fmt.Errorf("failed to write vocabulary: %w", err)
	}
	if err := writeFile(filepath.Join(dir, WeightsFile), func(f *os.File) error {
		return writeWeights(f, n.weights, m.Dimensions)
	}); err != nil {
		return fmt.Errorf("failed to write weights: %w", err)
	}
	return nil
}

func writeFile(path string, write func(*os.File) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
