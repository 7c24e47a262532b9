//go:build embedeverything

package encoder

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/soundprediction/go-embedeverything/pkg/embedder"
)

// EmbedEverythingEncoder runs a local Hugging Face embedding model.
type EmbedEverythingEncoder struct {
	// the underlying Rust handle is not safe for concurrent calls
	mu     sync.Mutex
	client *embedder.Embedder
	model  string
	dims   int
}

var _ Encoder = (*EmbedEverythingEncoder)(nil)

// NewEmbedEverythingEncoder loads model, e.g. "intfloat/e5-small-v2".
func NewEmbedEverythingEncoder(model string) (*EmbedEverythingEncoder, error) {
	if model == "" {
		return nil, &ModelLoadError{Path: model, Err: errors.New("model name is empty")}
	}
	client, err := embedder.NewEmbedder(model)
	if err != nil {
		return nil, &ModelLoadError{Path: model, Err: fmt.Errorf("failed to create embedder: %w", err)}
	}
	e := &EmbedEverythingEncoder{client: client, model: model}

	probe, err := client.Embed([]string{"query: probe"})
	if err != nil || len(probe) != 1 {
		client.Close()
		return nil, &ModelLoadError{Path: model, Err: fmt.Errorf("failed to probe embedder: %v", err)}
	}
	e.dims = len(probe[0])
	return e, nil
}

func (e *EmbedEverythingEncoder) Name() string { return "embedeverything:" + e.model }

func (e *EmbedEverythingEncoder) Dimensions() int { return e.dims }

func (e *EmbedEverythingEncoder) Encode(ctx context.Context, texts []string) (*Batch, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	// go-embedeverything does not support context yet
	vectors, err := e.client.Embed(texts)
	if err != nil {
		return nil, fmt.Errorf("failed to generate embeddings: %w", err)
	}
	return pooled(vectors), nil
}

func (e *EmbedEverythingEncoder) Close() error {
	e.client.Close()
	return nil
}
