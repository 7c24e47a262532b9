package encoder

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync/atomic"

	"github.com/sashabaranov/go-openai"
)

// OpenAIConfig configures an OpenAI-compatible embeddings client.
type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

// OpenAIEncoder calls an embeddings endpoint. The returned vectors are
// already pooled, so each text is a single-token batch entry.
type OpenAIEncoder struct {
	client *openai.Client
	model  string
	dims   atomic.Int64
}

var _ Encoder = (*OpenAIEncoder)(nil)

var knownDimensions = map[string]int{
	string(openai.SmallEmbedding3): 1536,
	string(openai.LargeEmbedding3): 3072,
	string(openai.AdaEmbeddingV2):  1536,
}

// NewOpenAIEncoder creates a client. An empty model uses text-embedding-3-small.
func NewOpenAIEncoder(cfg OpenAIConfig) (*OpenAIEncoder, error) {
	model := cfg.Model
	if model == "" {
		model = string(openai.SmallEmbedding3)
	}

	var client *openai.Client
	if cfg.BaseURL != "" {
		u, err := url.Parse(cfg.BaseURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return nil, fmt.Errorf("invalid base URL %q", cfg.BaseURL)
		}
		apiKey := cfg.APIKey
		// Some compatible services don't require authentication
		if apiKey == "" {
			apiKey = "dummy-key"
		}
		clientConfig := openai.DefaultConfig(apiKey)
		clientConfig.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
		if !strings.Contains(u.Path, "/v1") {
			clientConfig.BaseURL += "/v1"
		}
		client = openai.NewClientWithConfig(clientConfig)
	} else {
		if cfg.APIKey == "" {
			return nil, errors.New("openai encoder requires an API key or a base URL")
		}
		client = openai.NewClient(cfg.APIKey)
	}

	e := &OpenAIEncoder{client: client, model: model}
	e.dims.Store(int64(knownDimensions[model]))
	return e, nil
}

func (e *OpenAIEncoder) Name() string { return "openai:" + e.model }

// Dimensions is known up front for OpenAI models and learned from the first
// response otherwise.
func (e *OpenAIEncoder) Dimensions() int { return int(e.dims.Load()) }

func (e *OpenAIEncoder) Close() error { return nil }

func (e *OpenAIEncoder) Encode(ctx context.Context, texts []string) (*Batch, error) {
	if len(texts) == 0 {
		return &Batch{}, nil
	}
	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: texts,
		Model: openai.EmbeddingModel(e.model),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create embeddings: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("embeddings endpoint returned %d vectors for %d texts", len(resp.Data), len(texts))
	}

	vectors := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(texts) || vectors[d.Index] != nil {
			return nil, fmt.Errorf("embeddings endpoint returned bad index %d", d.Index)
		}
		vectors[d.Index] = d.Embedding
	}
	dim := len(vectors[0])
	for _, v := range vectors {
		if len(v) != dim || dim == 0 {
			return nil, errors.New("embeddings endpoint returned vectors of inconsistent width")
		}
	}
	e.dims.Store(int64(dim))
	return pooled(vectors), nil
}
