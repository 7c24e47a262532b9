package encoder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/soundprediction/kgpath/pkg/config"
	"github.com/soundprediction/kgpath/pkg/utils"
)

// Provider names an encoder implementation.
type Provider string

const (
	ProviderNative          Provider = "native"
	ProviderOpenAI          Provider = "openai"
	ProviderEmbedEverything Provider = "embedeverything"
)

// ErrUnknownProvider is returned by New for unsupported providers.
var ErrUnknownProvider = errors.New("unknown encoder provider")

// Batch holds encoder output for a list of texts. Hidden is indexed
// [text][token][dim]; Mask marks real tokens with 1 and padding with 0.
type Batch struct {
	Hidden [][][]float32
	Mask   [][]int
}

// Len returns the number of texts in the batch.
func (b *Batch) Len() int { return len(b.Hidden) }

// Encoder maps texts to token states.
type Encoder interface {
	Encode(ctx context.Context, texts []string) (*Batch, error)
	// Name identifies the model, e.g. for cache namespaces.
	Name() string
	Dimensions() int
	Close() error
}

// ModelLoadError reports an encoder that could not be loaded.
type ModelLoadError struct {
	Path string
	Err  error
}

func (e *ModelLoadError) Error() string {
	return fmt.Sprintf("failed to load encoder model from %s: %v", e.Path, e.Err)
}

func (e *ModelLoadError) Unwrap() error { return e.Err }

// AveragePool averages each text's token states over its attention mask.
func AveragePool(b *Batch, dim int) ([][]float32, error) {
	if len(b.Hidden) != len(b.Mask) {
		return nil, fmt.Errorf("hidden states and mask disagree: %d vs %d texts", len(b.Hidden), len(b.Mask))
	}
	out := make([][]float32, len(b.Hidden))
	for i := range b.Hidden {
		out[i] = utils.MaskedMean(b.Hidden[i], b.Mask[i], dim)
	}
	return out, nil
}

// Embed encodes texts and pools them into one vector each.
func Embed(ctx context.Context, enc Encoder, texts []string) ([][]float32, error) {
	b, err := enc.Encode(ctx, texts)
	if err != nil {
		return nil, err
	}
	if b.Len() != len(texts) {
		return nil, fmt.Errorf("encoder %s returned %d results for %d texts", enc.Name(), b.Len(), len(texts))
	}
	return AveragePool(b, enc.Dimensions())
}

// pooled wraps already-pooled vectors as single-token states.
func pooled(vectors [][]float32) *Batch {
	b := &Batch{
		Hidden: make([][][]float32, len(vectors)),
		Mask:   make([][]int, len(vectors)),
	}
	for i, v := range vectors {
		b.Hidden[i] = [][]float32{v}
		b.Mask[i] = []int{1}
	}
	return b
}

// New creates the encoder configured in cfg. Load failures are returned as
// *ModelLoadError.
func New(cfg config.EncoderConfig, logger *slog.Logger) (Encoder, error) {
	if logger == nil {
		logger = slog.Default()
	}
	switch Provider(cfg.Provider) {
	case ProviderNative, "":
		enc, err := LoadNative(cfg.Model)
		if err != nil {
			return nil, err
		}
		logger.Info("Loaded native encoder", "path", cfg.Model, "name", enc.Name(), "dimensions", enc.Dimensions())
		return enc, nil
	case ProviderOpenAI:
		enc, err := NewOpenAIEncoder(OpenAIConfig{APIKey: cfg.APIKey, BaseURL: cfg.BaseURL, Model: cfg.Model})
		if err != nil {
			return nil, &ModelLoadError{Path: cfg.BaseURL, Err: err}
		}
		return enc, nil
	case ProviderEmbedEverything:
		enc, err := NewEmbedEverythingEncoder(cfg.Model)
		if err != nil {
			return nil, err
		}
		return enc, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, cfg.Provider)
	}
}
