//go:build !embedeverything

package encoder

import (
	"context"
	"errors"
)

// ErrEmbedEverythingUnavailable is returned when the binary was built
// without the embedeverything tag.
var ErrEmbedEverythingUnavailable = errors.New("embedeverything encoder unavailable; build with -tags embedeverything")

// EmbedEverythingEncoder is a stub; all methods return ErrEmbedEverythingUnavailable.
type EmbedEverythingEncoder struct{}

var _ Encoder = (*EmbedEverythingEncoder)(nil)

// NewEmbedEverythingEncoder returns a *ModelLoadError wrapping ErrEmbedEverythingUnavailable.
func NewEmbedEverythingEncoder(model string) (*EmbedEverythingEncoder, error) {
	return nil, &ModelLoadError{Path: model, Err: ErrEmbedEverythingUnavailable}
}

func (e *EmbedEverythingEncoder) Name() string { return "embedeverything" }

func (e *EmbedEverythingEncoder) Dimensions() int { return 0 }

func (e *EmbedEverythingEncoder) Encode(ctx context.Context, texts []string) (*Batch, error) {
	return nil, ErrEmbedEverythingUnavailable
}

func (e *EmbedEverythingEncoder) Close() error { return nil }
