//go:build !ladybug

package driver

import (
	"context"
	"errors"
	"log/slog"

	"github.com/soundprediction/kgpath/pkg/types"
)

// ErrLadybugUnavailable is returned when the binary was built without the
// ladybug tag.
var ErrLadybugUnavailable = errors.New("ladybug driver unavailable; build with -tags ladybug and CGO_ENABLED=1")

// LadybugDriver is a stub implementation when the ladybug tag is not set.
// All methods return ErrLadybugUnavailable.
type LadybugDriver struct{}

var _ GraphDriver = (*LadybugDriver)(nil)

// NewLadybugDriver returns ErrLadybugUnavailable.
func NewLadybugDriver(path string, logger *slog.Logger) (*LadybugDriver, error) {
	return nil, ErrLadybugUnavailable
}

func (d *LadybugDriver) SearchOneHop(ctx context.Context, src, dst types.Entity) ([]types.Path, error) {
	return nil, ErrLadybugUnavailable
}

func (d *LadybugDriver) SearchTwoHop(ctx context.Context, src, dst types.Entity) ([]types.Path, error) {
	return nil, ErrLadybugUnavailable
}

func (d *LadybugDriver) Relations(ctx context.Context, entity types.Entity, limit int) ([]types.Relation, error) {
	return nil, ErrLadybugUnavailable
}

func (d *LadybugDriver) Objects(ctx context.Context, entity types.Entity, rel types.Relation, limit int) ([]types.Entity, error) {
	return nil, ErrLadybugUnavailable
}

func (d *LadybugDriver) Label(ctx context.Context, id string) (string, error) {
	return "", ErrLadybugUnavailable
}

func (d *LadybugDriver) AddTriples(ctx context.Context, triples []types.Triplet) error {
	return ErrLadybugUnavailable
}

func (d *LadybugDriver) SetLabels(ctx context.Context, labels map[string]string) error {
	return ErrLadybugUnavailable
}

func (d *LadybugDriver) Provider() GraphProvider { return GraphProviderLadybug }

// Close returns nil
func (d *LadybugDriver) Close() error { return nil }
