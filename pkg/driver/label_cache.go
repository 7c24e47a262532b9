package driver

import (
	"context"
	"errors"
	"log/slog"

	"golang.org/x/sync/singleflight"

	"github.com/soundprediction/kgpath/pkg/cache"
	"github.com/soundprediction/kgpath/pkg/metrics"
	"github.com/soundprediction/kgpath/pkg/types"
)

// LabelCacheDriver memoizes Label lookups. Concurrent lookups of the same
// id share one backend call.
type LabelCacheDriver struct {
	next  GraphDriver
	memo  *cache.Memo[string, string]
	group singleflight.Group
}

var _ GraphDriver = (*LabelCacheDriver)(nil)

// NewLabelCacheDriver caches up to size labels in memory. A non-nil store
// persists them across runs.
func NewLabelCacheDriver(next GraphDriver, size int, store cache.Store, recorder metrics.Recorder, logger *slog.Logger) *LabelCacheDriver {
	opts := cache.MemoOptions[string, string]{
		Name:     "labels",
		Size:     size,
		Recorder: recorder,
		Logger:   logger,
	}
	if store != nil {
		opts.Store = store
		opts.Key = func(id string) string { return string(next.Provider()) + ":" + id }
		opts.Codec = cache.StringCodec{}
	}
	return &LabelCacheDriver{next: next, memo: cache.NewMemo(opts)}
}

func (l *LabelCacheDriver) Label(ctx context.Context, id string) (string, error) {
	if label, ok := l.memo.Get(ctx, id); ok {
		return label, nil
	}
	v, err, _ := l.group.Do(id, func() (interface{}, error) {
		label, err := l.next.Label(ctx, id)
		if err != nil {
			return "", err
		}
		l.memo.Add(ctx, id, label)
		return label, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// Len reports the number of labels held in memory.
func (l *LabelCacheDriver) Len() int { return l.memo.Len() }

func (l *LabelCacheDriver) SearchOneHop(ctx context.Context, src, dst types.Entity) ([]types.Path, error) {
	return l.next.SearchOneHop(ctx, src, dst)
}

func (l *LabelCacheDriver) SearchTwoHop(ctx context.Context, src, dst types.Entity) ([]types.Path, error) {
	return l.next.SearchTwoHop(ctx, src, dst)
}

func (l *LabelCacheDriver) Relations(ctx context.Context, entity types.Entity, limit int) ([]types.Relation, error) {
	return l.next.Relations(ctx, entity, limit)
}

func (l *LabelCacheDriver) Objects(ctx context.Context, entity types.Entity, rel types.Relation, limit int) ([]types.Entity, error) {
	return l.next.Objects(ctx, entity, rel, limit)
}

func (l *LabelCacheDriver) Provider() GraphProvider { return l.next.Provider() }

func (l *LabelCacheDriver) Close() error {
	return errors.Join(l.memo.Close(), l.next.Close())
}

// Unwrap returns the wrapped driver.
func (l *LabelCacheDriver) Unwrap() GraphDriver { return l.next }
