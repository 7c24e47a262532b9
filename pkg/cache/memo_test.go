package cache

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBadger(t *testing.T) *BadgerStore {
	t.Helper()
	s, err := NewBadgerStore("", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestMemoInMemory(t *testing.T) {
	ctx := context.Background()
	m := NewMemo(MemoOptions[string, float64]{Name: "score", Size: 2})

	_, ok := m.Get(ctx, "a")
	assert.False(t, ok)

	m.Add(ctx, "a", 0.5)
	v, ok := m.Get(ctx, "a")
	require.True(t, ok)
	assert.Equal(t, 0.5, v)

	m.Add(ctx, "b", 0.1)
	m.Add(ctx, "c", 0.2)
	assert.Equal(t, 2, m.Len())
	_, ok = m.Peek("a")
	assert.False(t, ok, "least recently used entry should be evicted")

	hits, misses := m.Stats()
	assert.Equal(t, int64(1), hits)
	assert.Equal(t, int64(1), misses)
}

func TestMemoTTL(t *testing.T) {
	ctx := context.Background()
	m := NewMemo(MemoOptions[string, string]{Size: 10, TTL: 20 * time.Millisecond})
	m.Add(ctx, "k", "v")
	time.Sleep(60 * time.Millisecond)
	_, ok := m.Get(ctx, "k")
	assert.False(t, ok)
}

func TestMemoPromotesFromStore(t *testing.T) {
	ctx := context.Background()
	store := newBadger(t)

	opts := MemoOptions[string, float64]{
		Name:  "score",
		Size:  10,
		Store: store,
		Key:   func(k string) string { return "score:" + k },
		Codec: Float64Codec{},
	}
	first := NewMemo(opts)
	first.Add(ctx, "q", -0.25)

	second := NewMemo(opts)
	_, inMemory := second.Peek("q")
	assert.False(t, inMemory)

	v, ok := second.Get(ctx, "q")
	require.True(t, ok)
	assert.Equal(t, -0.25, v)
	_, inMemory = second.Peek("q")
	assert.True(t, inMemory)
}

func TestBadgerStoreMissingKey(t *testing.T) {
	store := newBadger(t)
	_, ok, err := store.Get(context.Background(), "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.Close())
	_, _, err = store.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrClosed)
	assert.NoError(t, store.Close())
}

func TestRedisStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)

	store, err := NewRedisStore(ctx, RedisOptions{URL: fmt.Sprintf("redis://%s", mr.Addr()), Prefix: "test:"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	require.NoError(t, store.Set(ctx, "who wrote\x1fauthor", []byte("label"), time.Minute))
	v, ok, err := store.Get(ctx, "who wrote\x1fauthor")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("label"), v)

	keys := mr.Keys()
	require.Len(t, keys, 1)
	assert.Contains(t, keys[0], "test:")
	assert.True(t, mr.TTL(keys[0]) > 0)

	_, ok, err = store.Get(ctx, "other")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisStoreConnectFailure(t *testing.T) {
	_, err := NewRedisStore(context.Background(), RedisOptions{URL: "redis://127.0.0.1:1", ConnectTimeout: 100 * time.Millisecond})
	assert.Error(t, err)

	_, err = NewRedisStore(context.Background(), RedisOptions{})
	assert.Error(t, err)
}

func TestFloat64Codec(t *testing.T) {
	b, err := Float64Codec{}.Encode(0.125)
	require.NoError(t, err)
	v, err := Float64Codec{}.Decode(b)
	require.NoError(t, err)
	assert.Equal(t, 0.125, v)

	_, err = Float64Codec{}.Decode([]byte{1, 2})
	assert.Error(t, err)
}
