package cache

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/soundprediction/kgpath/pkg/metrics"
)

// MemoOptions configures a Memo.
type MemoOptions[K comparable, V any] struct {
	// Name labels metrics and log records.
	Name string
	// Size bounds the in-process level. 0 means unbounded.
	Size int
	// TTL expires entries in both levels. <= 0 disables expiry.
	TTL time.Duration

	// Store is the optional second level. Key and Codec are required with it.
	Store Store
	Key   func(K) string
	Codec Codec[V]

	Recorder metrics.Recorder
	Logger   *slog.Logger
}

// Memo is a two-level memoization table. It is safe for concurrent use.
type Memo[K comparable, V any] struct {
	name     string
	l1       *expirable.LRU[K, V]
	store    Store
	key      func(K) string
	codec    Codec[V]
	ttl      time.Duration
	recorder metrics.Recorder
	logger   *slog.Logger

	hits   atomic.Int64
	misses atomic.Int64
}

// NewMemo builds a memo. A Store without Key or Codec is ignored.
func NewMemo[K comparable, V any](opts MemoOptions[K, V]) *Memo[K, V] {
	size := opts.Size
	if size < 0 {
		size = 0
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	m := &Memo[K, V]{
		name:     opts.Name,
		l1:       expirable.NewLRU[K, V](size, nil, opts.TTL),
		ttl:      opts.TTL,
		recorder: metrics.OrNoop(opts.Recorder),
		logger:   logger,
	}
	if opts.Store != nil && opts.Key != nil && opts.Codec != nil {
		m.store, m.key, m.codec = opts.Store, opts.Key, opts.Codec
	} else if opts.Store != nil {
		logger.Warn("Cache store ignored: key function and codec are required", "cache", opts.Name)
	}
	return m
}

// Get looks the key up in memory, then in the store. Store hits are
// promoted into memory.
func (m *Memo[K, V]) Get(ctx context.Context, k K) (V, bool) {
	if v, ok := m.l1.Get(k); ok {
		m.hit()
		return v, true
	}
	if m.store != nil {
		raw, ok, err := m.store.Get(ctx, m.key(k))
		if err != nil {
			m.logger.Warn("Cache store lookup failed", "cache", m.name, "error", err)
		} else if ok {
			v, err := m.codec.Decode(raw)
			if err == nil {
				m.l1.Add(k, v)
				m.hit()
				return v, true
			}
			m.logger.Warn("Cache store entry undecodable", "cache", m.name, "error", err)
		}
	}
	m.misses.Add(1)
	m.recorder.IncCache(m.name, false)
	var zero V
	return zero, false
}

// Peek looks the key up in memory only, without touching recency or stats.
func (m *Memo[K, V]) Peek(k K) (V, bool) {
	return m.l1.Peek(k)
}

// Add stores the value in both levels. Store failures are logged.
func (m *Memo[K, V]) Add(ctx context.Context, k K, v V) {
	m.l1.Add(k, v)
	if m.store == nil {
		return
	}
	raw, err := m.codec.Encode(v)
	if err != nil {
		m.logger.Warn("Cache value not encodable", "cache", m.name, "error", err)
		return
	}
	if err := m.store.Set(ctx, m.key(k), raw, m.ttl); err != nil {
		m.logger.Warn("Cache store write failed", "cache", m.name, "error", err)
	}
}

func (m *Memo[K, V]) hit() {
	m.hits.Add(1)
	m.recorder.IncCache(m.name, true)
}

// Len returns the number of in-memory entries.
func (m *Memo[K, V]) Len() int { return m.l1.Len() }

// Purge clears the in-memory level.
func (m *Memo[K, V]) Purge() { m.l1.Purge() }

// Stats returns lookup hit and miss counts.
func (m *Memo[K, V]) Stats() (hits, misses int64) {
	return m.hits.Load(), m.misses.Load()
}

// Close closes the store, if any.
func (m *Memo[K, V]) Close() error {
	if m.store == nil {
		return nil
	}
	return m.store.Close()
}
