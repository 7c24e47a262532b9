package cache

import (
	"context"
	"encoding/binary"
	"errors"
	"math"
	"strconv"
	"time"
)

// ErrClosed is returned by stores after Close.
var ErrClosed = errors.New("cache store is closed")

// Store is a byte-oriented key/value store used as a second cache level.
type Store interface {
	// Get returns the value and true, or false when the key is absent.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	// Set stores the value. ttl <= 0 stores it without expiry.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Close() error
}

// Codec converts memo values to and from bytes.
type Codec[V any] interface {
	Encode(V) ([]byte, error)
	Decode([]byte) (V, error)
}

// Float64Codec stores float64 values as 8 little-endian bytes.
type Float64Codec struct{}

func (Float64Codec) Encode(v float64) ([]byte, error) {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, math.Float64bits(v))
	return b, nil
}

func (Float64Codec) Decode(b []byte) (float64, error) {
	if len(b) != 8 {
		return 0, errors.New("float64 value must be 8 bytes, got " + strconv.Itoa(len(b)))
	}
	return math.Float64frombits(binary.LittleEndian.Uint64(b)), nil
}

// StringCodec stores strings as raw bytes.
type StringCodec struct{}

func (StringCodec) Encode(v string) ([]byte, error) { return []byte(v), nil }
func (StringCodec) Decode(b []byte) (string, error) { return string(b), nil }
