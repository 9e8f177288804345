// Package cache is the decoded-chunk cache between the byte-stream API
// and the chunk codec: a small LRU with a per-key gate so concurrent
// readers of the same missing chunk trigger exactly one decode.
//
// Cached slices are immutable by contract; callers copy out, never write
// through.
package cache

import (
	"errors"

	lru "github.com/hashicorp/golang-lru/v2"

	"ewfkit/internal/callgroup"
)

// DefaultSize is the default entry count.
const DefaultSize = 32

// Cache holds decoded chunk payloads keyed by chunk index.
type Cache struct {
	lru   *lru.Cache[uint64, []byte]
	group callgroup.Group[uint64, []byte]
}

// New returns a cache bounded to size entries.
func New(size int) (*Cache, error) {
	if size <= 0 {
		size = DefaultSize
	}
	l, err := lru.New[uint64, []byte](size)
	if err != nil {
		return nil, errors.New("cache: " + err.Error())
	}
	return &Cache{lru: l}, nil
}

// Get returns the payload for index, invoking load on a miss. Concurrent
// callers for the same missing index serialize on a per-key gate: one
// invokes load, the rest receive its result. Failed loads are not cached.
func (c *Cache) Get(index uint64, load func() ([]byte, error)) ([]byte, error) {
	if data, ok := c.lru.Get(index); ok {
		return data, nil
	}
	return c.group.Do(index, func() ([]byte, error) {
		// A winner may have populated the entry while we queued.
		if data, ok := c.lru.Get(index); ok {
			return data, nil
		}
		data, err := load()
		if err != nil {
			return nil, err
		}
		c.lru.Add(index, data)
		return data, nil
	})
}

// Invalidate drops the entry for index. Called after a write shadows the
// chunk.
func (c *Cache) Invalidate(index uint64) {
	c.lru.Remove(index)
}

// Purge empties the cache.
func (c *Cache) Purge() {
	c.lru.Purge()
}
