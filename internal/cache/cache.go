// Package cache provides bounded result caches with first-in first-out
// eviction, in memory or shared through Redis.
package cache

import (
	"context"
	"sync"
)

// DefaultCapacity is used when a cache is created with capacity <= 0.
const DefaultCapacity = 100

// Store is a bounded key/value cache.
type Store[V any] interface {
	Get(ctx context.Context, key string) (V, bool, error)
	Put(ctx context.Context, key string, value V) error
	Len(ctx context.Context) (int, error)
}

// Compile-time check.
var _ Store[int] = (*FIFO[int])(nil)

// FIFO is an in-memory cache that evicts the oldest inserted key when full.
type FIFO[V any] struct {
	mu       sync.Mutex
	capacity int
	entries  map[string]V
	order    []string
}

// NewFIFO creates an in-memory cache holding at most capacity entries.
func NewFIFO[V any](capacity int) *FIFO[V] {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &FIFO[V]{
		capacity: capacity,
		entries:  make(map[string]V, capacity),
	}
}

// Get returns the value stored under key.
func (c *FIFO[V]) Get(_ context.Context, key string) (V, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.entries[key]
	return v, ok, nil
}

// Put stores value under key. Replacing an existing key keeps its position
// in the eviction order.
func (c *FIFO[V]) Put(_ context.Context, key string, value V) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.entries[key]; ok {
		c.entries[key] = value
		return nil
	}
	for len(c.order) >= c.capacity {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.entries, oldest)
	}
	c.entries[key] = value
	c.order = append(c.order, key)
	return nil
}

// Len returns the number of cached entries.
func (c *FIFO[V]) Len(_ context.Context) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries), nil
}

// Capacity returns the maximum number of entries.
func (c *FIFO[V]) Capacity() int { return c.capacity }
