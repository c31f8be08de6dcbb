package signer

import "sync"

// DefaultKeyCacheSize bounds the number of derived keys held by a cache
// built with a non-positive capacity.
const DefaultKeyCacheSize = 50

// KeyCache stores derived signing keys. When a cache reaches its capacity
// the next insert drops every entry; callers re-derive on a miss.
type KeyCache interface {
	Get(key string) ([]byte, bool)
	Set(key string, derived []byte)
	Len() int
}

// BoundedKeyCache is a KeyCache that can be used concurrently from
// multiple goroutines.
type BoundedKeyCache struct {
	mu       sync.RWMutex
	capacity int
	values   map[string][]byte
}

// NewBoundedKeyCache creates a thread-safe cache holding at most capacity keys.
func NewBoundedKeyCache(capacity int) *BoundedKeyCache {
	if capacity <= 0 {
		capacity = DefaultKeyCacheSize
	}
	return &BoundedKeyCache{
		capacity: capacity,
		values:   make(map[string][]byte, capacity),
	}
}

// Get retrieves a cached key under a read lock.
func (c *BoundedKeyCache) Get(key string) ([]byte, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	k, ok := c.values[key]
	return k, ok
}

// Set stores a derived key, clearing the whole cache first when it is full.
func (c *BoundedKeyCache) Set(key string, derived []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.values[key]; !ok && len(c.values) >= c.capacity {
		clear(c.values)
	}
	c.values[key] = derived
}

// Len returns the number of cached keys.
func (c *BoundedKeyCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.values)
}

// UnsyncedKeyCache applies the same clear-on-overflow policy without any
// locking. A Signer using it must be used from a single goroutine at a time.
type UnsyncedKeyCache struct {
	capacity int
	values   map[string][]byte
}

// NewUnsyncedKeyCache creates a non-thread-safe cache holding at most capacity keys.
func NewUnsyncedKeyCache(capacity int) *UnsyncedKeyCache {
	if capacity <= 0 {
		capacity = DefaultKeyCacheSize
	}
	return &UnsyncedKeyCache{
		capacity: capacity,
		values:   make(map[string][]byte, capacity),
	}
}

// Get retrieves a cached key.
func (c *UnsyncedKeyCache) Get(key string) ([]byte, bool) {
	k, ok := c.values[key]
	return k, ok
}

// Set stores a derived key, clearing the whole cache first when it is full.
func (c *UnsyncedKeyCache) Set(key string, derived []byte) {
	if _, ok := c.values[key]; !ok && len(c.values) >= c.capacity {
		clear(c.values)
	}
	c.values[key] = derived
}

// Len returns the number of cached keys.
func (c *UnsyncedKeyCache) Len() int {
	return len(c.values)
}

// DefaultKeyCache is shared by every Signer built without WithKeyCache, so
// keys survive across upload sessions in the same process.
var DefaultKeyCache KeyCache = NewBoundedKeyCache(DefaultKeyCacheSize)
