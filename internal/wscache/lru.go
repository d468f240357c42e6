package wscache

import (
	"fmt"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/bluele/gcache"
)

// LRUConfig is a configuration structure of a cache.
type LRUConfig struct {
	// Size is the maximum number of items.  It must be positive.
	Size int
}

// LRU is an [Interface] implementation that evicts the least recently used
// items.
type LRU[K, T any] struct {
	cache gcache.Cache
}

// NewLRU returns a new initialized LRU cache.  conf must not be nil.
func NewLRU[K, T any](conf *LRUConfig) (c *LRU[K, T]) {
	return &LRU[K, T]{
		cache: gcache.New(conf.Size).LRU().Build(),
	}
}

// type check
var _ Interface[any, any] = (*LRU[any, any])(nil)

// Set implements the [Interface] interface for *LRU.
func (c *LRU[K, T]) Set(key K, val T) {
	err := c.cache.Set(key, val)
	if err != nil {
		// Shouldn't happen, since we don't set a serialization function.
		panic(fmt.Errorf("wscache: setting cache item: %w", err))
	}
}

// Get implements the [Interface] interface for *LRU.
func (c *LRU[K, T]) Get(key K) (val T, ok bool) {
	v, err := c.cache.Get(key)
	if err != nil {
		if !errors.Is(err, gcache.KeyNotFoundError) {
			// Shouldn't happen, since we don't set a loader function.
			panic(fmt.Errorf("wscache: getting cache item: %w", err))
		}

		return val, false
	}

	// T may be an interface type, so check v against nil explicitly to prevent
	// v.(T) below from panicking.
	if v == nil {
		return val, true
	}

	return v.(T), true
}

// Clear implements the [Interface] interface for *LRU.
func (c *LRU[K, T]) Clear() {
	c.cache.Purge()
}

// Len implements the [Interface] interface for *LRU.
func (c *LRU[K, T]) Len() (n int) {
	const checkExpired = false

	return c.cache.Len(checkExpired)
}
