// Package decisioncache contains a bounded cache of filtering decisions with
// generational eviction.
package decisioncache

import (
	"sync"

	"github.com/shieldkit/webshield/internal/wscache"
)

// Value is a cached filtering decision.
type Value uint8

// Value values.
const (
	// NotApplicable means that the filter has not evaluated the request,
	// since it does not apply to it.
	NotApplicable Value = iota

	// Allowed means that the request has been evaluated and is not blocked.
	Allowed

	// Blocked means that the request has been evaluated and is blocked.
	Blocked
)

// ValueOf returns [Blocked] if blocked is true and [Allowed] otherwise.
func ValueOf(blocked bool) (v Value) {
	if blocked {
		return Blocked
	}

	return Allowed
}

// Key returns the cache key for the request to u made by a page of domain.
func Key(domain, u string) (k string) {
	return domain + "_" + u
}

// Default sizes of a [Cache].
const (
	DefaultGenerations    = 10
	DefaultGenerationSize = 50
)

// Config is the configuration structure for a [Cache].
type Config struct {
	// Generations is the number of generations.  If it is not positive,
	// [DefaultGenerations] is used.
	Generations int

	// GenerationSize is the maximum number of items in a generation.  If it is
	// not positive, [DefaultGenerationSize] is used.
	GenerationSize int
}

// Cache is a cache of decisions.  Items are added to the current generation.
// When it is full, the oldest generation is dropped wholesale and reused as the
// new current one.
type Cache struct {
	// mu protects gens and cur.
	mu   *sync.Mutex
	gens []map[string]Value
	cur  int

	genSize int
}

// New returns a new properly initialized *Cache.  c must not be nil.
func New(c *Config) (cache *Cache) {
	n := c.Generations
	if n <= 0 {
		n = DefaultGenerations
	}

	size := c.GenerationSize
	if size <= 0 {
		size = DefaultGenerationSize
	}

	gens := make([]map[string]Value, n)
	for i := range gens {
		gens[i] = make(map[string]Value, size)
	}

	return &Cache{
		mu:      &sync.Mutex{},
		gens:    gens,
		genSize: size,
	}
}

// type check
var _ wscache.Interface[string, Value] = (*Cache)(nil)

// Get implements the [wscache.Interface] interface for *Cache.  It looks the
// generations up from the newest to the oldest.
func (c *Cache) Get(key string) (v Value, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := len(c.gens)
	for i := range n {
		v, ok = c.gens[(c.cur-i+n)%n][key]
		if ok {
			return v, true
		}
	}

	return NotApplicable, false
}

// Set implements the [wscache.Interface] interface for *Cache.
func (c *Cache) Set(key string, v Value) {
	c.mu.Lock()
	defer c.mu.Unlock()

	gen := c.gens[c.cur]
	if _, ok := gen[key]; !ok && len(gen) >= c.genSize {
		c.cur = (c.cur + 1) % len(c.gens)
		gen = c.gens[c.cur]
		clear(gen)
	}

	gen[key] = v
}

// Clear implements the [wscache.Interface] interface for *Cache.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, gen := range c.gens {
		clear(gen)
	}

	c.cur = 0
}

// Len implements the [wscache.Interface] interface for *Cache.  Keys present in
// more than one generation are counted more than once.
func (c *Cache) Len() (n int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, gen := range c.gens {
		n += len(gen)
	}

	return n
}
