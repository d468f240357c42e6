package wscache

import (
	"maps"
	"slices"
	"sync"
)

// Manager is the cache manager interface.  All methods must be safe for
// concurrent use.
type Manager interface {
	// Add adds cache by id, replacing the previous one, if any.  cache must
	// not be nil.
	Add(id string, cache Clearer)

	// ClearByID clears cache by id.  ok is false if there is no such cache.
	ClearByID(id string) (ok bool)

	// IDs returns a sorted list of the identifiers of added caches.
	IDs() (ids []string)
}

// DefaultManager implements the [Manager] interface that stores caches and can
// clear them by id.
type DefaultManager struct {
	mu     *sync.Mutex
	caches map[string]Clearer
}

// NewDefaultManager returns a new initialized *DefaultManager.
func NewDefaultManager() (m *DefaultManager) {
	return &DefaultManager{
		mu:     &sync.Mutex{},
		caches: map[string]Clearer{},
	}
}

// type check
var _ Manager = (*DefaultManager)(nil)

// Add implements the [Manager] interface for *DefaultManager.
func (m *DefaultManager) Add(id string, cache Clearer) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.caches[id] = cache
}

// ClearByID implements the [Manager] interface for *DefaultManager.
func (m *DefaultManager) ClearByID(id string) (ok bool) {
	m.mu.Lock()
	cache, ok := m.caches[id]
	m.mu.Unlock()

	if ok {
		cache.Clear()
	}

	return ok
}

// IDs implements the [Manager] interface for *DefaultManager.
func (m *DefaultManager) IDs() (ids []string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return slices.Sorted(maps.Keys(m.caches))
}
