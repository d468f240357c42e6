package page

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/AdguardTeam/golibs/logutil/slogutil"
	"github.com/shieldkit/webshield/internal/metrics"
	"github.com/shieldkit/webshield/internal/wstime"
)

// Registry is the registry of pages.  All methods are safe for concurrent use.
type Registry struct {
	logger *slog.Logger
	sched  wstime.Scheduler

	// mu protects pages and lastGen.
	mu    *sync.Mutex
	pages map[string]*entry

	// lastGen is the last generation stamped by the registry.  Generations are
	// unique across all pages, so a handle from before [Registry.Close] never
	// becomes current again when the id is reused.
	lastGen uint64
}

// entry is the state of a single page.
type entry struct {
	stats Stats
	gen   uint64
}

// NewRegistry returns a new empty registry.  l and sched must not be nil.
func NewRegistry(l *slog.Logger, sched wstime.Scheduler) (r *Registry) {
	return &Registry{
		logger: l,
		sched:  sched,
		mu:     &sync.Mutex{},
		pages:  map[string]*entry{},
	}
}

// Navigate starts a new generation of the page with the given id, resetting its
// statistics, and returns its handle.  Functions scheduled for the previous
// generations are dropped.
func (r *Registry) Navigate(id string) (h Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e := r.entry(id)
	e.gen = r.nextGen()
	e.stats = Stats{}

	return Handle{ID: id, Generation: e.gen}
}

// Current returns the handle of the current generation of the page with the
// given id, registering the page if necessary.
func (r *Registry) Current(id string) (h Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return Handle{ID: id, Generation: r.entry(id).gen}
}

// entry returns the entry for id, creating it if necessary.  r.mu must be
// locked.
func (r *Registry) entry(id string) (e *entry) {
	e, ok := r.pages[id]
	if !ok {
		e = &entry{
			gen: r.nextGen(),
		}
		r.pages[id] = e
		metrics.InterceptorPages.Set(float64(len(r.pages)))
	}

	return e
}

// nextGen returns a new generation.  r.mu must be locked.
func (r *Registry) nextGen() (gen uint64) {
	r.lastGen++

	return r.lastGen
}

// isCurrent returns true if h is the current generation of its page.  r.mu
// must be locked.
func (r *Registry) isCurrent(h Handle) (ok bool) {
	e, ok := r.pages[h.ID]

	return ok && e.gen == h.Generation
}

// Increment increments the counter c of the page generation h.  Increments for
// ended generations are ignored.
func (r *Registry) Increment(h Handle, c Counter) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.isCurrent(h) {
		r.pages[h.ID].stats.increment(c)
	}
}

// Stats returns the statistics of the page with the given id.  ok is false if
// there is no such page.
func (r *Registry) Stats(id string) (s Stats, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.pages[id]
	if !ok {
		return Stats{}, false
	}

	return e.stats, true
}

// Schedule runs f in its own goroutine after delay if the generation h is still
// current by then.
func (r *Registry) Schedule(h Handle, delay time.Duration, f func()) {
	r.sched.AfterFunc(delay, func() {
		r.mu.Lock()
		ok := r.isCurrent(h)
		r.mu.Unlock()

		if !ok {
			metrics.InterceptorDroppedNavigations.Inc()
			r.logger.Debug("dropped scheduled function", "page", h.ID, "gen", h.Generation)

			return
		}

		defer slogutil.RecoverAndLog(context.Background(), r.logger)

		f()
	})
}

// Close removes the page with the given id.  Scheduled functions of the page
// are dropped.
func (r *Registry) Close(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.pages, id)
	metrics.InterceptorPages.Set(float64(len(r.pages)))
}

// Len returns the number of registered pages.
func (r *Registry) Len() (n int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.pages)
}
