package shield

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/AdguardTeam/golibs/logutil/slogutil"
	"github.com/AdguardTeam/golibs/service"
	"github.com/shieldkit/webshield/internal/errcoll"
	"github.com/shieldkit/webshield/internal/metrics"
)

// Interface is the shield configuration store.  All methods must be safe for
// concurrent use.  Methods that change the data return before the change is
// persisted.
type Interface interface {
	// Get returns the configuration for host.  It never fails; if there is no
	// stored configuration, it returns [AllOn].
	Get(host string) (c Configuration)

	// Set sets the configuration for host.  Setting [AllOn] deletes the stored
	// configuration.
	Set(ctx context.Context, host string, c Configuration)

	// Delete deletes the configuration for host, restoring the defaults.
	Delete(ctx context.Context, host string)

	// Reset deletes all configurations.
	Reset(ctx context.Context)
}

// DefaultQueueSize is the default size of the persistence queue of
// [DefaultStore].
const DefaultQueueSize = 64

// Config is the configuration structure for a [DefaultStore].
type Config struct {
	// Logger is used for logging the operation of the store.  It must not be
	// nil.
	Logger *slog.Logger

	// ErrColl is used to collect persistence errors.  It must not be nil.
	ErrColl errcoll.Interface

	// Storage is the persistent storage.  It must not be nil.
	Storage Storage

	// Normalizer normalizes the hosts.  It must not be nil.
	Normalizer *Normalizer

	// QueueSize is the size of the persistence queue.  If it is not positive,
	// [DefaultQueueSize] is used.
	QueueSize int
}

// DefaultStore is the default [Interface] implementation.  It keeps an
// in-memory mirror of the storage and persists changes in a separate
// goroutine.
type DefaultStore struct {
	logger     *slog.Logger
	errColl    errcoll.Interface
	storage    Storage
	normalizer *Normalizer

	// mu protects confs.
	mu    *sync.RWMutex
	confs map[string]Configuration

	queue    chan *persistOp
	stop     chan struct{}
	finished chan struct{}
}

// persistOp is a single persistence operation.  If reset is false, the stored
// value of domain is synchronized with the mirror.  Otherwise, the storage is
// rewritten from the mirror.
type persistOp struct {
	domain string
	reset  bool
}

// NewDefaultStore returns a new store.  c must not be nil and must be valid.
// The store must be started with [DefaultStore.Start] before use.
func NewDefaultStore(c *Config) (s *DefaultStore) {
	qs := c.QueueSize
	if qs <= 0 {
		qs = DefaultQueueSize
	}

	return &DefaultStore{
		logger:     c.Logger,
		errColl:    c.ErrColl,
		storage:    c.Storage,
		normalizer: c.Normalizer,
		mu:         &sync.RWMutex{},
		confs:      map[string]Configuration{},
		queue:      make(chan *persistOp, qs),
		stop:       make(chan struct{}),
		finished:   make(chan struct{}),
	}
}

// type check
var _ Interface = (*DefaultStore)(nil)

// Get implements the [Interface] interface for *DefaultStore.
func (s *DefaultStore) Get(host string) (c Configuration) {
	domain := s.normalizer.Normalize(host)

	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.confs[domain]
	if !ok {
		return AllOn()
	}

	return c
}

// Set implements the [Interface] interface for *DefaultStore.
func (s *DefaultStore) Set(ctx context.Context, host string, c Configuration) {
	domain := s.normalizer.Normalize(host)

	s.mu.Lock()
	if c.IsDefault() {
		delete(s.confs, domain)
	} else {
		s.confs[domain] = c
	}
	n := len(s.confs)
	s.mu.Unlock()

	metrics.ShieldOverridesTotal.Set(float64(n))

	s.enqueue(ctx, &persistOp{domain: domain})
}

// Delete implements the [Interface] interface for *DefaultStore.
func (s *DefaultStore) Delete(ctx context.Context, host string) {
	s.Set(ctx, host, AllOn())
}

// Reset implements the [Interface] interface for *DefaultStore.
func (s *DefaultStore) Reset(ctx context.Context) {
	s.mu.Lock()
	clear(s.confs)
	s.mu.Unlock()

	metrics.ShieldOverridesTotal.Set(0)

	s.enqueue(ctx, &persistOp{reset: true})
}

// All returns a copy of all non-default configurations by normalized domain.
func (s *DefaultStore) All() (confs map[string]Configuration) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	confs = make(map[string]Configuration, len(s.confs))
	for d, c := range s.confs {
		confs[d] = c
	}

	return confs
}

// enqueue sends op to the persistence goroutine unless the store is shutting
// down.
func (s *DefaultStore) enqueue(ctx context.Context, op *persistOp) {
	select {
	case s.queue <- op:
	case <-s.stop:
		s.logger.WarnContext(ctx, "store is shut down; change is not persisted", "domain", op.domain)
	}
}

// type check
var _ service.Interface = (*DefaultStore)(nil)

// Start implements the [service.Interface] interface for *DefaultStore.  It
// loads the stored configurations into memory and starts the persistence
// goroutine.
func (s *DefaultStore) Start(ctx context.Context) (err error) {
	confs, err := s.storage.Load(ctx)
	if err != nil {
		return fmt.Errorf("loading shield configurations: %w", err)
	}

	s.mu.Lock()
	for d, c := range confs {
		if !c.IsDefault() {
			s.confs[d] = c
		}
	}
	n := len(s.confs)
	s.mu.Unlock()

	metrics.ShieldOverridesTotal.Set(float64(n))
	s.logger.InfoContext(ctx, "loaded shield configurations", "num", n)

	go s.persistLoop(errcoll.ContextWithComponent(context.WithoutCancel(ctx), "shields"))

	return nil
}

// Shutdown implements the [service.Interface] interface for *DefaultStore.  It
// persists the queued changes and stops the persistence goroutine.
func (s *DefaultStore) Shutdown(ctx context.Context) (err error) {
	close(s.stop)

	select {
	case <-s.finished:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for persistence: %w", ctx.Err())
	}
}

// persistLoop persists the operations from the queue until the store is shut
// down.  It is intended to be used as a goroutine.
func (s *DefaultStore) persistLoop(ctx context.Context) {
	defer close(s.finished)
	defer slogutil.RecoverAndLog(ctx, s.logger)

	for {
		select {
		case op := <-s.queue:
			s.persist(ctx, op)
		case <-s.stop:
			s.drain(ctx)

			return
		}
	}
}

// drain persists the operations remaining in the queue.
func (s *DefaultStore) drain(ctx context.Context) {
	for {
		select {
		case op := <-s.queue:
			s.persist(ctx, op)
		default:
			return
		}
	}
}

// persist performs a single persistence operation.
func (s *DefaultStore) persist(ctx context.Context, op *persistOp) {
	var err error
	if op.reset {
		err = s.rewrite(ctx)
	} else {
		err = s.sync(ctx, op.domain)
	}

	metrics.SetStatusGauge(metrics.ShieldPersistStatus, err)
	if err != nil {
		errcoll.Collect(ctx, s.errColl, s.logger, "persisting shield configuration", err)
	}
}

// sync makes the stored value for domain match the mirror.
func (s *DefaultStore) sync(ctx context.Context, domain string) (err error) {
	s.mu.RLock()
	c, ok := s.confs[domain]
	s.mu.RUnlock()

	if !ok {
		return s.storage.Remove(ctx, domain)
	}

	return s.storage.Put(ctx, domain, c)
}

// rewrite clears the storage and stores the current contents of the mirror.
func (s *DefaultStore) rewrite(ctx context.Context) (err error) {
	err = s.storage.Clear(ctx)
	if err != nil {
		return fmt.Errorf("clearing: %w", err)
	}

	var errs []error
	for d, c := range s.All() {
		err = s.storage.Put(ctx, d, c)
		if err != nil {
			errs = append(errs, fmt.Errorf("domain %q: %w", d, err))
		}
	}

	return errors.Join(errs...)
}
