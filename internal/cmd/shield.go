package cmd

import (
	"context"
	"fmt"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/AdguardTeam/golibs/service"
	"github.com/AdguardTeam/golibs/validate"
	"github.com/shieldkit/webshield/internal/shield"
	"github.com/shieldkit/webshield/internal/shield/shieldbolt"
)

// shieldsConfig is the configuration of the shield configuration store.
type shieldsConfig struct {
	// NormalizationPrefixes are the subdomain prefixes stripped from hosts.  If
	// empty, the default prefixes are used.
	NormalizationPrefixes []string `yaml:"normalization_prefixes"`

	// QueueSize is the size of the persistence queue.
	QueueSize int `yaml:"queue_size"`
}

// type check
var _ validate.Interface = (*shieldsConfig)(nil)

// Validate implements the [validate.Interface] interface for *shieldsConfig.
func (c *shieldsConfig) Validate() (err error) {
	if c == nil {
		return errors.ErrNoValue
	}

	errs := []error{
		validate.Positive("queue_size", c.QueueSize),
	}

	for i, p := range c.NormalizationPrefixes {
		errs = append(errs, validate.NotEmpty(fmt.Sprintf("normalization_prefixes: at index %d", i), p))
	}

	return errors.Join(errs...)
}

// shieldsService starts and stops the shield configuration store together with
// its persistent storage.
type shieldsService struct {
	store   *shield.DefaultStore
	storage *shieldbolt.Storage
}

// type check
var _ service.Interface = (*shieldsService)(nil)

// Start implements the [service.Interface] interface for *shieldsService.
func (s *shieldsService) Start(ctx context.Context) (err error) {
	err = s.store.Start(ctx)
	if err != nil {
		return errors.WithDeferred(err, s.storage.Close())
	}

	return nil
}

// Shutdown implements the [service.Interface] interface for *shieldsService.
// The storage is closed after the store has persisted its queue.
func (s *shieldsService) Shutdown(ctx context.Context) (err error) {
	err = s.store.Shutdown(ctx)

	return errors.WithDeferred(err, s.storage.Close())
}
