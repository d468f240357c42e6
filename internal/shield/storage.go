package shield

import "context"

// Storage is the persistent storage of shield configurations.  Only non-default
// configurations are stored.  All methods must be safe for concurrent use.
type Storage interface {
	// Load returns all stored configurations by normalized domain.
	Load(ctx context.Context) (confs map[string]Configuration, err error)

	// Put stores the configuration for domain, replacing the previous one.
	Put(ctx context.Context, domain string, c Configuration) (err error)

	// Remove removes the configuration for domain, if any.
	Remove(ctx context.Context, domain string) (err error)

	// Clear removes all configurations.
	Clear(ctx context.Context) (err error)
}

// EmptyStorage is a [Storage] that keeps nothing.
type EmptyStorage struct{}

// type check
var _ Storage = EmptyStorage{}

// Load implements the [Storage] interface for EmptyStorage.
func (EmptyStorage) Load(_ context.Context) (confs map[string]Configuration, err error) {
	return nil, nil
}

// Put implements the [Storage] interface for EmptyStorage.
func (EmptyStorage) Put(_ context.Context, _ string, _ Configuration) (err error) { return nil }

// Remove implements the [Storage] interface for EmptyStorage.
func (EmptyStorage) Remove(_ context.Context, _ string) (err error) { return nil }

// Clear implements the [Storage] interface for EmptyStorage.
func (EmptyStorage) Clear(_ context.Context) (err error) { return nil }
