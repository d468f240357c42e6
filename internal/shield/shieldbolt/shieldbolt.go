// Package shieldbolt contains a BoltDB-based implementation of the shield
// configuration storage.
package shieldbolt

import (
	"context"
	"fmt"
	"time"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/shieldkit/webshield/internal/shield"
	"github.com/shieldkit/webshield/internal/ws"
	"go.etcd.io/bbolt"
)

// shieldsBucket is the name of the bucket with shield configurations.
const shieldsBucket = "shields"

// openTimeout is the timeout for acquiring the lock on the database file.
const openTimeout = 1 * time.Second

// Storage is a [shield.Storage] that keeps configurations in a BoltDB file.
// The keys are normalized domains and the values are single-byte bitmasks.
type Storage struct {
	db *bbolt.DB
}

// New opens or creates the database at path and returns a new storage.
func New(path string) (s *Storage, err error) {
	defer func() { err = errors.Annotate(err, "shieldbolt: %w") }()

	db, err := bbolt.Open(path, ws.DefaultPerm, &bbolt.Options{
		Timeout: openTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("opening file: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) (ferr error) {
		_, ferr = tx.CreateBucketIfNotExists([]byte(shieldsBucket))

		return ferr
	})
	if err != nil {
		return nil, errors.WithDeferred(fmt.Errorf("initializing: %w", err), db.Close())
	}

	return &Storage{
		db: db,
	}, nil
}

// type check
var _ shield.Storage = (*Storage)(nil)

// Load implements the [shield.Storage] interface for *Storage.
func (s *Storage) Load(_ context.Context) (confs map[string]shield.Configuration, err error) {
	confs = map[string]shield.Configuration{}
	err = s.db.View(func(tx *bbolt.Tx) (ferr error) {
		return tx.Bucket([]byte(shieldsBucket)).ForEach(func(k, v []byte) (fErr error) {
			if len(v) != 1 {
				return fmt.Errorf("domain %q: bad value length %d", k, len(v))
			}

			confs[string(k)] = fromMask(mask(v[0]))

			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("shieldbolt: loading: %w", err)
	}

	return confs, nil
}

// Put implements the [shield.Storage] interface for *Storage.
func (s *Storage) Put(_ context.Context, domain string, c shield.Configuration) (err error) {
	err = s.db.Update(func(tx *bbolt.Tx) (ferr error) {
		return tx.Bucket([]byte(shieldsBucket)).Put([]byte(domain), []byte{byte(toMask(c))})
	})
	if err != nil {
		return fmt.Errorf("shieldbolt: putting %q: %w", domain, err)
	}

	return nil
}

// Remove implements the [shield.Storage] interface for *Storage.
func (s *Storage) Remove(_ context.Context, domain string) (err error) {
	err = s.db.Update(func(tx *bbolt.Tx) (ferr error) {
		return tx.Bucket([]byte(shieldsBucket)).Delete([]byte(domain))
	})
	if err != nil {
		return fmt.Errorf("shieldbolt: removing %q: %w", domain, err)
	}

	return nil
}

// Clear implements the [shield.Storage] interface for *Storage.
func (s *Storage) Clear(_ context.Context) (err error) {
	err = s.db.Update(func(tx *bbolt.Tx) (ferr error) {
		ferr = tx.DeleteBucket([]byte(shieldsBucket))
		if ferr != nil {
			return fmt.Errorf("deleting bucket: %w", ferr)
		}

		_, ferr = tx.CreateBucket([]byte(shieldsBucket))

		return ferr
	})
	if err != nil {
		return fmt.Errorf("shieldbolt: clearing: %w", err)
	}

	return nil
}

// Close closes the database file.
func (s *Storage) Close() (err error) {
	return s.db.Close()
}
