// Package artifact contains the distributor of rule artifacts: the data files
// that the filters are built from.  A distributor keeps a file on disk,
// revalidates it against its server, and downloads new versions.
package artifact

import (
	"context"
	"math/rand/v2"
	"time"
)

// Artifact is a downloaded or cached rule artifact.
type Artifact struct {
	// Data is the content of the artifact.
	Data []byte

	// ETag is the entity tag the artifact was fetched with.  It is empty if
	// the server did not send one.
	ETag string

	// Path is the path to the file the data has been written to.  During
	// [Consumer.Parse] of a downloaded artifact it is the path to a pending
	// file that is not yet in place.
	Path string
}

// Consumer parses and installs artifacts.  T is the type of the parsed,
// read-only view of the artifact.
type Consumer[T any] interface {
	// Parse parses a.  It must not change the state of the consumer, since the
	// artifact is only committed to disk after a successful parse.
	Parse(ctx context.Context, a *Artifact) (v T, err error)

	// Install replaces the current view with v.  It must be atomic with
	// regards to the readers of the view.
	Install(ctx context.Context, v T)
}

// RetryPolicy is the policy of download retries.  There is no limit on the
// number of retries.
type RetryPolicy struct {
	// Delay is the fixed delay before each retry.  It must be positive.
	Delay time.Duration

	// Jitter is the maximum random duration added to Delay.  It must not be
	// negative.
	Jitter time.Duration
}

// Next returns the delay before the next retry.
func (p *RetryPolicy) Next() (d time.Duration) {
	if p.Jitter <= 0 {
		return p.Delay
	}

	// #nosec G404 -- The jitter doesn't need to be cryptographically secure.
	return p.Delay + rand.N(p.Jitter+1)
}
