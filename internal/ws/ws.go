// Package ws contains common entities and interfaces of WebShield.
package ws

import (
	"context"
	"io/fs"
)

// OS-Related Constants

// DefaultPerm is the default set of permissions for non-executable files.  Be
// strict and allow only reading and writing for the file, and only to the user.
const DefaultPerm fs.FileMode = 0o600

// DefaultDirPerm is the default set of permissions for directories.
const DefaultDirPerm fs.FileMode = 0o700

// Refresher is the interface for entities that can update themselves on
// demand, for example by downloading a fresh copy of their data.
type Refresher interface {
	// Refresh performs a synchronous update.  It must be safe for concurrent
	// use.
	Refresh(ctx context.Context) (err error)
}

// RefresherFunc is an adapter to allow the use of ordinary functions as
// [Refresher].
type RefresherFunc func(ctx context.Context) (err error)

// type check
var _ Refresher = RefresherFunc(nil)

// Refresh implements the [Refresher] interface for RefresherFunc.
func (f RefresherFunc) Refresh(ctx context.Context) (err error) {
	return f(ctx)
}
