// Package lock provides named, expiring leases that keep batch jobs from
// running concurrently on more than one host.
package lock

import (
	"context"
	"errors"
	"time"
)

var ErrLocked = errors.New("lock is held by another holder")

// ErrLeaseLost is returned by Extend once the lease expired and was taken
// over, or was removed.
var ErrLeaseLost = errors.New("lease is no longer held")

type Lease interface {
	Name() string
	// Extend pushes the expiry to ttl from now while the lease is still ours.
	Extend(ctx context.Context, ttl time.Duration) error
	Release(ctx context.Context) error
}

type Locker interface {
	// Acquire takes the named lease for ttl. It returns ErrLocked when a
	// live lease is held by someone else.
	Acquire(ctx context.Context, name string, ttl time.Duration) (Lease, error)
}
