package lock

import (
	"context"

	"github.com/mlindqvist/zkdistributed/zkclient"
)

// ExclusiveLocker is a distributed mutual-exclusion lock: at most one
// instance across the cluster holds it at a time, and ownership is
// granted strictly in request order (lowest sequence number wins).
type ExclusiveLocker struct {
	base *lockerBase
}

// NewExclusiveLocker returns a locker for name, rooted under rootNode.
// Two instances contend for the same lock iff they share both.
func NewExclusiveLocker(client zkclient.Client, rootNode, name string, opts ...Option) (*ExclusiveLocker, error) {
	base, err := newLockerBase(client, rootNode, name, exclusivePolicy{}, opts...)
	if err != nil {
		return nil, err
	}
	return &ExclusiveLocker{base: base}, nil
}

// Lock blocks until this instance owns the lock, the ZooKeeper session is
// lost, or Close is called. ctx is used only to correlate log lines and
// trace spans; cancelling it does not abort the wait.
func (l *ExclusiveLocker) Lock(ctx context.Context) error { return l.base.lock(ctx) }

// TryLock attempts to acquire the lock without blocking. It returns
// true if acquisition succeeded immediately; otherwise it returns
// false, with no error, having removed the transient node the attempt
// created.
func (l *ExclusiveLocker) TryLock(ctx context.Context) (bool, error) { return l.base.tryLock(ctx) }

// Unlock releases the lock if held. It returns false, with a nil error,
// if this instance can no longer vouch for the parent node's identity —
// its own ephemeral child is still removed either way.
func (l *ExclusiveLocker) Unlock() (bool, error) { return l.base.unlock() }

// WithLock runs fn while holding the lock, unlocking unconditionally
// afterward regardless of fn's outcome.
func (l *ExclusiveLocker) WithLock(ctx context.Context, fn func() error) error {
	if err := l.Lock(ctx); err != nil {
		return err
	}
	defer l.Unlock()
	return fn()
}

// Assert returns a non-nil error the moment any invariant this instance
// relies on — live session, held lock, stable parent identity, no
// preceding sibling — no longer holds.
func (l *ExclusiveLocker) Assert() error { return l.base.assert() }

// Acquirable reports whether a fresh Lock call would succeed immediately,
// without creating a node of its own.
func (l *ExclusiveLocker) Acquirable() (bool, error) { return l.base.acquirable() }

// OwnerData returns the data attached by whichever instance currently
// holds (or is longest queued for) the lock.
func (l *ExclusiveLocker) OwnerData() ([]byte, error) { return l.base.ownerData() }

// Close interrupts a blocked Lock call and marks this instance unusable
// for further acquisition attempts.
func (l *ExclusiveLocker) Close() { l.base.close() }
