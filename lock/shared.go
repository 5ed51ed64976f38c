package lock

import (
	"context"

	"github.com/mlindqvist/zkdistributed/zkclient"
)

// SharedLocker is a distributed read lock: any number of instances may
// hold it concurrently, but it is blocked from returning while a
// preceding ExclusiveLocker request (on the same rootNode and name) is
// pending or held.
type SharedLocker struct {
	base *lockerBase
}

// NewSharedLocker returns a locker for name, rooted under rootNode. It
// contends with ExclusiveLocker instances sharing the same pair, but
// never with other SharedLocker instances.
func NewSharedLocker(client zkclient.Client, rootNode, name string, opts ...Option) (*SharedLocker, error) {
	base, err := newLockerBase(client, rootNode, name, sharedPolicy{}, opts...)
	if err != nil {
		return nil, err
	}
	return &SharedLocker{base: base}, nil
}

// Lock blocks until this instance owns the shared lock, the session is
// lost, or Close is called. ctx is used only for log/trace correlation.
func (l *SharedLocker) Lock(ctx context.Context) error { return l.base.lock(ctx) }

// TryLock attempts to acquire the shared lock without blocking. It
// returns true if acquisition succeeded immediately; otherwise it
// returns false, with no error, having removed the transient node the
// attempt created.
func (l *SharedLocker) TryLock(ctx context.Context) (bool, error) { return l.base.tryLock(ctx) }

// Unlock releases this instance's hold. It returns false, with a nil
// error, if the parent node's identity no longer matches what was
// remembered at acquisition time.
func (l *SharedLocker) Unlock() (bool, error) { return l.base.unlock() }

// WithLock runs fn while holding the shared lock, unlocking
// unconditionally afterward.
func (l *SharedLocker) WithLock(ctx context.Context, fn func() error) error {
	if err := l.Lock(ctx); err != nil {
		return err
	}
	defer l.Unlock()
	return fn()
}

// Assert returns a non-nil error the moment any invariant this instance
// relies on no longer holds.
func (l *SharedLocker) Assert() error { return l.base.assert() }

// Acquirable reports whether a fresh Lock call would succeed immediately.
func (l *SharedLocker) Acquirable() (bool, error) { return l.base.acquirable() }

// OwnerData returns the data attached by the first exclusive-prefixed
// sibling, if one is currently held or queued — it is what every
// shared waiter behind it is actually blocked on — else falls back to
// the longest-queued (lowest sequence) reader.
func (l *SharedLocker) OwnerData() ([]byte, error) {
	return l.base.ownerDataPreferring(exclusivePolicyPrefix)
}

// Close interrupts a blocked Lock call and marks this instance unusable
// for further acquisition attempts.
func (l *SharedLocker) Close() { l.base.close() }
