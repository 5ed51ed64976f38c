package lock_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mlindqvist/zkdistributed/lock"
	"github.com/mlindqvist/zkdistributed/zkclient"
	"github.com/mlindqvist/zkdistributed/zkclienttest"
	"github.com/mlindqvist/zkdistributed/zkpath"
)

func TestExclusiveLocker_SoleRequesterAcquiresImmediately(t *testing.T) {
	client := zkclienttest.New()
	l, err := lock.NewExclusiveLocker(client, "locks", "widget")
	require.NoError(t, err)

	require.NoError(t, l.Lock(context.Background()))
	require.NoError(t, l.Assert())

	ok, err := l.Unlock()
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestExclusiveLocker_SecondRequesterWaitsForFirst(t *testing.T) {
	client := zkclienttest.New()
	a, err := lock.NewExclusiveLocker(client, "locks", "widget")
	require.NoError(t, err)
	b, err := lock.NewExclusiveLocker(client, "locks", "widget")
	require.NoError(t, err)

	require.NoError(t, a.Lock(context.Background()))

	acquirable, err := b.Acquirable()
	require.NoError(t, err)
	assert.False(t, acquirable)

	done := make(chan error, 1)
	go func() { done <- b.Lock(context.Background()) }()

	select {
	case <-done:
		t.Fatal("b acquired the lock while a still holds it")
	case <-time.After(20 * time.Millisecond):
	}

	ok, err := a.Unlock()
	require.NoError(t, err)
	assert.True(t, ok)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("b never acquired the lock after a released it")
	}
}

// Exercises the scenario where A holds the lock, A's session expires
// (removing its ephemeral child and leaving the parent empty), a foreign
// party deletes and recreates the parent node giving it a new identity
// token, and only then does A attempt to clean up: Unlock must report
// false since A can no longer vouch for the parent's state.
func TestExclusiveLocker_UnlockReportsFalseWhenParentIdentityChanged(t *testing.T) {
	client := zkclienttest.New()
	a, err := lock.NewExclusiveLocker(client, "locks", "widget")
	require.NoError(t, err)
	require.NoError(t, a.Lock(context.Background()))

	client.Expire()

	parentPath := zkpath.RootChildPath("locks", "widget")
	require.NoError(t, client.Delete(parentPath, true, true))
	_, err = client.Create(parentPath, nil, zkclient.ModePersistent)
	require.NoError(t, err)

	ok, err := a.Unlock()
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestExclusiveLocker_AssertFailsAfterSessionExpires(t *testing.T) {
	client := zkclienttest.New()
	a, err := lock.NewExclusiveLocker(client, "locks", "widget")
	require.NoError(t, err)
	require.NoError(t, a.Lock(context.Background()))

	client.Expire()

	err = a.Assert()
	assert.Error(t, err)
}

func TestExclusiveLocker_CloseInterruptsBlockedLock(t *testing.T) {
	client := zkclienttest.New()
	a, err := lock.NewExclusiveLocker(client, "locks", "widget")
	require.NoError(t, err)
	require.NoError(t, a.Lock(context.Background()))

	b, err := lock.NewExclusiveLocker(client, "locks", "widget")
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- b.Lock(context.Background()) }()

	time.Sleep(20 * time.Millisecond)
	b.Close()

	select {
	case err := <-done:
		assert.Error(t, err)
	case <-time.After(time.Second):
		t.Fatal("Close did not interrupt a blocked Lock call")
	}
}

func TestExclusiveLocker_TryLockSucceedsWhenUncontended(t *testing.T) {
	client := zkclienttest.New()
	a, err := lock.NewExclusiveLocker(client, "locks", "widget")
	require.NoError(t, err)

	ok, err := a.TryLock(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, a.Assert())
}

// Mirrors the end-to-end scenario where Client A already holds the
// lock and Client B makes a non-blocking attempt: B must observe
// false and must not leave its transient sequential node behind as a
// phantom queue entry.
func TestExclusiveLocker_TryLockReturnsFalseWhenContended(t *testing.T) {
	client := zkclienttest.New()
	a, err := lock.NewExclusiveLocker(client, "locks", "widget")
	require.NoError(t, err)
	require.NoError(t, a.Lock(context.Background()))

	b, err := lock.NewExclusiveLocker(client, "locks", "widget")
	require.NoError(t, err)

	ok, err := b.TryLock(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)

	parentPath := zkpath.RootChildPath("locks", "widget")
	children, err := client.Children(parentPath)
	require.NoError(t, err)
	assert.Len(t, children, 1, "b's transient node must be removed after a failed try-lock")

	// b must be able to try again cleanly, and must win once a unlocks.
	ok, err = b.TryLock(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = a.Unlock()
	require.NoError(t, err)

	ok, err = b.TryLock(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestExclusiveLocker_OwnerDataReturnsHolderData(t *testing.T) {
	client := zkclienttest.New()
	a, err := lock.NewExclusiveLocker(client, "locks", "widget", lock.WithData([]byte("host-a")))
	require.NoError(t, err)
	require.NoError(t, a.Lock(context.Background()))

	b, err := lock.NewExclusiveLocker(client, "locks", "widget", lock.WithData([]byte("host-b")))
	require.NoError(t, err)

	data, err := b.OwnerData()
	require.NoError(t, err)
	assert.Equal(t, []byte("host-a"), data)
}
