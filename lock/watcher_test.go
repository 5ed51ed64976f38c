package lock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mlindqvist/zkdistributed/zkclient"
	"github.com/mlindqvist/zkdistributed/zkclienttest"
)

func TestNodeDeletionWatcher_ReturnsImmediatelyWhenNodeAlreadyGone(t *testing.T) {
	client := zkclienttest.New()
	w := newNodeDeletionWatcher(client)

	sessionExpired := make(chan struct{})
	closed := make(chan struct{})

	gone := w.wait("/locks/widget/x-0000000000", sessionExpired, closed)
	assert.True(t, gone)
}

func TestNodeDeletionWatcher_WakesOnDeletion(t *testing.T) {
	client := zkclienttest.New()
	path, err := client.Create("/n-", []byte("x"), zkclient.ModeEphemeralSequential)
	require.NoError(t, err)

	w := newNodeDeletionWatcher(client)
	sessionExpired := make(chan struct{})
	closed := make(chan struct{})

	done := make(chan bool, 1)
	go func() { done <- w.wait(path, sessionExpired, closed) }()

	require.True(t, w.waitUntilBlocked(time.Second))
	require.NoError(t, client.Delete(path, false, false))

	select {
	case gone := <-done:
		assert.True(t, gone)
	case <-time.After(time.Second):
		t.Fatal("wait never observed the deletion")
	}
}

func TestNodeDeletionWatcher_InterruptedBySessionExpiry(t *testing.T) {
	client := zkclienttest.New()
	path, err := client.Create("/n-", []byte("x"), zkclient.ModeEphemeralSequential)
	require.NoError(t, err)

	w := newNodeDeletionWatcher(client)
	sessionExpired := make(chan struct{})
	closed := make(chan struct{})

	done := make(chan bool, 1)
	go func() { done <- w.wait(path, sessionExpired, closed) }()

	require.True(t, w.waitUntilBlocked(time.Second))
	close(sessionExpired)

	select {
	case gone := <-done:
		assert.False(t, gone)
	case <-time.After(time.Second):
		t.Fatal("wait never observed the session expiry")
	}
}
