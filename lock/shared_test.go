package lock_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mlindqvist/zkdistributed/lock"
	"github.com/mlindqvist/zkdistributed/zkclienttest"
)

func TestSharedLocker_MultipleReadersAcquireConcurrently(t *testing.T) {
	client := zkclienttest.New()
	a, err := lock.NewSharedLocker(client, "locks", "widget")
	require.NoError(t, err)
	b, err := lock.NewSharedLocker(client, "locks", "widget")
	require.NoError(t, err)

	require.NoError(t, a.Lock(context.Background()))
	require.NoError(t, b.Lock(context.Background()))

	require.NoError(t, a.Assert())
	require.NoError(t, b.Assert())
}

func TestSharedLocker_BlockedByPrecedingExclusiveRequest(t *testing.T) {
	client := zkclienttest.New()
	writer, err := lock.NewExclusiveLocker(client, "locks", "widget")
	require.NoError(t, err)
	reader, err := lock.NewSharedLocker(client, "locks", "widget")
	require.NoError(t, err)

	require.NoError(t, writer.Lock(context.Background()))

	acquirable, err := reader.Acquirable()
	require.NoError(t, err)
	assert.False(t, acquirable)

	done := make(chan error, 1)
	go func() { done <- reader.Lock(context.Background()) }()

	select {
	case <-done:
		t.Fatal("reader acquired while a writer still holds the lock")
	case <-time.After(20 * time.Millisecond):
	}

	ok, err := writer.Unlock()
	require.NoError(t, err)
	assert.True(t, ok)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("reader never acquired after the writer released")
	}
}

func TestSharedLocker_TryLockReturnsFalseWhenBlockedByWriter(t *testing.T) {
	client := zkclienttest.New()
	writer, err := lock.NewExclusiveLocker(client, "locks", "widget")
	require.NoError(t, err)
	require.NoError(t, writer.Lock(context.Background()))

	reader, err := lock.NewSharedLocker(client, "locks", "widget")
	require.NoError(t, err)

	ok, err := reader.TryLock(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = writer.Unlock()
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = reader.TryLock(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestSharedLocker_NotBlockedByPrecedingSharedRequest(t *testing.T) {
	client := zkclienttest.New()
	a, err := lock.NewSharedLocker(client, "locks", "widget")
	require.NoError(t, err)
	b, err := lock.NewSharedLocker(client, "locks", "widget")
	require.NoError(t, err)

	require.NoError(t, a.Lock(context.Background()))

	acquirable, err := b.Acquirable()
	require.NoError(t, err)
	assert.True(t, acquirable)

	require.NoError(t, b.Lock(context.Background()))
}

// Reproduces: s-0 holds the lock and x-1 is queued behind it. A later
// reader, which has not queued yet and would be blocked behind x-1, must
// see the queued writer from OwnerData — what it would be blocked on —
// not the lower-sequence reader that holds the lock but would not block
// it.
func TestSharedLocker_OwnerDataPrefersQueuedExclusiveOverHoldingReader(t *testing.T) {
	client := zkclienttest.New()
	reader1, err := lock.NewSharedLocker(client, "locks", "widget", lock.WithData([]byte("reader-1")))
	require.NoError(t, err)
	require.NoError(t, reader1.Lock(context.Background()))

	writer, err := lock.NewExclusiveLocker(client, "locks", "widget", lock.WithData([]byte("writer")))
	require.NoError(t, err)
	done := make(chan error, 1)
	go func() { done <- writer.Lock(context.Background()) }()
	time.Sleep(20 * time.Millisecond)

	reader2, err := lock.NewSharedLocker(client, "locks", "widget", lock.WithData([]byte("reader-2")))
	require.NoError(t, err)

	data, err := reader2.OwnerData()
	require.NoError(t, err)
	assert.Equal(t, []byte("writer"), data)

	ok, err := reader1.Unlock()
	require.NoError(t, err)
	assert.True(t, ok)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("writer never acquired after reader1 released")
	}
}

func TestSharedLocker_WriterQueuedBehindExistingReaders(t *testing.T) {
	client := zkclienttest.New()
	reader, err := lock.NewSharedLocker(client, "locks", "widget")
	require.NoError(t, err)
	writer, err := lock.NewExclusiveLocker(client, "locks", "widget")
	require.NoError(t, err)

	require.NoError(t, reader.Lock(context.Background()))

	done := make(chan error, 1)
	go func() { done <- writer.Lock(context.Background()) }()

	select {
	case <-done:
		t.Fatal("writer acquired while a preceding reader still holds the lock")
	case <-time.After(20 * time.Millisecond):
	}

	ok, err := reader.Unlock()
	require.NoError(t, err)
	assert.True(t, ok)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("writer never acquired after the reader released")
	}
}
