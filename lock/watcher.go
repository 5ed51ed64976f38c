package lock

import (
	"sync"
	"time"

	"github.com/mlindqvist/zkdistributed/zkclient"
)

// nodeDeletionWatcher waits for a single sibling node to disappear without
// polling. A caller passes it the path to watch and blocks in wait
// until either the node is gone (observed directly, or reported via the
// watch event) or the session dies. It exists because re-checking
// existence is cheap but looping on it is not: the watch-then-recheck
// pattern avoids both busy-polling and the lost-wakeup race where the
// node vanishes between the existence check and arming the watch.
type nodeDeletionWatcher struct {
	client zkclient.Client

	mu      sync.Mutex
	cond    *sync.Cond
	blocked bool
	done    bool
}

func newNodeDeletionWatcher(client zkclient.Client) *nodeDeletionWatcher {
	w := &nodeDeletionWatcher{client: client}
	w.cond = sync.NewCond(&w.mu)
	return w
}

// wait blocks until path no longer exists, the session expires (returning
// zkerrors-wrapped via the caller), or it is interrupted by close. It
// returns true if the node was observed gone, false if interrupted.
func (w *nodeDeletionWatcher) wait(path string, sessionExpired <-chan struct{}, closed <-chan struct{}) bool {
	for {
		exists, events, unsubscribe, ok := w.arm(path)
		if !ok {
			return true // already gone
		}

		w.mu.Lock()
		w.blocked = true
		w.cond.Broadcast()
		w.mu.Unlock()

		select {
		case <-events:
			unsubscribe()
		case <-sessionExpired:
			unsubscribe()
			return false
		case <-closed:
			unsubscribe()
			return false
		}

		w.mu.Lock()
		w.blocked = false
		w.mu.Unlock()

		_ = exists
	}
}

// arm installs a watch on path, then checks whether path still exists.
// The second return is the event channel to wait on; ok is false (and
// the watch already released) when path was gone or either call failed.
func (w *nodeDeletionWatcher) arm(path string) (bool, <-chan zkclient.Event, func(), bool) {
	events, unsubscribe, err := w.client.Watch(path)
	if err != nil {
		return false, nil, func() {}, false
	}

	exists, err := w.client.Exists(path)
	if err != nil || !exists {
		unsubscribe()
		return false, nil, func() {}, false
	}

	return true, events, unsubscribe, true
}

// waitUntilBlocked blocks until a concurrent call to wait has armed its
// watch and is parked waiting on it, or timeout elapses. It exists purely
// to make tests deterministic without a sleep-and-hope loop.
func (w *nodeDeletionWatcher) waitUntilBlocked(timeout time.Duration) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.blocked {
		return true
	}

	done := make(chan struct{})
	timer := time.AfterFunc(timeout, func() {
		w.mu.Lock()
		close(done)
		w.cond.Broadcast()
		w.mu.Unlock()
	})
	defer timer.Stop()

	for !w.blocked {
		select {
		case <-done:
			return w.blocked
		default:
		}
		w.cond.Wait()
	}
	return true
}
