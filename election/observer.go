package election

import (
	"context"
	"sync"

	"github.com/mlindqvist/zkdistributed/logger"
	"github.com/mlindqvist/zkdistributed/zkclient"
	"github.com/mlindqvist/zkdistributed/zkerrors"
	"github.com/mlindqvist/zkdistributed/zkpath"
)

// Observer watches an election's leader_ack node without participating
// in the vote. It reports the leader's lifecycle through two callbacks
// that strictly alternate: OnNewLeader never fires twice in a row
// without an intervening OnLeadersDeath, and vice versa.
type Observer struct {
	client     zkclient.Client
	parentPath string

	onNewLeader    func([]byte)
	onLeadersDeath func()

	mu    sync.Mutex
	alive bool
	data  []byte

	closed    chan struct{}
	closeOnce sync.Once
	stopped   chan struct{}
}

// NewObserver constructs an Observer for the given election.
func NewObserver(client zkclient.Client, rootNode, name string, opts ...ObserverOption) (*Observer, error) {
	if client == nil {
		return nil, zkerrors.NewBadArguments("client must not be nil")
	}
	if name == "" {
		return nil, zkerrors.NewBadArguments("election name must not be empty")
	}

	o := buildObserverOptions(opts...)
	return &Observer{
		client:         client,
		parentPath:     zkpath.RootChildPath(rootNode, name),
		onNewLeader:    o.onNewLeader,
		onLeadersDeath: o.onLeadersDeath,
		closed:         make(chan struct{}),
		stopped:        make(chan struct{}),
	}, nil
}

func (o *Observer) ackPath() string {
	return zkpath.JoinChild(o.parentPath, leaderAckName)
}

// Observe starts watching the election in the background and returns
// immediately; use Close to stop. It is safe to call at most once per
// Observer.
func (o *Observer) Observe(ctx context.Context) error {
	if err := o.client.MkdirP(o.parentPath); err != nil {
		return zkerrors.Wrap("create election parent node", err)
	}
	go o.loop(ctx)
	return nil
}

func (o *Observer) loop(ctx context.Context) {
	defer close(o.stopped)

	stat, err := o.client.StatOf(o.ackPath())
	if err != nil {
		logger.Ctx(ctx).Warn().Err(err).Msg("could not determine initial leader_ack state")
	} else if !stat.Exists {
		o.handleDeath()
	}

	for {
		if o.LeaderAlive() {
			if !waitForDeletion(o.client, o.ackPath(), o.client.SessionExpired(), o.closed) {
				return
			}
			o.handleDeath()
			continue
		}

		if !waitForCreation(o.client, o.ackPath(), o.client.SessionExpired(), o.closed) {
			return
		}
		o.handleNewLeader(ctx)
	}
}

func (o *Observer) handleNewLeader(ctx context.Context) {
	data, _, err := o.client.Get(o.ackPath())
	if err != nil {
		// The leader already died between the creation watch firing and
		// this read; the next loop iteration will discover it is gone.
		logger.Ctx(ctx).Debug().Err(err).Msg("leader ack disappeared before it could be read")
		return
	}

	o.mu.Lock()
	o.alive = true
	o.data = data
	o.mu.Unlock()

	safeInvokeData(o.onNewLeader, data)
}

func (o *Observer) handleDeath() {
	o.mu.Lock()
	o.alive = false
	o.data = nil
	o.mu.Unlock()

	safeInvoke(o.onLeadersDeath)
}

// LeaderAlive reports whether a leader_ack node is currently believed to
// exist.
func (o *Observer) LeaderAlive() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.alive
}

// LeaderData returns the data attached to the current leader's vote, and
// whether a leader is currently alive.
func (o *Observer) LeaderData() ([]byte, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.data, o.alive
}

// Close stops the background watch loop. It blocks until the loop has
// actually exited, so that no callback fires after Close returns.
func (o *Observer) Close() {
	o.closeOnce.Do(func() { close(o.closed) })
	<-o.stopped
}

func safeInvokeData(fn func([]byte), data []byte) {
	if fn == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			logger.Logger.Error().Interface("panic", r).Msg("election callback panicked")
		}
	}()
	fn(data)
}
