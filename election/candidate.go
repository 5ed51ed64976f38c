package election

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/mlindqvist/zkdistributed/logger"
	"github.com/mlindqvist/zkdistributed/zkclient"
	"github.com/mlindqvist/zkdistributed/zkerrors"
	"github.com/mlindqvist/zkdistributed/zkpath"
)

const (
	voteNamePrefix = "n-"
	leaderAckName  = "leader_ack"
)

var tracer = otel.Tracer("zkdistributed/election")

// Candidate is one participant in a leadership race under rootNode/name.
// It votes by creating a sequential ephemeral node; the candidate with
// the lowest sequence number wins and publishes an ephemeral leader_ack
// node once its OnWinningElection callback has returned, whether or not
// the callback succeeded.
// Losing is not terminal: a candidate that has already fired
// OnLosingElection keeps watching its predecessor chain and becomes the
// winner itself if everyone ahead of it disappears (failover).
type Candidate struct {
	client     zkclient.Client
	parentPath string
	data       []byte

	onWinningElection func() error
	onLosingElection  func()

	mu          sync.Mutex
	votePath    string
	ownName     string
	isWinner    bool
	leaderAcked bool
	lostFired   bool

	closed    chan struct{}
	closeOnce sync.Once
}

// NewCandidate constructs a Candidate for the given election. Two
// instances compete in the same race iff they share both rootNode and
// name.
func NewCandidate(client zkclient.Client, rootNode, name string, opts ...CandidateOption) (*Candidate, error) {
	if client == nil {
		return nil, zkerrors.NewBadArguments("client must not be nil")
	}
	if name == "" {
		return nil, zkerrors.NewBadArguments("election name must not be empty")
	}

	o := buildCandidateOptions(opts...)
	return &Candidate{
		client:            client,
		parentPath:        zkpath.RootChildPath(rootNode, name),
		data:              o.data,
		onWinningElection: o.onWinningElection,
		onLosingElection:  o.onLosingElection,
		closed:            make(chan struct{}),
	}, nil
}

// Vote casts this instance's vote. It returns once the instance's
// initial standing is known: immediately after OnWinningElection and the
// leader_ack publication if it won outright, or immediately after
// queuing if it did not. A losing instance's eventual promotion to
// winner, should its predecessors all disappear, happens on a background
// goroutine and is reported only through the registered callbacks.
func (c *Candidate) Vote(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "vote", otel.WithAttributes(attribute.String("path", c.parentPath)))
	defer span.End()

	err := c.voteImpl(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func (c *Candidate) voteImpl(ctx context.Context) error {
	if err := c.createVoteNode(); err != nil {
		return err
	}

	predecessor, winner, err := c.rank()
	if err != nil {
		return err
	}
	if winner {
		return c.becomeWinner(ctx)
	}

	go c.runLoop(ctx)
	_ = predecessor
	return nil
}

func (c *Candidate) createVoteNode() error {
	if err := c.client.MkdirP(c.parentPath); err != nil {
		return zkerrors.Wrap("create election parent node", err)
	}

	childPath := zkpath.JoinChild(c.parentPath, voteNamePrefix)
	created, err := c.client.Create(childPath, c.data, zkclient.ModeEphemeralSequential)
	if err != nil {
		return zkerrors.Wrap("cast vote", err)
	}

	c.mu.Lock()
	c.votePath = created
	c.ownName = zkpath.Basename(created)
	c.mu.Unlock()
	return nil
}

// rank lists the current siblings and reports either this candidate's
// immediate predecessor's basename, or winner=true if none precedes it.
func (c *Candidate) rank() (predecessor string, winner bool, err error) {
	siblings, err := c.client.Children(c.parentPath)
	if err != nil {
		return "", false, zkerrors.Wrap("list votes", err)
	}
	zkpath.SortBySequence(siblings)

	ownName := c.ownNameSnapshot()
	idx := -1
	for i, s := range siblings {
		if s == ownName {
			idx = i
			break
		}
	}
	if idx <= 0 {
		return "", true, nil
	}
	return siblings[idx-1], false, nil
}

func (c *Candidate) ownNameSnapshot() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ownName
}

func (c *Candidate) ackPath() string {
	return zkpath.JoinChild(c.parentPath, leaderAckName)
}

// becomeWinner runs the winning callback synchronously, then publishes
// leader_ack regardless of whether the callback succeeded: a waiting
// Observer must be able to tell the race is decided even when the
// user's own callback misbehaves. A callback error (including a
// recovered panic) is logged, never returned, since it does not change
// this instance's standing as winner.
func (c *Candidate) becomeWinner(ctx context.Context) error {
	c.mu.Lock()
	alreadyWinner := c.isWinner
	c.mu.Unlock()
	if alreadyWinner {
		return nil
	}

	if err := safeInvokeErr(c.onWinningElection); err != nil {
		logger.Ctx(ctx).Error().Err(err).Str("path", c.parentPath).Msg("on-winning-election callback failed")
	}

	ackPath := c.ackPath()
	if _, err := c.client.Create(ackPath, c.data, zkclient.ModeEphemeral); err != nil && !zkerrors.IsNodeExists(err) {
		return zkerrors.Wrap("publish leader ack", err)
	}

	c.mu.Lock()
	c.isWinner = true
	c.leaderAcked = true
	c.mu.Unlock()

	logger.Ctx(ctx).Info().Str("path", c.parentPath).Msg("became leader")
	return nil
}

// runLoop re-evaluates this candidate's rank every time its immediate
// predecessor disappears, firing OnLosingElection (at most once) as soon
// as some other candidate's leader_ack is observed, and promoting this
// instance to winner the moment it becomes first.
func (c *Candidate) runLoop(ctx context.Context) {
	c.mu.Lock()
	if !c.lostFired {
		c.lostFired = true
		go c.watchAckOnce()
	}
	c.mu.Unlock()

	for {
		predecessor, winner, err := c.rank()
		if err != nil {
			logger.Ctx(ctx).Warn().Err(err).Msg("candidate could not re-evaluate rank")
			return
		}
		if winner {
			if err := c.becomeWinner(ctx); err != nil {
				logger.Ctx(ctx).Warn().Err(err).Msg("candidate failed to become leader after failover")
			}
			return
		}

		predecessorPath := zkpath.JoinChild(c.parentPath, predecessor)
		if !waitForDeletion(c.client, predecessorPath, c.client.SessionExpired(), c.closed) {
			return
		}
	}
}

func (c *Candidate) watchAckOnce() {
	if !waitForCreation(c.client, c.ackPath(), c.client.SessionExpired(), c.closed) {
		return
	}
	safeInvoke(c.onLosingElection)
}

// Leader reports whether this instance currently believes it is the
// elected leader.
func (c *Candidate) Leader() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.isWinner
}

// LeaderAcked reports whether this instance has published leader_ack.
func (c *Candidate) LeaderAcked() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.leaderAcked
}

// Close withdraws this candidate's vote, interrupting any background
// failover watch. If this instance was the leader its leader_ack node is
// removed as well, so a waiting Observer does not have to wait out the
// full session timeout to notice.
func (c *Candidate) Close() {
	c.closeOnce.Do(func() {
		close(c.closed)

		c.mu.Lock()
		votePath := c.votePath
		wasWinner := c.isWinner
		c.mu.Unlock()

		if wasWinner {
			_ = c.client.Delete(c.ackPath(), true, false)
		}
		if votePath != "" {
			_ = c.client.Delete(votePath, true, false)
		}
	})
}

func safeInvoke(fn func()) {
	if fn == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			logger.Logger.Error().Interface("panic", r).Msg("election callback panicked")
		}
	}()
	fn()
}

func safeInvokeErr(fn func() error) (err error) {
	if fn == nil {
		return nil
	}
	defer func() {
		if r := recover(); r != nil {
			logger.Logger.Error().Interface("panic", r).Msg("election callback panicked")
			err = zkerrors.NewLockAssertionFailed("on-winning-election callback panicked")
		}
	}()
	return fn()
}
