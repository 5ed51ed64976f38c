package lock

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

var tracer = otel.Tracer("zkdistributed/lock")

// lockerBase implements the fair-queueing, watch, and cleanup machinery
// shared by ExclusiveLocker and SharedLocker. It creates one sequential
// ephemeral child of a persistent parent node, then waits for every
// sibling its policy considers a blocker to disappear before reporting
// ownership. ctx threaded through Lock is used only to correlate log
// lines and trace spans with the eventual outcome — cancelling it does
// not abort a blocked Lock call, which per design ends only on
// acquisition, session loss, or Close.
type lockerBase struct {
	client     zkclient.Client
	parentPath string
	pol        policy
	data       []byte

	mu         sync.Mutex
	lockPath   string
	ownName    string
	parentStat zkclient.Stat
	watcher    *nodeDeletionWatcher

	closed    chan struct{}
	closeOnce sync.Once
}

func newLockerBase(client zkclient.Client, rootNode, name string, pol policy, opts ...Option) (*lockerBase, error) {
	if client == nil {
		return nil, zkerrors.NewBadArguments("client must not be nil")
	}
	if name == "" {
		return nil, zkerrors.NewBadArguments("lock name must not be empty")
	}

	o := buildOptions(opts...)
	return &lockerBase{
		client:     client,
		parentPath: zkpath.RootChildPath(rootNode, name),
		pol:        pol,
		data:       o.data,
		closed:     make(chan struct{}),
	}, nil
}

// lock blocks until this instance owns the lock, the session is lost, or
// the instance is closed.
func (b *lockerBase) lock(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "lock", otel.WithAttributes(attribute.String("path", b.parentPath)))
	defer span.End()

	err := b.acquireLoop(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func (b *lockerBase) acquireLoop(ctx context.Context) error {
	select {
	case <-b.closed:
		return zkerrors.NewInterruptedSession("lock", nil)
	default:
	}

	b.mu.Lock()
	held := b.lockPath != ""
	b.mu.Unlock()
	if held {
		return nil
	}

	if err := b.createChild(); err != nil {
		return err
	}

	log := logger.Ctx(ctx)

	for {
		blockerPath, acquired, err := b.blockerPath()
		if err != nil {
			return err
		}
		if acquired {
			log.Debug().Str("path", b.currentLockPath()).Msg("lock acquired")
			return nil
		}

		watcher := newNodeDeletionWatcher(b.client)
		b.mu.Lock()
		b.watcher = watcher
		b.mu.Unlock()

		gone := watcher.wait(blockerPath, b.client.SessionExpired(), b.closed)

		b.mu.Lock()
		b.watcher = nil
		b.mu.Unlock()

		if !gone {
			return zkerrors.NewInterruptedSession("lock", nil)
		}
	}
}

// tryLock attempts to acquire the lock without blocking. If some
// sibling would currently block this instance, the transient child
// node this attempt created is removed before returning so a contended
// non-blocking attempt never leaves a dangling queue entry behind.
func (b *lockerBase) tryLock(ctx context.Context) (bool, error) {
	ctx, span := tracer.Start(ctx, "try_lock", otel.WithAttributes(attribute.String("path", b.parentPath)))
	defer span.End()

	acquired, err := b.tryAcquireOnce(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return acquired, err
}

func (b *lockerBase) tryAcquireOnce(ctx context.Context) (bool, error) {
	select {
	case <-b.closed:
		return false, zkerrors.NewInterruptedSession("try_lock", nil)
	default:
	}

	b.mu.Lock()
	held := b.lockPath != ""
	b.mu.Unlock()
	if held {
		return true, nil
	}

	if err := b.createChild(); err != nil {
		return false, err
	}

	_, acquired, err := b.blockerPath()
	if err != nil {
		return false, err
	}
	if acquired {
		logger.Ctx(ctx).Debug().Str("path", b.currentLockPath()).Msg("lock acquired")
		return true, nil
	}

	b.mu.Lock()
	lockPath := b.lockPath
	b.lockPath = ""
	b.ownName = ""
	b.mu.Unlock()

	if err := b.client.Delete(lockPath, true, false); err != nil {
		logger.Ctx(ctx).Warn().Err(err).Str("path", lockPath).Msg("delete transient node after contended try-lock")
	}
	return false, nil
}

// blockerPath returns the full path of the sibling currently blocking
// this instance, or acquired=true if nothing blocks it.
func (b *lockerBase) blockerPath() (string, bool, error) {
	siblings, err := b.client.Children(b.parentPath)
	if err != nil {
		return "", false, zkerrors.Wrap("list siblings", err)
	}
	zkpath.SortBySequence(siblings)

	blocker := b.pol.blocker(siblings, b.ownName)
	if blocker == "" {
		return "", true, nil
	}
	return zkpath.JoinChild(b.parentPath, blocker), false, nil
}

// createChild ensures the persistent parent exists, remembers its
// identity token, then creates this instance's sequential ephemeral
// child.
func (b *lockerBase) createChild() error {
	if err := b.client.MkdirP(b.parentPath); err != nil {
		return zkerrors.Wrap("create parent node", err)
	}

	parentStat, err := b.client.StatOf(b.parentPath)
	if err != nil {
		return zkerrors.Wrap("stat parent node", err)
	}
	if !parentStat.Exists {
		return zkerrors.NewLockAssertionFailed("parent node vanished immediately after creation")
	}

	childPath := zkpath.JoinChild(b.parentPath, b.pol.prefix())
	created, err := b.client.Create(childPath, b.data, zkclient.ModeEphemeralSequential)
	if err != nil {
		return zkerrors.Wrap("create sequential node", err)
	}

	b.mu.Lock()
	b.lockPath = created
	b.ownName = zkpath.Basename(created)
	b.parentStat = parentStat
	b.mu.Unlock()

	return nil
}

// unlock releases ownership, if held. It returns false — without error —
// when the parent's identity no longer matches what was remembered at
// acquisition time, since that means some other party recreated the
// parent and this instance can no longer vouch for the lock's state;
// the caller's own node is still removed in that case so it does not
// linger as a foreign child. It also returns false, without error and
// without touching the server, when this instance holds nothing.
func (b *lockerBase) unlock() (bool, error) {
	b.mu.Lock()
	lockPath := b.lockPath
	parentStat := b.parentStat
	b.mu.Unlock()

	if lockPath == "" {
		return false, nil
	}

	ok := b.cleanup(lockPath, parentStat)
	if ok {
		b.mu.Lock()
		b.lockPath = ""
		b.ownName = ""
		b.mu.Unlock()
	}
	return ok, nil
}

func (b *lockerBase) cleanup(lockPath string, parentStat zkclient.Stat) bool {
	current, err := b.client.StatOf(b.parentPath)
	if err != nil {
		logger.Logger.Warn().Err(err).Str("path", b.parentPath).Msg("stat parent during unlock failed")
		return false
	}
	identityOK := current.Exists && current.Ctime == parentStat.Ctime

	if err := b.client.Delete(lockPath, true, false); err != nil {
		logger.Logger.Warn().Err(err).Str("path", lockPath).Msg("delete own node during unlock failed")
		return false
	}
	if !identityOK {
		return false
	}

	if err := b.client.Delete(b.parentPath, true, true); err != nil {
		logger.Logger.Debug().Err(err).Str("path", b.parentPath).Msg("parent node cleanup skipped")
	}
	return true
}

// assert reports a LockAssertionFailedError unless the session is live,
// this instance currently holds the lock, and the parent identity it
// remembers still matches.
func (b *lockerBase) assert() error {
	if !b.client.Connected() {
		return zkerrors.NewLockAssertionFailed("session not connected")
	}

	b.mu.Lock()
	lockPath := b.lockPath
	parentStat := b.parentStat
	b.mu.Unlock()

	if lockPath == "" {
		return zkerrors.NewLockAssertionFailed("lock is not held")
	}

	current, err := b.client.StatOf(b.parentPath)
	if err != nil {
		return zkerrors.NewLockAssertionFailed("could not re-stat parent: " + err.Error())
	}
	if !current.Exists || current.Ctime != parentStat.Ctime {
		return zkerrors.NewLockAssertionFailed("parent node identity changed")
	}

	_, acquired, err := b.blockerPath()
	if err != nil {
		return zkerrors.NewLockAssertionFailed("could not re-evaluate siblings: " + err.Error())
	}
	if !acquired {
		return zkerrors.NewLockAssertionFailed("a preceding sibling now blocks this instance")
	}
	return nil
}

// acquirable reports whether a new attempt would succeed without
// blocking, without creating a node of its own.
func (b *lockerBase) acquirable() (bool, error) {
	siblings, err := b.client.Children(b.parentPath)
	if err != nil {
		if zkerrors.IsNoNode(err) {
			return true, nil
		}
		return false, zkerrors.Wrap("list siblings", err)
	}
	return !b.pol.wouldBlock(siblings), nil
}

// ownerData returns the data attached to the sibling with the lowest
// sequence number.
func (b *lockerBase) ownerData() ([]byte, error) {
	return b.ownerDataPreferring("")
}

// ownerDataPreferring returns the data attached to the first
// sequence-ordered sibling whose name starts with preferPrefix, if any
// such sibling exists, else falls back to the lowest-sequence sibling
// overall. An empty preferPrefix always falls back to the
// lowest-sequence sibling.
func (b *lockerBase) ownerDataPreferring(preferPrefix string) ([]byte, error) {
	siblings, err := b.client.Children(b.parentPath)
	if err != nil {
		return nil, zkerrors.Wrap("list siblings", err)
	}
	if len(siblings) == 0 {
		return nil, zkerrors.NewLockAssertionFailed("lock currently has no owner")
	}
	zkpath.SortBySequence(siblings)

	owner := siblings[0]
	if preferPrefix != "" {
		for _, sib := range siblings {
			if len(sib) >= len(preferPrefix) && sib[:len(preferPrefix)] == preferPrefix {
				owner = sib
				break
			}
		}
	}

	data, _, err := b.client.Get(zkpath.JoinChild(b.parentPath, owner))
	if err != nil {
		return nil, zkerrors.Wrap("get owner data", err)
	}
	return data, nil
}

func (b *lockerBase) currentLockPath() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lockPath
}

// close interrupts any blocked lock call and makes every later lock or
// tryLock call on this instance return an InterruptedSession error.
func (b *lockerBase) close() {
	b.closeOnce.Do(func() { close(b.closed) })
}
