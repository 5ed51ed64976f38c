// Package zkerrors defines the error taxonomy shared by lock and election:
// which failures are recoverable by the caller, and which mean the
// instance's view of the lock can no longer be trusted.
package zkerrors

import (
	"errors"
	"fmt"

	pkgerrors "github.com/pkg/errors"
)

// Sentinel errors surfaced by the zkclient.Client collaborator. The core
// packages only ever branch on these, never on a concrete ZooKeeper type.
var (
	ErrNoNode    = errors.New("zkdistributed: node does not exist")
	ErrNodeExists = errors.New("zkdistributed: node already exists")
	ErrNotEmpty  = errors.New("zkdistributed: node has children")
)

// InterruptedSession means the ZooKeeper session was lost, or the client
// was closed, while the caller was blocked waiting for ownership.
type InterruptedSession struct {
	Op  string
	err error
}

func NewInterruptedSession(op string, cause error) *InterruptedSession {
	return &InterruptedSession{Op: op, err: pkgerrors.WithStack(cause)}
}

func (e *InterruptedSession) Error() string {
	if e.err == nil {
		return fmt.Sprintf("zkdistributed: session interrupted during %s", e.Op)
	}
	return fmt.Sprintf("zkdistributed: session interrupted during %s: %v", e.Op, e.err)
}

func (e *InterruptedSession) Unwrap() error { return e.err }

// LockAssertionFailedError is raised by Locker.Assert when any invariant
// the caller relies on no longer holds (lost session, recreated parent,
// a successor now owning the lock, ...).
type LockAssertionFailedError struct {
	Reason string
}

func NewLockAssertionFailed(reason string) *LockAssertionFailedError {
	return &LockAssertionFailedError{Reason: reason}
}

func (e *LockAssertionFailedError) Error() string {
	return "zkdistributed: lock assertion failed: " + e.Reason
}

// BadArguments indicates caller misuse — an empty lock/election name, a
// nil client, and similar constructor-time mistakes.
type BadArguments struct {
	Reason string
}

func NewBadArguments(reason string) *BadArguments {
	return &BadArguments{Reason: reason}
}

func (e *BadArguments) Error() string {
	return "zkdistributed: bad arguments: " + e.Reason
}

// IsInterruptedSession reports whether err is, or wraps, an InterruptedSession.
func IsInterruptedSession(err error) bool {
	var is *InterruptedSession
	return errors.As(err, &is)
}

// IsNoNode reports whether err is, or wraps, ErrNoNode.
func IsNoNode(err error) bool {
	return errors.Is(err, ErrNoNode)
}

// IsNodeExists reports whether err is, or wraps, ErrNodeExists.
func IsNodeExists(err error) bool {
	return errors.Is(err, ErrNodeExists)
}

// IsNotEmpty reports whether err is, or wraps, ErrNotEmpty.
func IsNotEmpty(err error) bool {
	return errors.Is(err, ErrNotEmpty)
}

// Wrap attaches a stack trace and an operation label to a lower-level
// error, matching the teacher's pkg/errors usage at collaborator
// boundaries.
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return pkgerrors.Wrapf(err, "zkdistributed: %s", op)
}
