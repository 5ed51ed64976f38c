package election_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mlindqvist/zkdistributed/election"
	"github.com/mlindqvist/zkdistributed/zkclienttest"
)

func TestCandidate_SoleVoterWinsAndPublishesAck(t *testing.T) {
	client := zkclienttest.New()
	var won int32

	c, err := election.NewCandidate(client, "elections", "leader",
		election.OnWinningElection(func() error { atomic.AddInt32(&won, 1); return nil }),
	)
	require.NoError(t, err)

	require.NoError(t, c.Vote(context.Background()))
	assert.True(t, c.Leader())
	assert.True(t, c.LeaderAcked())
	assert.EqualValues(t, 1, atomic.LoadInt32(&won))
}

// An erroring (or panicking) OnWinningElection callback must not stop
// leader_ack from being published: an Observer still needs to learn
// the race is decided, even though this candidate's own application
// logic misbehaved.
func TestCandidate_PublishesAckEvenWhenWinningCallbackFails(t *testing.T) {
	client := zkclienttest.New()

	c, err := election.NewCandidate(client, "elections", "leader", election.WithData([]byte("node-a")),
		election.OnWinningElection(func() error { return errors.New("boom") }),
	)
	require.NoError(t, err)

	require.NoError(t, c.Vote(context.Background()))
	assert.True(t, c.Leader())
	assert.True(t, c.LeaderAcked())

	data, _, err := client.Get("/elections/leader/leader_ack")
	require.NoError(t, err)
	assert.Equal(t, []byte("node-a"), data)
}

func TestCandidate_SecondVoterLosesUntilWinnerCloses(t *testing.T) {
	client := zkclienttest.New()

	var aWon, bWon, bLost int32
	a, err := election.NewCandidate(client, "elections", "leader",
		election.OnWinningElection(func() error { atomic.AddInt32(&aWon, 1); return nil }),
	)
	require.NoError(t, err)

	var wg sync.WaitGroup
	wg.Add(1)
	b, err := election.NewCandidate(client, "elections", "leader",
		election.OnWinningElection(func() error { atomic.AddInt32(&bWon, 1); return nil }),
		election.OnLosingElection(func() { atomic.AddInt32(&bLost, 1); wg.Done() }),
	)
	require.NoError(t, err)

	require.NoError(t, a.Vote(context.Background()))
	require.NoError(t, b.Vote(context.Background()))

	wg.Wait()
	assert.False(t, b.Leader())
	assert.EqualValues(t, 1, atomic.LoadInt32(&bLost))

	a.Close()

	require.Eventually(t, b.Leader, time.Second, time.Millisecond)
	assert.EqualValues(t, 1, atomic.LoadInt32(&bWon))
}

func TestCandidate_CloseWithdrawsVote(t *testing.T) {
	client := zkclienttest.New()
	c, err := election.NewCandidate(client, "elections", "leader")
	require.NoError(t, err)
	require.NoError(t, c.Vote(context.Background()))
	assert.True(t, c.Leader())

	c.Close()

	children, err := client.Children("/elections/leader")
	require.NoError(t, err)
	assert.Empty(t, children)
}
