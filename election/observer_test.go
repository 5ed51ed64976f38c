package election_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mlindqvist/zkdistributed/election"
	"github.com/mlindqvist/zkdistributed/zkclienttest"
)

func TestObserver_ReportsNewLeaderThenDeath(t *testing.T) {
	client := zkclienttest.New()

	var newLeaderCount, deathCount int32
	var lastData atomic.Value
	o, err := election.NewObserver(client, "elections", "leader",
		election.OnNewLeader(func(data []byte) {
			atomic.AddInt32(&newLeaderCount, 1)
			lastData.Store(append([]byte(nil), data...))
		}),
		election.OnLeadersDeath(func() { atomic.AddInt32(&deathCount, 1) }),
	)
	require.NoError(t, err)
	require.NoError(t, o.Observe(context.Background()))
	defer o.Close()

	// No leader exists yet at startup, so OnLeadersDeath fires once
	// before any candidate has voted.
	require.Eventually(t, func() bool { return atomic.LoadInt32(&deathCount) == 1 }, time.Second, time.Millisecond)

	c, err := election.NewCandidate(client, "elections", "leader", election.WithData([]byte("node-a")))
	require.NoError(t, err)
	require.NoError(t, c.Vote(context.Background()))

	require.Eventually(t, o.LeaderAlive, time.Second, time.Millisecond)
	data, alive := o.LeaderData()
	assert.True(t, alive)
	assert.Equal(t, []byte("node-a"), data)
	assert.EqualValues(t, 1, atomic.LoadInt32(&newLeaderCount))

	c.Close()

	require.Eventually(t, func() bool { return !o.LeaderAlive() }, time.Second, time.Millisecond)
	assert.EqualValues(t, 2, atomic.LoadInt32(&deathCount))
	assert.EqualValues(t, 1, atomic.LoadInt32(&newLeaderCount))
}

// When a leader_ack already exists at Observe startup, the observer
// must report it via OnNewLeader rather than firing OnLeadersDeath
// first.
func TestObserver_StartupWithExistingLeaderReportsNewLeaderOnly(t *testing.T) {
	client := zkclienttest.New()

	c, err := election.NewCandidate(client, "elections", "leader", election.WithData([]byte("node-a")))
	require.NoError(t, err)
	require.NoError(t, c.Vote(context.Background()))
	defer c.Close()

	var newLeaderCount, deathCount int32
	o, err := election.NewObserver(client, "elections", "leader",
		election.OnNewLeader(func([]byte) { atomic.AddInt32(&newLeaderCount, 1) }),
		election.OnLeadersDeath(func() { atomic.AddInt32(&deathCount, 1) }),
	)
	require.NoError(t, err)
	require.NoError(t, o.Observe(context.Background()))
	defer o.Close()

	require.Eventually(t, func() bool { return atomic.LoadInt32(&newLeaderCount) == 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.EqualValues(t, 0, atomic.LoadInt32(&deathCount))
}

// Fires OnLeadersDeath at Observe startup when no candidate has voted
// at all yet, even if one does later.
func TestObserver_StartupWithNoLeaderFiresDeathBeforeAnyVote(t *testing.T) {
	client := zkclienttest.New()

	var deathCount int32
	o, err := election.NewObserver(client, "elections", "leader",
		election.OnLeadersDeath(func() { atomic.AddInt32(&deathCount, 1) }),
	)
	require.NoError(t, err)
	require.NoError(t, o.Observe(context.Background()))
	defer o.Close()

	require.Eventually(t, func() bool { return atomic.LoadInt32(&deathCount) == 1 }, time.Second, time.Millisecond)
}

func TestObserver_AlternatesAcrossSuccessiveLeaders(t *testing.T) {
	client := zkclienttest.New()

	var newLeaderCount, deathCount int32
	o, err := election.NewObserver(client, "elections", "leader",
		election.OnNewLeader(func([]byte) { atomic.AddInt32(&newLeaderCount, 1) }),
		election.OnLeadersDeath(func() { atomic.AddInt32(&deathCount, 1) }),
	)
	require.NoError(t, err)
	require.NoError(t, o.Observe(context.Background()))
	defer o.Close()

	// No leader exists yet, so startup fires OnLeadersDeath once before
	// the first candidate ever votes.
	require.Eventually(t, func() bool { return atomic.LoadInt32(&deathCount) == 1 }, time.Second, time.Millisecond)

	for i := 0; i < 3; i++ {
		c, err := election.NewCandidate(client, "elections", "leader")
		require.NoError(t, err)
		require.NoError(t, c.Vote(context.Background()))
		require.Eventually(t, o.LeaderAlive, time.Second, time.Millisecond)

		c.Close()
		require.Eventually(t, func() bool { return !o.LeaderAlive() }, time.Second, time.Millisecond)
	}

	assert.EqualValues(t, 3, atomic.LoadInt32(&newLeaderCount))
	assert.EqualValues(t, 4, atomic.LoadInt32(&deathCount))
}
