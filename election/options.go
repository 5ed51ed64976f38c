package election

// CandidateOption configures a Candidate at construction time.
type CandidateOption func(*candidateOptions)

type candidateOptions struct {
	data              []byte
	onWinningElection func() error
	onLosingElection  func()
}

// WithData attaches data to the vote node this Candidate creates and to
// the leader_ack node it publishes on winning; an Observer reads it back
// via LeaderData once this instance becomes, and acks, the leader.
func WithData(data []byte) CandidateOption {
	return func(o *candidateOptions) { o.data = data }
}

// OnWinningElection registers the callback run synchronously, before the
// leader_ack node is published, the moment this instance becomes first
// in the vote order. A non-nil return (or a panic) is logged; the ack is
// still published and Vote still succeeds.
func OnWinningElection(fn func() error) CandidateOption {
	return func(o *candidateOptions) { o.onWinningElection = fn }
}

// OnLosingElection registers the callback run once this instance has
// observed some other candidate publish leader_ack. Losing is not a
// terminal state: a candidate whose callback already fired keeps
// watching its predecessor chain and can still later win if every
// candidate ahead of it disappears.
func OnLosingElection(fn func()) CandidateOption {
	return func(o *candidateOptions) { o.onLosingElection = fn }
}

func buildCandidateOptions(opts ...CandidateOption) candidateOptions {
	var o candidateOptions
	for _, apply := range opts {
		apply(&o)
	}
	return o
}

// ObserverOption configures an Observer at construction time.
type ObserverOption func(*observerOptions)

type observerOptions struct {
	onNewLeader    func([]byte)
	onLeadersDeath func()
}

// OnNewLeader registers the callback run each time a leader_ack node is
// observed to have been created, with the data the winning candidate
// attached to its vote.
func OnNewLeader(fn func([]byte)) ObserverOption {
	return func(o *observerOptions) { o.onNewLeader = fn }
}

// OnLeadersDeath registers the callback run each time a previously
// acked leader_ack node is observed to have been removed, and once at
// Observe startup if no leader_ack node exists yet.
func OnLeadersDeath(fn func()) ObserverOption {
	return func(o *observerOptions) { o.onLeadersDeath = fn }
}

func buildObserverOptions(opts ...ObserverOption) observerOptions {
	var o observerOptions
	for _, apply := range opts {
		apply(&o)
	}
	return o
}
