package lock

import "github.com/mlindqvist/zkdistributed/zkpath"

// sharedPolicyPrefix marks a sequential child as wanting shared (read)
// access. A shared requester is blocked only by a preceding exclusive
// sibling, never by another preceding shared one — any number of readers
// may hold the lock concurrently.
const sharedPolicyPrefix = "s-"

type sharedPolicy struct{}

func (sharedPolicy) prefix() string { return sharedPolicyPrefix }

func (sharedPolicy) blocker(siblings []string, ownName string) string {
	ownSeq, err := zkpath.SequenceOf(ownName)
	if err != nil {
		return ""
	}

	blockerName := ""
	var blockerSeq int64 = -1

	for _, sib := range siblings {
		if sib == ownName || len(sib) < len(exclusivePolicyPrefix) || sib[:len(exclusivePolicyPrefix)] != exclusivePolicyPrefix {
			continue
		}
		seq, err := zkpath.SequenceOf(sib)
		if err != nil || seq >= ownSeq {
			continue
		}
		if seq > blockerSeq {
			blockerSeq = seq
			blockerName = sib
		}
	}
	return blockerName
}

func (sharedPolicy) wouldBlock(siblings []string) bool {
	for _, sib := range siblings {
		if len(sib) >= len(exclusivePolicyPrefix) && sib[:len(exclusivePolicyPrefix)] == exclusivePolicyPrefix {
			return true
		}
	}
	return false
}
