package lock

import "github.com/mlindqvist/zkdistributed/zkpath"

// exclusivePolicyPrefix marks a sequential child as wanting exclusive
// (write) access. An exclusive requester is blocked by ANY sibling with a
// lower sequence number, regardless of that sibling's own prefix.
const exclusivePolicyPrefix = "x-"

type exclusivePolicy struct{}

func (exclusivePolicy) prefix() string { return exclusivePolicyPrefix }

func (exclusivePolicy) blocker(siblings []string, ownName string) string {
	ownSeq, err := zkpath.SequenceOf(ownName)
	if err != nil {
		return ""
	}

	blockerName := ""
	var blockerSeq int64 = -1

	for _, sib := range siblings {
		if sib == ownName {
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

func (exclusivePolicy) wouldBlock(siblings []string) bool {
	return len(siblings) > 0
}
