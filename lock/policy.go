package lock

// policy distinguishes exclusive from shared acquisition: both share the
// same fair-queueing, watch, and cleanup machinery in base.go, and differ
// only in which prefix a requester's own sequential node gets and which
// siblings block it.
type policy interface {
	// prefix is prepended to the sequential node name this requester
	// creates, e.g. "x-" for exclusive, "s-" for shared.
	prefix() string

	// blocker inspects the sorted list of sibling basenames (excluding
	// ownName) and returns the basename of the sibling this requester must
	// wait on, or "" if nothing blocks it and it currently owns the lock.
	blocker(siblings []string, ownName string) string

	// wouldBlock reports whether a brand-new requester of this policy,
	// ordered after every name in siblings, would have to wait. Used by
	// Acquirable, which must answer without creating a node of its own.
	wouldBlock(siblings []string) bool
}
