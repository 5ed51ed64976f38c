// Package zkpath holds the handful of pure path/sequence helpers shared by
// lock and election: parent-path derivation, child-name escaping, and
// ordering siblings by their server-assigned sequence suffix. Neither
// package needs anything heavier than this, so it stays dependency-free.
package zkpath

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// sequenceWidth is the width of the zero-padded sequence suffix ZooKeeper
// appends to a sequential node's name.
const sequenceWidth = 10

// EscapeName turns a lock/election name containing slashes into a flat
// node name, doubling underscores in place of path separators.
func EscapeName(name string) string {
	return strings.ReplaceAll(name, "/", "__")
}

// RootChildPath returns "/<rootNode>/<escaped name>", the persistent
// parent node a lock or election lives under.
func RootChildPath(rootNode, name string) string {
	return "/" + strings.Trim(rootNode, "/") + "/" + EscapeName(name)
}

// JoinChild appends basename as a child of parent.
func JoinChild(parent, basename string) string {
	return strings.TrimRight(parent, "/") + "/" + basename
}

// Basename returns the last path segment of fullPath.
func Basename(fullPath string) string {
	idx := strings.LastIndex(fullPath, "/")
	if idx < 0 {
		return fullPath
	}
	return fullPath[idx+1:]
}

// SequenceOf extracts the trailing zero-padded sequence number ZooKeeper
// assigned to a sequential node's basename.
func SequenceOf(basename string) (int64, error) {
	if len(basename) < sequenceWidth {
		return 0, fmt.Errorf("zkdistributed: %q is too short to carry a sequence suffix", basename)
	}
	suffix := basename[len(basename)-sequenceWidth:]
	return strconv.ParseInt(suffix, 10, 64)
}

// SortBySequence orders basenames by their trailing sequence number,
// ascending, regardless of any prefix before it. Ordering among
// requesters is determined solely by this number.
func SortBySequence(names []string) {
	sort.Slice(names, func(i, j int) bool {
		si, erri := SequenceOf(names[i])
		sj, errj := SequenceOf(names[j])
		if erri != nil || errj != nil {
			return names[i] < names[j]
		}
		return si < sj
	})
}
