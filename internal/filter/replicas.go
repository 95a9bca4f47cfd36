package filter

import "github.com/Aman-CERP/indexgen/internal/meta"

// ReplicasEqual reports whether two replica lists describe the same set of
// member nodes with the same verification times.
//
// Order is ignored and timestamps compare at millisecond resolution. A nil
// list and an empty list are equal.
func ReplicasEqual(a, b []meta.Replica) bool {
	if len(a) != len(b) {
		return false
	}
	if len(a) == 0 {
		return true
	}

	return replicaSet(a).equal(replicaSet(b))
}

// replicaKey identifies one replica at millisecond resolution.
type replicaKey struct {
	node     string
	verified int64
}

type replicaCounts map[replicaKey]int

// replicaSet counts each (node, verified) pair so lists that repeat a node
// only match lists repeating it the same way.
func replicaSet(rs []meta.Replica) replicaCounts {
	set := make(replicaCounts, len(rs))
	for _, r := range rs {
		set[replicaKey{node: r.MemberNode, verified: r.Verified.UnixMilli()}]++
	}
	return set
}

func (s replicaCounts) equal(o replicaCounts) bool {
	if len(s) != len(o) {
		return false
	}
	for k, n := range s {
		if o[k] != n {
			return false
		}
	}
	return true
}
