package generator

// DefaultIgnorePIDs are identifiers that never produce index tasks.
var DefaultIgnorePIDs = []string{"OBJECT_FORMAT_LIST.1.1"}

// IgnoreList is an immutable set of identifiers excluded from indexing.
type IgnoreList struct {
	pids map[string]struct{}
}

// NewIgnoreList builds an ignore list from pids. Empty entries are dropped.
func NewIgnoreList(pids []string) IgnoreList {
	set := make(map[string]struct{}, len(pids))
	for _, p := range pids {
		if p != "" {
			set[p] = struct{}{}
		}
	}
	return IgnoreList{pids: set}
}

// Ignored reports whether pid must not be indexed.
func (l IgnoreList) Ignored(pid string) bool {
	_, ok := l.pids[pid]
	return ok
}

// Len returns the number of ignored identifiers.
func (l IgnoreList) Len() int {
	return len(l.pids)
}
