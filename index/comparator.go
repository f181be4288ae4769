package index

import "cmp"

// Comparator is a total order on keys, returning a sign in {-1, 0, +1}.
// Pluggable so keys of any fixed-width serialized shape can be indexed,
// not just Go's built-in ordered types.
type Comparator[K any] func(a, b K) int

// OrderedComparator builds a Comparator for any type Go's cmp.Ordered
// constraint already covers, for callers with plain int/string keys who
// don't want to write their own.
func OrderedComparator[K cmp.Ordered]() Comparator[K] {
	return func(a, b K) int {
		switch {
		case a < b:
			return -1
		case a > b:
			return 1
		default:
			return 0
		}
	}
}
