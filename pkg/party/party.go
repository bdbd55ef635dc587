// Package party defines participant identifiers and sorted ID collections.
package party

import (
	"sort"
)

// ID uniquely identifies a protocol participant within an account.
type ID string

// IDSlice is a sorted slice of participant IDs.
// The canonical ascending order is load-bearing: deterministic selection
// rules (which reveals feed aggregation, which sub-shares feed
// interpolation) are all defined over this order.
type IDSlice []ID

// NewIDSlice returns a sorted, deduplicated copy of ids.
func NewIDSlice(ids []ID) IDSlice {
	out := make(IDSlice, 0, len(ids))
	seen := make(map[ID]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Contains reports whether id is present.
func (s IDSlice) Contains(id ID) bool {
	i := sort.Search(len(s), func(i int) bool { return s[i] >= id })
	return i < len(s) && s[i] == id
}

// Index returns the 1-based Shamir evaluation index of id, or 0 if absent.
// Indices are assigned by position in the sorted slice so that every
// participant derives the same index for every other participant.
func (s IDSlice) Index(id ID) int {
	i := sort.Search(len(s), func(i int) bool { return s[i] >= id })
	if i < len(s) && s[i] == id {
		return i + 1
	}
	return 0
}

// Union returns the sorted union of s and other.
func (s IDSlice) Union(other IDSlice) IDSlice {
	merged := make([]ID, 0, len(s)+len(other))
	merged = append(merged, s...)
	merged = append(merged, other...)
	return NewIDSlice(merged)
}

// Copy returns a copy of the slice.
func (s IDSlice) Copy() IDSlice {
	out := make(IDSlice, len(s))
	copy(out, s)
	return out
}

// Valid reports whether the slice is sorted and free of duplicates.
func (s IDSlice) Valid() bool {
	for i := 1; i < len(s); i++ {
		if s[i-1] >= s[i] {
			return false
		}
	}
	return true
}
