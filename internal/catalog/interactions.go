package catalog

import (
	"github.com/RoaringBitmap/roaring/v2"
)

// Interaction is one aggregated (user, item) interaction count.
type Interaction struct {
	User  string
	Item  int
	Count float64
}

// InteractionSet is the set of item indices with interaction history.
// It is safe for concurrent reads; there are no mutating methods.
type InteractionSet struct {
	bitmap *roaring.Bitmap
}

// NewInteractionSet builds a set from item indices. Negative indices are ignored.
func NewInteractionSet(items ...int) *InteractionSet {
	bm := roaring.New()
	for _, item := range items {
		if item >= 0 {
			bm.Add(uint32(item))
		}
	}
	bm.RunOptimize()
	return &InteractionSet{bitmap: bm}
}

// FromInteractions builds the set of items whose summed interaction count
// is positive.
func FromInteractions(rows []Interaction) *InteractionSet {
	totals := make(map[int]float64)
	for _, row := range rows {
		totals[row.Item] += row.Count
	}

	items := make([]int, 0, len(totals))
	for item, total := range totals {
		if total > 0 {
			items = append(items, item)
		}
	}
	return NewInteractionSet(items...)
}

// Contains reports whether item has interaction history.
func (s *InteractionSet) Contains(item int) bool {
	if s == nil || item < 0 {
		return false
	}
	return s.bitmap.Contains(uint32(item))
}

// Len returns the number of items in the set.
func (s *InteractionSet) Len() int {
	if s == nil {
		return 0
	}
	return int(s.bitmap.GetCardinality())
}

// Max returns the largest item index in the set, or -1 when empty.
func (s *InteractionSet) Max() int {
	if s.Len() == 0 {
		return -1
	}
	return int(s.bitmap.Maximum())
}

// Filter returns the members of candidates that are in the set, in their
// original order.
func (s *InteractionSet) Filter(candidates []int) []int {
	out := make([]int, 0, len(candidates))
	for _, c := range candidates {
		if s.Contains(c) {
			out = append(out, c)
		}
	}
	return out
}

// ToSlice returns the members in ascending order.
func (s *InteractionSet) ToSlice() []int {
	if s == nil {
		return nil
	}
	raw := s.bitmap.ToArray()
	out := make([]int, len(raw))
	for i, v := range raw {
		out[i] = int(v)
	}
	return out
}
