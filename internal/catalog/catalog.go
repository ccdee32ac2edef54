// Package catalog holds the item-side lookup tables of the recommender: the
// mapping from dense item index to external identifier, and the set of
// items that have interaction history.
package catalog

import (
	"fmt"
	"sort"

	"github.com/localrivet/hybridrec/internal/errortypes"
)

// Item is one catalog entry.
type Item struct {
	Index int    `json:"index"`
	ID    string `json:"id"`
	Title string `json:"title"`
}

// Catalog maps item indices to items. It is immutable once built.
type Catalog struct {
	items []Item
}

// New builds a Catalog from items. Indices must be dense: every index in
// [0, len(items)) appears exactly once. An item without an ID uses its index
// rendered as a string.
func New(items []Item) (*Catalog, error) {
	sorted := make([]Item, len(items))
	copy(sorted, items)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Index < sorted[j].Index })

	for i := range sorted {
		if sorted[i].Index != i {
			return nil, errortypes.Newf(errortypes.ErrorTypeInvalidInput, "catalog indices must be dense",
				"expected index %d, found %d", i, sorted[i].Index)
		}
		if sorted[i].ID == "" {
			sorted[i].ID = fmt.Sprintf("%d", i)
		}
	}

	return &Catalog{items: sorted}, nil
}

// FromTitles builds a Catalog whose item IDs are the row indices.
func FromTitles(titles []string) *Catalog {
	items := make([]Item, len(titles))
	for i, title := range titles {
		items[i] = Item{Index: i, ID: fmt.Sprintf("%d", i), Title: title}
	}
	return &Catalog{items: items}
}

// Len returns the number of items.
func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.items)
}

// Get returns the item at index.
func (c *Catalog) Get(index int) (Item, bool) {
	if c == nil || index < 0 || index >= len(c.items) {
		return Item{}, false
	}
	return c.items[index], true
}

// Lookup translates indices to items, preserving order. An index outside the
// catalog is an invalid input.
func (c *Catalog) Lookup(indices []int) ([]Item, error) {
	out := make([]Item, 0, len(indices))
	for _, idx := range indices {
		item, ok := c.Get(idx)
		if !ok {
			return nil, errortypes.Newf(errortypes.ErrorTypeInvalidInput, "item index not in catalog",
				"index %d, catalog size %d", idx, c.Len())
		}
		out = append(out, item)
	}
	return out, nil
}

// Titles returns every title in index order.
func (c *Catalog) Titles() []string {
	out := make([]string, c.Len())
	for i := range out {
		out[i] = c.items[i].Title
	}
	return out
}

// Items returns a copy of all items in index order.
func (c *Catalog) Items() []Item {
	out := make([]Item, c.Len())
	copy(out, c.items)
	return out
}
