package grid

import (
	"fmt"
	"slices"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// SortKey selects the card order.
type SortKey string

const (
	// SortDefault keeps the current order.
	SortDefault SortKey = "default"
	// SortAZ orders by title ascending.
	SortAZ SortKey = "az"
	// SortZA orders by title descending.
	SortZA SortKey = "za"
)

// ParseSortKey accepts "", "default", "az" and "za".
func ParseSortKey(s string) (SortKey, error) {
	switch SortKey(s) {
	case "", SortDefault:
		return SortDefault, nil
	case SortAZ, SortZA:
		return SortKey(s), nil
	}
	return "", fmt.Errorf("grid: unknown sort key %q", s)
}

// titleSorter compares titles with a case-insensitive collator. A
// collator is not safe for concurrent use; each engine owns one.
type titleSorter struct {
	coll   *collate.Collator
	fields FieldMap
}

func newTitleSorter(tag language.Tag, fm FieldMap) *titleSorter {
	return &titleSorter{coll: collate.New(tag, collate.IgnoreCase), fields: fm}
}

// sort reorders idx in place. SortDefault is a no-op.
func (t *titleSorter) sort(recs []*record, idx []int, key SortKey) {
	if key != SortAZ && key != SortZA {
		return
	}
	titles := make(map[int]string, len(idx))
	for _, i := range idx {
		titles[i] = t.fields.text(recs[i].item, t.fields.Title)
	}
	slices.SortStableFunc(idx, func(a, b int) int {
		c := t.coll.CompareString(titles[a], titles[b])
		if key == SortZA {
			return -c
		}
		return c
	})
}
