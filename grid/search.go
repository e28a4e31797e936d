package grid

import (
	"strings"

	"github.com/hazyhaar/cardcrafter/observability"
)

// MaxSearchCache is the number of distinct queries kept before the search
// cache is flushed.
const MaxSearchCache = 50

// searchIndex filters records by query. Results are memoized per
// normalized query; the memo is dropped wholesale when it outgrows
// MaxSearchCache.
type searchIndex struct {
	recs   []*record
	fields FieldMap
	cache  map[string][]int
}

func newSearchIndex(recs []*record, fm FieldMap) *searchIndex {
	return &searchIndex{recs: recs, fields: fm, cache: make(map[string][]int)}
}

// NormalizeQuery lowercases and trims a query.
func NormalizeQuery(q string) string {
	return strings.ToLower(strings.TrimSpace(q))
}

// all returns every record index in original order.
func (s *searchIndex) all() []int {
	out := make([]int, len(s.recs))
	for i := range out {
		out[i] = i
	}
	return out
}

// filter returns the indices matching q, in original order. The returned
// slice is owned by the caller.
func (s *searchIndex) filter(q string) []int {
	q = NormalizeQuery(q)
	if q == "" {
		return s.all()
	}
	if hit, ok := s.cache[q]; ok {
		observability.SearchCache.WithLabelValues("hit").Inc()
		return append([]int(nil), hit...)
	}
	observability.SearchCache.WithLabelValues("miss").Inc()

	var out []int
	for i, r := range s.recs {
		if strings.Contains(s.text(r), q) {
			out = append(out, i)
		}
	}
	if len(s.cache) >= MaxSearchCache {
		clear(s.cache)
		observability.SearchCache.WithLabelValues("flush").Inc()
	}
	s.cache[q] = out
	return append([]int(nil), out...)
}

// text returns the lowercased searchable text of r, computing it once.
func (s *searchIndex) text(r *record) string {
	if !r.done {
		title := s.fields.text(r.item, s.fields.Title)
		desc := s.fields.text(r.item, s.fields.Description)
		sub := s.fields.text(r.item, s.fields.Subtitle)
		r.text = strings.ToLower(title + " " + desc + " " + sub)
		r.done = true
	}
	return r.text
}

func (s *searchIndex) cacheLen() int { return len(s.cache) }
