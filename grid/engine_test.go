package grid

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"
)

const teamJSON = `[
	{"name":"Sarah Johnson","role":"CEO","bio":"Leads the company.","photo":"https://img.example.com/1.jpg"},
	{"name":"Michael Chen","role":"CTO","bio":"Builds the platform.","photo":"https://img.example.com/2.jpg"},
	{"name":"Emily Rodriguez","role":"Designer","bio":"Shapes the product.","photo":"https://img.example.com/3.jpg"},
	{"name":"David Kim","role":"Engineer","bio":"Ships features.","photo":"https://img.example.com/4.jpg"},
	{"name":"Lisa Thompson","role":"Marketing","bio":"Tells the story.","photo":"https://img.example.com/5.jpg"},
	{"name":"James Wilson","role":"Sales","bio":"Finds customers.","photo":"https://img.example.com/6.jpg"}
]`

var teamFields = FieldMap{Title: "name", Subtitle: "role", Description: "bio", Image: "photo"}

func inlineConfig(data string) Config {
	cfg := DefaultConfig()
	cfg.Selector = "#grid"
	cfg.Data = json.RawMessage(data)
	return cfg
}

func newReadyEngine(t *testing.T, cfg Config, opts ...Option) *Engine {
	t.Helper()
	eng, err := New(cfg, nil, opts...)
	require.NoError(t, err)
	require.NoError(t, eng.Init(context.Background()))
	require.Equal(t, StateReady, eng.State())
	t.Cleanup(eng.Close)
	return eng
}

func titles(items []Item) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i], _ = it["title"].(string)
	}
	return out
}

func numbered(n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = fmt.Sprintf(`{"title":"Item %03d","n":%d}`, i, i)
	}
	return "[" + strings.Join(parts, ",") + "]"
}

func TestNew_ConfigurationErrors(t *testing.T) {
	cases := []struct {
		name string
		mut  func(*Config)
	}{
		{"no selector", func(c *Config) { c.Selector = "" }},
		{"no source or data", func(c *Config) { c.Data = nil; c.Source = "" }},
		{"bad layout", func(c *Config) { c.Layout = "carousel" }},
		{"negative per page", func(c *Config) { c.ItemsPerPage = -1 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := inlineConfig(`[]`)
			tc.mut(&cfg)
			_, err := New(cfg, nil)
			assert.ErrorIs(t, err, ErrConfiguration)
		})
	}

	cfg := DefaultConfig()
	cfg.Selector = "#g"
	cfg.Source = "https://api.example.com/data.json"
	_, err := New(cfg, nil)
	assert.ErrorIs(t, err, ErrConfiguration, "source without loader")
}

func TestConfig_Validate_Defaults(t *testing.T) {
	cfg := Config{Selector: "#g", Source: "x", Columns: 12}
	require.NoError(t, cfg.Validate())
	assert.Equal(t, LayoutGrid, cfg.Layout)
	assert.Equal(t, 6, cfg.Columns)
	assert.Equal(t, 12, cfg.ItemsPerPage)
	assert.Equal(t, "title", cfg.Fields.Title)
	assert.Equal(t, "image", cfg.Fields.Image)
}

func TestParseConfig(t *testing.T) {
	cfg, err := ParseConfig([]byte(`{
		"selector": "#team",
		"layout": "masonry",
		"search": false,
		"itemsPerPage": 6,
		"fields": {"title": "name"},
		"data": [{"name": "B", "a": 1}]
	}`))
	require.NoError(t, err)
	assert.Equal(t, "masonry", cfg.Layout)
	assert.False(t, cfg.Search)
	assert.True(t, cfg.Pagination, "unset flags keep defaults")
	assert.Equal(t, 6, cfg.ItemsPerPage)
	raw, ok := cfg.Data.(json.RawMessage)
	require.True(t, ok)
	assert.JSONEq(t, `[{"name":"B","a":1}]`, string(raw))

	_, err = ParseConfig([]byte(`{`))
	assert.ErrorIs(t, err, ErrConfiguration)
}

func TestScenarioA_SinglePageNoControls(t *testing.T) {
	// WHAT: 6 items at 6 per page render on one page without pagination controls.
	cfg := inlineConfig(teamJSON)
	cfg.ItemsPerPage = 6
	cfg.Fields = teamFields
	eng := newReadyEngine(t, cfg)

	assert.Len(t, eng.Visible(), 6)
	page, total := eng.Page()
	assert.Equal(t, 1, page)
	assert.Equal(t, 1, total)

	out, err := eng.Render(RenderOptions{})
	require.NoError(t, err)
	assert.Equal(t, 6, strings.Count(out, `<article class="cardcrafter-card">`))
	assert.NotContains(t, out, "cardcrafter-pagination")
}

func TestScenarioB_SearchAndClear(t *testing.T) {
	// WHAT: "chen" matches one of ten items; clearing restores all in order.
	data := `[
		{"title":"Sarah Johnson"},{"title":"Michael Chen"},{"title":"Emily Rodriguez"},
		{"title":"David Kim"},{"title":"Lisa Thompson"},{"title":"James Wilson"},
		{"title":"Anna Schmidt"},{"title":"Tom Baker"},{"title":"Nina Patel"},{"title":"Omar Haddad"}
	]`
	eng := newReadyEngine(t, inlineConfig(data))
	before := titles(eng.Filtered())
	require.Len(t, before, 10)

	eng.ApplyQuery("chen")
	assert.Equal(t, []string{"Michael Chen"}, titles(eng.Filtered()))

	eng.ApplyQuery("")
	assert.Equal(t, before, titles(eng.Filtered()))

	eng.ApplyQuery("   ")
	assert.Equal(t, before, titles(eng.Filtered()))
}

func TestScenarioC_SortZA(t *testing.T) {
	eng := newReadyEngine(t, inlineConfig(`[{"title":"Banana"},{"title":"Apple"},{"title":"Cherry"}]`))
	require.NoError(t, eng.SetSort(SortZA))
	assert.Equal(t, []string{"Cherry", "Banana", "Apple"}, titles(eng.Filtered()))

	require.NoError(t, eng.SetSort(SortAZ))
	assert.Equal(t, []string{"Apple", "Banana", "Cherry"}, titles(eng.Filtered()))

	// Default keeps the current order rather than restoring fetch order.
	require.NoError(t, eng.SetSort(SortDefault))
	assert.Equal(t, []string{"Apple", "Banana", "Cherry"}, titles(eng.Filtered()))

	assert.Error(t, eng.SetSort("random"))
}

func TestSort_CaseInsensitive(t *testing.T) {
	eng := newReadyEngine(t, inlineConfig(`[{"title":"banana"},{"title":"Apple"},{"title":"cherry"},{"title":"Éclair"}]`))
	require.NoError(t, eng.SetSort(SortAZ))
	assert.Equal(t, []string{"Apple", "banana", "cherry", "Éclair"}, titles(eng.Filtered()))
}

func TestSort_Locale(t *testing.T) {
	// WHAT: the collation locale decides where accented letters sort.
	data := `[{"title":"Zebra"},{"title":"Örn"},{"title":"Apple"}]`

	eng := newReadyEngine(t, inlineConfig(data))
	require.NoError(t, eng.SetSort(SortAZ))
	assert.Equal(t, []string{"Apple", "Örn", "Zebra"}, titles(eng.Filtered()))

	sv := newReadyEngine(t, inlineConfig(data), WithLocale(language.Swedish))
	require.NoError(t, sv.SetSort(SortAZ))
	assert.Equal(t, []string{"Apple", "Zebra", "Örn"}, titles(sv.Filtered()))
}

func TestSearch_IdempotentAndCacheConsistent(t *testing.T) {
	// WHAT: Applying a query twice, or via the cache, gives the same result
	// as filtering from scratch.
	eng := newReadyEngine(t, inlineConfig(numbered(60)))

	for _, q := range []string{"item 01", "ITEM 00", " 5", "nothing", "item"} {
		eng.ApplyQuery(q)
		first := titles(eng.Filtered())
		eng.ApplyQuery(q)
		second := titles(eng.Filtered())
		assert.Equal(t, first, second, "query %q", q)

		fresh := newSearchIndex(eng.recs, eng.config.Fields)
		var scratch []string
		for _, i := range fresh.filter(q) {
			scratch = append(scratch, eng.recs[i].item["title"].(string))
		}
		if len(scratch) == 0 {
			scratch = []string{}
		}
		assert.Equal(t, scratch, second, "query %q", q)
	}
}

func TestSearch_MatchesDescriptionAndSubtitle(t *testing.T) {
	cfg := inlineConfig(teamJSON)
	cfg.Fields = teamFields
	eng := newReadyEngine(t, cfg)

	eng.ApplyQuery("platform")
	assert.Len(t, eng.Filtered(), 1)
	eng.ApplyQuery("DESIGNER")
	assert.Len(t, eng.Filtered(), 1)
	// Image URLs are not searchable.
	eng.ApplyQuery("img.example.com")
	assert.Empty(t, eng.Filtered())
}

func TestSearch_MemoizesItemText(t *testing.T) {
	eng := newReadyEngine(t, inlineConfig(numbered(5)))
	eng.ApplyQuery("item")
	for _, r := range eng.recs {
		assert.True(t, r.done)
	}
	eng.recs[0].text = "overridden"
	eng.ApplyQuery("overrid")
	assert.Equal(t, []string{"Item 000"}, titles(eng.Filtered()), "memoized text is reused")
}

func TestSearch_CacheFlushesOnOverflow(t *testing.T) {
	// WHAT: the cache never holds more than MaxSearchCache queries.
	eng := newReadyEngine(t, inlineConfig(numbered(5)))
	peak := 0
	for i := 0; i < MaxSearchCache; i++ {
		eng.ApplyQuery(fmt.Sprintf("q%d", i))
		peak = max(peak, eng.index.cacheLen())
	}
	assert.Equal(t, MaxSearchCache, eng.index.cacheLen())
	assert.Equal(t, MaxSearchCache, peak)

	// A cached query does not flush.
	eng.ApplyQuery("q0")
	assert.Equal(t, MaxSearchCache, eng.index.cacheLen())

	eng.ApplyQuery("one more")
	assert.Equal(t, 1, eng.index.cacheLen())

	// Query normalization shares entries.
	eng.ApplyQuery("  ONE MORE ")
	assert.Equal(t, 1, eng.index.cacheLen())
}

func TestSearch_ResetsPage_SortKeepsPage(t *testing.T) {
	eng := newReadyEngine(t, inlineConfig(numbered(50)))
	eng.SetPage(3)
	page, _ := eng.Page()
	require.Equal(t, 3, page)

	require.NoError(t, eng.SetSort(SortZA))
	page, _ = eng.Page()
	assert.Equal(t, 3, page, "sort keeps the page")

	eng.ApplyQuery("item")
	page, _ = eng.Page()
	assert.Equal(t, 1, page, "query resets the page")
	// The active sort still applies to the new result.
	assert.Equal(t, "Item 049", titles(eng.Filtered())[0])
}

func TestPagination_PageSlice(t *testing.T) {
	// WHAT: 100 items, 12 per page, page 9 holds original indices 96..99.
	eng := newReadyEngine(t, inlineConfig(numbered(100)))
	eng.SetPage(9)
	vis := eng.Visible()
	require.Len(t, vis, 4)
	for i, it := range vis {
		assert.Equal(t, fmt.Sprintf("Item %03d", 96+i), it["title"])
	}

	eng.SetPage(99)
	page, total := eng.Page()
	assert.Equal(t, 9, page)
	assert.Equal(t, 9, total)

	require.NoError(t, eng.SetItemsPerPage(24))
	page, total = eng.Page()
	assert.Equal(t, 1, page)
	assert.Equal(t, 5, total)
	assert.Error(t, eng.SetItemsPerPage(0))
}

func TestPagination_Disabled(t *testing.T) {
	cfg := inlineConfig(numbered(30))
	cfg.Pagination = false
	eng := newReadyEngine(t, cfg)
	assert.Len(t, eng.Visible(), 30)
	out, err := eng.Render(RenderOptions{})
	require.NoError(t, err)
	assert.NotContains(t, out, "cardcrafter-pagination")
	assert.NotContains(t, out, `name="per_page"`)
}

func TestEngine_EmptyFilterKeepsPageOne(t *testing.T) {
	eng := newReadyEngine(t, inlineConfig(numbered(30)))
	eng.SetPage(2)
	eng.ApplyQuery("no such thing")
	page, total := eng.Page()
	assert.Equal(t, 1, page)
	assert.Equal(t, 1, total)
	assert.Empty(t, eng.Visible())
	out, err := eng.Render(RenderOptions{})
	require.NoError(t, err)
	assert.Contains(t, out, "No items found.")
}

type stubLoader struct {
	calls   int
	results []any
	errs    []error
}

func (s *stubLoader) Load(_ context.Context, _ string) (any, error) {
	i := s.calls
	s.calls++
	if i < len(s.errs) && s.errs[i] != nil {
		return nil, s.errs[i]
	}
	return s.results[i], nil
}

func TestEngine_ErrorThenRetry(t *testing.T) {
	// WHAT: A failed load enters Error with a retry affordance; retry reloads.
	loader := &stubLoader{
		errs:    []error{errors.New("dial tcp 10.0.0.7:443: connection refused"), nil},
		results: []any{nil, json.RawMessage(`{"items":[{"title":"ok"}]}`)},
	}
	cfg := DefaultConfig()
	cfg.Selector = "#g"
	cfg.Source = "https://api.example.com/items"
	eng, err := New(cfg, loader)
	require.NoError(t, err)
	assert.Equal(t, StateLoading, eng.State())

	err = eng.Init(context.Background())
	assert.ErrorIs(t, err, ErrFetch)
	assert.Equal(t, StateError, eng.State())

	out, err := eng.Render(RenderOptions{})
	require.NoError(t, err)
	assert.Contains(t, out, "data-retry")
	assert.Contains(t, out, DefaultLoadMessage)
	assert.NotContains(t, out, "10.0.0.7", "raw transport detail must not render")

	// Actions are ignored outside Ready.
	eng.ApplyQuery("x")
	_, err = eng.Export(FormatCSV)
	assert.ErrorIs(t, err, ErrExport)

	require.NoError(t, eng.Retry(context.Background()))
	assert.Equal(t, StateReady, eng.State())
	assert.Equal(t, []string{"ok"}, titles(eng.Filtered()))

	assert.Error(t, eng.Retry(context.Background()), "retry only from Error")
}

func TestEngine_LoadErrorMessageShown(t *testing.T) {
	loader := LoaderFunc(func(context.Context, string) (any, error) {
		return nil, &LoadError{Message: "Data source not found. Please check the URL and try again.", Err: ErrFetch}
	})
	cfg := DefaultConfig()
	cfg.Selector = "#g"
	cfg.Source = "https://api.example.com/missing"
	eng, err := New(cfg, loader)
	require.NoError(t, err)
	require.Error(t, eng.Init(context.Background()))
	assert.Equal(t, "Data source not found. Please check the URL and try again.", eng.Snapshot().Error)
}

func TestEngine_ParseError(t *testing.T) {
	loader := LoaderFunc(func(context.Context, string) (any, error) {
		return json.RawMessage(`not json`), nil
	})
	cfg := DefaultConfig()
	cfg.Selector = "#g"
	cfg.Source = "https://api.example.com/bad"
	eng, err := New(cfg, loader)
	require.NoError(t, err)
	assert.ErrorIs(t, eng.Init(context.Background()), ErrParse)
	assert.Equal(t, StateError, eng.State())
}

func TestEngine_DebouncedSearch(t *testing.T) {
	clock := &manualClock{}
	eng := newReadyEngine(t, inlineConfig(numbered(20)), WithClock(clock))

	applied := 0
	eng.SetQuery("item 01", func() { applied++ })
	clock.Advance(100 * time.Millisecond)
	eng.SetQuery("item 015", func() { applied++ })
	clock.Advance(299 * time.Millisecond)
	assert.Len(t, eng.Filtered(), 20, "not applied before the quiet period")

	clock.Advance(time.Millisecond)
	assert.Equal(t, 1, applied)
	assert.Equal(t, []string{"Item 015"}, titles(eng.Filtered()))
}

func TestEngine_Snapshot(t *testing.T) {
	eng := newReadyEngine(t, inlineConfig(numbered(30)))
	eng.SetPage(2)
	s := eng.Snapshot()
	assert.Equal(t, StateReady, s.State)
	assert.Equal(t, 2, s.Page)
	assert.Equal(t, 3, s.TotalPages)
	assert.Equal(t, 30, s.TotalItems)
	require.Len(t, s.Visible, 12)
	assert.Equal(t, "Item 012", s.Visible[0]["title"])

	eng.ApplyQuery("item 00")
	s = eng.Snapshot()
	assert.Equal(t, "item 00", s.Query)
	assert.Equal(t, 1, s.Page)
	assert.Equal(t, 10, s.Filtered)
	assert.Empty(t, s.Error)
}

func TestRender_Card(t *testing.T) {
	long := strings.Repeat("x", 160)
	data := fmt.Sprintf(`[
		{"title":"<b>Bold</b> name","description":%q,"link":"https://example.com/p/1","image":"https://img.example.com/1.png"},
		{"description":"short"},
		{"title":"<script>alert(1)</script>Safe","link":"javascript:alert(1)"}
	]`, long)
	eng := newReadyEngine(t, inlineConfig(data))

	out, err := eng.Render(RenderOptions{ExportURL: "/grid/team/export"})
	require.NoError(t, err)

	assert.Contains(t, out, ">Bold name</h3>")
	assert.Contains(t, out, ">Untitled</h3>")
	assert.Contains(t, out, strings.Repeat("x", 147)+"...")
	assert.NotContains(t, out, strings.Repeat("x", 148))
	assert.Contains(t, out, `href="https://example.com/p/1" target="_blank" rel="noopener noreferrer"`)
	assert.Contains(t, out, `src="https://img.example.com/1.png"`)
	assert.Contains(t, out, `src="data:image/svg&#43;xml;base64,`)
	assert.Contains(t, out, "data-fallback=")
	assert.NotContains(t, out, "<script>")
	assert.NotContains(t, out, "javascript:alert")
	assert.Contains(t, out, `data-export="csv"`)
	assert.Contains(t, out, `/grid/team/export/pdf?`)
}

func TestRender_ToggledSections(t *testing.T) {
	cfg := inlineConfig(`[{"title":"A","description":"desc","link":"https://example.com","image":"https://img.example.com/a.png"}]`)
	cfg.ShowImage = false
	cfg.ShowDescription = false
	cfg.ShowButtons = false
	cfg.Search = false
	cfg.Filters = false
	eng := newReadyEngine(t, cfg)

	out, err := eng.Render(RenderOptions{})
	require.NoError(t, err)
	assert.NotContains(t, out, "<img")
	assert.NotContains(t, out, "cardcrafter-card-description")
	assert.NotContains(t, out, "cardcrafter-card-link")
	assert.NotContains(t, out, `type="search"`)
	assert.NotContains(t, out, `name="sort"`)
	assert.NotContains(t, out, "data-export", "no export links without an export URL")
}

func TestRender_Pagination(t *testing.T) {
	eng := newReadyEngine(t, inlineConfig(numbered(100)))
	eng.SetPage(5)
	out, err := eng.Render(RenderOptions{})
	require.NoError(t, err)

	assert.Contains(t, out, "Showing 49-60 of 100 items")
	assert.Contains(t, out, `aria-current="page">5</span>`)
	for _, n := range []int{3, 4, 6, 7} {
		assert.Contains(t, out, fmt.Sprintf(`data-page="%d">%d</a>`, n, n))
	}
	assert.NotContains(t, out, `data-page="8">8</a>`)
	assert.Contains(t, out, `rel="prev"`)
	assert.Contains(t, out, `rel="next"`)
}

func TestRender_Loading(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Selector = "#g"
	cfg.Source = "https://api.example.com/x"
	eng, err := New(cfg, LoaderFunc(func(context.Context, string) (any, error) { return nil, nil }))
	require.NoError(t, err)
	out, err := eng.Render(RenderOptions{})
	require.NoError(t, err)
	assert.Contains(t, out, `data-state="loading"`)
	assert.Contains(t, out, "Loading...")
}
