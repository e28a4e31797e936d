// Package grid is the cardcrafter render engine: it turns a configured data
// source into a searchable, sortable, paginated and exportable card grid.
//
// One Engine is one grid instance. State changes are serialized on the
// engine; debounced searches apply on the engine's clock.
//
//	eng, err := grid.New(cfg, loader)
//	if err := eng.Init(ctx); err != nil { ... } // engine shows the error panel
//	eng.ApplyQuery("chen")
//	eng.SetSort(grid.SortAZ)
//	html, _ := eng.Render(grid.RenderOptions{})
package grid

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/language"

	"github.com/hazyhaar/cardcrafter/observability"
)

// State is the lifecycle state of an engine.
type State string

const (
	StateLoading State = "loading"
	StateReady   State = "ready"
	StateError   State = "error"
)

// Engine is one grid instance.
type Engine struct {
	mu sync.Mutex

	id       string
	config   Config
	loader   Loader
	logger   *slog.Logger
	now      func() time.Time
	debounce *Debouncer
	sorter   *titleSorter

	state    State
	err      error
	recs     []*record
	index    *searchIndex
	filtered []int
	query    string
	sort     SortKey
	page     int
	perPage  int
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock sets the clock driving search debouncing.
func WithClock(c Clock) Option {
	return func(e *Engine) { e.debounce = NewDebouncer(DefaultDebounce, c) }
}

// WithNow sets the time source for export timestamps.
func WithNow(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithLogger sets the engine logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithLocale sets the collation locale of title sorting (default English).
func WithLocale(tag language.Tag) Option {
	return func(e *Engine) { e.sorter = newTitleSorter(tag, e.config.Fields) }
}

// New validates cfg and creates an engine in the Loading state. loader may
// be nil when cfg carries inline data.
func New(cfg Config, loader Loader, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Data == nil && loader == nil {
		return nil, fmt.Errorf("%w: no loader for source %q", ErrConfiguration, cfg.Source)
	}
	e := &Engine{
		id:      uuid.NewString(),
		config:  cfg,
		loader:  loader,
		logger:  slog.Default(),
		now:     time.Now,
		state:   StateLoading,
		sort:    SortDefault,
		page:    1,
		perPage: cfg.ItemsPerPage,
	}
	e.sorter = newTitleSorter(language.English, cfg.Fields)
	for _, opt := range opts {
		opt(e)
	}
	if e.debounce == nil {
		e.debounce = NewDebouncer(DefaultDebounce, nil)
	}
	e.logger = e.logger.With("grid", e.id, "selector", cfg.Selector)
	return e, nil
}

// ID returns the instance id.
func (e *Engine) ID() string { return e.id }

// Config returns the validated configuration.
func (e *Engine) Config() Config { return e.config }

// Init loads and indexes the data. On failure the engine enters the Error
// state and the error (wrapping ErrFetch or ErrParse) is returned.
func (e *Engine) Init(ctx context.Context) error {
	e.mu.Lock()
	e.state = StateLoading
	e.err = nil
	e.mu.Unlock()

	payload := e.config.Data
	if payload == nil {
		var err error
		payload, err = e.loader.Load(ctx, e.config.Source)
		if err != nil {
			if !errors.Is(err, ErrParse) && !errors.Is(err, ErrFetch) {
				err = fmt.Errorf("%w: %w", ErrFetch, err)
			}
			return e.fail(err)
		}
	}

	recs, err := normalize(payload)
	if err != nil {
		return e.fail(err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.recs = recs
	e.index = newSearchIndex(recs, e.config.Fields)
	e.query = ""
	e.sort = SortDefault
	e.page = 1
	e.perPage = e.config.ItemsPerPage
	e.filtered = e.index.all()
	e.state = StateReady
	e.logger.Debug("grid ready", "items", len(recs))
	return nil
}

func (e *Engine) fail(err error) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state = StateError
	e.err = err
	e.recs = nil
	e.index = nil
	e.filtered = nil
	e.logger.Warn("grid load failed", "source", e.config.Source, "error", err)
	return err
}

// Retry re-runs initialization from scratch. Only valid in the Error state.
func (e *Engine) Retry(ctx context.Context) error {
	e.mu.Lock()
	st := e.state
	e.mu.Unlock()
	if st != StateError {
		return fmt.Errorf("grid: retry in state %s", st)
	}
	return e.Init(ctx)
}

// State returns the current state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Err returns the load error in the Error state.
func (e *Engine) Err() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.err
}

// SetQuery schedules q after the debounce quiet period; each call cancels
// the previous pending one. then, if non-nil, runs after q is applied.
func (e *Engine) SetQuery(q string, then func()) {
	e.debounce.Trigger(func() {
		e.ApplyQuery(q)
		if then != nil {
			then()
		}
	})
}

// ApplyQuery filters immediately, re-applies the active sort and resets
// the page to 1. Ignored unless Ready.
func (e *Engine) ApplyQuery(q string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != StateReady {
		return
	}
	e.query = q
	e.filtered = e.index.filter(q)
	e.sorter.sort(e.recs, e.filtered, e.sort)
	e.page = 1
}

// SetSort reorders the filtered items in place. The page is kept.
func (e *Engine) SetSort(key SortKey) error {
	if _, err := ParseSortKey(string(key)); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != StateReady {
		return nil
	}
	if key == "" {
		key = SortDefault
	}
	e.sort = key
	e.sorter.sort(e.recs, e.filtered, key)
	return nil
}

// SetPage moves to page p, clamped to the valid range.
func (e *Engine) SetPage(p int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != StateReady {
		return
	}
	e.page = ClampPage(p, len(e.filtered), e.perPage)
}

// SetItemsPerPage changes the page size and resets the page to 1.
func (e *Engine) SetItemsPerPage(n int) error {
	if n < 1 {
		return fmt.Errorf("grid: items per page must be at least 1, got %d", n)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.perPage = n
	e.page = 1
	return nil
}

// Filtered returns the current filtered and sorted items.
func (e *Engine) Filtered() []Item {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.itemsAt(e.filtered)
}

// Visible returns the items of the current page (all filtered items when
// pagination is disabled).
func (e *Engine) Visible() []Item {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.itemsAt(e.visible())
}

func (e *Engine) visible() []int {
	if !e.config.Pagination {
		return e.filtered
	}
	start, end := PageBounds(e.page, len(e.filtered), e.perPage)
	return e.filtered[start:end]
}

func (e *Engine) itemsAt(idx []int) []Item {
	out := make([]Item, len(idx))
	for i, j := range idx {
		out[i] = e.recs[j].item
	}
	return out
}

// Page returns the current page and the page count.
func (e *Engine) Page() (page, total int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.page, TotalPages(len(e.filtered), e.perPage)
}

// Export encodes the filtered items. It never changes engine state.
func (e *Engine) Export(f Format) (*ExportFile, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	file, err := e.export(f)
	outcome := "ok"
	if err != nil {
		outcome = "error"
		e.logger.Info("grid export failed", "format", f, "error", err)
	}
	observability.Exports.WithLabelValues(string(f), outcome).Inc()
	return file, err
}

func (e *Engine) export(f Format) (*ExportFile, error) {
	if _, err := ParseFormat(string(f)); err != nil {
		return nil, err
	}
	if e.state != StateReady {
		return nil, fmt.Errorf("%w: grid is %s", ErrExport, e.state)
	}
	if len(e.filtered) == 0 {
		return nil, fmt.Errorf("%w: no items to export", ErrExport)
	}
	recs := make([]*record, len(e.filtered))
	for i, j := range e.filtered {
		recs[i] = e.recs[j]
	}

	now := e.now()
	var data []byte
	var err error
	switch f {
	case FormatCSV:
		data, err = encodeCSV(recs)
	case FormatJSON:
		data, err = encodeJSON(recs, &e.config, now)
	case FormatPDF:
		data = encodePDF(recs, e.config.Fields, now)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExport, err)
	}
	return &ExportFile{Filename: ExportFilename(now, f), MIME: f.MIME(), Data: data}, nil
}

// Snapshot is a serializable view of an engine.
type Snapshot struct {
	ID           string  `json:"id"`
	State        State   `json:"state"`
	Error        string  `json:"error,omitempty"`
	Query        string  `json:"query"`
	Sort         SortKey `json:"sort"`
	Page         int     `json:"page"`
	TotalPages   int     `json:"total_pages"`
	ItemsPerPage int     `json:"items_per_page"`
	TotalItems   int     `json:"total_items"`
	Filtered     int     `json:"filtered"`
	Visible      []Item  `json:"visible"`
}

// Snapshot returns the current view.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	s := Snapshot{
		ID:           e.id,
		State:        e.state,
		Query:        e.query,
		Sort:         e.sort,
		Page:         e.page,
		TotalPages:   TotalPages(len(e.filtered), e.perPage),
		ItemsPerPage: e.perPage,
		TotalItems:   len(e.recs),
		Filtered:     len(e.filtered),
	}
	if e.state == StateError {
		s.Error = UserMessage(e.err)
	}
	if e.state == StateReady {
		s.Visible = e.itemsAt(e.visible())
	}
	return s
}

// Render returns the HTML fragment of the instance in its current state.
func (e *Engine) Render(opts RenderOptions) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	v := &view{
		ID:              e.id,
		Selector:        e.config.Selector,
		State:           string(e.state),
		Live:            opts.Live,
		Layout:          e.config.Layout,
		Columns:         e.config.Columns,
		Search:          e.config.Search,
		Filters:         e.config.Filters,
		Pagination:      e.config.Pagination,
		ShowImage:       e.config.ShowImage,
		ShowDescription: e.config.ShowDescription,
		ShowButtons:     e.config.ShowButtons,
		Query:           e.query,
	}
	switch e.state {
	case StateError:
		v.ErrorMessage = UserMessage(e.err)
	case StateReady:
		e.fillReady(v, opts)
	}

	out, err := executeTemplate(v)
	if err != nil {
		return "", fmt.Errorf("grid: render: %w", err)
	}
	return out, nil
}

func (e *Engine) fillReady(v *view, opts RenderOptions) {
	for _, s := range []struct {
		key   SortKey
		label string
	}{{SortDefault, "Default order"}, {SortAZ, "Title A-Z"}, {SortZA, "Title Z-A"}} {
		v.Sorts = append(v.Sorts, option{Value: string(s.key), Label: s.label, Selected: s.key == e.sort})
	}

	perPageSeen := false
	for _, n := range PerPageOptions {
		v.PerPage = append(v.PerPage, option{Value: strconv.Itoa(n), Label: strconv.Itoa(n) + " per page", Selected: n == e.perPage})
		perPageSeen = perPageSeen || n == e.perPage
	}
	if !perPageSeen {
		v.PerPage = append(v.PerPage, option{Value: strconv.Itoa(e.perPage), Label: strconv.Itoa(e.perPage) + " per page", Selected: true})
	}

	if e.config.EnableExport && opts.ExportURL != "" {
		q := pageURL(e.query, e.sort, e.perPage, 1)
		for _, f := range []Format{FormatCSV, FormatJSON, FormatPDF} {
			v.Exports = append(v.Exports, exportLink{
				Format: string(f),
				Label:  "Export " + string(f),
				URL:    opts.ExportURL + "/" + string(f) + q,
			})
		}
	}

	for _, i := range e.visible() {
		v.Cards = append(v.Cards, buildCard(e.config.Fields.resolve(e.recs[i].item)))
	}

	total := len(e.filtered)
	pages := TotalPages(total, e.perPage)
	if !e.config.Pagination || pages <= 1 {
		return
	}
	start, end := PageBounds(e.page, total, e.perPage)
	p := &pager{From: start + 1, To: end, Total: total}
	link := func(n int) pageLink {
		return pageLink{N: n, Current: n == e.page, URL: pageURL(e.query, e.sort, e.perPage, n)}
	}
	if e.page > 1 {
		l := link(e.page - 1)
		p.Prev = &l
	}
	if e.page < pages {
		l := link(e.page + 1)
		p.Next = &l
	}
	for _, n := range PageWindow(e.page, pages, PageWindowSize) {
		p.Pages = append(p.Pages, link(n))
	}
	v.Pager = p
}

// Close cancels any pending debounced search.
func (e *Engine) Close() {
	e.debounce.Cancel()
}
