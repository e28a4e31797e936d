package grid

import (
	"bytes"
	"encoding/base64"
	"html"
	"html/template"
	"net/url"
	"strconv"
)

// DescriptionLimit is the longest description rendered untruncated.
const DescriptionLimit = 150

// RenderOptions tune the rendered fragment.
type RenderOptions struct {
	// ExportURL is the base of export links; each link is ExportURL/<format>.
	// Export links are omitted when empty.
	ExportURL string
	// Live marks the fragment as driven by a live session rather than by
	// plain links and form submission.
	Live bool
}

type option struct {
	Value    string
	Label    string
	Selected bool
}

type exportLink struct {
	Format string
	Label  string
	URL    string
}

type card struct {
	Image       string
	Placeholder template.URL
	Title       string
	Subtitle    string
	Description string
	Link        string
}

type pageLink struct {
	N       int
	Current bool
	URL     string
}

type pager struct {
	From, To, Total int
	Prev, Next      *pageLink
	Pages           []pageLink
}

type view struct {
	ID              string
	Selector        string
	State           string
	Live            bool
	Layout          string
	Columns         int
	Search          bool
	Filters         bool
	Pagination      bool
	ShowImage       bool
	ShowDescription bool
	ShowButtons     bool
	Query           string
	Sorts           []option
	PerPage         []option
	Exports         []exportLink
	Cards           []card
	Pager           *pager
	ErrorMessage    string
}

var gridTemplate = template.Must(template.New("grid").Parse(`<div class="cardcrafter" id="{{.ID}}" data-selector="{{.Selector}}" data-state="{{.State}}"{{if .Live}} data-live{{end}}>
{{- if eq .State "loading"}}
<div class="cardcrafter-loading" role="status">Loading...</div>
{{- else if eq .State "error"}}
<div class="cardcrafter-error" role="alert">
<h3>Unable to load data</h3>
<p>{{.ErrorMessage}}</p>
<button type="button" class="cardcrafter-retry" data-retry>Retry</button>
</div>
{{- else}}
<form class="cardcrafter-toolbar" method="get">
{{- if .Search}}
<input type="search" name="q" value="{{.Query}}" placeholder="Search..." aria-label="Search items" autocomplete="off">
{{- end}}
{{- if .Filters}}
<select name="sort" aria-label="Sort items">
{{- range .Sorts}}<option value="{{.Value}}"{{if .Selected}} selected{{end}}>{{.Label}}</option>{{end -}}
</select>
{{- end}}
{{- if .Pagination}}
<select name="per_page" aria-label="Items per page">
{{- range .PerPage}}<option value="{{.Value}}"{{if .Selected}} selected{{end}}>{{.Label}}</option>{{end -}}
</select>
{{- end}}
{{- if .Exports}}
<span class="cardcrafter-export">
{{- range .Exports}}<a href="{{.URL}}" data-export="{{.Format}}" download>{{.Label}}</a>{{end -}}
</span>
{{- end}}
<noscript><button type="submit">Apply</button></noscript>
</form>
{{- if .Cards}}
<div class="cardcrafter-grid cardcrafter-layout-{{.Layout}} cardcrafter-columns-{{.Columns}}">
{{- range .Cards}}
<article class="cardcrafter-card">
{{- if $.ShowImage}}
<div class="cardcrafter-card-image"><img src="{{if .Image}}{{.Image}}{{else}}{{.Placeholder}}{{end}}" data-fallback="{{.Placeholder}}" alt="{{.Title}}" loading="lazy" onerror="this.onerror=null;this.src=this.dataset.fallback"></div>
{{- end}}
<div class="cardcrafter-card-body">
<h3 class="cardcrafter-card-title">{{.Title}}</h3>
{{- if .Subtitle}}
<p class="cardcrafter-card-subtitle">{{.Subtitle}}</p>
{{- end}}
{{- if and $.ShowDescription .Description}}
<p class="cardcrafter-card-description">{{.Description}}</p>
{{- end}}
{{- if and $.ShowButtons .Link}}
<a class="cardcrafter-card-link" href="{{.Link}}" target="_blank" rel="noopener noreferrer">View Details</a>
{{- end}}
</div>
</article>
{{- end}}
</div>
{{- else}}
<div class="cardcrafter-empty">No items found.</div>
{{- end}}
{{- with .Pager}}
<nav class="cardcrafter-pagination" aria-label="Pagination">
<span class="cardcrafter-results">Showing {{.From}}-{{.To}} of {{.Total}} items</span>
{{- with .Prev}}<a href="{{.URL}}" data-page="{{.N}}" rel="prev">Previous</a>{{end}}
{{- range .Pages}}{{if .Current}}<span class="current" aria-current="page">{{.N}}</span>{{else}}<a href="{{.URL}}" data-page="{{.N}}">{{.N}}</a>{{end}}{{end}}
{{- with .Next}}<a href="{{.URL}}" data-page="{{.N}}" rel="next">Next</a>{{end}}
</nav>
{{- end}}
{{- end}}
</div>
`))

// Placeholder returns an SVG data URI showing title, used when an item has
// no image or its image fails to load.
func Placeholder(title string) template.URL {
	svg := `<svg xmlns="http://www.w3.org/2000/svg" width="400" height="300" viewBox="0 0 400 300">` +
		`<rect width="400" height="300" fill="#e5e7eb"/>` +
		`<text x="200" y="150" font-family="sans-serif" font-size="18" fill="#6b7280" text-anchor="middle" dominant-baseline="middle">` +
		html.EscapeString(truncateRunes(title, 40)) + `</text></svg>`
	return template.URL("data:image/svg+xml;base64," + base64.StdEncoding.EncodeToString([]byte(svg)))
}

func buildCard(f fields) card {
	c := card{
		Image:       f.Image,
		Title:       f.Title,
		Subtitle:    f.Subtitle,
		Description: truncateRunes(f.Description, DescriptionLimit),
		Link:        f.Link,
	}
	if c.Title == "" {
		c.Title = "Untitled"
	}
	c.Placeholder = Placeholder(c.Title)
	return c
}

func pageURL(query string, sort SortKey, perPage, page int) string {
	v := url.Values{}
	if query != "" {
		v.Set("q", query)
	}
	if sort != SortDefault {
		v.Set("sort", string(sort))
	}
	v.Set("per_page", strconv.Itoa(perPage))
	v.Set("page", strconv.Itoa(page))
	return "?" + v.Encode()
}

func executeTemplate(v *view) (string, error) {
	var buf bytes.Buffer
	if err := gridTemplate.Execute(&buf, v); err != nil {
		return "", err
	}
	return buf.String(), nil
}
