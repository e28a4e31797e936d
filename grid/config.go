package grid

import (
	"encoding/json"
	"fmt"
)

// Layouts.
const (
	LayoutGrid    = "grid"
	LayoutMasonry = "masonry"
	LayoutList    = "list"
)

// PerPageOptions are the page sizes offered in the toolbar.
var PerPageOptions = []int{6, 12, 24, 50, 100}

// FieldMap maps card roles to dotted paths into an item.
type FieldMap struct {
	Image       string `json:"image,omitempty" yaml:"image"`
	Title       string `json:"title,omitempty" yaml:"title"`
	Subtitle    string `json:"subtitle,omitempty" yaml:"subtitle"`
	Description string `json:"description,omitempty" yaml:"description"`
	Link        string `json:"link,omitempty" yaml:"link"`
}

// WithDefaults fills unset roles with the identically named key.
func (f FieldMap) WithDefaults() FieldMap {
	if f.Image == "" {
		f.Image = "image"
	}
	if f.Title == "" {
		f.Title = "title"
	}
	if f.Subtitle == "" {
		f.Subtitle = "subtitle"
	}
	if f.Description == "" {
		f.Description = "description"
	}
	if f.Link == "" {
		f.Link = "link"
	}
	return f
}

// Config is the configuration of one grid instance.
type Config struct {
	Selector string `json:"selector" yaml:"selector"`
	// Source names a fetchable endpoint. Ignored when Data is set.
	Source string `json:"source,omitempty" yaml:"source"`
	// Data is an inline payload (sequence, wrapper object, or single
	// object). Raw JSON bytes keep their field order.
	Data            any      `json:"data,omitempty" yaml:"data"`
	Layout          string   `json:"layout" yaml:"layout"`
	Columns         int      `json:"columns" yaml:"columns"`
	Search          bool     `json:"search" yaml:"search"`
	Filters         bool     `json:"filters" yaml:"filters"`
	Pagination      bool     `json:"pagination" yaml:"pagination"`
	ShowDescription bool     `json:"showDescription" yaml:"showDescription"`
	ShowButtons     bool     `json:"showButtons" yaml:"showButtons"`
	ShowImage       bool     `json:"showImage" yaml:"showImage"`
	EnableExport    bool     `json:"enableExport" yaml:"enableExport"`
	ItemsPerPage    int      `json:"itemsPerPage" yaml:"itemsPerPage"`
	Fields          FieldMap `json:"fields" yaml:"fields"`
	WPDataMode      bool     `json:"wpDataMode" yaml:"wpDataMode"`
}

// DefaultConfig returns the configuration applied before caller overrides.
func DefaultConfig() Config {
	return Config{
		Layout:          LayoutGrid,
		Columns:         3,
		Search:          true,
		Filters:         true,
		Pagination:      true,
		ShowDescription: true,
		ShowButtons:     true,
		ShowImage:       true,
		EnableExport:    true,
		ItemsPerPage:    12,
	}
}

// ParseConfig decodes a JSON configuration over DefaultConfig. An inline
// data payload is kept as raw JSON so item field order survives.
func ParseConfig(data []byte) (Config, error) {
	cfg := DefaultConfig()
	var raw struct {
		Config
		Data json.RawMessage `json:"data,omitempty"`
	}
	raw.Config = cfg
	if err := json.Unmarshal(data, &raw); err != nil {
		return Config{}, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}
	cfg = raw.Config
	if len(raw.Data) > 0 && string(raw.Data) != "null" {
		cfg.Data = raw.Data
	}
	return cfg, nil
}

// Validate checks the configuration and applies defaults in place.
func (c *Config) Validate() error {
	if c.Selector == "" {
		return fmt.Errorf("%w: selector is required", ErrConfiguration)
	}
	if c.Data == nil && c.Source == "" {
		return fmt.Errorf("%w: a data source or inline data is required", ErrConfiguration)
	}
	switch c.Layout {
	case "":
		c.Layout = LayoutGrid
	case LayoutGrid, LayoutMasonry, LayoutList:
	default:
		return fmt.Errorf("%w: unknown layout %q", ErrConfiguration, c.Layout)
	}
	if c.Columns <= 0 {
		c.Columns = 3
	}
	c.Columns = min(max(c.Columns, 1), 6)
	if c.ItemsPerPage == 0 {
		c.ItemsPerPage = 12
	}
	if c.ItemsPerPage < 1 {
		return fmt.Errorf("%w: itemsPerPage must be at least 1", ErrConfiguration)
	}
	c.Fields = c.Fields.WithDefaults()
	return nil
}
