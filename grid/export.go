package grid

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Format is an export file format.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
	FormatPDF  Format = "pdf"
)

// ExportVersion is written into JSON export envelopes.
const ExportVersion = "1.0"

// ParseFormat accepts csv, json and pdf.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case FormatCSV, FormatJSON, FormatPDF:
		return f, nil
	}
	return "", fmt.Errorf("%w: unsupported format %q", ErrExport, s)
}

// MIME returns the content type of f.
func (f Format) MIME() string {
	switch f {
	case FormatCSV:
		return "text/csv; charset=utf-8"
	case FormatJSON:
		return "application/json"
	case FormatPDF:
		return "application/pdf"
	}
	return "application/octet-stream"
}

// ExportFile is a produced export.
type ExportFile struct {
	Filename string `json:"filename"`
	MIME     string `json:"mime"`
	Data     []byte `json:"data"`
}

// isoTimestamp formats t like an ECMAScript Date ISO string.
func isoTimestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z")
}

// ExportFilename returns cardcrafter-export-<timestamp>.<ext>, with ':'
// and '.' in the timestamp replaced by '-'.
func ExportFilename(t time.Time, f Format) string {
	ts := strings.NewReplacer(":", "-", ".", "-").Replace(isoTimestamp(t))
	return "cardcrafter-export-" + ts + "." + string(f)
}

// exportColumns is the union of non-underscore keys in discovery order.
func exportColumns(recs []*record) []string {
	seen := make(map[string]bool)
	var cols []string
	for _, r := range recs {
		for _, k := range r.keys {
			if strings.HasPrefix(k, "_") || seen[k] {
				continue
			}
			seen[k] = true
			cols = append(cols, k)
		}
	}
	return cols
}

func encodeCSV(recs []*record) ([]byte, error) {
	cols := exportColumns(recs)
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(cols); err != nil {
		return nil, err
	}
	row := make([]string, len(cols))
	for _, r := range recs {
		for i, c := range cols {
			row[i] = Stringify(r.item[c])
		}
		if err := w.Write(row); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// orderedItem marshals an item with its keys in discovery order.
type orderedItem struct{ r *record }

func (o orderedItem) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	n := 0
	for _, k := range o.r.keys {
		v, ok := o.r.item[k]
		if !ok {
			continue
		}
		if n > 0 {
			buf.WriteByte(',')
		}
		n++
		if err := appendJSON(&buf, k); err != nil {
			return nil, err
		}
		buf.WriteByte(':')
		if err := appendJSON(&buf, v); err != nil {
			return nil, err
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func appendJSON(buf *bytes.Buffer, v any) error {
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return err
	}
	buf.Truncate(buf.Len() - 1) // Encode appends '\n'
	return nil
}

type jsonExport struct {
	ExportedAt string        `json:"exportedAt"`
	TotalItems int           `json:"totalItems"`
	Source     string        `json:"source"`
	Layout     string        `json:"layout"`
	Version    string        `json:"version"`
	Items      []orderedItem `json:"items"`
}

func encodeJSON(recs []*record, cfg *Config, now time.Time) ([]byte, error) {
	env := jsonExport{
		ExportedAt: isoTimestamp(now),
		TotalItems: len(recs),
		Source:     cfg.Source,
		Layout:     cfg.Layout,
		Version:    ExportVersion,
		Items:      make([]orderedItem, len(recs)),
	}
	if env.Source == "" {
		env.Source = "inline"
	}
	for i, r := range recs {
		env.Items[i] = orderedItem{r}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(env); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
