package grid

import (
	"encoding/json"
	"html"
	"strconv"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// Item is one record. It has no fixed schema.
type Item = map[string]any

// Resolve walks a dotted path ("a.b.0.c") through nested objects and
// arrays. Numeric segments index arrays. The second result is false when
// a segment is absent or the value cannot be traversed.
func Resolve(v any, path string) (any, bool) {
	if path == "" {
		return nil, false
	}
	cur := v
	for _, seg := range strings.Split(path, ".") {
		switch node := cur.(type) {
		case map[string]any:
			next, ok := node[seg]
			if !ok {
				return nil, false
			}
			cur = next
		case *object:
			next, ok := node.vals[seg]
			if !ok {
				return nil, false
			}
			cur = next
		case []any:
			idx, err := strconv.Atoi(seg)
			if err != nil || idx < 0 || idx >= len(node) {
				return nil, false
			}
			cur = node[idx]
		default:
			return nil, false
		}
	}
	if cur == nil {
		return nil, false
	}
	return cur, true
}

// Stringify coerces a value to its display string. Objects and arrays
// render as compact JSON; null renders empty.
func Stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case bool:
		return strconv.FormatBool(t)
	default:
		b, err := json.Marshal(plain(v))
		if err != nil {
			return ""
		}
		return string(b)
	}
}

var textPolicy = bluemonday.StrictPolicy()

// plainText strips markup from CMS-authored fields and returns unescaped
// text, ready for html/template to escape once.
func plainText(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return strings.TrimSpace(s)
	}
	return strings.TrimSpace(html.UnescapeString(textPolicy.Sanitize(s)))
}

// fields are the resolved display values of one item.
type fields struct {
	Image       string
	Title       string
	Subtitle    string
	Description string
	Link        string
}

func (f FieldMap) text(it Item, path string) string {
	v, ok := Resolve(it, path)
	if !ok {
		return ""
	}
	return plainText(Stringify(v))
}

func (f FieldMap) resolve(it Item) fields {
	return fields{
		Image:       strings.TrimSpace(f.rawString(it, f.Image)),
		Title:       f.text(it, f.Title),
		Subtitle:    f.text(it, f.Subtitle),
		Description: f.text(it, f.Description),
		Link:        strings.TrimSpace(f.rawString(it, f.Link)),
	}
}

func (f FieldMap) rawString(it Item, path string) string {
	v, ok := Resolve(it, path)
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}
