package grid

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
)

// object is a decoded JSON object that remembers its key order.
type object struct {
	keys []string
	vals map[string]any
}

// wrapperKeys are probed in order for the item sequence of a wrapper object.
var wrapperKeys = []string{"items", "data", "results"}

// record is one item plus what the engine derives from it.
type record struct {
	item Item
	keys []string // field order as first seen in the payload
	text string   // memoized searchable text
	done bool     // text computed
}

// Normalize derives the item sequence from a decoded or raw JSON payload:
// a sequence is used as-is, a wrapper object yields its first items, data
// or results sequence, and any other object becomes a single item.
func Normalize(payload any) ([]Item, error) {
	recs, err := normalize(payload)
	if err != nil {
		return nil, err
	}
	items := make([]Item, len(recs))
	for i, r := range recs {
		items[i] = r.item
	}
	return items, nil
}

func normalize(payload any) ([]*record, error) {
	switch p := payload.(type) {
	case json.RawMessage:
		return normalizeRaw(p)
	case []byte:
		return normalizeRaw(p)
	}

	switch p := payload.(type) {
	case []any:
		return toRecords(p), nil
	case []Item:
		recs := make([]*record, len(p))
		for i, it := range p {
			recs[i] = &record{item: it, keys: sortedKeys(it)}
		}
		return recs, nil
	case *object:
		for _, k := range wrapperKeys {
			if seq, ok := p.vals[k].([]any); ok {
				return toRecords(seq), nil
			}
		}
		return toRecords([]any{p}), nil
	case map[string]any:
		for _, k := range wrapperKeys {
			if seq, ok := p[k].([]any); ok {
				return toRecords(seq), nil
			}
		}
		return toRecords([]any{p}), nil
	case nil:
		return nil, fmt.Errorf("%w: empty payload", ErrParse)
	default:
		return nil, fmt.Errorf("%w: payload is %T, want array or object", ErrParse, payload)
	}
}

func normalizeRaw(data []byte) ([]*record, error) {
	v, err := decodeOrdered(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}
	return normalize(v)
}

func toRecords(seq []any) []*record {
	recs := make([]*record, 0, len(seq))
	for _, el := range seq {
		switch t := el.(type) {
		case *object:
			recs = append(recs, &record{item: plain(t).(map[string]any), keys: t.keys})
		case map[string]any:
			recs = append(recs, &record{item: t, keys: sortedKeys(t)})
		default:
			recs = append(recs, &record{item: Item{"value": plain(t)}, keys: []string{"value"}})
		}
	}
	return recs
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// plain converts *object trees into map[string]any trees.
func plain(v any) any {
	switch t := v.(type) {
	case *object:
		m := make(map[string]any, len(t.vals))
		for k, val := range t.vals {
			m[k] = plain(val)
		}
		return m
	case []any:
		out := make([]any, len(t))
		for i, el := range t {
			out[i] = plain(el)
		}
		return out
	default:
		return v
	}
}

// decodeOrdered decodes one JSON document. Objects become *object, numbers
// json.Number. A leading UTF-8 BOM is ignored.
func decodeOrdered(data []byte) (any, error) {
	data = bytes.TrimPrefix(data, []byte{0xEF, 0xBB, 0xBF})
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	v, err := decodeValue(dec)
	if err != nil {
		return nil, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errors.New("trailing data after JSON document")
	}
	return v, nil
}

func decodeValue(dec *json.Decoder) (any, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			obj := &object{vals: make(map[string]any)}
			for dec.More() {
				kt, err := dec.Token()
				if err != nil {
					return nil, err
				}
				key, ok := kt.(string)
				if !ok {
					return nil, fmt.Errorf("object key is %T", kt)
				}
				val, err := decodeValue(dec)
				if err != nil {
					return nil, err
				}
				if _, dup := obj.vals[key]; !dup {
					obj.keys = append(obj.keys, key)
				}
				obj.vals[key] = val
			}
			if _, err := dec.Token(); err != nil {
				return nil, err
			}
			return obj, nil
		case '[':
			arr := []any{}
			for dec.More() {
				val, err := decodeValue(dec)
				if err != nil {
					return nil, err
				}
				arr = append(arr, val)
			}
			if _, err := dec.Token(); err != nil {
				return nil, err
			}
			return arr, nil
		}
		return nil, fmt.Errorf("unexpected delimiter %q", t)
	default:
		return t, nil
	}
}
