package grid

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize_Shapes(t *testing.T) {
	cases := []struct {
		name    string
		payload string
		want    int
	}{
		{"sequence", `[{"title":"a"},{"title":"b"}]`, 2},
		{"items wrapper", `{"items":[{"title":"a"}],"total":1}`, 1},
		{"data wrapper", `{"meta":{},"data":[{"title":"a"},{"title":"b"},{"title":"c"}]}`, 3},
		{"results wrapper", `{"results":[]}`, 0},
		{"items wins over data", `{"data":[{}],"items":[{},{}]}`, 2},
		{"non-sequence wrapper key", `{"items":"nope","title":"single"}`, 1},
		{"single object", `{"title":"solo"}`, 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			items, err := Normalize(json.RawMessage(tc.payload))
			require.NoError(t, err)
			assert.Len(t, items, tc.want)
		})
	}
}

func TestNormalize_DecodedValues(t *testing.T) {
	items, err := Normalize(map[string]any{"results": []any{map[string]any{"title": "x"}}})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "x", items[0]["title"])
}

func TestNormalize_ScalarElementsKept(t *testing.T) {
	items, err := Normalize(json.RawMessage(`["a", 2]`))
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "a", items[0]["value"])
}

func TestNormalize_Rejects(t *testing.T) {
	for _, payload := range []string{`null`, `42`, `"text"`, `{"a":`, `[1] [2]`, ``} {
		_, err := Normalize(json.RawMessage(payload))
		assert.ErrorIs(t, err, ErrParse, "payload %q", payload)
	}
	_, err := Normalize(nil)
	assert.ErrorIs(t, err, ErrParse)
}

func TestNormalize_KeepsKeyOrder(t *testing.T) {
	recs, err := normalize(json.RawMessage("\xEF\xBB\xBF" + `[{"zeta":1,"alpha":2,"mid":{"b":1,"a":2}}]`))
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, []string{"zeta", "alpha", "mid"}, recs[0].keys)
	// Nested objects are plain maps.
	_, ok := recs[0].item["mid"].(map[string]any)
	assert.True(t, ok)
}

func TestResolve(t *testing.T) {
	items, err := Normalize(json.RawMessage(`[{
		"name": {"first": "Ada", "last": "Lovelace"},
		"photos": [{"url": "https://img.example.com/a.png"}],
		"age": 36,
		"empty": null
	}]`))
	require.NoError(t, err)
	it := items[0]

	v, ok := Resolve(it, "name.first")
	assert.True(t, ok)
	assert.Equal(t, "Ada", v)

	v, ok = Resolve(it, "photos.0.url")
	assert.True(t, ok)
	assert.Equal(t, "https://img.example.com/a.png", v)

	v, ok = Resolve(it, "age")
	assert.True(t, ok)
	assert.Equal(t, "36", Stringify(v))

	for _, path := range []string{"name.middle", "age.value", "photos.3.url", "photos.x", "empty", "", "missing.deep.path"} {
		_, ok := Resolve(it, path)
		assert.False(t, ok, "path %q", path)
	}
}

func TestPlainText_StripsMarkup(t *testing.T) {
	assert.Equal(t, "Hello world & co", plainText("<p>Hello <b>world</b> &amp; co</p>"))
	assert.Equal(t, "", plainText(`<script>alert("x")</script>`))
	assert.Equal(t, "plain", plainText("  plain  "))
}
