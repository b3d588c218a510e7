package indexfile

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jcdickinson/ferrisfind/internal/index"
	"github.com/jcdickinson/ferrisfind/internal/itemtype"
)

func crateNames(crates []index.RawCrate) []string {
	out := make([]string, len(crates))
	for i, c := range crates {
		out[i] = c.Name
	}
	return out
}

func TestLoad_MapWrapper(t *testing.T) {
	t.Parallel()

	crates, err := Load(filepath.Join("testdata", "search-index.js"))
	require.NoError(t, err)
	require.Equal(t, []string{"custom_docbox", "doc_item", "experimental"}, crateNames(crates))

	docItem := crates[1]
	assert.Equal(t, "Attributes for item-level documentation customization.", docItem.Doc)
	assert.Equal(t, []string{"docbox", "semi_transparent", "short_docbox", "since"}, docItem.Names)
	assert.Equal(t, "Adds a docbox to the item’s item-info.", docItem.Descs[0])
	for _, k := range docItem.Kinds {
		assert.Equal(t, itemtype.Attr, k)
	}

	fn := crates[0]
	require.Len(t, fn.Types, 1)
	require.NotNil(t, fn.Types[0])
	assert.Equal(t, "() -> tuple", fn.Types[0].String())
}

func TestDecode_VarWrapper(t *testing.T) {
	t.Parallel()

	src := `var searchIndex = JSON.parse('{\
"zeta":{"doc":"it\'s here","t":[5],"n":["run"],"q":["zeta"],"d":["Runs \\"it\\"."],"i":[0],"f":[null],"p":[]},\
"alpha":{"doc":"","t":[3],"n":["Thing"],"q":["alpha"],"d":[""],"i":[0],"f":[null],"p":[]}\
}');
initSearch(searchIndex);`

	crates, err := Decode([]byte(src))
	require.NoError(t, err)
	require.Equal(t, []string{"zeta", "alpha"}, crateNames(crates), "object order is kept")
	assert.Equal(t, "it's here", crates[0].Doc)
	assert.Equal(t, `Runs "it".`, crates[0].Descs[0])
	assert.Equal(t, []itemtype.ItemType{itemtype.Fn}, crates[0].Kinds)
	assert.Equal(t, []itemtype.ItemType{itemtype.Struct}, crates[1].Kinds)
}

func TestDecode_PlainJSON(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		src  string
		want []string
	}{
		{
			name: "pairs",
			src:  `[["b",{"t":"H","n":["f"]}],["a",{"t":"H","n":["g"]}]]`,
			want: []string{"b", "a"},
		},
		{
			name: "object",
			src:  `{"b":{"t":"H","n":["f"]},"a":{"t":"H","n":["g"]}}`,
			want: []string{"b", "a"},
		},
		{
			name: "empty",
			src:  `[]`,
			want: []string{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			crates, err := Decode([]byte(tt.src))
			require.NoError(t, err)
			assert.Equal(t, tt.want, crateNames(crates))
		})
	}
}

func TestLoad_Zstd(t *testing.T) {
	t.Parallel()

	raw, err := os.ReadFile(filepath.Join("testdata", "search-index.js"))
	require.NoError(t, err)
	enc, err := zstd.NewWriter(nil)
	require.NoError(t, err)
	compressed := enc.EncodeAll(raw, nil)
	require.NoError(t, enc.Close())

	path := filepath.Join(t.TempDir(), "search-index.js.zst")
	require.NoError(t, os.WriteFile(path, compressed, 0o644))

	crates, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"custom_docbox", "doc_item", "experimental"}, crateNames(crates))
}

func TestDecode_SchemaViolations(t *testing.T) {
	t.Parallel()

	src := `[
		["ok",{"t":"H","n":["f"]}],
		["bad_kinds",{"t":{"x":1},"n":["f"]}],
		["bad_names",{"t":"H","n":[1],"i":[-1]}]
	]`
	_, err := Decode([]byte(src))
	require.Error(t, err)

	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "bad_kinds", verr.Crate, "first failing crate")
	assert.Contains(t, err.Error(), `crate "bad_kinds"`)
	assert.Contains(t, err.Error(), `crate "bad_names"`)
	assert.NotContains(t, err.Error(), `crate "ok"`)
}

func TestDecode_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		src     string
		wantErr string
	}{
		{"empty", "  \n", "empty index"},
		{"no_literal", "window.searchIndex = 1;", "no JSON.parse literal"},
		{"unterminated", "JSON.parse('[[\"a\",{}]]", "unterminated"},
		{"bad_pair", `[["a"]]`, "want [name, record]"},
		{"bad_name", `[[1,{"t":"H","n":["f"]}]]`, "crate name"},
		{"missing_names", `[["a",{"t":"H"}]]`, `crate "a"`},
		{"length_mismatch", `[["a",{"t":"HH","n":["f"]}]]`, "2 kinds"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := Decode([]byte(tt.src))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestUnescapeJS(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", `abc'rest`, "abc"},
		{"continuation", "a\\\nb'", "ab"},
		{"crlf_continuation", "a\\\r\nb'", "ab"},
		{"quotes", `\'\"'`, `'"`},
		{"backslash", `\\n'`, `\n`},
		{"newline", `\n'`, "\n"},
		{"hex", `\x41'`, "A"},
		{"unicode", `\u00e9'`, "é"},
		{"surrogate_pair", `\ud83d\ude00'`, "😀"},
		{"lone_surrogate", `\ud83dx'`, "\uFFFDx"},
		{"unknown", `\q'`, "q"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := unescapeJS([]byte(tt.in))
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(got))
		})
	}
}
