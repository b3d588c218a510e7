// Package indexfile reads rustdoc search index files into raw crate records.
//
// Accepted inputs:
//
//	const searchIndex = new Map(JSON.parse('[["crate",{...}],...]'));
//	var searchIndex = JSON.parse('{"crate":{...},...}');
//	[["crate",{...}],...]
//	{"crate":{...},...}
//
// Any of them may be zstd compressed. Crates keep the order they have in the
// file.
package indexfile

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"unicode/utf16"
	"unicode/utf8"

	"github.com/klauspost/compress/zstd"
	orderedmap "github.com/wk8/go-ordered-map/v2"
	"github.com/xeipuuv/gojsonschema"

	"github.com/jcdickinson/ferrisfind/internal/index"
)

//go:embed schema.json
var schemaJSON []byte

var zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}

var loadSchema = sync.OnceValues(func() (*gojsonschema.Schema, error) {
	return gojsonschema.NewSchema(gojsonschema.NewBytesLoader(schemaJSON))
})

// ValidationError lists every schema violation of one crate record.
type ValidationError struct {
	Crate      string
	Violations []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("crate %q: %s", e.Crate, strings.Join(e.Violations, "; "))
}

// Load reads and decodes the index file at path.
func Load(path string) ([]index.RawCrate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading index: %w", err)
	}
	crates, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return crates, nil
}

// Decode decodes index file contents. Every record is validated before any
// is decoded; all violations are reported together.
func Decode(data []byte) ([]index.RawCrate, error) {
	if bytes.HasPrefix(data, zstdMagic) {
		var err error
		if data, err = decompress(data); err != nil {
			return nil, err
		}
	}

	body, err := jsonBody(data)
	if err != nil {
		return nil, err
	}
	entries, err := splitEntries(body)
	if err != nil {
		return nil, err
	}

	schema, err := loadSchema()
	if err != nil {
		return nil, fmt.Errorf("compiling schema: %w", err)
	}
	var errs []error
	for _, e := range entries {
		if err := validate(schema, e); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	crates := make([]index.RawCrate, len(entries))
	for i, e := range entries {
		if err := json.Unmarshal(e.record, &crates[i]); err != nil {
			return nil, fmt.Errorf("crate %q: %w", e.name, err)
		}
		crates[i].Name = e.name
	}
	return crates, nil
}

func decompress(data []byte) ([]byte, error) {
	r, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("creating zstd reader: %w", err)
	}
	defer r.Close()
	out, err := r.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("decompressing index: %w", err)
	}
	return out, nil
}

// jsonBody returns the JSON document, unwrapping the JavaScript loader
// rustdoc emits around it.
func jsonBody(data []byte) ([]byte, error) {
	data = bytes.TrimSpace(bytes.TrimPrefix(data, []byte("\xef\xbb\xbf")))
	if len(data) == 0 {
		return nil, errors.New("empty index")
	}
	if data[0] == '[' || data[0] == '{' {
		return data, nil
	}

	const marker = "JSON.parse('"
	start := bytes.Index(data, []byte(marker))
	if start < 0 {
		return nil, errors.New("no JSON.parse literal found")
	}
	return unescapeJS(data[start+len(marker):])
}

// unescapeJS decodes a single-quoted JavaScript string literal body up to
// its closing quote.
func unescapeJS(src []byte) ([]byte, error) {
	out := make([]byte, 0, len(src))
	for i := 0; i < len(src); i++ {
		c := src[i]
		switch c {
		case '\'':
			return out, nil
		case '\\':
		default:
			out = append(out, c)
			continue
		}

		i++
		if i >= len(src) {
			break
		}
		switch e := src[i]; e {
		case '\n':
		case '\r':
			if i+1 < len(src) && src[i+1] == '\n' {
				i++
			}
		case 'n':
			out = append(out, '\n')
		case 'r':
			out = append(out, '\r')
		case 't':
			out = append(out, '\t')
		case 'b':
			out = append(out, '\b')
		case 'f':
			out = append(out, '\f')
		case 'v':
			out = append(out, '\v')
		case '0':
			out = append(out, 0)
		case 'x', 'u':
			n := 2
			if e == 'u' {
				n = 4
			}
			if i+n >= len(src) {
				return nil, fmt.Errorf("truncated \\%c escape", e)
			}
			r, err := hexRune(src[i+1 : i+1+n])
			if err != nil {
				return nil, fmt.Errorf("bad \\%c escape: %w", e, err)
			}
			i += n
			// A high surrogate followed by an escaped low surrogate is one
			// code point.
			if e == 'u' && utf16.IsSurrogate(r) && i+6 < len(src) && src[i+1] == '\\' && src[i+2] == 'u' {
				if lo, err := hexRune(src[i+3 : i+7]); err == nil {
					if pair := utf16.DecodeRune(r, lo); pair != utf8.RuneError {
						r = pair
						i += 6
					}
				}
			}
			out = utf8.AppendRune(out, r)
		default:
			out = append(out, e)
		}
	}
	return nil, errors.New("unterminated JSON.parse literal")
}

func hexRune(digits []byte) (rune, error) {
	v, err := strconv.ParseUint(string(digits), 16, 32)
	return rune(v), err
}

type entry struct {
	name   string
	record json.RawMessage
}

func splitEntries(body []byte) ([]entry, error) {
	if body[0] == '{' {
		om := orderedmap.New[string, json.RawMessage]()
		if err := json.Unmarshal(body, om); err != nil {
			return nil, fmt.Errorf("decoding index object: %w", err)
		}
		out := make([]entry, 0, om.Len())
		for pair := om.Oldest(); pair != nil; pair = pair.Next() {
			out = append(out, entry{name: pair.Key, record: pair.Value})
		}
		return out, nil
	}

	var pairs [][]json.RawMessage
	if err := json.Unmarshal(body, &pairs); err != nil {
		return nil, fmt.Errorf("decoding index array: %w", err)
	}
	out := make([]entry, 0, len(pairs))
	for i, p := range pairs {
		if len(p) != 2 {
			return nil, fmt.Errorf("entry %d: want [name, record], got %d elements", i, len(p))
		}
		var name string
		if err := json.Unmarshal(p[0], &name); err != nil {
			return nil, fmt.Errorf("entry %d: crate name: %w", i, err)
		}
		out = append(out, entry{name: name, record: p[1]})
	}
	return out, nil
}

func validate(schema *gojsonschema.Schema, e entry) error {
	result, err := schema.Validate(gojsonschema.NewBytesLoader(e.record))
	if err != nil {
		return fmt.Errorf("crate %q: %w", e.name, err)
	}
	if result.Valid() {
		return nil
	}
	verr := &ValidationError{Crate: e.name}
	for _, item := range result.Errors() {
		verr.Violations = append(verr.Violations, item.String())
	}
	return verr
}
