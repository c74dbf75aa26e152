// Package jsonflat converts an arbitrary JSON document into the ordered
// sequence of leaf records spec.md §4.3 describes: one record per primitive
// value, keyed by dot-path, with the array index preserved when the value
// came from inside an array.
package jsonflat

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"

	"lattice/internal/core"
)

// RootKey is the synthetic path used when the document's top level is not a
// JSON object.
const RootKey = "$"

// Record is one flattened leaf: a dot-path, its datatype, its position
// within the nearest enclosing array (nil if none), and its lexical string
// value (nil for JSON null).
type Record struct {
	Path     string
	Position *int
	DataType core.DataType
	Value    *string
}

// Flatten parses raw JSON bytes and returns its leaf records in depth-first,
// key-insertion preorder. Object key order is preserved using
// json.Decoder's token stream rather than unmarshalling into map[string]any,
// which would randomize key order and break the "preserve original casing"
// / insertion-order guarantee spec.md §4.3 requires.
func Flatten(raw []byte) ([]Record, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	val, err := decodeValue(dec)
	if err != nil {
		return nil, fmt.Errorf("jsonflat: %w", err)
	}

	var out []Record
	walk(val, "", nil, &out)
	return out, nil
}

// value is a parsed JSON value that preserves object key order, unlike the
// encoding/json default of map[string]any.
type value struct {
	kind    core.DataType // TypeObject, TypeArray, or a primitive tag.
	keys    []string      // object only, in source order.
	fields  map[string]value
	items   []value // array only.
	literal *string // primitive only; nil means JSON null.
	litType core.DataType
}

func decodeValue(dec *json.Decoder) (value, error) {
	tok, err := dec.Token()
	if err != nil {
		return value{}, err
	}
	return decodeValueFromToken(dec, tok)
}

func decodeValueFromToken(dec *json.Decoder, tok json.Token) (value, error) {
	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			return decodeObject(dec)
		case '[':
			return decodeArray(dec)
		default:
			return value{}, fmt.Errorf("unexpected delimiter %q", t)
		}
	case json.Number:
		s := t.String()
		dt := core.TypeNumber
		if isIntegerLiteral(s) {
			dt = core.TypeInteger
		}
		return value{kind: dt, literal: &s, litType: dt}, nil
	case string:
		s := t
		return value{kind: core.TypeString, literal: &s, litType: core.TypeString}, nil
	case bool:
		s := "false"
		if t {
			s = "true"
		}
		return value{kind: core.TypeBoolean, literal: &s, litType: core.TypeBoolean}, nil
	case nil:
		return value{kind: core.TypeNull, literal: nil, litType: core.TypeNull}, nil
	default:
		return value{}, fmt.Errorf("unsupported token %T", tok)
	}
}

func decodeObject(dec *json.Decoder) (value, error) {
	v := value{kind: core.TypeObject, fields: make(map[string]value)}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return value{}, err
		}
		key, ok := keyTok.(string)
		if !ok {
			return value{}, fmt.Errorf("expected object key, got %v", keyTok)
		}
		child, err := decodeValue(dec)
		if err != nil {
			return value{}, err
		}
		v.keys = append(v.keys, key)
		v.fields[key] = child
	}
	// Consume the closing '}'.
	if _, err := dec.Token(); err != nil {
		return value{}, err
	}
	return v, nil
}

func decodeArray(dec *json.Decoder) (value, error) {
	v := value{kind: core.TypeArray}
	for dec.More() {
		child, err := decodeValue(dec)
		if err != nil {
			return value{}, err
		}
		v.items = append(v.items, child)
	}
	if _, err := dec.Token(); err != nil {
		return value{}, err
	}
	return v, nil
}

func isIntegerLiteral(s string) bool {
	for _, r := range s {
		if r == '.' || r == 'e' || r == 'E' {
			return false
		}
	}
	return true
}

// walk performs the depth-first traversal described in spec.md §4.3: object
// keys are prepended as "<name>.", array elements pass their index down as
// position (innermost array wins), and primitives emit exactly one record.
func walk(v value, path string, position *int, out *[]Record) {
	switch v.kind {
	case core.TypeObject:
		for _, key := range v.keys {
			childPath := key
			if path != "" {
				childPath = path + "." + key
			}
			walk(v.fields[key], childPath, position, out)
		}
	case core.TypeArray:
		for i, item := range v.items {
			idx := i
			walk(item, effectivePath(path), &idx, out)
		}
	default:
		*out = append(*out, Record{
			Path:     effectivePath(path),
			Position: position,
			DataType: v.litType,
			Value:    v.literal,
		})
	}
}

// effectivePath substitutes the synthetic root key when the path is still
// empty (i.e. we are at the document's top level and it was not an object).
func effectivePath(path string) string {
	if path == "" {
		return RootKey
	}
	return path
}

// DistinctPaths returns the sorted, de-duplicated set of paths present in
// records — the set the ingestion pipeline needs to provision index tables
// for (spec.md §4.8 step 6).
func DistinctPaths(records []Record) []string {
	seen := make(map[string]bool, len(records))
	var out []string
	for _, r := range records {
		if !seen[r.Path] {
			seen[r.Path] = true
			out = append(out, r.Path)
		}
	}
	sort.Strings(out)
	return out
}
