// Package extractor derives a canonical, ordered schema element list from a
// JSON document and computes its fingerprint (spec.md §4.4).
package extractor

import (
	"sort"

	"lattice/internal/core"
	"lattice/internal/hashutil"
	"lattice/internal/jsonflat"
)

// Element is an extracted schema element, not yet persisted (no id or
// schema-id assigned).
type Element struct {
	Key      string
	DataType core.DataType
	Nullable bool
}

// Result is the output of Extract: the ordered element list plus its
// fingerprint.
type Result struct {
	Elements    []Element
	Fingerprint string
}

// Extract parses raw JSON, flattens it, and derives the schema element list.
// Only leaf paths become elements, except that every path whose value is an
// array all of whose elements are objects additionally gets an
// "array<object>" container element for schema fidelity — without its own
// index table (spec.md §9, preserved asymmetry). Nullability is true iff at
// least one observed value at that path was null.
func Extract(raw []byte) (Result, error) {
	records, err := jsonflat.Flatten(raw)
	if err != nil {
		return Result{}, err
	}

	type agg struct {
		dataType core.DataType
		nullable bool
		order    int
	}
	byPath := make(map[string]*agg)
	var order int

	for _, r := range records {
		a, ok := byPath[r.Path]
		if !ok {
			a = &agg{dataType: r.DataType, order: order}
			order++
			byPath[r.Path] = a
		}
		if r.DataType == core.TypeNull {
			a.nullable = true
		} else {
			// First non-null observation at a path fixes its datatype; later
			// observations (e.g. other elements of the same array) are
			// expected to agree, so we don't need to reconcile divergence
			// here — the validator is where type conflicts get reported.
			if a.dataType == core.TypeNull {
				a.dataType = r.DataType
			}
		}
	}

	containerPaths := arrayOfObjectContainers(raw)
	sort.Strings(containerPaths)

	elements := make([]Element, 0, len(byPath)+len(containerPaths))
	for path, a := range byPath {
		elements = append(elements, Element{Key: path, DataType: a.dataType, Nullable: a.nullable})
	}
	sort.Slice(elements, func(i, j int) bool {
		return byPath[elements[i].Key].order < byPath[elements[j].Key].order
	})

	for _, cp := range containerPaths {
		elements = append(elements, Element{Key: cp, DataType: core.ArrayOf(core.TypeObject)})
	}

	keys := make([]hashutil.SchemaElementKey, 0, len(elements))
	for _, e := range elements {
		keys = append(keys, hashutil.SchemaElementKey{Key: e.Key, DataType: e.DataType})
	}

	return Result{
		Elements:    elements,
		Fingerprint: hashutil.SchemaFingerprint(keys),
	}, nil
}
