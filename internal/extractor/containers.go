package extractor

import (
	"bytes"
	"encoding/json"

	"lattice/internal/jsonflat"
)

// arrayOfObjectContainers returns the dot-paths of every array whose
// elements are all JSON objects, so Extract can emit the synthetic
// "array<object>" container element spec.md §4.4 requires alongside the
// leaf elements the flattener produces. Key order doesn't matter here (the
// elements are appended after the sorted leaf elements, in an arbitrary but
// deterministic order), so decoding into map[string]any is fine.
func arrayOfObjectContainers(raw []byte) []string {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil
	}

	var out []string
	collect(v, "", &out)
	return out
}

func collect(v any, path string, out *[]string) {
	switch t := v.(type) {
	case map[string]any:
		for key, child := range t {
			childPath := key
			if path != "" {
				childPath = path + "." + key
			}
			collect(child, childPath, out)
		}
	case []any:
		// A top-level array sits at the synthetic root key, the same path the
		// flattener gives it.
		if path == "" {
			path = jsonflat.RootKey
		}
		if isArrayOfObjects(t) {
			*out = append(*out, path)
		}
		for _, item := range t {
			collect(item, path, out)
		}
	}
}

func isArrayOfObjects(items []any) bool {
	if len(items) == 0 {
		return false
	}
	for _, item := range items {
		if _, ok := item.(map[string]any); !ok {
			return false
		}
	}
	return true
}
