// Package hashutil implements the two fingerprint functions the core relies
// on: the schema fingerprint that drives schema dedup (§4.2) and the
// index-table name derivation that maps a field path to its physical table.
package hashutil

import (
	"crypto/md5"  //nolint:gosec // used only as a stable, non-adversarial table-name derivation, not for security.
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"

	"lattice/internal/core"
)

// SchemaElementKey is the minimal shape hashutil needs from a schema element
// to compute a fingerprint: just the path and datatype, per §4.2 ("ignores
// per-element nullable divergence" — see DESIGN.md).
type SchemaElementKey struct {
	Key      string
	DataType core.DataType
}

// SchemaFingerprint canonicalises elements by sorting (key asc, datatype asc),
// concatenates "<key>:<datatype>;" per element, and returns the lowercase hex
// SHA-256 digest. An empty element list hashes the empty string, matching the
// "empty fingerprint string SHA-256" boundary behaviour spec.md §8 requires.
func SchemaFingerprint(elements []SchemaElementKey) string {
	sorted := make([]SchemaElementKey, len(elements))
	copy(sorted, elements)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Key != sorted[j].Key {
			return sorted[i].Key < sorted[j].Key
		}
		return sorted[i].DataType < sorted[j].DataType
	})

	h := sha256.New()
	for _, e := range sorted {
		fmt.Fprintf(h, "%s:%s;", e.Key, e.DataType)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// IndexTableName derives the physical table name for a field path:
// "idx_" + lowercase-hex(md5(path)). Any collision across distinct paths is a
// bug the repository's unique index on indextablemappings.key is meant to
// catch, never something this function tries to resolve itself.
func IndexTableName(path string) string {
	sum := md5.Sum([]byte(path)) //nolint:gosec // table-name derivation only, not a security boundary.
	return "idx_" + hex.EncodeToString(sum[:])
}
