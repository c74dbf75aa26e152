// Package ids generates prefixed, k-sortable unique identifiers for every
// entity kind in the data model (collections, schemas, documents, ...).
package ids

import (
	"strings"

	"github.com/google/uuid"
)

// Prefix tags an identifier with the entity kind it names, e.g. "col" for
// collections or "doc" for documents. The generated id is "<prefix>_<token>".
type Prefix string

const (
	PrefixCollection       Prefix = "col"
	PrefixDocument         Prefix = "doc"
	PrefixSchema           Prefix = "sch"
	PrefixSchemaElement    Prefix = "sel"
	PrefixIndexTableMap    Prefix = "itm"
	PrefixFieldConstraint  Prefix = "fco"
	PrefixIndexedField     Prefix = "ixf"
	PrefixLabel            Prefix = "lbl"
	PrefixTag              Prefix = "tag"
	PrefixIndexedValue     Prefix = "val"
)

// New returns a new identifier for the given prefix. The token half is a
// UUIDv7: time-ordered, so ids generated on one host sort lexicographically
// in approximately the order they were created, matching the "k-sortable"
// contract of spec §4.1 without requiring a dedicated ULID/KSUID library.
func New(prefix Prefix) string {
	token, err := uuid.NewV7()
	if err != nil {
		// uuid.NewV7 only fails if the system's random source is broken;
		// fall back to a random v4 rather than panicking on id generation.
		token = uuid.New()
	}
	return string(prefix) + "_" + strings.ReplaceAll(token.String(), "-", "")
}

// HasPrefix reports whether id was minted with the given prefix.
func HasPrefix(id string, prefix Prefix) bool {
	return strings.HasPrefix(id, string(prefix)+"_")
}
