// Package core holds the data model shared by every other lattice package:
// collections, schemas, documents, index-table mappings, and the value rows
// an index table stores, plus the small enums (datatype tags, enforcement
// and indexing modes) that parameterise them. Nothing in this package talks
// to a database or the filesystem — see internal/repository for that.
package core

import "time"

// DataType is the closed set of datatype tags spec.md §3 defines. Array
// element types nest recursively as "array<T>" (see ArrayOf).
type DataType string

const (
	TypeString  DataType = "string"
	TypeInteger DataType = "integer"
	TypeNumber  DataType = "number"
	TypeBoolean DataType = "boolean"
	TypeNull    DataType = "null"
	TypeObject  DataType = "object"
	TypeArray   DataType = "array"
)

// ArrayOf renders the recursive "array<T>" datatype tag for an array whose
// elements are all of type elem.
func ArrayOf(elem DataType) DataType {
	return DataType("array<" + string(elem) + ">")
}

// EnforcementMode controls whether and how a collection validates documents
// on ingest (spec.md §4.5).
type EnforcementMode string

const (
	EnforcementNone     EnforcementMode = "none"
	EnforcementStrict   EnforcementMode = "strict"
	EnforcementFlexible EnforcementMode = "flexible"
	EnforcementPartial  EnforcementMode = "partial"
)

// IndexingMode controls which flattened fields of a document get an index
// table row on ingest (spec.md §4.8 step 5).
type IndexingMode string

const (
	IndexingAll       IndexingMode = "all"
	IndexingSelective IndexingMode = "selective"
	IndexingNone      IndexingMode = "none"
)

// Collection is a named bucket of documents with its own validation and
// indexing policy. Deleting a collection cascades to its schemas (by
// reference; schemas themselves are never deleted), documents, field
// constraints, indexed-field selections, and every value row belonging to
// its documents. Tags attach directly to a collection; labels do not — the
// labels table is document-scoped only (spec.md §6).
type Collection struct {
	ID                 string
	Name               string
	Description        string
	DocumentsDirectory string
	Tags               map[string]string
	SchemaEnforcement  EnforcementMode
	IndexingMode       IndexingMode
	CreatedUTC         time.Time
	LastUpdateUTC      time.Time
}

// Schema is a canonical, fingerprinted element list shared by every document
// whose extracted shape hashes the same way.
type Schema struct {
	ID         string
	Hash       string // 64 lowercase hex chars, globally unique.
	CreatedUTC time.Time
}

// SchemaElement is one leaf (or array<object> container) entry within a
// schema's element list.
type SchemaElement struct {
	ID         string
	SchemaID   string
	Position   int
	Key        string // dot-path; "$" for a non-object root.
	DataType   DataType
	Nullable   bool
	CreatedUTC time.Time
}

// Document is one ingested JSON document: its metadata row plus a pointer to
// the on-disk body at "<collection.DocumentsDirectory>/<doc.ID>.json".
type Document struct {
	ID            string
	CollectionID  string
	SchemaID      string
	Name          string
	Labels        []string
	Tags          map[string]string
	ContentLength int64
	SHA256        string
	CreatedUTC    time.Time
	LastUpdateUTC time.Time
}

// IndexTableMapping records the global, collection-agnostic relationship
// between a dot-path and the physical idx_<md5> table that stores its
// values. A path observed in any collection reuses the same mapping.
type IndexTableMapping struct {
	ID         string
	Key        string // the dot-path.
	TableName  string // "idx_" + hex(md5(Key)).
	CreatedUTC time.Time
}

// IndexedValue is one row of a per-field index table: a single flattened
// leaf value belonging to one document.
type IndexedValue struct {
	ID         string
	DocumentID string
	Position   *int // non-nil iff the value came from an array element.
	Value      *string
	CreatedUTC time.Time
}

// FieldConstraint is one declared validation rule for a (collection, path)
// pair, enforced under the collection's EnforcementMode.
type FieldConstraint struct {
	ID              string
	CollectionID    string
	FieldPath       string
	DataType        DataType
	Required        bool
	Nullable        bool
	RegexPattern    string
	MinValue        *float64
	MaxValue        *float64
	MinLength       *int
	MaxLength       *int
	AllowedValues   []string
	ArrayElementType DataType
	CreatedUTC      time.Time
	LastUpdateUTC   time.Time
}

// IndexedField selects one path to index under Collection.IndexingMode ==
// IndexingSelective.
type IndexedField struct {
	ID            string
	CollectionID  string
	FieldPath     string
	CreatedUTC    time.Time
	LastUpdateUTC time.Time
}

// Label attaches a free-text tag to a document.
type Label struct {
	ID         string
	DocumentID string
	Value      string
	CreatedUTC time.Time
}

// Tag attaches a key/value pair to either a collection or a document —
// exactly one of CollectionID or DocumentID is set.
type Tag struct {
	ID           string
	CollectionID string
	DocumentID   string
	Key          string
	Value        string
	CreatedUTC   time.Time
}
