// Package repository defines the storage port lattice's core operations run
// against (spec.md §4.10) and a pluggable-backend registry in the style the
// deleted dialect package's own Generator/Parser/Dialect split once modeled:
// a small constructor function is registered per dialect name, and callers
// obtain a Repository by name via Open without ever importing a specific
// driver package directly (they blank-import it for its init-time Register
// call).
package repository

import (
	"context"
	"fmt"
	"sync"

	"lattice/internal/core"
	"lattice/internal/query"
)

// Dialect names a supported SQL backend.
type Dialect string

const (
	SQLite   Dialect = "sqlite"
	MySQL    Dialect = "mysql"
	Postgres Dialect = "postgres"
	MSSQL    Dialect = "mssql"
)

// SchemaStore is the schemas + schema-elements slice of the port.
type SchemaStore interface {
	FindSchemaByHash(ctx context.Context, hash string) (*core.Schema, error)
	CreateSchema(ctx context.Context, hash string) (*core.Schema, error)
	ListSchemaElements(ctx context.Context, schemaID string) ([]core.SchemaElement, error)
	CreateSchemaElements(ctx context.Context, elements []core.SchemaElement) error
}

// CollectionStore is collection CRUD plus its constraint/index-field
// sub-collections.
type CollectionStore interface {
	CreateCollection(ctx context.Context, c *core.Collection) error
	GetCollection(ctx context.Context, id string) (*core.Collection, error)
	ListCollections(ctx context.Context) ([]core.Collection, error)
	UpdateCollection(ctx context.Context, c *core.Collection) error
	DeleteCollection(ctx context.Context, id string) error

	ListFieldConstraints(ctx context.Context, collectionID string) ([]core.FieldConstraint, error)
	CreateFieldConstraint(ctx context.Context, c *core.FieldConstraint) error

	ListIndexedFields(ctx context.Context, collectionID string) ([]core.IndexedField, error)
	CreateIndexedField(ctx context.Context, f *core.IndexedField) error
}

// DocumentStore is document CRUD by id plus collection-scoped listing.
type DocumentStore interface {
	CreateDocument(ctx context.Context, d *core.Document) error
	GetDocument(ctx context.Context, id string) (*core.Document, error)
	DeleteDocument(ctx context.Context, id string) error
	ListDocumentsByCollection(ctx context.Context, collectionID string) ([]core.Document, error)
	CountDocumentsByCollection(ctx context.Context, collectionID string) (int, error)
}

// IndexMappingStore tracks the global path → physical-table relationship.
type IndexMappingStore interface {
	FindMappingByKey(ctx context.Context, key string) (*core.IndexTableMapping, error)
	CreateMapping(ctx context.Context, m *core.IndexTableMapping) error
	ListTablesForCollection(ctx context.Context, collectionID string) ([]core.IndexTableMapping, error)
}

// IndexTableStore operates on the physical idx_* tables themselves. The port
// never exposes SQL text — callers pass a query.Filter and get document ids
// back.
type IndexTableStore interface {
	CreateIndexTable(ctx context.Context, tableName string) error
	InsertValues(ctx context.Context, tableName string, rows []core.IndexedValue) error
	Scan(ctx context.Context, tableName string, filter query.Filter) ([]string, error)
	DeleteValuesByDocument(ctx context.Context, documentID string) error
	DeleteValuesByCollection(ctx context.Context, collectionID string) error
	DeleteValuesFromTable(ctx context.Context, tableName, collectionID string) error
}

// LabelTagStore is bulk create/list for labels and tags.
type LabelTagStore interface {
	CreateLabels(ctx context.Context, documentID string, values []string) error
	ListLabels(ctx context.Context, documentID string) ([]core.Label, error)
	CreateDocumentTags(ctx context.Context, documentID string, tags map[string]string) error
	CreateCollectionTags(ctx context.Context, collectionID string, tags map[string]string) error
	ListDocumentTags(ctx context.Context, documentID string) (map[string]string, error)
	ListCollectionTags(ctx context.Context, collectionID string) (map[string]string, error)
}

// Repository is the full port: every capability plus the transactional unit
// spec.md §4.8 requires for ingestion steps 3, 6, 7, 8 and 9.
type Repository interface {
	SchemaStore
	CollectionStore
	DocumentStore
	IndexMappingStore
	IndexTableStore
	LabelTagStore

	// WithinTransaction runs fn with a Repository bound to a single
	// transaction; fn's error rolls the transaction back, nil commits it.
	WithinTransaction(ctx context.Context, fn func(ctx context.Context, tx Repository) error) error

	Close() error
}

// Driver constructs a dialect-specific Repository and exposes the small set
// of DDL/placeholder facts Store needs to stay dialect-agnostic everywhere
// else (see store.go).
type Driver interface {
	Dialect() Dialect
	Open(ctx context.Context, dsn string) (Repository, error)
}

var (
	mu       sync.RWMutex
	registry = make(map[Dialect]Driver)
)

// Register adds a driver to the registry. Backend packages call this from an
// init() function after a blank import, mirroring the deleted dialect
// package's own RegisterDialect.
func Register(d Driver) {
	mu.Lock()
	defer mu.Unlock()
	registry[d.Dialect()] = d
}

// Open resolves dialect to a registered Driver and opens a connection.
func Open(ctx context.Context, dialect Dialect, dsn string) (Repository, error) {
	mu.RLock()
	d, ok := registry[dialect]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("repository: unregistered dialect %q", dialect)
	}
	return d.Open(ctx, dsn)
}
