package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"lattice/internal/core"
	"lattice/internal/ids"
	"lattice/internal/query"
)

// dialectConfig is the small set of facts that actually differ across the
// four backends: placeholder syntax and how to recognise a
// unique-constraint violation coming back from the driver. Pagination and
// ordering happen in Go over the id set planner resolves, so every backend
// shares identical DML here. Everything else (DDL, CRUD statements) is
// shared here in store so that
// adding a fifth backend is just a dialectConfig plus an Open() func — the
// shape the deleted dialect package once modeled for SQL-generation
// concerns, adapted here to a runtime repository instead of an offline
// migration generator.
type dialectConfig struct {
	name              Dialect
	rebind            func(query string) string
	isUniqueViolation func(err error) bool
}

// querier is satisfied by both *sql.DB and *sql.Tx, the same trick the
// deleted applier relied on implicitly by calling ExecContext on either
// its db handle or a tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type store struct {
	db  *sql.DB
	cfg dialectConfig
	q   querier // == db outside a transaction, == tx inside one.
}

func newStore(db *sql.DB, cfg dialectConfig) *store {
	return &store{db: db, cfg: cfg, q: db}
}

// NewSQLStore builds a Repository over an already-open *sql.DB, creating the
// metadata tables if they don't yet exist. Backend packages (sqlite, mysql,
// postgres, mssql) call this from their Driver.Open after dialing the
// driver-specific DSN — it is the only part of store.go they need to reach.
func NewSQLStore(ctx context.Context, db *sql.DB, dialect Dialect, rebind func(string) string, isUniqueViolation func(error) bool) (Repository, error) {
	if err := ensureMetadataSchema(ctx, db); err != nil {
		return nil, err
	}
	return newStore(db, dialectConfig{name: dialect, rebind: rebind, isUniqueViolation: isUniqueViolation}), nil
}

func (s *store) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return s.q.ExecContext(ctx, s.cfg.rebind(query), args...)
}

func (s *store) queryRows(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return s.q.QueryContext(ctx, s.cfg.rebind(query), args...)
}

func (s *store) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return s.q.QueryRowContext(ctx, s.cfg.rebind(query), args...)
}

func wrapErr(op string, err error, transient bool) error {
	if err == nil {
		return nil
	}
	return &core.RepositoryError{Op: op, Err: err, Transient: transient}
}

var metadataDDL = []string{
	`CREATE TABLE IF NOT EXISTS collections (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		description TEXT NOT NULL,
		documentsdirectory TEXT NOT NULL,
		tags TEXT NOT NULL,
		schemaenforcementmode TEXT NOT NULL,
		indexingmode TEXT NOT NULL,
		createdutc TEXT NOT NULL,
		lastupdateutc TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS schemas (
		id TEXT PRIMARY KEY,
		hash TEXT NOT NULL UNIQUE,
		createdutc TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS schemaelements (
		id TEXT PRIMARY KEY,
		schemaid TEXT NOT NULL,
		position INTEGER NOT NULL,
		key TEXT NOT NULL,
		datatype TEXT NOT NULL,
		nullable INTEGER NOT NULL,
		createdutc TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS indextablemappings (
		id TEXT PRIMARY KEY,
		key TEXT NOT NULL UNIQUE,
		tablename TEXT NOT NULL,
		createdutc TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS documents (
		id TEXT PRIMARY KEY,
		collectionid TEXT NOT NULL,
		schemaid TEXT NOT NULL,
		name TEXT NOT NULL,
		contentlength INTEGER NOT NULL,
		sha256 TEXT NOT NULL,
		createdutc TEXT NOT NULL,
		lastupdateutc TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS labels (
		id TEXT PRIMARY KEY,
		documentid TEXT NOT NULL,
		labelvalue TEXT NOT NULL,
		createdutc TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS tags (
		id TEXT PRIMARY KEY,
		collectionid TEXT NOT NULL,
		documentid TEXT NOT NULL,
		tagkey TEXT NOT NULL,
		tagvalue TEXT NOT NULL,
		createdutc TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS fieldconstraints (
		id TEXT PRIMARY KEY,
		collectionid TEXT NOT NULL,
		fieldpath TEXT NOT NULL,
		datatype TEXT NOT NULL,
		required INTEGER NOT NULL,
		nullable INTEGER NOT NULL,
		regexpattern TEXT NOT NULL,
		minvalue REAL,
		maxvalue REAL,
		minlength INTEGER,
		maxlength INTEGER,
		allowedvalues TEXT NOT NULL,
		arrayelementtype TEXT NOT NULL,
		createdutc TEXT NOT NULL,
		lastupdateutc TEXT NOT NULL,
		UNIQUE(collectionid, fieldpath)
	)`,
	`CREATE TABLE IF NOT EXISTS indexedfields (
		id TEXT PRIMARY KEY,
		collectionid TEXT NOT NULL,
		fieldpath TEXT NOT NULL,
		createdutc TEXT NOT NULL,
		lastupdateutc TEXT NOT NULL,
		UNIQUE(collectionid, fieldpath)
	)`,
}

func indexTableDDL(tableName string) string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		id TEXT PRIMARY KEY,
		documentid TEXT NOT NULL,
		position INTEGER,
		value TEXT,
		createdutc TEXT NOT NULL
	)`, tableName)
}

func ensureMetadataSchema(ctx context.Context, db *sql.DB) error {
	for _, stmt := range metadataDDL {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure metadata schema: %w", err)
		}
	}
	return nil
}

const timeLayout = time.RFC3339Nano

// --- Schemas -----------------------------------------------------------

func (s *store) FindSchemaByHash(ctx context.Context, hash string) (*core.Schema, error) {
	row := s.queryRow(ctx, `SELECT id, hash, createdutc FROM schemas WHERE hash = ?`, hash)
	var sc core.Schema
	var created string
	if err := row.Scan(&sc.ID, &sc.Hash, &created); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, wrapErr("FindSchemaByHash", err, isTransient(err))
	}
	sc.CreatedUTC, _ = time.Parse(timeLayout, created)
	return &sc, nil
}

func (s *store) CreateSchema(ctx context.Context, hash string) (*core.Schema, error) {
	sc := &core.Schema{ID: ids.New(ids.PrefixSchema), Hash: hash, CreatedUTC: now()}
	_, err := s.exec(ctx, `INSERT INTO schemas (id, hash, createdutc) VALUES (?, ?, ?)`,
		sc.ID, sc.Hash, sc.CreatedUTC.Format(timeLayout))
	if err != nil {
		if s.cfg.isUniqueViolation(err) {
			existing, findErr := s.FindSchemaByHash(ctx, hash)
			if findErr == nil && existing != nil {
				return existing, nil
			}
		}
		return nil, wrapErr("CreateSchema", err, isTransient(err))
	}
	return sc, nil
}

func (s *store) ListSchemaElements(ctx context.Context, schemaID string) ([]core.SchemaElement, error) {
	rows, err := s.queryRows(ctx,
		`SELECT id, schemaid, position, key, datatype, nullable, createdutc FROM schemaelements
		 WHERE schemaid = ? ORDER BY position ASC`, schemaID)
	if err != nil {
		return nil, wrapErr("ListSchemaElements", err, isTransient(err))
	}
	defer rows.Close()

	var out []core.SchemaElement
	for rows.Next() {
		var e core.SchemaElement
		var nullable int
		var created string
		if err := rows.Scan(&e.ID, &e.SchemaID, &e.Position, &e.Key, &e.DataType, &nullable, &created); err != nil {
			return nil, wrapErr("ListSchemaElements", err, false)
		}
		e.Nullable = nullable != 0
		e.CreatedUTC, _ = time.Parse(timeLayout, created)
		out = append(out, e)
	}
	return out, wrapErr("ListSchemaElements", rows.Err(), false)
}

func (s *store) CreateSchemaElements(ctx context.Context, elements []core.SchemaElement) error {
	for i := range elements {
		e := &elements[i]
		if e.ID == "" {
			e.ID = ids.New(ids.PrefixSchemaElement)
		}
		if e.CreatedUTC.IsZero() {
			e.CreatedUTC = now()
		}
		_, err := s.exec(ctx,
			`INSERT INTO schemaelements (id, schemaid, position, key, datatype, nullable, createdutc)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			e.ID, e.SchemaID, e.Position, e.Key, string(e.DataType), boolInt(e.Nullable), e.CreatedUTC.Format(timeLayout))
		if err != nil {
			return wrapErr("CreateSchemaElements", err, isTransient(err))
		}
	}
	return nil
}

// --- Collections ---------------------------------------------------------

func (s *store) CreateCollection(ctx context.Context, c *core.Collection) error {
	if c.ID == "" {
		c.ID = ids.New(ids.PrefixCollection)
	}
	c.CreatedUTC, c.LastUpdateUTC = now(), now()
	tagsJSON, err := json.Marshal(c.Tags)
	if err != nil {
		return fmt.Errorf("marshal collection tags: %w", err)
	}
	_, err = s.exec(ctx,
		`INSERT INTO collections (id, name, description, documentsdirectory, tags, schemaenforcementmode, indexingmode, createdutc, lastupdateutc)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.Name, c.Description, c.DocumentsDirectory, string(tagsJSON),
		string(c.SchemaEnforcement), string(c.IndexingMode),
		c.CreatedUTC.Format(timeLayout), c.LastUpdateUTC.Format(timeLayout))
	return wrapErr("CreateCollection", err, isTransient(err))
}

func scanCollection(row interface {
	Scan(dest ...any) error
}) (*core.Collection, error) {
	var c core.Collection
	var tagsJSON, enforcement, indexing, created, updated string
	if err := row.Scan(&c.ID, &c.Name, &c.Description, &c.DocumentsDirectory, &tagsJSON,
		&enforcement, &indexing, &created, &updated); err != nil {
		return nil, err
	}
	c.SchemaEnforcement = core.EnforcementMode(enforcement)
	c.IndexingMode = core.IndexingMode(indexing)
	c.CreatedUTC, _ = time.Parse(timeLayout, created)
	c.LastUpdateUTC, _ = time.Parse(timeLayout, updated)
	_ = json.Unmarshal([]byte(tagsJSON), &c.Tags)
	return &c, nil
}

const collectionColumns = `id, name, description, documentsdirectory, tags, schemaenforcementmode, indexingmode, createdutc, lastupdateutc`

func (s *store) GetCollection(ctx context.Context, id string) (*core.Collection, error) {
	row := s.queryRow(ctx, `SELECT `+collectionColumns+` FROM collections WHERE id = ?`, id)
	c, err := scanCollection(row)
	if err == sql.ErrNoRows {
		return nil, &core.CollectionNotFoundError{CollectionID: id}
	}
	if err != nil {
		return nil, wrapErr("GetCollection", err, isTransient(err))
	}
	return c, nil
}

func (s *store) ListCollections(ctx context.Context) ([]core.Collection, error) {
	rows, err := s.queryRows(ctx, `SELECT `+collectionColumns+` FROM collections ORDER BY createdutc DESC`)
	if err != nil {
		return nil, wrapErr("ListCollections", err, isTransient(err))
	}
	defer rows.Close()

	var out []core.Collection
	for rows.Next() {
		c, err := scanCollection(rows)
		if err != nil {
			return nil, wrapErr("ListCollections", err, false)
		}
		out = append(out, *c)
	}
	return out, wrapErr("ListCollections", rows.Err(), false)
}

func (s *store) UpdateCollection(ctx context.Context, c *core.Collection) error {
	c.LastUpdateUTC = now()
	tagsJSON, err := json.Marshal(c.Tags)
	if err != nil {
		return fmt.Errorf("marshal collection tags: %w", err)
	}
	res, err := s.exec(ctx,
		`UPDATE collections SET name=?, description=?, documentsdirectory=?, tags=?,
		 schemaenforcementmode=?, indexingmode=?, lastupdateutc=? WHERE id=?`,
		c.Name, c.Description, c.DocumentsDirectory, string(tagsJSON),
		string(c.SchemaEnforcement), string(c.IndexingMode), c.LastUpdateUTC.Format(timeLayout), c.ID)
	if err != nil {
		return wrapErr("UpdateCollection", err, isTransient(err))
	}
	return requireRowAffected(res, &core.CollectionNotFoundError{CollectionID: c.ID})
}

func (s *store) DeleteCollection(ctx context.Context, id string) error {
	docIDs, err := s.listDocumentIDsByCollection(ctx, id)
	if err != nil {
		return err
	}
	for _, docID := range docIDs {
		if err := s.DeleteValuesByDocument(ctx, docID); err != nil {
			return err
		}
	}
	stmts := []struct {
		sql  string
		args []any
	}{
		{`DELETE FROM labels WHERE documentid IN (SELECT id FROM documents WHERE collectionid=?)`, []any{id}},
		{`DELETE FROM tags WHERE documentid IN (SELECT id FROM documents WHERE collectionid=?)`, []any{id}},
		{`DELETE FROM tags WHERE collectionid=?`, []any{id}},
		{`DELETE FROM documents WHERE collectionid=?`, []any{id}},
		{`DELETE FROM fieldconstraints WHERE collectionid=?`, []any{id}},
		{`DELETE FROM indexedfields WHERE collectionid=?`, []any{id}},
		{`DELETE FROM collections WHERE id=?`, []any{id}},
	}
	for _, st := range stmts {
		if _, err := s.exec(ctx, st.sql, st.args...); err != nil {
			return wrapErr("DeleteCollection", err, isTransient(err))
		}
	}
	return nil
}

func (s *store) listDocumentIDsByCollection(ctx context.Context, collectionID string) ([]string, error) {
	rows, err := s.queryRows(ctx, `SELECT id FROM documents WHERE collectionid=?`, collectionID)
	if err != nil {
		return nil, wrapErr("listDocumentIDsByCollection", err, isTransient(err))
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, wrapErr("listDocumentIDsByCollection", err, false)
		}
		ids = append(ids, id)
	}
	return ids, wrapErr("listDocumentIDsByCollection", rows.Err(), false)
}

func (s *store) ListFieldConstraints(ctx context.Context, collectionID string) ([]core.FieldConstraint, error) {
	rows, err := s.queryRows(ctx,
		`SELECT id, collectionid, fieldpath, datatype, required, nullable, regexpattern,
		 minvalue, maxvalue, minlength, maxlength, allowedvalues, arrayelementtype, createdutc, lastupdateutc
		 FROM fieldconstraints WHERE collectionid=?`, collectionID)
	if err != nil {
		return nil, wrapErr("ListFieldConstraints", err, isTransient(err))
	}
	defer rows.Close()

	var out []core.FieldConstraint
	for rows.Next() {
		var c core.FieldConstraint
		var required, nullable int
		var dataType, arrayElemType, allowedJSON, created, updated string
		if err := rows.Scan(&c.ID, &c.CollectionID, &c.FieldPath, &dataType, &required, &nullable,
			&c.RegexPattern, &c.MinValue, &c.MaxValue, &c.MinLength, &c.MaxLength, &allowedJSON,
			&arrayElemType, &created, &updated); err != nil {
			return nil, wrapErr("ListFieldConstraints", err, false)
		}
		c.DataType = core.DataType(dataType)
		c.ArrayElementType = core.DataType(arrayElemType)
		c.Required = required != 0
		c.Nullable = nullable != 0
		_ = json.Unmarshal([]byte(allowedJSON), &c.AllowedValues)
		c.CreatedUTC, _ = time.Parse(timeLayout, created)
		c.LastUpdateUTC, _ = time.Parse(timeLayout, updated)
		out = append(out, c)
	}
	return out, wrapErr("ListFieldConstraints", rows.Err(), false)
}

func (s *store) CreateFieldConstraint(ctx context.Context, c *core.FieldConstraint) error {
	if c.ID == "" {
		c.ID = ids.New(ids.PrefixFieldConstraint)
	}
	c.CreatedUTC, c.LastUpdateUTC = now(), now()
	allowedJSON, err := json.Marshal(c.AllowedValues)
	if err != nil {
		return fmt.Errorf("marshal allowed values: %w", err)
	}
	_, err = s.exec(ctx,
		`INSERT INTO fieldconstraints (id, collectionid, fieldpath, datatype, required, nullable,
		 regexpattern, minvalue, maxvalue, minlength, maxlength, allowedvalues, arrayelementtype, createdutc, lastupdateutc)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.CollectionID, c.FieldPath, string(c.DataType), boolInt(c.Required), boolInt(c.Nullable),
		c.RegexPattern, c.MinValue, c.MaxValue, c.MinLength, c.MaxLength, string(allowedJSON),
		string(c.ArrayElementType), c.CreatedUTC.Format(timeLayout), c.LastUpdateUTC.Format(timeLayout))
	return wrapErr("CreateFieldConstraint", err, isTransient(err))
}

func (s *store) ListIndexedFields(ctx context.Context, collectionID string) ([]core.IndexedField, error) {
	rows, err := s.queryRows(ctx,
		`SELECT id, collectionid, fieldpath, createdutc, lastupdateutc FROM indexedfields WHERE collectionid=?`,
		collectionID)
	if err != nil {
		return nil, wrapErr("ListIndexedFields", err, isTransient(err))
	}
	defer rows.Close()

	var out []core.IndexedField
	for rows.Next() {
		var f core.IndexedField
		var created, updated string
		if err := rows.Scan(&f.ID, &f.CollectionID, &f.FieldPath, &created, &updated); err != nil {
			return nil, wrapErr("ListIndexedFields", err, false)
		}
		f.CreatedUTC, _ = time.Parse(timeLayout, created)
		f.LastUpdateUTC, _ = time.Parse(timeLayout, updated)
		out = append(out, f)
	}
	return out, wrapErr("ListIndexedFields", rows.Err(), false)
}

func (s *store) CreateIndexedField(ctx context.Context, f *core.IndexedField) error {
	if f.ID == "" {
		f.ID = ids.New(ids.PrefixIndexedField)
	}
	f.CreatedUTC, f.LastUpdateUTC = now(), now()
	_, err := s.exec(ctx,
		`INSERT INTO indexedfields (id, collectionid, fieldpath, createdutc, lastupdateutc) VALUES (?, ?, ?, ?, ?)`,
		f.ID, f.CollectionID, f.FieldPath, f.CreatedUTC.Format(timeLayout), f.LastUpdateUTC.Format(timeLayout))
	return wrapErr("CreateIndexedField", err, isTransient(err))
}

// --- Documents -----------------------------------------------------------

func (s *store) CreateDocument(ctx context.Context, d *core.Document) error {
	if d.ID == "" {
		d.ID = ids.New(ids.PrefixDocument)
	}
	d.CreatedUTC, d.LastUpdateUTC = now(), now()
	_, err := s.exec(ctx,
		`INSERT INTO documents (id, collectionid, schemaid, name, contentlength, sha256, createdutc, lastupdateutc)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.CollectionID, d.SchemaID, d.Name, d.ContentLength, d.SHA256,
		d.CreatedUTC.Format(timeLayout), d.LastUpdateUTC.Format(timeLayout))
	return wrapErr("CreateDocument", err, isTransient(err))
}

const documentColumns = `id, collectionid, schemaid, name, contentlength, sha256, createdutc, lastupdateutc`

func scanDocument(row interface{ Scan(dest ...any) error }) (*core.Document, error) {
	var d core.Document
	var created, updated string
	if err := row.Scan(&d.ID, &d.CollectionID, &d.SchemaID, &d.Name, &d.ContentLength, &d.SHA256, &created, &updated); err != nil {
		return nil, err
	}
	d.CreatedUTC, _ = time.Parse(timeLayout, created)
	d.LastUpdateUTC, _ = time.Parse(timeLayout, updated)
	return &d, nil
}

func (s *store) GetDocument(ctx context.Context, id string) (*core.Document, error) {
	row := s.queryRow(ctx, `SELECT `+documentColumns+` FROM documents WHERE id=?`, id)
	d, err := scanDocument(row)
	if err == sql.ErrNoRows {
		return nil, &core.DocumentNotFoundError{DocumentID: id}
	}
	if err != nil {
		return nil, wrapErr("GetDocument", err, isTransient(err))
	}
	return d, nil
}

func (s *store) DeleteDocument(ctx context.Context, id string) error {
	if err := s.DeleteValuesByDocument(ctx, id); err != nil {
		return err
	}
	if _, err := s.exec(ctx, `DELETE FROM labels WHERE documentid=?`, id); err != nil {
		return wrapErr("DeleteDocument", err, isTransient(err))
	}
	if _, err := s.exec(ctx, `DELETE FROM tags WHERE documentid=?`, id); err != nil {
		return wrapErr("DeleteDocument", err, isTransient(err))
	}
	res, err := s.exec(ctx, `DELETE FROM documents WHERE id=?`, id)
	if err != nil {
		return wrapErr("DeleteDocument", err, isTransient(err))
	}
	return requireRowAffected(res, &core.DocumentNotFoundError{DocumentID: id})
}

func (s *store) ListDocumentsByCollection(ctx context.Context, collectionID string) ([]core.Document, error) {
	rows, err := s.queryRows(ctx, `SELECT `+documentColumns+` FROM documents WHERE collectionid=? ORDER BY createdutc DESC`, collectionID)
	if err != nil {
		return nil, wrapErr("ListDocumentsByCollection", err, isTransient(err))
	}
	defer rows.Close()

	var out []core.Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, wrapErr("ListDocumentsByCollection", err, false)
		}
		out = append(out, *d)
	}
	return out, wrapErr("ListDocumentsByCollection", rows.Err(), false)
}

func (s *store) CountDocumentsByCollection(ctx context.Context, collectionID string) (int, error) {
	row := s.queryRow(ctx, `SELECT COUNT(*) FROM documents WHERE collectionid=?`, collectionID)
	var n int
	if err := row.Scan(&n); err != nil {
		return 0, wrapErr("CountDocumentsByCollection", err, isTransient(err))
	}
	return n, nil
}

// --- Index mappings --------------------------------------------------------

func (s *store) FindMappingByKey(ctx context.Context, key string) (*core.IndexTableMapping, error) {
	row := s.queryRow(ctx, `SELECT id, key, tablename, createdutc FROM indextablemappings WHERE key=?`, key)
	var m core.IndexTableMapping
	var created string
	if err := row.Scan(&m.ID, &m.Key, &m.TableName, &created); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, wrapErr("FindMappingByKey", err, isTransient(err))
	}
	m.CreatedUTC, _ = time.Parse(timeLayout, created)
	return &m, nil
}

func (s *store) CreateMapping(ctx context.Context, m *core.IndexTableMapping) error {
	if m.ID == "" {
		m.ID = ids.New(ids.PrefixIndexTableMap)
	}
	m.CreatedUTC = now()
	_, err := s.exec(ctx, `INSERT INTO indextablemappings (id, key, tablename, createdutc) VALUES (?, ?, ?, ?)`,
		m.ID, m.Key, m.TableName, m.CreatedUTC.Format(timeLayout))
	if err != nil {
		if s.cfg.isUniqueViolation(err) {
			// Two concurrent ingestions raced to create the same mapping;
			// the loser reuses the winner's row rather than failing
			// (spec.md §5's lookup-and-reuse requirement).
			existing, findErr := s.FindMappingByKey(ctx, m.Key)
			if findErr == nil && existing != nil {
				*m = *existing
				return nil
			}
		}
		return wrapErr("CreateMapping", err, isTransient(err))
	}
	return nil
}

func (s *store) ListTablesForCollection(ctx context.Context, collectionID string) ([]core.IndexTableMapping, error) {
	rows, err := s.queryRows(ctx, `SELECT id, key, tablename, createdutc FROM indextablemappings`)
	if err != nil {
		return nil, wrapErr("ListTablesForCollection", err, isTransient(err))
	}
	defer rows.Close()

	var all []core.IndexTableMapping
	for rows.Next() {
		var m core.IndexTableMapping
		var created string
		if err := rows.Scan(&m.ID, &m.Key, &m.TableName, &created); err != nil {
			return nil, wrapErr("ListTablesForCollection", err, false)
		}
		m.CreatedUTC, _ = time.Parse(timeLayout, created)
		all = append(all, m)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr("ListTablesForCollection", err, false)
	}

	var out []core.IndexTableMapping
	for _, m := range all {
		q := fmt.Sprintf(`SELECT v.id FROM %s v JOIN documents d ON d.id = v.documentid WHERE d.collectionid=? LIMIT 1`, m.TableName)
		row := s.queryRow(ctx, q, collectionID)
		var id string
		switch err := row.Scan(&id); err {
		case nil:
			out = append(out, m)
		case sql.ErrNoRows:
			// table exists but has no rows for this collection; skip.
		default:
			// the physical table itself may not exist for a stale mapping
			// row; treat as "not referenced" rather than failing the scan.
			continue
		}
	}
	return out, nil
}

// --- Index tables ----------------------------------------------------------

func (s *store) CreateIndexTable(ctx context.Context, tableName string) error {
	_, err := s.exec(ctx, indexTableDDL(tableName))
	return wrapErr("CreateIndexTable", err, isTransient(err))
}

func (s *store) InsertValues(ctx context.Context, tableName string, rows []core.IndexedValue) error {
	q := fmt.Sprintf(`INSERT INTO %s (id, documentid, position, value, createdutc) VALUES (?, ?, ?, ?, ?)`, tableName)
	for i := range rows {
		v := &rows[i]
		if v.ID == "" {
			v.ID = ids.New(ids.PrefixIndexedValue)
		}
		if v.CreatedUTC.IsZero() {
			v.CreatedUTC = now()
		}
		if _, err := s.exec(ctx, q, v.ID, v.DocumentID, v.Position, v.Value, v.CreatedUTC.Format(timeLayout)); err != nil {
			return wrapErr("InsertValues", err, isTransient(err))
		}
	}
	return nil
}

// Scan applies filter.Condition against the value column and returns the
// distinct set of matching document ids. Comparison is always
// string-lexicographic, per spec.md §4.7 (even for numeric-typed fields).
func (s *store) Scan(ctx context.Context, tableName string, filter query.Filter) ([]string, error) {
	var where string
	var args []any
	switch filter.Condition {
	case query.Eq:
		where, args = "value = ?", []any{filter.Value}
	case query.Neq:
		where, args = "value != ?", []any{filter.Value}
	case query.Gt:
		where, args = "value > ?", []any{filter.Value}
	case query.Gte:
		where, args = "value >= ?", []any{filter.Value}
	case query.Lt:
		where, args = "value < ?", []any{filter.Value}
	case query.Lte:
		where, args = "value <= ?", []any{filter.Value}
	case query.IsNull:
		where = "value IS NULL"
	case query.IsNotNull:
		where = "value IS NOT NULL"
	case query.Contains:
		where, args = "value LIKE ?", []any{"%" + filter.Value + "%"}
	case query.StartsWith:
		where, args = "value LIKE ?", []any{filter.Value + "%"}
	case query.EndsWith:
		where, args = "value LIKE ?", []any{"%" + filter.Value}
	default:
		return nil, &core.InvariantViolationError{Invariant: "query.Condition", Detail: "unknown condition " + string(filter.Condition)}
	}

	q := fmt.Sprintf(`SELECT DISTINCT documentid FROM %s WHERE %s`, tableName, where)
	rows, err := s.queryRows(ctx, q, args...)
	if err != nil {
		return nil, wrapErr("Scan", err, isTransient(err))
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, wrapErr("Scan", err, false)
		}
		ids = append(ids, id)
	}
	return ids, wrapErr("Scan", rows.Err(), false)
}

func (s *store) DeleteValuesByDocument(ctx context.Context, documentID string) error {
	mappings, err := s.allMappings(ctx)
	if err != nil {
		return err
	}
	for _, m := range mappings {
		q := fmt.Sprintf(`DELETE FROM %s WHERE documentid=?`, m.TableName)
		if _, err := s.exec(ctx, q, documentID); err != nil {
			return wrapErr("DeleteValuesByDocument", err, isTransient(err))
		}
	}
	return nil
}

func (s *store) DeleteValuesByCollection(ctx context.Context, collectionID string) error {
	mappings, err := s.allMappings(ctx)
	if err != nil {
		return err
	}
	for _, m := range mappings {
		if err := s.DeleteValuesFromTable(ctx, m.TableName, collectionID); err != nil {
			return err
		}
	}
	return nil
}

func (s *store) DeleteValuesFromTable(ctx context.Context, tableName, collectionID string) error {
	q := fmt.Sprintf(`DELETE FROM %s WHERE documentid IN (SELECT id FROM documents WHERE collectionid=?)`, tableName)
	_, err := s.exec(ctx, q, collectionID)
	return wrapErr("DeleteValuesFromTable", err, isTransient(err))
}

func (s *store) allMappings(ctx context.Context) ([]core.IndexTableMapping, error) {
	rows, err := s.queryRows(ctx, `SELECT id, key, tablename, createdutc FROM indextablemappings`)
	if err != nil {
		return nil, wrapErr("allMappings", err, isTransient(err))
	}
	defer rows.Close()
	var out []core.IndexTableMapping
	for rows.Next() {
		var m core.IndexTableMapping
		var created string
		if err := rows.Scan(&m.ID, &m.Key, &m.TableName, &created); err != nil {
			return nil, wrapErr("allMappings", err, false)
		}
		m.CreatedUTC, _ = time.Parse(timeLayout, created)
		out = append(out, m)
	}
	return out, wrapErr("allMappings", rows.Err(), false)
}

// --- Labels / tags -----------------------------------------------------

func (s *store) CreateLabels(ctx context.Context, documentID string, values []string) error {
	for _, v := range values {
		_, err := s.exec(ctx, `INSERT INTO labels (id, documentid, labelvalue, createdutc) VALUES (?, ?, ?, ?)`,
			ids.New(ids.PrefixLabel), documentID, v, now().Format(timeLayout))
		if err != nil {
			return wrapErr("CreateLabels", err, isTransient(err))
		}
	}
	return nil
}

func (s *store) ListLabels(ctx context.Context, documentID string) ([]core.Label, error) {
	rows, err := s.queryRows(ctx, `SELECT id, documentid, labelvalue, createdutc FROM labels WHERE documentid=?`, documentID)
	if err != nil {
		return nil, wrapErr("ListLabels", err, isTransient(err))
	}
	defer rows.Close()
	var out []core.Label
	for rows.Next() {
		var l core.Label
		var created string
		if err := rows.Scan(&l.ID, &l.DocumentID, &l.Value, &created); err != nil {
			return nil, wrapErr("ListLabels", err, false)
		}
		l.CreatedUTC, _ = time.Parse(timeLayout, created)
		out = append(out, l)
	}
	return out, wrapErr("ListLabels", rows.Err(), false)
}

func (s *store) createTags(ctx context.Context, collectionID, documentID string, tags map[string]string) error {
	for k, v := range tags {
		_, err := s.exec(ctx, `INSERT INTO tags (id, collectionid, documentid, tagkey, tagvalue, createdutc) VALUES (?, ?, ?, ?, ?, ?)`,
			ids.New(ids.PrefixTag), collectionID, documentID, k, v, now().Format(timeLayout))
		if err != nil {
			return wrapErr("createTags", err, isTransient(err))
		}
	}
	return nil
}

func (s *store) CreateDocumentTags(ctx context.Context, documentID string, tags map[string]string) error {
	return s.createTags(ctx, "", documentID, tags)
}

func (s *store) CreateCollectionTags(ctx context.Context, collectionID string, tags map[string]string) error {
	return s.createTags(ctx, collectionID, "", tags)
}

func (s *store) listTags(ctx context.Context, where string, arg string) (map[string]string, error) {
	rows, err := s.queryRows(ctx, `SELECT tagkey, tagvalue FROM tags WHERE `+where+`=?`, arg)
	if err != nil {
		return nil, wrapErr("listTags", err, isTransient(err))
	}
	defer rows.Close()
	out := map[string]string{}
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, wrapErr("listTags", err, false)
		}
		out[k] = v
	}
	return out, wrapErr("listTags", rows.Err(), false)
}

func (s *store) ListDocumentTags(ctx context.Context, documentID string) (map[string]string, error) {
	return s.listTags(ctx, "documentid", documentID)
}

func (s *store) ListCollectionTags(ctx context.Context, collectionID string) (map[string]string, error) {
	return s.listTags(ctx, "collectionid", collectionID)
}

// --- Transactions & lifecycle --------------------------------------------

func (s *store) WithinTransaction(ctx context.Context, fn func(ctx context.Context, tx Repository) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return wrapErr("WithinTransaction", err, isTransient(err))
	}
	txStore := &store{db: s.db, cfg: s.cfg, q: tx}
	if err := fn(ctx, txStore); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("transaction failed: %w; rollback also failed: %w", err, rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return wrapErr("WithinTransaction", err, isTransient(err))
	}
	return nil
}

func (s *store) Close() error {
	return s.db.Close()
}

func requireRowAffected(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return wrapErr("requireRowAffected", err, false)
	}
	if n == 0 {
		return notFound
	}
	return nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func now() time.Time { return time.Now().UTC() }

// isTransient is a conservative, message-based check shared by every
// backend, since drivers don't distinguish connection-level failures from
// constraint violations in a way store.go can detect generically. Backends
// do not override it; dialectConfig.isUniqueViolation only serves the
// create-race handling in CreateSchema and CreateMapping.
func isTransient(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "connection") || strings.Contains(msg, "timeout") || strings.Contains(msg, "eof")
}
