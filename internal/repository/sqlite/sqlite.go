// Package sqlite registers the SQLite repository.Driver. Blank-import this
// package to make the "sqlite" dialect available to repository.Open, the
// same init()-time wiring the deleted introspection package's own
// per-dialect subpackages used for their registry.
package sqlite

import (
	"context"
	"database/sql"
	"strings"

	sqlite3 "github.com/mattn/go-sqlite3"

	"lattice/internal/repository"
)

func init() {
	repository.Register(driver{})
}

type driver struct{}

func (driver) Dialect() repository.Dialect { return repository.SQLite }

// Open dials dsn with mattn/go-sqlite3 and enables foreign keys (off by
// default in SQLite). The shared store.go DDL declares no foreign keys;
// cascading deletes are issued as explicit statements on every backend.
func (driver) Open(ctx context.Context, dsn string) (repository.Repository, error) {
	db, err := sql.Open("sqlite3", withForeignKeys(dsn))
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return repository.NewSQLStore(ctx, db, repository.SQLite, repository.RebindQuestion, isUniqueViolation)
}

func withForeignKeys(dsn string) string {
	if strings.Contains(dsn, "_foreign_keys") {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "_foreign_keys=on"
}

func isUniqueViolation(err error) bool {
	sqliteErr, ok := err.(sqlite3.Error)
	if !ok {
		return false
	}
	return sqliteErr.Code == sqlite3.ErrConstraint
}
