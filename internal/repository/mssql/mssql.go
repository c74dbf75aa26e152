// Package mssql registers the SQL Server repository.Driver. Thinner than
// sqlite/mysql: go-mssqldb accepts "?" ordinal placeholders directly (it
// rewrites them to "@p1"-style parameters internally), so this package adds
// nothing beyond dialing the driver and recognising its unique-violation
// error numbers.
package mssql

import (
	"context"
	"database/sql"

	mssql "github.com/microsoft/go-mssqldb"

	"lattice/internal/repository"
)

func init() {
	repository.Register(driver{})
}

type driver struct{}

func (driver) Dialect() repository.Dialect { return repository.MSSQL }

func (driver) Open(ctx context.Context, dsn string) (repository.Repository, error) {
	db, err := sql.Open("sqlserver", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return repository.NewSQLStore(ctx, db, repository.MSSQL, repository.RebindQuestion, isUniqueViolation)
}

// 2627 = "Violation of %ls constraint"; 2601 = "Cannot insert duplicate key
// row" — both are SQL Server's unique-constraint violation numbers.
func isUniqueViolation(err error) bool {
	mssqlErr, ok := err.(mssql.Error)
	if !ok {
		return false
	}
	return mssqlErr.Number == 2627 || mssqlErr.Number == 2601
}
