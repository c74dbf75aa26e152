// Package mysql registers the MySQL repository.Driver, grounded on the
// go-sql-driver/mysql usage the teacher's own CLI already blank-imports.
package mysql

import (
	"context"
	"database/sql"

	"github.com/go-sql-driver/mysql"

	"lattice/internal/repository"
)

func init() {
	repository.Register(driver{})
}

type driver struct{}

func (driver) Dialect() repository.Dialect { return repository.MySQL }

func (driver) Open(ctx context.Context, dsn string) (repository.Repository, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return repository.NewSQLStore(ctx, db, repository.MySQL, repository.RebindQuestion, isUniqueViolation)
}

// isUniqueViolation recognises MySQL error 1062 (ER_DUP_ENTRY).
func isUniqueViolation(err error) bool {
	mysqlErr, ok := err.(*mysql.MySQLError)
	if !ok {
		return false
	}
	return mysqlErr.Number == 1062
}
