// Package postgres registers the PostgreSQL repository.Driver. Thinner than
// sqlite/mysql: lib/pq surfaces constraint violations as a single *pq.Error
// with a SQLSTATE code rather than per-violation-kind error types, so
// isUniqueViolation is a one-line code check.
package postgres

import (
	"context"
	"database/sql"

	"github.com/lib/pq"

	"lattice/internal/repository"
)

func init() {
	repository.Register(driver{})
}

type driver struct{}

func (driver) Dialect() repository.Dialect { return repository.Postgres }

func (driver) Open(ctx context.Context, dsn string) (repository.Repository, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return repository.NewSQLStore(ctx, db, repository.Postgres, repository.RebindDollar, isUniqueViolation)
}

// unique_violation, https://www.postgresql.org/docs/current/errcodes-appendix.html
const sqlStateUniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	pqErr, ok := err.(*pq.Error)
	if !ok {
		return false
	}
	return string(pqErr.Code) == sqlStateUniqueViolation
}
