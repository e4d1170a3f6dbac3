// Package repopg implements the pipeline engine's repository.Repositories
// contracts against PostgreSQL via pgx.
package repopg

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// dbtx is satisfied by both *pgxpool.Pool and pgx.Tx, letting every
// repository accept either a bare pool connection or a transaction handle
// without duplicating query code.
type dbtx interface {
	Exec(ctx context.Context, sql string, arguments ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

var _ dbtx = (*pgxpool.Pool)(nil)
var _ dbtx = (pgx.Tx)(nil)
