package internal

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// dbConn is the statement surface shared by the pool and an open
// transaction, so helpers can run inside or outside one.
type dbConn interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// storePool is the slice of pgxpool.Pool the stores use. Narrow on
// purpose: tests substitute a pgxmock pool.
type storePool interface {
	dbConn
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}
