// Package dialect provides the database abstraction used by strata.
//
// A dialect.Driver executes statements against a backing store and knows
// which SQL flavor it speaks. The dialect/sql sub-package implements it on
// top of database/sql for PostgreSQL, MySQL and SQLite.
package dialect

import (
	"context"
)

// Dialect names supported by the dialect/sql implementation.
const (
	MySQL    = "mysql"
	SQLite   = "sqlite"
	Postgres = "postgres"
)

// ExecQuerier wraps the two standard database operations.
//
// The v argument is an out-parameter: *sql.Rows for Query and *sql.Result
// (or nil) for Exec. Keeping the signature untyped lets transactions,
// drivers and middleware wrappers share one interface.
type ExecQuerier interface {
	// Exec executes a statement that does not return rows.
	Exec(ctx context.Context, query string, args, v any) error
	// Query executes a statement that returns rows.
	Query(ctx context.Context, query string, args, v any) error
}

// Driver is the minimal interface the data layer needs from a database.
type Driver interface {
	ExecQuerier
	// Tx starts and returns a new transaction.
	Tx(ctx context.Context) (Tx, error)
	// Close closes the underlying connections.
	Close() error
	// Dialect returns the dialect name of the driver.
	Dialect() string
}

// Tx is the transaction interface returned by Driver.Tx.
type Tx interface {
	ExecQuerier
	Commit() error
	Rollback() error
}

// NopTx returns a Tx that executes on d and treats Commit and Rollback as
// no-ops. It is used when an operation that demarcates its own transaction
// runs inside an outer transaction.
func NopTx(d Driver) Tx {
	return nopTx{d}
}

type nopTx struct {
	Driver
}

func (nopTx) Commit() error   { return nil }
func (nopTx) Rollback() error { return nil }
