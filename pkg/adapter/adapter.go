// Package adapter provides the data store adapter contract and the shared
// database/sql implementation used by leaprun's runners.
//
// Every capability is scoped by a connection name. Runners use the node's
// name as the connection name so each node gets its own handle; batch hooks
// use the "master" connection. Concrete adapters live in pkg/adapters/.
package adapter

import (
	"context"

	"github.com/leapstack-labs/leaprun/pkg/core"
)

// Type aliases for the core types adapters work with.
type (
	// Config is an alias for core.AdapterConfig.
	Config = core.AdapterConfig

	// Column is an alias for core.Column.
	Column = core.Column

	// Table is an alias for core.Table.
	Table = core.Table
)

// MasterConnection is the connection name used by batch-wide hooks.
const MasterConnection = "master"

// Result describes the effect of one executed statement.
type Result struct {
	// Status is the statement tag, e.g. "CREATE TABLE" or "INSERT 0 5"
	Status string
	// RowsAffected is reported by the driver, -1 when unknown
	RowsAffected int64
}

// Adapter defines the interface that all data store adapters must implement.
type Adapter interface {
	// Type returns the adapter type, used for materialization lookup.
	Type() string

	// Connect establishes the underlying database handle using the provided config.
	Connect(ctx context.Context, cfg Config) error

	// Close closes every named connection and the database handle.
	Close() error

	// GetColumnsInTable returns the columns of schema.table in ordinal order.
	GetColumnsInTable(ctx context.Context, conn, schema, table string) ([]Column, error)

	// GetMissingColumns returns columns present in from but absent in to.
	GetMissingColumns(ctx context.Context, conn, fromSchema, fromTable, toSchema, toTable string) ([]Column, error)

	// TableExists reports whether schema.table exists as a table or view.
	TableExists(ctx context.Context, conn, schema, table string) (bool, error)

	// ListRelations returns every user table and view in the data store.
	ListRelations(ctx context.Context, conn string) ([]core.Relation, error)

	// GetExistingSchemas returns the names of the schemas that exist.
	GetExistingSchemas(ctx context.Context, conn string) ([]string, error)

	// CreateSchema creates schema if it does not exist.
	CreateSchema(ctx context.Context, conn, schema string) error

	// BeginTransaction opens a transaction on conn. It fails if one is already open.
	BeginTransaction(ctx context.Context, conn string) error

	// ClearTransaction leaves conn with no open transaction, committing any pending work.
	ClearTransaction(ctx context.Context, conn string) error

	// Commit commits the open transaction on conn. It fails if none is open.
	Commit(ctx context.Context, conn string) error

	// Rollback rolls back the open transaction on conn, if any.
	Rollback(ctx context.Context, conn string) error

	// ExecuteOne runs one statement. With autoBegin a transaction is opened
	// first when none is open; without it the statement runs as-is.
	ExecuteOne(ctx context.Context, conn, sql string, autoBegin bool) (Result, error)

	// ExecuteAndFetch runs one query and returns every row.
	ExecuteAndFetch(ctx context.Context, conn, sql string, autoBegin bool) (Result, *Table, error)

	// ReleaseConnection rolls back any open transaction and returns conn to the pool.
	// Releasing an unknown or already released connection is a no-op.
	ReleaseConnection(ctx context.Context, conn string) error
}
