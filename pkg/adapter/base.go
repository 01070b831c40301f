package adapter

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/leapstack-labs/leaprun/pkg/core"
)

var errNotConnected = errors.New("database connection not established")

// ExecFunc runs one statement on a dedicated connection and reports its status.
// Adapters whose driver exposes native command tags install one.
type ExecFunc func(ctx context.Context, conn *sql.Conn, query string) (Result, error)

// execQuerier is satisfied by both *sql.Conn and *sql.Tx.
type execQuerier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// handle is one named connection and its open transaction, if any.
type handle struct {
	conn *sql.Conn
	tx   *sql.Tx
}

func (h *handle) target() execQuerier {
	if h.tx != nil {
		return h.tx
	}
	return h.conn
}

// BaseSQLAdapter provides the database/sql implementation of every Adapter
// capability except Connect. Embed it in concrete adapters.
//
// Named connections are acquired lazily on first use and kept until
// ReleaseConnection. Each name owns at most one open transaction.
type BaseSQLAdapter struct {
	DB      *sql.DB
	Cfg     core.AdapterConfig
	Logger  *slog.Logger
	Dialect Dialect
	// Exec overrides statement execution. Nil uses ExecContext and StatementStatus.
	Exec ExecFunc

	mu      sync.Mutex
	handles map[string]*handle
}

func (b *BaseSQLAdapter) logger() *slog.Logger {
	if b.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return b.Logger
}

// Type returns the dialect name.
func (b *BaseSQLAdapter) Type() string {
	return b.Dialect.Name
}

// IsConnected returns true if the database handle is established.
func (b *BaseSQLAdapter) IsConnected() bool {
	return b.DB != nil
}

// Close releases every named connection and closes the database handle.
func (b *BaseSQLAdapter) Close() error {
	b.mu.Lock()
	names := make([]string, 0, len(b.handles))
	for name := range b.handles {
		names = append(names, name)
	}
	b.mu.Unlock()

	var errs []error
	for _, name := range names {
		if err := b.ReleaseConnection(context.Background(), name); err != nil {
			errs = append(errs, err)
		}
	}

	if b.DB != nil {
		b.logger().Debug("closing database connection")
		if err := b.DB.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// acquire returns the handle for name, opening a connection on first use.
func (b *BaseSQLAdapter) acquire(ctx context.Context, name string) (*handle, error) {
	if b.DB == nil {
		return nil, errNotConnected
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if h, ok := b.handles[name]; ok {
		return h, nil
	}

	conn, err := b.DB.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire connection %q: %w", name, err)
	}
	if b.handles == nil {
		b.handles = make(map[string]*handle)
	}
	h := &handle{conn: conn}
	b.handles[name] = h
	b.logger().Debug("acquired connection", slog.String("conn", name))
	return h, nil
}

// ReleaseConnection rolls back any open transaction on name and closes it.
func (b *BaseSQLAdapter) ReleaseConnection(_ context.Context, name string) error {
	b.mu.Lock()
	h, ok := b.handles[name]
	delete(b.handles, name)
	b.mu.Unlock()

	if !ok {
		return nil
	}

	var errs []error
	if h.tx != nil {
		if err := h.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			errs = append(errs, fmt.Errorf("failed to roll back on release: %w", err))
		}
		h.tx = nil
	}
	if err := h.conn.Close(); err != nil && !errors.Is(err, sql.ErrConnDone) {
		errs = append(errs, fmt.Errorf("failed to close connection %q: %w", name, err))
	}
	b.logger().Debug("released connection", slog.String("conn", name))
	return errors.Join(errs...)
}

// BeginTransaction opens a transaction on name.
func (b *BaseSQLAdapter) BeginTransaction(ctx context.Context, name string) error {
	h, err := b.acquire(ctx, name)
	if err != nil {
		return err
	}
	return b.begin(ctx, name, h)
}

func (b *BaseSQLAdapter) begin(ctx context.Context, name string, h *handle) error {
	if h.tx != nil {
		return core.NewInternalError(
			fmt.Sprintf("tried to begin a new transaction on connection %q, but it already had one open", name), nil)
	}
	tx, err := h.conn.BeginTx(ctx, nil)
	if err != nil {
		return core.NewDatabaseError("BEGIN", err)
	}
	h.tx = tx
	return nil
}

// ClearTransaction commits any open transaction so later statements run outside one.
func (b *BaseSQLAdapter) ClearTransaction(ctx context.Context, name string) error {
	h, err := b.acquire(ctx, name)
	if err != nil {
		return err
	}
	if h.tx == nil {
		return nil
	}
	return b.commit(name, h)
}

// Commit commits the open transaction on name.
func (b *BaseSQLAdapter) Commit(ctx context.Context, name string) error {
	h, err := b.acquire(ctx, name)
	if err != nil {
		return err
	}
	if h.tx == nil {
		return core.NewInternalError(
			fmt.Sprintf("tried to commit transaction on connection %q, but it does not have one open", name), nil)
	}
	return b.commit(name, h)
}

func (b *BaseSQLAdapter) commit(name string, h *handle) error {
	tx := h.tx
	h.tx = nil
	if err := tx.Commit(); err != nil {
		return core.NewDatabaseError("COMMIT", err)
	}
	b.logger().Debug("committed transaction", slog.String("conn", name))
	return nil
}

// Rollback rolls back the open transaction on name, if any.
func (b *BaseSQLAdapter) Rollback(ctx context.Context, name string) error {
	h, err := b.acquire(ctx, name)
	if err != nil {
		return err
	}
	if h.tx == nil {
		return nil
	}
	tx := h.tx
	h.tx = nil
	if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return core.NewDatabaseError("ROLLBACK", err)
	}
	return nil
}

// ExecuteOne runs one statement on name.
func (b *BaseSQLAdapter) ExecuteOne(ctx context.Context, name, query string, autoBegin bool) (Result, error) {
	h, err := b.prepare(ctx, name, autoBegin)
	if err != nil {
		return Result{}, err
	}

	b.logger().Debug("executing statement", slog.String("conn", name), slog.Bool("auto_begin", autoBegin))

	if b.Exec != nil {
		res, err := b.Exec(ctx, h.conn, query)
		if err != nil {
			return Result{}, core.NewDatabaseError(query, fmt.Errorf("failed to execute SQL: %w", err))
		}
		return res, nil
	}

	sqlRes, err := h.target().ExecContext(ctx, query)
	if err != nil {
		return Result{}, core.NewDatabaseError(query, fmt.Errorf("failed to execute SQL: %w", err))
	}
	rows, err := sqlRes.RowsAffected()
	if err != nil {
		rows = -1
	}
	return Result{Status: StatementStatus(query, rows), RowsAffected: rows}, nil
}

// ExecuteAndFetch runs one query on name and reads every row.
func (b *BaseSQLAdapter) ExecuteAndFetch(ctx context.Context, name, query string, autoBegin bool) (Result, *Table, error) {
	h, err := b.prepare(ctx, name, autoBegin)
	if err != nil {
		return Result{}, nil, err
	}

	table, err := fetchAll(ctx, h.target(), query)
	if err != nil {
		return Result{}, nil, core.NewDatabaseError(query, err)
	}
	n := int64(table.NumRows())
	return Result{Status: StatementStatus(query, n), RowsAffected: n}, table, nil
}

func (b *BaseSQLAdapter) prepare(ctx context.Context, name string, autoBegin bool) (*handle, error) {
	h, err := b.acquire(ctx, name)
	if err != nil {
		return nil, err
	}
	if autoBegin && h.tx == nil {
		if err := b.begin(ctx, name, h); err != nil {
			return nil, err
		}
	}
	return h, nil
}

func fetchAll(ctx context.Context, q execQuerier, query string, args ...any) (*Table, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to read columns: %w", err)
	}

	table := &Table{Columns: cols}
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		table.Rows = append(table.Rows, core.Row(values))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return table, nil
}

// GetColumnsInTable returns the columns of schema.table using information_schema.
func (b *BaseSQLAdapter) GetColumnsInTable(ctx context.Context, name, schema, table string) ([]Column, error) {
	h, err := b.acquire(ctx, name)
	if err != nil {
		return nil, err
	}
	if schema == "" {
		schema = b.Dialect.DefaultSchema
	}

	//nolint:gosec // Placeholders are safe - they come from Dialect.FormatPlaceholder
	query := fmt.Sprintf(`
		SELECT
			column_name,
			data_type,
			is_nullable,
			ordinal_position
		FROM information_schema.columns
		WHERE table_schema = %s AND table_name = %s
		ORDER BY ordinal_position
	`, b.Dialect.FormatPlaceholder(1), b.Dialect.FormatPlaceholder(2))

	rows, err := h.target().QueryContext(ctx, query, schema, table)
	if err != nil {
		return nil, core.NewDatabaseError(query, fmt.Errorf("failed to query column metadata: %w", err))
	}
	defer func() { _ = rows.Close() }()

	var columns []Column
	for rows.Next() {
		var col Column
		var nullable string
		if err := rows.Scan(&col.Name, &col.Type, &nullable, &col.Position); err != nil {
			return nil, fmt.Errorf("failed to scan column metadata: %w", err)
		}
		col.Nullable = nullable == "YES"
		columns = append(columns, col)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating column metadata: %w", err)
	}
	return columns, nil
}

// GetMissingColumns returns the columns of from that to lacks, compared case-insensitively.
func (b *BaseSQLAdapter) GetMissingColumns(ctx context.Context, name, fromSchema, fromTable, toSchema, toTable string) ([]Column, error) {
	from, err := b.GetColumnsInTable(ctx, name, fromSchema, fromTable)
	if err != nil {
		return nil, err
	}
	to, err := b.GetColumnsInTable(ctx, name, toSchema, toTable)
	if err != nil {
		return nil, err
	}

	have := make(map[string]bool, len(to))
	for _, c := range to {
		have[strings.ToLower(c.Name)] = true
	}
	var missing []Column
	for _, c := range from {
		if !have[strings.ToLower(c.Name)] {
			missing = append(missing, c)
		}
	}
	return missing, nil
}

// TableExists reports whether schema.table exists.
func (b *BaseSQLAdapter) TableExists(ctx context.Context, name, schema, table string) (bool, error) {
	relations, err := b.ListRelations(ctx, name)
	if err != nil {
		return false, err
	}
	if schema == "" {
		schema = b.Dialect.DefaultSchema
	}
	for _, r := range relations {
		if strings.EqualFold(r.Schema, schema) && strings.EqualFold(r.Name, table) {
			return true, nil
		}
	}
	return false, nil
}

// ListRelations returns every table and view outside the system schemas.
func (b *BaseSQLAdapter) ListRelations(ctx context.Context, name string) ([]core.Relation, error) {
	h, err := b.acquire(ctx, name)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT table_schema, table_name, table_type
		FROM information_schema.tables
		WHERE table_schema NOT IN ('information_schema', 'pg_catalog')
		ORDER BY table_schema, table_name
	`
	rows, err := h.target().QueryContext(ctx, query)
	if err != nil {
		return nil, core.NewDatabaseError(query, fmt.Errorf("failed to list relations: %w", err))
	}
	defer func() { _ = rows.Close() }()

	var relations []core.Relation
	for rows.Next() {
		var r core.Relation
		var kind string
		if err := rows.Scan(&r.Schema, &r.Name, &kind); err != nil {
			return nil, fmt.Errorf("failed to scan relation: %w", err)
		}
		r.Type = core.RelationTable
		if strings.Contains(strings.ToUpper(kind), "VIEW") {
			r.Type = core.RelationView
		}
		relations = append(relations, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating relations: %w", err)
	}
	return relations, nil
}

// GetExistingSchemas returns the schema names present in the data store, sorted.
func (b *BaseSQLAdapter) GetExistingSchemas(ctx context.Context, name string) ([]string, error) {
	h, err := b.acquire(ctx, name)
	if err != nil {
		return nil, err
	}

	query := "SELECT schema_name FROM information_schema.schemata"
	rows, err := h.target().QueryContext(ctx, query)
	if err != nil {
		return nil, core.NewDatabaseError(query, fmt.Errorf("failed to list schemas: %w", err))
	}
	defer func() { _ = rows.Close() }()

	seen := make(map[string]bool)
	var schemas []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("failed to scan schema: %w", err)
		}
		if !seen[s] {
			seen[s] = true
			schemas = append(schemas, s)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating schemas: %w", err)
	}
	sort.Strings(schemas)
	return schemas, nil
}

// CreateSchema creates schema on name if it does not exist.
func (b *BaseSQLAdapter) CreateSchema(ctx context.Context, name, schema string) error {
	query := "CREATE SCHEMA IF NOT EXISTS " + b.Dialect.QuoteIdent(schema)
	_, err := b.ExecuteOne(ctx, name, query, false)
	return err
}
