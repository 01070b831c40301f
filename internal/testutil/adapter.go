package testutil

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/leapstack-labs/leaprun/pkg/adapter"
	"github.com/leapstack-labs/leaprun/pkg/core"
)

// Call is one recorded adapter call.
type Call struct {
	Method    string
	Conn      string
	SQL       string
	AutoBegin bool
}

// FakeAdapter is an in-memory adapter.Adapter that records every call.
// Statement status is derived from the SQL text like the real adapters do.
type FakeAdapter struct {
	TypeName  string
	Schemas   []string
	Relations []core.Relation
	Columns   map[string][]core.Column // keyed by "schema.table"

	// ExecHook, when set, may fail a statement or override its status.
	ExecHook func(conn, sql string) (string, error)
	// FetchHook returns the rows for ExecuteAndFetch.
	FetchHook func(conn, sql string) (*core.Table, error)
	// ReleaseHook observes connection release.
	ReleaseHook func(conn string)

	mu    sync.Mutex
	calls []Call
	open  map[string]bool
}

var _ adapter.Adapter = (*FakeAdapter)(nil)

// NewFakeAdapter creates a fake with the given type name.
func NewFakeAdapter(typeName string) *FakeAdapter {
	return &FakeAdapter{TypeName: typeName, open: make(map[string]bool)}
}

func (f *FakeAdapter) record(c Call) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, c)
}

// Calls returns a copy of the recorded calls.
func (f *FakeAdapter) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.calls)
}

// CallsTo returns the recorded calls of method.
func (f *FakeAdapter) CallsTo(method string) []Call {
	var out []Call
	for _, c := range f.Calls() {
		if c.Method == method {
			out = append(out, c)
		}
	}
	return out
}

// Statements returns the SQL of every ExecuteOne call on conn.
func (f *FakeAdapter) Statements(conn string) []string {
	var out []string
	for _, c := range f.CallsTo("ExecuteOne") {
		if c.Conn == conn {
			out = append(out, c.SQL)
		}
	}
	return out
}

// InTransaction reports whether conn has an open transaction.
func (f *FakeAdapter) InTransaction(conn string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.open[conn]
}

// Type implements adapter.Adapter.
func (f *FakeAdapter) Type() string { return f.TypeName }

// Connect implements adapter.Adapter.
func (f *FakeAdapter) Connect(_ context.Context, _ adapter.Config) error {
	f.record(Call{Method: "Connect"})
	return nil
}

// Close implements adapter.Adapter.
func (f *FakeAdapter) Close() error {
	f.record(Call{Method: "Close"})
	return nil
}

// GetColumnsInTable implements adapter.Adapter.
func (f *FakeAdapter) GetColumnsInTable(_ context.Context, conn, schema, table string) ([]adapter.Column, error) {
	f.record(Call{Method: "GetColumnsInTable", Conn: conn, SQL: schema + "." + table})
	return f.Columns[schema+"."+table], nil
}

// GetMissingColumns implements adapter.Adapter.
func (f *FakeAdapter) GetMissingColumns(_ context.Context, conn, fromSchema, fromTable, toSchema, toTable string) ([]adapter.Column, error) {
	f.record(Call{Method: "GetMissingColumns", Conn: conn})
	var missing []adapter.Column
	to := f.Columns[toSchema+"."+toTable]
	for _, c := range f.Columns[fromSchema+"."+fromTable] {
		if !slices.ContainsFunc(to, func(t adapter.Column) bool { return strings.EqualFold(t.Name, c.Name) }) {
			missing = append(missing, c)
		}
	}
	return missing, nil
}

// TableExists implements adapter.Adapter.
func (f *FakeAdapter) TableExists(_ context.Context, conn, schema, table string) (bool, error) {
	f.record(Call{Method: "TableExists", Conn: conn, SQL: schema + "." + table})
	return slices.ContainsFunc(f.Relations, func(r core.Relation) bool {
		return r.Schema == schema && r.Name == table
	}), nil
}

// ListRelations implements adapter.Adapter.
func (f *FakeAdapter) ListRelations(_ context.Context, conn string) ([]core.Relation, error) {
	f.record(Call{Method: "ListRelations", Conn: conn})
	return slices.Clone(f.Relations), nil
}

// GetExistingSchemas implements adapter.Adapter.
func (f *FakeAdapter) GetExistingSchemas(_ context.Context, conn string) ([]string, error) {
	f.record(Call{Method: "GetExistingSchemas", Conn: conn})
	return slices.Clone(f.Schemas), nil
}

// CreateSchema implements adapter.Adapter.
func (f *FakeAdapter) CreateSchema(_ context.Context, conn, schema string) error {
	f.record(Call{Method: "CreateSchema", Conn: conn, SQL: schema})
	return nil
}

// BeginTransaction implements adapter.Adapter.
func (f *FakeAdapter) BeginTransaction(_ context.Context, conn string) error {
	f.record(Call{Method: "BeginTransaction", Conn: conn})
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.open[conn] {
		return core.NewInternalError(fmt.Sprintf("tried to begin a new transaction on connection %q, but it already had one open", conn), nil)
	}
	f.open[conn] = true
	return nil
}

// ClearTransaction implements adapter.Adapter.
func (f *FakeAdapter) ClearTransaction(_ context.Context, conn string) error {
	f.record(Call{Method: "ClearTransaction", Conn: conn})
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.open, conn)
	return nil
}

// Commit implements adapter.Adapter.
func (f *FakeAdapter) Commit(_ context.Context, conn string) error {
	f.record(Call{Method: "Commit", Conn: conn})
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.open[conn] {
		return core.NewInternalError(fmt.Sprintf("tried to commit transaction on connection %q, but it does not have one open", conn), nil)
	}
	delete(f.open, conn)
	return nil
}

// Rollback implements adapter.Adapter.
func (f *FakeAdapter) Rollback(_ context.Context, conn string) error {
	f.record(Call{Method: "Rollback", Conn: conn})
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.open, conn)
	return nil
}

func (f *FakeAdapter) autoBegin(conn string, autoBegin bool) {
	if !autoBegin {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.open[conn] = true
}

// ExecuteOne implements adapter.Adapter.
func (f *FakeAdapter) ExecuteOne(_ context.Context, conn, sql string, autoBegin bool) (adapter.Result, error) {
	f.record(Call{Method: "ExecuteOne", Conn: conn, SQL: sql, AutoBegin: autoBegin})
	f.autoBegin(conn, autoBegin)

	status := adapter.StatementStatus(sql, -1)
	if f.ExecHook != nil {
		override, err := f.ExecHook(conn, sql)
		if err != nil {
			return adapter.Result{}, err
		}
		if override != "" {
			status = override
		}
	}
	return adapter.Result{Status: status, RowsAffected: -1}, nil
}

// ExecuteAndFetch implements adapter.Adapter.
func (f *FakeAdapter) ExecuteAndFetch(_ context.Context, conn, sql string, autoBegin bool) (adapter.Result, *adapter.Table, error) {
	f.record(Call{Method: "ExecuteAndFetch", Conn: conn, SQL: sql, AutoBegin: autoBegin})
	f.autoBegin(conn, autoBegin)

	table := &core.Table{}
	if f.FetchHook != nil {
		t, err := f.FetchHook(conn, sql)
		if err != nil {
			return adapter.Result{}, nil, err
		}
		table = t
	}
	return adapter.Result{Status: fmt.Sprintf("SELECT %d", table.NumRows()), RowsAffected: int64(table.NumRows())}, table, nil
}

// ReleaseConnection implements adapter.Adapter.
func (f *FakeAdapter) ReleaseConnection(_ context.Context, conn string) error {
	f.record(Call{Method: "ReleaseConnection", Conn: conn})
	f.mu.Lock()
	delete(f.open, conn)
	f.mu.Unlock()
	if f.ReleaseHook != nil {
		f.ReleaseHook(conn)
	}
	return nil
}
