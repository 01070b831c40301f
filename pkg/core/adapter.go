package core

// AdapterConfig holds configuration for connecting to a data store.
type AdapterConfig struct {
	Type     string
	Path     string
	Host     string
	Port     int
	Database string
	Username string
	Password string
	Schema   string
	Options  map[string]string
	Params   map[string]any
}

// Column represents a column in a data store table.
type Column struct {
	Name     string
	Type     string
	Nullable bool
	Position int
}

// Row is one fetched result row, in column order.
type Row []any

// Table is a fetched result set.
type Table struct {
	Columns []string
	Rows    []Row
}

// NumRows returns the number of rows in the table.
func (t *Table) NumRows() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// NumColumns returns the number of columns in the table.
func (t *Table) NumColumns() int {
	if t == nil {
		return 0
	}
	return len(t.Columns)
}
