package adapter

import (
	"strconv"
	"strings"
)

// Dialect captures the few SQL differences the shared adapter code needs.
type Dialect struct {
	// Name is the adapter type, e.g. "duckdb"
	Name string
	// DefaultSchema is used when a relation is not qualified
	DefaultSchema string
	// NumberedPlaceholders selects $1, $2 instead of ?
	NumberedPlaceholders bool
}

// FormatPlaceholder returns the bind placeholder for the 1-based position n.
func (d Dialect) FormatPlaceholder(n int) string {
	if d.NumberedPlaceholders {
		return "$" + strconv.Itoa(n)
	}
	return "?"
}

// QuoteIdent quotes an identifier with double quotes.
func (d Dialect) QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// ParseQualifiedName splits a table reference into schema and name.
// Uses the dialect's default schema if not specified.
func ParseQualifiedName(table string, d Dialect) (schema, name string) {
	if parts := strings.Split(table, "."); len(parts) == 2 {
		return parts[0], parts[1]
	}
	return d.DefaultSchema, table
}
