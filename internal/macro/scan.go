package macro

import (
	"strings"

	"go.starlark.net/syntax"
)

// Definition is a public top-level function of a macro file.
type Definition struct {
	Name string
	Line int
}

// Scan parses a macro file without executing it and returns its public
// top-level functions in source order. Functions nested in other
// statements are not part of the namespace and are ignored.
func Scan(filename string, content []byte) ([]Definition, error) {
	f, err := (&syntax.FileOptions{}).Parse(filename, content, 0)
	if err != nil {
		return nil, &LoadError{File: filename, Message: "syntax error", Cause: err}
	}

	var defs []Definition
	for _, stmt := range f.Stmts {
		def, ok := stmt.(*syntax.DefStmt)
		if !ok || strings.HasPrefix(def.Name.Name, "_") {
			continue
		}
		defs = append(defs, Definition{Name: def.Name.Name, Line: int(def.Name.NamePos.Line)})
	}
	return defs, nil
}
