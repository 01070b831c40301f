// Package macro executes project macro files and exposes them to templates.
// Each .star file becomes a namespace named after the file, e.g.
// macros/money.star is called as money.cents(...).
package macro

import (
	"fmt"
	"path/filepath"
	"strings"

	"go.starlark.net/starlark"
	"go.starlark.net/syntax"
)

// LoadedModule is an executed macro file.
type LoadedModule struct {
	// Namespace is the file name without .star
	Namespace string
	// Path is the file the source came from
	Path string
	// Exports holds the frozen top-level values whose names do not start with _
	Exports starlark.StringDict
}

// LoadSource executes Starlark source as the macro namespace and extracts its exports.
// Exports are frozen so worker threads can share them.
func LoadSource(namespace, path string, content []byte) (*LoadedModule, error) {
	if err := validateNamespace(namespace); err != nil {
		return nil, &LoadError{File: path, Message: err.Error()}
	}

	thread := &starlark.Thread{
		Name:  "load:" + namespace,
		Print: func(*starlark.Thread, string) {},
	}
	globals, err := starlark.ExecFileOptions(&syntax.FileOptions{}, thread, path, content, nil)
	if err != nil {
		return nil, &LoadError{File: path, Message: fmt.Sprintf("Starlark execution error: %v", err), Cause: err}
	}

	exports := make(starlark.StringDict, len(globals))
	for name, value := range globals {
		if !strings.HasPrefix(name, "_") {
			exports[name] = value
		}
	}
	exports.Freeze()

	return &LoadedModule{Namespace: namespace, Path: path, Exports: exports}, nil
}

// validateNamespace requires an identifier so the namespace can be used as
// a template global.
func validateNamespace(name string) error {
	if name == "" {
		return fmt.Errorf("namespace cannot be empty")
	}
	for i, r := range name {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case i > 0 && r >= '0' && r <= '9':
		case i == 0:
			return fmt.Errorf("namespace must start with letter or underscore: %s", name)
		default:
			return fmt.Errorf("namespace contains invalid character: %s", name)
		}
	}
	return nil
}

// LoadError is returned when a macro file cannot be executed.
type LoadError struct {
	File    string
	Message string
	Cause   error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("macros/%s: %s", filepath.Base(e.File), e.Message)
}

func (e *LoadError) Unwrap() error { return e.Cause }
