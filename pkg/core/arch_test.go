package core_test

import (
	"go/parser"
	"go/token"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const modulePath = "github.com/leapstack-labs/leaprun/"

// Shared packages sit below everything else: core imports only the
// standard library and the adapter SPI imports only core on top of that.
func TestSharedPackageImports(t *testing.T) {
	tests := []struct {
		dir     string
		allowed []string
	}{
		{dir: ".", allowed: nil},
		{dir: "../adapter", allowed: []string{modulePath + "pkg/core"}},
	}

	for _, tt := range tests {
		t.Run(tt.dir, func(t *testing.T) {
			files, err := filepath.Glob(filepath.Join(tt.dir, "*.go"))
			require.NoError(t, err)
			require.NotEmpty(t, files)

			fset := token.NewFileSet()
			for _, path := range files {
				if strings.HasSuffix(path, "_test.go") {
					continue
				}
				f, err := parser.ParseFile(fset, path, nil, parser.ImportsOnly)
				require.NoError(t, err)

				for _, imp := range f.Imports {
					p := strings.Trim(imp.Path.Value, `"`)
					first, _, _ := strings.Cut(p, "/")
					if !strings.Contains(first, ".") {
						continue
					}
					assert.Contains(t, tt.allowed, p, "%s imports %s", path, p)
				}
			}
		})
	}
}
