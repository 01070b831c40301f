// Package writer persists compiled SQL artifacts under the target directory.
package writer

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/leapstack-labs/leaprun/pkg/core"
)

// Writer writes node artifacts to disk.
type Writer struct{}

// New creates a writer.
func New() *Writer {
	return &Writer{}
}

// Path returns where an artifact for node is written:
// <targetDir>/<subfolder>/<package>/<original_file_path>, or <name>.sql
// when the node has no source file.
func Path(node *core.Node, targetDir, subfolder string) string {
	rel := node.OriginalFilePath
	if rel == "" {
		rel = node.Name + ".sql"
	}
	return filepath.Join(targetDir, subfolder, node.Package, filepath.FromSlash(rel))
}

// Write stores content for node and returns the path written.
func (w *Writer) Write(node *core.Node, targetDir, subfolder, content string) (string, error) {
	path := Path(node, targetDir, subfolder)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("failed to create directory for %s: %w", node.UniqueID, err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil { //nolint:gosec // G306: compiled SQL is not secret
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}
	return path, nil
}
