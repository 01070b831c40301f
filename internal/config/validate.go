package config

import (
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/leapstack-labs/leaprun/pkg/adapter"
	"github.com/leapstack-labs/leaprun/pkg/core"
)

// outputFormats are the accepted values of the output setting.
var outputFormats = []string{"auto", "text", "json"}

// ValidationError reports one invalid configuration value.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid config %s: %s", e.Field, e.Message)
}

// Validate checks if the configuration is valid.
func Validate(c *Config) error {
	if !slices.Contains(outputFormats, c.Output) {
		return &ValidationError{Field: "output", Message: fmt.Sprintf("%q is not one of auto, text, json", c.Output)}
	}
	if c.Project.Threads < 1 {
		return &ValidationError{Field: "threads", Message: "must be at least 1"}
	}

	seen := make(map[string]bool, len(c.Project.Archives))
	for i, a := range c.Project.Archives {
		field := fmt.Sprintf("archives[%d]", i)
		switch {
		case a.Name == "":
			return &ValidationError{Field: field, Message: "name is required"}
		case a.SourceTable == "":
			return &ValidationError{Field: field, Message: "source_table is required"}
		case a.UniqueKey == "":
			return &ValidationError{Field: field, Message: "unique_key is required"}
		case seen[a.Name]:
			return &ValidationError{Field: field, Message: fmt.Sprintf("duplicate archive %q", a.Name)}
		}
		seen[a.Name] = true
	}

	return ValidateTarget(c.Project.Target)
}

// ValidateTarget checks that the target names a registered adapter.
func ValidateTarget(t *core.TargetConfig) error {
	if t == nil || t.Type == "" {
		return &ValidationError{Field: "target.type", Message: "target type is required"}
	}
	t.Type = strings.ToLower(t.Type)
	if !adapter.IsRegistered(t.Type) {
		return &ValidationError{
			Field:   "target.type",
			Message: fmt.Sprintf("unknown adapter type %q, available: %s", t.Type, strings.Join(adapter.ListAdapters(), ", ")),
		}
	}
	if t.Type == "postgres" && t.Database == "" {
		return &ValidationError{Field: "target.database", Message: "postgres targets need a database"}
	}
	return nil
}

// ValidateDirectories checks that the models directory exists.
func ValidateDirectories(c *Config) error {
	dir := c.Path(c.Project.ModelsDir)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return fmt.Errorf("models directory does not exist: %s\nHint: Create the directory or use --project-dir to point at the project", dir)
	}
	return nil
}
