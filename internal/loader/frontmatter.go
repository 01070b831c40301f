package loader

import (
	"fmt"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/leapstack-labs/leaprun/pkg/core"
)

// FrontmatterConfig represents parsed YAML frontmatter.
// Unknown fields cause parse errors (use Meta for extensions).
type FrontmatterConfig struct {
	Name         string         `yaml:"name"`
	Description  string         `yaml:"description"`
	Materialized string         `yaml:"materialized"`
	UniqueKey    string         `yaml:"unique_key"`
	Schema       string         `yaml:"schema"`
	Tags         []string       `yaml:"tags"`
	Enabled      *bool          `yaml:"enabled"`
	Tests        []TestConfig   `yaml:"tests"`
	Meta         map[string]any `yaml:"meta"` // Extension point for custom fields
}

// TestConfig declares schema tests on a model's columns.
type TestConfig struct {
	Unique         []string              `yaml:"unique,omitempty"`
	NotNull        []string              `yaml:"not_null,omitempty"`
	AcceptedValues *AcceptedValuesConfig `yaml:"accepted_values,omitempty"`
}

// AcceptedValuesConfig restricts a column to a fixed set of values.
type AcceptedValuesConfig struct {
	Column string   `yaml:"column"`
	Values []string `yaml:"values"`
}

// FrontmatterResult holds the result of frontmatter extraction.
type FrontmatterResult struct {
	Config  *FrontmatterConfig
	SQL     string // SQL content after frontmatter
	HasYAML bool   // Whether frontmatter was found
}

// frontmatterPattern matches /*--- ... ---*/ blocks
var frontmatterPattern = regexp.MustCompile(`(?s)^\s*/\*---\s*\n(.*?)\s*---\*/`)

var knownFields = map[string]bool{
	"name":         true,
	"description":  true,
	"materialized": true,
	"unique_key":   true,
	"schema":       true,
	"tags":         true,
	"enabled":      true,
	"tests":        true,
	"meta":         true,
}

// ExtractFrontmatter extracts YAML frontmatter from SQL content.
// Returns the parsed config, remaining SQL, and any error.
func ExtractFrontmatter(content string) (*FrontmatterResult, error) {
	result := &FrontmatterResult{
		Config: &FrontmatterConfig{},
		SQL:    content,
	}

	matches := frontmatterPattern.FindStringSubmatch(content)
	if len(matches) < 2 {
		return result, nil
	}

	result.HasYAML = true
	result.SQL = strings.TrimSpace(frontmatterPattern.ReplaceAllString(content, ""))

	config, err := parseFrontmatterYAML(matches[1])
	if err != nil {
		return nil, err
	}
	result.Config = config
	return result, nil
}

// parseFrontmatterYAML parses YAML content with strict field validation.
func parseFrontmatterYAML(yamlContent string) (*FrontmatterConfig, error) {
	// First, decode into a map to check for unknown fields
	var rawMap map[string]any
	if err := yaml.Unmarshal([]byte(yamlContent), &rawMap); err != nil {
		return nil, &FrontmatterParseError{
			Message: fmt.Sprintf("invalid YAML: %v", err),
		}
	}
	for field := range rawMap {
		if !knownFields[field] {
			return nil, &UnknownFieldError{Field: field}
		}
	}

	var config FrontmatterConfig
	if err := yaml.Unmarshal([]byte(yamlContent), &config); err != nil {
		return nil, &FrontmatterParseError{
			Message: fmt.Sprintf("failed to parse frontmatter: %v", err),
		}
	}

	if config.Materialized != "" && !core.IsValidModelMaterialization(config.Materialized) {
		return nil, &FrontmatterParseError{
			Message: fmt.Sprintf("invalid materialized value: %q, must be one of: table, view, incremental, ephemeral", config.Materialized),
		}
	}
	for _, t := range config.Tests {
		if t.AcceptedValues != nil && (t.AcceptedValues.Column == "" || len(t.AcceptedValues.Values) == 0) {
			return nil, &FrontmatterParseError{Message: "accepted_values needs a column and at least one value"}
		}
	}
	return &config, nil
}

// ApplyDefaults fills the name from the file name and the materialization
// and schema from the project.
func (c *FrontmatterConfig) ApplyDefaults(filename, defaultSchema string) {
	if c.Name == "" {
		c.Name = strings.TrimSuffix(filename, ".sql")
	}
	if c.Materialized == "" {
		c.Materialized = core.MaterializationTable
	}
	if c.Schema == "" {
		c.Schema = defaultSchema
	}
}

// IsEnabled reports whether the node is enabled; nodes are enabled unless switched off.
func (c *FrontmatterConfig) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

// FrontmatterParseError represents a frontmatter parsing error.
type FrontmatterParseError struct {
	File    string
	Line    int
	Message string
}

func (e *FrontmatterParseError) Error() string {
	if e.File != "" {
		if e.Line > 0 {
			return fmt.Sprintf("%s:%d: %s", e.File, e.Line, e.Message)
		}
		return fmt.Sprintf("%s: %s", e.File, e.Message)
	}
	return e.Message
}

// UnknownFieldError represents an error for unknown frontmatter fields.
type UnknownFieldError struct {
	File  string
	Field string
}

func (e *UnknownFieldError) Error() string {
	msg := fmt.Sprintf("unknown field %q in frontmatter, use \"meta\" field for custom fields", e.Field)
	if e.File != "" {
		return fmt.Sprintf("%s: %s", e.File, msg)
	}
	return msg
}
