package config

import "github.com/leapstack-labs/leaprun/pkg/core"

// Default configuration values.
const (
	DefaultModelsDir  = "models"
	DefaultTestsDir   = "tests"
	DefaultMacrosDir  = "macros"
	DefaultTargetPath = "target"
	DefaultStatePath  = ".leaprun/state.db"
	DefaultThreads    = 1
	DefaultTargetType = "duckdb"
	DefaultOutput     = "auto"
)

// Config file names, in lookup order.
const (
	ConfigFileName    = "leaprun.yaml"
	ConfigFileNameAlt = "leaprun.yml"
)

// EnvPrefix prefixes every environment variable the loader reads.
const EnvPrefix = "LEAPRUN_"

func defaults() map[string]any {
	return map[string]any{
		"models_dir":  DefaultModelsDir,
		"tests_dir":   DefaultTestsDir,
		"macros_dir":  DefaultMacrosDir,
		"target_path": DefaultTargetPath,
		"state_path":  DefaultStatePath,
		"threads":     DefaultThreads,
		"strict":      false,
		"verbose":     false,
		"output":      DefaultOutput,
	}
}

// ApplyDefaults fills the unset fields of c.
func ApplyDefaults(c *core.ProjectConfig) {
	if c == nil {
		return
	}
	if c.ModelsDir == "" {
		c.ModelsDir = DefaultModelsDir
	}
	if c.TestsDir == "" {
		c.TestsDir = DefaultTestsDir
	}
	if c.MacrosDir == "" {
		c.MacrosDir = DefaultMacrosDir
	}
	if c.TargetPath == "" {
		c.TargetPath = DefaultTargetPath
	}
	if c.StatePath == "" {
		c.StatePath = DefaultStatePath
	}
	if c.Threads < 1 {
		c.Threads = DefaultThreads
	}
	if c.Target == nil {
		c.Target = &core.TargetConfig{}
	}
	ApplyTargetDefaults(c.Target)
}

// ApplyTargetDefaults applies default values to a TargetConfig based on the target type.
func ApplyTargetDefaults(t *core.TargetConfig) {
	if t == nil {
		return
	}
	if t.Type == "" {
		t.Type = DefaultTargetType
	}
	if t.Schema == "" {
		t.Schema = DefaultSchemaForType(t.Type)
	}

	switch t.Type {
	case "duckdb":
		if t.Database == "" {
			t.Database = ":memory:"
		}
	case "postgres":
		if t.Port == 0 {
			t.Port = 5432
		}
		if t.Host == "" {
			t.Host = "localhost"
		}
	}
}

// DefaultSchemaForType returns the schema an adapter builds into by default.
func DefaultSchemaForType(adapterType string) string {
	if adapterType == "postgres" {
		return "public"
	}
	return "main"
}
