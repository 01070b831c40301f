package core

// ProjectConfig holds project-level configuration.
type ProjectConfig struct {
	Name       string          `koanf:"name"`
	ModelsDir  string          `koanf:"models_dir"`
	TestsDir   string          `koanf:"tests_dir"`
	MacrosDir  string          `koanf:"macros_dir"`
	TargetPath string          `koanf:"target_path"`
	StatePath  string          `koanf:"state_path"`
	Threads    int             `koanf:"threads"`
	Strict     bool            `koanf:"strict"`
	OnRunStart []string        `koanf:"on_run_start"`
	OnRunEnd   []string        `koanf:"on_run_end"`
	Archives   []ArchiveConfig `koanf:"archives"`
	Target     *TargetConfig   `koanf:"target"`
}

// TargetConfig holds data store target configuration.
type TargetConfig struct {
	Type string `koanf:"type"` // duckdb, postgres

	// File-based databases (DuckDB)
	Database string `koanf:"database"` // file path or database name

	// Network databases
	Host     string `koanf:"host"`
	Port     int    `koanf:"port"`
	User     string `koanf:"user"`
	Password string `koanf:"password"`

	// Common
	Schema string `koanf:"schema"`

	// Additional driver-specific options
	Options map[string]string `koanf:"options"`

	// Params holds adapter-specific configuration (e.g., DuckDB extensions, settings)
	Params map[string]any `koanf:"params"`
}

// ArchiveConfig describes one archived source table.
type ArchiveConfig struct {
	Name         string `koanf:"name"`
	SourceSchema string `koanf:"source_schema"`
	SourceTable  string `koanf:"source_table"`
	TargetSchema string `koanf:"target_schema"`
	TargetTable  string `koanf:"target_table"`
	UniqueKey    string `koanf:"unique_key"`
	UpdatedAt    string `koanf:"updated_at"`
}

// AdapterConfig converts the target into the adapter connection config.
func (t *TargetConfig) AdapterConfig() AdapterConfig {
	if t == nil {
		return AdapterConfig{}
	}
	return AdapterConfig{
		Type:     t.Type,
		Path:     t.Database,
		Host:     t.Host,
		Port:     t.Port,
		Database: t.Database,
		Username: t.User,
		Password: t.Password,
		Schema:   t.Schema,
		Options:  t.Options,
		Params:   t.Params,
	}
}

// DefaultSchema returns the schema nodes build into when they name none.
func (t *TargetConfig) DefaultSchema() string {
	if t == nil || t.Schema == "" {
		return "main"
	}
	return t.Schema
}
