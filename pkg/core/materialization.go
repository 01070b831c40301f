package core

// Materialization constants for model and archive nodes.
const (
	MaterializationTable       = "table"
	MaterializationView        = "view"
	MaterializationIncremental = "incremental"
	MaterializationEphemeral   = "ephemeral"
	MaterializationArchive     = "archive"
)

// IsValidModelMaterialization reports whether m can be declared on a model.
func IsValidModelMaterialization(m string) bool {
	switch m {
	case MaterializationTable, MaterializationView, MaterializationIncremental, MaterializationEphemeral:
		return true
	}
	return false
}
