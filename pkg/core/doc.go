// Package core defines the shared language of the leaprun system.
//
// This package contains:
//   - Graph entities (Node, NodeConfig, Macro, Relation)
//   - Execution records (RunOutcome, OutcomeState, Invocation, NodeRun)
//   - Fault types shared by the compiler, materializations and adapters
//   - Configuration types (ProjectConfig, TargetConfig, AdapterConfig)
//
// The Golden Rule: pkg/core imports ONLY stdlib.
// All other packages depend on core, not the reverse.
package core
