// Package state persists leaprun run history in SQLite.
// It records one invocation per command and one node run per finished node.
package state

import "github.com/leapstack-labs/leaprun/pkg/core"

var _ core.Store = (*SQLiteStore)(nil)
