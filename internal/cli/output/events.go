package output

// RunEvent is one JSON line emitted while a command runs.
type RunEvent struct {
	Event       string `json:"event"` // node_start, node_skip, node_complete, run_complete
	Timestamp   string `json:"timestamp"`
	Index       int    `json:"index,omitempty"`
	Total       int    `json:"total,omitempty"`
	Node        string `json:"node,omitempty"`
	Description string `json:"description,omitempty"`
	State       string `json:"state,omitempty"`
	Status      string `json:"status,omitempty"`
	Failures    int64  `json:"failures,omitempty"`
	Error       string `json:"error,omitempty"`
	ExecutionMS int64  `json:"execution_ms,omitempty"`
	Summary     string `json:"summary,omitempty"`
	TotalMS     int64  `json:"total_ms,omitempty"`
}

// Event names.
const (
	EventNodeStart    = "node_start"
	EventNodeSkip     = "node_skip"
	EventNodeComplete = "node_complete"
	EventRunComplete  = "run_complete"
)
