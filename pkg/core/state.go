package core

import "time"

// Store defines the run-history persistence operations.
type Store interface {
	Open(path string) error
	Close() error
	InitSchema() error

	// Invocation operations
	CreateInvocation(command string) (*Invocation, error)
	GetInvocation(id string) (*Invocation, error)
	CompleteInvocation(id string, status InvocationStatus, errMsg string) error
	GetLatestInvocation() (*Invocation, error)

	// Node run operations
	RecordNodeRun(run *NodeRun) error
	GetNodeRuns(invocationID string) ([]*NodeRun, error)
	GetLatestNodeRun(nodeID string) (*NodeRun, error)
}

// InvocationStatus represents the status of one leaprun invocation.
type InvocationStatus string

// Invocation status constants.
const (
	InvocationRunning   InvocationStatus = "running"
	InvocationCompleted InvocationStatus = "completed"
	InvocationFailed    InvocationStatus = "failed"
)

// Invocation is one execution of a command against the project.
type Invocation struct {
	ID          string
	Command     string
	Status      InvocationStatus
	StartedAt   time.Time
	CompletedAt *time.Time
	Error       string
}

// NodeRun is the persisted outcome of one node within an invocation.
type NodeRun struct {
	ID              string
	InvocationID    string
	NodeID          string
	State           OutcomeState
	Status          string
	Materialization string
	Failures        int64
	Error           string
	ExecutionMS     int64
	RecordedAt      time.Time
}
