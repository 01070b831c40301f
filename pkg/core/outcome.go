package core

import (
	"strconv"
	"time"
)

// StatusError is the status recorded on outcomes whose attempt raised a fault.
const StatusError = "ERROR"

// OutcomeState is the single explicit classification of a RunOutcome.
type OutcomeState string

// Outcome states.
const (
	StateSuccess OutcomeState = "success"
	StateFailed  OutcomeState = "failed"
	StateErrored OutcomeState = "errored"
	StateSkipped OutcomeState = "skipped"
)

// RunOutcome is the result of one execution attempt of a node.
// Outcomes are values; they are built fresh per attempt and not changed afterwards.
type RunOutcome struct {
	// Node is the node that ran; never nil, even on failure
	Node *Node
	// Error is the captured fault message, empty when none
	Error string
	// Skip is true when the node was not attempted
	Skip bool
	// Status is free-form: an adapter statement tag, ERROR, or a test failure count
	Status string
	// Failures is the numeric result of a test
	Failures int64
	// Fail is true when a test reported failing rows
	Fail bool
	// ExecutionTime covers compile and execute
	ExecutionTime time.Duration
}

// NewOutcome returns a success-shaped outcome for node.
func NewOutcome(node *Node, status string) RunOutcome {
	return RunOutcome{Node: node, Status: status}
}

// SkippedOutcome returns the outcome of a node that was not attempted.
func SkippedOutcome(node *Node) RunOutcome {
	return RunOutcome{Node: node, Skip: true}
}

// ErroredOutcome returns the outcome of an attempt that raised a catchable fault.
func ErroredOutcome(node *Node, err error) RunOutcome {
	return RunOutcome{Node: node, Error: err.Error(), Status: StatusError}
}

// TestOutcome returns the outcome of a test that found failures failing rows.
func TestOutcome(node *Node, failures int64) RunOutcome {
	return RunOutcome{
		Node:     node,
		Status:   strconv.FormatInt(failures, 10),
		Failures: failures,
		Fail:     failures > 0,
	}
}

// WithExecutionTime returns a copy of o carrying d, clamped at zero.
func (o RunOutcome) WithExecutionTime(d time.Duration) RunOutcome {
	if d < 0 {
		d = 0
	}
	o.ExecutionTime = d
	return o
}

// State classifies the outcome. Precedence is skipped, errored, failed, success.
func (o RunOutcome) State() OutcomeState {
	switch {
	case o.Skip:
		return StateSkipped
	case o.Error != "":
		return StateErrored
	case o.Fail:
		return StateFailed
	default:
		return StateSuccess
	}
}

// Errored reports whether the attempt raised a fault.
func (o RunOutcome) Errored() bool {
	return o.State() == StateErrored
}

// Skipped reports whether the node was skipped.
func (o RunOutcome) Skipped() bool {
	return o.Skip
}

// Failed reports whether a test found failing rows.
func (o RunOutcome) Failed() bool {
	return o.State() == StateFailed
}
