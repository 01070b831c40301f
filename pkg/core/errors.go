package core

import (
	"fmt"
	"strings"
)

// NodeError is a fault raised by bad SQL or configuration in a node itself.
// Node faults are captured into the node's outcome and the batch continues.
type NodeError interface {
	error
	// FaultNode returns the node the fault is about, if known.
	FaultNode() *Node
	// AttachNode records n as the faulting node unless one is already set.
	AttachNode(n *Node)
}

type nodeRef struct {
	Node *Node
}

func (r *nodeRef) FaultNode() *Node { return r.Node }

func (r *nodeRef) AttachNode(n *Node) {
	if r.Node == nil {
		r.Node = n
	}
}

// describe renders "<kind> <name> (<path>)" for error headers.
func (r *nodeRef) describe() string {
	if r.Node == nil {
		return ""
	}
	where := r.Node.OriginalFilePath
	if r.Node.BuildPath != "" {
		where = r.Node.BuildPath
	}
	if where == "" {
		return fmt.Sprintf(" in %s %s", r.Node.ResourceType, r.Node.Name)
	}
	return fmt.Sprintf(" in %s %s (%s)", r.Node.ResourceType, r.Node.Name, where)
}

func formatFault(kind string, r *nodeRef, msg string, cause error) string {
	var b strings.Builder
	b.WriteString(kind)
	b.WriteString(r.describe())
	b.WriteString("\n  ")
	b.WriteString(msg)
	if cause != nil {
		b.WriteString(": ")
		b.WriteString(cause.Error())
	}
	return b.String()
}

// CompilationError is raised when a node's template or references cannot be compiled.
type CompilationError struct {
	nodeRef
	Message string
	Cause   error
}

// NewCompilationError creates a compilation fault for node.
func NewCompilationError(node *Node, msg string, cause error) *CompilationError {
	return &CompilationError{nodeRef: nodeRef{Node: node}, Message: msg, Cause: cause}
}

func (e *CompilationError) Error() string {
	return formatFault("Compilation Error", &e.nodeRef, e.Message, e.Cause)
}

func (e *CompilationError) Unwrap() error { return e.Cause }

// RuntimeError is raised when a compiled node fails while executing.
type RuntimeError struct {
	nodeRef
	Message string
	Cause   error
}

// NewRuntimeError creates a runtime fault for node.
func NewRuntimeError(node *Node, msg string, cause error) *RuntimeError {
	return &RuntimeError{nodeRef: nodeRef{Node: node}, Message: msg, Cause: cause}
}

func (e *RuntimeError) Error() string {
	return formatFault("Runtime Error", &e.nodeRef, e.Message, e.Cause)
}

func (e *RuntimeError) Unwrap() error { return e.Cause }

// DatabaseError wraps an error returned by the data store driver.
type DatabaseError struct {
	nodeRef
	SQL   string
	Cause error
}

// NewDatabaseError wraps a driver error raised while running sql.
func NewDatabaseError(sql string, cause error) *DatabaseError {
	return &DatabaseError{SQL: sql, Cause: cause}
}

func (e *DatabaseError) Error() string {
	msg := "database error"
	if e.Cause != nil {
		msg = e.Cause.Error()
	}
	return formatFault("Database Error", &e.nodeRef, msg, nil)
}

func (e *DatabaseError) Unwrap() error { return e.Cause }

// MissingMaterializationError is raised when no macro implements a node's
// materialization for the active adapter type.
type MissingMaterializationError struct {
	nodeRef
	Materialization string
	AdapterType     string
}

// NewMissingMaterializationError creates the fault for node on adapterType.
func NewMissingMaterializationError(node *Node, adapterType string) *MissingMaterializationError {
	return &MissingMaterializationError{
		nodeRef:         nodeRef{Node: node},
		Materialization: node.Materialization(),
		AdapterType:     adapterType,
	}
}

func (e *MissingMaterializationError) Error() string {
	msg := fmt.Sprintf("No materialization %q was found for adapter %s!", e.Materialization, e.AdapterType)
	return formatFault("Compilation Error", &e.nodeRef, msg, nil)
}

// InternalError indicates a defect in leaprun itself rather than in the project.
type InternalError struct {
	Message string
	Cause   error
}

// NewInternalError creates an internal fault.
func NewInternalError(msg string, cause error) *InternalError {
	return &InternalError{Message: msg, Cause: cause}
}

func (e *InternalError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *InternalError) Unwrap() error { return e.Cause }

// TestShapeError is raised when a test query does not return exactly one
// row with one column. It is an authoring defect, not a node fault.
type TestShapeError struct {
	Test    string
	Rows    int
	Columns int
}

func (e *TestShapeError) Error() string {
	return fmt.Sprintf("Bad test %s: Returned %d rows and %d cols", e.Test, e.Rows, e.Columns)
}

// Compile-time interface checks.
var (
	_ NodeError = (*CompilationError)(nil)
	_ NodeError = (*RuntimeError)(nil)
	_ NodeError = (*DatabaseError)(nil)
	_ NodeError = (*MissingMaterializationError)(nil)
)
