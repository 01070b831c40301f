package template

import "fmt"

// Phase names the step that rejected a template.
type Phase string

// Template phases.
const (
	PhaseLex    Phase = "lex"
	PhaseParse  Phase = "parse"
	PhaseRender Phase = "render"
)

// Error is a template failure located in the source.
type Error struct {
	Phase Phase
	Pos   Position
	Msg   string
	// Err is the underlying Starlark error of render failures, if any
	Err error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Pos, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Pos, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

func errorf(phase Phase, pos Position, format string, args ...any) *Error {
	return &Error{Phase: phase, Pos: pos, Msg: fmt.Sprintf(format, args...)}
}

func renderFailed(pos Position, msg string, err error) *Error {
	return &Error{Phase: PhaseRender, Pos: pos, Msg: msg, Err: err}
}

// unclosed reports a block opened by kw that never reached its end tag.
func unclosed(pos Position, kw keyword) *Error {
	return errorf(PhaseParse, pos, "'%s' block is never closed with 'end%s'", kw, kw)
}

// stray reports a continuation or end tag with no open block to attach to.
func stray(pos Position, kw keyword) *Error {
	opener := "if"
	if kw == kwEndFor {
		opener = "for"
	}
	return errorf(PhaseParse, pos, "'%s' has no opening '%s'", kw, opener)
}
