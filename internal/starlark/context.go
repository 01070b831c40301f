package starlark

import (
	"fmt"
	"maps"

	"go.starlark.net/starlark"
	"go.starlark.net/syntax"
)

// ExecutionContext holds the globals one template is rendered against.
// Globals are fixed at construction, so a context may be shared by
// goroutines as long as each evaluation gets its own thread.
type ExecutionContext struct {
	Config starlark.Value
	Env    string
	Target *TargetInfo
	This   *ThisInfo

	// Macros maps a namespace to the module struct of its file.
	Macros starlark.StringDict

	// Builtins are extra functions and values bound by the caller,
	// e.g. ref() at compile time or already_exists() at run time.
	Builtins starlark.StringDict

	pool    *ThreadPool
	globals starlark.StringDict
}

// ContextOption configures an ExecutionContext.
type ContextOption func(*ExecutionContext)

func WithMacros(macros starlark.StringDict) ContextOption {
	return func(ctx *ExecutionContext) { ctx.Macros = macros }
}

func WithBuiltins(builtins starlark.StringDict) ContextOption {
	return func(ctx *ExecutionContext) { ctx.Builtins = builtins }
}

// WithThreadPool reuses threads from pool instead of allocating one per evaluation.
func WithThreadPool(pool *ThreadPool) ContextOption {
	return func(ctx *ExecutionContext) { ctx.pool = pool }
}

// NewExecutionContext builds the globals for one template. Builtins
// shadow macros and the predeclared names shadow both.
func NewExecutionContext(config starlark.Value, env string, target *TargetInfo, this *ThisInfo, opts ...ContextOption) *ExecutionContext {
	ctx := &ExecutionContext{Config: config, Env: env, Target: target, This: this}
	for _, opt := range opts {
		opt(ctx)
	}

	globals := make(starlark.StringDict, len(ctx.Macros)+len(ctx.Builtins)+4)
	maps.Copy(globals, ctx.Macros)
	maps.Copy(globals, ctx.Builtins)
	maps.Copy(globals, Predeclared(ctx.Config, ctx.Env, ctx.Target, ctx.This))
	ctx.globals = globals
	return ctx
}

// Globals returns the combined globals. Callers must not modify it.
func (ctx *ExecutionContext) Globals() starlark.StringDict {
	return ctx.globals
}

// Eval evaluates the expression of a {{ }} block. Locals, such as loop
// variables, take precedence over globals.
func (ctx *ExecutionContext) Eval(expr, file string, line int, locals starlark.StringDict) (starlark.Value, error) {
	thread := ctx.acquireThread(file)
	defer ctx.releaseThread(thread)

	env := ctx.globals
	if len(locals) > 0 {
		env = make(starlark.StringDict, len(ctx.globals)+len(locals))
		maps.Copy(env, ctx.globals)
		maps.Copy(env, locals)
	}

	v, err := starlark.EvalOptions(&syntax.FileOptions{}, thread, file, expr, env)
	if err != nil {
		return nil, &EvalError{File: file, Line: line, Expr: expr, Message: err.Error(), Cause: err}
	}
	return v, nil
}

// EvalString is Eval followed by ValueToSQL.
func (ctx *ExecutionContext) EvalString(expr, file string, line int, locals starlark.StringDict) (string, error) {
	v, err := ctx.Eval(expr, file, line, locals)
	if err != nil {
		return "", err
	}
	return ValueToSQL(v), nil
}

// ValueToSQL renders a value as template output: strings unquoted,
// None as nothing, everything else in its Starlark form.
func ValueToSQL(v starlark.Value) string {
	switch val := v.(type) {
	case starlark.String:
		return string(val)
	case starlark.NoneType:
		return ""
	default:
		return v.String()
	}
}

func (ctx *ExecutionContext) acquireThread(name string) *starlark.Thread {
	if ctx.pool != nil {
		return ctx.pool.Get(name)
	}
	return newThread(name)
}

func (ctx *ExecutionContext) releaseThread(thread *starlark.Thread) {
	if ctx.pool != nil {
		ctx.pool.Put(thread)
	}
}

// EvalError reports a failed template expression.
type EvalError struct {
	File    string
	Line    int
	Expr    string
	Message string
	// Cause is the Starlark error; a Go builtin's error is reachable through it.
	Cause error
}

func (e *EvalError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s:%d: error evaluating %q: %s", e.File, e.Line, e.Expr, e.Message)
	}
	return fmt.Sprintf("%s: error evaluating %q: %s", e.File, e.Expr, e.Message)
}

func (e *EvalError) Unwrap() error { return e.Cause }
