package starlark

import (
	"context"

	"go.starlark.net/starlark"
)

// LocalGoContext is the thread-local key under which callers may store a
// context.Context for Go builtins to retrieve.
const LocalGoContext = "leaprun.context"

const defaultPoolSize = 8

// ThreadPool keeps idle Starlark threads for reuse. Nodes in one wave
// compile concurrently and share a pool.
type ThreadPool struct {
	idle chan *starlark.Thread
}

// NewThreadPool returns a pool holding at most size idle threads.
func NewThreadPool(size int) *ThreadPool {
	if size <= 0 {
		size = defaultPoolSize
	}
	return &ThreadPool{idle: make(chan *starlark.Thread, size)}
}

// Get returns an idle thread renamed to name, or a fresh one.
// The name shows up in Starlark backtraces.
func (p *ThreadPool) Get(name string) *starlark.Thread {
	select {
	case th := <-p.idle:
		th.Name = name
		return th
	default:
		return newThread(name)
	}
}

// Put resets th and keeps it unless the pool is full.
func (p *ThreadPool) Put(th *starlark.Thread) {
	th.Name = ""
	th.SetLocal(LocalGoContext, nil)
	th.Uncancel()
	select {
	case p.idle <- th:
	default:
	}
}

// Size reports the number of idle threads.
func (p *ThreadPool) Size() int { return len(p.idle) }

// NewThread returns a thread bound to ctx: Go builtins can read ctx
// through LocalGoContext and cancelling ctx interrupts execution.
// Call stop once the thread is no longer used.
func NewThread(ctx context.Context, name string) (th *starlark.Thread, stop func()) {
	th = newThread(name)
	th.SetLocal(LocalGoContext, ctx)
	release := context.AfterFunc(ctx, func() {
		th.Cancel(context.Cause(ctx).Error())
	})
	return th, func() { release() }
}

func newThread(name string) *starlark.Thread {
	return &starlark.Thread{
		Name:  name,
		Print: func(*starlark.Thread, string) {},
	}
}
