// Package flowmiddleware composes middlewares into a nested continuation
// chain, the same shape as the teacher's api/middleware.ApplyUnaryInbound:
// each middleware wraps the handler in front of it, and the innermost
// continuation is the actual handler.
package flowmiddleware

import (
	"sort"
	"sync/atomic"

	"go.pipelinekit.dev/flowkit/flowcontext"
)

// Handler is the terminal or continuation step of a middleware chain.
type Handler func(ctx *flowcontext.Context, command interface{}) (interface{}, error)

// Middleware is one node in the chain. Implementations are expected to be
// stateless; any state lives in collaborator objects they hold a reference
// to, not in fields mutated during Execute.
type Middleware interface {
	Priority() Priority
	Execute(ctx *flowcontext.Context, command interface{}, next Handler) (interface{}, error)
}

// Func adapts a plain function into a Middleware at a fixed priority.
type Func struct {
	Pri Priority
	Fn  func(ctx *flowcontext.Context, command interface{}, next Handler) (interface{}, error)
}

func (f Func) Priority() Priority { return f.Pri }

func (f Func) Execute(ctx *flowcontext.Context, command interface{}, next Handler) (interface{}, error) {
	return f.Fn(ctx, command, next)
}

// Compose sorts middlewares by Priority (stable, so equal-priority
// middlewares keep their input order) and builds a single Handler that
// runs them in order, finally invoking handler. An empty middleware list
// returns handler unwrapped, avoiding any per-call allocation.
func Compose(handler Handler, middlewares ...Middleware) Handler {
	if len(middlewares) == 0 {
		return handler
	}

	sorted := make([]Middleware, len(middlewares))
	copy(sorted, middlewares)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Priority() < sorted[j].Priority()
	})

	next := handler
	for i := len(sorted) - 1; i >= 0; i-- {
		next = wrap(sorted[i], next)
	}
	return next
}

// wrap builds the Handler for one middleware, guarding against it calling
// inner more than once (spec §4.9's debug-mode call-count contract; kept
// on unconditionally since the counter is cheap relative to a pipeline
// round-trip).
func wrap(m Middleware, inner Handler) Handler {
	return func(ctx *flowcontext.Context, command interface{}) (interface{}, error) {
		var calls int32
		guarded := func(ctx *flowcontext.Context, command interface{}) (interface{}, error) {
			if atomic.AddInt32(&calls, 1) > 1 {
				panic("flowmiddleware: next called more than once by " + m.Priority().String() + " middleware")
			}
			return inner(ctx, command)
		}
		return m.Execute(ctx, command, guarded)
	}
}
