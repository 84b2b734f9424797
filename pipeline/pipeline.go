// Package pipeline compiles a middleware chain and a terminal handler into
// a reusable Pipeline, and registers pipelines by (command type, name) the
// way the teacher's dispatcher registers procedures by (service, procedure)
// in router.go.
package pipeline

import (
	"go.pipelinekit.dev/flowkit/flowcontext"
	"go.pipelinekit.dev/flowkit/flowmiddleware"
)

// Pipeline is a compiled middleware chain ending in a handler.
type Pipeline struct {
	chain flowmiddleware.Handler
}

// New compiles handler and middlewares, in priority order, into a Pipeline.
func New(handler flowmiddleware.Handler, middlewares ...flowmiddleware.Middleware) *Pipeline {
	return &Pipeline{chain: flowmiddleware.Compose(handler, middlewares...)}
}

// Execute runs the compiled chain against command.
func (p *Pipeline) Execute(ctx *flowcontext.Context, command interface{}) (interface{}, error) {
	return p.chain(ctx, command)
}
