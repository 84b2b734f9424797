package pipeline

import (
	"context"
	"sync"

	"go.pipelinekit.dev/flowkit/backpressure"
	"go.pipelinekit.dev/flowkit/flowcontext"
	"go.pipelinekit.dev/flowkit/pipelineerrors"
	"go.pipelinekit.dev/flowkit/pkg/lifecycle"
)

// SizeFunc estimates the byte cost of a command for the global
// ConcurrentPipeline budget; see backpressure's "caller-supplied estimate"
// policy. A nil SizeFunc charges a flat 1 byte per in-flight command.
type SizeFunc func(command interface{}) int64

// ExecutorConfig configures an Executor.
type ExecutorConfig struct {
	// Concurrency, if non-nil, is shared across every registered pipeline
	// dispatched through this Executor (spec §4.10's "maxConcurrency/
	// maxOutstanding across all registered pipelines, via C2").
	Concurrency *backpressure.Semaphore
	SizeFunc    SizeFunc
}

// Executor dispatches commands to pipelines looked up by (commandType,
// name), optionally gated by a shared backpressure.Semaphore, and supports
// a graceful Stop that drains in-flight executions (grounded on
// pkg/lifecycle.Once's Start/Stop state machine).
type Executor struct {
	registry *Registry
	cfg      ExecutorConfig

	life     *lifecycle.Once
	inflight sync.WaitGroup

	// shutdownMu guards the check-then-Add pair in Execute against Stop's
	// inflight.Wait(), so a command admitted just before shutdown is always
	// counted before Stop can observe the WaitGroup reach zero.
	shutdownMu sync.Mutex
}

// NewExecutor constructs an Executor over registry.
func NewExecutor(registry *Registry, cfg ExecutorConfig) *Executor {
	life := lifecycle.NewOnce()
	// Move straight to Running: Once.Stop on an Idle lifecycle skips its
	// callback, which would leave Stop without the drain below.
	_ = life.Start(nil)
	return &Executor{registry: registry, cfg: cfg, life: life}
}

// Execute looks up the pipeline for (commandType, name) and runs it against
// command. name may be empty, meaning "default". If a shared Concurrency
// semaphore is configured, Execute blocks (cooperatively, honoring ctx)
// until a permit is available.
func (e *Executor) Execute(ctx context.Context, commandType, name string, command interface{}) (interface{}, error) {
	p, ok := e.registry.Lookup(commandType, name)
	if !ok {
		return nil, pipelineerrors.Newf(pipelineerrors.CodeServiceUnavailable, commandType, "no pipeline registered for %s/%s", commandType, name)
	}

	e.shutdownMu.Lock()
	if e.life.State() >= lifecycle.Stopping {
		e.shutdownMu.Unlock()
		return nil, pipelineerrors.Newf(pipelineerrors.CodeServiceUnavailable, commandType, "executor is shutting down")
	}
	e.inflight.Add(1)
	e.shutdownMu.Unlock()
	defer e.inflight.Done()

	if e.cfg.Concurrency != nil {
		size := int64(1)
		if e.cfg.SizeFunc != nil {
			size = e.cfg.SizeFunc(command)
		}
		tok, err := e.cfg.Concurrency.Acquire(ctx, size, backpressure.Normal)
		if err != nil {
			return nil, err
		}
		defer tok.Release()
	}

	fctx := flowcontext.New(ctx)
	return p.Execute(fctx, command)
}

// Stop prevents new executions from starting and blocks until every
// in-flight Execute call returns or ctx is done, whichever comes first.
func (e *Executor) Stop(ctx context.Context) error {
	return e.life.Stop(func() error {
		// life's CAS to Stopping has already happened by the time this
		// callback runs, so any Execute that wins the lock below sees it
		// and bails before reaching inflight.Add(1); any Execute that
		// already committed Add(1) is guaranteed visible to Wait().
		e.shutdownMu.Lock()
		e.shutdownMu.Unlock()

		done := make(chan struct{})
		go func() {
			e.inflight.Wait()
			close(done)
		}()
		select {
		case <-done:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
}
