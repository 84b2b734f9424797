// Package flowcontext implements the per-request container (spec §4.1):
// metadata, a typed key/value store safe for concurrent access, and an
// event sink. A Context is created at submit time, passed by shared
// reference down the middleware chain, and discarded when the request
// returns; no component may retain one past that lifetime.
package flowcontext

import (
	"context"
	"sync"
)

// Key identifies a slot in a Context's typed store. Two keys are considered
// the same slot iff they compare equal, so callers typically define keys as
// unexported, package-scoped values of a named type to avoid collisions
// across packages.
type Key interface{}

// Context is the per-request container threaded through a middleware chain.
// Reads never fail; a read of an unset key reports absence rather than
// erroring. Writes are last-writer-wins, made safe for concurrent callers by
// an internal mutex (spec §3's "external synchronization equivalent to a
// mutex" invariant).
type Context struct {
	ctx context.Context

	mu       *sync.Mutex // shared with copies made by WithStd, like store
	store    map[Key]interface{}
	metadata Metadata
	sink     EventSink
}

// Option configures a new Context.
type Option func(*Context)

// WithMetadata sets the Context's metadata.
func WithMetadata(m Metadata) Option {
	return func(c *Context) { c.metadata = m }
}

// WithEventSink sets the Context's event sink. Without this option, events
// are discarded.
func WithEventSink(sink EventSink) Option {
	return func(c *Context) { c.sink = sink }
}

// New constructs a Context wrapping the given standard context.Context,
// which carries cancellation and deadlines for the request's suspension
// points (spec §5).
func New(ctx context.Context, opts ...Option) *Context {
	if ctx == nil {
		ctx = context.Background()
	}
	c := &Context{
		ctx:   ctx,
		mu:    new(sync.Mutex),
		store: make(map[Key]interface{}),
		sink:  NopEventSink,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Std returns the underlying standard context.Context, for passing to
// context-aware APIs (I/O, cancellation checks).
func (c *Context) Std() context.Context {
	return c.ctx
}

// WithStd returns a shallow copy of c whose standard context is replaced.
// Used by middlewares that derive a child context (e.g. to attach a
// deadline) without losing the typed store or metadata.
func (c *Context) WithStd(ctx context.Context) *Context {
	c.mu.Lock()
	defer c.mu.Unlock()
	cp := &Context{
		ctx:      ctx,
		mu:       c.mu,
		store:    c.store,
		metadata: c.metadata,
		sink:     c.sink,
	}
	return cp
}

// Metadata returns the request's metadata.
func (c *Context) Metadata() Metadata {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.metadata
}

// Emit forwards an event to the configured EventSink.
func (c *Context) Emit(name string, properties map[string]interface{}) {
	c.mu.Lock()
	sink := c.sink
	c.mu.Unlock()
	sink.Emit(name, properties)
}

// get returns the value stored under key, or ok=false if nothing has been
// set. Callers typically wrap this with a typed helper; see Get[V].
func (c *Context) get(key Key) (interface{}, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.store[key]
	return v, ok
}

// set stores value under key, overwriting any previous value (last-writer
// wins).
func (c *Context) set(key Key, value interface{}) {
	c.mu.Lock()
	c.store[key] = value
	c.mu.Unlock()
}

// Get retrieves a typed value previously stored under key. If the key is
// absent, or the stored value is not assignable to V, ok is false and the
// zero value of V is returned.
func Get[V any](c *Context, key Key) (V, bool) {
	var zero V
	raw, ok := c.get(key)
	if !ok {
		return zero, false
	}
	v, ok := raw.(V)
	if !ok {
		return zero, false
	}
	return v, true
}

// Set stores a typed value under key, satisfying the round-trip law from
// spec §8: Get(Set(k, v)) == v within the same chain execution.
func Set[V any](c *Context, key Key, value V) {
	c.set(key, value)
}
