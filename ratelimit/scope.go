package ratelimit

import "sync"

const globalKey = "__global__"

// KeyFunc extracts the scoping key a Scoped limiter keys instances by.
type KeyFunc func(command interface{}) string

// Global scopes every call to a single shared Limiter.
func Global() KeyFunc {
	return func(interface{}) string { return globalKey }
}

// PerUser scopes calls by a user ID extracted from the command via extract.
func PerUser(extract func(command interface{}) string) KeyFunc {
	return func(command interface{}) string { return "user:" + extract(command) }
}

// PerCommand scopes calls by the command's type identifier.
func PerCommand(typeID func(command interface{}) string) KeyFunc {
	return func(command interface{}) string { return "command:" + typeID(command) }
}

// Custom scopes calls by an arbitrary key function.
func Custom(fn KeyFunc) KeyFunc { return fn }

// Scoped lazily instantiates one Limiter per key, per spec §4.8's Scope
// concept, sharing a single factory across every distinct key it observes.
type Scoped struct {
	keyFunc KeyFunc
	factory func() Limiter

	mu        sync.Mutex
	instances map[string]Limiter
}

// NewScoped constructs a Scoped limiter. factory is invoked once per
// distinct key the first time that key is seen.
func NewScoped(keyFunc KeyFunc, factory func() Limiter) *Scoped {
	return &Scoped{keyFunc: keyFunc, factory: factory, instances: make(map[string]Limiter)}
}

// Allow resolves command to a key and admits against that key's Limiter.
func (s *Scoped) Allow(command interface{}) Decision {
	key := s.keyFunc(command)

	s.mu.Lock()
	limiter, ok := s.instances[key]
	if !ok {
		limiter = s.factory()
		s.instances[key] = limiter
	}
	s.mu.Unlock()

	return limiter.Allow()
}
