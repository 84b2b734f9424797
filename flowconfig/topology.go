// Package flowconfig loads a pipeline topology — middleware ordering,
// per-command-type resilience policies, and bulkhead partition tables —
// from YAML, using the same decode-into-struct idiom the teacher's
// yarpcconfig uses for transports and outbounds: unmarshal to a generic
// map first, then mapdecode into typed structs tagged `config:"..."`.
package flowconfig

import "time"

// Topology is the root of a pipeline configuration document.
type Topology struct {
	Middleware []MiddlewareEntry        `config:"middleware"`
	Commands   map[string]CommandPolicy `config:"commands"`
	Partitions []PartitionEntry         `config:"partitions"`
	Health     *HealthPolicy            `config:"health"`
}

// HealthPolicy configures the single health.Tracker shared by every command
// type that opts in via CommandPolicy.Health.
type HealthPolicy struct {
	WindowSize            int           `config:"windowSize"`
	MinRequests           int           `config:"minRequests"`
	SuccessRateThreshold  float64       `config:"successRateThreshold"`
	ResponseTimeThreshold time.Duration `config:"responseTimeThreshold"`
	FailureThreshold      int           `config:"failureThreshold"`
	SuccessThreshold      int           `config:"successThreshold"`
}

// MiddlewareEntry names one middleware to include in the composed chain.
// Args carries the middleware's own decoded configuration. Load only checks
// that Name is non-empty; Builder.Build does not read the Middleware list,
// and the wired chain comes from each CommandPolicy instead.
type MiddlewareEntry struct {
	Name string                 `config:"name"`
	Args map[string]interface{} `config:"args"`
}

// CommandPolicy bundles every resilience policy that can be declared for
// one command type. Every field is optional; a zero value means "this
// command type does not use this policy" rather than "use the zero
// configuration", so the builder only wires what is present.
type CommandPolicy struct {
	Timeout        *TimeoutPolicy        `config:"timeout"`
	Retry          *RetryPolicy          `config:"retry"`
	CircuitBreaker *CircuitBreakerPolicy `config:"circuitBreaker"`
	RateLimit      *RateLimitPolicy      `config:"rateLimit"`
	Bulkhead       *BulkheadUsagePolicy  `config:"bulkhead"`
	Health         *HealthUsagePolicy    `config:"health"`
}

// HealthUsagePolicy opts a command type into the topology's shared
// health.Tracker declared at Topology.Health.
type HealthUsagePolicy struct {
	Enabled bool `config:"enabled"`
}

// BulkheadUsagePolicy opts a command type into the topology's shared
// partition table declared at Topology.Partitions.
type BulkheadUsagePolicy struct {
	Enabled bool `config:"enabled"`
}

// TimeoutPolicy configures timeout.Config for one command type.
type TimeoutPolicy struct {
	Duration time.Duration `config:"duration"`
	Grace    time.Duration `config:"grace"`
}

// RetryPolicy configures retry.Config for one command type.
type RetryPolicy struct {
	MaxAttempts  int           `config:"maxAttempts"`
	MaxRetryTime time.Duration `config:"maxRetryTime"`
	Backoff      BackoffPolicy `config:"backoff"`
}

// BackoffPolicy selects one of the backoff package's strategies by name
// (matching the closed list from backoff.go: fixed, linear, exponential,
// exponentialJitter).
type BackoffPolicy struct {
	Kind string        `config:"kind"`
	Base time.Duration `config:"base"`
	Max  time.Duration `config:"max"`
}

// CircuitBreakerPolicy configures circuitbreaker.Config for one command
// type.
type CircuitBreakerPolicy struct {
	FailureThreshold         int           `config:"failureThreshold"`
	RecoveryTimeout          time.Duration `config:"recoveryTimeout"`
	ResetTimeout             time.Duration `config:"resetTimeout"`
	HalfOpenSuccessThreshold int           `config:"halfOpenSuccessThreshold"`
}

// RateLimitPolicy configures a ratelimit.Scoped limiter for one command
// type. Scope selects the KeyFunc family (global, perUser, perCommand);
// Kind selects the underlying Limiter algorithm (tokenBucket,
// slidingWindow, fixedWindow). Builder rejects adaptive, which needs a load
// function that YAML cannot supply.
type RateLimitPolicy struct {
	Scope           string        `config:"scope"`
	Kind            string        `config:"kind"`
	Rate            float64       `config:"rate"`
	Window          time.Duration `config:"window"`
	BurstCapacity   int           `config:"burstCapacity"`
}

// PartitionEntry declares one bulkhead partition, matching
// bulkhead.PartitionSpec.
type PartitionEntry struct {
	Name         string        `config:"name"`
	Capacity     int           `config:"capacity"`
	QueueSize    int           `config:"queueSize"`
	QueueTimeout time.Duration `config:"queueTimeout"`
}
