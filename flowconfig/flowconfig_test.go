package flowconfig

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
middleware:
  - name: auth
  - name: resilience

commands:
  PlaceOrder:
    timeout:
      duration: 2s
      grace: 500ms
    retry:
      maxAttempts: 3
      maxRetryTime: 5s
      backoff:
        kind: exponentialJitter
        base: 50ms
        max: 1s
    circuitBreaker:
      failureThreshold: 5
      recoveryTimeout: 10s
      halfOpenSuccessThreshold: 2
    rateLimit:
      scope: perCommand
      kind: tokenBucket
      rate: 10
      burstCapacity: 20

partitions:
  - name: default
    capacity: 50
    queueSize: 100
    queueTimeout: 200ms
  - name: batch
    capacity: 10
    queueSize: 20
    queueTimeout: 1s
`

func TestLoadParsesTopology(t *testing.T) {
	top, err := Load([]byte(sampleYAML))
	require.NoError(t, err)

	require.Len(t, top.Middleware, 2)
	assert.Equal(t, "auth", top.Middleware[0].Name)

	policy, ok := top.Commands["PlaceOrder"]
	require.True(t, ok)
	require.NotNil(t, policy.Retry)
	assert.Equal(t, 3, policy.Retry.MaxAttempts)
	assert.Equal(t, "exponentialJitter", policy.Retry.Backoff.Kind)

	require.Len(t, top.Partitions, 2)
	assert.Equal(t, "batch", top.Partitions[1].Name)
}

func TestLoadRejectsDuplicatePartitionNames(t *testing.T) {
	_, err := Load([]byte(`
partitions:
  - name: dup
    capacity: 1
  - name: dup
    capacity: 2
`))
	assert.Error(t, err)
}

func TestLoadRejectsUnnamedMiddleware(t *testing.T) {
	_, err := Load([]byte(`
middleware:
  - args:
      foo: bar
`))
	assert.Error(t, err)
}

func TestBuildWiresCommandResilience(t *testing.T) {
	top, err := Load([]byte(sampleYAML))
	require.NoError(t, err)

	built, err := NewBuilder().Build(top)
	require.NoError(t, err)

	cr, ok := built.Commands["PlaceOrder"]
	require.True(t, ok)
	assert.NotNil(t, cr.Timeout)
	assert.NotNil(t, cr.Retry)
	assert.NotNil(t, cr.Breaker)
	assert.NotNil(t, cr.RateLimit)

	require.NotNil(t, built.Partitions)
	assert.NotNil(t, built.Partitions.Partition("default"))
	assert.NotNil(t, built.Partitions.Partition("batch"))
}

func TestBuildPerUserRequiresExtractor(t *testing.T) {
	top, err := Load([]byte(`
commands:
  Widget:
    rateLimit:
      scope: perUser
      kind: tokenBucket
      rate: 5
      burstCapacity: 5
`))
	require.NoError(t, err)

	_, err = NewBuilder().Build(top)
	assert.Error(t, err)

	built, err := NewBuilder(WithUserKeyExtractor(func(interface{}) string { return "u1" })).Build(top)
	require.NoError(t, err)
	assert.NotNil(t, built.Commands["Widget"].RateLimit)
}
