package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.pipelinekit.dev/flowkit/backpressure"
	"go.pipelinekit.dev/flowkit/flowcontext"
	"go.pipelinekit.dev/flowkit/flowmiddleware"
)

func echoHandler(ctx *flowcontext.Context, command interface{}) (interface{}, error) {
	return command, nil
}

func TestRegisterAndLookupDefaultName(t *testing.T) {
	r := NewRegistry()
	p := New(echoHandler)
	r.Register("Widget", "", p)

	got, ok := r.Lookup("Widget", "")
	require.True(t, ok)
	assert.Same(t, p, got)

	got, ok = r.Lookup("Widget", "default")
	require.True(t, ok)
	assert.Same(t, p, got)
}

func TestRegisterIsLastWriterWins(t *testing.T) {
	r := NewRegistry()
	p1 := New(echoHandler)
	p2 := New(echoHandler)
	r.Register("Widget", "default", p1)
	r.Register("Widget", "default", p2)

	got, ok := r.Lookup("Widget", "default")
	require.True(t, ok)
	assert.Same(t, p2, got)
}

func TestExecutorDispatchesThroughMiddleware(t *testing.T) {
	r := NewRegistry()
	var ran []string
	mw := flowmiddleware.Func{Pri: flowmiddleware.Processing, Fn: func(ctx *flowcontext.Context, command interface{}, next flowmiddleware.Handler) (interface{}, error) {
		ran = append(ran, "mw")
		return next(ctx, command)
	}}
	r.Register("Widget", "default", New(echoHandler, mw))

	e := NewExecutor(r, ExecutorConfig{})
	v, err := e.Execute(context.Background(), "Widget", "", "payload")
	require.NoError(t, err)
	assert.Equal(t, "payload", v)
	assert.Equal(t, []string{"mw"}, ran)
}

func TestExecutorUnknownCommandTypeErrors(t *testing.T) {
	e := NewExecutor(NewRegistry(), ExecutorConfig{})
	_, err := e.Execute(context.Background(), "Missing", "", nil)
	require.Error(t, err)
}

func TestExecutorHonorsSharedConcurrency(t *testing.T) {
	r := NewRegistry()
	r.Register("Widget", "default", New(echoHandler))
	sem := backpressure.New(backpressure.Config{MaxConcurrency: 1, MaxOutstanding: 1, Strategy: backpressure.Error})

	e := NewExecutor(r, ExecutorConfig{Concurrency: sem})

	tok, ok := sem.TryAcquire(1)
	require.True(t, ok)

	_, err := e.Execute(context.Background(), "Widget", "", "x")
	require.Error(t, err, "concurrency budget is exhausted by the held token")

	tok.Release()
	v, err := e.Execute(context.Background(), "Widget", "", "x")
	require.NoError(t, err)
	assert.Equal(t, "x", v)
}

func TestStopDrainsInFlightExecutions(t *testing.T) {
	r := NewRegistry()
	started := make(chan struct{})
	release := make(chan struct{})
	r.Register("Slow", "default", New(func(ctx *flowcontext.Context, command interface{}) (interface{}, error) {
		close(started)
		<-release
		return "done", nil
	}))

	e := NewExecutor(r, ExecutorConfig{})

	done := make(chan error, 1)
	go func() {
		_, err := e.Execute(context.Background(), "Slow", "", nil)
		done <- err
	}()

	<-started
	stopDone := make(chan error, 1)
	go func() {
		stopDone <- e.Stop(context.Background())
	}()

	select {
	case <-stopDone:
		t.Fatal("Stop returned before the in-flight execution finished")
	case <-time.After(20 * time.Millisecond):
	}

	close(release)
	require.NoError(t, <-done)
	require.NoError(t, <-stopDone)
}
