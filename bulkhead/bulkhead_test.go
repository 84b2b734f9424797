package bulkhead

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTryAcquireRespectsCapacity(t *testing.T) {
	b := New(Config{Capacity: 2})
	tok1, ok := b.TryAcquire()
	require.True(t, ok)
	tok2, ok := b.TryAcquire()
	require.True(t, ok)
	_, ok = b.TryAcquire()
	assert.False(t, ok)

	tok1.Release()
	tok2.Release()
	assert.Equal(t, 0, b.Active())
}

func TestQueueTimeoutExpires(t *testing.T) {
	b := New(Config{Capacity: 1, QueueSize: 1, QueueTimeout: 20 * time.Millisecond})
	tok, ok := b.TryAcquire()
	require.True(t, ok)
	defer tok.Release()

	_, err := b.Acquire(context.Background())
	require.Error(t, err)
}

func TestQueueRejectsBeyondQueueSize(t *testing.T) {
	b := New(Config{Capacity: 1, QueueSize: 0})
	tok, ok := b.TryAcquire()
	require.True(t, ok)
	defer tok.Release()

	_, err := b.Acquire(context.Background())
	require.Error(t, err)
}

func TestFIFOWithinPartition(t *testing.T) {
	b := New(Config{Capacity: 1, QueueSize: 5})
	tok, ok := b.TryAcquire()
	require.True(t, ok)

	var mu sync.Mutex
	var order []int
	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			t2, err := b.Acquire(context.Background())
			if err == nil {
				mu.Lock()
				order = append(order, i)
				mu.Unlock()
				t2.Release()
			}
		}(i)
		time.Sleep(5 * time.Millisecond) // ensure enqueue order
	}

	tok.Release()
	wg.Wait()

	assert.Equal(t, []int{0, 1, 2}, order)
}

func TestCancellationDoesNotLeakPermit(t *testing.T) {
	b := New(Config{Capacity: 1, QueueSize: 1})
	tok, ok := b.TryAcquire()
	require.True(t, ok)
	defer tok.Release()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := b.Acquire(ctx)
		done <- err
	}()
	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.Error(t, err)
	case <-time.After(time.Second):
		t.Fatal("acquire never unblocked")
	}
	assert.Equal(t, 1, b.Active())
}

func TestPartitionedBorrowing(t *testing.T) {
	pb := NewPartitioned(PartitionedConfig{
		Partitions: []PartitionSpec{
			{Name: "critical", Capacity: 2},
			{Name: "standard", Capacity: 2, QueueSize: 2},
		},
		KeyFunc:             func(cmd interface{}) string { return cmd.(string) },
		BorrowingEnabled:    true,
		MaxBorrowPercentage: 0.5,
	})

	// saturate standard
	s1, err := pb.Acquire(context.Background(), "standard")
	require.NoError(t, err)
	s2, err := pb.Acquire(context.Background(), "standard")
	require.NoError(t, err)

	// critical has 2/2 free >= ceil(2*0.5)=1, so standard borrows from critical
	tok, err := pb.Acquire(context.Background(), "standard")
	require.NoError(t, err)
	assert.True(t, tok.WasBorrowed())
	assert.Equal(t, "critical", tok.BorrowedFrom())

	tok.Release()
	assert.Equal(t, 0, pb.Partition("critical").Active())

	s1.Release()
	s2.Release()
}

func TestUnknownKeyRoutesToDefault(t *testing.T) {
	pb := NewPartitioned(PartitionedConfig{
		Partitions: []PartitionSpec{{Name: "default", Capacity: 1}},
		KeyFunc:    func(cmd interface{}) string { return "" },
	})
	tok, err := pb.Acquire(context.Background(), "anything")
	require.NoError(t, err)
	assert.Equal(t, 1, pb.Partition("default").Active())
	tok.Release()
}
