package autotask

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeClient is a minimal Client for gate tests.
type fakeClient struct {
	Client
	id int
}

func TestGateAcquireReturnsSameClient(t *testing.T) {
	var calls atomic.Int32
	gate, err := NewGate(func(ctx context.Context) (Client, error) {
		calls.Add(1)
		return &fakeClient{id: 1}, nil
	}, zap.NewNop())
	require.NoError(t, err)

	c1, err := gate.Acquire(context.Background())
	require.NoError(t, err)
	c2, err := gate.Acquire(context.Background())
	require.NoError(t, err)

	assert.Same(t, c1, c2)
	assert.Equal(t, int32(1), calls.Load())
}

func TestGateCoalescesConcurrentInitialization(t *testing.T) {
	var calls atomic.Int32
	release := make(chan struct{})

	gate, err := NewGate(func(ctx context.Context) (Client, error) {
		calls.Add(1)
		<-release
		return &fakeClient{id: 7}, nil
	}, zap.NewNop())
	require.NoError(t, err)

	const n = 16
	clients := make([]Client, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c, err := gate.Acquire(context.Background())
			require.NoError(t, err)
			clients[i] = c
		}(i)
	}

	// Give the goroutines a moment to pile onto the in-flight attempt.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	for i := 1; i < n; i++ {
		assert.Same(t, clients[0], clients[i], "caller %d got a distinct handle", i)
	}
	assert.Equal(t, int32(1), calls.Load(), "factory must run exactly once")
}

func TestGateRetriesAfterFailure(t *testing.T) {
	var calls atomic.Int32
	gate, err := NewGate(func(ctx context.Context) (Client, error) {
		if calls.Add(1) == 1 {
			return nil, errors.New("zone unreachable")
		}
		return &fakeClient{id: 2}, nil
	}, zap.NewNop())
	require.NoError(t, err)

	_, err = gate.Acquire(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "zone unreachable")

	// Failure clears the in-flight marker; the next call retries.
	c, err := gate.Acquire(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, c)
	assert.Equal(t, int32(2), calls.Load())
}

func TestGateFailurePropagatesToAllWaiters(t *testing.T) {
	release := make(chan struct{})
	gate, err := NewGate(func(ctx context.Context) (Client, error) {
		<-release
		return nil, errors.New("bad credentials")
	}, zap.NewNop())
	require.NoError(t, err)

	const n = 8
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = gate.Acquire(context.Background())
		}(i)
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	for i := 0; i < n; i++ {
		assert.ErrorContains(t, errs[i], "bad credentials")
	}
}

func TestNewGateRequiresFactory(t *testing.T) {
	_, err := NewGate(nil, zap.NewNop())
	assert.Error(t, err)
}
