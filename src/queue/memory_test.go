package queue

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/bililive-go/livearchiver/src/configs"
)

func TestMemoryBroker_DeliversEveryJob(t *testing.T) {
	defer goleak.VerifyNone(t)

	b := NewMemoryBroker(8)
	ctx, cancel := context.WithCancel(context.Background())

	var mu sync.Mutex
	var got []string
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = b.Consume(ctx, func(_ context.Context, job CompressionJob) error {
			mu.Lock()
			got = append(got, job.StreamPath)
			mu.Unlock()
			return nil
		})
	}()

	for _, p := range []string{"/a.mp4", "/b.mp4", "/c.mp4"} {
		require.NoError(t, b.Enqueue(context.Background(), CompressionJob{StreamPath: p}))
	}
	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 3
	}, time.Second, 10*time.Millisecond)

	cancel()
	<-done
	require.NoError(t, b.Close())
}

func TestMemoryBroker_Close(t *testing.T) {
	defer goleak.VerifyNone(t)

	b := NewMemoryBroker(1)
	errCh := make(chan error, 1)
	go func() {
		errCh <- b.Consume(context.Background(), func(context.Context, CompressionJob) error { return nil })
	}()

	require.NoError(t, b.Close())
	require.NoError(t, b.Close())
	assert.ErrorIs(t, <-errCh, ErrClosed)
	assert.ErrorIs(t, b.Enqueue(context.Background(), CompressionJob{StreamPath: "/x"}), ErrClosed)
}

func TestMemoryBroker_EnqueueRespectsContext(t *testing.T) {
	b := NewMemoryBroker(1)
	defer b.Close()
	require.NoError(t, b.Enqueue(context.Background(), CompressionJob{StreamPath: "/1"}))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, b.Enqueue(ctx, CompressionJob{StreamPath: "/2"}), context.DeadlineExceeded)
	assert.Equal(t, 1, b.Len())
}

func TestNew(t *testing.T) {
	b, err := New(context.Background(), configs.Broker{Type: configs.BrokerMemory, Buffer: 4})
	require.NoError(t, err)
	assert.IsType(t, &MemoryBroker{}, b)

	_, err = New(context.Background(), configs.Broker{Type: "kafka"})
	assert.Error(t, err)
}
