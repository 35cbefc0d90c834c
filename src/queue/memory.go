package queue

import (
	"context"
	"sync"
)

// MemoryBroker 基于 channel 的进程内队列，进程退出时未消费的任务会丢失
type MemoryBroker struct {
	jobs      chan CompressionJob
	closed    chan struct{}
	closeOnce sync.Once
}

func NewMemoryBroker(buffer int) *MemoryBroker {
	if buffer <= 0 {
		buffer = 1
	}
	return &MemoryBroker{
		jobs:   make(chan CompressionJob, buffer),
		closed: make(chan struct{}),
	}
}

func (b *MemoryBroker) Enqueue(ctx context.Context, job CompressionJob) error {
	select {
	case <-b.closed:
		return ErrClosed
	default:
	}
	select {
	case b.jobs <- job:
		return nil
	case <-b.closed:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *MemoryBroker) Consume(ctx context.Context, handler Handler) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-b.closed:
			return ErrClosed
		case job := <-b.jobs:
			_ = handler(ctx, job)
		}
	}
}

// Len 返回尚未被消费的任务数
func (b *MemoryBroker) Len() int {
	return len(b.jobs)
}

func (b *MemoryBroker) Close() error {
	b.closeOnce.Do(func() { close(b.closed) })
	return nil
}
