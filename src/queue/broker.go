// Package queue 压缩任务队列，提供至少一次投递语义，不保证任务之间的顺序
package queue

import (
	"context"
	"errors"
	"fmt"

	"github.com/bililive-go/livearchiver/src/configs"
)

// ErrClosed 队列已关闭
var ErrClosed = errors.New("broker closed")

// CompressionJob 待压缩的文件
type CompressionJob struct {
	StreamPath string `json:"streamPath"`
}

// Handler 处理一个任务，返回后任务即视为已消费
type Handler func(ctx context.Context, job CompressionJob) error

type Broker interface {
	Enqueue(ctx context.Context, job CompressionJob) error
	// Consume 阻塞拉取任务并交给 handler，直到 ctx 结束或队列关闭
	Consume(ctx context.Context, handler Handler) error
	Close() error
}

// New 按配置创建队列
func New(ctx context.Context, cfg configs.Broker) (Broker, error) {
	switch cfg.Type {
	case configs.BrokerMemory, "":
		return NewMemoryBroker(cfg.Buffer), nil
	case configs.BrokerRedis:
		b, err := NewRedisBroker(ctx, RedisConfig{
			Addrs:        cfg.Addrs,
			Password:     cfg.Password,
			DB:           cfg.DB,
			Key:          cfg.Key,
			BlockTimeout: cfg.BlockTimeout,
		})
		if err != nil {
			return nil, err
		}
		return b, nil
	default:
		return nil, fmt.Errorf("unknown broker type: %q", cfg.Type)
	}
}
