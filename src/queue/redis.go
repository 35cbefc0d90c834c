package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// RedisConfig Redis 队列配置
type RedisConfig struct {
	Addrs        []string
	Password     string
	DB           int
	Key          string
	BlockTimeout time.Duration
}

// RedisBroker 基于 Redis 列表的可靠队列
// 取任务时用 BLMOVE 原子地移入 processing 列表，处理完成后 LREM 确认；
// 进程异常退出后 processing 中残留的任务在下次消费前放回主队列
type RedisBroker struct {
	client       redis.UniversalClient
	key          string
	processing   string
	blockTimeout time.Duration

	recoverOnce sync.Once
}

func NewRedisBroker(ctx context.Context, cfg RedisConfig) (*RedisBroker, error) {
	addrs := make([]string, 0, len(cfg.Addrs))
	for _, addr := range cfg.Addrs {
		if trimmed := strings.TrimSpace(addr); trimmed != "" {
			addrs = append(addrs, trimmed)
		}
	}
	if len(addrs) == 0 {
		return nil, fmt.Errorf("redis addr is required")
	}
	client := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:      addrs,
		Password:   cfg.Password,
		DB:         cfg.DB,
		MaxRetries: 2,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect redis: %w", err)
	}
	return newRedisBroker(client, cfg.Key, cfg.BlockTimeout), nil
}

func newRedisBroker(client redis.UniversalClient, key string, blockTimeout time.Duration) *RedisBroker {
	if strings.TrimSpace(key) == "" {
		key = "livearchiver:compression"
	}
	if blockTimeout <= 0 {
		blockTimeout = 2 * time.Second
	}
	return &RedisBroker{
		client:       client,
		key:          key,
		processing:   key + ":processing",
		blockTimeout: blockTimeout,
	}
}

func (b *RedisBroker) Enqueue(ctx context.Context, job CompressionJob) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	if err := b.client.LPush(ctx, b.key, payload).Err(); err != nil {
		if errors.Is(err, redis.ErrClosed) {
			return ErrClosed
		}
		return err
	}
	return nil
}

// requeueProcessing 把上次未确认的任务放回主队列
func (b *RedisBroker) requeueProcessing(ctx context.Context) {
	var n int
	for {
		err := b.client.RPopLPush(ctx, b.processing, b.key).Err()
		if errors.Is(err, redis.Nil) {
			break
		}
		if err != nil {
			logrus.WithError(err).Warn("failed to requeue unacknowledged compression jobs")
			break
		}
		n++
	}
	if n > 0 {
		logrus.WithField("count", n).Info("requeued unacknowledged compression jobs")
	}
}

func (b *RedisBroker) Consume(ctx context.Context, handler Handler) error {
	b.recoverOnce.Do(func() { b.requeueProcessing(ctx) })

	for {
		if ctx.Err() != nil {
			return nil
		}
		payload, err := b.client.BLMove(ctx, b.key, b.processing, "RIGHT", "LEFT", b.blockTimeout).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, redis.ErrClosed) {
				return ErrClosed
			}
			logrus.WithError(err).Warn("redis broker read failed")
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(200 * time.Millisecond):
			}
			continue
		}

		var job CompressionJob
		if err := json.Unmarshal([]byte(payload), &job); err != nil {
			logrus.WithError(err).WithField("payload", payload).Error("dropping undecodable compression job")
		} else {
			_ = handler(ctx, job)
		}
		b.ack(context.WithoutCancel(ctx), payload)
	}
}

func (b *RedisBroker) ack(ctx context.Context, payload string) {
	if err := b.client.LRem(ctx, b.processing, 1, payload).Err(); err != nil {
		logrus.WithError(err).Warn("redis broker ack failed")
	}
}

func (b *RedisBroker) Close() error {
	return b.client.Close()
}
