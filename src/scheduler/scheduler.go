// Package scheduler 周期任务：活动直播缩略图刷新与聊天记录过期清理
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/bililive-go/livearchiver/src/configs"
	applog "github.com/bililive-go/livearchiver/src/log"
	"github.com/bililive-go/livearchiver/src/metrics"
	bilisentry "github.com/bililive-go/livearchiver/src/pkg/sentry"
)

const (
	TaskThumbnails = "thumbnails"
	TaskPruneChat  = "prune_chat"
)

// StreamLister 查询引擎当前活动的推流码
type StreamLister interface {
	ActiveStreams(ctx context.Context) ([]string, error)
}

type ThumbnailRefresher interface {
	Refresh(ctx context.Context, streamKey string) (bool, error)
}

type ChatPruner interface {
	DeleteChatMessagesBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type Scheduler struct {
	ctx    context.Context
	cancel context.CancelFunc
	cfg    configs.Scheduler
	engine StreamLister
	thumbs ThumbnailRefresher
	chat   ChatPruner
	cron   *cron.Cron
	now    func() time.Time
}

// New 注册两个周期任务，调度表达式无效时返回错误
func New(ctx context.Context, cfg configs.Scheduler, engine StreamLister, thumbs ThumbnailRefresher, chat ChatPruner) (*Scheduler, error) {
	schedCtx, cancel := context.WithCancel(ctx)
	cronLogger := cron.PrintfLogger(logrus.StandardLogger())
	s := &Scheduler{
		ctx:    schedCtx,
		cancel: cancel,
		cfg:    cfg,
		engine: engine,
		thumbs: thumbs,
		chat:   chat,
		cron:   cron.New(cron.WithChain(cron.Recover(cronLogger))),
		now:    time.Now,
	}

	if _, err := s.cron.AddFunc(cfg.ThumbnailSchedule, func() { s.run(TaskThumbnails, s.RefreshThumbnails) }); err != nil {
		cancel()
		return nil, fmt.Errorf("invalid thumbnail_schedule %q: %w", cfg.ThumbnailSchedule, err)
	}
	prune := cron.NewChain(cron.SkipIfStillRunning(cronLogger)).Then(cron.FuncJob(func() {
		s.run(TaskPruneChat, func(ctx context.Context) error {
			_, err := s.PruneChat(ctx)
			return err
		})
	}))
	if _, err := s.cron.AddJob(cfg.PruneSchedule, prune); err != nil {
		cancel()
		return nil, fmt.Errorf("invalid prune_schedule %q: %w", cfg.PruneSchedule, err)
	}
	return s, nil
}

func (s *Scheduler) Start(ctx context.Context) error {
	s.cron.Start()
	logrus.WithFields(logrus.Fields{
		"thumbnail_schedule": s.cfg.ThumbnailSchedule,
		"prune_schedule":     s.cfg.PruneSchedule,
	}).Info("scheduler started")
	return nil
}

// Close 停止调度并等待正在执行的任务
func (s *Scheduler) Close(ctx context.Context) {
	stopped := s.cron.Stop()
	s.cancel()
	select {
	case <-stopped.Done():
	case <-ctx.Done():
		logrus.Warn("scheduler close timed out")
	}
}

func (s *Scheduler) run(task string, fn func(ctx context.Context) error) {
	if err := fn(s.ctx); err != nil {
		metrics.ScheduledRuns.WithLabelValues(task, "failed").Inc()
		logrus.WithError(err).WithFields(logrus.Fields{
			"task":       task,
			"error_kind": "transient_io",
		}).Error("scheduled task failed")
		return
	}
	metrics.ScheduledRuns.WithLabelValues(task, "ok").Inc()
}

// RefreshThumbnails 为每个活动直播并发刷新缩略图，单个失败不影响其他
func (s *Scheduler) RefreshThumbnails(ctx context.Context) error {
	keys, err := s.engine.ActiveStreams(ctx)
	if err != nil {
		return fmt.Errorf("list active streams: %w", err)
	}

	var wg sync.WaitGroup
	for _, key := range keys {
		wg.Add(1)
		bilisentry.Go(func() {
			defer wg.Done()
			refreshed, err := s.thumbs.Refresh(ctx, key)
			switch {
			case err != nil:
				metrics.ThumbnailRefreshes.WithLabelValues("failed").Inc()
				applog.WithStream(key).WithError(err).Warn("thumbnail refresh failed")
			case refreshed:
				metrics.ThumbnailRefreshes.WithLabelValues("refreshed").Inc()
			default:
				metrics.ThumbnailRefreshes.WithLabelValues("skipped").Inc()
			}
		})
	}
	wg.Wait()
	return nil
}

// PruneChat 删除超过保留时长的聊天消息，与直播是否结束无关
func (s *Scheduler) PruneChat(ctx context.Context) (int64, error) {
	cutoff := s.now().Add(-s.cfg.ChatRetention)
	n, err := s.chat.DeleteChatMessagesBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune chat messages: %w", err)
	}
	metrics.ChatMessagesPruned.Add(float64(n))
	logrus.WithFields(logrus.Fields{
		"deleted": n,
		"cutoff":  cutoff.Format(time.RFC3339),
	}).Info("pruned chat messages")
	return n, nil
}
