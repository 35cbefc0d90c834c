// Package compression 消费压缩任务，按文件大小选择编码参数并原地替换文件
package compression

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"

	"github.com/bililive-go/livearchiver/src/configs"
	"github.com/bililive-go/livearchiver/src/metrics"
	bilisentry "github.com/bililive-go/livearchiver/src/pkg/sentry"
	"github.com/bililive-go/livearchiver/src/queue"
)

const (
	ProfileLarge = "large"
	ProfileSmall = "small"
)

// Compressor 执行一次转码并替换原文件
type Compressor interface {
	Compress(ctx context.Context, path string, profile configs.CompressionProfile) error
}

// Job 正在执行的压缩任务
type Job struct {
	StreamPath string    `json:"stream_path"`
	Profile    string    `json:"profile"`
	Size       int64     `json:"size"`
	StartedAt  time.Time `json:"started_at"`
}

// Worker 从队列中拉取压缩任务，最多同时运行 MaxConcurrent 个
type Worker struct {
	ctx        context.Context
	cancel     context.CancelFunc
	cfg        configs.Compression
	broker     queue.Broker
	compressor Compressor

	mu          sync.RWMutex
	runningJobs map[string]*Job
	wg          sync.WaitGroup
}

func NewWorker(ctx context.Context, cfg configs.Compression, broker queue.Broker, compressor Compressor) *Worker {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 1
	}
	workerCtx, cancel := context.WithCancel(ctx)
	return &Worker{
		ctx:         workerCtx,
		cancel:      cancel,
		cfg:         cfg,
		broker:      broker,
		compressor:  compressor,
		runningJobs: make(map[string]*Job),
	}
}

// Start 启动消费者
func (w *Worker) Start(ctx context.Context) error {
	for i := 0; i < w.cfg.MaxConcurrent; i++ {
		w.wg.Add(1)
		consumer := i
		bilisentry.Go(func() {
			defer w.wg.Done()
			w.consumeLoop(consumer)
		})
	}
	logrus.WithField("consumers", w.cfg.MaxConcurrent).Info("compression worker started")
	return nil
}

// Close 停止拉取新任务并等待正在转码的任务结束
func (w *Worker) Close(ctx context.Context) {
	w.cancel()
	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		logrus.WithField("running", len(w.RunningJobs())).Warn("compression worker close timed out")
	}
}

func (w *Worker) consumeLoop(consumer int) {
	for {
		err := w.broker.Consume(w.ctx, w.handle)
		if err == nil || errors.Is(err, queue.ErrClosed) || w.ctx.Err() != nil {
			return
		}
		logrus.WithError(err).WithField("consumer", consumer).Warn("compression consumer stopped, restarting")
		select {
		case <-w.ctx.Done():
			return
		case <-time.After(time.Second):
		}
	}
}

// profileFor 按文件大小选择编码参数，严格大于阈值时使用 large
func (w *Worker) profileFor(size int64) (string, configs.CompressionProfile) {
	if size > w.cfg.ThresholdBytes {
		return ProfileLarge, w.cfg.Large
	}
	return ProfileSmall, w.cfg.Small
}

func (w *Worker) track(job *Job) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.runningJobs[job.StreamPath]; ok {
		return false
	}
	w.runningJobs[job.StreamPath] = job
	return true
}

func (w *Worker) untrack(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.runningJobs, path)
}

// handle 处理一个任务，失败只记录日志，任务不会重试
func (w *Worker) handle(ctx context.Context, job queue.CompressionJob) error {
	logger := logrus.WithField("stream_path", job.StreamPath)

	info, err := os.Stat(job.StreamPath)
	if err != nil {
		metrics.CompressionJobs.WithLabelValues("failed", "").Inc()
		logger.WithError(err).WithField("error_kind", "transient_io").Error("compression target unavailable")
		return fmt.Errorf("stat %s: %w", job.StreamPath, err)
	}

	name, profile := w.profileFor(info.Size())
	running := &Job{
		StreamPath: job.StreamPath,
		Profile:    name,
		Size:       info.Size(),
		StartedAt:  time.Now(),
	}
	if !w.track(running) {
		metrics.CompressionJobs.WithLabelValues("duplicate", name).Inc()
		logger.Info("compression already running, dropping duplicate delivery")
		return nil
	}
	defer w.untrack(job.StreamPath)

	logger = logger.WithFields(logrus.Fields{
		"size":      humanize.IBytes(uint64(info.Size())),
		"threshold": humanize.IBytes(uint64(w.cfg.ThresholdBytes)),
		"profile":   name,
	})
	logger.Info("compression started")

	metrics.CompressionRunning.Inc()
	defer metrics.CompressionRunning.Dec()

	// 已开始的转码不随关闭而中断
	if err := w.compressor.Compress(context.WithoutCancel(ctx), job.StreamPath, profile); err != nil {
		metrics.CompressionJobs.WithLabelValues("failed", name).Inc()
		logger.WithError(err).WithField("error_kind", "transient_io").Error("compression failed")
		return err
	}

	elapsed := time.Since(running.StartedAt)
	metrics.CompressionJobs.WithLabelValues("done", name).Inc()
	metrics.CompressionDuration.Observe(elapsed.Seconds())
	if after, err := os.Stat(job.StreamPath); err == nil {
		logger = logger.WithField("compressed_size", humanize.IBytes(uint64(after.Size())))
	}
	logger.WithField("elapsed", elapsed.Round(time.Millisecond)).Info("compression finished")
	return nil
}

// RunningJobs 返回正在执行的任务，按开始时间排序
func (w *Worker) RunningJobs() []Job {
	w.mu.RLock()
	defer w.mu.RUnlock()
	jobs := make([]Job, 0, len(w.runningJobs))
	for _, j := range w.runningJobs {
		jobs = append(jobs, *j)
	}
	sort.Slice(jobs, func(i, k int) bool { return jobs[i].StartedAt.Before(jobs[k].StartedAt) })
	return jobs
}
