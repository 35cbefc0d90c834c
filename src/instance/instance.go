// Package instance 组装各组件并管理它们的启动与关闭顺序
package instance

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/bililive-go/livearchiver/src/compression"
	"github.com/bililive-go/livearchiver/src/configs"
	"github.com/bililive-go/livearchiver/src/ingest"
	"github.com/bililive-go/livearchiver/src/lifecycle"
	"github.com/bililive-go/livearchiver/src/pkg/events"
	"github.com/bililive-go/livearchiver/src/pkg/media"
	"github.com/bililive-go/livearchiver/src/queue"
	"github.com/bililive-go/livearchiver/src/scheduler"
	"github.com/bililive-go/livearchiver/src/servers"
	"github.com/bililive-go/livearchiver/src/store"
)

// Module 可启动、可关闭的组件
type Module interface {
	Start(ctx context.Context) error
	Close(ctx context.Context)
}

type Instance struct {
	Config          *configs.Config
	Store           store.Store
	Broker          queue.Broker
	EventDispatcher events.Dispatcher
	Engine          ingest.Engine
	Admission       *lifecycle.Admission
	Finalizer       *lifecycle.Finalizer
	Server          *servers.Server
	Worker          *compression.Worker
	Scheduler       *scheduler.Scheduler
}

// New 按配置创建所有组件，失败时关闭已经打开的资源
func New(ctx context.Context, cfg *configs.Config) (_ *Instance, err error) {
	inst := &Instance{Config: cfg}
	defer func() {
		if err != nil {
			inst.closeResources()
		}
	}()

	if inst.Store, err = store.New(cfg.Database.Path); err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	if inst.Broker, err = queue.New(ctx, cfg.Broker); err != nil {
		return nil, fmt.Errorf("open broker: %w", err)
	}

	urls, err := lifecycle.NewURLBuilder(cfg.URLs, cfg.Engine.App)
	if err != nil {
		return nil, err
	}
	ffmpeg := media.NewFFmpeg(cfg.Media)
	thumbs := media.NewThumbnailGenerator(ffmpeg, urls.ThumbnailSource, cfg.ThumbnailPath, cfg.Scheduler.ThumbnailMinInterval)

	inst.Engine = ingest.NewHTTPEngine(cfg.Engine)
	inst.EventDispatcher = events.NewDispatcher()
	inst.Admission = lifecycle.NewAdmission(inst.Store, inst.Engine, thumbs, urls)
	inst.Finalizer = lifecycle.NewFinalizer(cfg, inst.Store, inst.Broker, ffmpeg, urls)
	lifecycle.RegisterListeners(ctx, inst.EventDispatcher, inst.Admission, inst.Finalizer)

	inst.Worker = compression.NewWorker(ctx, cfg.Compression, inst.Broker, ffmpeg)
	if inst.Scheduler, err = scheduler.New(ctx, cfg.Scheduler, inst.Engine, thumbs, inst.Store); err != nil {
		return nil, err
	}
	if cfg.RPC.Enable {
		inst.Server = servers.NewServer(cfg, inst.EventDispatcher, inst.Worker, inst.Store)
	}
	return inst, nil
}

func (inst *Instance) modules() []Module {
	modules := []Module{inst.Worker, inst.Scheduler}
	if inst.Server != nil {
		modules = append(modules, inst.Server)
	}
	return modules
}

// Start 先启动消费者与定时任务，最后开始接收引擎回调
func (inst *Instance) Start(ctx context.Context) error {
	for _, m := range inst.modules() {
		if err := m.Start(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Close 按启动的逆序关闭：先停止接收回调，等待已分发的处理结束，再停止消费者
func (inst *Instance) Close(ctx context.Context) {
	if inst.Server != nil {
		inst.Server.Close(ctx)
	}
	inst.Scheduler.Close(ctx)
	inst.EventDispatcher.Wait()
	inst.Worker.Close(ctx)
	inst.closeResources()
	logrus.Info("instance closed")
}

func (inst *Instance) closeResources() {
	if inst.Broker != nil {
		if err := inst.Broker.Close(); err != nil {
			logrus.WithError(err).Warn("failed to close broker")
		}
	}
	if inst.Store != nil {
		if err := inst.Store.Close(); err != nil {
			logrus.WithError(err).Warn("failed to close store")
		}
	}
}
