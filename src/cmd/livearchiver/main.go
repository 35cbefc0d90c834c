package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/bililive-go/livearchiver/src/cmd/livearchiver/internal/flag"
	"github.com/bililive-go/livearchiver/src/configs"
	"github.com/bililive-go/livearchiver/src/consts"
	"github.com/bililive-go/livearchiver/src/instance"
	"github.com/bililive-go/livearchiver/src/log"
	bilisentry "github.com/bililive-go/livearchiver/src/pkg/sentry"
)

// loadConfig 优先级：--config，可执行文件旁的 config.yml，命令行参数
func loadConfig() (*configs.Config, error) {
	file := *flag.Conf
	if file == "" {
		if exe, err := os.Executable(); err == nil {
			if beside := filepath.Join(filepath.Dir(exe), "config.yml"); fileExists(beside) {
				file = beside
			}
		}
	}

	var cfg *configs.Config
	if file != "" {
		c, err := configs.NewConfigWithFile(file)
		if err != nil {
			return nil, err
		}
		cfg = c
	} else {
		cfg = flag.GenConfigFromFlags()
	}
	if *flag.Debug {
		cfg.Debug = true
	}
	return cfg, cfg.Verify()
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func initSentry(cfg *configs.Config, logger *logrus.Logger) {
	env := cfg.Sentry.Environment
	if cfg.Debug {
		env = "development"
	}
	err := bilisentry.Init(bilisentry.Options{
		DSN:         cfg.Sentry.DSN,
		Environment: env,
		Release:     consts.AppVersion,
		MediaRoot:   cfg.Media.Root,
	})
	switch {
	case err != nil:
		logger.WithError(err).Warn("failed to init sentry")
	case bilisentry.Enabled():
		logger.AddHook(bilisentry.NewLogHook())
	}
}

func run() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, logCloser, err := log.New(cfg)
	if err != nil {
		return err
	}
	defer logCloser.Close()

	logger.WithFields(logrus.Fields{
		"version": consts.AppVersion,
		"config":  cfg.File,
		"bind":    cfg.RPC.Bind,
	}).Infof("%s starting", consts.AppName)
	logger.Debugf("%+v", consts.GetAppInfo())

	initSentry(cfg, logger)
	defer bilisentry.Flush(2 * time.Second)

	// 根 context 只在进程退出时取消，关闭顺序由 inst.Close 控制
	ctx := context.Background()
	inst, err := instance.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("init: %w", err)
	}
	if err := inst.Start(ctx); err != nil {
		inst.Close(ctx)
		return fmt.Errorf("start: %w", err)
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	logger.WithField("signal", (<-sig).String()).Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), flag.ShutdownTimeout())
	defer cancel()
	inst.Close(shutdownCtx)
	logger.Info("shutdown complete")
	return nil
}

func main() {
	flag.MustParse()
	defer bilisentry.Recover()

	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
