// Package sentry 封装 sentry-go：goroutine panic 上报、error 级日志转发，
// 上报前抹掉推流码与凭据
package sentry

import (
	"sync/atomic"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/sirupsen/logrus"
)

var enabled atomic.Bool

type Options struct {
	DSN         string
	Environment string
	Release     string
	// MediaRoot 参与实例 ID 的计算，同一台机器上的多个实例可以区分开
	MediaRoot string
}

// Init DSN 为空时不启用，Go/Recover 仍然会恢复 panic 并写日志
func Init(opts Options) error {
	if opts.DSN == "" {
		return nil
	}
	err := sentry.Init(sentry.ClientOptions{
		Dsn:              opts.DSN,
		Environment:      opts.Environment,
		Release:          opts.Release,
		AttachStacktrace: true,
		SampleRate:       1.0,
		BeforeSend: func(event *sentry.Event, _ *sentry.EventHint) *sentry.Event {
			return scrubEvent(event)
		},
	})
	if err != nil {
		return err
	}
	id := InstanceID(opts.MediaRoot)
	sentry.ConfigureScope(func(scope *sentry.Scope) {
		scope.SetUser(sentry.User{ID: id})
		scope.SetTag("instance", id)
	})
	enabled.Store(true)
	return nil
}

func Enabled() bool {
	return enabled.Load()
}

// Flush 退出前调用
func Flush(timeout time.Duration) {
	if Enabled() {
		sentry.Flush(timeout)
	}
}

// Recover 只能直接 defer 调用
func Recover() {
	if r := recover(); r != nil {
		logrus.WithField("panic", scrub(toString(r))).Error("recovered from panic in goroutine")
		if Enabled() {
			sentry.CurrentHub().Recover(r)
		}
	}
}

// Go 启动带 panic 恢复的 goroutine
func Go(f func()) {
	go func() {
		defer Recover()
		f()
	}()
}

// CaptureError 附带日志字段上报错误
func CaptureError(err error, fields logrus.Fields) {
	if err == nil || !Enabled() {
		return
	}
	sentry.WithScope(func(scope *sentry.Scope) {
		for k, v := range fields {
			scope.SetExtra(k, v)
		}
		sentry.CaptureException(err)
	})
}
