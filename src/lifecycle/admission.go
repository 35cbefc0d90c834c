// Package lifecycle 处理推流开始（准入）与结束（归档）
package lifecycle

import (
	"context"
	"errors"

	"github.com/bililive-go/livearchiver/src/ingest"
	applog "github.com/bililive-go/livearchiver/src/log"
	"github.com/bililive-go/livearchiver/src/metrics"
	"github.com/bililive-go/livearchiver/src/store"
)

// Thumbnailer 按推流码生成缩略图
type Thumbnailer interface {
	Generate(ctx context.Context, streamKey string) error
}

// Admission 推流开始时的准入检查
type Admission struct {
	store  store.Store
	engine ingest.Engine
	thumbs Thumbnailer
	urls   *URLBuilder
}

func NewAdmission(st store.Store, engine ingest.Engine, thumbs Thumbnailer, urls *URLBuilder) *Admission {
	return &Admission{store: st, engine: engine, thumbs: thumbs, urls: urls}
}

func (a *Admission) reject(ctx context.Context, sess ingest.Session, key string, cause error) error {
	if err := a.engine.RejectSession(ctx, sess.ID); err != nil {
		metrics.Admissions.WithLabelValues("failed").Inc()
		return newError(KindTransientIO, "reject session", key, err)
	}
	metrics.Admissions.WithLabelValues("rejected").Inc()
	return newError(KindAdmissionRejected, "admission", key, cause)
}

// HandleStart 校验推流码，未知推流码断开会话；已知推流码生成缩略图，
// 重置为直播中并清理上一场残留的聊天与点赞
func (a *Admission) HandleStart(ctx context.Context, sess ingest.Session) error {
	key := sess.StreamKey()
	if key == "" {
		return a.reject(ctx, sess, key, errEmptyStreamKey)
	}

	live, err := a.store.FindLiveStreamByKey(ctx, key)
	if errors.Is(err, store.ErrNotFound) {
		return a.reject(ctx, sess, key, errUnknownStreamKey)
	}
	if err != nil {
		metrics.Admissions.WithLabelValues("failed").Inc()
		return newError(KindTransientIO, "lookup live stream", key, err)
	}

	logger := applog.WithStream(key).WithField("session_id", sess.ID)

	// 缩略图失败不影响开播，定时任务会再次刷新
	if err := a.thumbs.Generate(ctx, key); err != nil {
		logger.WithError(err).WithField("error_kind", KindTransientIO.String()).Warn("initial thumbnail failed")
	}

	thumbnail, err := a.urls.Thumbnail(key)
	if err != nil {
		metrics.Admissions.WithLabelValues("failed").Inc()
		return newError(KindTransientIO, "render thumbnail url", key, err)
	}
	if err := a.store.ActivateLiveStream(ctx, key, thumbnail); err != nil {
		metrics.Admissions.WithLabelValues("failed").Inc()
		return newError(KindTransientIO, "activate live stream", key, err)
	}
	if _, err := a.store.DeleteChatMessages(ctx, live.ID); err != nil {
		metrics.Admissions.WithLabelValues("failed").Inc()
		return newError(KindTransientIO, "clear chat messages", key, err)
	}
	if _, err := a.store.DeleteLikes(ctx, live.ID); err != nil {
		metrics.Admissions.WithLabelValues("failed").Inc()
		return newError(KindTransientIO, "clear likes", key, err)
	}

	metrics.Admissions.WithLabelValues("accepted").Inc()
	logger.Info("stream admitted")
	return nil
}
