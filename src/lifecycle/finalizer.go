package lifecycle

import (
	"context"
	"errors"
	"os"
	"sync"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/sirupsen/logrus"

	"github.com/bililive-go/livearchiver/src/configs"
	"github.com/bililive-go/livearchiver/src/ingest"
	"github.com/bililive-go/livearchiver/src/metrics"
	"github.com/bililive-go/livearchiver/src/pkg/media"
	"github.com/bililive-go/livearchiver/src/queue"
	"github.com/bililive-go/livearchiver/src/store"
)

// Transcoder 归档阶段用到的外部工具操作
type Transcoder interface {
	Remux(ctx context.Context, path string) error
	ProbeDuration(ctx context.Context, path string) (float64, error)
}

// Finalizer 推流结束后的归档流程
type Finalizer struct {
	cfg    *configs.Config
	store  store.Store
	broker queue.Broker
	media  Transcoder
	urls   *URLBuilder
	newID  func() (string, error)

	mu       sync.Mutex
	inflight map[string]struct{}
}

func NewFinalizer(cfg *configs.Config, st store.Store, broker queue.Broker, tc Transcoder, urls *URLBuilder) *Finalizer {
	return &Finalizer{
		cfg:      cfg,
		store:    st,
		broker:   broker,
		media:    tc,
		urls:     urls,
		newID:    func() (string, error) { return gonanoid.New() },
		inflight: make(map[string]struct{}),
	}
}

// acquire 同一推流码同时只允许一个归档流程
func (f *Finalizer) acquire(key string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.inflight[key]; ok {
		return false
	}
	f.inflight[key] = struct{}{}
	return true
}

func (f *Finalizer) release(key string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.inflight, key)
}

func transcriptOf(msgs []*store.ChatMessage) []store.TranscriptEntry {
	entries := make([]store.TranscriptEntry, 0, len(msgs))
	for _, m := range msgs {
		entries = append(entries, store.TranscriptEntry{
			Creator:   m.Creator,
			LiveID:    m.LiveID,
			Content:   m.Content,
			CreatedAt: m.CreatedAt,
		})
	}
	return entries
}

func archiveOf(live *store.LiveStream, archiveID, streamURL string) *store.ArchivedStream {
	return &store.ArchivedStream{
		StreamID:      archiveID,
		LiveID:        live.ID,
		Creator:       live.Creator,
		Title:         live.Title,
		Description:   live.Description,
		Category:      live.Category,
		Thumbnail:     live.Thumbnail,
		Tags:          append([]string(nil), live.Tags...),
		Visibility:    live.Visibility,
		StreamURL:     streamURL,
		NumOfMessages: live.NumOfMessages,
		Likes:         live.Likes,
		Views:         live.Views,
	}
}

// HandleStop 执行归档流程，返回生成的归档记录
// 时长探测与重封装失败不会中断流程，此时同时返回归档记录和 KindDataInconsistency 错误
func (f *Finalizer) HandleStop(ctx context.Context, sess ingest.Session) (archived *store.ArchivedStream, err error) {
	key := sess.StreamKey()
	start := time.Now()
	defer func() {
		result := "archived"
		switch {
		case err == nil:
		case archived != nil:
			result = "degraded"
		case KindOf(err) == KindDuplicateFinalization:
			result = "duplicate"
		default:
			result = "failed"
		}
		metrics.Finalizations.WithLabelValues(result).Inc()
		if archived != nil {
			metrics.FinalizationDuration.Observe(time.Since(start).Seconds())
		}
	}()

	if key == "" {
		return nil, newError(KindDuplicateFinalization, "finalize", key, errEmptyStreamKey)
	}
	if !f.acquire(key) {
		return nil, newError(KindDuplicateFinalization, "finalize", key, errInProgress)
	}
	defer f.release(key)

	live, err := f.store.FindLiveStreamByKey(ctx, key)
	if errors.Is(err, store.ErrNotFound) || (err == nil && !live.IsActive) {
		return nil, newError(KindDuplicateFinalization, "finalize", key, errNotActive)
	}
	if err != nil {
		return nil, newError(KindTransientIO, "lookup live stream", key, err)
	}

	archiveID, err := f.newID()
	if err != nil {
		return nil, newError(KindTransientIO, "generate archive id", key, err)
	}
	logger := logrus.WithFields(logrus.Fields{
		"stream_key": key,
		"session_id": sess.ID,
		"archive_id": archiveID,
	})

	rawPath := f.cfg.RawRecordingPath(key)
	archivePath := f.cfg.ArchivePath(key, archiveID)
	if err := os.Rename(rawPath, archivePath); err != nil {
		if !os.IsNotExist(err) {
			// 直播记录保持活动状态，重发的结束信号可以再次尝试
			return nil, newError(KindTransientIO, "relocate recording", key, err)
		}
		// 没有录像可归档，仍然结束直播
		if _, derr := f.store.DeactivateLiveStream(ctx, key); derr != nil && !errors.Is(derr, store.ErrNotFound) {
			logger.WithError(derr).Warn("failed to deactivate live stream without recording")
		}
		return nil, newError(KindDataInconsistency, "relocate recording", key, err)
	}

	before, err := f.store.DeactivateLiveStream(ctx, key)
	if err != nil {
		// 录像放回原处，重发的结束信号才能再次归档
		if rerr := os.Rename(archivePath, rawPath); rerr != nil {
			logger.WithError(rerr).WithFields(logrus.Fields{
				"archive_path": archivePath,
				"raw_path":     rawPath,
			}).Error("recording relocated but live stream not deactivated")
		}
		if errors.Is(err, store.ErrNotFound) {
			return nil, newError(KindDuplicateFinalization, "deactivate live stream", key, errNotActive)
		}
		return nil, newError(KindTransientIO, "deactivate live stream", key, err)
	}

	msgs, err := f.store.ListChatMessages(ctx, before.ID)
	if err != nil {
		return nil, newError(KindTransientIO, "load chat messages", key, err)
	}
	if err := f.store.SaveChatTranscript(ctx, &store.ArchivedChatTranscript{
		StreamID: archiveID,
		Content:  transcriptOf(msgs),
	}); err != nil {
		return nil, newError(KindTransientIO, "save chat transcript", key, err)
	}

	streamURL, err := f.urls.Playback(key, archiveID)
	if err != nil {
		return nil, newError(KindTransientIO, "render playback url", key, err)
	}
	archived = archiveOf(before, archiveID, streamURL)
	if err := f.store.CreateArchivedStream(ctx, archived); err != nil {
		return nil, newError(KindTransientIO, "create archived stream", key, err)
	}

	moved, err := f.store.RekeyLikes(ctx, before.ID, archiveID)
	if err != nil {
		return archived, newError(KindTransientIO, "rekey likes", key, err)
	}
	if _, err := f.store.DeleteChatMessages(ctx, before.ID); err != nil {
		return archived, newError(KindTransientIO, "delete chat messages", key, err)
	}

	var degraded error
	if seconds, err := f.media.ProbeDuration(ctx, archivePath); err != nil {
		degraded = newError(KindDataInconsistency, "probe duration", key, err)
		logger.WithError(err).WithField("error_kind", KindDataInconsistency.String()).Warn("duration probe failed")
	} else {
		archived.Duration = media.FormatDuration(seconds)
		if err := f.store.UpdateArchivedDuration(ctx, archiveID, archived.Duration); err != nil {
			degraded = newError(KindDataInconsistency, "update duration", key, err)
			logger.WithError(err).Warn("failed to save duration")
		}
	}

	if err := f.media.Remux(ctx, archivePath); err != nil {
		degraded = newError(KindDataInconsistency, "remux", key, err)
		logger.WithError(err).WithField("error_kind", KindDataInconsistency.String()).Warn("remux failed")
	}

	if err := f.broker.Enqueue(ctx, queue.CompressionJob{StreamPath: archivePath}); err != nil {
		return archived, newError(KindTransientIO, "enqueue compression", key, err)
	}

	logger.WithFields(logrus.Fields{
		"duration":      archived.Duration,
		"messages":      len(msgs),
		"likes_rekeyed": moved,
	}).Info("stream archived")
	return archived, degraded
}
