package store

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound 记录不存在
	ErrNotFound = errors.New("record not found")
	// ErrAlreadyExists 唯一键冲突
	ErrAlreadyExists = errors.New("record already exists")
)

// Store 直播、归档、聊天与点赞数据的存储接口
type Store interface {
	// 直播记录
	UpsertLiveStream(ctx context.Context, live *LiveStream) error
	FindLiveStreamByKey(ctx context.Context, streamKey string) (*LiveStream, error)
	// ActivateLiveStream 标记为直播中，清零计数并更新封面
	ActivateLiveStream(ctx context.Context, streamKey, thumbnail string) error
	// DeactivateLiveStream 将直播中的记录标记为结束，返回更新前的记录
	// 没有直播中的记录时返回 ErrNotFound
	DeactivateLiveStream(ctx context.Context, streamKey string) (*LiveStream, error)

	// 直播聊天
	InsertChatMessage(ctx context.Context, msg *ChatMessage) error
	// ListChatMessages 按创建时间升序返回
	ListChatMessages(ctx context.Context, liveID string) ([]*ChatMessage, error)
	DeleteChatMessages(ctx context.Context, liveID string) (int64, error)
	// DeleteChatMessagesBefore 删除创建时间早于 cutoff 的消息
	DeleteChatMessagesBefore(ctx context.Context, cutoff time.Time) (int64, error)

	// 点赞
	InsertLike(ctx context.Context, like *Like) error
	// CountLikes 统计引用 ref（直播 ID 或归档 ID）的点赞
	CountLikes(ctx context.Context, ref string) (int64, error)
	DeleteLikes(ctx context.Context, liveID string) (int64, error)
	// RekeyLikes 把 liveID 下的点赞迁移到 archiveID，整个迁移对读者原子可见
	RekeyLikes(ctx context.Context, liveID, archiveID string) (int64, error)

	// 归档
	SaveChatTranscript(ctx context.Context, transcript *ArchivedChatTranscript) error
	GetChatTranscript(ctx context.Context, archiveID string) (*ArchivedChatTranscript, error)
	CreateArchivedStream(ctx context.Context, archived *ArchivedStream) error
	GetArchivedStream(ctx context.Context, archiveID string) (*ArchivedStream, error)
	CountArchivedStreams(ctx context.Context, liveID string) (int64, error)
	UpdateArchivedDuration(ctx context.Context, archiveID, duration string) error

	Close() error
}

var (
	_ Store = (*SQLiteStore)(nil)
	_ Store = (*MemoryStore)(nil)
)

// New 按路径创建存储，路径为空时使用内存存储
func New(dbPath string) (Store, error) {
	if dbPath == "" || dbPath == ":memory:" {
		return NewMemoryStore(), nil
	}
	s, err := NewSQLiteStore(dbPath)
	if err != nil {
		return nil, err
	}
	return s, nil
}
