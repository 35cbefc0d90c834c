package store

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore 进程内存储，用于测试与无持久化需求的开发环境
type MemoryStore struct {
	mu          sync.RWMutex
	lives       map[string]*LiveStream // key: stream key
	archives    map[string]*ArchivedStream
	transcripts map[string]*ArchivedChatTranscript
	chats       []*ChatMessage
	likes       []*Like
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		lives:       make(map[string]*LiveStream),
		archives:    make(map[string]*ArchivedStream),
		transcripts: make(map[string]*ArchivedChatTranscript),
	}
}

func cloneLive(l *LiveStream) *LiveStream {
	c := *l
	c.Tags = append([]string(nil), l.Tags...)
	return &c
}

func cloneArchived(a *ArchivedStream) *ArchivedStream {
	c := *a
	c.Tags = append([]string(nil), a.Tags...)
	return &c
}

func (m *MemoryStore) UpsertLiveStream(_ context.Context, live *LiveStream) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	if existing, ok := m.lives[live.StreamKey]; ok {
		live.ID = existing.ID
		live.CreatedAt = existing.CreatedAt
	}
	if live.ID == "" {
		live.ID = newID()
	}
	if live.CreatedAt.IsZero() {
		live.CreatedAt = now
	}
	live.UpdatedAt = now
	m.lives[live.StreamKey] = cloneLive(live)
	return nil
}

func (m *MemoryStore) FindLiveStreamByKey(_ context.Context, streamKey string) (*LiveStream, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	live, ok := m.lives[streamKey]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneLive(live), nil
}

func (m *MemoryStore) ActivateLiveStream(_ context.Context, streamKey, thumbnail string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	live, ok := m.lives[streamKey]
	if !ok {
		return ErrNotFound
	}
	live.IsActive = true
	live.Thumbnail = thumbnail
	live.Views, live.Likes, live.CurrentlyWatching, live.NumOfMessages = 0, 0, 0, 0
	live.UpdatedAt = time.Now()
	return nil
}

func (m *MemoryStore) DeactivateLiveStream(_ context.Context, streamKey string) (*LiveStream, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	live, ok := m.lives[streamKey]
	if !ok || !live.IsActive {
		return nil, ErrNotFound
	}
	before := cloneLive(live)
	live.IsActive = false
	live.UpdatedAt = time.Now()
	return before, nil
}

func (m *MemoryStore) InsertChatMessage(_ context.Context, msg *ChatMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if msg.ID == "" {
		msg.ID = newID()
	}
	for _, c := range m.chats {
		if c.ID == msg.ID {
			return ErrAlreadyExists
		}
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}
	c := *msg
	m.chats = append(m.chats, &c)
	return nil
}

func (m *MemoryStore) ListChatMessages(_ context.Context, liveID string) ([]*ChatMessage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var msgs []*ChatMessage
	for _, c := range m.chats {
		if c.LiveID == liveID {
			cp := *c
			msgs = append(msgs, &cp)
		}
	}
	sort.SliceStable(msgs, func(i, j int) bool { return msgs[i].CreatedAt.Before(msgs[j].CreatedAt) })
	return msgs, nil
}

func (m *MemoryStore) deleteChats(match func(*ChatMessage) bool) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.chats[:0]
	var n int64
	for _, c := range m.chats {
		if match(c) {
			n++
			continue
		}
		kept = append(kept, c)
	}
	m.chats = kept
	return n
}

func (m *MemoryStore) DeleteChatMessages(_ context.Context, liveID string) (int64, error) {
	return m.deleteChats(func(c *ChatMessage) bool { return c.LiveID == liveID }), nil
}

func (m *MemoryStore) DeleteChatMessagesBefore(_ context.Context, cutoff time.Time) (int64, error) {
	return m.deleteChats(func(c *ChatMessage) bool { return c.CreatedAt.Before(cutoff) }), nil
}

func (m *MemoryStore) InsertLike(_ context.Context, like *Like) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if like.ID == "" {
		like.ID = newID()
	}
	for _, l := range m.likes {
		if l.ID == like.ID {
			return ErrAlreadyExists
		}
	}
	if like.CreatedAt.IsZero() {
		like.CreatedAt = time.Now()
	}
	l := *like
	m.likes = append(m.likes, &l)
	return nil
}

func (m *MemoryStore) CountLikes(_ context.Context, ref string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var n int64
	for _, l := range m.likes {
		if ref != "" && (l.LiveID == ref || l.StreamID == ref) {
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) DeleteLikes(_ context.Context, liveID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.removeLikesLocked(liveID), nil
}

func (m *MemoryStore) removeLikesLocked(liveID string) int64 {
	kept := m.likes[:0]
	var n int64
	for _, l := range m.likes {
		if l.LiveID == liveID {
			n++
			continue
		}
		kept = append(kept, l)
	}
	m.likes = kept
	return n
}

func (m *MemoryStore) RekeyLikes(_ context.Context, liveID, archiveID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	var created []*Like
	for _, l := range m.likes {
		if l.LiveID == liveID {
			created = append(created, &Like{ID: newID(), UserID: l.UserID, StreamID: archiveID, CreatedAt: now})
		}
	}
	m.removeLikesLocked(liveID)
	m.likes = append(m.likes, created...)
	return int64(len(created)), nil
}

func (m *MemoryStore) SaveChatTranscript(_ context.Context, transcript *ArchivedChatTranscript) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.transcripts[transcript.StreamID]; ok {
		return ErrAlreadyExists
	}
	if transcript.CreatedAt.IsZero() {
		transcript.CreatedAt = time.Now()
	}
	c := *transcript
	c.Content = append([]TranscriptEntry{}, transcript.Content...)
	m.transcripts[transcript.StreamID] = &c
	return nil
}

func (m *MemoryStore) GetChatTranscript(_ context.Context, archiveID string) (*ArchivedChatTranscript, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	t, ok := m.transcripts[archiveID]
	if !ok {
		return nil, ErrNotFound
	}
	c := *t
	c.Content = append([]TranscriptEntry{}, t.Content...)
	return &c, nil
}

func (m *MemoryStore) CreateArchivedStream(_ context.Context, archived *ArchivedStream) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.archives[archived.StreamID]; ok {
		return ErrAlreadyExists
	}
	if archived.ID == "" {
		archived.ID = newID()
	}
	if archived.CreatedAt.IsZero() {
		archived.CreatedAt = time.Now()
	}
	m.archives[archived.StreamID] = cloneArchived(archived)
	return nil
}

func (m *MemoryStore) GetArchivedStream(_ context.Context, archiveID string) (*ArchivedStream, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	a, ok := m.archives[archiveID]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneArchived(a), nil
}

func (m *MemoryStore) CountArchivedStreams(_ context.Context, liveID string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var n int64
	for _, a := range m.archives {
		if a.LiveID == liveID {
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) UpdateArchivedDuration(_ context.Context, archiveID, duration string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.archives[archiveID]
	if !ok {
		return ErrNotFound
	}
	a.Duration = duration
	return nil
}

func (m *MemoryStore) Close() error {
	return nil
}
