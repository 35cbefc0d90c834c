package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	uuid "github.com/satori/go.uuid"
	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"github.com/bililive-go/livearchiver/src/pkg/migration"
)

// SQLiteStore 基于 modernc sqlite 的存储实现
type SQLiteStore struct {
	db     *sql.DB
	dbPath string
	mu     sync.RWMutex
}

func newID() string {
	return uuid.Must(uuid.NewV4()).String()
}

func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

func openSQLite(dbPath string) (*sql.DB, error) {
	dsn := dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
	return sql.Open("sqlite", dsn)
}

// NewSQLiteStore 打开数据库并执行迁移
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}
	db, err := openSQLite(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	s := &SQLiteStore{db: db, dbPath: dbPath}
	if err := s.runMigrations(); err != nil {
		s.db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) runMigrations() error {
	m, err := migration.New(s.dbPath, s.db, archiveSchema())
	if err != nil {
		return err
	}

	recovered, err := m.Recover()
	if err != nil {
		return err
	}
	if recovered {
		// 数据库文件已被替换，需要重新打开连接
		logrus.WithField("db_path", s.dbPath).Warn("recovered from an incomplete migration")
		s.db.Close()
		db, err := openSQLite(s.dbPath)
		if err != nil {
			return fmt.Errorf("failed to reopen database after recovery: %w", err)
		}
		s.db = db
		if m, err = migration.New(s.dbPath, s.db, archiveSchema()); err != nil {
			return err
		}
	}

	result, err := m.Up()
	if err != nil {
		return err
	}
	if result.Snapshot != "" {
		logrus.WithField("snapshot", result.Snapshot).Debug("database snapshot created")
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

func encodeTags(tags []string) string {
	if tags == nil {
		tags = []string{}
	}
	b, _ := json.Marshal(tags)
	return string(b)
}

func decodeTags(raw string) []string {
	var tags []string
	if err := json.Unmarshal([]byte(raw), &tags); err != nil || len(tags) == 0 {
		return nil
	}
	return tags
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

const liveStreamColumns = `id, stream_key, creator, title, description, category, tags, visibility, is_active,
	thumbnail, views, likes, currently_watching, num_of_messages, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLiveStream(row rowScanner) (*LiveStream, error) {
	live := &LiveStream{}
	var tags string
	var isActive int
	var createdAt, updatedAt int64
	err := row.Scan(&live.ID, &live.StreamKey, &live.Creator, &live.Title, &live.Description, &live.Category,
		&tags, &live.Visibility, &isActive, &live.Thumbnail, &live.Views, &live.Likes,
		&live.CurrentlyWatching, &live.NumOfMessages, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	live.Tags = decodeTags(tags)
	live.IsActive = isActive == 1
	live.CreatedAt = fromMillis(createdAt)
	live.UpdatedAt = fromMillis(updatedAt)
	return live, nil
}

// UpsertLiveStream 按推流密钥创建或更新直播记录
func (s *SQLiteStore) UpsertLiveStream(ctx context.Context, live *LiveStream) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	if live.ID == "" {
		live.ID = newID()
	}
	if live.CreatedAt.IsZero() {
		live.CreatedAt = now
	}
	live.UpdatedAt = now
	isActive := 0
	if live.IsActive {
		isActive = 1
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO live_streams (`+liveStreamColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(stream_key) DO UPDATE SET
			creator = excluded.creator,
			title = excluded.title,
			description = excluded.description,
			category = excluded.category,
			tags = excluded.tags,
			visibility = excluded.visibility,
			is_active = excluded.is_active,
			thumbnail = excluded.thumbnail,
			views = excluded.views,
			likes = excluded.likes,
			currently_watching = excluded.currently_watching,
			num_of_messages = excluded.num_of_messages,
			updated_at = excluded.updated_at
	`, live.ID, live.StreamKey, live.Creator, live.Title, live.Description, live.Category,
		encodeTags(live.Tags), live.Visibility, isActive, live.Thumbnail, live.Views, live.Likes,
		live.CurrentlyWatching, live.NumOfMessages, toMillis(live.CreatedAt), toMillis(live.UpdatedAt))
	if err != nil {
		return err
	}
	// 冲突更新时保留原有 ID
	return s.db.QueryRowContext(ctx, `SELECT id FROM live_streams WHERE stream_key = ?`, live.StreamKey).Scan(&live.ID)
}

func (s *SQLiteStore) FindLiveStreamByKey(ctx context.Context, streamKey string) (*LiveStream, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `SELECT `+liveStreamColumns+` FROM live_streams WHERE stream_key = ?`, streamKey)
	return scanLiveStream(row)
}

func (s *SQLiteStore) ActivateLiveStream(ctx context.Context, streamKey, thumbnail string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		UPDATE live_streams
		SET is_active = 1, thumbnail = ?, views = 0, likes = 0, currently_watching = 0, num_of_messages = 0, updated_at = ?
		WHERE stream_key = ?
	`, thumbnail, toMillis(time.Now()), streamKey)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) DeactivateLiveStream(ctx context.Context, streamKey string) (*LiveStream, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	live, err := scanLiveStream(tx.QueryRowContext(ctx,
		`SELECT `+liveStreamColumns+` FROM live_streams WHERE stream_key = ? AND is_active = 1`, streamKey))
	if err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx, `UPDATE live_streams SET is_active = 0, updated_at = ? WHERE id = ?`,
		toMillis(time.Now()), live.ID); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return live, nil
}

func (s *SQLiteStore) InsertChatMessage(ctx context.Context, msg *ChatMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if msg.ID == "" {
		msg.ID = newID()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO chat_messages (id, live_id, creator, content, created_at) VALUES (?, ?, ?, ?, ?)`,
		msg.ID, msg.LiveID, msg.Creator, msg.Content, toMillis(msg.CreatedAt))
	if isUniqueViolation(err) {
		return ErrAlreadyExists
	}
	return err
}

func (s *SQLiteStore) ListChatMessages(ctx context.Context, liveID string) ([]*ChatMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, live_id, creator, content, created_at
		FROM chat_messages WHERE live_id = ?
		ORDER BY created_at ASC, rowid ASC
	`, liveID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var msgs []*ChatMessage
	for rows.Next() {
		msg := &ChatMessage{}
		var createdAt int64
		if err := rows.Scan(&msg.ID, &msg.LiveID, &msg.Creator, &msg.Content, &createdAt); err != nil {
			return nil, err
		}
		msg.CreatedAt = fromMillis(createdAt)
		msgs = append(msgs, msg)
	}
	return msgs, rows.Err()
}

func (s *SQLiteStore) exec(ctx context.Context, query string, args ...any) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *SQLiteStore) DeleteChatMessages(ctx context.Context, liveID string) (int64, error) {
	return s.exec(ctx, `DELETE FROM chat_messages WHERE live_id = ?`, liveID)
}

func (s *SQLiteStore) DeleteChatMessagesBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	return s.exec(ctx, `DELETE FROM chat_messages WHERE created_at < ?`, toMillis(cutoff))
}

func (s *SQLiteStore) InsertLike(ctx context.Context, like *Like) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if like.ID == "" {
		like.ID = newID()
	}
	if like.CreatedAt.IsZero() {
		like.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO likes (id, user_id, live_id, stream_id, created_at) VALUES (?, ?, ?, ?, ?)`,
		like.ID, like.UserID, like.LiveID, like.StreamID, toMillis(like.CreatedAt))
	if isUniqueViolation(err) {
		return ErrAlreadyExists
	}
	return err
}

func (s *SQLiteStore) CountLikes(ctx context.Context, ref string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM likes WHERE (live_id = ? AND live_id != '') OR (stream_id = ? AND stream_id != '')`,
		ref, ref).Scan(&n)
	return n, err
}

func (s *SQLiteStore) DeleteLikes(ctx context.Context, liveID string) (int64, error) {
	return s.exec(ctx, `DELETE FROM likes WHERE live_id = ?`, liveID)
}

// RekeyLikes 在一个事务内为每条点赞创建指向归档的新记录并删除原记录
func (s *SQLiteStore) RekeyLikes(ctx context.Context, liveID, archiveID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `SELECT user_id FROM likes WHERE live_id = ?`, liveID)
	if err != nil {
		return 0, err
	}
	var users []string
	for rows.Next() {
		var userID string
		if err := rows.Scan(&userID); err != nil {
			rows.Close()
			return 0, err
		}
		users = append(users, userID)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	now := toMillis(time.Now())
	for _, userID := range users {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO likes (id, user_id, live_id, stream_id, created_at) VALUES (?, ?, '', ?, ?)`,
			newID(), userID, archiveID, now); err != nil {
			return 0, err
		}
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM likes WHERE live_id = ?`, liveID); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return int64(len(users)), nil
}

func (s *SQLiteStore) SaveChatTranscript(ctx context.Context, transcript *ArchivedChatTranscript) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if transcript.CreatedAt.IsZero() {
		transcript.CreatedAt = time.Now()
	}
	content := transcript.Content
	if content == nil {
		content = []TranscriptEntry{}
	}
	b, err := json.Marshal(content)
	if err != nil {
		return fmt.Errorf("failed to encode transcript: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO archived_chats (stream_id, content, created_at) VALUES (?, ?, ?)`,
		transcript.StreamID, string(b), toMillis(transcript.CreatedAt))
	if isUniqueViolation(err) {
		return ErrAlreadyExists
	}
	return err
}

func (s *SQLiteStore) GetChatTranscript(ctx context.Context, archiveID string) (*ArchivedChatTranscript, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	transcript := &ArchivedChatTranscript{}
	var content string
	var createdAt int64
	err := s.db.QueryRowContext(ctx, `SELECT stream_id, content, created_at FROM archived_chats WHERE stream_id = ?`,
		archiveID).Scan(&transcript.StreamID, &content, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(content), &transcript.Content); err != nil {
		return nil, fmt.Errorf("failed to decode transcript: %w", err)
	}
	transcript.CreatedAt = fromMillis(createdAt)
	return transcript, nil
}

func (s *SQLiteStore) CreateArchivedStream(ctx context.Context, archived *ArchivedStream) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if archived.ID == "" {
		archived.ID = newID()
	}
	if archived.CreatedAt.IsZero() {
		archived.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO archived_streams (id, stream_id, live_id, creator, title, description, category, thumbnail,
			tags, visibility, stream_url, duration, num_of_messages, likes, views, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, archived.ID, archived.StreamID, archived.LiveID, archived.Creator, archived.Title, archived.Description,
		archived.Category, archived.Thumbnail, encodeTags(archived.Tags), archived.Visibility, archived.StreamURL,
		archived.Duration, archived.NumOfMessages, archived.Likes, archived.Views, toMillis(archived.CreatedAt))
	if isUniqueViolation(err) {
		return ErrAlreadyExists
	}
	return err
}

func (s *SQLiteStore) GetArchivedStream(ctx context.Context, archiveID string) (*ArchivedStream, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a := &ArchivedStream{}
	var tags string
	var createdAt int64
	err := s.db.QueryRowContext(ctx, `
		SELECT id, stream_id, live_id, creator, title, description, category, thumbnail, tags, visibility,
			stream_url, duration, num_of_messages, likes, views, created_at
		FROM archived_streams WHERE stream_id = ?
	`, archiveID).Scan(&a.ID, &a.StreamID, &a.LiveID, &a.Creator, &a.Title, &a.Description, &a.Category,
		&a.Thumbnail, &tags, &a.Visibility, &a.StreamURL, &a.Duration, &a.NumOfMessages, &a.Likes, &a.Views, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	a.Tags = decodeTags(tags)
	a.CreatedAt = fromMillis(createdAt)
	return a, nil
}

func (s *SQLiteStore) CountArchivedStreams(ctx context.Context, liveID string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM archived_streams WHERE live_id = ?`, liveID).Scan(&n)
	return n, err
}

func (s *SQLiteStore) UpdateArchivedDuration(ctx context.Context, archiveID, duration string) error {
	n, err := s.exec(ctx, `UPDATE archived_streams SET duration = ? WHERE stream_id = ?`, duration, archiveID)
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
