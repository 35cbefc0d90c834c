package store

import "time"

// LiveStream 正在进行（或已预置）的直播记录
type LiveStream struct {
	ID                string    `json:"id"`
	StreamKey         string    `json:"stream_key"` // 推流密钥，唯一
	Creator           string    `json:"creator"`    // 主播身份
	Title             string    `json:"title"`
	Description       string    `json:"description"`
	Category          string    `json:"category"`
	Tags              []string  `json:"tags"`
	Visibility        string    `json:"visibility"`
	IsActive          bool      `json:"is_active"`
	Thumbnail         string    `json:"thumbnail"`
	Views             int64     `json:"views"`
	Likes             int64     `json:"likes"`
	CurrentlyWatching int64     `json:"currently_watching"`
	NumOfMessages     int64     `json:"num_of_messages"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// ArchivedStream 结束后生成的点播记录
type ArchivedStream struct {
	ID            string    `json:"id"`
	StreamID      string    `json:"stream_id"` // 归档 ID
	LiveID        string    `json:"live_id"`   // 来源直播记录
	Creator       string    `json:"creator"`
	Title         string    `json:"title"`
	Description   string    `json:"description"`
	Category      string    `json:"category"`
	Thumbnail     string    `json:"thumbnail"`
	Tags          []string  `json:"tags"`
	Visibility    string    `json:"visibility"`
	StreamURL     string    `json:"stream_url"`
	Duration      string    `json:"duration"` // 探测后异步填充，格式 H:MM:SS
	NumOfMessages int64     `json:"num_of_messages"`
	Likes         int64     `json:"likes"`
	Views         int64     `json:"views"`
	CreatedAt     time.Time `json:"created_at"`
}

type ChatMessage struct {
	ID        string    `json:"id"`
	LiveID    string    `json:"live_id"`
	Creator   string    `json:"creator"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// TranscriptEntry 归档聊天记录中的一条
type TranscriptEntry struct {
	Creator   string    `json:"creator"`
	LiveID    string    `json:"liveId"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

// ArchivedChatTranscript 按时间排序的完整聊天记录，以归档 ID 为键
type ArchivedChatTranscript struct {
	StreamID  string            `json:"stream_id"`
	Content   []TranscriptEntry `json:"content"`
	CreatedAt time.Time         `json:"created_at"`
}

// Like 观众与直播（LiveID）或归档（StreamID）的关联，两者只会有一个非空
type Like struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	LiveID    string    `json:"live_id,omitempty"`
	StreamID  string    `json:"stream_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
