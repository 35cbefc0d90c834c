package ingest

import (
	"github.com/bililive-go/livearchiver/src/pkg/events"
)

const (
	// IngestStart 引擎开始接收推流
	IngestStart events.EventType = "IngestStart"
	// IngestStop 推流结束
	IngestStop events.EventType = "IngestStop"
)

// Session 引擎回调携带的会话信息
type Session struct {
	ID   string            `json:"id"`
	Path string            `json:"path"`
	Args map[string]string `json:"args,omitempty"`
}

func (s Session) StreamKey() string {
	return ResolveStreamKey(s.Path)
}

// EventKey 同一推流码的开始与结束事件按到达顺序处理
func (s Session) EventKey() string {
	return s.StreamKey()
}
