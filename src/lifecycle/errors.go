package lifecycle

import (
	"errors"
	"fmt"
)

// Kind 生命周期处理失败的分类
type Kind int

const (
	KindUnknown Kind = iota
	// KindAdmissionRejected 未知推流码，会话已被断开
	KindAdmissionRejected
	// KindTransientIO 文件移动、子进程、网络或数据库操作失败，本层不重试
	KindTransientIO
	// KindDuplicateFinalization 已归档或未知直播的结束信号，直接忽略
	KindDuplicateFinalization
	// KindDataInconsistency 归档已生成但时长探测或重封装失败，需要人工核对
	KindDataInconsistency
)

func (k Kind) String() string {
	switch k {
	case KindAdmissionRejected:
		return "admission_rejected"
	case KindTransientIO:
		return "transient_io"
	case KindDuplicateFinalization:
		return "duplicate_finalization"
	case KindDataInconsistency:
		return "data_inconsistency"
	default:
		return "unknown"
	}
}

// Error 带分类的错误
type Error struct {
	Kind      Kind
	Op        string
	StreamKey string
	Err       error
}

func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.StreamKey != "" {
		msg += fmt.Sprintf(" (stream %s)", e.StreamKey)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is 与只设置了 Kind 的哨兵错误比较
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Op == "" && t.Err == nil && t.StreamKey == "" && t.Kind == e.Kind
}

var (
	ErrAdmissionRejected     = &Error{Kind: KindAdmissionRejected}
	ErrTransientIO           = &Error{Kind: KindTransientIO}
	ErrDuplicateFinalization = &Error{Kind: KindDuplicateFinalization}
	ErrDataInconsistency     = &Error{Kind: KindDataInconsistency}

	errUnknownStreamKey = errors.New("unknown stream key")
	errEmptyStreamKey   = errors.New("empty stream key")
	errNotActive        = errors.New("no active live stream")
	errInProgress       = errors.New("finalization already in progress")
)

func newError(kind Kind, op, streamKey string, err error) *Error {
	return &Error{Kind: kind, Op: op, StreamKey: streamKey, Err: err}
}

// KindOf 返回错误链中第一个 *Error 的分类
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}
