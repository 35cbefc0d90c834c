package lifecycle

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/bililive-go/livearchiver/src/ingest"
	"github.com/bililive-go/livearchiver/src/pkg/events"
)

// logOutcome 处理结果只记录日志，不向事件源返回
func logOutcome(entry *logrus.Entry, err error, success string) {
	if err == nil {
		entry.Debug(success)
		return
	}
	entry = entry.WithError(err).WithField("error_kind", KindOf(err).String())
	switch KindOf(err) {
	case KindAdmissionRejected:
		entry.Warn("session rejected")
	case KindDuplicateFinalization:
		entry.Info("ignoring stop signal")
	case KindDataInconsistency:
		entry.Warn("finalization finished in degraded state")
	default:
		entry.Error("lifecycle handler failed")
	}
}

// RegisterListeners 把准入与归档挂到引擎生命周期事件上
// 归档一旦开始不随 ctx 取消而中断
func RegisterListeners(ctx context.Context, ed events.Dispatcher, admission *Admission, finalizer *Finalizer) {
	handlerCtx := context.WithoutCancel(ctx)

	ed.AddEventListener(ingest.IngestStart, events.NewEventListener(func(event *events.Event) {
		sess, ok := event.Object.(ingest.Session)
		if !ok {
			return
		}
		err := admission.HandleStart(handlerCtx, sess)
		logOutcome(logrus.WithFields(logrus.Fields{
			"session_id": sess.ID,
			"stream_key": sess.StreamKey(),
		}), err, "admission handled")
	}))

	ed.AddEventListener(ingest.IngestStop, events.NewEventListener(func(event *events.Event) {
		sess, ok := event.Object.(ingest.Session)
		if !ok {
			return
		}
		_, err := finalizer.HandleStop(handlerCtx, sess)
		logOutcome(logrus.WithFields(logrus.Fields{
			"session_id": sess.ID,
			"stream_key": sess.StreamKey(),
		}), err, "finalization handled")
	}))
}
