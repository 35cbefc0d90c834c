package servers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"

	"github.com/bililive-go/livearchiver/src/compression"
	"github.com/bililive-go/livearchiver/src/consts"
	"github.com/bililive-go/livearchiver/src/ingest"
	"github.com/bililive-go/livearchiver/src/pkg/events"
	"github.com/bililive-go/livearchiver/src/pkg/hoststats"
	"github.com/bililive-go/livearchiver/src/store"
)

const maxHookBody = 1 << 20

type commonResp struct {
	ErrNo  int    `json:"err_no"`
	ErrMsg string `json:"err_msg"`
	Data   any    `json:"data"`
}

func writeJSON(writer http.ResponseWriter, obj any) {
	writeJsonWithStatusCode(writer, http.StatusOK, obj)
}

func writeJsonWithStatusCode(writer http.ResponseWriter, statusCode int, obj any) {
	writer.Header().Set("Content-Type", "application/json")
	writer.WriteHeader(statusCode)
	if err := json.NewEncoder(writer).Encode(obj); err != nil {
		logrus.WithError(err).Warn("failed to write response")
	}
}

func writeError(writer http.ResponseWriter, statusCode int, msg string) {
	writeJsonWithStatusCode(writer, statusCode, commonResp{ErrNo: statusCode, ErrMsg: msg})
}

type ingestSignal int

const (
	ingestStart ingestSignal = iota
	ingestStop
)

func (s ingestSignal) eventType() events.EventType {
	if s == ingestStop {
		return ingest.IngestStop
	}
	return ingest.IngestStart
}

// parseSession 兼容 JSON 与表单两种回调格式
// 会话 ID 取 id 或 session_id，路径取 path、stream_path，或由 app 与 stream 拼接
func parseSession(r *http.Request) (ingest.Session, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		body, err := io.ReadAll(io.LimitReader(r.Body, maxHookBody))
		if err != nil {
			return ingest.Session{}, err
		}
		if !gjson.ValidBytes(body) {
			return ingest.Session{}, errors.New("invalid json body")
		}
		doc := gjson.ParseBytes(body)
		sess := ingest.Session{
			ID:   firstNonEmpty(doc.Get("id").String(), doc.Get("session_id").String()),
			Path: firstNonEmpty(doc.Get("path").String(), doc.Get("stream_path").String()),
		}
		if sess.Path == "" {
			sess.Path = joinStreamPath(doc.Get("app").String(), doc.Get("stream").String())
		}
		if args := doc.Get("args"); args.IsObject() {
			sess.Args = make(map[string]string)
			args.ForEach(func(k, v gjson.Result) bool {
				sess.Args[k.String()] = v.String()
				return true
			})
		}
		return sess, nil
	}

	if err := r.ParseForm(); err != nil {
		return ingest.Session{}, err
	}
	sess := ingest.Session{
		ID:   firstNonEmpty(r.Form.Get("id"), r.Form.Get("session_id")),
		Path: firstNonEmpty(r.Form.Get("path"), r.Form.Get("stream_path")),
	}
	if sess.Path == "" {
		sess.Path = joinStreamPath(r.Form.Get("app"), r.Form.Get("stream"))
	}
	for k := range r.Form {
		switch k {
		case "id", "session_id", "path", "stream_path", "app", "stream":
			continue
		}
		if sess.Args == nil {
			sess.Args = make(map[string]string)
		}
		sess.Args[k] = r.Form.Get(k)
	}
	return sess, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func joinStreamPath(app, stream string) string {
	if stream == "" {
		return ""
	}
	return "/" + strings.Trim(app, "/") + "/" + stream
}

// ingestHook 分发事件后立即返回 202，处理结果只体现在日志中
func (s *Server) ingestHook(signal ingestSignal) http.HandlerFunc {
	return func(writer http.ResponseWriter, r *http.Request) {
		sess, err := parseSession(r)
		if err != nil {
			writeError(writer, http.StatusBadRequest, fmt.Sprintf("invalid hook body: %s", err))
			return
		}
		if sess.StreamKey() == "" {
			writeError(writer, http.StatusBadRequest, "can not resolve stream key from path")
			return
		}
		s.dispatcher.DispatchEvent(events.NewEvent(signal.eventType(), sess))
		writeJsonWithStatusCode(writer, http.StatusAccepted, commonResp{Data: "accepted"})
	}
}

type healthResp struct {
	App  consts.Info        `json:"app"`
	Host hoststats.Snapshot `json:"host"`
}

func (s *Server) getHealth(writer http.ResponseWriter, r *http.Request) {
	writeJSON(writer, commonResp{Data: healthResp{
		App:  consts.GetAppInfo(),
		Host: hoststats.Collect(s.mediaRoot),
	}})
}

func (s *Server) getCompressionJobs(writer http.ResponseWriter, r *http.Request) {
	jobs := []compression.Job{}
	if s.jobs != nil {
		jobs = append(jobs, s.jobs.RunningJobs()...)
	}
	writeJSON(writer, commonResp{Data: jobs})
}

func (s *Server) getArchive(writer http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	archived, err := s.archives.GetArchivedStream(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(writer, http.StatusNotFound, fmt.Sprintf("archive id: %s can not find", id))
		return
	}
	if err != nil {
		writeError(writer, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(writer, commonResp{Data: archived})
}
