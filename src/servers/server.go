// Package servers 引擎生命周期回调与运维 HTTP 接口
package servers

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/bililive-go/livearchiver/src/compression"
	"github.com/bililive-go/livearchiver/src/configs"
	"github.com/bililive-go/livearchiver/src/pkg/events"
	bilisentry "github.com/bililive-go/livearchiver/src/pkg/sentry"
	"github.com/bililive-go/livearchiver/src/store"
)

// JobLister 正在执行的压缩任务
type JobLister interface {
	RunningJobs() []compression.Job
}

type ArchiveReader interface {
	GetArchivedStream(ctx context.Context, archiveID string) (*store.ArchivedStream, error)
}

type Server struct {
	server     *http.Server
	dispatcher events.Dispatcher
	jobs       JobLister
	archives   ArchiveReader
	mediaRoot  string
}

func NewServer(cfg *configs.Config, dispatcher events.Dispatcher, jobs JobLister, archives ArchiveReader) *Server {
	s := &Server{
		dispatcher: dispatcher,
		jobs:       jobs,
		archives:   archives,
		mediaRoot:  cfg.Media.Root,
	}
	s.server = &http.Server{
		Addr:              cfg.RPC.Bind,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler 返回完整的路由
func (s *Server) Handler() http.Handler {
	m := mux.NewRouter()
	m.Use(log)

	hooks := m.PathPrefix("/hooks").Subrouter()
	hooks.HandleFunc("/publish", s.ingestHook(ingestStart)).Methods(http.MethodPost)
	hooks.HandleFunc("/unpublish", s.ingestHook(ingestStop)).Methods(http.MethodPost)

	api := m.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", s.getHealth).Methods(http.MethodGet)
	api.HandleFunc("/compression/jobs", s.getCompressionJobs).Methods(http.MethodGet)
	api.HandleFunc("/archives/{id}", s.getArchive).Methods(http.MethodGet)

	m.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	return m
}

// Start 在后台监听，监听失败直接返回错误
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return err
	}
	bilisentry.Go(func() {
		switch err := s.server.Serve(ln); {
		case errors.Is(err, http.ErrServerClosed):
			logrus.Info("server closed")
		default:
			logrus.WithError(err).Error("server stopped unexpectedly")
		}
	})
	logrus.WithField("bind", ln.Addr().String()).Info("server started")
	return nil
}

func (s *Server) Close(ctx context.Context) {
	if err := s.server.Shutdown(ctx); err != nil {
		logrus.WithError(err).Warn("failed to shutdown server")
	}
}
