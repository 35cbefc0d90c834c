package ingest

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/cenkalti/backoff/v4"
	"github.com/hr3lxphr6j/requests"
	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"

	"github.com/bililive-go/livearchiver/src/configs"
)

//go:generate mockgen -source=engine.go -destination=../lifecycle/mock_engine_test.go -package=lifecycle

// Engine 推流引擎对外提供的操作
type Engine interface {
	// RejectSession 断开一个推流会话
	RejectSession(ctx context.Context, sessionID string) error
	// ActiveStreams 返回当前应用下正在推流的推流码
	ActiveStreams(ctx context.Context) ([]string, error)
}

type basicAuthTransport struct {
	user, pass string
	base       http.RoundTripper
}

func (t *basicAuthTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.user == "" && t.pass == "" {
		return t.base.RoundTrip(req)
	}
	req = req.Clone(req.Context())
	req.SetBasicAuth(t.user, t.pass)
	return t.base.RoundTrip(req)
}

// HTTPEngine 通过引擎 HTTP 管理 API 实现 Engine
type HTTPEngine struct {
	cfg     configs.Engine
	session *requests.Session
}

func NewHTTPEngine(cfg configs.Engine) *HTTPEngine {
	client := &http.Client{
		Timeout: cfg.Timeout,
		Transport: &basicAuthTransport{
			user: cfg.User,
			pass: cfg.Pass,
			base: http.DefaultTransport,
		},
	}
	return &HTTPEngine{
		cfg:     cfg,
		session: requests.NewSession(client),
	}
}

func (e *HTTPEngine) endpoint(path string) string {
	return strings.TrimSuffix(e.cfg.APIURL, "/") + path
}

// do 用 requests 构造请求，请求随 ctx 取消
func (e *HTTPEngine) do(ctx context.Context, method, target string) (*requests.Response, error) {
	req, err := requests.NewRequest(method, target)
	if err != nil {
		return nil, backoff.Permanent(err)
	}
	return e.session.Do(req.WithContext(ctx))
}

// retry 对临时错误做指数退避重试，backoff.Permanent 包装的错误立即返回
func (e *HTTPEngine) retry(ctx context.Context, op func() error) error {
	b := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), e.cfg.MaxRetries), ctx)
	return backoff.Retry(op, b)
}

func statusError(op string, code int) error {
	err := fmt.Errorf("%s: unexpected status %d", op, code)
	if code >= 500 || code == http.StatusTooManyRequests {
		return err
	}
	return backoff.Permanent(err)
}

func (e *HTTPEngine) ActiveStreams(ctx context.Context) ([]string, error) {
	var keys []string
	err := e.retry(ctx, func() error {
		resp, err := e.do(ctx, http.MethodGet, e.endpoint("/api/streams"))
		if err != nil {
			return err
		}
		body, err := resp.Bytes()
		if err != nil {
			return err
		}
		if resp.StatusCode == http.StatusUnauthorized || strings.TrimSpace(string(body)) == "Unauthorized" {
			logrus.Warn("engine api rejected credentials, no active streams reported")
			keys = nil
			return nil
		}
		if resp.StatusCode != http.StatusOK {
			return statusError("list streams", resp.StatusCode)
		}
		keys = parseActiveStreams(body, e.cfg.App)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return keys, nil
}

// parseActiveStreams 解析 {"<app>": {"<streamKey>": {...}}}
func parseActiveStreams(body []byte, app string) []string {
	var keys []string
	gjson.ParseBytes(body).ForEach(func(key, value gjson.Result) bool {
		if key.String() != app || !value.IsObject() {
			return true
		}
		value.ForEach(func(stream, _ gjson.Result) bool {
			if k := stream.String(); k != "" {
				keys = append(keys, k)
			}
			return true
		})
		return false
	})
	return keys
}

var errSessionGone = errors.New("session not found")

func (e *HTTPEngine) RejectSession(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return errors.New("empty session id")
	}
	target := e.endpoint(strings.ReplaceAll(e.cfg.RejectPath, "{id}", url.PathEscape(sessionID)))
	err := e.retry(ctx, func() error {
		resp, err := e.do(ctx, http.MethodDelete, target)
		if err != nil {
			return err
		}
		resp.Body.Close()
		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			return nil
		case resp.StatusCode == http.StatusNotFound:
			return backoff.Permanent(errSessionGone)
		default:
			return statusError("reject session", resp.StatusCode)
		}
	})
	if errors.Is(err, errSessionGone) {
		logrus.WithField("session_id", sessionID).Debug("session already gone when rejecting")
		return nil
	}
	return err
}
