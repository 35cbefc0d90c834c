package log

import (
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/bililive-go/livearchiver/src/configs"
	"github.com/bililive-go/livearchiver/src/consts"
)

const timestampFormat = "2006-01-02 15:04:05"

// New 配置全局 logrus Logger，返回的 io.Closer 在退出时关闭日志文件
func New(cfg *configs.Config) (*logrus.Logger, io.Closer, error) {
	logger := logrus.StandardLogger()

	var out io.Writer = os.Stderr
	var closer io.Closer = io.NopCloser(nil)
	if cfg.Log.SaveLastLog {
		if err := os.MkdirAll(cfg.Log.OutPutFolder, 0o755); err != nil {
			return nil, nil, fmt.Errorf("failed to create log output folder %s: %w", cfg.Log.OutPutFolder, err)
		}
		files := newDailyFiles(cfg.Log.OutPutFolder, consts.AppName, cfg.Log.RotateDays)
		out = io.MultiWriter(os.Stderr, files)
		closer = files
	}
	logger.SetOutput(out)

	formatter, err := newFormatter(cfg.Log.Format)
	if err != nil {
		return nil, nil, err
	}
	logger.SetFormatter(formatter)

	level := logrus.InfoLevel
	if cfg.Debug {
		level = logrus.DebugLevel
	}
	logger.SetLevel(level)
	logger.SetReportCaller(cfg.Debug)
	return logger, closer, nil
}

func newFormatter(format string) (logrus.Formatter, error) {
	switch format {
	case "", "text":
		return &logrus.TextFormatter{DisableColors: true, FullTimestamp: true, TimestampFormat: timestampFormat}, nil
	case "json":
		return &logrus.JSONFormatter{TimestampFormat: timestampFormat}, nil
	default:
		return nil, fmt.Errorf("unknown log format %q", format)
	}
}

// WithStream 带推流码字段的日志
func WithStream(streamKey string) *logrus.Entry {
	return logrus.WithField("stream_key", streamKey)
}
