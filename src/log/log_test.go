package log

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bililive-go/livearchiver/src/configs"
)

func TestDailyFiles_RotatesAndPurges(t *testing.T) {
	dir := t.TempDir()
	stale := filepath.Join(dir, "app-2020-01-01.log")
	require.NoError(t, os.WriteFile(stale, []byte("old"), 0o644))

	now := time.Date(2026, 3, 1, 23, 59, 0, 0, time.Local)
	d := newDailyFiles(dir, "app", 3)
	d.clock = func() time.Time { return now }
	defer d.Close()

	_, err := d.Write([]byte("first\n"))
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(dir, "app-2026-03-01.log"))
	assert.NoFileExists(t, stale)

	now = now.Add(2 * time.Minute)
	_, err = d.Write([]byte("second\n"))
	require.NoError(t, err)

	content, err := os.ReadFile(filepath.Join(dir, "app-2026-03-02.log"))
	require.NoError(t, err)
	assert.Equal(t, "second\n", string(content))
}

func TestDailyFiles_KeepsWhenRetentionDisabled(t *testing.T) {
	dir := t.TempDir()
	stale := filepath.Join(dir, "app-2020-01-01.log")
	require.NoError(t, os.WriteFile(stale, []byte("old"), 0o644))

	d := newDailyFiles(dir, "app", 0)
	defer d.Close()
	_, err := d.Write([]byte("x"))
	require.NoError(t, err)
	assert.FileExists(t, stale)
}

func TestNew(t *testing.T) {
	defer logrus.SetOutput(os.Stderr)
	defer logrus.SetFormatter(&logrus.TextFormatter{})

	cfg := configs.NewConfig()
	cfg.Debug = true
	logger, closer, err := New(cfg)
	require.NoError(t, err)
	require.NoError(t, closer.Close())
	assert.Equal(t, logrus.DebugLevel, logger.GetLevel())

	cfg.Debug = false
	cfg.Log.SaveLastLog = true
	cfg.Log.OutPutFolder = filepath.Join(t.TempDir(), "logs")
	logger, closer, err = New(cfg)
	require.NoError(t, err)
	assert.Equal(t, logrus.InfoLevel, logger.GetLevel())
	logger.Info("hello")
	require.NoError(t, closer.Close())

	matches, _ := filepath.Glob(filepath.Join(cfg.Log.OutPutFolder, "livearchiver-*.log"))
	assert.Len(t, matches, 1)
}

func TestNew_JSONFormat(t *testing.T) {
	defer logrus.SetOutput(os.Stderr)
	defer logrus.SetFormatter(&logrus.TextFormatter{})

	cfg := configs.NewConfig()
	cfg.Log.Format = "json"
	logger, _, err := New(cfg)
	require.NoError(t, err)

	var buf bytes.Buffer
	logger.SetOutput(&buf)
	WithStream("abc").Info("admitted")
	assert.Contains(t, buf.String(), `"stream_key":"abc"`)

	cfg.Log.Format = "xml"
	_, _, err = New(cfg)
	assert.Error(t, err)
}
