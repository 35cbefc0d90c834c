package configs

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfig(t *testing.T) {
	file := "../../config.yml"
	c, err := NewConfigWithFile(file)
	require.NoError(t, err)
	assert.Equal(t, file, c.File)
	assert.Equal(t, "live", c.Engine.App)
	assert.Equal(t, int64(5<<30), c.Compression.ThresholdBytes)
	assert.Equal(t, 12*time.Hour, c.Scheduler.ChatRetention)
}

func TestRPC_Verify(t *testing.T) {
	var rpc *RPC
	assert.NoError(t, rpc.verify())
	rpc = new(RPC)
	rpc.Bind = "foo@bar"
	assert.NoError(t, rpc.verify())
	rpc.Enable = true
	assert.Error(t, rpc.verify())
}

func validConfig(t *testing.T) *Config {
	cfg := NewConfig()
	cfg.Media.Root = t.TempDir()
	return cfg
}

func TestConfig_Verify(t *testing.T) {
	var cfg *Config
	assert.Error(t, cfg.Verify())

	cfg = validConfig(t)
	assert.NoError(t, cfg.Verify())

	cfg.Media.Root = filepath.Join(cfg.Media.Root, "missing")
	assert.Error(t, cfg.Verify())

	cfg = validConfig(t)
	cfg.Engine.APIURL = "not a url"
	assert.Error(t, cfg.Verify())

	cfg = validConfig(t)
	cfg.Engine.RejectPath = "/api/sessions"
	assert.Error(t, cfg.Verify())

	cfg = validConfig(t)
	cfg.Broker.Type = "kafka"
	assert.Error(t, cfg.Verify())

	cfg = validConfig(t)
	cfg.Log.Format = "xml"
	assert.Error(t, cfg.Verify())

	cfg = validConfig(t)
	cfg.Broker.Type = BrokerRedis
	cfg.Broker.Addrs = nil
	assert.Error(t, cfg.Verify())

	cfg = validConfig(t)
	cfg.Compression.MaxConcurrent = 0
	assert.Error(t, cfg.Verify())

	cfg = validConfig(t)
	cfg.Compression.Large.CRF = 60
	assert.Error(t, cfg.Verify())

	cfg = validConfig(t)
	cfg.URLs.Playback = "{{ .PublicBase"
	assert.Error(t, cfg.Verify())

	cfg = validConfig(t)
	cfg.Scheduler.ChatRetention = 0
	assert.Error(t, cfg.Verify())
}

func TestNewConfigWithBytes_Defaults(t *testing.T) {
	t.Setenv("ADMIN_USER", "admin")
	t.Setenv("ADMIN_PASS", "secret")

	cfg, err := NewConfigWithBytes([]byte("debug: true\ncompression:\n  max_concurrent: 2\n"))
	require.NoError(t, err)
	assert.True(t, cfg.Debug)
	assert.Equal(t, 2, cfg.Compression.MaxConcurrent)
	// 未覆盖的字段保留默认值
	assert.Equal(t, defaultProfile, cfg.Compression.Large)
	assert.Equal(t, defaultProfile, cfg.Compression.Small)
	assert.Equal(t, "admin", cfg.Engine.User)
	assert.Equal(t, "secret", cfg.Engine.Pass)
}

func TestNewConfigWithBytes_FileCredentialsWin(t *testing.T) {
	t.Setenv("ADMIN_USER", "from-env")
	cfg, err := NewConfigWithBytes([]byte("engine:\n  user: from-file\n"))
	require.NoError(t, err)
	assert.Equal(t, "from-file", cfg.Engine.User)
}

func TestNewConfigWithFile_LoadsDotEnv(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("REDIS_PASSWORD=hunter2\n"), 0o644))
	file := filepath.Join(dir, "config.yml")
	require.NoError(t, os.WriteFile(file, []byte("broker:\n  type: redis\n"), 0o644))
	t.Cleanup(func() { os.Unsetenv("REDIS_PASSWORD") })

	cfg, err := NewConfigWithFile(file)
	require.NoError(t, err)
	assert.Equal(t, BrokerRedis, cfg.Broker.Type)
	assert.Equal(t, "hunter2", cfg.Broker.Password)
}

func TestNewConfigWithFile_Missing(t *testing.T) {
	_, err := NewConfigWithFile(filepath.Join(t.TempDir(), "nope.yml"))
	assert.Error(t, err)
}

func TestConfig_Paths(t *testing.T) {
	cfg := NewConfig()
	cfg.Media.Root = "/srv/media"
	assert.Equal(t, filepath.Join("/srv/media", "live", "abc", "video.mp4"), cfg.RawRecordingPath("abc"))
	assert.Equal(t, filepath.Join("/srv/media", "live", "abc", "X1.mp4"), cfg.ArchivePath("abc", "X1"))
	assert.Equal(t, filepath.Join("/srv/media", "live", "abc", "image.png"), cfg.ThumbnailPath("abc"))
}

func TestCheckDirAccess(t *testing.T) {
	dir := t.TempDir()
	report := CheckDirAccess(dir)
	assert.True(t, report.OK())
	assert.True(t, report.Writable)
	assert.Empty(t, report.String())
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)

	missing := CheckDirAccess(filepath.Join(dir, "missing"))
	assert.False(t, missing.Exists)
	assert.Contains(t, missing.String(), "missing")

	file := filepath.Join(dir, "f.txt")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))
	assert.Contains(t, CheckDirAccess(file).String(), "不是目录")
	assert.True(t, CheckFileAccess(file).Readable)
}
