package configs

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"text/template"
	"time"

	"github.com/Masterminds/sprig"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// RPC 钩子与运维 HTTP 服务
type RPC struct {
	Enable bool   `yaml:"enable" json:"enable"`
	Bind   string `yaml:"bind" json:"bind"`
}

var defaultRPC = RPC{
	Enable: true,
	Bind:   ":8090",
}

func (r *RPC) verify() error {
	if r == nil {
		return nil
	}
	if !r.Enable {
		return nil
	}
	if _, err := net.ResolveTCPAddr("tcp", r.Bind); err != nil {
		return fmt.Errorf("invalid rpc bind address: %w", err)
	}
	return nil
}

// Engine 推流引擎（RTMP/HLS）管理 API
type Engine struct {
	APIURL  string        `yaml:"api_url" json:"api_url"`
	User    string        `yaml:"user" json:"user"`
	Pass    string        `yaml:"pass" json:"-"`
	App     string        `yaml:"app" json:"app"`
	Timeout time.Duration `yaml:"timeout" json:"timeout"`
	// RejectPath 拒绝会话的接口路径，{id} 会被替换为会话 ID
	RejectPath string `yaml:"reject_path" json:"reject_path"`
	// MaxRetries 引擎 API 临时失败时的重试次数
	MaxRetries uint64 `yaml:"max_retries" json:"max_retries"`
}

var defaultEngine = Engine{
	APIURL:     "http://127.0.0.1:8000",
	App:        "live",
	Timeout:    5 * time.Second,
	RejectPath: "/api/sessions/{id}",
	MaxRetries: 2,
}

func (e *Engine) verify() error {
	u, err := url.Parse(e.APIURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid engine api_url: %q", e.APIURL)
	}
	if strings.TrimSpace(e.App) == "" || strings.Contains(e.App, "/") {
		return fmt.Errorf("invalid engine app: %q", e.App)
	}
	if e.Timeout <= 0 {
		return errors.New("engine timeout must be positive")
	}
	if !strings.Contains(e.RejectPath, "{id}") {
		return fmt.Errorf("engine reject_path must contain {id}: %q", e.RejectPath)
	}
	return nil
}

// Media 录像文件与转码工具
type Media struct {
	Root        string `yaml:"root" json:"root"`
	RawFileName string `yaml:"raw_file_name" json:"raw_file_name"`
	FfmpegPath  string `yaml:"ffmpeg_path" json:"ffmpeg_path"`
	FfprobePath string `yaml:"ffprobe_path" json:"ffprobe_path"`
}

var defaultMedia = Media{
	Root:        "./media",
	RawFileName: "video.mp4",
	FfmpegPath:  "ffmpeg",
	FfprobePath: "ffprobe",
}

func (m *Media) verify() error {
	if m.Root == "" {
		return errors.New("media root is empty")
	}
	if report := CheckDirAccess(m.Root); !report.OK() {
		return fmt.Errorf("media root %q is not usable%s", m.Root, report)
	}
	if m.RawFileName == "" || filepath.Base(m.RawFileName) != m.RawFileName {
		return fmt.Errorf("invalid raw_file_name: %q", m.RawFileName)
	}
	if m.FfmpegPath == "" || m.FfprobePath == "" {
		return errors.New("ffmpeg_path and ffprobe_path are required")
	}
	return nil
}

// URLs 对外地址模板，使用 text/template 语法并支持 sprig 函数
// 可用字段: .PublicBase .App .StreamKey .ArchiveID
type URLs struct {
	PublicBase      string `yaml:"public_base" json:"public_base"`
	Thumbnail       string `yaml:"thumbnail" json:"thumbnail"`
	Playback        string `yaml:"playback" json:"playback"`
	ThumbnailSource string `yaml:"thumbnail_source" json:"thumbnail_source"`
}

var defaultURLs = URLs{
	PublicBase:      "https://live.example.com",
	Thumbnail:       `{{ .PublicBase | trimSuffix "/" }}/{{ .App }}/{{ .StreamKey }}/image.png`,
	Playback:        `{{ .PublicBase | trimSuffix "/" }}/{{ .App }}/{{ .StreamKey }}/{{ .ArchiveID }}.mp4`,
	ThumbnailSource: `rtmp://127.0.0.1:1935/{{ .App }}/{{ .StreamKey }}`,
}

func (u *URLs) verify() error {
	for name, tmpl := range map[string]string{
		"thumbnail":        u.Thumbnail,
		"playback":         u.Playback,
		"thumbnail_source": u.ThumbnailSource,
	} {
		if strings.TrimSpace(tmpl) == "" {
			return fmt.Errorf("urls.%s is empty", name)
		}
		if _, err := template.New(name).Funcs(sprig.TxtFuncMap()).Parse(tmpl); err != nil {
			return fmt.Errorf("urls.%s: %w", name, err)
		}
	}
	return nil
}

type Database struct {
	Path string `yaml:"path" json:"path"`
}

var defaultDatabase = Database{
	Path: "./data/livearchiver.db",
}

// BrokerType 压缩任务队列实现
type BrokerType string

const (
	BrokerMemory BrokerType = "memory"
	BrokerRedis  BrokerType = "redis"
)

type Broker struct {
	Type     BrokerType `yaml:"type" json:"type"`
	Addrs    []string   `yaml:"addrs" json:"addrs"`
	Password string     `yaml:"password" json:"-"`
	DB       int        `yaml:"db" json:"db"`
	Key      string     `yaml:"key" json:"key"`
	// BlockTimeout 消费者阻塞等待任务的时长
	BlockTimeout time.Duration `yaml:"block_timeout" json:"block_timeout"`
	// Buffer 内存队列容量
	Buffer int `yaml:"buffer" json:"buffer"`
}

var defaultBroker = Broker{
	Type:         BrokerMemory,
	Addrs:        []string{"127.0.0.1:6379"},
	Key:          "livearchiver:compression",
	BlockTimeout: 2 * time.Second,
	Buffer:       256,
}

func (b *Broker) verify() error {
	switch b.Type {
	case BrokerMemory:
		if b.Buffer <= 0 {
			return errors.New("broker buffer must be positive")
		}
	case BrokerRedis:
		if len(b.Addrs) == 0 {
			return errors.New("redis broker requires at least one addr")
		}
		if strings.TrimSpace(b.Key) == "" {
			return errors.New("redis broker key is empty")
		}
	default:
		return fmt.Errorf("unknown broker type: %q", b.Type)
	}
	return nil
}

// CompressionProfile x264 编码参数
type CompressionProfile struct {
	CRF    int    `yaml:"crf" json:"crf"`
	Preset string `yaml:"preset" json:"preset"`
	Tune   string `yaml:"tune" json:"tune"`
}

type Compression struct {
	MaxConcurrent int `yaml:"max_concurrent" json:"max_concurrent"`
	// ThresholdBytes 大于该值的文件使用 Large 配置
	ThresholdBytes int64              `yaml:"threshold_bytes" json:"threshold_bytes"`
	Large          CompressionProfile `yaml:"large" json:"large"`
	Small          CompressionProfile `yaml:"small" json:"small"`
}

var defaultProfile = CompressionProfile{
	CRF:    28,
	Preset: "ultrafast",
	Tune:   "film",
}

var defaultCompression = Compression{
	MaxConcurrent:  1,
	ThresholdBytes: 5 << 30,
	Large:          defaultProfile,
	Small:          defaultProfile,
}

func (p *CompressionProfile) verify() error {
	if p.CRF < 0 || p.CRF > 51 {
		return fmt.Errorf("crf out of range: %d", p.CRF)
	}
	if p.Preset == "" {
		return errors.New("preset is empty")
	}
	return nil
}

func (c *Compression) verify() error {
	if c.MaxConcurrent <= 0 {
		return errors.New("compression max_concurrent must be positive")
	}
	if c.ThresholdBytes <= 0 {
		return errors.New("compression threshold_bytes must be positive")
	}
	if err := c.Large.verify(); err != nil {
		return fmt.Errorf("compression.large: %w", err)
	}
	if err := c.Small.verify(); err != nil {
		return fmt.Errorf("compression.small: %w", err)
	}
	return nil
}

// Scheduler 定时任务，调度表达式使用 cron 语法（支持 @every / @daily）
type Scheduler struct {
	ThumbnailSchedule    string        `yaml:"thumbnail_schedule" json:"thumbnail_schedule"`
	PruneSchedule        string        `yaml:"prune_schedule" json:"prune_schedule"`
	ChatRetention        time.Duration `yaml:"chat_retention" json:"chat_retention"`
	ThumbnailMinInterval time.Duration `yaml:"thumbnail_min_interval" json:"thumbnail_min_interval"`
}

var defaultScheduler = Scheduler{
	ThumbnailSchedule:    "@every 1m",
	PruneSchedule:        "@daily",
	ChatRetention:        12 * time.Hour,
	ThumbnailMinInterval: 20 * time.Second,
}

func (s *Scheduler) verify() error {
	if s.ThumbnailSchedule == "" || s.PruneSchedule == "" {
		return errors.New("scheduler schedules must not be empty")
	}
	if s.ChatRetention <= 0 {
		return errors.New("chat_retention must be positive")
	}
	if s.ThumbnailMinInterval < 0 {
		return errors.New("thumbnail_min_interval must not be negative")
	}
	return nil
}

type Log struct {
	OutPutFolder string `yaml:"out_put_folder" json:"out_put_folder"`
	SaveLastLog  bool   `yaml:"save_last_log" json:"save_last_log"`
	// RotateDays 按天滚动日志时最多保留的天数（<=0 表示不清理）
	RotateDays int `yaml:"rotate_days" json:"rotate_days"`
	// Format text 或 json
	Format string `yaml:"format" json:"format"`
}

var defaultLog = Log{
	OutPutFolder: "./logs",
	SaveLastLog:  false,
	RotateDays:   7,
	Format:       "text",
}

type Sentry struct {
	DSN         string `yaml:"dsn" json:"-"`
	Environment string `yaml:"environment" json:"environment"`
}

// Config content all config info.
// 启动时构造一次，之后只读，按需显式传递给各组件
type Config struct {
	File        string      `yaml:"-" json:"-"`
	Debug       bool        `yaml:"debug" json:"debug"`
	RPC         RPC         `yaml:"rpc" json:"rpc"`
	Engine      Engine      `yaml:"engine" json:"engine"`
	Media       Media       `yaml:"media" json:"media"`
	URLs        URLs        `yaml:"urls" json:"urls"`
	Database    Database    `yaml:"database" json:"database"`
	Broker      Broker      `yaml:"broker" json:"broker"`
	Compression Compression `yaml:"compression" json:"compression"`
	Scheduler   Scheduler   `yaml:"scheduler" json:"scheduler"`
	Log         Log         `yaml:"log" json:"log"`
	Sentry      Sentry      `yaml:"sentry" json:"sentry"`
}

var defaultConfig = Config{
	Debug:       false,
	RPC:         defaultRPC,
	Engine:      defaultEngine,
	Media:       defaultMedia,
	URLs:        defaultURLs,
	Database:    defaultDatabase,
	Broker:      defaultBroker,
	Compression: defaultCompression,
	Scheduler:   defaultScheduler,
	Log:         defaultLog,
	Sentry:      Sentry{Environment: "production"},
}

func NewConfig() *Config {
	config := defaultConfig
	config.Broker.Addrs = append([]string(nil), defaultBroker.Addrs...)
	return &config
}

// Verify will return an error when this config has problem.
func (c *Config) Verify() error {
	if c == nil {
		return errors.New("config is null")
	}
	if err := c.RPC.verify(); err != nil {
		return err
	}
	if err := c.Engine.verify(); err != nil {
		return err
	}
	if err := c.Media.verify(); err != nil {
		return err
	}
	if err := c.URLs.verify(); err != nil {
		return err
	}
	if c.Database.Path == "" {
		return errors.New("database path is empty")
	}
	if err := c.Broker.verify(); err != nil {
		return err
	}
	if err := c.Compression.verify(); err != nil {
		return err
	}
	if err := c.Scheduler.verify(); err != nil {
		return err
	}
	if f := c.Log.Format; f != "" && f != "text" && f != "json" {
		return fmt.Errorf("invalid log format: %q", f)
	}
	return nil
}

// applyEnv 用环境变量补全未在配置文件中出现的凭据
func (c *Config) applyEnv() {
	if c.Engine.User == "" {
		c.Engine.User = os.Getenv("ADMIN_USER")
	}
	if c.Engine.Pass == "" {
		c.Engine.Pass = os.Getenv("ADMIN_PASS")
	}
	if c.Broker.Password == "" {
		c.Broker.Password = os.Getenv("REDIS_PASSWORD")
	}
	if dsn := os.Getenv("SENTRY_DSN"); c.Sentry.DSN == "" && dsn != "" {
		c.Sentry.DSN = dsn
	}
}

func NewConfigWithBytes(b []byte) (*Config, error) {
	config := NewConfig()
	if err := yaml.Unmarshal(b, config); err != nil {
		return nil, err
	}
	config.applyEnv()
	return config, nil
}

// NewConfigWithFile 读取配置文件，同目录下存在 .env 时先加载
func NewConfigWithFile(file string) (*Config, error) {
	envFile := filepath.Join(filepath.Dir(file), ".env")
	if _, err := os.Stat(envFile); err == nil {
		// 已存在的环境变量优先
		if err := godotenv.Load(envFile); err != nil {
			return nil, fmt.Errorf("can`t load env file %s: %w", envFile, err)
		}
	}
	b, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("can`t open file: %s%s", file, CheckFileAccess(file))
	}
	config, err := NewConfigWithBytes(b)
	if err != nil {
		return nil, err
	}
	config.File = file
	return config, nil
}

// LiveDir 返回某个推流码对应的录像目录
func (c *Config) LiveDir(streamKey string) string {
	return filepath.Join(c.Media.Root, c.Engine.App, streamKey)
}

// RawRecordingPath 返回推流过程中引擎写入的原始录像路径
func (c *Config) RawRecordingPath(streamKey string) string {
	return filepath.Join(c.LiveDir(streamKey), c.Media.RawFileName)
}

// ArchivePath 返回归档后的录像路径
func (c *Config) ArchivePath(streamKey, archiveID string) string {
	return filepath.Join(c.LiveDir(streamKey), archiveID+".mp4")
}

// ThumbnailPath 返回缩略图在本地的存放路径
func (c *Config) ThumbnailPath(streamKey string) string {
	return filepath.Join(c.LiveDir(streamKey), "image.png")
}
