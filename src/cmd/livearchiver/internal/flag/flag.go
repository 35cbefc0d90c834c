// Package flag 命令行参数
package flag

import (
	"fmt"
	"os"
	"time"

	"github.com/alecthomas/kingpin"

	"github.com/bililive-go/livearchiver/src/configs"
	"github.com/bililive-go/livearchiver/src/consts"
)

var app = kingpin.New(consts.AppName, "Live stream lifecycle and post-processing service.")

var (
	Conf        = app.Flag("config", "Config file.").Short('c').Default("").String()
	Debug       = app.Flag("debug", "Debug mode.").Bool()
	Bind        = app.Flag("bind", "Hook and API listen address.").Default(":8090").String()
	EngineAPI   = app.Flag("engine-api", "Ingestion engine API base URL.").Default("http://127.0.0.1:8000").String()
	MediaRoot   = app.Flag("media-root", "Recording root directory.").Default("./media").String()
	Database    = app.Flag("database", "SQLite database path, empty for in-memory.").Default("./data/livearchiver.db").String()
	ShutdownTTL = app.Flag("shutdown-timeout", "Time to wait for in-flight work on shutdown.").Default("30s").Duration()
)

func init() {
	app.Version(fmt.Sprintf("%s %s (%s, %s)", consts.AppName, consts.AppVersion, consts.GitHash, consts.BuildTime))
}

// Parse 解析 args，--version 会打印版本后退出
func Parse(args []string) error {
	_, err := app.Parse(args)
	return err
}

// MustParse 解析 os.Args
func MustParse() {
	kingpin.MustParse(app.Parse(os.Args[1:]))
}

// GenConfigFromFlags 未指定配置文件时由命令行参数生成配置
func GenConfigFromFlags() *configs.Config {
	cfg := configs.NewConfig()
	cfg.Debug = *Debug
	cfg.RPC.Bind = *Bind
	cfg.Engine.APIURL = *EngineAPI
	cfg.Media.Root = *MediaRoot
	cfg.Database.Path = *Database
	return cfg
}

// ShutdownTimeout 关闭时等待进行中任务的时长
func ShutdownTimeout() time.Duration {
	if ShutdownTTL == nil || *ShutdownTTL <= 0 {
		return 30 * time.Second
	}
	return *ShutdownTTL
}
