// Package consts 应用名与构建信息
package consts

import (
	"os"
	"runtime"
	"time"
)

const AppName = "livearchiver"

// 构建时通过 -ldflags "-X" 注入
var (
	AppVersion = "dev"
	BuildTime  string
	GitHash    string
)

var startedAt = time.Now()

type Info struct {
	AppName    string    `json:"app_name"`
	AppVersion string    `json:"app_version"`
	BuildTime  string    `json:"build_time,omitempty"`
	GitHash    string    `json:"git_hash,omitempty"`
	GoVersion  string    `json:"go_version"`
	OS         string    `json:"os"`
	Arch       string    `json:"arch"`
	Pid        int       `json:"pid"`
	Docker     bool      `json:"docker"`
	StartedAt  time.Time `json:"started_at"`
	Uptime     string    `json:"uptime"`
}

func GetAppInfo() Info {
	return Info{
		AppName:    AppName,
		AppVersion: AppVersion,
		BuildTime:  BuildTime,
		GitHash:    GitHash,
		GoVersion:  runtime.Version(),
		OS:         runtime.GOOS,
		Arch:       runtime.GOARCH,
		Pid:        os.Getpid(),
		Docker:     os.Getenv("IS_DOCKER") == "true",
		StartedAt:  startedAt,
		Uptime:     time.Since(startedAt).Round(time.Second).String(),
	}
}
