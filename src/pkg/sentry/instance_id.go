package sentry

import (
	"os"
	"path/filepath"

	uuid "github.com/satori/go.uuid"
)

// InstanceID 由主机名和媒体目录派生的 UUIDv5，重启后不变，也不暴露主机名
func InstanceID(mediaRoot string) string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		return uuid.Must(uuid.NewV4()).String()
	}
	if abs, err := filepath.Abs(mediaRoot); err == nil {
		mediaRoot = abs
	}
	return uuid.NewV5(uuid.NamespaceDNS, "livearchiver."+host+":"+mediaRoot).String()
}
