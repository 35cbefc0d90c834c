//go:build windows

package configs

import (
	"fmt"
	"os"
)

// Windows 上没有 uid/gid
func (r *AccessReport) fillOwner(os.FileInfo) {}

func (r *AccessReport) deny(action string) {
	r.Hints = append(r.Hints, fmt.Sprintf("没有 %s 的%s权限", r.Path, action))
}
