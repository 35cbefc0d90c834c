//go:build !windows

package configs

import (
	"fmt"
	"os"
	"syscall"
)

func (r *AccessReport) fillOwner(info os.FileInfo) {
	if st, ok := info.Sys().(*syscall.Stat_t); ok {
		r.ownerUID, r.ownerGID, r.ownerKnown = st.Uid, st.Gid, true
	}
}

func (r *AccessReport) deny(action string) {
	msg := fmt.Sprintf("没有 %s 的%s权限，权限位 %v，进程 uid:gid=%d:%d", r.Path, action, r.Mode, os.Getuid(), os.Getgid())
	if r.ownerKnown {
		msg += fmt.Sprintf("，所有者 uid:gid=%d:%d", r.ownerUID, r.ownerGID)
		if os.Getenv("IS_DOCKER") == "true" && r.ownerUID == 0 && os.Getuid() != 0 {
			msg += "\n目录属于 root 而容器以非 root 运行，请 chown 挂载目录或设置 PUID/PGID"
		}
	}
	r.Hints = append(r.Hints, msg)
}
