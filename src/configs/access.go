package configs

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// AccessReport 描述当前进程对某个路径的访问情况，启动失败时附在错误信息后面
type AccessReport struct {
	Path     string
	Exists   bool
	Dir      bool
	Readable bool
	Writable bool
	Mode     os.FileMode
	Hints    []string

	ownerUID, ownerGID uint32
	ownerKnown         bool
}

// CheckFileAccess 配置文件只需要可读
func CheckFileAccess(path string) *AccessReport {
	r := stat(path)
	if !r.Exists {
		return r
	}
	if f, err := os.Open(path); err == nil {
		r.Readable = true
		f.Close()
	}
	if !r.Readable {
		r.deny("读取")
	}
	return r
}

// CheckDirAccess 媒体目录需要可读可写：归档与缩略图都写在这里
func CheckDirAccess(dir string) *AccessReport {
	r := stat(dir)
	if !r.Exists {
		return r
	}
	if !r.Dir {
		r.Hints = append(r.Hints, fmt.Sprintf("%s 不是目录", dir))
		return r
	}
	if _, err := os.ReadDir(dir); err == nil {
		r.Readable = true
	}
	if f, err := os.CreateTemp(dir, ".livearchiver-probe-*"); err == nil {
		r.Writable = true
		name := f.Name()
		f.Close()
		_ = os.Remove(name)
	}
	if !r.Readable || !r.Writable {
		r.deny("读写")
	}
	return r
}

// OK 没有任何问题
func (r *AccessReport) OK() bool {
	return len(r.Hints) == 0
}

// String 拼接到错误信息末尾，没有问题时为空
func (r *AccessReport) String() string {
	if r.OK() {
		return ""
	}
	return "\n-- 路径诊断 --\n" + strings.Join(r.Hints, "\n") + "\n"
}

func stat(path string) *AccessReport {
	r := &AccessReport{Path: path}
	info, err := os.Stat(path)
	switch {
	case os.IsNotExist(err):
		abs, _ := filepath.Abs(path)
		r.Hints = append(r.Hints, fmt.Sprintf("%s 不存在（绝对路径 %s）", path, abs))
	case err != nil:
		r.Hints = append(r.Hints, fmt.Sprintf("无法访问 %s: %v", path, err))
	default:
		r.Exists = true
		r.Dir = info.IsDir()
		r.Mode = info.Mode()
		r.fillOwner(info)
	}
	return r
}
