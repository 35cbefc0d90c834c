//go:build dev

package store

import (
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
)

// dev 模式直接读取源码目录，修改 SQL 后无需重新编译
func migrationFiles() (fs.FS, string) {
	_, currentFile, _, _ := runtime.Caller(0)
	return os.DirFS(filepath.Join(filepath.Dir(currentFile), "migrations")), "."
}
