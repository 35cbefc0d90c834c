package migration

import "io/fs"

// Schema 一个数据库的迁移文件
type Schema struct {
	Name       string
	Migrations fs.FS
	// Dir 迁移文件在 Migrations 中的目录，空表示根目录
	Dir string
	// Snapshot 升级前是否生成快照
	Snapshot bool
}

// Result 一次升级的结果
type Result struct {
	From     uint
	To       uint
	Dirty    bool
	Snapshot string
}

// Changed 是否实际执行了迁移
func (r Result) Changed() bool {
	return r.From != r.To
}
