// Package migration 用 golang-migrate 升级 SQLite 模式
//
// 升级前先用 VACUUM INTO 生成快照，并写入 <db>.migrating 标记文件；
// 升级失败时从快照恢复。进程在升级中途退出时标记文件会留下，
// 下次启动时 Recover 根据标记恢复快照。
//
//	m, err := migration.New(path, db, schema)
//	recovered, err := m.Recover()
//	result, err := m.Up()
package migration
