package store

import (
	"github.com/bililive-go/livearchiver/src/pkg/migration"
)

// archiveSchema 直播记录、归档、聊天与点赞
func archiveSchema() migration.Schema {
	files, dir := migrationFiles()
	return migration.Schema{
		Name:       "archive",
		Migrations: files,
		Dir:        dir,
		Snapshot:   true,
	}
}
