//go:build !dev

package store

import (
	"embed"
	"io/fs"
)

//go:embed migrations/*.sql
var embeddedMigrations embed.FS

func migrationFiles() (fs.FS, string) {
	return embeddedMigrations, "migrations"
}
