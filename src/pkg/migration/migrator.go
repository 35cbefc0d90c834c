package migration

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"
)

var (
	ErrMigrationFailed = errors.New("migration failed")
	// ErrInProgress 标记文件存在，上一次升级没有结束
	ErrInProgress = errors.New("migration in progress")
)

type Migrator struct {
	dbPath string
	conn   *sql.DB
	schema Schema
	snaps  *Snapshots
	log    *logrus.Entry
}

func New(dbPath string, conn *sql.DB, schema Schema) (*Migrator, error) {
	switch {
	case dbPath == "":
		return nil, errors.New("migration: empty database path")
	case conn == nil:
		return nil, errors.New("migration: nil connection")
	case schema.Migrations == nil:
		return nil, fmt.Errorf("migration: schema %q has no migrations", schema.Name)
	}
	return &Migrator{
		dbPath: dbPath,
		conn:   conn,
		schema: schema,
		snaps:  NewSnapshots(dbPath, conn),
		log:    logrus.WithFields(logrus.Fields{"schema": schema.Name, "db_path": dbPath}),
	}, nil
}

// instance 不调用 Close，否则会关闭调用方传入的连接
func (m *Migrator) instance() (*migrate.Migrate, error) {
	dir := m.schema.Dir
	if dir == "" {
		dir = "."
	}
	src, err := iofs.New(m.schema.Migrations, dir)
	if err != nil {
		return nil, fmt.Errorf("migration source: %w", err)
	}
	driver, err := sqlite.WithInstance(m.conn, &sqlite.Config{})
	if err != nil {
		return nil, fmt.Errorf("migration driver: %w", err)
	}
	return migrate.NewWithInstance("iofs", src, "sqlite", driver)
}

// Version 当前模式版本，未迁移过时为 0
func (m *Migrator) Version() (uint, bool, error) {
	mig, err := m.instance()
	if err != nil {
		return 0, false, err
	}
	v, dirty, err := mig.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return v, dirty, err
}

// Up 升级到最新版本，失败时回到快照
func (m *Migrator) Up() (Result, error) {
	if entry, err := readJournal(m.dbPath); err != nil || entry != nil {
		return Result{}, inProgress(m.dbPath)
	}

	mig, err := m.instance()
	if err != nil {
		return Result{}, err
	}
	from, dirty, _ := mig.Version()
	res := Result{From: from, To: from, Dirty: dirty}

	if m.schema.Snapshot {
		if res.Snapshot, err = m.snaps.Take(); err != nil {
			return res, err
		}
	}
	if res.Snapshot != "" {
		if err := beginJournal(m.dbPath, journalEntry{
			Schema:      m.schema.Name,
			Snapshot:    res.Snapshot,
			FromVersion: from,
			PID:         os.Getpid(),
			StartedAt:   time.Now(),
		}); err != nil {
			m.snaps.Discard(res.Snapshot)
			return res, err
		}
		defer func() {
			if err := endJournal(m.dbPath); err != nil {
				m.log.WithError(err).Warn("failed to remove migration journal")
			}
		}()
	}

	if upErr := mig.Up(); upErr != nil && !errors.Is(upErr, migrate.ErrNoChange) {
		if res.Snapshot == "" {
			return res, fmt.Errorf("%w: %v", ErrMigrationFailed, upErr)
		}
		m.log.WithError(upErr).Error("migration failed, restoring snapshot")
		if err := m.snaps.Restore(res.Snapshot); err != nil {
			return res, fmt.Errorf("%w: %v (restore failed: %v)", ErrMigrationFailed, upErr, err)
		}
		return res, fmt.Errorf("%w: %v", ErrMigrationFailed, upErr)
	}

	res.To, _, _ = mig.Version()
	if !res.Changed() {
		m.snaps.Discard(res.Snapshot)
		res.Snapshot = ""
		return res, nil
	}
	m.log.WithFields(logrus.Fields{
		"from":     res.From,
		"to":       res.To,
		"dirty":    res.Dirty,
		"snapshot": res.Snapshot,
	}).Info("database schema upgraded")
	return res, nil
}

// Recover 发现未结束的升级时从快照恢复；返回 true 时数据库文件已被替换，调用方需要重新打开连接
func (m *Migrator) Recover() (bool, error) {
	entry, err := readJournal(m.dbPath)
	if err != nil {
		return false, err
	}
	if entry == nil {
		return false, nil
	}
	m.log.WithFields(logrus.Fields{
		"pid":        entry.PID,
		"started_at": entry.StartedAt,
		"snapshot":   entry.Snapshot,
	}).Warn("found unfinished migration")

	if entry.Snapshot != "" {
		if err := m.snaps.Restore(entry.Snapshot); err != nil {
			return true, fmt.Errorf("recover from snapshot: %w", err)
		}
	}
	return true, endJournal(m.dbPath)
}
