package migration

import (
	"database/sql"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

const (
	snapshotInfix  = ".snap-"
	snapshotLayout = "20060102T150405.000000000"
	// KeepSnapshots 每个数据库保留的快照数量
	KeepSnapshots = 5
)

// Snapshots 管理数据库文件旁的快照
type Snapshots struct {
	dbPath string
	conn   *sql.DB
	keep   int
	clock  func() time.Time
}

// NewSnapshots conn 不为空时用 VACUUM INTO，WAL 里的数据也会进入快照；否则直接复制文件
func NewSnapshots(dbPath string, conn *sql.DB) *Snapshots {
	return &Snapshots{dbPath: dbPath, conn: conn, keep: KeepSnapshots, clock: time.Now}
}

// Take 生成快照，数据库文件不存在或为空时返回空路径
func (s *Snapshots) Take() (string, error) {
	if info, err := os.Stat(s.dbPath); err != nil || info.Size() == 0 {
		return "", nil
	}
	target := s.dbPath + snapshotInfix + s.clock().UTC().Format(snapshotLayout)
	var err error
	if s.conn != nil {
		_, err = s.conn.Exec("VACUUM INTO ?", target)
	} else {
		err = copyFile(s.dbPath, target)
	}
	if err != nil {
		return "", fmt.Errorf("snapshot %s: %w", s.dbPath, err)
	}
	s.prune()
	return target, nil
}

// Restore 用快照替换数据库文件，WAL/SHM 一并删除
func (s *Snapshots) Restore(snapshot string) error {
	if snapshot == "" {
		return fmt.Errorf("no snapshot to restore")
	}
	if _, err := os.Stat(snapshot); err != nil {
		return fmt.Errorf("snapshot unavailable: %w", err)
	}
	for _, side := range []string{"-wal", "-shm"} {
		if err := os.Remove(s.dbPath + side); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	staging := s.dbPath + ".restore"
	if err := copyFile(snapshot, staging); err != nil {
		return fmt.Errorf("restore %s: %w", snapshot, err)
	}
	if err := os.Rename(staging, s.dbPath); err != nil {
		_ = os.Remove(staging)
		return fmt.Errorf("restore %s: %w", snapshot, err)
	}
	return nil
}

func (s *Snapshots) Discard(snapshot string) {
	if snapshot != "" {
		_ = os.Remove(snapshot)
	}
}

// List 最新的快照排在最前
func (s *Snapshots) List() ([]string, error) {
	matches, err := filepath.Glob(s.dbPath + snapshotInfix + "*")
	if err != nil {
		return nil, err
	}
	out := matches[:0]
	for _, m := range matches {
		if !strings.HasSuffix(m, "-wal") && !strings.HasSuffix(m, "-shm") {
			out = append(out, m)
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(out)))
	return out, nil
}

func (s *Snapshots) prune() {
	snaps, err := s.List()
	if err != nil || len(snaps) <= s.keep {
		return
	}
	for _, old := range snaps[s.keep:] {
		_ = os.Remove(old)
	}
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return err
	}
	if err := out.Sync(); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
