package migration

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

const journalSuffix = ".migrating"

// journalEntry 标记文件内容，存在即表示有一次升级没有正常结束
type journalEntry struct {
	Schema      string    `json:"schema"`
	Snapshot    string    `json:"snapshot"`
	FromVersion uint      `json:"from_version"`
	PID         int       `json:"pid"`
	StartedAt   time.Time `json:"started_at"`
}

func journalPath(dbPath string) string {
	return dbPath + journalSuffix
}

// beginJournal 独占创建标记文件
func beginJournal(dbPath string, entry journalEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	f, err := os.OpenFile(journalPath(dbPath), os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if os.IsExist(err) {
		return inProgress(dbPath)
	}
	if err != nil {
		return fmt.Errorf("create migration journal: %w", err)
	}
	defer f.Close()
	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("write migration journal: %w", err)
	}
	return f.Sync()
}

// readJournal 没有标记文件时返回 nil
func readJournal(dbPath string) (*journalEntry, error) {
	data, err := os.ReadFile(journalPath(dbPath))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var entry journalEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("corrupt migration journal: %w", err)
	}
	return &entry, nil
}

func endJournal(dbPath string) error {
	if err := os.Remove(journalPath(dbPath)); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func inProgress(dbPath string) error {
	if entry, err := readJournal(dbPath); err == nil && entry != nil {
		return fmt.Errorf("%w: pid %d since %s", ErrInProgress, entry.PID, entry.StartedAt.Format(time.RFC3339))
	}
	return ErrInProgress
}
