package log

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

const dayLayout = "2006-01-02"

// dailyFiles 每天一个文件：<prefix>-YYYY-MM-DD.log，keepDays<=0 时不清理旧文件
type dailyFiles struct {
	dir      string
	prefix   string
	keepDays int
	clock    func() time.Time

	mu   sync.Mutex
	day  string
	file *os.File
}

func newDailyFiles(dir, prefix string, keepDays int) *dailyFiles {
	return &dailyFiles{dir: dir, prefix: prefix, keepDays: keepDays, clock: time.Now}
}

func (d *dailyFiles) Write(p []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	now := d.clock()
	if day := now.Format(dayLayout); d.file == nil || day != d.day {
		if err := d.open(day); err != nil {
			return 0, err
		}
		d.purge(now)
	}
	return d.file.Write(p)
}

func (d *dailyFiles) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.file == nil {
		return nil
	}
	err := d.file.Close()
	d.file, d.day = nil, ""
	return err
}

func (d *dailyFiles) open(day string) error {
	f, err := os.OpenFile(d.path(day), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	if d.file != nil {
		_ = d.file.Close()
	}
	d.file, d.day = f, day
	return nil
}

func (d *dailyFiles) path(day string) string {
	return filepath.Join(d.dir, d.prefix+"-"+day+".log")
}

func (d *dailyFiles) purge(now time.Time) {
	if d.keepDays <= 0 {
		return
	}
	cutoff := now.AddDate(0, 0, -d.keepDays)
	old, _ := filepath.Glob(filepath.Join(d.dir, d.prefix+"-*.log"))
	for _, name := range old {
		day := strings.TrimSuffix(strings.TrimPrefix(filepath.Base(name), d.prefix+"-"), ".log")
		if t, err := time.ParseInLocation(dayLayout, day, now.Location()); err == nil && t.Before(cutoff) {
			_ = os.Remove(name)
		}
	}
}
