// Package hoststats 运维接口使用的进程与磁盘状态
package hoststats

import (
	"os"
	"runtime"

	"github.com/dustin/go-humanize"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/process"
)

type RuntimeStats struct {
	Goroutines int    `json:"goroutines"`
	HeapAlloc  uint64 `json:"heap_alloc"`
	Sys        uint64 `json:"sys"`
	NumGC      uint32 `json:"num_gc"`
}

type ProcessStats struct {
	PID int32  `json:"pid"`
	RSS uint64 `json:"rss"`
	VMS uint64 `json:"vms"`
}

// DiskStats 录像目录所在卷的用量
type DiskStats struct {
	Path        string  `json:"path"`
	Total       uint64  `json:"total"`
	Free        uint64  `json:"free"`
	UsedPercent float64 `json:"used_percent"`
	FreeHuman   string  `json:"free_human"`
}

type Snapshot struct {
	Runtime RuntimeStats  `json:"runtime"`
	Process *ProcessStats `json:"process,omitempty"`
	Media   *DiskStats    `json:"media,omitempty"`
}

func runtimeStats() RuntimeStats {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return RuntimeStats{
		Goroutines: runtime.NumGoroutine(),
		HeapAlloc:  m.HeapAlloc,
		Sys:        m.Sys,
		NumGC:      m.NumGC,
	}
}

func processStats(pid int) (*ProcessStats, error) {
	p, err := process.NewProcess(int32(pid))
	if err != nil {
		return nil, err
	}
	mem, err := p.MemoryInfo()
	if err != nil {
		return nil, err
	}
	return &ProcessStats{PID: int32(pid), RSS: mem.RSS, VMS: mem.VMS}, nil
}

func diskStats(path string) (*DiskStats, error) {
	usage, err := disk.Usage(path)
	if err != nil {
		return nil, err
	}
	return &DiskStats{
		Path:        path,
		Total:       usage.Total,
		Free:        usage.Free,
		UsedPercent: usage.UsedPercent,
		FreeHuman:   humanize.IBytes(usage.Free),
	}, nil
}

// Collect 采集当前状态，单项失败时该项留空
func Collect(mediaRoot string) Snapshot {
	s := Snapshot{Runtime: runtimeStats()}
	if p, err := processStats(os.Getpid()); err == nil {
		s.Process = p
	}
	if mediaRoot != "" {
		if d, err := diskStats(mediaRoot); err == nil {
			s.Media = d
		}
	}
	return s
}
