// Package system reports resource usage of the triage process and its host
package system

import (
	"fmt"
	"os"
	"runtime"

	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
)

// Vitals represents resource usage of the running process
type Vitals struct {
	PID            int32   `json:"pid"`
	RSSBytes       uint64  `json:"rss_bytes"`
	Goroutines     int     `json:"goroutines"`
	HostMemPercent float64 `json:"host_mem_percent"`
}

// GetVitals samples memory usage for this process and the host
func GetVitals() (*Vitals, error) {
	pid := int32(os.Getpid()) //nolint:gosec // pids fit in int32
	proc, err := process.NewProcess(pid)
	if err != nil {
		return nil, fmt.Errorf("failed to open process %d: %w", pid, err)
	}

	memInfo, err := proc.MemoryInfo()
	if err != nil {
		return nil, fmt.Errorf("failed to get process memory: %w", err)
	}

	memStat, err := mem.VirtualMemory()
	if err != nil {
		return nil, fmt.Errorf("failed to get memory usage: %w", err)
	}

	return &Vitals{
		PID:            pid,
		RSSBytes:       memInfo.RSS,
		Goroutines:     runtime.NumGoroutine(),
		HostMemPercent: memStat.UsedPercent,
	}, nil
}
