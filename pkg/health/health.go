// Package health exposes a point-in-time snapshot of server vitals for
// the admin API.
package health

import (
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// Status represents the health status of the server
type Status string

const (
	StatusHealthy  Status = "healthy"
	StatusDegraded Status = "degraded"
)

// Snapshot represents overall server health at one instant
type Snapshot struct {
	Status         Status    `json:"status"`
	Uptime         int64     `json:"uptime_seconds"`
	Timestamp      time.Time `json:"timestamp"`
	ActiveSessions int       `json:"active_sessions"`
	LiveRooms      int       `json:"live_rooms"`
	Goroutines     int       `json:"goroutines"`
	ProcessMemMB   uint64    `json:"process_mem_mb"`
	HostMemPercent float64   `json:"host_mem_percent"`
	HostCPUPercent float64   `json:"host_cpu_percent"`
}

// Monitor tracks server start time and produces health snapshots
type Monitor struct {
	startTime time.Time
}

// NewMonitor creates a new health monitor
func NewMonitor() *Monitor {
	return &Monitor{startTime: time.Now()}
}

// Snapshot returns the current server health. Host metrics are
// best-effort: a failed gopsutil read leaves the field at zero and
// degrades the status rather than erroring.
func (m *Monitor) Snapshot(activeSessions, liveRooms int) *Snapshot {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	snap := &Snapshot{
		Status:         StatusHealthy,
		Uptime:         int64(time.Since(m.startTime).Seconds()),
		Timestamp:      time.Now(),
		ActiveSessions: activeSessions,
		LiveRooms:      liveRooms,
		Goroutines:     runtime.NumGoroutine(),
		ProcessMemMB:   ms.Alloc / 1024 / 1024,
	}

	if vm, err := mem.VirtualMemory(); err == nil {
		snap.HostMemPercent = vm.UsedPercent
	} else {
		snap.Status = StatusDegraded
	}

	if percents, err := cpu.Percent(0, false); err == nil && len(percents) > 0 {
		snap.HostCPUPercent = percents[0]
	} else {
		snap.Status = StatusDegraded
	}

	return snap
}
