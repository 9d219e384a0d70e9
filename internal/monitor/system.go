package monitor

import (
	"fmt"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/mem"
	"github.com/shirou/gopsutil/v4/net"
)

// Snapshot is a point-in-time view of host resources. Every value is
// measured; nothing is simulated or estimated.
type Snapshot struct {
	Hostname      string `json:"hostname"`
	OS            string `json:"os"`
	Platform      string `json:"platform"`
	UptimeSeconds uint64 `json:"uptime_seconds"`
	NumCPU        int    `json:"num_cpu"`
	GoVersion     string `json:"go_version"`

	CPUPercent    float64 `json:"cpu_percent"`
	MemoryTotal   uint64  `json:"memory_total"`
	MemoryUsed    uint64  `json:"memory_used"`
	MemoryPercent float64 `json:"memory_percent"`

	NetBytesSent uint64 `json:"net_bytes_sent"`
	NetBytesRecv uint64 `json:"net_bytes_recv"`

	SampledAt time.Time `json:"sampled_at"`
}

// Sample collects a host snapshot. CPU usage is averaged over a short
// measurement window, so Sample blocks briefly.
func Sample() (*Snapshot, error) {
	snap := &Snapshot{
		OS:        runtime.GOOS,
		NumCPU:    runtime.NumCPU(),
		GoVersion: runtime.Version(),
		SampledAt: time.Now().UTC(),
	}

	if info, err := host.Info(); err == nil {
		snap.Hostname = info.Hostname
		snap.Platform = info.Platform
		snap.UptimeSeconds = info.Uptime
	}

	cpuPercent, err := cpu.Percent(200*time.Millisecond, false)
	if err != nil {
		return nil, fmt.Errorf("failed to sample cpu: %w", err)
	}
	if len(cpuPercent) > 0 {
		snap.CPUPercent = cpuPercent[0]
	}

	memInfo, err := mem.VirtualMemory()
	if err != nil {
		return nil, fmt.Errorf("failed to sample memory: %w", err)
	}
	snap.MemoryTotal = memInfo.Total
	snap.MemoryUsed = memInfo.Used
	snap.MemoryPercent = memInfo.UsedPercent

	if counters, err := net.IOCounters(false); err == nil && len(counters) > 0 {
		snap.NetBytesSent = counters[0].BytesSent
		snap.NetBytesRecv = counters[0].BytesRecv
	}

	return snap, nil
}
