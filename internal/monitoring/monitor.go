package monitoring

import (
	"fmt"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
)

// Monitor collects process-local stats and keeps the alert log that
// components raise into (for example a failed cart reconciliation).
type Monitor struct {
	startedAt time.Time
	alerts    []Alert
	alertsMux sync.RWMutex
}

type Alert struct {
	ID        int       `json:"id"`
	Severity  string    `json:"severity"`
	Type      string    `json:"type"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
	Resolved  bool      `json:"resolved"`
}

type Stats struct {
	Uptime        string  `json:"uptime"`
	CPUPercent    float64 `json:"cpu_percent"`
	MemoryPercent float64 `json:"memory_percent"`
	MemoryUsed    string  `json:"memory_used"`
	MemoryTotal   string  `json:"memory_total"`
	DiskPercent   float64 `json:"disk_percent"`
	DiskUsed      string  `json:"disk_used"`
	DiskTotal     string  `json:"disk_total"`
	ActiveAlerts  int     `json:"active_alerts"`
}

func NewMonitor() *Monitor {
	return &Monitor{
		startedAt: time.Now(),
		alerts:    make([]Alert, 0),
	}
}

// AddAlert appends an alert to the log.
func (m *Monitor) AddAlert(severity, kind, message string) {
	m.alertsMux.Lock()
	defer m.alertsMux.Unlock()

	m.alerts = append(m.alerts, Alert{
		ID:        len(m.alerts) + 1,
		Severity:  severity,
		Type:      kind,
		Message:   message,
		Timestamp: time.Now(),
	})
}

// Alerts returns a snapshot of the alert log.
func (m *Monitor) Alerts() []Alert {
	m.alertsMux.RLock()
	defer m.alertsMux.RUnlock()

	out := make([]Alert, len(m.alerts))
	copy(out, m.alerts)
	return out
}

// CollectStats samples process and host metrics.
func (m *Monitor) CollectStats() Stats {
	cpuPercents, _ := cpu.Percent(time.Second, false)
	cpuPercent := 0.0
	if len(cpuPercents) > 0 {
		cpuPercent = cpuPercents[0]
	}

	memStats, _ := mem.VirtualMemory()
	diskStats, _ := disk.Usage("/")

	m.alertsMux.RLock()
	activeAlerts := 0
	for _, alert := range m.alerts {
		if !alert.Resolved {
			activeAlerts++
		}
	}
	m.alertsMux.RUnlock()

	stats := Stats{
		Uptime:       formatUptime(int(time.Since(m.startedAt).Seconds())),
		CPUPercent:   cpuPercent,
		ActiveAlerts: activeAlerts,
	}
	if memStats != nil {
		stats.MemoryPercent = memStats.UsedPercent
		stats.MemoryUsed = formatBytes(memStats.Used)
		stats.MemoryTotal = formatBytes(memStats.Total)
	}
	if diskStats != nil {
		stats.DiskPercent = diskStats.UsedPercent
		stats.DiskUsed = formatBytes(diskStats.Used)
		stats.DiskTotal = formatBytes(diskStats.Total)
	}
	return stats
}

func formatBytes(bytes uint64) string {
	gb := float64(bytes) / (1024 * 1024 * 1024)
	if gb < 1 {
		mb := float64(bytes) / (1024 * 1024)
		return fmt.Sprintf("%.1f MB", mb)
	}
	return fmt.Sprintf("%.1f GB", gb)
}

func formatUptime(seconds int) string {
	days := seconds / 86400
	hours := (seconds % 86400) / 3600
	minutes := (seconds % 3600) / 60

	if days > 0 {
		return fmt.Sprintf("%dd %dh", days, hours)
	}
	if hours > 0 {
		return fmt.Sprintf("%dh %dm", hours, minutes)
	}
	return fmt.Sprintf("%dm", minutes)
}
