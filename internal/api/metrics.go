package api

import (
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/process"
)

// ServerMetrics собирает сведения о процессе для /api/stats
type ServerMetrics struct {
	StartTime time.Time
	proc      *process.Process
}

// NewServerMetrics создает новый экземпляр метрик
func NewServerMetrics() *ServerMetrics {
	sm := &ServerMetrics{StartTime: time.Now()}
	if proc, err := process.NewProcess(int32(os.Getpid())); err == nil {
		sm.proc = proc
	}
	return sm
}

// GetUptime возвращает время работы сервера
func (sm *ServerMetrics) GetUptime() string {
	uptime := time.Since(sm.StartTime)

	days := int(uptime.Hours()) / 24
	hours := int(uptime.Hours()) % 24
	minutes := int(uptime.Minutes()) % 60
	seconds := int(uptime.Seconds()) % 60

	switch {
	case days > 0:
		return fmt.Sprintf("%dд %dч %dм %dс", days, hours, minutes, seconds)
	case hours > 0:
		return fmt.Sprintf("%dч %dм %dс", hours, minutes, seconds)
	case minutes > 0:
		return fmt.Sprintf("%dм %dс", minutes, seconds)
	default:
		return fmt.Sprintf("%dс", seconds)
	}
}

// GetCPUUsage возвращает использование CPU процессом в процентах.
// Если процесс недоступен, отдаёт загрузку системы.
func (sm *ServerMetrics) GetCPUUsage() (float64, error) {
	if sm.proc != nil {
		if percent, err := sm.proc.CPUPercent(); err == nil {
			return percent, nil
		}
	}
	percents, err := cpu.Percent(0, false)
	if err != nil {
		return 0, err
	}
	if len(percents) == 0 {
		return 0, fmt.Errorf("нет данных о CPU")
	}
	return percents[0], nil
}

// GetRSS возвращает резидентную память процесса в MB
func (sm *ServerMetrics) GetRSS() (float64, error) {
	if sm.proc == nil {
		return 0, fmt.Errorf("процесс недоступен")
	}
	info, err := sm.proc.MemoryInfo()
	if err != nil {
		return 0, err
	}
	return float64(info.RSS) / 1024 / 1024, nil
}

// GetDetailedMemoryStats возвращает статистику памяти Go-рантайма
func (sm *ServerMetrics) GetDetailedMemoryStats() map[string]interface{} {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	return map[string]interface{}{
		"alloc_mb":      float64(m.Alloc) / 1024 / 1024,
		"sys_mb":        float64(m.Sys) / 1024 / 1024,
		"heap_alloc_mb": float64(m.HeapAlloc) / 1024 / 1024,
		"num_gc":        m.NumGC,
		"goroutines":    runtime.NumGoroutine(),
	}
}
