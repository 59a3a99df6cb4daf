package collector

import (
	"context"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/dreschagin/monitor-dw/internal/domain/valueobject"
)

const defaultCPUSample = 200 * time.Millisecond

// HostStatsCollector собирает загрузку CPU и памяти хоста монитора.
// Реализует port.HostStatsProvider
type HostStatsCollector struct {
	sample time.Duration
}

// NewHostStatsCollector создает collector. sample - окно измерения CPU.
func NewHostStatsCollector(sample time.Duration) *HostStatsCollector {
	if sample <= 0 {
		sample = defaultCPUSample
	}
	return &HostStatsCollector{sample: sample}
}

// HostStats собирает загрузку хоста
func (c *HostStatsCollector) HostStats(ctx context.Context) (valueobject.HostStats, error) {
	var stats valueobject.HostStats

	percentages, err := cpu.PercentWithContext(ctx, c.sample, false)
	if err != nil {
		return stats, err
	}
	if len(percentages) > 0 {
		stats.CPUPercent = percentages[0]
	}
	stats.CPUCores, _ = cpu.CountsWithContext(ctx, true)

	vmStat, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return stats, err
	}
	stats.MemoryPercent = vmStat.UsedPercent
	stats.MemoryUsedMB = vmStat.Used / 1024 / 1024
	stats.MemoryTotalMB = vmStat.Total / 1024 / 1024

	return stats, nil
}
