package docker

import (
	"github.com/docker/docker/api/types/container"

	"github.com/splax/peephost/internal/domain"
)

// toStat applies the same arithmetic as docker stats.
func toStat(s container.StatsResponse) domain.ContainerStat {
	var stat domain.ContainerStat
	cpuDelta := float64(s.CPUStats.CPUUsage.TotalUsage) - float64(s.PreCPUStats.CPUUsage.TotalUsage)
	sysDelta := float64(s.CPUStats.SystemUsage) - float64(s.PreCPUStats.SystemUsage)
	cpus := float64(s.CPUStats.OnlineCPUs)
	if cpus == 0 {
		cpus = float64(len(s.CPUStats.CPUUsage.PercpuUsage))
	}
	if cpus == 0 {
		cpus = 1
	}
	if cpuDelta > 0 && sysDelta > 0 {
		stat.CPUPercent = cpuDelta / sysDelta * cpus * 100
	}

	used := s.MemoryStats.Usage
	// cgroup v2 reports inactive_file, v1 reports total_inactive_file
	if v, ok := s.MemoryStats.Stats["inactive_file"]; ok && v < used {
		used -= v
	} else if v, ok := s.MemoryStats.Stats["total_inactive_file"]; ok && v < used {
		used -= v
	}
	stat.MemoryBytes = used
	stat.MemoryLimit = s.MemoryStats.Limit
	if s.MemoryStats.Limit > 0 {
		stat.MemoryPercent = float64(used) / float64(s.MemoryStats.Limit) * 100
	}
	return stat
}
