package metrics

import (
	"fmt"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// Prefixed to avoid colliding with the collectors the default registry
// already ships for the current process.
var (
	GoMemstatsAllocBytes = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "docstore_go_memstats_alloc_bytes",
			Help: "Number of heap bytes allocated and still in use",
		},
		[]string{"service"},
	)

	GoMemstatsSysBytes = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "docstore_go_memstats_sys_bytes",
			Help: "Number of bytes obtained from the system",
		},
		[]string{"service"},
	)

	GoGoroutines = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "docstore_go_goroutines",
			Help: "Number of goroutines that currently exist",
		},
		[]string{"service"},
	)

	SystemCPUUsage = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "docstore_system_cpu_usage_percent",
			Help: "Current CPU usage percentage per core",
		},
		[]string{"service", "core"},
	)

	SystemMemoryUsage = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "docstore_system_memory_usage_bytes",
			Help: "Current system memory usage in bytes",
		},
		[]string{"service", "type"},
	)
)

// UpdateSystemMetrics samples the Go runtime and host-level gauges once.
func UpdateSystemMetrics(serviceName string) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	GoMemstatsAllocBytes.WithLabelValues(serviceName).Set(float64(m.Alloc))
	GoMemstatsSysBytes.WithLabelValues(serviceName).Set(float64(m.Sys))
	GoGoroutines.WithLabelValues(serviceName).Set(float64(runtime.NumGoroutine()))

	if cpuPercentages, err := cpu.Percent(0, true); err == nil {
		for i, percentage := range cpuPercentages {
			SystemCPUUsage.WithLabelValues(serviceName, fmt.Sprintf("cpu%d", i)).Set(percentage)
		}
	}
	if vmstat, err := mem.VirtualMemory(); err == nil {
		SystemMemoryUsage.WithLabelValues(serviceName, "total").Set(float64(vmstat.Total))
		SystemMemoryUsage.WithLabelValues(serviceName, "available").Set(float64(vmstat.Available))
		SystemMemoryUsage.WithLabelValues(serviceName, "used").Set(float64(vmstat.Used))
	}
}

// StartSystemMetricsCollection starts a goroutine that samples system metrics
// every 15 seconds for the lifetime of the process.
func StartSystemMetricsCollection(serviceName string) {
	go func() {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()

		for range ticker.C {
			UpdateSystemMetrics(serviceName)
		}
	}()
}
