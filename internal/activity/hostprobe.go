package activity

import (
	"log"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
)

// HostInfo describes the machine the exam client runs on. Collected once
// at session start and attached to the telemetry hello so reviewers can
// spot virtualized or otherwise unusual environments.
type HostInfo struct {
	Hostname       string `json:"hostname"`
	OS             string `json:"os"`
	Platform       string `json:"platform"`
	KernelArch     string `json:"kernelArch"`
	Virtualization string `json:"virtualization,omitempty"`
	CPUCount       int    `json:"cpuCount"`
	MemoryTotalMB  uint64 `json:"memoryTotalMb"`
}

// ResourceSample is a point-in-time CPU/memory reading attached to
// heartbeat pushes.
type ResourceSample struct {
	CPUPercent    float64   `json:"cpuPercent"`
	MemoryPercent float64   `json:"memoryPercent"`
	At            time.Time `json:"at"`
}

// ProbeHost collects host metadata. Probe failures degrade to partial
// info; a proctoring agent must never fail a session over metadata.
func ProbeHost() HostInfo {
	var info HostInfo

	if hi, err := host.Info(); err == nil {
		info.Hostname = hi.Hostname
		info.OS = hi.OS
		info.Platform = hi.Platform
		info.KernelArch = hi.KernelArch
		info.Virtualization = hi.VirtualizationSystem
	} else {
		log.Printf("[hostprobe] host info unavailable: %v", err)
	}

	if n, err := cpu.Counts(true); err == nil {
		info.CPUCount = n
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		info.MemoryTotalMB = vm.Total / (1024 * 1024)
	}
	return info
}

// SampleResources reads current CPU and memory utilization. A zero-value
// sample with the current timestamp is returned when the probes fail.
func SampleResources(now time.Time) ResourceSample {
	sample := ResourceSample{At: now}

	if percents, err := cpu.Percent(0, false); err == nil && len(percents) > 0 {
		sample.CPUPercent = percents[0]
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		sample.MemoryPercent = vm.UsedPercent
	}
	return sample
}
