// Package sysinfo provides host resource sampling
package sysinfo

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
)

// MemoryStat holds physical memory figures in bytes
type MemoryStat struct {
	Used  uint64
	Total uint64
}

// Partition is a mounted filesystem
type Partition struct {
	Device     string
	Mountpoint string
	Fstype     string
}

// DiskStat holds filesystem usage figures in bytes
type DiskStat struct {
	Used  uint64
	Total uint64
}

// HostInfo describes the machine being monitored
type HostInfo struct {
	Hostname        string
	OS              string
	Platform        string
	PlatformVersion string
	KernelArch      string
}

func (h HostInfo) String() string {
	if h.Platform == "" {
		return fmt.Sprintf("%s/%s", h.OS, h.KernelArch)
	}
	return fmt.Sprintf("%s %s (%s/%s)", h.Platform, h.PlatformVersion, h.OS, h.KernelArch)
}

// Provider is the source of raw host measurements.
// Implementations must be safe for concurrent use.
type Provider interface {
	// CPUPercent blocks for window and returns the average
	// processor load over it as a percentage (0-100).
	CPUPercent(ctx context.Context, window time.Duration) (float64, error)
	Memory(ctx context.Context) (MemoryStat, error)
	Partitions(ctx context.Context) ([]Partition, error)
	// DiskUsage returns an error wrapping fs.ErrNotExist when the
	// mount point vanished after enumeration.
	DiskUsage(ctx context.Context, mountpoint string) (DiskStat, error)
	ProcessCount(ctx context.Context) (int, error)
	HostInfo(ctx context.Context) (HostInfo, error)
}

// HostProvider reads metrics from the local machine via gopsutil
type HostProvider struct {
	// collection functions, swapped out in tests
	cpuPercent  func(context.Context, time.Duration, bool) ([]float64, error)
	virtualMem  func(context.Context) (*mem.VirtualMemoryStat, error)
	partitions  func(context.Context, bool) ([]disk.PartitionStat, error)
	diskUsage   func(context.Context, string) (*disk.UsageStat, error)
	pids        func(context.Context) ([]int32, error)
	hostInfo    func(context.Context) (*host.InfoStat, error)
	statMountpt func(string) (os.FileInfo, error)
}

// NewHostProvider creates a provider backed by the running host
func NewHostProvider() *HostProvider {
	return &HostProvider{
		cpuPercent:  cpu.PercentWithContext,
		virtualMem:  mem.VirtualMemoryWithContext,
		partitions:  disk.PartitionsWithContext,
		diskUsage:   disk.UsageWithContext,
		pids:        process.PidsWithContext,
		hostInfo:    host.InfoWithContext,
		statMountpt: os.Stat,
	}
}

// CPUPercent implements Provider
func (p *HostProvider) CPUPercent(ctx context.Context, window time.Duration) (float64, error) {
	if window <= 0 {
		return 0, fmt.Errorf("cpu window must be positive, got %s", window)
	}
	percents, err := p.cpuPercent(ctx, window, false)
	if err != nil {
		return 0, fmt.Errorf("failed to read cpu percent: %w", err)
	}
	if len(percents) == 0 {
		return 0, errors.New("failed to read cpu percent: no data returned")
	}
	return percents[0], nil
}

// Memory implements Provider
func (p *HostProvider) Memory(ctx context.Context) (MemoryStat, error) {
	v, err := p.virtualMem(ctx)
	if err != nil {
		return MemoryStat{}, fmt.Errorf("failed to read virtual memory: %w", err)
	}
	return MemoryStat{Used: v.Used, Total: v.Total}, nil
}

// Partitions implements Provider. Only physical devices are listed;
// pseudo filesystems such as proc and tmpfs are left out.
func (p *HostProvider) Partitions(ctx context.Context) ([]Partition, error) {
	stats, err := p.partitions(ctx, false)
	if err != nil {
		return nil, fmt.Errorf("failed to list partitions: %w", err)
	}
	parts := make([]Partition, 0, len(stats))
	for _, s := range stats {
		parts = append(parts, Partition{
			Device:     s.Device,
			Mountpoint: s.Mountpoint,
			Fstype:     s.Fstype,
		})
	}
	return parts, nil
}

// DiskUsage implements Provider
func (p *HostProvider) DiskUsage(ctx context.Context, mountpoint string) (DiskStat, error) {
	u, err := p.diskUsage(ctx, mountpoint)
	if err != nil {
		// statfs errors are not always ENOENT when the mount goes away
		if _, statErr := p.statMountpt(mountpoint); errors.Is(err, fs.ErrNotExist) || errors.Is(statErr, fs.ErrNotExist) {
			return DiskStat{}, fmt.Errorf("mount point %s: %w", mountpoint, fs.ErrNotExist)
		}
		return DiskStat{}, fmt.Errorf("failed to read usage of %s: %w", mountpoint, err)
	}
	return DiskStat{Used: u.Used, Total: u.Total}, nil
}

// ProcessCount implements Provider
func (p *HostProvider) ProcessCount(ctx context.Context) (int, error) {
	pids, err := p.pids(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list processes: %w", err)
	}
	return len(pids), nil
}

// HostInfo implements Provider
func (p *HostProvider) HostInfo(ctx context.Context) (HostInfo, error) {
	info, err := p.hostInfo(ctx)
	if err != nil {
		return HostInfo{}, fmt.Errorf("failed to read host info: %w", err)
	}
	return HostInfo{
		Hostname:        info.Hostname,
		OS:              info.OS,
		Platform:        info.Platform,
		PlatformVersion: info.PlatformVersion,
		KernelArch:      info.KernelArch,
	}, nil
}
