package sysinfo

import (
	"context"
	"fmt"
	"io/fs"
	"sync"
	"time"
)

// StaticProvider is a Provider returning fixed values, for tests.
// Mounts listed without an entry in Disks report as vanished.
type StaticProvider struct {
	mu sync.Mutex

	CPU       float64
	Mem       MemoryStat
	Disks     map[string]DiskStat
	Mounts    []string
	Processes int
	Host      HostInfo
	Err       error
}

// CPUPercent implements Provider; it does not block for the window.
func (s *StaticProvider) CPUPercent(ctx context.Context, window time.Duration) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.CPU, s.Err
}

// Memory implements Provider
func (s *StaticProvider) Memory(ctx context.Context) (MemoryStat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Mem, s.Err
}

// Partitions implements Provider
func (s *StaticProvider) Partitions(ctx context.Context) ([]Partition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	parts := make([]Partition, 0, len(s.Mounts))
	for _, m := range s.Mounts {
		parts = append(parts, Partition{Mountpoint: m})
	}
	return parts, nil
}

// DiskUsage implements Provider
func (s *StaticProvider) DiskUsage(ctx context.Context, mountpoint string) (DiskStat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.Disks[mountpoint]
	if !ok {
		return DiskStat{}, fmt.Errorf("mount point %s: %w", mountpoint, fs.ErrNotExist)
	}
	return d, nil
}

// ProcessCount implements Provider
func (s *StaticProvider) ProcessCount(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Processes, s.Err
}

// HostInfo implements Provider
func (s *StaticProvider) HostInfo(ctx context.Context) (HostInfo, error) {
	return s.Host, nil
}
