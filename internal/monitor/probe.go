package monitor

import (
	"context"
	"errors"
	"io/fs"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/edgecli/hostsentinel/internal/alert"
	"github.com/edgecli/hostsentinel/internal/logging"
	"github.com/edgecli/hostsentinel/internal/sysinfo"
)

// ErrZeroTotal is returned when the provider reports a zero-sized resource
var ErrZeroTotal = errors.New("provider reported a total of zero")

// Reading is one transient sample. Label names the resource for
// multi-resource probes (the mount point for disks).
type Reading struct {
	Label string
	Value float64
}

// Probe takes the readings of one metric family. Readings returned along
// with a non-nil error are still evaluated.
type Probe interface {
	Kind() alert.Kind
	Measure(ctx context.Context) ([]Reading, error)
}

func percent(used, total uint64) float64 {
	return float64(used) / float64(total) * 100
}

// CPUProbe averages processor load over Window. Measure blocks for Window.
type CPUProbe struct {
	provider sysinfo.Provider
	window   time.Duration
}

// NewCPUProbe creates a probe averaging load over window
func NewCPUProbe(p sysinfo.Provider, window time.Duration) *CPUProbe {
	return &CPUProbe{provider: p, window: window}
}

// Kind implements Probe
func (p *CPUProbe) Kind() alert.Kind { return alert.KindCPU }

// Measure implements Probe
func (p *CPUProbe) Measure(ctx context.Context) ([]Reading, error) {
	v, err := p.provider.CPUPercent(ctx, p.window)
	if err != nil {
		return nil, err
	}
	return []Reading{{Value: v}}, nil
}

// MemoryProbe reports used/total physical memory as a percentage
type MemoryProbe struct {
	provider sysinfo.Provider
}

// NewMemoryProbe creates a memory occupancy probe
func NewMemoryProbe(p sysinfo.Provider) *MemoryProbe {
	return &MemoryProbe{provider: p}
}

// Kind implements Probe
func (p *MemoryProbe) Kind() alert.Kind { return alert.KindMemory }

// Measure implements Probe. A zero total is reported as ErrZeroTotal.
func (p *MemoryProbe) Measure(ctx context.Context) ([]Reading, error) {
	m, err := p.provider.Memory(ctx)
	if err != nil {
		return nil, err
	}
	if m.Total == 0 {
		return nil, ErrZeroTotal
	}
	return []Reading{{Value: percent(m.Used, m.Total)}}, nil
}

// DiskProbe reports used/total per mounted filesystem, skipping mount
// points that contain any ignore substring
type DiskProbe struct {
	provider sysinfo.Provider
	ignore   []string
	log      *zap.Logger
}

// NewDiskProbe creates a filesystem probe. A nil log discards debug output.
func NewDiskProbe(p sysinfo.Provider, ignore []string, log *zap.Logger) *DiskProbe {
	if log == nil {
		log = zap.NewNop()
	}
	return &DiskProbe{
		provider: p,
		ignore:   append([]string(nil), ignore...),
		log:      log.With(logging.Scope("monitor.disk")),
	}
}

// Kind implements Probe
func (p *DiskProbe) Kind() alert.Kind { return alert.KindDisk }

// Ignored reports whether mountpoint matches the ignore list (case-sensitive substring)
func (p *DiskProbe) Ignored(mountpoint string) bool {
	for _, s := range p.ignore {
		if strings.Contains(mountpoint, s) {
			return true
		}
	}
	return false
}

// Measure implements Probe. Mount points that vanish mid-tick are skipped;
// other per-mount errors are joined and returned with the remaining readings.
func (p *DiskProbe) Measure(ctx context.Context) ([]Reading, error) {
	parts, err := p.provider.Partitions(ctx)
	if err != nil {
		return nil, err
	}

	var (
		readings []Reading
		errs     []error
	)
	for _, part := range parts {
		if p.Ignored(part.Mountpoint) {
			continue
		}
		u, err := p.provider.DiskUsage(ctx, part.Mountpoint)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				p.log.Debug("mount point vanished during tick", zap.String("mountpoint", part.Mountpoint))
				continue
			}
			errs = append(errs, err)
			continue
		}
		// pseudo filesystems report no capacity
		if u.Total == 0 {
			continue
		}
		readings = append(readings, Reading{Label: part.Mountpoint, Value: percent(u.Used, u.Total)})
	}
	return readings, errors.Join(errs...)
}

// ProcessProbe reports the number of live process IDs
type ProcessProbe struct {
	provider sysinfo.Provider
}

// NewProcessProbe creates a process count probe
func NewProcessProbe(p sysinfo.Provider) *ProcessProbe {
	return &ProcessProbe{provider: p}
}

// Kind implements Probe
func (p *ProcessProbe) Kind() alert.Kind { return alert.KindProcessCount }

// Measure implements Probe
func (p *ProcessProbe) Measure(ctx context.Context) ([]Reading, error) {
	n, err := p.provider.ProcessCount(ctx)
	if err != nil {
		return nil, err
	}
	return []Reading{{Value: float64(n)}}, nil
}
