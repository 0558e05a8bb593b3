package perf

import (
	"runtime"
	"strings"

	"github.com/shirou/gopsutil/v3/mem"
	"go.uber.org/zap"
)

// DeviceProfile is what the one-shot startup probe learned about the host.
// GPUVendor and Mobile come from the host application (the core has no
// window system access); cores and memory are read locally.
type DeviceProfile struct {
	GPUVendor    string
	LogicalCores int
	MemoryBytes  uint64
	Mobile       bool
}

// Probe inspects the host once, before any frame telemetry exists. Failures
// to read memory are tolerated; the profile just carries zero.
func Probe(log *zap.Logger, gpuVendor string, mobile bool) DeviceProfile {
	if log == nil {
		log = zap.NewNop()
	}
	p := DeviceProfile{
		GPUVendor:    gpuVendor,
		LogicalCores: runtime.NumCPU(),
		Mobile:       mobile,
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		p.MemoryBytes = vm.Total
	} else {
		log.Warn("memory probe failed", zap.Error(err))
	}
	log.Info("device probe",
		zap.String("gpu", p.GPUVendor),
		zap.Int("cores", p.LogicalCores),
		zap.Uint64("memoryBytes", p.MemoryBytes),
		zap.Bool("mobile", p.Mobile))
	return p
}

const gib = 1 << 30

// InitialTier picks the starting quality tier from hardware heuristics, used
// until the governor has real frame samples to go on.
func (p DeviceProfile) InitialTier() Tier {
	if p.Mobile {
		if p.MemoryBytes > 0 && p.MemoryBytes < 4*gib {
			return TierLow
		}
		return TierMedium
	}

	discrete := p.hasDiscreteGPU()
	switch {
	case discrete && p.LogicalCores >= 8 && p.MemoryBytes >= 8*gib:
		return TierUltra
	case p.LogicalCores >= 4 && p.MemoryBytes >= 4*gib:
		return TierHigh
	default:
		return TierMedium
	}
}

func (p DeviceProfile) hasDiscreteGPU() bool {
	v := strings.ToLower(p.GPUVendor)
	return strings.Contains(v, "nvidia") ||
		strings.Contains(v, "amd") ||
		strings.Contains(v, "radeon")
}
