package perf

import (
	"go.uber.org/zap"
)

const (
	leakWindowSize = 50
	leakRatio      = 1.5
)

// LeakDetector keeps a rolling window of memory samples and flags sustained
// growth. Purely advisory; nothing reacts to it automatically.
type LeakDetector struct {
	log     *zap.Logger
	samples []uint64
	size    int
	flagged bool
}

// NewLeakDetector creates a detector with the given window size; size <= 0
// selects the default of 50 samples.
func NewLeakDetector(log *zap.Logger, size int) *LeakDetector {
	if log == nil {
		log = zap.NewNop()
	}
	if size <= 0 {
		size = leakWindowSize
	}
	return &LeakDetector{log: log, size: size}
}

// Record appends a memory sample, sliding the window once full.
func (d *LeakDetector) Record(bytes uint64) {
	d.samples = append(d.samples, bytes)
	if len(d.samples) > d.size {
		d.samples = d.samples[1:]
	}
	if leaking := d.Leaking(); leaking && !d.flagged {
		d.log.Warn("possible memory leak",
			zap.Uint64("firstBytes", d.samples[0]),
			zap.Uint64("lastBytes", bytes),
			zap.Int("window", d.size))
	} else if !leaking {
		d.flagged = false
		return
	}
	d.flagged = true
}

// Leaking reports whether the newest sample is at least 1.5x the oldest
// across a full window. Short windows never flag.
func (d *LeakDetector) Leaking() bool {
	if len(d.samples) < d.size {
		return false
	}
	first := d.samples[0]
	last := d.samples[len(d.samples)-1]
	if first == 0 {
		return false
	}
	return float64(last) >= leakRatio*float64(first)
}
