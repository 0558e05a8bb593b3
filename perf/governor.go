package perf

import (
	"runtime"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Behavioral constants of the observed system; change only with a rationale.
const (
	downgradeFPS    = 45.0
	upgradeFPS      = 58.0
	defaultCooldown = 2 * time.Second

	frameWindow        = 60 // inter-frame deltas kept for frame-time stats
	defaultTarget      = 60.0
	defaultBudget      = 16 * time.Millisecond
	defaultMemBudgetMB = 512
)

// Metrics is a snapshot of the latest frame telemetry.
type Metrics struct {
	FPS         float64
	FrameTime   time.Duration
	MemoryBytes uint64
	MemoryOK    bool
}

// Governor samples frame timing and memory and adjusts the quality tier, one
// step at a time, on a cooldown so quality never visibly pops. Construct one
// instance at startup and hand it to every consumer; there is no package
// global.
type Governor struct {
	mu sync.Mutex

	log   *zap.Logger
	now   func() time.Time
	memFn func() (uint64, bool)

	tier           Tier
	lastAdjust     time.Time
	cooldown       time.Duration
	targetFPS      float64
	frameBudget    time.Duration
	memBudgetBytes uint64

	windowStart  time.Time
	windowFrames int
	lastFPS      float64

	lastFrame time.Time
	deltas    []time.Duration // ring of the last frameWindow deltas
	deltaPos  int
	deltaFull bool

	subs    map[int]func(QualitySettings)
	nextSub int
}

// GovernorOption customizes a Governor.
type GovernorOption func(*Governor)

// WithClock injects a time source, used by tests to drive synthetic frames.
func WithClock(now func() time.Time) GovernorOption {
	return func(g *Governor) { g.now = now }
}

// WithMemoryFn injects memory telemetry. The default reads the Go heap; a
// host without usable telemetry can supply a function returning ok=false and
// the memory term drops out of the health score.
func WithMemoryFn(fn func() (uint64, bool)) GovernorOption {
	return func(g *Governor) { g.memFn = fn }
}

// WithInitialTier sets the starting tier, normally from the device probe.
func WithInitialTier(t Tier) GovernorOption {
	return func(g *Governor) { g.tier = t }
}

// WithCooldown overrides the adjustment cooldown (tests only).
func WithCooldown(d time.Duration) GovernorOption {
	return func(g *Governor) { g.cooldown = d }
}

// NewGovernor creates a governor starting at TierHigh unless overridden.
func NewGovernor(log *zap.Logger, opts ...GovernorOption) *Governor {
	if log == nil {
		log = zap.NewNop()
	}
	g := &Governor{
		log:            log,
		now:            time.Now,
		memFn:          heapInUse,
		tier:           TierHigh,
		cooldown:       defaultCooldown,
		targetFPS:      defaultTarget,
		frameBudget:    defaultBudget,
		memBudgetBytes: defaultMemBudgetMB * 1024 * 1024,
		deltas:         make([]time.Duration, frameWindow),
		subs:           make(map[int]func(QualitySettings)),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func heapInUse() (uint64, bool) {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return ms.HeapInuse, true
}

// Tick records one rendered frame and returns the current fps estimate. FPS
// is frames counted over rolling one-second windows; tier adjustment happens
// here, rate-limited by the cooldown.
func (g *Governor) Tick() float64 {
	g.mu.Lock()

	now := g.now()
	if !g.lastFrame.IsZero() {
		g.deltas[g.deltaPos] = now.Sub(g.lastFrame)
		g.deltaPos = (g.deltaPos + 1) % frameWindow
		if g.deltaPos == 0 {
			g.deltaFull = true
		}
	}
	g.lastFrame = now

	if g.windowStart.IsZero() {
		g.windowStart = now
	}
	g.windowFrames++
	if elapsed := now.Sub(g.windowStart); elapsed >= time.Second {
		g.lastFPS = float64(g.windowFrames) / elapsed.Seconds()
		g.windowStart = now
		g.windowFrames = 0
	}

	fps := g.lastFPS
	notify, settings := g.maybeAdjust(now)
	g.mu.Unlock()

	if notify != nil {
		for _, fn := range notify {
			fn(settings)
		}
	}
	return fps
}

// maybeAdjust moves at most one tier per cooldown window. Callers hold g.mu;
// the subscriber list is returned so callbacks run outside the lock.
func (g *Governor) maybeAdjust(now time.Time) ([]func(QualitySettings), QualitySettings) {
	if g.lastFPS <= 0 || now.Sub(g.lastAdjust) < g.cooldown {
		return nil, QualitySettings{}
	}
	g.lastAdjust = now

	prev := g.tier
	switch {
	case g.lastFPS < downgradeFPS && g.tier > TierLow:
		g.tier--
	case g.lastFPS >= upgradeFPS && g.tier < TierUltra:
		g.tier++
	default:
		return nil, QualitySettings{}
	}

	g.log.Info("quality tier changed",
		zap.String("from", prev.String()),
		zap.String("to", g.tier.String()),
		zap.Float64("fps", g.lastFPS))

	settings := SettingsFor(g.tier)
	notify := make([]func(QualitySettings), 0, len(g.subs))
	for _, fn := range g.subs {
		notify = append(notify, fn)
	}
	return notify, settings
}

// Metrics returns the latest telemetry snapshot.
func (g *Governor) Metrics() Metrics {
	g.mu.Lock()
	defer g.mu.Unlock()

	m := Metrics{FPS: g.lastFPS, FrameTime: g.meanDeltaLocked()}
	if g.memFn != nil {
		m.MemoryBytes, m.MemoryOK = g.memFn()
	}
	return m
}

func (g *Governor) meanDeltaLocked() time.Duration {
	n := g.deltaPos
	if g.deltaFull {
		n = frameWindow
	}
	if n == 0 {
		return 0
	}
	var sum time.Duration
	for i := 0; i < n; i++ {
		sum += g.deltas[i]
	}
	return sum / time.Duration(n)
}

// FrameTimePercentile returns the p-th percentile (0..100) of the recorded
// inter-frame deltas, for profiling.
func (g *Governor) FrameTimePercentile(p float64) time.Duration {
	g.mu.Lock()
	defer g.mu.Unlock()

	n := g.deltaPos
	if g.deltaFull {
		n = frameWindow
	}
	if n == 0 {
		return 0
	}
	sorted := make([]time.Duration, n)
	copy(sorted, g.deltas[:n])
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	idx := int(p / 100 * float64(n-1))
	if idx < 0 {
		idx = 0
	}
	if idx > n-1 {
		idx = n - 1
	}
	return sorted[idx]
}

// HealthScore folds fps, frame time and memory pressure into a single 0..100
// number. The memory term counts as perfect when telemetry is unavailable.
func (g *Governor) HealthScore() int {
	m := g.Metrics()

	fpsScore := 100.0
	if g.targetFPS > 0 && m.FPS > 0 {
		fpsScore = m.FPS / g.targetFPS * 100
		if fpsScore > 100 {
			fpsScore = 100
		}
	}

	frameScore := 100.0
	if m.FrameTime > 0 {
		frameScore = float64(g.frameBudget) / float64(m.FrameTime) * 100
		if frameScore > 100 {
			frameScore = 100
		}
	}

	memScore := 100.0
	if m.MemoryOK && m.MemoryBytes > 0 {
		memScore = float64(g.memBudgetBytes) / float64(m.MemoryBytes) * 100
		if memScore > 100 {
			memScore = 100
		}
	}

	return int(0.5*fpsScore + 0.3*frameScore + 0.2*memScore)
}

// Settings returns the settings for the current tier.
func (g *Governor) Settings() QualitySettings {
	g.mu.Lock()
	defer g.mu.Unlock()
	return SettingsFor(g.tier)
}

// Tier returns the current tier.
func (g *Governor) Tier() Tier {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.tier
}

// Subscribe registers a callback invoked on every tier change. The returned
// function removes the subscription.
func (g *Governor) Subscribe(fn func(QualitySettings)) func() {
	g.mu.Lock()
	defer g.mu.Unlock()

	id := g.nextSub
	g.nextSub++
	g.subs[id] = fn
	return func() {
		g.mu.Lock()
		defer g.mu.Unlock()
		delete(g.subs, id)
	}
}
