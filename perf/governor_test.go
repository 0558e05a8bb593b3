package perf

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock advances by a fixed step per Tick, simulating a steady frame rate.
type fakeClock struct {
	t    time.Time
	step time.Duration
}

func (c *fakeClock) now() time.Time {
	c.t = c.t.Add(c.step)
	return c.t
}

func newTestGovernor(step time.Duration, opts ...GovernorOption) (*Governor, *fakeClock) {
	clock := &fakeClock{t: time.Unix(1000, 0), step: step}
	opts = append([]GovernorOption{
		WithClock(clock.now),
		WithMemoryFn(func() (uint64, bool) { return 0, false }),
	}, opts...)
	return NewGovernor(nil, opts...), clock
}

func runFrames(g *Governor, n int) float64 {
	var fps float64
	for i := 0; i < n; i++ {
		fps = g.Tick()
	}
	return fps
}

func TestFPSFromRollingWindow(t *testing.T) {
	g, _ := newTestGovernor(20 * time.Millisecond) // 50 fps

	fps := runFrames(g, 120)
	assert.InDelta(t, 50, fps, 2)
}

func TestFrameTimeMean(t *testing.T) {
	g, _ := newTestGovernor(16 * time.Millisecond)

	runFrames(g, 100)
	m := g.Metrics()
	assert.InDelta(t, float64(16*time.Millisecond), float64(m.FrameTime), float64(time.Millisecond))
	assert.False(t, m.MemoryOK)
}

func TestFrameTimePercentile(t *testing.T) {
	g, _ := newTestGovernor(10 * time.Millisecond)
	runFrames(g, 100)

	p50 := g.FrameTimePercentile(50)
	p99 := g.FrameTimePercentile(99)
	assert.Equal(t, 10*time.Millisecond, p50)
	assert.Equal(t, 10*time.Millisecond, p99)
}

func TestSustainedLowFPSDowngradesOneTierPerCooldown(t *testing.T) {
	// 25 fps sustained: well under the 45 fps downgrade threshold.
	g, _ := newTestGovernor(40*time.Millisecond, WithInitialTier(TierUltra))

	var transitions []Tier
	g.Subscribe(func(s QualitySettings) { transitions = append(transitions, s.Tier) })

	// 10 seconds of synthetic frames = 250 ticks, 5 cooldown windows.
	runFrames(g, 250)

	// Never more than one step per window, never a skipped tier.
	require.NotEmpty(t, transitions)
	prev := TierUltra
	for _, tr := range transitions {
		assert.Equal(t, prev-1, tr, "downgrades move exactly one tier")
		prev = tr
	}
	assert.Equal(t, TierLow, g.Tier(), "sustained load walks all the way down")

	// Already at the floor: further load changes nothing.
	before := len(transitions)
	runFrames(g, 100)
	assert.Len(t, transitions, before)
}

func TestSustainedHighFPSUpgradesOneTierPerCooldown(t *testing.T) {
	// ~62 fps sustained: above the 58 fps upgrade threshold.
	g, _ := newTestGovernor(16*time.Millisecond, WithInitialTier(TierLow))

	var transitions []Tier
	g.Subscribe(func(s QualitySettings) { transitions = append(transitions, s.Tier) })

	runFrames(g, 700) // ~11 s

	require.NotEmpty(t, transitions)
	prev := TierLow
	for _, tr := range transitions {
		assert.Equal(t, prev+1, tr, "upgrades move exactly one tier")
		prev = tr
	}
	assert.Equal(t, TierUltra, g.Tier())
}

func TestMidbandFPSHoldsTier(t *testing.T) {
	// 50 fps sits between both thresholds; the tier must not move.
	g, _ := newTestGovernor(20*time.Millisecond, WithInitialTier(TierHigh))

	changed := false
	g.Subscribe(func(QualitySettings) { changed = true })

	runFrames(g, 500)
	assert.False(t, changed)
	assert.Equal(t, TierHigh, g.Tier())
}

func TestUnsubscribeStopsNotifications(t *testing.T) {
	g, _ := newTestGovernor(40*time.Millisecond, WithInitialTier(TierUltra))

	calls := 0
	unsub := g.Subscribe(func(QualitySettings) { calls++ })
	runFrames(g, 100)
	require.Greater(t, calls, 0)

	unsub()
	before := calls
	runFrames(g, 200)
	assert.Equal(t, before, calls)
}

func TestHealthScoreMemoryUnavailable(t *testing.T) {
	g, _ := newTestGovernor(16 * time.Millisecond)
	runFrames(g, 120)

	// ~62 fps against a 60 target, 16 ms frames on a 16 ms budget, memory
	// term treated as perfect: the score should be essentially 100.
	assert.GreaterOrEqual(t, g.HealthScore(), 95)
}

func TestHealthScoreDegradesUnderLoad(t *testing.T) {
	g, _ := newTestGovernor(50*time.Millisecond, // 20 fps
		WithMemoryFn(func() (uint64, bool) { return 2 * defaultMemBudgetMB * 1024 * 1024, true }))
	runFrames(g, 120)

	score := g.HealthScore()
	// 0.5*33 + 0.3*32 + 0.2*50 ≈ 36
	assert.Less(t, score, 50)
	assert.Greater(t, score, 20)
}

func TestLeakDetector(t *testing.T) {
	d := NewLeakDetector(nil, 10)

	for i := 0; i < 10; i++ {
		d.Record(1000)
	}
	assert.False(t, d.Leaking(), "flat memory is not a leak")

	// Grow past 1.5x across the window.
	for i := 0; i < 10; i++ {
		d.Record(uint64(1000 + 100*i))
	}
	assert.True(t, d.Leaking())
}

func TestLeakDetectorShortWindowNeverFlags(t *testing.T) {
	d := NewLeakDetector(nil, 50)
	d.Record(100)
	d.Record(10000)
	assert.False(t, d.Leaking())
}

func TestInitialTierHeuristics(t *testing.T) {
	cases := []struct {
		name string
		p    DeviceProfile
		want Tier
	}{
		{"mobile small", DeviceProfile{Mobile: true, MemoryBytes: 2 * gib}, TierLow},
		{"mobile large", DeviceProfile{Mobile: true, MemoryBytes: 8 * gib}, TierMedium},
		{"desktop discrete", DeviceProfile{GPUVendor: "NVIDIA Corporation", LogicalCores: 16, MemoryBytes: 32 * gib}, TierUltra},
		{"desktop integrated", DeviceProfile{GPUVendor: "Intel Inc.", LogicalCores: 8, MemoryBytes: 16 * gib}, TierHigh},
		{"weak desktop", DeviceProfile{GPUVendor: "Intel Inc.", LogicalCores: 2, MemoryBytes: 2 * gib}, TierMedium},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.p.InitialTier())
		})
	}
}
