package sample

import (
	"encoding/json"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"web/geoscatter/geo"
)

func storeWith(t *testing.T, regionID string, coords [][][]float64) *geo.Store {
	t.Helper()
	b, err := json.Marshal(coords)
	require.NoError(t, err)
	store := geo.NewStore(nil)
	require.NoError(t, store.Add(regionID, geo.RawGeometry{Type: "Polygon", Coordinates: b}))
	return store
}

func TestSampleInsideBoundary(t *testing.T) {
	store := storeWith(t, "sq", [][][]float64{{
		{0, 0}, {10, 0}, {10, 10}, {0, 10}, {0, 0},
	}})
	s := New(store, rand.New(rand.NewSource(42)), nil)

	for i := 0; i < 1000; i++ {
		p, err := s.Sample(Target{RegionID: "sq"})
		require.NoError(t, err)
		assert.True(t, store.IsInside(p, "sq"), "sampled point must lie inside the boundary")
	}
}

func TestSampleDeterministicForFixedSeed(t *testing.T) {
	store := storeWith(t, "sq", [][][]float64{{
		{0, 0}, {10, 0}, {10, 10}, {0, 10}, {0, 0},
	}})

	a := New(store, rand.New(rand.NewSource(7)), nil)
	b := New(store, rand.New(rand.NewSource(7)), nil)

	for i := 0; i < 100; i++ {
		pa, err := a.Sample(Target{RegionID: "sq"})
		require.NoError(t, err)
		pb, err := b.Sample(Target{RegionID: "sq"})
		require.NoError(t, err)
		assert.Equal(t, pa, pb)
	}
}

// A diagonal sliver fills a vanishing fraction of its bounding box, so every
// rejection attempt misses and the sampler must settle for the bbox midpoint
// instead of failing.
func TestSampleFallsBackToBBoxMidpoint(t *testing.T) {
	store := storeWith(t, "sliver", [][][]float64{{
		{0, 0}, {100, 100}, {100, 100.0000001}, {0, 0},
	}})
	s := New(store, rand.New(rand.NewSource(1)), nil)

	p, err := s.Sample(Target{RegionID: "sliver"})
	require.NoError(t, err)
	box, _ := store.BBox("sliver")
	assert.Equal(t, box.Midpoint(), p)
}

func TestSampleWithoutBoundaryUsesCentroid(t *testing.T) {
	s := New(geo.NewStore(nil), rand.New(rand.NewSource(3)), nil)
	centroid := geo.Point{Lat: 40, Lng: -74}

	var maxDist float64
	for i := 0; i < 2000; i++ {
		p, err := s.Sample(Target{RegionID: "ghost", Centroid: &centroid})
		require.NoError(t, err)
		d := math.Hypot(p.Lat-centroid.Lat, (p.Lng-centroid.Lng)*math.Cos(centroid.Lat*math.Pi/180))
		if d > maxDist {
			maxDist = d
		}
	}
	assert.LessOrEqual(t, maxDist, fallbackRadiusDeg*1.01, "fallback draw stays within its radius")
}

// The power-law radius concentrates points near the center: the median
// distance must be well below half the maximum radius.
func TestFallbackDrawClustersNearCenter(t *testing.T) {
	s := New(geo.NewStore(nil), rand.New(rand.NewSource(5)), nil)
	centroid := geo.Point{Lat: 0, Lng: 0}

	const n = 5000
	within := 0
	for i := 0; i < n; i++ {
		p, err := s.Sample(Target{RegionID: "ghost", Centroid: &centroid})
		require.NoError(t, err)
		if math.Hypot(p.Lat, p.Lng) < fallbackRadiusDeg/2 {
			within++
		}
	}
	// r = R*u^0.6 means P(r < R/2) = 0.5^(1/0.6) ≈ 0.315
	frac := float64(within) / n
	assert.InDelta(t, 0.315, frac, 0.05)
}

func TestSubCenterChoiceFollowsWeights(t *testing.T) {
	s := New(geo.NewStore(nil), rand.New(rand.NewSource(11)), nil)
	target := Target{
		RegionID: "w",
		Centers: []Center{
			{Point: geo.Point{Lat: 0, Lng: 0}, Weight: 0.7},
			{Point: geo.Point{Lat: 10, Lng: 10}, Weight: 0.3},
		},
	}

	const n = 10000
	nearFirst := 0
	for i := 0; i < n; i++ {
		p, err := s.Sample(target)
		require.NoError(t, err)
		if math.Hypot(p.Lat, p.Lng) < 1 {
			nearFirst++
		}
	}
	assert.InDelta(t, 0.7, float64(nearFirst)/n, 0.02)
}

func TestSampleNoGeometryAtAll(t *testing.T) {
	s := New(geo.NewStore(nil), rand.New(rand.NewSource(1)), nil)
	_, err := s.Sample(Target{RegionID: "void"})
	assert.ErrorIs(t, err, ErrNoGeometry)
}
