// Package sample generates valid interior positions for regions. The main
// path is rejection sampling against the region boundary; two fallbacks keep
// position generation from ever being a hard failure.
package sample

import (
	"errors"
	"math"
	"math/rand"

	"go.uber.org/zap"

	"web/geoscatter/geo"
)

// Fallback radius and shape of the centroid draw. The power-law exponent
// keeps points dense near the center instead of uniformly filling a disk.
const (
	defaultMaxAttempts  = 100
	fallbackRadiusDeg   = 0.05
	fallbackRadiusPower = 0.6
)

// ErrNoGeometry is returned when a region has neither a usable boundary nor
// any centroid or sub-center to fall back on.
var ErrNoGeometry = errors.New("sample: region has no boundary and no fallback center")

// Center is a weighted fallback point inside a region.
type Center struct {
	Point  geo.Point
	Weight float64
}

// Target describes where to sample for one region.
type Target struct {
	RegionID string
	Centroid *geo.Point
	Centers  []Center
}

// Sampler draws positions for regions using an injected random source, so a
// fixed seed reproduces the exact same scatter.
type Sampler struct {
	store       *geo.Store
	rng         *rand.Rand
	log         *zap.Logger
	maxAttempts int
}

// New creates a sampler over the given boundary store. rng must not be shared
// with other concurrent users.
func New(store *geo.Store, rng *rand.Rand, log *zap.Logger) *Sampler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Sampler{
		store:       store,
		rng:         rng,
		log:         log,
		maxAttempts: defaultMaxAttempts,
	}
}

// Sample returns a position for the target region. With a boundary present it
// rejection-samples inside the cached bounding box; if the attempt budget runs
// out it settles for the bbox midpoint, a documented positional bias for
// narrow shapes. Without a boundary it draws around the centroid or one of
// the weighted sub-centers.
func (s *Sampler) Sample(t Target) (geo.Point, error) {
	if s.store != nil && s.store.Has(t.RegionID) {
		return s.sampleInBoundary(t.RegionID), nil
	}
	return s.sampleAroundCenter(t)
}

func (s *Sampler) sampleInBoundary(regionID string) geo.Point {
	box, _ := s.store.BBox(regionID)
	for i := 0; i < s.maxAttempts; i++ {
		p := geo.Point{
			Lat: box.MinLat + s.rng.Float64()*(box.MaxLat-box.MinLat),
			Lng: box.MinLng + s.rng.Float64()*(box.MaxLng-box.MinLng),
		}
		if s.store.IsInside(p, regionID) {
			return p
		}
	}
	s.log.Warn("rejection sampling exhausted, using bbox midpoint",
		zap.String("region", regionID),
		zap.Int("attempts", s.maxAttempts))
	return box.Midpoint()
}

func (s *Sampler) sampleAroundCenter(t Target) (geo.Point, error) {
	center, ok := s.pickCenter(t)
	if !ok {
		return geo.Point{}, ErrNoGeometry
	}

	// Polar draw with power-law radius.
	r := fallbackRadiusDeg * math.Pow(s.rng.Float64(), fallbackRadiusPower)
	theta := s.rng.Float64() * 2 * math.Pi

	lat := center.Lat + r*math.Sin(theta)
	// Shrink the longitude step away from the equator so the disk stays
	// roughly circular on the ground.
	lngScale := math.Cos(center.Lat * math.Pi / 180)
	if lngScale < 0.1 {
		lngScale = 0.1
	}
	lng := center.Lng + r*math.Cos(theta)/lngScale

	return geo.Point{Lat: lat, Lng: lng}, nil
}

// pickCenter chooses a sub-center proportionally to weight, falling back to
// the region centroid when no sub-centers exist.
func (s *Sampler) pickCenter(t Target) (geo.Point, bool) {
	if len(t.Centers) > 0 {
		var total float64
		for _, c := range t.Centers {
			total += c.Weight
		}
		if total > 0 {
			draw := s.rng.Float64() * total
			for _, c := range t.Centers {
				draw -= c.Weight
				if draw <= 0 {
					return c.Point, true
				}
			}
		}
		return t.Centers[len(t.Centers)-1].Point, true
	}
	if t.Centroid != nil {
		return *t.Centroid, true
	}
	if s.store != nil {
		if c, ok := s.store.Centroid(t.RegionID); ok {
			return c, true
		}
	}
	return geo.Point{}, false
}
