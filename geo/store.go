package geo

import (
	"go.uber.org/zap"
)

// Store holds the parsed boundary geometry for every region that survived
// ingest, with bounding boxes computed once up front. It is populated before
// any sampling starts and read-only afterwards, so lookups need no locking.
type Store struct {
	log     *zap.Logger
	regions map[string]*regionGeometry
}

type regionGeometry struct {
	geom     Geometry
	bbox     BBox
	centroid Point
}

// NewStore creates an empty boundary store.
func NewStore(log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{
		log:     log,
		regions: make(map[string]*regionGeometry),
	}
}

// Add parses and registers a region boundary. A malformed boundary is logged
// and rejected; the caller is expected to drop that region and carry on with
// the rest of the load.
func (s *Store) Add(regionID string, raw RawGeometry) error {
	geom, err := ParseGeometry(raw)
	if err != nil {
		s.log.Warn("skipping region with unusable boundary",
			zap.String("region", regionID),
			zap.String("geometryType", raw.Type),
			zap.Error(err))
		return err
	}
	s.regions[regionID] = &regionGeometry{
		geom:     geom,
		bbox:     geom.BBox(),
		centroid: geom.Centroid(),
	}
	return nil
}

// Has reports whether a usable boundary is registered for the region.
func (s *Store) Has(regionID string) bool {
	_, ok := s.regions[regionID]
	return ok
}

// Len returns the number of registered regions.
func (s *Store) Len() int { return len(s.regions) }

// IsInside tests point membership against the region's boundary: inside the
// outer ring of some constituent polygon and outside that polygon's holes.
// Unknown regions are never inside.
func (s *Store) IsInside(p Point, regionID string) bool {
	rg, ok := s.regions[regionID]
	if !ok {
		return false
	}
	if !rg.bbox.Contains(p) {
		return false
	}
	return rg.geom.Contains(p)
}

// BBox returns the cached bounding box for the region.
func (s *Store) BBox(regionID string) (BBox, bool) {
	rg, ok := s.regions[regionID]
	if !ok {
		return BBox{}, false
	}
	return rg.bbox, true
}

// Centroid returns the cached vertex centroid for the region.
func (s *Store) Centroid(regionID string) (Point, bool) {
	rg, ok := s.regions[regionID]
	if !ok {
		return Point{}, false
	}
	return rg.centroid, true
}
