// Package geo owns region boundary geometry: ring-based polygons, cached
// bounding boxes and point-membership tests. Geometry is ingested once from
// GeoJSON-style records and is immutable afterwards.
package geo

import (
	"encoding/json"
	"fmt"
	"math"
)

// Point is a WGS84 coordinate.
type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Ring is a closed sequence of vertices. Ring 0 of a polygon is the outer
// boundary, subsequent rings are holes.
type Ring []Point

// Polygon is one outer ring plus zero or more hole rings.
type Polygon struct {
	Rings []Ring
}

// BBox is an axis-aligned bounding box in lat/lng space.
type BBox struct {
	MinLat, MaxLat float64
	MinLng, MaxLng float64
}

// Extend expands the box to include p.
func (b *BBox) Extend(p Point) {
	b.MinLat = math.Min(b.MinLat, p.Lat)
	b.MaxLat = math.Max(b.MaxLat, p.Lat)
	b.MinLng = math.Min(b.MinLng, p.Lng)
	b.MaxLng = math.Max(b.MaxLng, p.Lng)
}

// Contains reports whether p lies inside the box, edges included.
func (b BBox) Contains(p Point) bool {
	return p.Lat >= b.MinLat && p.Lat <= b.MaxLat &&
		p.Lng >= b.MinLng && p.Lng <= b.MaxLng
}

// Midpoint returns the center of the box.
func (b BBox) Midpoint() Point {
	return Point{
		Lat: (b.MinLat + b.MaxLat) / 2,
		Lng: (b.MinLng + b.MaxLng) / 2,
	}
}

func emptyBBox() BBox {
	return BBox{
		MinLat: math.Inf(1), MaxLat: math.Inf(-1),
		MinLng: math.Inf(1), MaxLng: math.Inf(-1),
	}
}

// RawGeometry is the wire form of a boundary as delivered by the data
// acquisition layer: a GeoJSON geometry object with a type tag.
type RawGeometry struct {
	Type        string          `json:"type"`
	Coordinates json.RawMessage `json:"coordinates"`
}

// Geometry is the parsed, normalized form: one or more polygons with holes.
// A GeoJSON Polygon becomes a single-element slice.
type Geometry struct {
	Polygons []Polygon
}

// ParseGeometry decodes a raw geometry into its normalized form. The type tag
// is matched exhaustively; anything other than Polygon or MultiPolygon is an
// error so the caller can skip the region instead of guessing.
func ParseGeometry(raw RawGeometry) (Geometry, error) {
	switch raw.Type {
	case "Polygon":
		var coords [][][]float64
		if err := json.Unmarshal(raw.Coordinates, &coords); err != nil {
			return Geometry{}, fmt.Errorf("decode polygon coordinates: %w", err)
		}
		poly, err := buildPolygon(coords)
		if err != nil {
			return Geometry{}, err
		}
		return Geometry{Polygons: []Polygon{poly}}, nil

	case "MultiPolygon":
		var coords [][][][]float64
		if err := json.Unmarshal(raw.Coordinates, &coords); err != nil {
			return Geometry{}, fmt.Errorf("decode multipolygon coordinates: %w", err)
		}
		if len(coords) == 0 {
			return Geometry{}, fmt.Errorf("multipolygon has no polygons")
		}
		polys := make([]Polygon, 0, len(coords))
		for _, pc := range coords {
			poly, err := buildPolygon(pc)
			if err != nil {
				return Geometry{}, err
			}
			polys = append(polys, poly)
		}
		return Geometry{Polygons: polys}, nil

	default:
		return Geometry{}, fmt.Errorf("unsupported geometry type %q", raw.Type)
	}
}

func buildPolygon(coords [][][]float64) (Polygon, error) {
	if len(coords) == 0 {
		return Polygon{}, fmt.Errorf("polygon has no rings")
	}
	rings := make([]Ring, 0, len(coords))
	for _, rc := range coords {
		if len(rc) < 3 {
			return Polygon{}, fmt.Errorf("ring has %d vertices, need at least 3", len(rc))
		}
		ring := make(Ring, 0, len(rc))
		for _, pos := range rc {
			if len(pos) < 2 {
				return Polygon{}, fmt.Errorf("position has %d components, need at least 2", len(pos))
			}
			// GeoJSON positions are [lng, lat]
			ring = append(ring, Point{Lat: pos[1], Lng: pos[0]})
		}
		rings = append(rings, ring)
	}
	return Polygon{Rings: rings}, nil
}

// pointInRing is the even-odd ray casting test against a single ring.
func pointInRing(p Point, ring Ring) bool {
	n := len(ring)
	if n < 3 {
		return false
	}
	inside := false
	x, y := p.Lng, p.Lat
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		xi, yi := ring[i].Lng, ring[i].Lat
		xj, yj := ring[j].Lng, ring[j].Lat
		if ((yi > y) != (yj > y)) && (x < (xj-xi)*(y-yi)/(yj-yi+1e-12)+xi) {
			inside = !inside
		}
	}
	return inside
}

// pointInPolygon reports whether p is inside the outer ring and outside every
// hole ring.
func pointInPolygon(p Point, poly Polygon) bool {
	if len(poly.Rings) == 0 {
		return false
	}
	if !pointInRing(p, poly.Rings[0]) {
		return false
	}
	for i := 1; i < len(poly.Rings); i++ {
		if pointInRing(p, poly.Rings[i]) {
			return false
		}
	}
	return true
}

// Contains reports whether p is inside some constituent polygon.
func (g Geometry) Contains(p Point) bool {
	for _, poly := range g.Polygons {
		if pointInPolygon(p, poly) {
			return true
		}
	}
	return false
}

// BBox computes the bounding box over all outer rings.
func (g Geometry) BBox() BBox {
	box := emptyBBox()
	for _, poly := range g.Polygons {
		if len(poly.Rings) == 0 {
			continue
		}
		for _, p := range poly.Rings[0] {
			box.Extend(p)
		}
	}
	return box
}

// Centroid is the vertex-average of all outer rings, a cheap stand-in used by
// the sampling fallback when no better center is known.
func (g Geometry) Centroid() Point {
	var latSum, lngSum float64
	var n int
	for _, poly := range g.Polygons {
		if len(poly.Rings) == 0 {
			continue
		}
		for _, p := range poly.Rings[0] {
			latSum += p.Lat
			lngSum += p.Lng
			n++
		}
	}
	if n == 0 {
		return Point{}
	}
	return Point{Lat: latSum / float64(n), Lng: lngSum / float64(n)}
}
