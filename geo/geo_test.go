package geo

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rawPolygon(t *testing.T, coords [][][]float64) RawGeometry {
	t.Helper()
	b, err := json.Marshal(coords)
	require.NoError(t, err)
	return RawGeometry{Type: "Polygon", Coordinates: b}
}

func rawMultiPolygon(t *testing.T, coords [][][][]float64) RawGeometry {
	t.Helper()
	b, err := json.Marshal(coords)
	require.NoError(t, err)
	return RawGeometry{Type: "MultiPolygon", Coordinates: b}
}

// unit square from (0,0) to (10,10) in lng/lat
func squareCoords() [][][]float64 {
	return [][][]float64{{
		{0, 0}, {10, 0}, {10, 10}, {0, 10}, {0, 0},
	}}
}

func TestPointInSimplePolygon(t *testing.T) {
	store := NewStore(nil)
	require.NoError(t, store.Add("sq", rawPolygon(t, squareCoords())))

	assert.True(t, store.IsInside(Point{Lat: 5, Lng: 5}, "sq"))
	assert.True(t, store.IsInside(Point{Lat: 0.001, Lng: 9.999}, "sq"))
	assert.False(t, store.IsInside(Point{Lat: 5, Lng: 11}, "sq"))
	assert.False(t, store.IsInside(Point{Lat: -1, Lng: 5}, "sq"))
}

func TestPointInPolygonWithHole(t *testing.T) {
	coords := squareCoords()
	// hole from (4,4) to (6,6)
	coords = append(coords, [][]float64{
		{4, 4}, {6, 4}, {6, 6}, {4, 6}, {4, 4},
	})

	store := NewStore(nil)
	require.NoError(t, store.Add("holed", rawPolygon(t, coords)))

	assert.True(t, store.IsInside(Point{Lat: 2, Lng: 2}, "holed"))
	assert.False(t, store.IsInside(Point{Lat: 5, Lng: 5}, "holed"), "point in hole must be outside")
	assert.True(t, store.IsInside(Point{Lat: 5, Lng: 3.5}, "holed"))
}

func TestPointInMultiPolygon(t *testing.T) {
	coords := [][][][]float64{
		{{{0, 0}, {2, 0}, {2, 2}, {0, 2}, {0, 0}}},
		{{{10, 10}, {12, 10}, {12, 12}, {10, 12}, {10, 10}}},
	}

	store := NewStore(nil)
	require.NoError(t, store.Add("multi", rawMultiPolygon(t, coords)))

	assert.True(t, store.IsInside(Point{Lat: 1, Lng: 1}, "multi"))
	assert.True(t, store.IsInside(Point{Lat: 11, Lng: 11}, "multi"))
	assert.False(t, store.IsInside(Point{Lat: 5, Lng: 5}, "multi"), "gap between parts is outside")
}

func TestBBoxCachedAndCorrect(t *testing.T) {
	store := NewStore(nil)
	require.NoError(t, store.Add("sq", rawPolygon(t, squareCoords())))

	box, ok := store.BBox("sq")
	require.True(t, ok)
	assert.Equal(t, 0.0, box.MinLat)
	assert.Equal(t, 10.0, box.MaxLat)
	assert.Equal(t, 0.0, box.MinLng)
	assert.Equal(t, 10.0, box.MaxLng)
	assert.Equal(t, Point{Lat: 5, Lng: 5}, box.Midpoint())
}

func TestMalformedGeometryRejected(t *testing.T) {
	store := NewStore(nil)

	err := store.Add("bad", RawGeometry{Type: "Circle", Coordinates: json.RawMessage(`[]`)})
	assert.Error(t, err, "unknown geometry type must be rejected")

	err = store.Add("empty", RawGeometry{Type: "Polygon", Coordinates: json.RawMessage(`[]`)})
	assert.Error(t, err, "polygon without rings must be rejected")

	err = store.Add("degenerate", RawGeometry{Type: "Polygon", Coordinates: json.RawMessage(`[[[0,0],[1,1]]]`)})
	assert.Error(t, err, "ring with fewer than 3 vertices must be rejected")

	assert.False(t, store.Has("bad"))
	assert.False(t, store.IsInside(Point{}, "bad"))
	assert.Equal(t, 0, store.Len())
}

func TestUnknownRegionQueries(t *testing.T) {
	store := NewStore(nil)
	assert.False(t, store.IsInside(Point{Lat: 1, Lng: 1}, "nope"))
	_, ok := store.BBox("nope")
	assert.False(t, ok)
	_, ok = store.Centroid("nope")
	assert.False(t, ok)
}
