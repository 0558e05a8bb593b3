package cluster

import (
	"math"

	"web/geoscatter/geo"
)

// Viewport is a view description as the host knows it: a center, a zoom and
// a pixel size.
type Viewport struct {
	CenterLat float64
	CenterLng float64
	Zoom      float64
	WidthPx   int
	HeightPx  int
}

// BBox converts the viewport to geographic bounds using the same mercator
// scaling the index projects with. tileSize is the pixel extent of one tile,
// normally Options.Extent.
func (v Viewport) BBox(tileSize int) geo.BBox {
	if tileSize <= 0 {
		tileSize = 512
	}
	worldPx := float64(tileSize) * math.Pow(2, v.Zoom)

	cx, cy := project(v.CenterLng, v.CenterLat)
	halfW := float64(v.WidthPx) / 2 / worldPx
	halfH := float64(v.HeightPx) / 2 / worldPx

	minX := float64(cx) - halfW
	maxX := float64(cx) + halfW
	minY := float64(cy) - halfH
	maxY := float64(cy) + halfH

	// y grows southward in mercator space
	west, north := unproject(float32(minX), float32(minY))
	east, south := unproject(float32(maxX), float32(maxY))

	return geo.BBox{MinLat: south, MaxLat: north, MinLng: west, MaxLng: east}
}

// Query runs GetVisible over the viewport's bounds.
func (idx *Index) Query(v Viewport) []VisibleNode {
	return idx.GetVisible(v.BBox(idx.opts.Extent), v.Zoom)
}
