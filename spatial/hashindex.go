// Package spatial provides a flat uniform-grid hash over the entity set for
// O(1) average hit-testing, independent of the cluster index resolution.
package spatial

import (
	"math"

	"web/geoscatter/dataset"
)

// DefaultCellSize is the grid cell edge in degrees. Hover/click radii are a
// small fraction of a degree at usable zooms, so one cell ring is typical.
const DefaultCellSize = 0.01

type cellKey struct {
	X, Y int32
}

// Index hashes entities into fixed-size lat/lng cells. Built once per dataset
// and read-only afterwards.
type Index struct {
	cellSize float64
	cells    map[cellKey][]int32
	entities []dataset.Entity
}

// NewIndex builds the grid over the given entities. cellSize <= 0 selects the
// default.
func NewIndex(entities []dataset.Entity, cellSize float64) *Index {
	if cellSize <= 0 {
		cellSize = DefaultCellSize
	}
	idx := &Index{
		cellSize: cellSize,
		cells:    make(map[cellKey][]int32, len(entities)/4+1),
		entities: entities,
	}
	for i := range entities {
		key := idx.keyFor(entities[i].Position.Lat, entities[i].Position.Lng)
		idx.cells[key] = append(idx.cells[key], int32(i))
	}
	return idx
}

func (idx *Index) keyFor(lat, lng float64) cellKey {
	return cellKey{
		X: int32(math.Floor(lat / idx.cellSize)),
		Y: int32(math.Floor(lng / idx.cellSize)),
	}
}

// Len returns the number of indexed entities.
func (idx *Index) Len() int { return len(idx.entities) }

// FindNearby returns every entity within radius (in degrees, Euclidean on
// lat/lng) of the query point. Radius 0 matches entities at the exact
// coordinates.
func (idx *Index) FindNearby(lat, lng, radius float64) []dataset.Entity {
	if radius < 0 {
		return nil
	}
	center := idx.keyFor(lat, lng)
	ring := int32(math.Ceil(radius / idx.cellSize))

	var out []dataset.Entity
	r2 := radius * radius
	for dx := -ring; dx <= ring; dx++ {
		for dy := -ring; dy <= ring; dy++ {
			bucket := idx.cells[cellKey{X: center.X + dx, Y: center.Y + dy}]
			for _, i := range bucket {
				e := &idx.entities[i]
				dLat := e.Position.Lat - lat
				dLng := e.Position.Lng - lng
				if dLat*dLat+dLng*dLng <= r2 {
					out = append(out, *e)
				}
			}
		}
	}
	return out
}
