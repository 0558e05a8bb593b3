package spatial

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"web/geoscatter/dataset"
	"web/geoscatter/geo"
)

func entityAt(id uint32, lat, lng float64) dataset.Entity {
	return dataset.Entity{ID: id, Position: geo.Point{Lat: lat, Lng: lng}, RegionID: "r"}
}

func TestFindNearbyZeroRadiusExactHit(t *testing.T) {
	entities := []dataset.Entity{
		entityAt(1, 40.7128, -74.0060),
		entityAt(2, 40.7130, -74.0060),
	}
	idx := NewIndex(entities, 0)

	hits := idx.FindNearby(40.7128, -74.0060, 0)
	require.Len(t, hits, 1)
	assert.Equal(t, uint32(1), hits[0].ID)
}

func TestFindNearbyRadius(t *testing.T) {
	entities := []dataset.Entity{
		entityAt(1, 0, 0),
		entityAt(2, 0, 0.005),
		entityAt(3, 0.02, 0),
		entityAt(4, 1, 1),
	}
	idx := NewIndex(entities, 0)

	hits := idx.FindNearby(0, 0, 0.01)
	ids := map[uint32]bool{}
	for _, h := range hits {
		ids[h.ID] = true
	}
	assert.True(t, ids[1])
	assert.True(t, ids[2])
	assert.False(t, ids[3], "outside radius")
	assert.False(t, ids[4])
}

// Candidates straddling cell borders must still be found: the ring scan
// covers every cell the radius can reach.
func TestFindNearbyAcrossCellBoundary(t *testing.T) {
	entities := []dataset.Entity{
		entityAt(1, 0.0099, 0.0099),
		entityAt(2, 0.0101, 0.0101),
	}
	idx := NewIndex(entities, 0.01)

	hits := idx.FindNearby(0.01, 0.01, 0.001)
	assert.Len(t, hits, 2)
}

func TestFindNearbyNegativeCoordinates(t *testing.T) {
	entities := []dataset.Entity{
		entityAt(1, -33.8688, 151.2093),
	}
	idx := NewIndex(entities, 0)

	hits := idx.FindNearby(-33.8688, 151.2093, 0)
	require.Len(t, hits, 1)
}

func TestFindNearbyMatchesBruteForce(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	entities := make([]dataset.Entity, 2000)
	for i := range entities {
		entities[i] = entityAt(uint32(i+1), rng.Float64()*2-1, rng.Float64()*2-1)
	}
	idx := NewIndex(entities, 0)

	for trial := 0; trial < 50; trial++ {
		lat := rng.Float64()*2 - 1
		lng := rng.Float64()*2 - 1
		radius := rng.Float64() * 0.1

		want := map[uint32]bool{}
		for _, e := range entities {
			dLat := e.Position.Lat - lat
			dLng := e.Position.Lng - lng
			if dLat*dLat+dLng*dLng <= radius*radius {
				want[e.ID] = true
			}
		}

		got := map[uint32]bool{}
		for _, e := range idx.FindNearby(lat, lng, radius) {
			got[e.ID] = true
		}
		assert.Equal(t, want, got)
	}
}
