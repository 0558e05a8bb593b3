package dataset

import (
	"encoding/json"
	"fmt"
	"math/rand"

	"web/geoscatter/geo"
)

// GenerateTestRegions fabricates aggregate region records inside bounds,
// for profiling and load testing. Each region gets a square boundary, a
// count spread around countPerRegion and randomized breakdowns.
func GenerateTestRegions(numRegions, countPerRegion int, bounds geo.BBox, seed int64) []Region {
	rng := rand.New(rand.NewSource(seed))
	regions := make([]Region, numRegions)

	for i := range regions {
		centerLat := bounds.MinLat + rng.Float64()*(bounds.MaxLat-bounds.MinLat)
		centerLng := bounds.MinLng + rng.Float64()*(bounds.MaxLng-bounds.MinLng)
		half := 0.05 + rng.Float64()*0.2

		count := countPerRegion/2 + rng.Intn(countPerRegion+1)
		boys := int(float64(count) * (0.4 + rng.Float64()*0.2))

		under6 := rng.Intn(count + 1)
		age6to12 := rng.Intn(count - under6 + 1)

		var subCenters []SubCenter
		numSub := rng.Intn(4)
		if numSub > 0 {
			subCenters = make([]SubCenter, numSub)
			remaining := 1.0
			for j := range subCenters {
				w := remaining / float64(numSub-j)
				subCenters[j] = SubCenter{
					Center: geo.Point{
						Lat: centerLat + (rng.Float64()*2-1)*half*0.8,
						Lng: centerLng + (rng.Float64()*2-1)*half*0.8,
					},
					Weight: w,
				}
				remaining -= w
			}
		}

		regions[i] = Region{
			ID:             fmt.Sprintf("region-%04d", i),
			Boundary:       squareBoundary(centerLat, centerLng, half),
			AggregateCount: count,
			GenderBreakdown: map[string]int{
				"boys":  boys,
				"girls": count - boys,
			},
			AgeBreakdown: map[string]int{
				"under6": under6,
				"6to12":  age6to12,
				"13to17": count - under6 - age6to12,
			},
			SubCenters: subCenters,
			Centroid:   &geo.Point{Lat: centerLat, Lng: centerLng},
		}
	}
	return regions
}

// squareBoundary builds an axis-aligned square polygon around a center.
func squareBoundary(lat, lng, half float64) *geo.RawGeometry {
	ring := [][][]float64{{
		{lng - half, lat - half},
		{lng + half, lat - half},
		{lng + half, lat + half},
		{lng - half, lat + half},
		{lng - half, lat - half},
	}}
	coords, _ := json.Marshal(ring)
	return &geo.RawGeometry{Type: "Polygon", Coordinates: coords}
}
