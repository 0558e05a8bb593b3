package cluster

import (
	"fmt"
	"runtime"
	"testing"

	"web/geoscatter/geo"
)

// benchmarkBuild measures full index construction for a given entity count.
func benchmarkBuild(b *testing.B, numEntities int) {
	entities := makeEntities(numEntities, 42)
	opts := Options{
		MinZoom:   0,
		MaxZoom:   16,
		MinPoints: 2,
		Radius:    40,
		Extent:    512,
		NodeSize:  64,
	}

	var memStatsBefore, memStatsAfter runtime.MemStats
	runtime.ReadMemStats(&memStatsBefore)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		NewIndex(entities, opts, nil)
	}
	b.StopTimer()

	runtime.ReadMemStats(&memStatsAfter)
	allocMB := float64(memStatsAfter.TotalAlloc-memStatsBefore.TotalAlloc) / 1024 / 1024
	b.ReportMetric(allocMB/float64(b.N), "MB/op")
}

func BenchmarkBuildSmall(b *testing.B)  { benchmarkBuild(b, 1000) }
func BenchmarkBuildMedium(b *testing.B) { benchmarkBuild(b, 10000) }
func BenchmarkBuildLarge(b *testing.B)  { benchmarkBuild(b, 100000) }

// benchmarkQuery measures repeated viewport queries against a built index.
func benchmarkQuery(b *testing.B, numEntities int, zoom float64) {
	idx := NewIndex(makeEntities(numEntities, 42), Options{
		MinZoom:   0,
		MaxZoom:   16,
		MinPoints: 2,
		Radius:    40,
		Extent:    512,
		NodeSize:  64,
	}, nil)

	// City-scale viewport around the densest test center.
	box := geo.BBox{MinLat: 38.0, MaxLat: 43.0, MinLng: -77.0, MaxLng: -71.0}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		idx.GetVisible(box, zoom)
	}
}

func BenchmarkQuerySmall_LowZoom(b *testing.B)   { benchmarkQuery(b, 1000, 2) }
func BenchmarkQuerySmall_HighZoom(b *testing.B)  { benchmarkQuery(b, 1000, 14) }
func BenchmarkQueryMedium_LowZoom(b *testing.B)  { benchmarkQuery(b, 10000, 2) }
func BenchmarkQueryMedium_HighZoom(b *testing.B) { benchmarkQuery(b, 10000, 14) }
func BenchmarkQueryLarge_LowZoom(b *testing.B)   { benchmarkQuery(b, 100000, 2) }
func BenchmarkQueryLarge_HighZoom(b *testing.B)  { benchmarkQuery(b, 100000, 14) }

func BenchmarkLeaves(b *testing.B) {
	idx := NewIndex(makeEntities(50000, 42), Options{MinPoints: 2}, nil)
	box := geo.BBox{MinLat: 38.0, MaxLat: 43.0, MinLng: -77.0, MaxLng: -71.0}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		idx.Leaves(box)
	}
}

// TestBuildScaling prints build timings across dataset sizes. Skipped in
// short mode since the large case allocates heavily.
func TestBuildScaling(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping scaling test in short mode")
	}

	for _, n := range []int{1000, 10000, 100000} {
		entities := makeEntities(n, 42)
		idx := NewIndex(entities, Options{MinPoints: 2}, nil)

		levels := 0
		for zoom := 0.0; zoom <= 17; zoom++ {
			if len(idx.GetVisible(worldBox, zoom)) > 0 {
				levels++
			}
		}
		fmt.Printf("%d entities: %d non-empty zoom levels\n", idx.Len(), levels)
	}
}
