package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"runtime"
	"runtime/pprof"
	"time"

	"web/geoscatter/dataset"
	"web/geoscatter/engine"
	"web/geoscatter/geo"
)

var (
	cpuprofile  = flag.String("cpuprofile", "", "write cpu profile to file")
	memprofile  = flag.String("memprofile", "", "write memory profile to file")
	heapprofile = flag.String("heapprofile", "", "write heap profile to file")
	numRegions  = flag.Int("regions", 200, "number of regions to generate")
	perRegion   = flag.Int("per-region", 500, "aggregate count per region")
	zoomLevel   = flag.Float64("zoom", 8, "zoom level to profile queries at")
	testall     = flag.Bool("testall", false, "test all configurations")
)

// continentalUS keeps generated regions in a realistic extent.
var continentalUS = geo.BBox{MinLat: 25.0, MaxLat: 49.0, MinLng: -125.0, MaxLng: -67.0}

func buildEngine(numRegions, perRegion int) (*engine.Engine, error) {
	eng := engine.New(engine.Config{Seed: 42}, geo.NewStore(nil), nil, nil)
	regions := dataset.GenerateTestRegions(numRegions, perRegion, continentalUS, 42)
	if err := eng.Rebuild(context.Background(), regions); err != nil {
		return nil, err
	}
	return eng, nil
}

func runSingleProfile(numRegions, perRegion int, zoom float64) {
	fmt.Printf("Profiling %d regions at ~%d entities each, querying at zoom %.0f\n",
		numRegions, perRegion, zoom)

	var memStatsBefore, memStatsAfter runtime.MemStats
	runtime.ReadMemStats(&memStatsBefore)

	start := time.Now()
	eng, err := buildEngine(numRegions, perRegion)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Build failed: %v\n", err)
		return
	}
	buildDuration := time.Since(start)

	runtime.ReadMemStats(&memStatsAfter)
	allocMB := float64(memStatsAfter.TotalAlloc-memStatsBefore.TotalAlloc) / 1024 / 1024

	fmt.Printf("Build completed in %v (%d entities)\n", buildDuration, eng.Len())
	fmt.Printf("Memory allocated: %.2f MB\n", allocMB)

	// Query phase: sweep viewports across the extent
	const queries = 1000
	start = time.Now()
	for i := 0; i < queries; i++ {
		frac := float64(i) / queries
		box := geo.BBox{
			MinLat: continentalUS.MinLat + frac*10,
			MaxLat: continentalUS.MinLat + frac*10 + 8,
			MinLng: continentalUS.MinLng + frac*30,
			MaxLng: continentalUS.MinLng + frac*30 + 12,
		}
		if _, err := eng.GetVisibleBounds(box, zoom); err != nil {
			fmt.Fprintf(os.Stderr, "Query failed: %v\n", err)
			return
		}
	}
	queryDuration := time.Since(start)
	fmt.Printf("%d queries in %v (%.2f ms/query)\n",
		queries, queryDuration, float64(queryDuration.Milliseconds())/queries)
}

func runProfileBattery() {
	regionCounts := []int{50, 200, 500}
	perRegionCounts := []int{100, 500, 2000}
	zoomLevels := []float64{2, 8, 14}

	fmt.Println("Running comprehensive profile battery...")
	fmt.Println("=======================================")

	fmt.Printf("%-10s | %-12s | %-10s | %-15s | %-15s | %-12s\n",
		"Regions", "Per-region", "Zoom", "Build", "1k Queries", "Memory (MB)")
	fmt.Printf("%s\n", "---------------------------------------------------------------------------------------")

	for _, regions := range regionCounts {
		for _, per := range perRegionCounts {
			var memStatsBefore, memStatsAfter runtime.MemStats
			runtime.ReadMemStats(&memStatsBefore)

			start := time.Now()
			eng, err := buildEngine(regions, per)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Build failed: %v\n", err)
				return
			}
			buildDuration := time.Since(start)

			runtime.ReadMemStats(&memStatsAfter)
			memMB := float64(memStatsAfter.TotalAlloc-memStatsBefore.TotalAlloc) / 1024 / 1024

			for _, zoom := range zoomLevels {
				start = time.Now()
				for i := 0; i < 1000; i++ {
					eng.GetVisibleBounds(continentalUS, zoom)
				}
				queryDuration := time.Since(start)

				fmt.Printf("%-10d | %-12d | %-10.0f | %-15s | %-15s | %-12.2f\n",
					regions, per, zoom, buildDuration, queryDuration, memMB)
			}
		}
		fmt.Printf("%s\n", "---------------------------------------------------------------------------------------")
	}
}

func main() {
	flag.Parse()

	// Set up CPU profiling if requested
	if *cpuprofile != "" {
		f, err := os.Create(*cpuprofile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Could not create CPU profile: %v\n", err)
			return
		}
		defer f.Close()

		fmt.Println("Starting CPU profiling...")
		if err := pprof.StartCPUProfile(f); err != nil {
			fmt.Fprintf(os.Stderr, "Could not start CPU profile: %v\n", err)
			return
		}
		defer pprof.StopCPUProfile()
	}

	if *testall {
		runProfileBattery()
	} else {
		runSingleProfile(*numRegions, *perRegion, *zoomLevel)
	}

	// Write memory profile if requested
	if *memprofile != "" {
		f, err := os.Create(*memprofile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Could not create memory profile: %v\n", err)
			return
		}
		defer f.Close()
		runtime.GC() // Get up-to-date statistics
		if err := pprof.WriteHeapProfile(f); err != nil {
			fmt.Fprintf(os.Stderr, "Could not write memory profile: %v\n", err)
		}
	}

	// Write heap profile if requested
	if *heapprofile != "" {
		f, err := os.Create(*heapprofile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Could not create heap profile: %v\n", err)
			return
		}
		defer f.Close()

		memProfile := pprof.Lookup("heap")
		if memProfile == nil {
			fmt.Fprintf(os.Stderr, "Could not find heap profile\n")
			return
		}

		if err := memProfile.WriteTo(f, 0); err != nil {
			fmt.Fprintf(os.Stderr, "Could not write heap profile: %v\n", err)
		}
	}
}
