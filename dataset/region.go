// Package dataset turns per-region aggregate counts into individual
// synthetic entities with sampled positions and categorical attributes.
package dataset

import (
	"encoding/json"
	"fmt"
	"os"

	"web/geoscatter/geo"
)

// Gender is one of the two breakdown categories.
type Gender uint8

const (
	GenderBoy Gender = iota
	GenderGirl
)

func (g Gender) String() string {
	if g == GenderBoy {
		return "boy"
	}
	return "girl"
}

// AgeBucket is one of the three fixed age bands in the source statistics.
type AgeBucket uint8

const (
	AgeUnder6 AgeBucket = iota
	Age6to12
	Age13to17
)

func (a AgeBucket) String() string {
	switch a {
	case AgeUnder6:
		return "under6"
	case Age6to12:
		return "6to12"
	default:
		return "13to17"
	}
}

// SubCenter is a weighted settlement center inside a region, used by the
// sampling fallback when no boundary geometry is available.
type SubCenter struct {
	Center geo.Point `json:"center"`
	Weight float64   `json:"weight"`
}

// Region is one input record: a boundary, an aggregate count and its
// categorical breakdowns. Loaded once at startup and immutable afterwards.
type Region struct {
	ID              string             `json:"id"`
	Boundary        *geo.RawGeometry   `json:"boundary,omitempty"`
	AggregateCount  int                `json:"aggregateCount"`
	GenderBreakdown map[string]int     `json:"genderBreakdown"`
	AgeBreakdown    map[string]int     `json:"ageBreakdown"`
	SubCenters      []SubCenter        `json:"subCenters,omitempty"`
	Centroid        *geo.Point         `json:"centroid,omitempty"`
}

// Entity is one synthetic point representing a unit of a region's aggregate
// count. Entities are created in batch and never mutated; a region-set change
// regenerates the whole slice.
type Entity struct {
	ID       uint32
	Position geo.Point
	RegionID string
	Gender   Gender
	Age      AgeBucket
}

// LoadRegions reads a JSON array of region records from disk.
func LoadRegions(path string) ([]Region, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read regions file: %w", err)
	}
	var regions []Region
	if err := json.Unmarshal(data, &regions); err != nil {
		return nil, fmt.Errorf("decode regions file: %w", err)
	}
	return regions, nil
}

// genderRatio returns the probability of drawing a boy. Empty or zero
// breakdowns fall back to an even split.
func (r *Region) genderRatio() float64 {
	boys := r.GenderBreakdown["boys"]
	girls := r.GenderBreakdown["girls"]
	total := boys + girls
	if total <= 0 {
		return 0.5
	}
	return float64(boys) / float64(total)
}

// ageWeights returns draw weights for the three age buckets in bucket order.
// A missing breakdown yields uniform weights.
func (r *Region) ageWeights() [3]float64 {
	w := [3]float64{
		float64(r.AgeBreakdown["under6"]),
		float64(r.AgeBreakdown["6to12"]),
		float64(r.AgeBreakdown["13to17"]),
	}
	if w[0]+w[1]+w[2] <= 0 {
		return [3]float64{1, 1, 1}
	}
	return w
}
