package cluster

// Summary aggregates a visible node set for dashboards and the metadata
// endpoint: how many clusters versus single points, total entity count and
// the categorical rollups of everything on screen.
type Summary struct {
	TotalPoints     int            `json:"totalPoints"`
	NumClusters     int            `json:"numClusters"`
	NumSinglePoints int            `json:"numSinglePoints"`
	GenderCounts    map[string]int `json:"genderCounts"`
	AgeCounts       map[string]int `json:"ageCounts"`
}

// Summarize rolls up a visible set. Member resolution goes through the
// index, so counts reflect the underlying entities, not just node counts.
func (idx *Index) Summarize(visible []VisibleNode) Summary {
	summary := Summary{
		GenderCounts: make(map[string]int),
		AgeCounts:    make(map[string]int),
	}
	for _, v := range visible {
		if v.IsCluster {
			summary.NumClusters++
		} else {
			summary.NumSinglePoints++
		}
		summary.TotalPoints += int(v.Count)

		members, err := idx.GetMembers(v.ID)
		if err != nil {
			continue
		}
		for _, e := range members {
			summary.GenderCounts[e.Gender.String()]++
			summary.AgeCounts[e.Age.String()]++
		}
	}
	return summary
}

// Feature is a GeoJSON feature wrapping one visible node.
type Feature struct {
	Type       string                 `json:"type"`
	Geometry   Geometry               `json:"geometry"`
	Properties map[string]interface{} `json:"properties"`
}

type FeatureCollection struct {
	Type     string    `json:"type"`
	Features []Feature `json:"features"`
}

type Geometry struct {
	Type        string    `json:"type"`
	Coordinates []float64 `json:"coordinates"`
}

// ToGeoJSON converts a visible node set to a GeoJSON FeatureCollection for
// map clients.
func ToGeoJSON(visible []VisibleNode) *FeatureCollection {
	features := make([]Feature, len(visible))
	for i, v := range visible {
		features[i] = Feature{
			Type: "Feature",
			Geometry: Geometry{
				Type:        "Point",
				Coordinates: []float64{v.Lng, v.Lat},
			},
			Properties: map[string]interface{}{
				"cluster":     v.IsCluster,
				"cluster_id":  v.ID,
				"point_count": v.Count,
			},
		}
	}
	return &FeatureCollection{Type: "FeatureCollection", Features: features}
}
