// Package perf watches live frame timing and drives rendering quality: a
// four-tier state machine with hysteresis, a health score, a memory leak
// detector and a one-shot device capability probe for the initial tier.
package perf

// Tier is one of four ordered rendering-quality levels.
type Tier int

const (
	TierLow Tier = iota
	TierMedium
	TierHigh
	TierUltra
)

func (t Tier) String() string {
	switch t {
	case TierLow:
		return "low"
	case TierMedium:
		return "medium"
	case TierHigh:
		return "high"
	default:
		return "ultra"
	}
}

// QualitySettings is what a tier means for the pipeline: how many entities to
// carry, whether and how to cluster, and whether secondary effects draw.
type QualitySettings struct {
	Tier              Tier    `json:"tier"`
	MaxEntities       int     `json:"maxEntities"`
	ClusteringEnabled bool    `json:"clusteringEnabled"`
	ClusterRadiusPx   float64 `json:"clusterRadiusPx"`
	SecondaryEffects  bool    `json:"secondaryEffectsEnabled"`
}

// tierSettings is indexed by Tier. Ultra turns clustering off entirely and
// draws everything; Low carries the fewest entities with the coarsest merge.
var tierSettings = [4]QualitySettings{
	TierLow:    {Tier: TierLow, MaxEntities: 5000, ClusteringEnabled: true, ClusterRadiusPx: 80, SecondaryEffects: false},
	TierMedium: {Tier: TierMedium, MaxEntities: 20000, ClusteringEnabled: true, ClusterRadiusPx: 60, SecondaryEffects: false},
	TierHigh:   {Tier: TierHigh, MaxEntities: 50000, ClusteringEnabled: true, ClusterRadiusPx: 40, SecondaryEffects: true},
	TierUltra:  {Tier: TierUltra, MaxEntities: 100000, ClusteringEnabled: false, ClusterRadiusPx: 40, SecondaryEffects: true},
}

// SettingsFor returns the fixed settings for a tier.
func SettingsFor(t Tier) QualitySettings {
	if t < TierLow {
		t = TierLow
	}
	if t > TierUltra {
		t = TierUltra
	}
	return tierSettings[t]
}
