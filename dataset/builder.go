package dataset

import (
	"errors"
	"math/rand"

	"go.uber.org/zap"

	"web/geoscatter/sample"
)

// Builder expands region aggregates into individual entities. Attribute
// assignment is an independent draw against each breakdown ratio, not an
// exact partition, so small regions can drift from their stated split.
type Builder struct {
	sampler *sample.Sampler
	rng     *rand.Rand
	log     *zap.Logger
}

// NewBuilder creates a builder. rng drives attribute draws and should come
// from the same seed policy as the sampler's source for reproducible runs.
func NewBuilder(sampler *sample.Sampler, rng *rand.Rand, log *zap.Logger) *Builder {
	if log == nil {
		log = zap.NewNop()
	}
	return &Builder{sampler: sampler, rng: rng, log: log}
}

// Build generates exactly aggregateCount entities per region. Regions whose
// positions cannot be sampled at all are skipped with a warning; the rest of
// the set still builds. Entity IDs are assigned sequentially from 1.
func (b *Builder) Build(regions []Region) []Entity {
	var total int
	for i := range regions {
		if regions[i].AggregateCount > 0 {
			total += regions[i].AggregateCount
		}
	}
	entities := make([]Entity, 0, total)

	var nextID uint32 = 1
	for i := range regions {
		r := &regions[i]
		if r.AggregateCount <= 0 {
			continue
		}

		target := sample.Target{
			RegionID: r.ID,
			Centroid: r.Centroid,
		}
		for _, sc := range r.SubCenters {
			target.Centers = append(target.Centers, sample.Center{Point: sc.Center, Weight: sc.Weight})
		}

		ratio := r.genderRatio()
		weights := r.ageWeights()

		skipped := false
		for n := 0; n < r.AggregateCount; n++ {
			pos, err := b.sampler.Sample(target)
			if err != nil {
				if errors.Is(err, sample.ErrNoGeometry) {
					b.log.Warn("skipping region, no way to place entities",
						zap.String("region", r.ID),
						zap.Int("aggregateCount", r.AggregateCount))
					skipped = true
					break
				}
				b.log.Warn("sample failed", zap.String("region", r.ID), zap.Error(err))
				skipped = true
				break
			}

			entities = append(entities, Entity{
				ID:       nextID,
				Position: pos,
				RegionID: r.ID,
				Gender:   b.drawGender(ratio),
				Age:      b.drawAge(weights),
			})
			nextID++
		}
		if skipped {
			// Drop any partial output for the region so counts stay exact.
			entities = trimRegion(entities, r.ID)
		}
	}
	return entities
}

func (b *Builder) drawGender(boyRatio float64) Gender {
	if b.rng.Float64() < boyRatio {
		return GenderBoy
	}
	return GenderGirl
}

func (b *Builder) drawAge(weights [3]float64) AgeBucket {
	total := weights[0] + weights[1] + weights[2]
	draw := b.rng.Float64() * total
	if draw < weights[0] {
		return AgeUnder6
	}
	if draw < weights[0]+weights[1] {
		return Age6to12
	}
	return Age13to17
}

func trimRegion(entities []Entity, regionID string) []Entity {
	out := entities[:0]
	for _, e := range entities {
		if e.RegionID != regionID {
			out = append(out, e)
		}
	}
	return out
}
