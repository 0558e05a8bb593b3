package engine

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"web/geoscatter/cluster"
	"web/geoscatter/dataset"
	"web/geoscatter/geo"
	"web/geoscatter/perf"
	"web/geoscatter/sample"
	"web/geoscatter/spatial"
)

var (
	// ErrNotReady is returned before the first successful rebuild.
	ErrNotReady = errors.New("engine: no dataset loaded")
	// ErrSuperseded is returned when a newer rebuild started while this one
	// was still running. The superseded result is discarded, never published.
	ErrSuperseded = errors.New("engine: rebuild superseded")
)

// Config carries the knobs the engine needs at construction.
type Config struct {
	SnapshotDir string
	Cluster     cluster.Options
	CellSize    float64 // spatial hash cell size in degrees
	Seed        int64
}

func (c Config) withDefaults() Config {
	if c.CellSize <= 0 {
		c.CellSize = spatial.DefaultCellSize
	}
	if c.SnapshotDir == "" {
		c.SnapshotDir = "data/snapshots"
	}
	return c
}

// snapshot is one fully built dataset generation. Immutable once published.
type snapshot struct {
	generation uint64
	index      *cluster.Index
	hash       *spatial.Index
	builtAt    time.Time
}

// Engine owns the live dataset: the expanded entities, their cluster index
// and the spatial hash for hit testing. Rebuilds happen off the query path
// and swap in atomically; readers always see a complete generation.
type Engine struct {
	cfg   Config
	log   *zap.Logger
	store *geo.Store
	gov   *perf.Governor

	generation atomic.Uint64
	current    atomic.Pointer[snapshot]

	buildMu sync.Mutex
}

func New(cfg Config, store *geo.Store, gov *perf.Governor, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{
		cfg:   cfg.withDefaults(),
		log:   log,
		store: store,
		gov:   gov,
	}
}

// Rebuild expands the aggregate regions into a fresh entity set and swaps it
// in. Starting a new rebuild invalidates any still-running one: the stale
// build finishes its current step, notices the generation moved on and drops
// its work without publishing.
func (e *Engine) Rebuild(ctx context.Context, regions []dataset.Region) error {
	return e.rebuild(ctx, e.generation.Add(1), regions)
}

// rebuild carries a build through under its generation token. Every expensive
// phase re-checks the token so a build overtaken by a newer one stops early.
func (e *Engine) rebuild(ctx context.Context, gen uint64, regions []dataset.Region) error {
	e.buildMu.Lock()
	defer e.buildMu.Unlock()
	if err := e.checkAlive(ctx, gen); err != nil {
		return err
	}

	for _, r := range regions {
		if r.Boundary == nil || e.store.Has(r.ID) {
			continue
		}
		// Add logs and rejects malformed boundaries; sampling for that
		// region then falls back to its centers.
		_ = e.store.Add(r.ID, *r.Boundary)
	}

	rng := rand.New(rand.NewSource(e.cfg.Seed))
	sampler := sample.New(e.store, rng, e.log)
	builder := dataset.NewBuilder(sampler, rng, e.log)

	start := time.Now()
	entities := builder.Build(regions)
	if err := e.checkAlive(ctx, gen); err != nil {
		return err
	}

	entities = e.capEntities(entities, rng)

	index := cluster.NewIndex(entities, e.clusterOptions(), e.log)
	if err := e.checkAlive(ctx, gen); err != nil {
		return err
	}
	hash := spatial.NewIndex(index.Entities(), e.cfg.CellSize)
	if err := e.checkAlive(ctx, gen); err != nil {
		return err
	}

	e.publish(&snapshot{
		generation: gen,
		index:      index,
		hash:       hash,
		builtAt:    time.Now(),
	})
	e.log.Info("dataset rebuilt",
		zap.Uint64("generation", gen),
		zap.Int("regions", len(regions)),
		zap.Int("entities", index.Len()),
		zap.Duration("took", time.Since(start)))
	return nil
}

func (e *Engine) checkAlive(ctx context.Context, gen uint64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if e.generation.Load() != gen {
		return ErrSuperseded
	}
	return nil
}

// capEntities enforces the governor's entity budget by uniform downsampling.
// The shuffle uses the engine seed, so the same budget keeps the same subset.
func (e *Engine) capEntities(entities []dataset.Entity, rng *rand.Rand) []dataset.Entity {
	if e.gov == nil {
		return entities
	}
	limit := e.gov.Settings().MaxEntities
	if limit <= 0 || len(entities) <= limit {
		return entities
	}
	rng.Shuffle(len(entities), func(i, j int) {
		entities[i], entities[j] = entities[j], entities[i]
	})
	e.log.Info("entity budget applied",
		zap.Int("total", len(entities)), zap.Int("kept", limit))
	return entities[:limit]
}

// clusterOptions resolves the clustering options for a build, letting the
// governor's tier radius take precedence over the configured one.
func (e *Engine) clusterOptions() cluster.Options {
	opts := e.cfg.Cluster
	if e.gov != nil {
		if r := e.gov.Settings().ClusterRadiusPx; r > 0 {
			opts.Radius = r
		}
	}
	return opts
}

func (e *Engine) publish(s *snapshot) {
	e.current.Store(s)
}

func (e *Engine) snapshot() (*snapshot, error) {
	s := e.current.Load()
	if s == nil {
		return nil, ErrNotReady
	}
	return s, nil
}

// Ready reports whether a dataset generation has been published.
func (e *Engine) Ready() bool { return e.current.Load() != nil }

// Len returns the entity count of the current generation.
func (e *Engine) Len() int {
	s := e.current.Load()
	if s == nil {
		return 0
	}
	return s.index.Len()
}

// GetVisible resolves the node set for a viewport. When the governor has
// clustering switched off for the current tier, raw leaves come back instead
// of merged nodes.
func (e *Engine) GetVisible(v cluster.Viewport) ([]cluster.VisibleNode, error) {
	s, err := e.snapshot()
	if err != nil {
		return nil, err
	}
	return e.visible(s, v.BBox(s.index.Options().Extent), v.Zoom), nil
}

// GetVisibleBounds is GetVisible for callers that already carry geographic
// bounds instead of a center/zoom viewport.
func (e *Engine) GetVisibleBounds(box geo.BBox, zoom float64) ([]cluster.VisibleNode, error) {
	s, err := e.snapshot()
	if err != nil {
		return nil, err
	}
	return e.visible(s, box, zoom), nil
}

func (e *Engine) visible(s *snapshot, box geo.BBox, zoom float64) []cluster.VisibleNode {
	if e.gov != nil && !e.gov.Settings().ClusteringEnabled {
		return s.index.Leaves(box)
	}
	return s.index.GetVisible(box, zoom)
}

// GetMembers resolves the underlying entities of a visible node.
func (e *Engine) GetMembers(id uint32) ([]dataset.Entity, error) {
	s, err := e.snapshot()
	if err != nil {
		return nil, err
	}
	return s.index.GetMembers(id)
}

// GetExpansionZoom returns the zoom to jump to when a cluster is clicked.
func (e *Engine) GetExpansionZoom(id uint32) (int, error) {
	s, err := e.snapshot()
	if err != nil {
		return 0, err
	}
	return s.index.GetExpansionZoom(id)
}

// FindNearby runs a radius hit test against the spatial hash.
func (e *Engine) FindNearby(lat, lng, radius float64) ([]dataset.Entity, error) {
	s, err := e.snapshot()
	if err != nil {
		return nil, err
	}
	return s.hash.FindNearby(lat, lng, radius), nil
}

// Summarize rolls up the visible set of a viewport.
func (e *Engine) Summarize(v cluster.Viewport) (cluster.Summary, error) {
	s, err := e.snapshot()
	if err != nil {
		return cluster.Summary{}, err
	}
	return s.index.Summarize(e.visible(s, v.BBox(s.index.Options().Extent), v.Zoom)), nil
}

// SummarizeBounds rolls up the visible set inside geographic bounds.
func (e *Engine) SummarizeBounds(box geo.BBox, zoom float64) (cluster.Summary, error) {
	s, err := e.snapshot()
	if err != nil {
		return cluster.Summary{}, err
	}
	return s.index.Summarize(e.visible(s, box, zoom)), nil
}

// Governor exposes the quality governor for the telemetry endpoints.
func (e *Engine) Governor() *perf.Governor { return e.gov }
