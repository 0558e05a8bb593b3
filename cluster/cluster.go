// Package cluster builds a multi-resolution spatial index over the entity
// set. Starting from individual entities at the finest zoom, each coarser
// zoom merges nodes that fall within a pixel radius in projected tile space,
// so a viewport query at any zoom returns a small partition of the full set
// as leaves and density clusters.
package cluster

import (
	"fmt"
	"math"

	"go.uber.org/zap"

	"web/geoscatter/dataset"
	"web/geoscatter/geo"
)

// Options control index resolution and merge behavior.
type Options struct {
	MinZoom   int
	MaxZoom   int
	Radius    float64 // merge radius in pixels at Extent tile size
	Extent    int
	MinPoints int // minimum combined count before nodes merge
	NodeSize  int // kd-tree leaf bucket size
}

// withDefaults validates and fills zero fields.
func (o Options) withDefaults() Options {
	if o.MaxZoom <= 0 {
		o.MaxZoom = 16
	}
	if o.MaxZoom > 16 {
		o.MaxZoom = 16
	}
	if o.MinZoom < 0 {
		o.MinZoom = 0
	}
	if o.MinZoom > o.MaxZoom {
		o.MinZoom = o.MaxZoom
	}
	if o.Radius <= 0 {
		o.Radius = 40
	}
	if o.Extent <= 0 {
		o.Extent = 512
	}
	if o.MinPoints <= 0 {
		o.MinPoints = 2
	}
	if o.NodeSize <= 0 {
		o.NodeSize = 64
	}
	return o
}

// Node is one unit of the index: a leaf wrapping a single entity, or a
// cluster with a count-weighted centroid and links to its children.
type Node struct {
	ID         uint32
	X, Y       float32 // normalized mercator position
	Lat, Lng   float64
	Count      uint32
	FormedZoom int      // zoom at which this node first appears merged
	Children   []uint32 // node ids one level finer; nil for leaves
	EntityIdx  int32    // index into the entity slice; -1 for clusters
}

// IsCluster reports whether the node aggregates more than one entity.
func (n *Node) IsCluster() bool { return n.EntityIdx < 0 }

// VisibleNode is the per-frame query result consumed by the render side.
type VisibleNode struct {
	ID        uint32  `json:"id"`
	IsCluster bool    `json:"isCluster"`
	Lat       float64 `json:"lat"`
	Lng       float64 `json:"lng"`
	Count     uint32  `json:"count"`
}

// Index is the built multi-resolution structure. It is immutable once
// NewIndex returns; rebuilds produce a fresh Index that replaces the old one
// atomically at the owner.
type Index struct {
	opts     Options
	log      *zap.Logger
	entities []dataset.Entity
	nodes    []Node
	levels   [][]uint32 // levels[z-MinZoom] = node ids visible at zoom z; last entry is the leaf level
	trees    []*kdTree  // one range tree per level
}

// NewIndex builds the full hierarchy bottom-up. Entities are not copied; the
// caller must treat the slice as frozen after handing it over.
func NewIndex(entities []dataset.Entity, opts Options, log *zap.Logger) *Index {
	opts = opts.withDefaults()
	if log == nil {
		log = zap.NewNop()
	}

	idx := &Index{
		opts:     opts,
		log:      log,
		entities: entities,
		nodes:    make([]Node, 0, len(entities)*2),
	}

	leaves := make([]uint32, len(entities))
	for i := range entities {
		x, y := project(entities[i].Position.Lng, entities[i].Position.Lat)
		id := uint32(len(idx.nodes))
		idx.nodes = append(idx.nodes, Node{
			ID:         id,
			X:          x,
			Y:          y,
			Lat:        entities[i].Position.Lat,
			Lng:        entities[i].Position.Lng,
			Count:      1,
			FormedZoom: opts.MaxZoom + 1,
			EntityIdx:  int32(i),
		})
		leaves[i] = id
	}

	numLevels := opts.MaxZoom - opts.MinZoom + 2 // MinZoom..MaxZoom plus the leaf level
	idx.levels = make([][]uint32, numLevels)
	idx.trees = make([]*kdTree, numLevels)
	idx.levels[numLevels-1] = leaves

	current := leaves
	for z := opts.MaxZoom; z >= opts.MinZoom; z-- {
		current = idx.mergeZoom(current, z)
		idx.levels[z-opts.MinZoom] = current
	}

	for i, ids := range idx.levels {
		idx.trees[i] = idx.buildLevelTree(ids)
	}

	log.Debug("cluster index built",
		zap.Int("entities", len(entities)),
		zap.Int("nodes", len(idx.nodes)),
		zap.Int("levels", numLevels))
	return idx
}

// mergeZoom produces the node set for zoom z from the finer set one level
// below. Neighbor search runs on a uniform grid keyed by the merge radius.
func (idx *Index) mergeZoom(finer []uint32, z int) []uint32 {
	// Merge radius in normalized mercator units at this zoom.
	r := float32(idx.opts.Radius / (float64(idx.opts.Extent) * math.Pow(2, float64(z))))

	type cell struct{ cx, cy int32 }
	grid := make(map[cell][]uint32, len(finer))
	keyOf := func(x, y float32) cell {
		return cell{int32(math.Floor(float64(x / r))), int32(math.Floor(float64(y / r)))}
	}
	for _, id := range finer {
		n := &idx.nodes[id]
		k := keyOf(n.X, n.Y)
		grid[k] = append(grid[k], id)
	}

	processed := make(map[uint32]bool, len(finer))
	next := make([]uint32, 0, len(finer))

	for _, id := range finer {
		if processed[id] {
			continue
		}
		n := &idx.nodes[id]
		k := keyOf(n.X, n.Y)

		var members []uint32
		var total uint32
		for dx := int32(-1); dx <= 1; dx++ {
			for dy := int32(-1); dy <= 1; dy++ {
				for _, other := range grid[cell{k.cx + dx, k.cy + dy}] {
					if processed[other] {
						continue
					}
					o := &idx.nodes[other]
					ddx := o.X - n.X
					ddy := o.Y - n.Y
					if ddx*ddx+ddy*ddy <= r*r {
						members = append(members, other)
						total += o.Count
					}
				}
			}
		}

		if len(members) >= 2 && total >= uint32(idx.opts.MinPoints) {
			next = append(next, idx.createCluster(members, total, z))
			for _, m := range members {
				processed[m] = true
			}
		} else {
			next = append(next, id)
			processed[id] = true
		}
	}
	return next
}

// createCluster makes a new node whose position is the count-weighted mean of
// its members.
func (idx *Index) createCluster(members []uint32, total uint32, z int) uint32 {
	var sumX, sumY float64
	for _, m := range members {
		n := &idx.nodes[m]
		w := float64(n.Count)
		sumX += float64(n.X) * w
		sumY += float64(n.Y) * w
	}
	inv := 1.0 / float64(total)
	x := float32(sumX * inv)
	y := float32(sumY * inv)
	lng, lat := unproject(x, y)

	id := uint32(len(idx.nodes))
	children := make([]uint32, len(members))
	copy(children, members)
	idx.nodes = append(idx.nodes, Node{
		ID:         id,
		X:          x,
		Y:          y,
		Lat:        lat,
		Lng:        lng,
		Count:      total,
		FormedZoom: z,
		Children:   children,
		EntityIdx:  -1,
	})
	return id
}

func (idx *Index) buildLevelTree(ids []uint32) *kdTree {
	points := make([]kdPoint, len(ids))
	for i, id := range ids {
		n := &idx.nodes[id]
		points[i] = kdPoint{X: n.X, Y: n.Y, NodeID: id}
	}
	return newKDTree(points, idx.opts.NodeSize)
}

// levelFor clamps a possibly fractional zoom to an index level.
func (idx *Index) levelFor(zoom float64) int {
	z := int(math.Floor(zoom))
	if z < idx.opts.MinZoom {
		z = idx.opts.MinZoom
	}
	if z > idx.opts.MaxZoom+1 {
		z = idx.opts.MaxZoom + 1
	}
	return z - idx.opts.MinZoom
}

// GetVisible returns the nodes whose positions fall inside the bounding box
// at the given zoom. The returned set is a partition of every entity inside
// the box: each entity is reachable from exactly one node.
func (idx *Index) GetVisible(box geo.BBox, zoom float64) []VisibleNode {
	level := idx.levelFor(zoom)
	return idx.queryLevel(level, box)
}

// Leaves returns every individual entity position inside the box, bypassing
// clustering entirely. Used at the top quality tier.
func (idx *Index) Leaves(box geo.BBox) []VisibleNode {
	return idx.queryLevel(len(idx.levels)-1, box)
}

func (idx *Index) queryLevel(level int, box geo.BBox) []VisibleNode {
	if level < 0 || level >= len(idx.trees) {
		return nil
	}
	minX, minY := project(box.MinLng, box.MaxLat) // north-west corner
	maxX, maxY := project(box.MaxLng, box.MinLat) // south-east corner

	var out []VisibleNode
	idx.trees[level].rangeQuery(minX, minY, maxX, maxY, func(p kdPoint) {
		n := &idx.nodes[p.NodeID]
		out = append(out, VisibleNode{
			ID:        n.ID,
			IsCluster: n.IsCluster(),
			Lat:       n.Lat,
			Lng:       n.Lng,
			Count:     n.Count,
		})
	})
	return out
}

// GetMembers resolves a node id to its constituent entities.
func (idx *Index) GetMembers(id uint32) ([]dataset.Entity, error) {
	if int(id) >= len(idx.nodes) {
		return nil, fmt.Errorf("unknown cluster id %d", id)
	}
	var out []dataset.Entity
	idx.collectLeaves(id, &out)
	return out, nil
}

func (idx *Index) collectLeaves(id uint32, out *[]dataset.Entity) {
	n := &idx.nodes[id]
	if n.EntityIdx >= 0 {
		*out = append(*out, idx.entities[n.EntityIdx])
		return
	}
	for _, c := range n.Children {
		idx.collectLeaves(c, out)
	}
}

// GetExpansionZoom returns the zoom at which the node splits into finer
// detail, clamped to the supported maximum. Leaves are already fully
// expanded and report the maximum zoom.
func (idx *Index) GetExpansionZoom(id uint32) (int, error) {
	if int(id) >= len(idx.nodes) {
		return 0, fmt.Errorf("unknown cluster id %d", id)
	}
	n := &idx.nodes[id]
	if !n.IsCluster() {
		return idx.opts.MaxZoom, nil
	}
	ez := n.FormedZoom + 1
	if ez > idx.opts.MaxZoom {
		ez = idx.opts.MaxZoom
	}
	return ez, nil
}

// Len returns the number of indexed entities.
func (idx *Index) Len() int { return len(idx.entities) }

// Entities exposes the frozen entity slice backing the index.
func (idx *Index) Entities() []dataset.Entity { return idx.entities }

// Options returns the options the index was built with.
func (idx *Index) Options() Options { return idx.opts }

// project converts lng/lat to normalized Web Mercator in [0,1].
func project(lng, lat float64) (float32, float32) {
	sin := math.Sin(lat * math.Pi / 180)
	// Clamp away from the poles where the projection diverges.
	if sin > 0.9999 {
		sin = 0.9999
	}
	if sin < -0.9999 {
		sin = -0.9999
	}
	x := lng/360 + 0.5
	y := 0.5 - 0.25*math.Log((1+sin)/(1-sin))/math.Pi
	return float32(x), float32(y)
}

// unproject converts normalized mercator back to lng/lat.
func unproject(x, y float32) (lng, lat float64) {
	lng = (float64(x) - 0.5) * 360
	lat = math.Atan(math.Sinh(math.Pi*(1-2*float64(y)))) * 180 / math.Pi
	return lng, lat
}
