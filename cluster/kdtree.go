package cluster

import (
	"math"
	"sort"
)

// kdPoint is one indexed position in normalized mercator space, carrying the
// id of the cluster node it represents.
type kdPoint struct {
	X, Y   float32
	NodeID uint32
}

// kdNode is a flat-array tree node. Leaves hold a bucket range into the
// points slice; internal nodes hold a median point plus child links. Subtree
// bounds are kept on every node so range scans can prune early.
type kdNode struct {
	Start, End int32 // inclusive bucket range for leaves
	Median     int32 // median point index for internal nodes
	Left       int32
	Right      int32
	Axis       uint8
	MinX, MinY float32
	MaxX, MaxY float32
}

type kdTree struct {
	Nodes    []kdNode
	Points   []kdPoint
	NodeSize int
}

type kdBounds struct {
	MinX, MinY, MaxX, MaxY float32
}

func (b *kdBounds) extend(x, y float32) {
	b.MinX = float32(math.Min(float64(b.MinX), float64(x)))
	b.MinY = float32(math.Min(float64(b.MinY), float64(y)))
	b.MaxX = float32(math.Max(float64(b.MaxX), float64(x)))
	b.MaxY = float32(math.Max(float64(b.MaxY), float64(y)))
}

// newKDTree builds a static tree over the points. The input slice is
// reordered in place during construction.
func newKDTree(points []kdPoint, nodeSize int) *kdTree {
	if nodeSize <= 0 {
		nodeSize = 64
	}
	t := &kdTree{
		Nodes:    make([]kdNode, 0, len(points)/nodeSize*2+1),
		Points:   points,
		NodeSize: nodeSize,
	}
	if len(points) > 0 {
		t.buildNodes(0, len(points)-1, 0)
	}
	return t
}

func (t *kdTree) buildNodes(start, end, depth int) int32 {
	if start > end {
		return -1
	}

	nodeIdx := int32(len(t.Nodes))
	t.Nodes = append(t.Nodes, kdNode{Left: -1, Right: -1, Median: -1})

	bounds := kdBounds{
		MinX: float32(math.Inf(1)), MinY: float32(math.Inf(1)),
		MaxX: float32(math.Inf(-1)), MaxY: float32(math.Inf(-1)),
	}
	for i := start; i <= end; i++ {
		bounds.extend(t.Points[i].X, t.Points[i].Y)
	}

	if end-start < t.NodeSize {
		node := &t.Nodes[nodeIdx]
		node.Start = int32(start)
		node.End = int32(end)
		node.MinX, node.MinY, node.MaxX, node.MaxY = bounds.MinX, bounds.MinY, bounds.MaxX, bounds.MaxY
		return nodeIdx
	}

	axis := depth % 2
	median := (start + end) / 2
	sortPointsRange(t.Points[start:end+1], axis)

	left := t.buildNodes(start, median-1, depth+1)
	right := t.buildNodes(median+1, end, depth+1)

	node := &t.Nodes[nodeIdx]
	node.Start = -1
	node.End = -1
	node.Median = int32(median)
	node.Axis = uint8(axis)
	node.Left = left
	node.Right = right
	node.MinX, node.MinY, node.MaxX, node.MaxY = bounds.MinX, bounds.MinY, bounds.MaxX, bounds.MaxY
	return nodeIdx
}

func sortPointsRange(points []kdPoint, axis int) {
	if axis == 0 {
		sort.Slice(points, func(i, j int) bool { return points[i].X < points[j].X })
	} else {
		sort.Slice(points, func(i, j int) bool { return points[i].Y < points[j].Y })
	}
}

// rangeQuery calls fn for every point inside the box, pruning whole subtrees
// by their stored bounds.
func (t *kdTree) rangeQuery(minX, minY, maxX, maxY float32, fn func(kdPoint)) {
	if len(t.Nodes) == 0 {
		return
	}
	t.rangeNode(0, minX, minY, maxX, maxY, fn)
}

func (t *kdTree) rangeNode(nodeIdx int32, minX, minY, maxX, maxY float32, fn func(kdPoint)) {
	if nodeIdx < 0 {
		return
	}
	node := &t.Nodes[nodeIdx]

	if node.MaxX < minX || node.MinX > maxX || node.MaxY < minY || node.MinY > maxY {
		return
	}

	if node.Median < 0 {
		for i := node.Start; i <= node.End; i++ {
			p := t.Points[i]
			if p.X >= minX && p.X <= maxX && p.Y >= minY && p.Y <= maxY {
				fn(p)
			}
		}
		return
	}

	p := t.Points[node.Median]
	if p.X >= minX && p.X <= maxX && p.Y >= minY && p.Y <= maxY {
		fn(p)
	}
	t.rangeNode(node.Left, minX, minY, maxX, maxY, fn)
	t.rangeNode(node.Right, minX, minY, maxX, maxY, fn)
}
