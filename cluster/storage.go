package cluster

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/zstd"
	"go.uber.org/zap"

	"web/geoscatter/dataset"
	"web/geoscatter/geo"
)

// Snapshot format: options, entities, nodes, level id lists. The per-level
// range trees are cheap to rebuild and are not persisted.

// SaveCompressed writes the index to a zstd-compressed snapshot file.
func (idx *Index) SaveCompressed(filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("create snapshot file: %w", err)
	}
	defer file.Close()

	bufWriter := bufio.NewWriterSize(file, 1024*1024)
	enc, err := zstd.NewWriter(bufWriter,
		zstd.WithEncoderLevel(zstd.SpeedBestCompression))
	if err != nil {
		return fmt.Errorf("create zstd writer: %w", err)
	}

	if err := idx.writeTo(enc); err != nil {
		enc.Close()
		return err
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("close encoder: %w", err)
	}
	if err := bufWriter.Flush(); err != nil {
		return fmt.Errorf("flush buffer: %w", err)
	}
	return nil
}

// LoadCompressed reads a snapshot back into a fully queryable index.
func LoadCompressed(filename string) (*Index, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("open snapshot file: %w", err)
	}
	defer file.Close()

	bufReader := bufio.NewReaderSize(file, 1024*1024)
	dec, err := zstd.NewReader(bufReader)
	if err != nil {
		return nil, fmt.Errorf("create zstd reader: %w", err)
	}
	defer dec.Close()

	return readIndex(dec)
}

func (idx *Index) writeTo(w io.Writer) error {
	write := func(v interface{}) error {
		return binary.Write(w, binary.LittleEndian, v)
	}

	// Sizes first so the reader can allocate up front.
	if err := write(uint32(len(idx.entities))); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	write(uint32(len(idx.nodes)))
	write(uint32(len(idx.levels)))

	write(int32(idx.opts.MinZoom))
	write(int32(idx.opts.MaxZoom))
	write(int32(idx.opts.MinPoints))
	write(int32(idx.opts.NodeSize))
	write(int32(idx.opts.Extent))
	write(idx.opts.Radius)

	for i := range idx.entities {
		e := &idx.entities[i]
		write(e.ID)
		write(e.Position.Lat)
		write(e.Position.Lng)
		region := []byte(e.RegionID)
		write(uint32(len(region)))
		if _, err := w.Write(region); err != nil {
			return fmt.Errorf("write entity region: %w", err)
		}
		write(uint8(e.Gender))
		write(uint8(e.Age))
	}

	for i := range idx.nodes {
		n := &idx.nodes[i]
		write(n.X)
		write(n.Y)
		write(n.Lat)
		write(n.Lng)
		write(n.Count)
		write(int32(n.FormedZoom))
		write(n.EntityIdx)
		write(uint32(len(n.Children)))
		for _, c := range n.Children {
			write(c)
		}
	}

	for _, level := range idx.levels {
		write(uint32(len(level)))
		for _, id := range level {
			if err := write(id); err != nil {
				return fmt.Errorf("write level: %w", err)
			}
		}
	}
	return nil
}

func readIndex(r io.Reader) (*Index, error) {
	read := func(v interface{}) error {
		return binary.Read(r, binary.LittleEndian, v)
	}

	var numEntities, numNodes, numLevels uint32
	if err := read(&numEntities); err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	read(&numNodes)
	read(&numLevels)

	var minZoom, maxZoom, minPoints, nodeSize, extent int32
	var radius float64
	read(&minZoom)
	read(&maxZoom)
	read(&minPoints)
	read(&nodeSize)
	read(&extent)
	read(&radius)

	idx := &Index{
		log: zap.NewNop(),
		opts: Options{
			MinZoom:   int(minZoom),
			MaxZoom:   int(maxZoom),
			MinPoints: int(minPoints),
			NodeSize:  int(nodeSize),
			Extent:    int(extent),
			Radius:    radius,
		}.withDefaults(),
	}

	idx.entities = make([]dataset.Entity, numEntities)
	for i := range idx.entities {
		e := &idx.entities[i]
		read(&e.ID)
		var lat, lng float64
		read(&lat)
		read(&lng)
		e.Position = geo.Point{Lat: lat, Lng: lng}

		var regionLen uint32
		read(&regionLen)
		region := make([]byte, regionLen)
		if _, err := io.ReadFull(r, region); err != nil {
			return nil, fmt.Errorf("read entity region: %w", err)
		}
		e.RegionID = string(region)

		var gender, age uint8
		read(&gender)
		if err := read(&age); err != nil {
			return nil, fmt.Errorf("read entity attributes: %w", err)
		}
		e.Gender = dataset.Gender(gender)
		e.Age = dataset.AgeBucket(age)
	}

	idx.nodes = make([]Node, numNodes)
	for i := range idx.nodes {
		n := &idx.nodes[i]
		n.ID = uint32(i)
		read(&n.X)
		read(&n.Y)
		read(&n.Lat)
		read(&n.Lng)
		read(&n.Count)
		var formed int32
		read(&formed)
		n.FormedZoom = int(formed)
		read(&n.EntityIdx)
		var numChildren uint32
		if err := read(&numChildren); err != nil {
			return nil, fmt.Errorf("read node: %w", err)
		}
		if numChildren > 0 {
			n.Children = make([]uint32, numChildren)
			for j := range n.Children {
				read(&n.Children[j])
			}
		}
	}

	idx.levels = make([][]uint32, numLevels)
	idx.trees = make([]*kdTree, numLevels)
	for i := range idx.levels {
		var count uint32
		if err := read(&count); err != nil {
			return nil, fmt.Errorf("read level: %w", err)
		}
		idx.levels[i] = make([]uint32, count)
		for j := range idx.levels[i] {
			read(&idx.levels[i][j])
		}
		idx.trees[i] = idx.buildLevelTree(idx.levels[i])
	}

	return idx, nil
}
