package cluster

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/edsrzf/mmap-go"
	"github.com/klauspost/compress/zstd"
	"go.uber.org/zap"

	"web/geoscatter/dataset"
)

// MMapWriter handles writing to memory-mapped files
type MMapWriter struct {
	data   mmap.MMap
	offset int
}

func NewMMapWriter(data mmap.MMap) *MMapWriter {
	return &MMapWriter{
		data:   data,
		offset: 0,
	}
}

func (w *MMapWriter) WriteUint8(v uint8) {
	w.data[w.offset] = v
	w.offset++
}

func (w *MMapWriter) WriteUint32(v uint32) {
	binary.LittleEndian.PutUint32(w.data[w.offset:], v)
	w.offset += 4
}

func (w *MMapWriter) WriteFloat64(v float64) {
	binary.LittleEndian.PutUint64(w.data[w.offset:], math.Float64bits(v))
	w.offset += 8
}

func (w *MMapWriter) WriteFloat32(v float32) {
	binary.LittleEndian.PutUint32(w.data[w.offset:], math.Float32bits(v))
	w.offset += 4
}

func (w *MMapWriter) WriteBytes(b []byte) {
	copy(w.data[w.offset:], b)
	w.offset += len(b)
}

// MMapReader handles reading from memory-mapped files
type MMapReader struct {
	data   mmap.MMap
	offset int
}

func NewMMapReader(data mmap.MMap) *MMapReader {
	return &MMapReader{
		data:   data,
		offset: 0,
	}
}

func (r *MMapReader) ReadUint8() uint8 {
	v := r.data[r.offset]
	r.offset++
	return v
}

func (r *MMapReader) ReadUint32() uint32 {
	v := binary.LittleEndian.Uint32(r.data[r.offset:])
	r.offset += 4
	return v
}

func (r *MMapReader) ReadFloat64() float64 {
	v := binary.LittleEndian.Uint64(r.data[r.offset:])
	r.offset += 8
	return math.Float64frombits(v)
}

func (r *MMapReader) ReadFloat32() float32 {
	v := binary.LittleEndian.Uint32(r.data[r.offset:])
	r.offset += 4
	return math.Float32frombits(v)
}

func (r *MMapReader) ReadBytes(n int) []byte {
	b := make([]byte, n)
	copy(b, r.data[r.offset:r.offset+n])
	r.offset += n
	return b
}

// calculateSize calculates total size needed for memory mapping
func (idx *Index) calculateSize() int64 {
	size := int64(0)

	// Header sizes (3 uint32s)
	size += 12

	// Options: 5 uint32s + radius float64
	size += 28

	// Entities: fixed fields + region string
	for i := range idx.entities {
		size += 26 + int64(len(idx.entities[i].RegionID))
	}

	// Nodes: fixed fields + child ids
	for i := range idx.nodes {
		size += 40 + 4*int64(len(idx.nodes[i].Children))
	}

	// Levels: count + ids per level
	for _, level := range idx.levels {
		size += 4 + 4*int64(len(level))
	}

	return size
}

func (idx *Index) SaveMMap(filename string) error {
	size := idx.calculateSize()

	file, err := os.OpenFile(filename, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return fmt.Errorf("failed to create file: %v", err)
	}
	defer file.Close()

	if err := file.Truncate(size); err != nil {
		return fmt.Errorf("failed to truncate file: %v", err)
	}

	mmapData, err := mmap.Map(file, mmap.RDWR, 0)
	if err != nil {
		return fmt.Errorf("failed to mmap file: %v", err)
	}
	defer mmapData.Unmap()

	writer := NewMMapWriter(mmapData)

	// Write sizes
	writer.WriteUint32(uint32(len(idx.entities)))
	writer.WriteUint32(uint32(len(idx.nodes)))
	writer.WriteUint32(uint32(len(idx.levels)))

	// Write options
	writer.WriteUint32(uint32(idx.opts.MinZoom))
	writer.WriteUint32(uint32(idx.opts.MaxZoom))
	writer.WriteUint32(uint32(idx.opts.MinPoints))
	writer.WriteUint32(uint32(idx.opts.NodeSize))
	writer.WriteUint32(uint32(idx.opts.Extent))
	writer.WriteFloat64(idx.opts.Radius)

	// Write entities
	for i := range idx.entities {
		e := &idx.entities[i]
		writer.WriteUint32(e.ID)
		writer.WriteFloat64(e.Position.Lat)
		writer.WriteFloat64(e.Position.Lng)
		writer.WriteUint32(uint32(len(e.RegionID)))
		writer.WriteBytes([]byte(e.RegionID))
		writer.WriteUint8(uint8(e.Gender))
		writer.WriteUint8(uint8(e.Age))
	}

	// Write nodes
	for i := range idx.nodes {
		n := &idx.nodes[i]
		writer.WriteFloat32(n.X)
		writer.WriteFloat32(n.Y)
		writer.WriteFloat64(n.Lat)
		writer.WriteFloat64(n.Lng)
		writer.WriteUint32(n.Count)
		writer.WriteUint32(uint32(int32(n.FormedZoom)))
		writer.WriteUint32(uint32(n.EntityIdx))
		writer.WriteUint32(uint32(len(n.Children)))
		for _, c := range n.Children {
			writer.WriteUint32(c)
		}
	}

	// Write levels
	for _, level := range idx.levels {
		writer.WriteUint32(uint32(len(level)))
		for _, id := range level {
			writer.WriteUint32(id)
		}
	}

	return mmapData.Flush()
}

func LoadMMap(filename string) (*Index, error) {
	file, err := os.OpenFile(filename, os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %v", err)
	}
	defer file.Close()

	mmapData, err := mmap.Map(file, mmap.RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to mmap file: %v", err)
	}
	defer mmapData.Unmap()

	reader := NewMMapReader(mmapData)

	// Read sizes
	numEntities := reader.ReadUint32()
	numNodes := reader.ReadUint32()
	numLevels := reader.ReadUint32()

	// Read options
	opts := Options{
		MinZoom:   int(reader.ReadUint32()),
		MaxZoom:   int(reader.ReadUint32()),
		MinPoints: int(reader.ReadUint32()),
		NodeSize:  int(reader.ReadUint32()),
		Extent:    int(reader.ReadUint32()),
		Radius:    reader.ReadFloat64(),
	}

	idx := &Index{
		opts: opts.withDefaults(),
		log:  zap.NewNop(),
	}

	idx.entities = make([]dataset.Entity, numEntities)
	for i := range idx.entities {
		e := &idx.entities[i]
		e.ID = reader.ReadUint32()
		e.Position.Lat = reader.ReadFloat64()
		e.Position.Lng = reader.ReadFloat64()
		regionLen := reader.ReadUint32()
		e.RegionID = string(reader.ReadBytes(int(regionLen)))
		e.Gender = dataset.Gender(reader.ReadUint8())
		e.Age = dataset.AgeBucket(reader.ReadUint8())
	}

	idx.nodes = make([]Node, numNodes)
	for i := range idx.nodes {
		n := &idx.nodes[i]
		n.ID = uint32(i)
		n.X = reader.ReadFloat32()
		n.Y = reader.ReadFloat32()
		n.Lat = reader.ReadFloat64()
		n.Lng = reader.ReadFloat64()
		n.Count = reader.ReadUint32()
		n.FormedZoom = int(int32(reader.ReadUint32()))
		n.EntityIdx = int32(reader.ReadUint32())
		numChildren := reader.ReadUint32()
		if numChildren > 0 {
			n.Children = make([]uint32, numChildren)
			for j := range n.Children {
				n.Children[j] = reader.ReadUint32()
			}
		}
	}

	idx.levels = make([][]uint32, numLevels)
	idx.trees = make([]*kdTree, numLevels)
	for i := range idx.levels {
		count := reader.ReadUint32()
		idx.levels[i] = make([]uint32, count)
		for j := range idx.levels[i] {
			idx.levels[i][j] = reader.ReadUint32()
		}
		idx.trees[i] = idx.buildLevelTree(idx.levels[i])
	}

	return idx, nil
}

func (idx *Index) SaveCompressedMMap(filename string) error {
	// First save to temporary mmap file
	tempFile := filename + ".tmp"
	if err := idx.SaveMMap(tempFile); err != nil {
		return fmt.Errorf("failed to save mmap: %v", err)
	}
	defer os.Remove(tempFile)

	// Now compress the mmap file
	src, err := os.Open(tempFile)
	if err != nil {
		return fmt.Errorf("failed to open temp file: %v", err)
	}
	defer src.Close()

	dst, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("failed to create compressed file: %v", err)
	}
	defer dst.Close()

	enc, err := zstd.NewWriter(dst,
		zstd.WithEncoderLevel(zstd.SpeedBestCompression))
	if err != nil {
		return fmt.Errorf("failed to create zstd writer: %v", err)
	}
	defer enc.Close()

	_, err = io.Copy(enc, src)
	if err != nil {
		return fmt.Errorf("failed to compress data: %v", err)
	}

	return nil
}

func LoadCompressedMMap(filename string) (*Index, error) {
	// Create temporary file for decompressed data
	tempFile := filename + ".tmp"
	dst, err := os.Create(tempFile)
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file: %v", err)
	}
	defer os.Remove(tempFile)
	defer dst.Close()

	src, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open compressed file: %v", err)
	}
	defer src.Close()

	dec, err := zstd.NewReader(src)
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd reader: %v", err)
	}
	defer dec.Close()

	if _, err := io.Copy(dst, dec); err != nil {
		return nil, fmt.Errorf("failed to decompress data: %v", err)
	}

	if err := dst.Sync(); err != nil {
		return nil, fmt.Errorf("failed to sync temp file: %v", err)
	}

	return LoadMMap(tempFile)
}
