package engine

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"web/geoscatter/cluster"
	"web/geoscatter/spatial"
)

// SnapshotInfo describes one saved dataset generation on disk.
type SnapshotInfo struct {
	ID        string    `json:"id"`
	NumPoints int       `json:"numPoints"`
	Timestamp time.Time `json:"timestamp"`
	FileSize  int64     `json:"fileSize"`
}

// generateSnapshotFilename builds a name carrying the point count, a
// timestamp and a short id.
// Format: scatter-{numPoints}p-{timestamp}-{id}.zst
func (e *Engine) generateSnapshotFilename(numPoints int) string {
	timestamp := time.Now().Format("20060102-150405")
	id := uuid.New().String()[:8] // Use first 8 chars of UUID for brevity
	return filepath.Join(e.cfg.SnapshotDir,
		fmt.Sprintf("scatter-%dp-%s-%s.zst", numPoints, timestamp, id))
}

// parseSnapshotFilename recovers the embedded fields from a snapshot name.
func parseSnapshotFilename(name string) (SnapshotInfo, bool) {
	if !strings.HasSuffix(name, ".zst") {
		return SnapshotInfo{}, false
	}
	parts := strings.Split(strings.TrimSuffix(name, ".zst"), "-")
	if len(parts) != 5 || parts[0] != "scatter" || !strings.HasSuffix(parts[1], "p") {
		return SnapshotInfo{}, false
	}
	numPoints, err := strconv.Atoi(strings.TrimSuffix(parts[1], "p"))
	if err != nil {
		return SnapshotInfo{}, false
	}
	ts, err := time.ParseInLocation("20060102-150405", parts[2]+"-"+parts[3], time.Local)
	if err != nil {
		return SnapshotInfo{}, false
	}
	return SnapshotInfo{ID: parts[4], NumPoints: numPoints, Timestamp: ts}, true
}

// SaveSnapshot persists the current generation to the snapshot directory.
func (e *Engine) SaveSnapshot() (SnapshotInfo, error) {
	s, err := e.snapshot()
	if err != nil {
		return SnapshotInfo{}, err
	}

	if err := os.MkdirAll(e.cfg.SnapshotDir, 0755); err != nil {
		return SnapshotInfo{}, fmt.Errorf("create snapshot dir: %w", err)
	}

	path := e.generateSnapshotFilename(s.index.Len())
	if err := s.index.SaveCompressed(path); err != nil {
		return SnapshotInfo{}, fmt.Errorf("save snapshot: %w", err)
	}

	fileInfo, err := os.Stat(path)
	if err != nil {
		return SnapshotInfo{}, fmt.Errorf("stat snapshot: %w", err)
	}

	info, _ := parseSnapshotFilename(filepath.Base(path))
	info.FileSize = fileInfo.Size()
	e.log.Info("snapshot saved",
		zap.String("id", info.ID),
		zap.Int("entities", info.NumPoints),
		zap.Int64("bytes", info.FileSize))
	return info, nil
}

// ListSnapshots scans the snapshot directory for saved generations.
func (e *Engine) ListSnapshots() ([]SnapshotInfo, error) {
	files, err := os.ReadDir(e.cfg.SnapshotDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read snapshot dir: %w", err)
	}

	var infos []SnapshotInfo
	for _, file := range files {
		info, ok := parseSnapshotFilename(file.Name())
		if !ok {
			continue
		}
		if fi, err := file.Info(); err == nil {
			info.FileSize = fi.Size()
		}
		infos = append(infos, info)
	}
	return infos, nil
}

func (e *Engine) findSnapshotFile(id string) (string, error) {
	files, err := os.ReadDir(e.cfg.SnapshotDir)
	if err != nil {
		return "", fmt.Errorf("read snapshot dir: %w", err)
	}
	for _, file := range files {
		if strings.Contains(file.Name(), id) && strings.HasSuffix(file.Name(), ".zst") {
			return filepath.Join(e.cfg.SnapshotDir, file.Name()), nil
		}
	}
	return "", fmt.Errorf("no snapshot found with id %s", id)
}

// LoadSnapshot restores a saved generation and publishes it, replacing the
// current one. The spatial hash is rebuilt from the loaded entities.
func (e *Engine) LoadSnapshot(id string) error {
	path, err := e.findSnapshotFile(id)
	if err != nil {
		return err
	}

	index, err := cluster.LoadCompressed(path)
	if err != nil {
		return fmt.Errorf("load snapshot %s: %w", id, err)
	}

	gen := e.generation.Add(1)
	e.publish(&snapshot{
		generation: gen,
		index:      index,
		hash:       spatial.NewIndex(index.Entities(), e.cfg.CellSize),
		builtAt:    time.Now(),
	})
	e.log.Info("snapshot loaded",
		zap.String("id", id), zap.Int("entities", index.Len()))
	return nil
}
