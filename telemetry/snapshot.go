package telemetry

import (
	"cmp"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
)

// SnapshotVersion is incremented when the format changes.
const SnapshotVersion = 1

// ErrSnapshotVersion is returned when loading a snapshot written by a
// different format version.
var ErrSnapshotVersion = errors.New("unsupported snapshot version")

// Snapshot is a JSON dump of every agent at one tick, plus the grid
// geometry needed to interpret the cell coordinates.
type Snapshot struct {
	Version int    `json:"version"`
	RunID   string `json:"run_id,omitempty"`
	Seed    int64  `json:"seed"`

	Origin    [3]float64 `json:"origin"`
	CellSize  float64    `json:"cell_size"`
	Dimension int        `json:"dimension"`

	Tick int32 `json:"tick"`

	// Agents are sorted by ID.
	Agents []AgentState `json:"agents"`

	Bookmark *Bookmark `json:"bookmark,omitempty"`
}

// AgentState is one agent in a snapshot. Unplaced agents carry the
// (-1,-1,-1) cell.
type AgentState struct {
	ID         int        `json:"id"`
	Position   [3]float64 `json:"position"`
	Velocity   [3]float64 `json:"velocity"`
	Cell       [3]int     `json:"cell"`
	Placed     bool       `json:"placed"`
	Neighbours int        `json:"neighbours"` // blended flockmate count at the last push
}

// Agent looks up an agent by id.
func (s *Snapshot) Agent(id int) (AgentState, bool) {
	i, ok := slices.BinarySearchFunc(s.Agents, id, func(a AgentState, id int) int {
		return cmp.Compare(a.ID, id)
	})
	if !ok {
		return AgentState{}, false
	}
	return s.Agents[i], true
}

// FileName returns snapshot_<tick>[_<bookmark>].json.
func (s *Snapshot) FileName() string {
	name := "snapshot_" + strconv.Itoa(int(s.Tick))
	if s.Bookmark != nil {
		name += "_" + string(s.Bookmark.Type)
	}
	return name + ".json"
}

// SaveSnapshot writes snapshot into dir and returns the file path. The file
// is written to a temporary name first and renamed into place, so readers
// never observe a partial snapshot.
func SaveSnapshot(snapshot *Snapshot, dir string) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create snapshot dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".snapshot-*.tmp")
	if err != nil {
		return "", fmt.Errorf("create snapshot: %w", err)
	}
	defer os.Remove(tmp.Name()) // no-op after a successful rename

	enc := json.NewEncoder(tmp)
	enc.SetIndent("", "  ")
	if err := enc.Encode(snapshot); err != nil {
		tmp.Close()
		return "", fmt.Errorf("encode snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("write snapshot: %w", err)
	}

	path := filepath.Join(dir, snapshot.FileName())
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("write snapshot: %w", err)
	}
	return path, nil
}

// LoadSnapshot reads a snapshot written by SaveSnapshot.
func LoadSnapshot(path string) (*Snapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	defer f.Close()

	var snapshot Snapshot
	if err := json.NewDecoder(f).Decode(&snapshot); err != nil {
		return nil, fmt.Errorf("decode snapshot %s: %w", filepath.Base(path), err)
	}
	if snapshot.Version != SnapshotVersion {
		return nil, fmt.Errorf("%s: %w %d", filepath.Base(path), ErrSnapshotVersion, snapshot.Version)
	}
	return &snapshot, nil
}
