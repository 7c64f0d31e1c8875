package telemetry

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gocarina/gocsv"
	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/pthm-cable/flock/config"
)

// csvLog appends rows of one record type to a CSV file. The header is
// written with the first row.
type csvLog[T any] struct {
	f      *os.File
	header bool
}

func createCSV[T any](path string) (*csvLog[T], error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	return &csvLog[T]{f: f}, nil
}

func (l *csvLog[T]) Append(rows ...T) error {
	if l.header {
		return gocsv.MarshalWithoutHeaders(rows, l.f)
	}
	if err := gocsv.Marshal(rows, l.f); err != nil {
		return err
	}
	l.header = true
	return nil
}

func (l *csvLog[T]) Close() error {
	if l == nil {
		return nil
	}
	return l.f.Close()
}

// OutputManager writes a run directory:
//
//	run.txt        run id
//	config.yaml    effective configuration
//	telemetry.csv  one row per stats window
//	perf.csv       one row per stats window
//	bookmarks.csv  one row per bookmark
//
// A nil *OutputManager is valid and writes nothing.
type OutputManager struct {
	dir   string
	runID string

	telemetry *csvLog[WindowStats]
	perf      *csvLog[PerfRow]
	bookmarks *csvLog[Bookmark]
}

// NewOutputManager creates dir and its files. It returns nil, nil when dir
// is empty.
func NewOutputManager(dir string) (*OutputManager, error) {
	if dir == "" {
		return nil, nil
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}

	om := &OutputManager{dir: dir, runID: uuid.NewString()}
	if err := os.WriteFile(om.path("run.txt"), []byte(om.runID+"\n"), 0644); err != nil {
		return nil, fmt.Errorf("writing run.txt: %w", err)
	}

	var err error
	if om.telemetry, err = createCSV[WindowStats](om.path("telemetry.csv")); err != nil {
		return nil, fmt.Errorf("creating telemetry.csv: %w", err)
	}
	if om.perf, err = createCSV[PerfRow](om.path("perf.csv")); err != nil {
		om.Close()
		return nil, fmt.Errorf("creating perf.csv: %w", err)
	}
	if om.bookmarks, err = createCSV[Bookmark](om.path("bookmarks.csv")); err != nil {
		om.Close()
		return nil, fmt.Errorf("creating bookmarks.csv: %w", err)
	}
	return om, nil
}

func (om *OutputManager) path(name string) string {
	return filepath.Join(om.dir, name)
}

// RunID returns the identifier written to run.txt.
func (om *OutputManager) RunID() string {
	if om == nil {
		return ""
	}
	return om.runID
}

// Dir returns the output directory path.
func (om *OutputManager) Dir() string {
	if om == nil {
		return ""
	}
	return om.dir
}

// WriteConfig saves cfg as config.yaml.
func (om *OutputManager) WriteConfig(cfg *config.Config) error {
	if om == nil {
		return nil
	}
	return cfg.WriteYAML(om.path("config.yaml"))
}

// WriteTelemetry appends a window to telemetry.csv.
func (om *OutputManager) WriteTelemetry(stats WindowStats) error {
	if om == nil {
		return nil
	}
	if err := om.telemetry.Append(stats); err != nil {
		return fmt.Errorf("writing telemetry: %w", err)
	}
	return nil
}

// WritePerf appends perf stats for the window ending at windowEnd.
func (om *OutputManager) WritePerf(stats PerfStats, windowEnd int32) error {
	if om == nil {
		return nil
	}
	if err := om.perf.Append(stats.Row(windowEnd)); err != nil {
		return fmt.Errorf("writing perf: %w", err)
	}
	return nil
}

// WriteBookmark appends b to bookmarks.csv.
func (om *OutputManager) WriteBookmark(b Bookmark) error {
	if om == nil {
		return nil
	}
	if err := om.bookmarks.Append(b); err != nil {
		return fmt.Errorf("writing bookmark: %w", err)
	}
	return nil
}

// Close closes every open file.
func (om *OutputManager) Close() error {
	if om == nil {
		return nil
	}
	return multierr.Combine(
		om.telemetry.Close(),
		om.perf.Close(),
		om.bookmarks.Close(),
	)
}
