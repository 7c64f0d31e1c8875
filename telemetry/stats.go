package telemetry

import (
	"log/slog"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// WindowStats holds aggregated statistics for a time window.
type WindowStats struct {
	WindowStartTick int32   `csv:"-"`
	WindowEndTick   int32   `csv:"window_end"`
	SimTimeSec      float64 `csv:"sim_time"`

	// Population and grid at window end
	Agents   int `csv:"agents"`
	Unplaced int `csv:"unplaced"`
	Cells    int `csv:"cells"`

	// Events during window
	Registrations int `csv:"registrations"`
	Removals      int `csv:"removals"`
	Rejected      int `csv:"rejected"`
	Reports       int `csv:"reports"`
	CellChanges   int `csv:"cell_changes"`
	OutOfRange    int `csv:"out_of_range"`
	Clamped       int `csv:"clamped"`
	Retained      int `csv:"retained"`
	FlushedCells  int `csv:"flushed_cells"`
	Notifications int `csv:"notifications"`

	// Speed distribution (sampled at window end)
	SpeedMean float64 `csv:"speed_mean"`
	SpeedStd  float64 `csv:"speed_std"`
	SpeedP10  float64 `csv:"speed_p10"`
	SpeedP50  float64 `csv:"speed_p50"`
	SpeedP90  float64 `csv:"speed_p90"`

	// Flock shape
	NeighbourMean float64 `csv:"neighbour_mean"` // mean blended member count seen by agents
	Spread        float64 `csv:"spread"`         // mean distance to the flock centroid
	TargetDist    float64 `csv:"target_dist"`    // mean distance to the seek target
}

// Sample is the per-agent state sampled at window end.
type Sample struct {
	Speeds     []float64
	Neighbours []float64
	Spread     float64
	TargetDist float64
	Agents     int
	Unplaced   int
	Cells      int
}

// Percentile calculates the p-th percentile of a sorted slice.
// p should be in [0, 1]. Returns 0 if slice is empty.
func Percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if p <= 0 {
		return sorted[0]
	}
	if p >= 1 {
		return sorted[n-1]
	}

	// Linear interpolation
	idx := p * float64(n-1)
	lo := int(idx)
	hi := lo + 1
	if hi >= n {
		return sorted[n-1]
	}

	frac := idx - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}

// ComputeDistStats calculates mean, sample std, and percentiles of values.
func ComputeDistStats(values []float64) (mean, std, p10, p50, p90 float64) {
	n := len(values)
	if n == 0 {
		return 0, 0, 0, 0, 0
	}

	mean = stat.Mean(values, nil)
	if n > 1 {
		std = stat.StdDev(values, nil)
	}

	sorted := make([]float64, n)
	copy(sorted, values)
	sort.Float64s(sorted)

	p10 = Percentile(sorted, 0.10)
	p50 = Percentile(sorted, 0.50)
	p90 = Percentile(sorted, 0.90)

	return mean, std, p10, p50, p90
}

// LogValue implements slog.LogValuer for structured logging.
func (s WindowStats) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("window_start", int(s.WindowStartTick)),
		slog.Int("window_end", int(s.WindowEndTick)),
		slog.Float64("sim_time", s.SimTimeSec),
		slog.Int("agents", s.Agents),
		slog.Int("unplaced", s.Unplaced),
		slog.Int("cells", s.Cells),
		slog.Int("registrations", s.Registrations),
		slog.Int("removals", s.Removals),
		slog.Int("rejected", s.Rejected),
		slog.Int("reports", s.Reports),
		slog.Int("cell_changes", s.CellChanges),
		slog.Int("out_of_range", s.OutOfRange),
		slog.Int("clamped", s.Clamped),
		slog.Int("retained", s.Retained),
		slog.Int("flushed_cells", s.FlushedCells),
		slog.Int("notifications", s.Notifications),
		slog.Float64("speed_mean", s.SpeedMean),
		slog.Float64("speed_std", s.SpeedStd),
		slog.Float64("speed_p10", s.SpeedP10),
		slog.Float64("speed_p50", s.SpeedP50),
		slog.Float64("speed_p90", s.SpeedP90),
		slog.Float64("neighbour_mean", s.NeighbourMean),
		slog.Float64("spread", s.Spread),
		slog.Float64("target_dist", s.TargetDist),
	)
}

// LogStats logs the window stats using slog.
func (s WindowStats) LogStats() {
	slog.Info("stats", "window", s)
}
