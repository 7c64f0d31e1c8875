package telemetry

// Collector accumulates events within time windows and produces WindowStats.
// It is not safe for concurrent use; the simulation records events from its
// serial commit phase only.
type Collector struct {
	windowDurationSec   float64
	windowDurationTicks int32
	dt                  float64

	// Current window tracking
	windowStartTick int32

	// Event counters for current window
	registrations int
	removals      int
	rejected      int
	reports       int
	cellChanges   int
	outOfRange    int
	clamped       int
	retained      int
	flushedCells  int
	notifications int
}

// NewCollector creates a new stats collector.
// windowDurationSec: how long each stats window lasts in simulation seconds
// dt: seconds per tick (used for tick-to-time conversion)
func NewCollector(windowDurationSec, dt float64) *Collector {
	ticksPerWindow := int32(windowDurationSec / dt)
	if ticksPerWindow < 1 {
		ticksPerWindow = 1
	}

	return &Collector{
		windowDurationSec:   windowDurationSec,
		windowDurationTicks: ticksPerWindow,
		dt:                  dt,
	}
}

// RecordRegistration records a successful agent registration.
func (c *Collector) RecordRegistration() { c.registrations++ }

// RecordRemoval records an agent removal.
func (c *Collector) RecordRemoval() { c.removals++ }

// RecordRejected records a registration refused for lack of capacity.
func (c *Collector) RecordRejected() { c.rejected++ }

// RecordReport records a position report and whether it changed cell.
func (c *Collector) RecordReport(changedCell bool) {
	c.reports++
	if changedCell {
		c.cellChanges++
	}
}

// RecordOutOfRange records an out-of-range report and how it was recovered.
func (c *Collector) RecordOutOfRange(clamped bool) {
	c.outOfRange++
	if clamped {
		c.clamped++
	} else {
		c.retained++
	}
}

// RecordFlush records the result of one grid flush.
func (c *Collector) RecordFlush(cells, notifications int) {
	c.flushedCells += cells
	c.notifications += notifications
}

// ShouldFlush returns true if enough ticks have passed to flush the window.
func (c *Collector) ShouldFlush(currentTick int32) bool {
	return currentTick-c.windowStartTick >= c.windowDurationTicks
}

// Flush produces a WindowStats and resets counters for the next window.
func (c *Collector) Flush(currentTick int32, sample Sample) WindowStats {
	speedMean, speedStd, p10, p50, p90 := ComputeDistStats(sample.Speeds)
	neighbourMean, _, _, _, _ := ComputeDistStats(sample.Neighbours)

	stats := WindowStats{
		WindowStartTick: c.windowStartTick,
		WindowEndTick:   currentTick,
		SimTimeSec:      float64(currentTick) * c.dt,

		Agents:   sample.Agents,
		Unplaced: sample.Unplaced,
		Cells:    sample.Cells,

		Registrations: c.registrations,
		Removals:      c.removals,
		Rejected:      c.rejected,
		Reports:       c.reports,
		CellChanges:   c.cellChanges,
		OutOfRange:    c.outOfRange,
		Clamped:       c.clamped,
		Retained:      c.retained,
		FlushedCells:  c.flushedCells,
		Notifications: c.notifications,

		SpeedMean: speedMean,
		SpeedStd:  speedStd,
		SpeedP10:  p10,
		SpeedP50:  p50,
		SpeedP90:  p90,

		NeighbourMean: neighbourMean,
		Spread:        sample.Spread,
		TargetDist:    sample.TargetDist,
	}

	// Reset for next window
	c.windowStartTick = currentTick
	c.registrations = 0
	c.removals = 0
	c.rejected = 0
	c.reports = 0
	c.cellChanges = 0
	c.outOfRange = 0
	c.clamped = 0
	c.retained = 0
	c.flushedCells = 0
	c.notifications = 0

	return stats
}

// WindowDurationTicks returns the number of ticks per window.
func (c *Collector) WindowDurationTicks() int32 {
	return c.windowDurationTicks
}
