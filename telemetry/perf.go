package telemetry

import (
	"log/slog"
	"slices"
	"time"

	"gonum.org/v1/gonum/stat"
)

// Phase identifies a timed section of a tick.
type Phase int

// Tick phases, in execution order.
const (
	PhaseTarget Phase = iota
	PhaseMotion
	PhaseCommit
	PhaseFlush
	PhaseTelemetry

	numPhases
)

var phaseNames = [numPhases]string{"target", "motion", "commit", "flush", "telemetry"}

func (p Phase) String() string {
	if p < 0 || p >= numPhases {
		return "unknown"
	}
	return phaseNames[p]
}

// noPhase marks that no phase is being timed.
const noPhase Phase = -1

// tickSample holds timing data for a single tick.
type tickSample struct {
	total  time.Duration
	phases [numPhases]time.Duration
}

// PerfCollector keeps tick timings for the last windowSize ticks.
// Phase accounting is allocation free.
type PerfCollector struct {
	ring []tickSample
	next int
	n    int

	cur        tickSample
	tickStart  time.Time
	phaseStart time.Time
	phase      Phase
}

// NewPerfCollector creates a collector over windowSize ticks (60 if < 1).
func NewPerfCollector(windowSize int) *PerfCollector {
	if windowSize < 1 {
		windowSize = 60
	}
	return &PerfCollector{
		ring:  make([]tickSample, windowSize),
		phase: noPhase,
	}
}

// StartTick begins timing a new tick.
func (p *PerfCollector) StartTick() {
	p.tickStart = time.Now()
	p.cur = tickSample{}
	p.phase = noPhase
}

// StartPhase closes the running phase, if any, and starts timing ph.
func (p *PerfCollector) StartPhase(ph Phase) {
	now := time.Now()
	p.closePhase(now)
	p.phaseStart = now
	p.phase = ph
}

func (p *PerfCollector) closePhase(now time.Time) {
	if p.phase >= 0 && p.phase < numPhases {
		p.cur.phases[p.phase] += now.Sub(p.phaseStart)
	}
}

// EndTick closes the running phase and stores the tick.
func (p *PerfCollector) EndTick() {
	now := time.Now()
	p.closePhase(now)
	p.phase = noPhase
	p.cur.total = now.Sub(p.tickStart)

	p.ring[p.next] = p.cur
	p.next = (p.next + 1) % len(p.ring)
	if p.n < len(p.ring) {
		p.n++
	}
}

// PerfStats summarises tick timings over the collector window.
type PerfStats struct {
	Samples int

	Mean time.Duration
	Min  time.Duration
	Max  time.Duration
	P95  time.Duration

	// PhaseMean and PhaseShare are indexed by Phase. Share is a
	// percentage of the mean tick.
	PhaseMean  [numPhases]time.Duration
	PhaseShare [numPhases]float64

	TicksPerSecond float64
}

// Share returns the percentage of tick time spent in ph.
func (s PerfStats) Share(ph Phase) float64 {
	if ph < 0 || ph >= numPhases {
		return 0
	}
	return s.PhaseShare[ph]
}

// Stats computes the window summary. An empty window yields zero stats.
func (p *PerfCollector) Stats() PerfStats {
	s := PerfStats{Samples: p.n}
	if p.n == 0 {
		return s
	}

	totals := make([]float64, p.n)
	var sum time.Duration
	var phaseSum [numPhases]time.Duration
	for i, smp := range p.ring[:p.n] {
		totals[i] = float64(smp.total)
		sum += smp.total
		for ph := range phaseSum {
			phaseSum[ph] += smp.phases[ph]
		}
	}

	slices.Sort(totals)
	s.Min = time.Duration(totals[0])
	s.Max = time.Duration(totals[p.n-1])
	s.P95 = time.Duration(stat.Quantile(0.95, stat.Empirical, totals, nil))
	s.Mean = sum / time.Duration(p.n)

	for ph := range phaseSum {
		s.PhaseMean[ph] = phaseSum[ph] / time.Duration(p.n)
		if s.Mean > 0 {
			s.PhaseShare[ph] = float64(s.PhaseMean[ph]) / float64(s.Mean) * 100
		}
	}
	if s.Mean > 0 {
		s.TicksPerSecond = float64(time.Second) / float64(s.Mean)
	}
	return s
}

// LogStats logs the summary, skipping phases under 0.1% of the tick.
func (s PerfStats) LogStats() {
	attrs := []any{
		"avg_tick_us", s.Mean.Microseconds(),
		"p95_tick_us", s.P95.Microseconds(),
		"max_tick_us", s.Max.Microseconds(),
		"ticks_per_sec", int(s.TicksPerSecond),
	}
	for ph := Phase(0); ph < numPhases; ph++ {
		if pct := s.PhaseShare[ph]; pct > 0.1 {
			attrs = append(attrs, ph.String()+"_pct", int(pct*10)/10.0)
		}
	}
	slog.Info("perf", attrs...)
}

// LogValue implements slog.LogValuer.
func (s PerfStats) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.Int("samples", s.Samples),
		slog.Int64("avg_tick_us", s.Mean.Microseconds()),
		slog.Int64("min_tick_us", s.Min.Microseconds()),
		slog.Int64("p95_tick_us", s.P95.Microseconds()),
		slog.Int64("max_tick_us", s.Max.Microseconds()),
		slog.Float64("ticks_per_sec", s.TicksPerSecond),
	}
	for ph := Phase(0); ph < numPhases; ph++ {
		attrs = append(attrs, slog.Float64(ph.String()+"_pct", s.PhaseShare[ph]))
	}
	return slog.GroupValue(attrs...)
}

// PerfRow is the flat form of PerfStats written to perf.csv and served
// by the HTTP host.
type PerfRow struct {
	WindowEnd    int32   `csv:"window_end" json:"window_end"`
	Samples      int     `csv:"samples" json:"samples"`
	AvgTickUS    int64   `csv:"avg_tick_us" json:"avg_tick_us"`
	MinTickUS    int64   `csv:"min_tick_us" json:"min_tick_us"`
	P95TickUS    int64   `csv:"p95_tick_us" json:"p95_tick_us"`
	MaxTickUS    int64   `csv:"max_tick_us" json:"max_tick_us"`
	TicksPerSec  float64 `csv:"ticks_per_sec" json:"ticks_per_sec"`
	TargetPct    float64 `csv:"target_pct" json:"target_pct"`
	MotionPct    float64 `csv:"motion_pct" json:"motion_pct"`
	CommitPct    float64 `csv:"commit_pct" json:"commit_pct"`
	FlushPct     float64 `csv:"flush_pct" json:"flush_pct"`
	TelemetryPct float64 `csv:"telemetry_pct" json:"telemetry_pct"`
}

// Row flattens the stats for the window ending at windowEnd.
func (s PerfStats) Row(windowEnd int32) PerfRow {
	return PerfRow{
		WindowEnd:    windowEnd,
		Samples:      s.Samples,
		AvgTickUS:    s.Mean.Microseconds(),
		MinTickUS:    s.Min.Microseconds(),
		P95TickUS:    s.P95.Microseconds(),
		MaxTickUS:    s.Max.Microseconds(),
		TicksPerSec:  s.TicksPerSecond,
		TargetPct:    s.PhaseShare[PhaseTarget],
		MotionPct:    s.PhaseShare[PhaseMotion],
		CommitPct:    s.PhaseShare[PhaseCommit],
		FlushPct:     s.PhaseShare[PhaseFlush],
		TelemetryPct: s.PhaseShare[PhaseTelemetry],
	}
}
