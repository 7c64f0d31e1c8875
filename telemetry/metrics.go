package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are the live simulation counters exported for scraping.
// Label values are bounded; nothing is labelled per agent.
type Metrics struct {
	TickDuration  prometheus.Histogram
	FlushDuration prometheus.Histogram
	Agents        prometheus.Gauge
	Cells         prometheus.Gauge
	DirtyCells    prometheus.Gauge
	Reports       *prometheus.CounterVec // outcome: "same_cell", "moved", "clamped", "retained"
	Notifications prometheus.Counter
	Registrations *prometheus.CounterVec // result: "ok", "capacity"
	Removals      prometheus.Counter
}

// NewMetrics registers the simulation metrics with reg.
// A nil reg creates an unregistered set, which is useful in tests.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		TickDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "flock_tick_duration_seconds",
			Help:    "Time spent in one simulation tick",
			Buckets: []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05},
		}),
		FlushDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "flock_flush_duration_seconds",
			Help:    "Time spent flushing dirty grid cells",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025},
		}),
		Agents: f.NewGauge(prometheus.GaugeOpts{
			Name: "flock_agents",
			Help: "Current number of registered agents",
		}),
		Cells: f.NewGauge(prometheus.GaugeOpts{
			Name: "flock_cells",
			Help: "Grid cells created so far",
		}),
		DirtyCells: f.NewGauge(prometheus.GaugeOpts{
			Name: "flock_dirty_cells",
			Help: "Cells queued for the next flush",
		}),
		Reports: f.NewCounterVec(prometheus.CounterOpts{
			Name: "flock_position_reports_total",
			Help: "Position reports by outcome",
		}, []string{"outcome"}),
		Notifications: f.NewCounter(prometheus.CounterOpts{
			Name: "flock_notifications_total",
			Help: "Statistics notifications delivered to agents",
		}),
		Registrations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "flock_registrations_total",
			Help: "Agent registrations by result",
		}, []string{"result"}),
		Removals: f.NewCounter(prometheus.CounterOpts{
			Name: "flock_removals_total",
			Help: "Agents removed",
		}),
	}
}

// ObserveTick records the duration of a tick.
func (m *Metrics) ObserveTick(d time.Duration) {
	if m == nil {
		return
	}
	m.TickDuration.Observe(d.Seconds())
}

// ObserveFlush records one grid flush.
func (m *Metrics) ObserveFlush(d time.Duration, notifications int) {
	if m == nil {
		return
	}
	m.FlushDuration.Observe(d.Seconds())
	m.Notifications.Add(float64(notifications))
}

// SetPopulation updates the population gauges.
func (m *Metrics) SetPopulation(agents, cells, dirty int) {
	if m == nil {
		return
	}
	m.Agents.Set(float64(agents))
	m.Cells.Set(float64(cells))
	m.DirtyCells.Set(float64(dirty))
}

// Report counts a position report outcome.
func (m *Metrics) Report(outcome string) {
	if m == nil {
		return
	}
	m.Reports.WithLabelValues(outcome).Inc()
}

// Registration counts a registration attempt.
func (m *Metrics) Registration(ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "capacity"
	}
	m.Registrations.WithLabelValues(result).Inc()
}

// Removal counts a removed agent.
func (m *Metrics) Removal() {
	if m == nil {
		return
	}
	m.Removals.Inc()
}
