// Package server hosts a flock simulation behind an HTTP API. A ticker
// drives the game at the configured rate while handlers register, move
// and inspect agents between ticks.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/pthm-cable/flock/config"
	"github.com/pthm-cable/flock/game"
	"github.com/pthm-cable/flock/telemetry"
)

// Host owns a game and serialises access to it.
type Host struct {
	mu       sync.Mutex
	game     *game.Game
	latest   *telemetry.WindowStats
	registry *prometheus.Registry
	tickRate float64
}

// New creates a host and its game. opts.Registerer is replaced by the
// host's own registry; an existing opts.StatsCallback still runs.
func New(cfg *config.Config, opts game.Options) (*Host, error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	h := &Host{
		registry: reg,
		tickRate: cfg.Server.TickRate,
	}

	next := opts.StatsCallback
	opts.StatsCallback = func(s telemetry.WindowStats) {
		// Called from Tick, so h.mu is already held.
		h.latest = &s
		if next != nil {
			next(s)
		}
	}
	opts.Registerer = reg

	g, err := game.New(cfg, opts)
	if err != nil {
		return nil, fmt.Errorf("creating game: %w", err)
	}
	h.game = g
	return h, nil
}

// Registry returns the Prometheus registry served on /metrics.
func (h *Host) Registry() *prometheus.Registry {
	return h.registry
}

// Step advances the game by one tick.
func (h *Host) Step() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.game.Step()
}

// Run ticks the game at the configured rate until ctx is done.
func (h *Host) Run(ctx context.Context) error {
	if h.tickRate <= 0 {
		return fmt.Errorf("tick rate must be positive, got %v", h.tickRate)
	}
	interval := time.Duration(float64(time.Second) / h.tickRate)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	slog.Info("tick loop started", "tick_rate", h.tickRate, "interval", interval)
	for {
		select {
		case <-ctx.Done():
			slog.Info("tick loop stopped", "tick", h.Tick())
			return nil
		case <-ticker.C:
			h.Step()
		}
	}
}

// Tick returns the number of completed ticks.
func (h *Host) Tick() int32 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.game.TickCount()
}

// Close releases the game's workers and output files.
func (h *Host) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.game.Close()
}

// with runs fn while holding the game lock.
func (h *Host) with(fn func(g *game.Game)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	fn(h.game)
}
