package game

import (
	"log/slog"

	"gonum.org/v1/gonum/spatial/r3"
)

// warnOutOfRange logs an out-of-range report, throttled by the configured
// rate. Suppressed warnings are counted and reported with the next one.
func (g *Game) warnOutOfRange(id int, pos r3.Vec, err error) {
	if !g.oorLimiter.Allow() {
		g.oorSuppressed++
		return
	}

	policy := g.cfg.Grid.OutOfRangePolicy
	slog.Warn("position outside grid",
		"tick", g.tick,
		"agent", id,
		"x", pos.X, "y", pos.Y, "z", pos.Z,
		"policy", policy,
		"suppressed", g.oorSuppressed,
		"error", err,
	)
	g.oorSuppressed = 0
}

// logWorldState logs a one-line summary of the simulation.
func (g *Game) logWorldState() {
	slog.Info("world",
		"tick", g.tick,
		"sim_time", g.simTime,
		"agents", g.count,
		"cells", g.grid.CellCount(),
		"dirty", g.grid.DirtyCount(),
		"static_points", g.grid.StaticPointCount(),
	)
}
