package game

import (
	"math"
	"time"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/flock/systems"
	"github.com/pthm-cable/flock/telemetry"
)

// Tick advances the simulation by dt seconds.
//
// Every agent's target velocity and motion are recomputed from its cached
// flock stats, in parallel for large populations. Kinematics and grid
// membership are then committed serially in agent id order, and finally
// the grid flushes dirty cells and pushes fresh stats to their members.
func (g *Game) Tick(dt float64) systems.FlushResult {
	start := time.Now()
	g.perfCollector.StartTick()

	g.perfCollector.StartPhase(telemetry.PhaseTarget)
	g.simTime += dt
	g.updateTarget()

	g.perfCollector.StartPhase(telemetry.PhaseMotion)
	g.buildSnapshots()
	g.recompute(dt)

	g.perfCollector.StartPhase(telemetry.PhaseCommit)
	g.applyIntents()

	g.perfCollector.StartPhase(telemetry.PhaseFlush)
	res := g.flushPartitions()

	g.tick++

	g.perfCollector.StartPhase(telemetry.PhaseTelemetry)
	g.flushTelemetry()

	g.perfCollector.EndTick()
	g.observeTick(start)
	return res
}

// Step advances one tick of the configured physics dt.
func (g *Game) Step() systems.FlushResult {
	return g.Tick(g.cfg.Physics.DT)
}

// flushPartitions runs the grid flush and records its outcome.
func (g *Game) flushPartitions() systems.FlushResult {
	start := time.Now()
	res := g.grid.UpdatePartitions()
	g.collector.RecordFlush(res.Cells, res.Notifications)
	g.metrics.ObserveFlush(time.Since(start), res.Notifications)
	return res
}

// updateTarget moves an orbiting target along its circle in the XZ plane.
func (g *Game) updateTarget() {
	tc := g.cfg.Target
	if g.target == nil || tc.OrbitRadius <= 0 {
		return
	}
	theta := 2 * math.Pi * g.simTime / tc.OrbitPeriod
	offset := r3.Vec{X: tc.OrbitRadius * math.Cos(theta), Z: tc.OrbitRadius * math.Sin(theta)}
	g.target.Set(r3.Add(tc.Position.R3(), offset))
}
