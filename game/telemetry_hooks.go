package game

import (
	"log/slog"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/flock/telemetry"
)

// flushTelemetry checks if the stats window should be flushed and handles bookmarks.
func (g *Game) flushTelemetry() {
	if !g.collector.ShouldFlush(g.tick) {
		return
	}

	stats := g.collector.Flush(g.tick, g.sampleAgents())
	perfStats := g.perfCollector.Stats()

	// Call stats callback if provided
	if g.statsCallback != nil {
		g.statsCallback(stats)
	}

	// Log stats if enabled (console output)
	if g.logStats {
		stats.LogStats()
		perfStats.LogStats()
		g.logWorldState()
	}

	// Write to CSV if output manager is enabled
	if g.outputManager != nil {
		if err := g.outputManager.WriteTelemetry(stats); err != nil {
			slog.Error("failed to write telemetry", "error", err)
		}
		if err := g.outputManager.WritePerf(perfStats, stats.WindowEndTick); err != nil {
			slog.Error("failed to write perf", "error", err)
		}
	}

	for _, bm := range g.bookmarkDetector.Check(stats) {
		if g.logStats {
			bm.LogBookmark()
		}
		if err := g.outputManager.WriteBookmark(bm); err != nil {
			slog.Error("failed to write bookmark", "error", err)
		}
		if g.snapshotDir != "" {
			g.saveSnapshot(&bm)
		}
	}
}

// sampleAgents collects the per-agent distributions for a window.
func (g *Game) sampleAgents() telemetry.Sample {
	s := telemetry.Sample{
		Speeds:     make([]float64, 0, g.count),
		Neighbours: make([]float64, 0, g.count),
		Agents:     g.count,
		Cells:      g.grid.CellCount(),
	}

	var target r3.Vec
	hasTarget := false
	if g.target != nil {
		target, hasTarget = g.target.TargetPosition()
	}

	var centroid r3.Vec
	var targetDist float64
	for id, ok := range g.occupied {
		if !ok {
			continue
		}
		e := g.slots[id]
		kin := g.kinMap.Get(e)
		s.Speeds = append(s.Speeds, r3.Norm(kin.Velocity))
		if cache := g.cacheMap.Get(e); cache.Valid {
			s.Neighbours = append(s.Neighbours, float64(cache.Blended.Count))
		}
		if !g.memMap.Get(e).Placed {
			s.Unplaced++
		}
		centroid = r3.Add(centroid, kin.Position)
		if hasTarget {
			targetDist += r3.Norm(r3.Sub(kin.Position, target))
		}
	}

	if g.count == 0 {
		return s
	}
	n := float64(g.count)
	centroid = r3.Scale(1/n, centroid)

	var spread float64
	for id, ok := range g.occupied {
		if !ok {
			continue
		}
		spread += r3.Norm(r3.Sub(g.kinMap.Get(g.slots[id]).Position, centroid))
	}
	s.Spread = spread / n
	if hasTarget {
		s.TargetDist = targetDist / n
	}
	return s
}

// saveSnapshot creates and saves a snapshot to disk.
func (g *Game) saveSnapshot(bookmark *telemetry.Bookmark) {
	snapshot := g.createSnapshot(bookmark)

	path, err := telemetry.SaveSnapshot(snapshot, g.snapshotDir)
	if err != nil {
		slog.Error("failed to save snapshot", "error", err)
		return
	}

	slog.Info("snapshot saved", "path", path, "tick", g.tick)
}

// createSnapshot builds a snapshot from the current state.
func (g *Game) createSnapshot(bookmark *telemetry.Bookmark) *telemetry.Snapshot {
	o := g.grid.Origin()
	snapshot := &telemetry.Snapshot{
		Version:   telemetry.SnapshotVersion,
		RunID:     g.RunID(),
		Seed:      g.seed,
		Origin:    [3]float64{o.X, o.Y, o.Z},
		CellSize:  g.grid.CellSize(),
		Dimension: g.grid.Dimension(),
		Tick:      g.tick,
		Agents:    make([]telemetry.AgentState, 0, g.count),
		Bookmark:  bookmark,
	}

	// Iterate the ECS filter; slot order is restored via Membership.ID.
	query := g.agentFilter.Query()
	for query.Next() {
		kin, _, mem, cache := query.Get()
		cell, _ := g.grid.CoordOfAgent(mem.ID)

		snapshot.Agents = append(snapshot.Agents, telemetry.AgentState{
			ID:         mem.ID,
			Position:   [3]float64{kin.Position.X, kin.Position.Y, kin.Position.Z},
			Velocity:   [3]float64{kin.Velocity.X, kin.Velocity.Y, kin.Velocity.Z},
			Cell:       [3]int{cell.X, cell.Y, cell.Z},
			Placed:     mem.Placed,
			Neighbours: cache.Blended.Count,
		})
	}
	sortAgentStates(snapshot.Agents)

	return snapshot
}
