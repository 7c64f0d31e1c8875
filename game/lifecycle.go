package game

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/mlange-42/ark/ecs"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/flock/components"
	"github.com/pthm-cable/flock/systems"
)

// spawnInitialPopulation registers population.initial agents inside a
// sphere around the grid origin, with random headings.
func (g *Game) spawnInitialPopulation() {
	pop := g.cfg.Population
	origin := g.cfg.Grid.Origin.R3()

	for i := 0; i < pop.Initial; i++ {
		// Uniform in the sphere: cube root keeps density even along the radius.
		r := pop.SpawnRadius * math.Cbrt(g.rng.Float64())
		pos := r3.Add(origin, r3.Scale(r, g.randomDirection()))
		vel := r3.Scale(pop.InitialSpeed, g.randomDirection())

		if _, err := g.RegisterAgent(pos, vel, g.params); err != nil {
			slog.Error("failed to spawn agent", "index", i, "error", err)
		}
	}
}

// randomDirection returns a unit vector with uniform direction.
func (g *Game) randomDirection() r3.Vec {
	for {
		v := r3.Vec{X: g.rng.NormFloat64(), Y: g.rng.NormFloat64(), Z: g.rng.NormFloat64()}
		if n := r3.Norm(v); n > 1e-9 {
			return r3.Scale(1/n, v)
		}
	}
}

// cellCentre returns the world position that maps exactly onto c.
func (g *Game) cellCentre(c systems.Coord) r3.Vec {
	half := float64(g.grid.Dimension() / 2)
	size := g.grid.CellSize()
	o := g.grid.Origin()
	return r3.Vec{
		X: o.X - (float64(c.X)-half)*size,
		Y: o.Y - (float64(c.Y)-half)*size,
		Z: o.Z - (float64(c.Z)-half)*size,
	}
}

// addBoundaryPoints places static avoidance points on the six faces of the
// grid volume, every terrain.boundary_spacing cells.
func (g *Game) addBoundaryPoints() {
	dim := g.grid.Dimension()
	step := g.cfg.Terrain.BoundarySpacing
	if step < 1 {
		step = 1
	}

	seen := make(map[systems.Coord]struct{})
	add := func(c systems.Coord) {
		if _, ok := seen[c]; ok {
			return
		}
		seen[c] = struct{}{}
		if err := g.grid.AddAvoidancePoint(g.cellCentre(c), true); err != nil {
			slog.Error("failed to add boundary point", "coord", c.String(), "error", err)
		}
	}

	last := dim - 1
	for a := 0; a < dim; a += step {
		for b := 0; b < dim; b += step {
			add(systems.Coord{X: 0, Y: a, Z: b})
			add(systems.Coord{X: last, Y: a, Z: b})
			add(systems.Coord{X: a, Y: 0, Z: b})
			add(systems.Coord{X: a, Y: last, Z: b})
			add(systems.Coord{X: a, Y: b, Z: 0})
			add(systems.Coord{X: a, Y: b, Z: last})
		}
	}

	slog.Debug("boundary points added", "count", len(seen))
}

// RegisterAgent adds an agent at start with velocity vel and returns its id.
// A nil params uses the shared defaults.
//
// When every slot is taken it returns ErrCapacityExceeded and nothing changes.
// A start outside the grid is clamped under the clamp policy; under retain
// the agent is registered unplaced and joins the grid on its first in-range
// report.
func (g *Game) RegisterAgent(start, vel r3.Vec, params *systems.SteeringParams) (int, error) {
	if len(g.free) == 0 {
		g.collector.RecordRejected()
		g.metrics.Registration(false)
		return -1, fmt.Errorf("register agent (capacity %d): %w", len(g.slots), systems.ErrCapacityExceeded)
	}
	if params == nil {
		params = g.params
	}

	id := g.free[len(g.free)-1]
	g.free = g.free[:len(g.free)-1]

	// Until its first push the agent holds its heading.
	kin := components.Kinematics{Position: start, Velocity: vel, TargetVelocity: vel}
	steer := components.Steering{Params: params}
	mem := components.Membership{
		ID:              id,
		LastReported:    start,
		ReportThreshold: g.reportThreshold(),
	}
	cache := components.FlockCache{}

	entity := g.agentMapper.NewEntity(&kin, &steer, &mem, &cache)
	g.slots[id] = entity
	g.occupied[id] = true
	g.count++

	g.grid.Subscribe(id, g.onStats)

	// A retained start leaves the agent unplaced; that is not a registration error.
	coord, cerr := g.grid.CoordinateOf(start)
	_ = g.place(id, g.memMap.Get(entity), start, coord, cerr)

	g.collector.RecordRegistration()
	g.metrics.Registration(true)
	return id, nil
}

// reportThreshold returns a jittered report distance so agents crossing the
// same threshold do not all report on the same tick.
func (g *Game) reportThreshold() float64 {
	jitter := g.cfg.Grid.ReportJitter * (2*g.rng.Float64() - 1)
	return g.cfg.Derived.ReportDistance * (1 + jitter)
}

// RemoveAgent unregisters agent id. Its cell is marked dirty and the id
// becomes available for reuse.
func (g *Game) RemoveAgent(id int) error {
	e, err := g.entity(id)
	if err != nil {
		return err
	}

	if err := g.grid.RemoveAgent(id); err != nil {
		return fmt.Errorf("remove agent %d: %w", id, err)
	}
	g.world.RemoveEntity(e)

	g.slots[id] = ecs.Entity{}
	g.occupied[id] = false
	g.observers[id] = nil
	g.free = append(g.free, id)
	g.count--

	g.collector.RecordRemoval()
	g.metrics.Removal()
	return nil
}

// entity resolves an agent id to its entity.
func (g *Game) entity(id int) (ecs.Entity, error) {
	if id < 0 || id >= len(g.slots) || !g.occupied[id] {
		return ecs.Entity{}, fmt.Errorf("agent %d: %w", id, systems.ErrUnknownAgent)
	}
	return g.slots[id], nil
}

// AgentState implements systems.AgentSource.
func (g *Game) AgentState(id int) (position, velocity r3.Vec, ok bool) {
	e, err := g.entity(id)
	if err != nil {
		return r3.Vec{}, r3.Vec{}, false
	}
	kin := g.kinMap.Get(e)
	return kin.Position, kin.Velocity, true
}

// SubscribeStatistics registers fn to observe the stats pushed to agent id.
// fn runs during Tick after the agent's own cache and target velocity have
// been updated. Passing nil clears the observer.
func (g *Game) SubscribeStatistics(id int, fn systems.StatsFunc) error {
	if _, err := g.entity(id); err != nil {
		return err
	}
	g.observers[id] = fn
	return nil
}

// onStats is the grid subscription for every agent. It is the only writer
// of FlockCache and of the target velocity, which is computed here while
// the pushed stats still hold the agent at its current position.
func (g *Game) onStats(id int, local, blended systems.FlockStats) {
	e, err := g.entity(id)
	if err != nil {
		return
	}
	cache := g.cacheMap.Get(e)
	cache.Local = local
	cache.Blended = blended
	cache.Valid = true

	kin := g.kinMap.Get(e)
	steer := g.steerMap.Get(e)
	kin.TargetVelocity = systems.CalculateTargetVelocity(kin.Position, kin.Velocity, steer.Params, blended)

	if fn := g.observers[id]; fn != nil {
		fn(id, local, blended)
	}
}

// AddAvoidancePoint adds an obstacle point. Static points are stored in
// the grid and reach agents on the next flush; dynamic points are the
// agents themselves, so a dynamic point is accepted and ignored.
func (g *Game) AddAvoidancePoint(position r3.Vec, static bool) error {
	return g.grid.AddAvoidancePoint(position, static)
}

// Recenter moves the grid origin and re-reports every agent against it.
// Static points that fall outside the moved grid are dropped; the count is
// returned.
func (g *Game) Recenter(origin r3.Vec) int {
	dropped := g.grid.SetOrigin(origin)
	if dropped > 0 {
		slog.Warn("static points dropped by recenter", "dropped", dropped, "origin", origin)
	}

	for id := range g.slots {
		if !g.occupied[id] {
			continue
		}
		e := g.slots[id]
		kin := g.kinMap.Get(e)
		coord, cerr := g.grid.CoordinateOf(kin.Position)
		_ = g.place(id, g.memMap.Get(e), kin.Position, coord, cerr)
	}
	return dropped
}

// ReportPosition moves agent id to pos and updates its grid membership.
// The new statistics are pushed on the next Tick. Under the retain policy
// an out-of-range position leaves the agent in its last valid cell and the
// wrapped ErrOutOfRange is returned.
func (g *Game) ReportPosition(id int, pos r3.Vec) error {
	e, err := g.entity(id)
	if err != nil {
		return err
	}
	g.kinMap.Get(e).Position = pos

	coord, cerr := g.grid.CoordinateOf(pos)
	if err := g.place(id, g.memMap.Get(e), pos, coord, cerr); err != nil {
		return fmt.Errorf("report agent %d: %w", id, err)
	}
	return nil
}

// place applies a position report to the grid using the out-of-range
// policy. It returns cerr when the report was retained rather than applied.
func (g *Game) place(id int, mem *components.Membership, pos r3.Vec, coord systems.Coord, cerr error) error {
	outcome := "moved"
	if cerr != nil {
		g.collector.RecordOutOfRange(g.cfg.Derived.Clamp)
		g.warnOutOfRange(id, pos, cerr)
		if !g.cfg.Derived.Clamp {
			g.metrics.Report("retained")
			return cerr
		}
		coord = g.grid.ClampedCoordinateOf(pos)
		outcome = "clamped"
	}

	old, _ := g.grid.CoordOfAgent(id)
	if err := g.grid.MoveAgent(id, coord); err != nil {
		slog.Error("grid rejected move", "agent", id, "coord", coord.String(), "error", err)
		return err
	}

	changed := old != coord
	if !changed && outcome == "moved" {
		outcome = "same_cell"
	}
	mem.LastReported = pos
	mem.Placed = true

	g.collector.RecordReport(changed)
	g.metrics.Report(outcome)
	return nil
}
