package systems

import (
	"sync"

	"gonum.org/v1/gonum/spatial/r3"
)

// TargetProvider supplies an optional position for agents to seek.
type TargetProvider interface {
	TargetPosition() (r3.Vec, bool)
}

// StaticTarget is a fixed target position.
type StaticTarget r3.Vec

// TargetPosition implements TargetProvider.
func (t StaticTarget) TargetPosition() (r3.Vec, bool) {
	return r3.Vec(t), true
}

// MovingTarget is a target position updated by the host between ticks.
// It is safe to read from recompute workers while the host writes it.
type MovingTarget struct {
	mu  sync.RWMutex
	pos r3.Vec
	set bool
}

// Set moves the target.
func (t *MovingTarget) Set(pos r3.Vec) {
	t.mu.Lock()
	t.pos = pos
	t.set = true
	t.mu.Unlock()
}

// Clear removes the target; agents fall back to holding their heading.
func (t *MovingTarget) Clear() {
	t.mu.Lock()
	t.set = false
	t.mu.Unlock()
}

// TargetPosition implements TargetProvider.
func (t *MovingTarget) TargetPosition() (r3.Vec, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.pos, t.set
}

// SteeringParams are the per-agent flight and weighting parameters.
// TurnRate is in degrees per second, Acceleration in speed units per second.
type SteeringParams struct {
	MaxSpeed           float64
	TurnRate           float64
	Acceleration       float64
	SeparationDistance float64
	// TerrainAvoidDistance bounds static point repulsion; 0 means unbounded.
	TerrainAvoidDistance float64

	TargetWeight       float64
	SeparationWeight   float64
	CohesionWeight     float64
	AlignmentWeight    float64
	AvoidTerrainWeight float64

	Target TargetProvider
}

// SeparationForce sums inverse-square repulsion from dynamic points closer
// than threshold. Points at distance zero (the agent itself) contribute nothing.
func SeparationForce(pos r3.Vec, points []AvoidancePoint, threshold float64) r3.Vec {
	var force r3.Vec
	for _, p := range points {
		if p.Static {
			continue
		}
		d := r3.Sub(pos, p.Position)
		dist := r3.Norm(d)
		if dist < vecEpsilon || dist >= threshold {
			continue
		}
		force = r3.Add(force, r3.Scale(1/(dist*dist*dist), d))
	}
	return force
}

// TerrainForce sums 1/distance repulsion from static points.
// A threshold of zero or less applies no distance cutoff.
func TerrainForce(pos r3.Vec, points []AvoidancePoint, threshold float64) r3.Vec {
	var force r3.Vec
	for _, p := range points {
		if !p.Static {
			continue
		}
		d := r3.Sub(pos, p.Position)
		dist := r3.Norm(d)
		if dist < vecEpsilon || (threshold > 0 && dist >= threshold) {
			continue
		}
		force = r3.Add(force, r3.Scale(1/(dist*dist), d))
	}
	return force
}

// CalculateTargetVelocity combines seek, cohesion, alignment, separation and
// terrain avoidance into a desired velocity no longer than MaxSpeed.
// It reads only the cached blended stats and never touches the grid.
func CalculateTargetVelocity(pos, vel r3.Vec, p *SteeringParams, blended FlockStats) r3.Vec {
	var seek r3.Vec
	if p.Target != nil {
		if t, ok := p.Target.TargetPosition(); ok {
			seek = unit(r3.Sub(t, pos))
		} else {
			seek = unit(vel)
		}
	} else {
		seek = unit(vel)
	}
	out := r3.Scale(p.MaxSpeed*p.TargetWeight, seek)

	if blended.Count > 0 {
		cohesion := unit(r3.Sub(blended.AvgPosition, pos))
		alignment := unit(r3.Sub(blended.AvgVelocity, vel))
		out = r3.Add(out, r3.Scale(p.CohesionWeight, cohesion))
		out = r3.Add(out, r3.Scale(p.AlignmentWeight, alignment))
	}

	if len(blended.Points) > 0 {
		sep := SeparationForce(pos, blended.Points, p.SeparationDistance)
		terrain := TerrainForce(pos, blended.Points, p.TerrainAvoidDistance)
		out = r3.Add(out, r3.Scale(p.SeparationWeight, sep))
		out = r3.Add(out, r3.Scale(p.AvoidTerrainWeight, terrain))
	}

	return clampMagnitude(out, p.MaxSpeed)
}
