// Package components defines ECS components for flock agents.
package components

import (
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/flock/systems"
)

// Kinematics holds an agent's motion state.
// TargetVelocity is recomputed only when flock stats are pushed; between
// pushes the agent keeps steering toward it.
type Kinematics struct {
	Position       r3.Vec
	Velocity       r3.Vec
	TargetVelocity r3.Vec
}

// Steering points at the agent's flight parameters.
// Agents spawned from the same config share one SteeringParams.
type Steering struct {
	Params *systems.SteeringParams
}

// Membership tracks an agent's slot and grid reporting state.
type Membership struct {
	ID              int
	LastReported    r3.Vec  // position at the last grid report
	ReportThreshold float64 // distance moved before the next report
	Placed          bool    // false while the agent has no valid cell
}

// FlockCache holds the last stats pushed by the grid.
// Only the grid flush writes it.
type FlockCache struct {
	Local   systems.FlockStats
	Blended systems.FlockStats
	Valid   bool
}
