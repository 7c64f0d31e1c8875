package systems

import "gonum.org/v1/gonum/spatial/r3"

// AvoidancePoint is a position an agent steers away from.
// Static points are terrain or world boundaries; dynamic points are flockmates.
type AvoidancePoint struct {
	Position r3.Vec
	Static   bool
}

// FlockStats is the aggregate a cell hands to its members.
// Count is the number of agents contributing to the averages.
type FlockStats struct {
	AvgPosition r3.Vec
	AvgVelocity r3.Vec
	Count       int
	Points      []AvoidancePoint
}

// Empty reports whether the stats carry no agent or avoidance data.
func (s FlockStats) Empty() bool {
	return s.Count == 0 && len(s.Points) == 0
}

// StaticPoints counts the static entries in Points.
func (s FlockStats) StaticPoints() int {
	n := 0
	for _, p := range s.Points {
		if p.Static {
			n++
		}
	}
	return n
}
