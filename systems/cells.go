package systems

import (
	"github.com/RoaringBitmap/roaring"
	"gonum.org/v1/gonum/spatial/r3"
)

// Cell is one bucket of the partition grid.
// Local holds stats computed from the cell's own members and static points;
// Blended holds the count-weighted mix with its face-adjacent neighbours.
type Cell struct {
	Coord   Coord
	Local   FlockStats
	Blended FlockStats

	members    *roaring.Bitmap
	statics    []r3.Vec
	neighbours []int // flat indices of in-bounds face neighbours
}

func newCell(c Coord, neighbours []int) Cell {
	return Cell{
		Coord:      c,
		members:    roaring.New(),
		neighbours: neighbours,
	}
}

// Len returns the number of member agents.
func (c *Cell) Len() int {
	return int(c.members.GetCardinality())
}

// Contains reports whether the agent is a member.
func (c *Cell) Contains(id int) bool {
	return c.members.Contains(uint32(id))
}

// Members returns member ids in ascending order.
func (c *Cell) Members() []int {
	ids := make([]int, 0, c.members.GetCardinality())
	it := c.members.Iterator()
	for it.HasNext() {
		ids = append(ids, int(it.Next()))
	}
	return ids
}

// StaticPoints returns the static avoidance points bucketed in this cell.
func (c *Cell) StaticPoints() []r3.Vec {
	return c.statics
}

// recomputeLocal rebuilds Local from current members and static points.
func (c *Cell) recomputeLocal(src AgentSource) {
	n := int(c.members.GetCardinality())
	local := FlockStats{
		Points: make([]AvoidancePoint, 0, n+len(c.statics)),
	}

	var sumPos, sumVel r3.Vec
	it := c.members.Iterator()
	for it.HasNext() {
		pos, vel, ok := src.AgentState(int(it.Next()))
		if !ok {
			continue
		}
		sumPos = r3.Add(sumPos, pos)
		sumVel = r3.Add(sumVel, vel)
		local.Count++
		local.Points = append(local.Points, AvoidancePoint{Position: pos})
	}
	if local.Count > 0 {
		inv := 1 / float64(local.Count)
		local.AvgPosition = r3.Scale(inv, sumPos)
		local.AvgVelocity = r3.Scale(inv, sumVel)
	}

	for _, p := range c.statics {
		local.Points = append(local.Points, AvoidancePoint{Position: p, Static: true})
	}
	c.Local = local
}

// blend rebuilds Blended from this cell's and its existing neighbours' Local stats.
// Empty neighbours add no weight; avoidance points are concatenated.
func (c *Cell) blend(cells []Cell, exists func(idx int) bool) {
	var sumPos, sumVel r3.Vec
	total := 0
	points := len(c.Local.Points)
	for _, idx := range c.neighbours {
		if exists(idx) {
			points += len(cells[idx].Local.Points)
		}
	}

	out := FlockStats{Points: make([]AvoidancePoint, 0, points)}
	add := func(s *FlockStats) {
		if s.Count > 0 {
			w := float64(s.Count)
			sumPos = r3.Add(sumPos, r3.Scale(w, s.AvgPosition))
			sumVel = r3.Add(sumVel, r3.Scale(w, s.AvgVelocity))
			total += s.Count
		}
		out.Points = append(out.Points, s.Points...)
	}

	add(&c.Local)
	for _, idx := range c.neighbours {
		if exists(idx) {
			add(&cells[idx].Local)
		}
	}

	if total > 0 {
		inv := 1 / float64(total)
		out.AvgPosition = r3.Scale(inv, sumPos)
		out.AvgVelocity = r3.Scale(inv, sumVel)
	}
	out.Count = total
	c.Blended = out
}
