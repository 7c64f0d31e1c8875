package systems

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"gonum.org/v1/gonum/spatial/r3"
)

type fakeAgent struct {
	pos, vel r3.Vec
}

// fakeSource is an in-memory AgentSource for grid tests.
type fakeSource map[int]fakeAgent

func (s fakeSource) AgentState(id int) (r3.Vec, r3.Vec, bool) {
	a, ok := s[id]
	return a.pos, a.vel, ok
}

func vecNear(a, b r3.Vec, eps float64) bool {
	return math.Abs(a.X-b.X) <= eps && math.Abs(a.Y-b.Y) <= eps && math.Abs(a.Z-b.Z) <= eps
}

func newTestGrid(t *testing.T, src fakeSource) *Grid {
	t.Helper()
	g, err := NewGrid(r3.Vec{}, 10, 3, src)
	if err != nil {
		t.Fatalf("NewGrid: %v", err)
	}
	return g
}

// place puts agent id at pos in both the source and the grid.
func place(t *testing.T, g *Grid, src fakeSource, id int, pos r3.Vec) {
	t.Helper()
	a := src[id]
	a.pos = pos
	src[id] = a
	c, err := g.CoordinateOf(pos)
	if err != nil {
		t.Fatalf("CoordinateOf(%v): %v", pos, err)
	}
	if err := g.MoveAgent(id, c); err != nil {
		t.Fatalf("MoveAgent(%d, %v): %v", id, c, err)
	}
}

func TestNewGrid_Validation(t *testing.T) {
	if _, err := NewGrid(r3.Vec{}, 0, 3, nil); err == nil {
		t.Error("expected error for zero cell size")
	}
	if _, err := NewGrid(r3.Vec{}, 10, 0, nil); err == nil {
		t.Error("expected error for zero dimension")
	}
}

func TestGrid_MoveScenario(t *testing.T) {
	src := fakeSource{}
	g := newTestGrid(t, src)

	place(t, g, src, 0, r3.Vec{})
	if c, _ := g.CoordOfAgent(0); c != (Coord{1, 1, 1}) {
		t.Fatalf("agent at origin recorded in %v, want (1,1,1)", c)
	}
	g.UpdatePartitions()

	moved := r3.Vec{X: 25}
	src[0] = fakeAgent{pos: moved}
	// (0-25)/10 + 1 = -1.5 rounds to -2; the clamp policy maps it to the x=0 edge.
	if _, err := g.CoordinateOf(moved); !errors.Is(err, ErrOutOfRange) {
		t.Fatalf("expected (25,0,0) to be out of range, got %v", err)
	}
	target := g.ClampedCoordinateOf(moved)
	if target != (Coord{0, 1, 1}) {
		t.Fatalf("clamped coordinate = %v, want (0,1,1)", target)
	}
	if err := g.MoveAgent(0, target); err != nil {
		t.Fatalf("MoveAgent: %v", err)
	}
	if g.DirtyCount() != 2 {
		t.Errorf("DirtyCount = %d, want 2", g.DirtyCount())
	}

	g.UpdatePartitions()

	oldCell := g.CellAt(Coord{1, 1, 1})
	newCell := g.CellAt(Coord{0, 1, 1})
	if oldCell == nil || newCell == nil {
		t.Fatal("both cells should exist")
	}
	if oldCell.Len() != 0 || oldCell.Contains(0) {
		t.Errorf("old cell still holds agent: %v", oldCell.Members())
	}
	if !newCell.Contains(0) || newCell.Len() != 1 {
		t.Errorf("new cell members = %v, want [0]", newCell.Members())
	}
	if oldCell.Local.Count != 0 || len(oldCell.Local.Points) != 0 {
		t.Errorf("old cell local stats should be empty, got %+v", oldCell.Local)
	}
	if !vecNear(newCell.Local.AvgPosition, moved, 1e-9) {
		t.Errorf("new cell avg position = %v, want %v", newCell.Local.AvgPosition, moved)
	}
}

func TestGrid_SameCellStillDirty(t *testing.T) {
	src := fakeSource{}
	g := newTestGrid(t, src)
	place(t, g, src, 0, r3.Vec{})
	g.UpdatePartitions()

	place(t, g, src, 0, r3.Vec{X: 1})
	if g.DirtyCount() != 1 {
		t.Errorf("DirtyCount = %d, want 1 for a move within the same cell", g.DirtyCount())
	}
	g.UpdatePartitions()
	if got := g.CellAt(Coord{1, 1, 1}).Local.AvgPosition; !vecNear(got, r3.Vec{X: 1}, 1e-9) {
		t.Errorf("avg position = %v, want (1,0,0)", got)
	}
}

func TestGrid_MoveAgentOutOfRange(t *testing.T) {
	src := fakeSource{}
	g := newTestGrid(t, src)

	if err := g.MoveAgent(0, OutOfRange); err != nil {
		t.Errorf("sentinel move should be a silent no-op, got %v", err)
	}
	if g.DirtyCount() != 0 || g.CellCount() != 0 {
		t.Error("sentinel move must not mutate the grid")
	}
	if _, ok := g.CoordOfAgent(0); ok {
		t.Error("agent should not be placed")
	}

	err := g.MoveAgent(0, Coord{3, 0, 0})
	if !errors.Is(err, ErrOutOfRange) {
		t.Errorf("expected ErrOutOfRange, got %v", err)
	}
	if g.DirtyCount() != 0 {
		t.Error("rejected move must not mark cells dirty")
	}
}

func TestGrid_EmptyFlushIsNoop(t *testing.T) {
	src := fakeSource{}
	g := newTestGrid(t, src)
	place(t, g, src, 0, r3.Vec{})

	calls := 0
	g.Subscribe(0, func(int, FlockStats, FlockStats) { calls++ })

	first := g.UpdatePartitions()
	if first.Cells != 1 || first.Notifications != 1 || calls != 1 {
		t.Fatalf("first flush = %+v, calls = %d", first, calls)
	}
	before := g.CellAt(Coord{1, 1, 1}).Blended

	second := g.UpdatePartitions()
	if second != (FlushResult{}) {
		t.Errorf("second flush = %+v, want zero", second)
	}
	if calls != 1 {
		t.Errorf("subscriber called %d times, want 1", calls)
	}
	after := g.CellAt(Coord{1, 1, 1}).Blended
	if after.Count != before.Count || after.AvgPosition != before.AvgPosition {
		t.Error("empty flush changed statistics")
	}
}

func TestGrid_LocalAverage(t *testing.T) {
	src := fakeSource{}
	g := newTestGrid(t, src)
	positions := []r3.Vec{{X: 1, Y: 2}, {X: -3, Z: 4}, {X: 2, Y: -2, Z: -1}}
	for id, p := range positions {
		src[id] = fakeAgent{vel: r3.Vec{X: float64(id)}}
		place(t, g, src, id, p)
	}
	g.UpdatePartitions()

	local := g.CellAt(Coord{1, 1, 1}).Local
	want := r3.Vec{X: 0, Y: 0, Z: 1}
	if local.Count != 3 {
		t.Fatalf("Count = %d, want 3", local.Count)
	}
	if !vecNear(local.AvgPosition, want, 1e-9) {
		t.Errorf("AvgPosition = %v, want %v", local.AvgPosition, want)
	}
	if !vecNear(local.AvgVelocity, r3.Vec{X: 1}, 1e-9) {
		t.Errorf("AvgVelocity = %v, want (1,0,0)", local.AvgVelocity)
	}
	if len(local.Points) != 3 {
		t.Errorf("expected 3 dynamic points, got %d", len(local.Points))
	}
}

func TestGrid_NeighbourBlend(t *testing.T) {
	src := fakeSource{}
	g := newTestGrid(t, src)
	posA := r3.Vec{X: 1}
	posB := r3.Vec{X: 9}
	place(t, g, src, 0, posA) // (1,1,1)
	place(t, g, src, 1, posB) // (0,1,1)
	g.UpdatePartitions()

	blended := g.CellAt(Coord{1, 1, 1}).Blended
	want := r3.Scale(0.5, r3.Add(posA, posB))
	if !vecNear(blended.AvgPosition, want, 1e-9) {
		t.Errorf("blended AvgPosition = %v, want %v", blended.AvgPosition, want)
	}
	if blended.Count != 2 {
		t.Errorf("blended Count = %d, want 2", blended.Count)
	}
	if len(blended.Points) != 2 {
		t.Errorf("blended points = %d, want concatenation of 2", len(blended.Points))
	}
}

func TestGrid_BlendWeightsByCount(t *testing.T) {
	src := fakeSource{}
	g := newTestGrid(t, src)
	place(t, g, src, 0, r3.Vec{X: 0})
	place(t, g, src, 1, r3.Vec{X: 2})
	place(t, g, src, 2, r3.Vec{X: 10}) // neighbour cell (0,1,1)
	g.UpdatePartitions()

	got := g.CellAt(Coord{1, 1, 1}).Blended.AvgPosition
	want := r3.Vec{X: 4} // (0 + 2 + 10) / 3
	if !vecNear(got, want, 1e-9) {
		t.Errorf("blended AvgPosition = %v, want %v", got, want)
	}
}

func TestGrid_EmptyNeighbourHasNoWeight(t *testing.T) {
	src := fakeSource{}
	g := newTestGrid(t, src)
	place(t, g, src, 0, r3.Vec{})
	place(t, g, src, 1, r3.Vec{X: 10}) // (0,1,1)
	g.UpdatePartitions()

	place(t, g, src, 1, r3.Vec{X: -10, Y: -10, Z: -10}) // (2,2,2), not face-adjacent
	place(t, g, src, 0, r3.Vec{})                       // re-report so (1,1,1) is re-blended
	g.UpdatePartitions()

	if g.CellAt(Coord{0, 1, 1}) == nil {
		t.Fatal("emptied cell must persist")
	}
	blended := g.CellAt(Coord{1, 1, 1}).Blended
	if blended.Count != 1 || !vecNear(blended.AvgPosition, r3.Vec{}, 1e-9) {
		t.Errorf("blended = %+v, want only agent 0", blended)
	}
}

func TestGrid_MissingNeighbourContributesNothing(t *testing.T) {
	src := fakeSource{}
	g := newTestGrid(t, src)
	place(t, g, src, 0, r3.Vec{X: 2, Y: 1})
	g.UpdatePartitions()

	cell := g.CellAt(Coord{1, 1, 1})
	if cell.Blended.Count != cell.Local.Count || cell.Blended.AvgPosition != cell.Local.AvgPosition {
		t.Errorf("lone cell blend %+v should equal local %+v", cell.Blended, cell.Local)
	}
}

func TestGrid_NotifiesOnlyMembersOfDirtyCells(t *testing.T) {
	src := fakeSource{}
	g := newTestGrid(t, src)
	place(t, g, src, 0, r3.Vec{})
	place(t, g, src, 1, r3.Vec{X: -10, Y: -10, Z: -10})

	got := map[int]int{}
	for id := 0; id < 2; id++ {
		g.Subscribe(id, func(id int, _, _ FlockStats) { got[id]++ })
	}
	g.UpdatePartitions()

	place(t, g, src, 0, r3.Vec{X: 1})
	g.UpdatePartitions()

	if got[0] != 2 {
		t.Errorf("agent 0 notified %d times, want 2", got[0])
	}
	if got[1] != 1 {
		t.Errorf("agent 1 in a clean cell notified %d times, want 1", got[1])
	}
}

func TestGrid_ChangesDuringFlushDeferred(t *testing.T) {
	src := fakeSource{}
	g := newTestGrid(t, src)
	place(t, g, src, 0, r3.Vec{})
	place(t, g, src, 1, r3.Vec{X: -10, Y: -10, Z: -10})
	g.UpdatePartitions()

	moved := false
	g.Subscribe(0, func(int, FlockStats, FlockStats) {
		if moved {
			return
		}
		moved = true
		src[1] = fakeAgent{pos: r3.Vec{X: 10, Y: 10, Z: 10}}
		_ = g.MoveAgent(1, Coord{0, 0, 0})
	})

	place(t, g, src, 0, r3.Vec{X: 1})
	res := g.UpdatePartitions()
	if res.Cells != 1 {
		t.Errorf("flushed %d cells, want 1", res.Cells)
	}
	if g.DirtyCount() != 2 {
		t.Errorf("DirtyCount after flush = %d, want 2 queued for next tick", g.DirtyCount())
	}
	if c := g.CellAt(Coord{0, 0, 0}); c == nil || c.Local.Count != 0 {
		t.Error("cell dirtied during flush must not be recomputed in the same flush")
	}

	g.UpdatePartitions()
	if c := g.CellAt(Coord{0, 0, 0}); c.Local.Count != 1 {
		t.Errorf("deferred cell Count = %d after next flush, want 1", c.Local.Count)
	}
}

func TestGrid_EveryAgentInExactlyOneCell(t *testing.T) {
	src := fakeSource{}
	g, err := NewGrid(r3.Vec{}, 5, 8, src)
	if err != nil {
		t.Fatal(err)
	}
	rng := rand.New(rand.NewSource(7))
	const agents = 50

	randomPos := func() r3.Vec {
		return r3.Vec{
			X: (rng.Float64() - 0.5) * 34,
			Y: (rng.Float64() - 0.5) * 34,
			Z: (rng.Float64() - 0.5) * 34,
		}
	}

	for tick := 0; tick < 20; tick++ {
		for id := 0; id < agents; id++ {
			if tick > 0 && rng.Intn(3) != 0 {
				continue
			}
			place(t, g, src, id, randomPos())
		}
		g.UpdatePartitions()

		seen := make([]int, agents)
		g.Walk(func(c *Cell) {
			for _, id := range c.Members() {
				seen[id]++
				if rc, _ := g.CoordOfAgent(id); rc != c.Coord {
					t.Fatalf("agent %d recorded at %v but member of %v", id, rc, c.Coord)
				}
			}
		})
		for id, n := range seen {
			if n != 1 {
				t.Fatalf("tick %d: agent %d in %d cells", tick, id, n)
			}
		}
	}
}

func TestGrid_RemoveAgent(t *testing.T) {
	src := fakeSource{}
	g := newTestGrid(t, src)
	place(t, g, src, 0, r3.Vec{})
	place(t, g, src, 1, r3.Vec{X: 1})
	g.UpdatePartitions()

	calls := 0
	g.Subscribe(0, func(int, FlockStats, FlockStats) { calls++ })
	if err := g.RemoveAgent(0); err != nil {
		t.Fatalf("RemoveAgent: %v", err)
	}
	if g.DirtyCount() != 1 {
		t.Errorf("DirtyCount = %d, want 1", g.DirtyCount())
	}
	g.UpdatePartitions()

	cell := g.CellAt(Coord{1, 1, 1})
	if cell.Contains(0) || cell.Local.Count != 1 {
		t.Errorf("cell after removal: members %v, count %d", cell.Members(), cell.Local.Count)
	}
	if calls != 0 {
		t.Error("removed agent must not be notified")
	}
	if _, ok := g.CoordOfAgent(0); ok {
		t.Error("removed agent still has a coordinate")
	}
}

func TestGrid_StaticAvoidancePoints(t *testing.T) {
	src := fakeSource{}
	g := newTestGrid(t, src)

	if err := g.AddAvoidancePoint(r3.Vec{X: 1}, false); err != nil {
		t.Fatalf("dynamic point: %v", err)
	}
	if g.CellCount() != 0 {
		t.Error("dynamic point must not allocate a cell")
	}

	if err := g.AddAvoidancePoint(r3.Vec{X: 1}, true); err != nil {
		t.Fatalf("static point: %v", err)
	}
	if g.CellCount() != 1 || g.DirtyCount() != 1 {
		t.Fatalf("static point should create one dirty cell, got %d cells, %d dirty", g.CellCount(), g.DirtyCount())
	}
	if err := g.AddAvoidancePoint(r3.Vec{X: 100}, true); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("expected ErrOutOfRange for point outside grid, got %v", err)
	}

	place(t, g, src, 0, r3.Vec{X: 10}) // neighbour (0,1,1)
	g.UpdatePartitions()

	local := g.CellAt(Coord{1, 1, 1}).Local
	if local.Count != 0 || local.StaticPoints() != 1 {
		t.Errorf("static-only cell local = %+v", local)
	}
	blended := g.CellAt(Coord{0, 1, 1}).Blended
	if blended.Count != 1 || len(blended.Points) != 2 || blended.StaticPoints() != 1 {
		t.Errorf("neighbour blend should carry the static point: %+v", blended)
	}
}

func TestGrid_SetOrigin(t *testing.T) {
	src := fakeSource{}
	g := newTestGrid(t, src)
	if err := g.AddAvoidancePoint(r3.Vec{}, true); err != nil {
		t.Fatal(err)
	}
	if err := g.AddAvoidancePoint(r3.Vec{X: -10}, true); err != nil {
		t.Fatal(err)
	}
	g.UpdatePartitions()

	dropped := g.SetOrigin(r3.Vec{X: 10})
	if dropped != 1 {
		t.Errorf("dropped = %d, want 1", dropped)
	}
	if g.StaticPointCount() != 1 {
		t.Errorf("StaticPointCount = %d, want 1", g.StaticPointCount())
	}
	g.UpdatePartitions()

	if n := len(g.CellAt(Coord{1, 1, 1}).StaticPoints()); n != 0 {
		t.Errorf("old centre cell still holds %d static points", n)
	}
	if c := g.CellAt(Coord{2, 1, 1}); c == nil || c.Local.StaticPoints() != 1 {
		t.Error("point at world origin should now live in (2,1,1)")
	}
}

func BenchmarkGrid_UpdatePartitions(b *testing.B) {
	src := fakeSource{}
	g, _ := NewGrid(r3.Vec{}, 5, 32, src)
	rng := rand.New(rand.NewSource(1))
	for id := 0; id < 2000; id++ {
		p := r3.Vec{X: (rng.Float64() - 0.5) * 150, Y: (rng.Float64() - 0.5) * 150, Z: (rng.Float64() - 0.5) * 150}
		src[id] = fakeAgent{pos: p}
		c, _ := g.CoordinateOf(p)
		_ = g.MoveAgent(id, c)
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		for id := 0; id < 200; id++ {
			c, _ := g.CoordOfAgent(id)
			_ = g.MoveAgent(id, c)
		}
		g.UpdatePartitions()
	}
}
