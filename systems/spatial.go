// Package systems implements the flock core: the partition grid, its
// incremental statistics flush, steering and motion integration.
package systems

import (
	"fmt"
	"log/slog"

	"github.com/bits-and-blooms/bitset"
	"gonum.org/v1/gonum/spatial/r3"
)

// AgentSource gives the grid read access to agent kinematics.
// The grid stores only membership; positions and velocities live with the caller.
type AgentSource interface {
	AgentState(id int) (position, velocity r3.Vec, ok bool)
}

// StatsFunc receives a cell's local and neighbour-blended stats for one member agent.
type StatsFunc func(id int, local, blended FlockStats)

// FlushResult summarises one UpdatePartitions call.
type FlushResult struct {
	Cells         int // dirty cells recomputed
	Notifications int // subscriber callbacks invoked
}

// Grid is a uniform dim³ partition of space centred on origin.
// Cells live in a flat arena and are created lazily; exists tracks which
// arena slots hold a live cell. Cells are never destroyed.
type Grid struct {
	origin   r3.Vec
	cellSize float64
	dim      int

	cells  []Cell
	exists *bitset.BitSet
	live   int

	// dirty has set semantics; dirtyList keeps insertion order for the flush.
	dirty     *bitset.BitSet
	dirtyList []int
	flushList []int

	agentCoord []Coord // agent id -> current coordinate, OutOfRange when unplaced
	subs       []StatsFunc

	statics []r3.Vec // every static point, kept for re-bucketing on SetOrigin

	source AgentSource
	logger *slog.Logger
}

// NewGrid creates an empty grid. cellSize must be positive and dim at least 1.
func NewGrid(origin r3.Vec, cellSize float64, dim int, source AgentSource) (*Grid, error) {
	if cellSize <= 0 {
		return nil, fmt.Errorf("cell size must be positive, got %v", cellSize)
	}
	if dim < 1 {
		return nil, fmt.Errorf("grid dimension must be at least 1, got %d", dim)
	}
	n := dim * dim * dim
	return &Grid{
		origin:    origin,
		cellSize:  cellSize,
		dim:       dim,
		cells:     make([]Cell, n),
		exists:    bitset.New(uint(n)),
		dirty:     bitset.New(uint(n)),
		dirtyList: make([]int, 0, 64),
		flushList: make([]int, 0, 64),
		source:    source,
		logger:    slog.Default(),
	}, nil
}

// SetLogger replaces the logger used for invariant violations.
func (g *Grid) SetLogger(l *slog.Logger) {
	if l != nil {
		g.logger = l
	}
}

// Origin returns the world position of the centre cell.
func (g *Grid) Origin() r3.Vec { return g.origin }

// CellSize returns the edge length of one cell.
func (g *Grid) CellSize() float64 { return g.cellSize }

// Dimension returns the number of cells along each axis.
func (g *Grid) Dimension() int { return g.dim }

// CellCount returns how many cells have been allocated.
func (g *Grid) CellCount() int { return g.live }

// DirtyCount returns how many cells are queued for the next flush.
func (g *Grid) DirtyCount() int { return len(g.dirtyList) }

// CoordinateOf maps a position against this grid's origin and cell size.
func (g *Grid) CoordinateOf(position r3.Vec) (Coord, error) {
	return CoordinateOf(position, g.origin, g.cellSize, g.dim)
}

// ClampedCoordinateOf maps a position, clamping out-of-range axes into the grid.
func (g *Grid) ClampedCoordinateOf(position r3.Vec) Coord {
	return ClampedCoordinateOf(position, g.origin, g.cellSize, g.dim)
}

// index flattens an in-bounds coordinate.
func (g *Grid) index(c Coord) int {
	return (c.X*g.dim+c.Y)*g.dim + c.Z
}

func (g *Grid) has(idx int) bool {
	return g.exists.Test(uint(idx))
}

// CellAt returns the cell at c, or nil if it is out of bounds or not yet created.
func (g *Grid) CellAt(c Coord) *Cell {
	if !c.InBounds(g.dim) {
		return nil
	}
	idx := g.index(c)
	if !g.has(idx) {
		return nil
	}
	return &g.cells[idx]
}

// ensureCell returns the cell at idx, allocating it on first use.
func (g *Grid) ensureCell(c Coord, idx int) *Cell {
	if g.has(idx) {
		return &g.cells[idx]
	}
	neighbours := make([]int, 0, len(faceOffsets))
	for _, off := range faceOffsets {
		n := Coord{X: c.X + off.X, Y: c.Y + off.Y, Z: c.Z + off.Z}
		if n.InBounds(g.dim) {
			neighbours = append(neighbours, g.index(n))
		}
	}
	g.cells[idx] = newCell(c, neighbours)
	g.exists.Set(uint(idx))
	g.live++
	return &g.cells[idx]
}

func (g *Grid) markDirty(idx int) {
	if g.dirty.Test(uint(idx)) {
		return
	}
	g.dirty.Set(uint(idx))
	g.dirtyList = append(g.dirtyList, idx)
}

// CoordOfAgent returns the agent's recorded coordinate.
// ok is false when the agent has never been placed or was removed.
func (g *Grid) CoordOfAgent(id int) (Coord, bool) {
	if id < 0 || id >= len(g.agentCoord) {
		return OutOfRange, false
	}
	c := g.agentCoord[id]
	return c, c != OutOfRange
}

func (g *Grid) growAgents(id int) {
	for len(g.agentCoord) <= id {
		g.agentCoord = append(g.agentCoord, OutOfRange)
	}
}

// MoveAgent records that agent id now belongs to cell c.
// The OutOfRange sentinel is a no-op; any other out-of-bounds coordinate is
// rejected with ErrOutOfRange. Both the old and new cells are marked dirty,
// including when they are the same cell.
func (g *Grid) MoveAgent(id int, c Coord) error {
	if id < 0 {
		return fmt.Errorf("agent %d: %w", id, ErrUnknownAgent)
	}
	if c == OutOfRange {
		return nil
	}
	if !c.InBounds(g.dim) {
		return fmt.Errorf("move agent %d to %v: %w", id, c, ErrOutOfRange)
	}
	g.growAgents(id)

	if old := g.agentCoord[id]; old != OutOfRange {
		g.detach(id, old)
	}

	idx := g.index(c)
	cell := g.ensureCell(c, idx)
	cell.members.Add(uint32(id))
	g.agentCoord[id] = c
	g.markDirty(idx)
	return nil
}

// detach removes id from the cell at old and marks it dirty.
func (g *Grid) detach(id int, old Coord) {
	idx := g.index(old)
	if !g.has(idx) {
		g.logger.Error("agent recorded in missing cell",
			"agent", id, "coord", old.String(), "error", ErrMissingCell)
		g.ensureCell(old, idx)
		g.markDirty(idx)
		return
	}
	g.cells[idx].members.Remove(uint32(id))
	g.markDirty(idx)
}

// RemoveAgent drops the agent from its cell and clears its subscription.
func (g *Grid) RemoveAgent(id int) error {
	c, ok := g.CoordOfAgent(id)
	if id >= 0 && id < len(g.subs) {
		g.subs[id] = nil
	}
	if !ok {
		return nil
	}
	g.detach(id, c)
	g.agentCoord[id] = OutOfRange
	return nil
}

// Subscribe registers fn to receive flush results for agent id.
// Passing nil clears the subscription.
func (g *Grid) Subscribe(id int, fn StatsFunc) {
	if id < 0 {
		return
	}
	for len(g.subs) <= id {
		g.subs = append(g.subs, nil)
	}
	g.subs[id] = fn
}

// AddAvoidancePoint records a static point in the cell containing it.
// Dynamic points are the members themselves and are not stored.
func (g *Grid) AddAvoidancePoint(position r3.Vec, static bool) error {
	if !static {
		return nil
	}
	c, err := g.CoordinateOf(position)
	if err != nil {
		return fmt.Errorf("avoidance point: %w", err)
	}
	g.statics = append(g.statics, position)
	g.bucketStatic(c, position)
	return nil
}

func (g *Grid) bucketStatic(c Coord, position r3.Vec) {
	idx := g.index(c)
	cell := g.ensureCell(c, idx)
	cell.statics = append(cell.statics, position)
	g.markDirty(idx)
}

// StaticPointCount returns how many static points are currently bucketed.
func (g *Grid) StaticPointCount() int {
	return len(g.statics)
}

// SetOrigin moves the grid. Static points are re-bucketed against the new
// origin and every existing cell is marked dirty; points that no longer fit
// are dropped. Agent membership is untouched: callers re-report positions.
// Returns the number of dropped static points.
func (g *Grid) SetOrigin(origin r3.Vec) int {
	g.origin = origin

	for idx, ok := g.exists.NextSet(0); ok; idx, ok = g.exists.NextSet(idx + 1) {
		g.cells[idx].statics = g.cells[idx].statics[:0]
		g.markDirty(int(idx))
	}

	kept := g.statics[:0]
	dropped := 0
	for _, p := range g.statics {
		c, err := g.CoordinateOf(p)
		if err != nil {
			dropped++
			continue
		}
		kept = append(kept, p)
		g.bucketStatic(c, p)
	}
	g.statics = kept
	return dropped
}

// UpdatePartitions flushes the cells marked dirty since the last call.
//
// Phase A recomputes local stats for every dirty cell. Phase B, which only
// starts once Phase A is complete, blends each dirty cell with its face
// neighbours. Phase C pushes the results to member agents' subscribers.
// Cells dirtied while the flush runs are queued for the next call.
func (g *Grid) UpdatePartitions() FlushResult {
	if len(g.dirtyList) == 0 {
		return FlushResult{}
	}

	batch := g.dirtyList
	g.dirtyList = g.flushList[:0]
	for _, idx := range batch {
		g.dirty.Clear(uint(idx))
	}

	for _, idx := range batch {
		g.cells[idx].recomputeLocal(g.source)
	}

	for _, idx := range batch {
		g.cells[idx].blend(g.cells, g.has)
	}

	res := FlushResult{Cells: len(batch)}
	for _, idx := range batch {
		cell := &g.cells[idx]
		for _, id := range cell.Members() {
			if id >= len(g.subs) || g.subs[id] == nil {
				continue
			}
			g.subs[id](id, cell.Local, cell.Blended)
			res.Notifications++
		}
	}

	g.flushList = batch[:0]
	return res
}

// Walk calls fn for every allocated cell in index order.
func (g *Grid) Walk(fn func(c *Cell)) {
	for idx, ok := g.exists.NextSet(0); ok; idx, ok = g.exists.NextSet(idx + 1) {
		fn(&g.cells[idx])
	}
}
