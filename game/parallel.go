package game

import (
	"sync"

	"github.com/mlange-42/ark/ecs"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/flock/systems"
)

// parallelThreshold is the minimum agent count to use parallel processing.
// Below this, single-threaded is faster due to goroutine overhead.
const parallelThreshold = 64

// agentSnapshot captures read-only state for parallel processing.
type agentSnapshot struct {
	Entity       ecs.Entity
	ID           int
	Pos          r3.Vec
	Vel          r3.Vec
	TargetVel    r3.Vec
	Params       *systems.SteeringParams
	LastReported r3.Vec
	Threshold    float64
	Placed       bool
}

// intent captures computed outputs to apply after the parallel phase.
type intent struct {
	NewPos r3.Vec
	NewVel r3.Vec

	// Report is set when the agent moved far enough to re-evaluate its cell.
	Report   bool
	Coord    systems.Coord
	CoordErr error
}

// workChunk represents a range of agents for a worker to process.
type workChunk struct {
	start, end int
	dt         float64
}

// parallelState holds resources for parallel recompute.
type parallelState struct {
	snapshots  []agentSnapshot
	intents    []intent
	numWorkers int

	// Worker pool channels
	workChan chan workChunk // sends work to workers
	doneChan chan struct{}  // workers signal completion
	stopChan chan struct{}  // signals workers to exit
	wg       sync.WaitGroup // tracks active workers
	running  bool           // true if workers are running
}

func newParallelState(numWorkers int) *parallelState {
	if numWorkers < 1 {
		numWorkers = 1
	}
	return &parallelState{
		numWorkers: numWorkers,
		snapshots:  make([]agentSnapshot, 0, 512),
		intents:    make([]intent, 0, 512),
	}
}

// startWorkers launches persistent worker goroutines.
func (p *parallelState) startWorkers(g *Game) {
	if p.running {
		return
	}

	p.workChan = make(chan workChunk, p.numWorkers)
	p.doneChan = make(chan struct{}, p.numWorkers)
	p.stopChan = make(chan struct{})
	p.running = true

	for i := 0; i < p.numWorkers; i++ {
		p.wg.Add(1)
		go p.worker(g)
	}
}

// stopWorkers signals all workers to exit and waits for them.
func (p *parallelState) stopWorkers() {
	if !p.running {
		return
	}

	close(p.stopChan)
	p.wg.Wait()
	close(p.workChan)
	close(p.doneChan)
	p.running = false
}

// worker runs in a goroutine, processing chunks until stopped.
func (p *parallelState) worker(g *Game) {
	defer p.wg.Done()

	for {
		select {
		case <-p.stopChan:
			return
		case chunk, ok := <-p.workChan:
			if !ok {
				return
			}
			g.computeChunk(chunk.start, chunk.end, chunk.dt)
			p.doneChan <- struct{}{}
		}
	}
}

// buildSnapshots copies agent state into the snapshot buffer in id order.
func (g *Game) buildSnapshots() {
	p := g.parallel
	p.snapshots = p.snapshots[:0]

	for id, ok := range g.occupied {
		if !ok {
			continue
		}
		e := g.slots[id]
		kin := g.kinMap.Get(e)
		steer := g.steerMap.Get(e)
		mem := g.memMap.Get(e)

		p.snapshots = append(p.snapshots, agentSnapshot{
			Entity:       e,
			ID:           id,
			Pos:          kin.Position,
			Vel:          kin.Velocity,
			TargetVel:    kin.TargetVelocity,
			Params:       steer.Params,
			LastReported: mem.LastReported,
			Threshold:    mem.ReportThreshold,
			Placed:       mem.Placed,
		})
	}

	if cap(p.intents) < len(p.snapshots) {
		p.intents = make([]intent, len(p.snapshots))
	}
	p.intents = p.intents[:len(p.snapshots)]
}

// recompute runs computeChunk over all snapshots, in parallel when the
// population is large enough. It returns once every chunk is done.
func (g *Game) recompute(dt float64) {
	n := len(g.parallel.snapshots)
	if n == 0 {
		return
	}
	if n < parallelThreshold || g.parallel.numWorkers == 1 {
		g.computeChunk(0, n, dt)
		return
	}
	g.computeParallel(n, dt)
}

// computeParallel dispatches work to the worker pool.
func (g *Game) computeParallel(n int, dt float64) {
	// Ensure workers are running
	if !g.parallel.running {
		g.parallel.startWorkers(g)
	}

	numWorkers := g.parallel.numWorkers
	chunkSize := (n + numWorkers - 1) / numWorkers

	// Dispatch chunks to workers
	chunksDispatched := 0
	for w := 0; w < numWorkers; w++ {
		start := w * chunkSize
		end := start + chunkSize
		if end > n {
			end = n
		}
		if start >= end {
			continue
		}

		g.parallel.workChan <- workChunk{start: start, end: end, dt: dt}
		chunksDispatched++
	}

	// Wait for all chunks to complete
	for i := 0; i < chunksDispatched; i++ {
		<-g.parallel.doneChan
	}
}

// computeChunk processes a range of agents for a single worker.
// It reads snapshots and grid geometry and writes only its own intents.
// Agents steer toward the target velocity set at their last push.
func (g *Game) computeChunk(i0, i1 int, dt float64) {
	for i := i0; i < i1; i++ {
		snap := &g.parallel.snapshots[i]
		in := &g.parallel.intents[i]

		newPos, newVel := systems.Integrate(snap.Pos, snap.Vel, snap.TargetVel, snap.Params, dt)

		in.NewPos = newPos
		in.NewVel = newVel
		in.Report = !snap.Placed || r3.Norm(r3.Sub(newPos, snap.LastReported)) >= snap.Threshold
		if in.Report {
			in.Coord, in.CoordErr = g.grid.CoordinateOf(newPos)
		} else {
			in.Coord, in.CoordErr = systems.OutOfRange, nil
		}
	}
}

// applyIntents writes computed results back to ECS components and applies
// membership moves in agent id order.
func (g *Game) applyIntents() {
	for i := range g.parallel.snapshots {
		snap := &g.parallel.snapshots[i]
		in := &g.parallel.intents[i]

		kin := g.kinMap.Get(snap.Entity)
		kin.Position = in.NewPos
		kin.Velocity = in.NewVel

		if in.Report {
			_ = g.place(snap.ID, g.memMap.Get(snap.Entity), in.NewPos, in.Coord, in.CoordErr)
		}
	}
}

// stopParallelWorkers should be called when shutting down the game.
func (g *Game) stopParallelWorkers() {
	if g.parallel != nil {
		g.parallel.stopWorkers()
	}
}
