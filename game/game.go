// Package game runs the flock simulation: an ECS world of agents, the
// partition grid they report into, and the per-tick recompute, commit and
// flush phases.
package game

import (
	"fmt"
	"log/slog"
	"math/rand"
	"runtime"
	"time"

	"github.com/mlange-42/ark/ecs"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/flock/components"
	"github.com/pthm-cable/flock/config"
	"github.com/pthm-cable/flock/systems"
	"github.com/pthm-cable/flock/telemetry"
)

// Options configures a Game beyond what the config file holds.
type Options struct {
	Seed           int64
	LogStats       bool    // log window and perf stats via slog
	StatsWindowSec float64 // 0 = use config
	SnapshotDir    string  // write a snapshot when a bookmark fires
	OutputDir      string  // CSV telemetry output, empty disables
	Workers        int     // 0 = config, then GOMAXPROCS

	// SkipPopulation leaves the world empty instead of spawning
	// population.initial agents.
	SkipPopulation bool

	// Registerer receives the Prometheus metrics. Nil disables metrics.
	Registerer prometheus.Registerer

	// StatsCallback is called with each completed stats window.
	StatsCallback func(telemetry.WindowStats)
}

// Game holds the complete simulation state.
// It is not safe for concurrent use; hosts serialise calls.
type Game struct {
	cfg  *config.Config
	rng  *rand.Rand
	seed int64

	world *ecs.World

	agentMapper *ecs.Map4[
		components.Kinematics,
		components.Steering,
		components.Membership,
		components.FlockCache,
	]
	agentFilter *ecs.Filter4[
		components.Kinematics,
		components.Steering,
		components.Membership,
		components.FlockCache,
	]

	kinMap   *ecs.Map[components.Kinematics]
	steerMap *ecs.Map[components.Steering]
	memMap   *ecs.Map[components.Membership]
	cacheMap *ecs.Map[components.FlockCache]

	// Slot table: agent id -> entity. free is a stack of unused ids.
	slots    []ecs.Entity
	occupied []bool
	free     []int
	count    int

	// External statistics observers, indexed by agent id.
	observers []systems.StatsFunc

	grid   *systems.Grid
	params *systems.SteeringParams
	target *systems.MovingTarget

	parallel *parallelState

	// Telemetry
	collector        *telemetry.Collector
	perfCollector    *telemetry.PerfCollector
	outputManager    *telemetry.OutputManager
	bookmarkDetector *telemetry.BookmarkDetector
	metrics          *telemetry.Metrics
	statsCallback    func(telemetry.WindowStats)
	logStats         bool
	snapshotDir      string

	oorLimiter    *rate.Limiter
	oorSuppressed int

	tick    int32
	simTime float64
}

// New creates a game from cfg. Unless opts.SkipPopulation is set, the
// initial population is spawned around the grid origin.
func New(cfg *config.Config, opts Options) (*Game, error) {
	if cfg == nil {
		return nil, fmt.Errorf("game: nil config")
	}

	world := ecs.NewWorld()

	g := &Game{
		cfg:   cfg,
		rng:   rand.New(rand.NewSource(opts.Seed)),
		seed:  opts.Seed,
		world: world,
		agentMapper: ecs.NewMap4[
			components.Kinematics,
			components.Steering,
			components.Membership,
			components.FlockCache,
		](world),
		agentFilter: ecs.NewFilter4[
			components.Kinematics,
			components.Steering,
			components.Membership,
			components.FlockCache,
		](world),
		kinMap:        ecs.NewMap[components.Kinematics](world),
		steerMap:      ecs.NewMap[components.Steering](world),
		memMap:        ecs.NewMap[components.Membership](world),
		cacheMap:      ecs.NewMap[components.FlockCache](world),
		slots:         make([]ecs.Entity, cfg.Population.Capacity),
		occupied:      make([]bool, cfg.Population.Capacity),
		free:          make([]int, 0, cfg.Population.Capacity),
		observers:     make([]systems.StatsFunc, cfg.Population.Capacity),
		statsCallback: opts.StatsCallback,
		logStats:      opts.LogStats,
		snapshotDir:   opts.SnapshotDir,
	}

	// Pop order hands out the lowest free id first.
	for id := cfg.Population.Capacity - 1; id >= 0; id-- {
		g.free = append(g.free, id)
	}

	grid, err := systems.NewGrid(cfg.Grid.Origin.R3(), cfg.Grid.CellSize, cfg.Grid.Dimension, g)
	if err != nil {
		return nil, fmt.Errorf("creating grid: %w", err)
	}
	grid.SetLogger(slog.Default().With("component", "grid"))
	g.grid = grid

	g.params = steeringParams(cfg)
	if cfg.Target.Enabled {
		g.target = &systems.MovingTarget{}
		g.target.Set(cfg.Target.Position.R3())
		g.params.Target = g.target
	}

	workers := opts.Workers
	if workers <= 0 {
		workers = cfg.Physics.Workers
	}
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	g.parallel = newParallelState(workers)

	windowSec := cfg.Telemetry.StatsWindow
	if opts.StatsWindowSec > 0 {
		windowSec = opts.StatsWindowSec
	}
	g.collector = telemetry.NewCollector(windowSec, cfg.Physics.DT)
	g.perfCollector = telemetry.NewPerfCollector(cfg.Telemetry.PerfCollectorWindow)
	g.bookmarkDetector = telemetry.NewBookmarkDetector(10)
	g.oorLimiter = rate.NewLimiter(rate.Limit(cfg.Telemetry.OutOfRangeLogRate), 1)

	if opts.Registerer != nil {
		g.metrics = telemetry.NewMetrics(opts.Registerer)
	}

	om, err := telemetry.NewOutputManager(opts.OutputDir)
	if err != nil {
		return nil, fmt.Errorf("creating output manager: %w", err)
	}
	g.outputManager = om
	if err := om.WriteConfig(cfg); err != nil {
		om.Close()
		return nil, fmt.Errorf("writing config snapshot: %w", err)
	}

	if cfg.Terrain.BoundaryPoints {
		g.addBoundaryPoints()
	}
	if !opts.SkipPopulation {
		g.spawnInitialPopulation()
	}

	return g, nil
}

// steeringParams builds the shared steering parameters from config.
func steeringParams(cfg *config.Config) *systems.SteeringParams {
	b := cfg.Boid
	return &systems.SteeringParams{
		MaxSpeed:             b.MaxSpeed,
		TurnRate:             b.TurnRate,
		Acceleration:         b.Acceleration,
		SeparationDistance:   b.SeparationDistance,
		TerrainAvoidDistance: b.TerrainAvoidDistance,
		TargetWeight:         b.Weights.Target,
		SeparationWeight:     b.Weights.Separation,
		CohesionWeight:       b.Weights.Cohesion,
		AlignmentWeight:      b.Weights.Alignment,
		AvoidTerrainWeight:   b.Weights.AvoidTerrain,
	}
}

// DefaultParams returns the steering parameters shared by spawned agents.
// Callers may copy and modify them for RegisterAgent.
func (g *Game) DefaultParams() *systems.SteeringParams {
	return g.params
}

// Target returns the seek target, or nil when targeting is disabled.
func (g *Game) Target() *systems.MovingTarget {
	return g.target
}

// Grid exposes the partition grid for inspection.
func (g *Game) Grid() *systems.Grid {
	return g.grid
}

// Config returns the game's configuration.
func (g *Game) Config() *config.Config {
	return g.cfg
}

// TickCount returns the number of completed ticks.
func (g *Game) TickCount() int32 {
	return g.tick
}

// SimTime returns the accumulated simulation time in seconds.
func (g *Game) SimTime() float64 {
	return g.simTime
}

// AgentCount returns the number of registered agents.
func (g *Game) AgentCount() int {
	return g.count
}

// Capacity returns the maximum number of concurrently registered agents.
func (g *Game) Capacity() int {
	return len(g.slots)
}

// RunID returns the output run identifier, empty when output is disabled.
func (g *Game) RunID() string {
	return g.outputManager.RunID()
}

// PerfStats returns timing stats over the perf collector window.
func (g *Game) PerfStats() telemetry.PerfStats {
	return g.perfCollector.Stats()
}

// Close stops the worker pool and closes output files.
func (g *Game) Close() error {
	g.stopParallelWorkers()
	return g.outputManager.Close()
}

// AgentInfo is a read-only view of one agent.
type AgentInfo struct {
	ID             int
	Position       r3.Vec
	Velocity       r3.Vec
	TargetVelocity r3.Vec
	Cell           systems.Coord
	Placed         bool
	Local          systems.FlockStats
	Blended        systems.FlockStats
}

// Agent returns a snapshot of agent id.
func (g *Game) Agent(id int) (AgentInfo, error) {
	e, err := g.entity(id)
	if err != nil {
		return AgentInfo{}, err
	}
	kin := g.kinMap.Get(e)
	mem := g.memMap.Get(e)
	cache := g.cacheMap.Get(e)

	cell, _ := g.grid.CoordOfAgent(id)
	return AgentInfo{
		ID:             id,
		Position:       kin.Position,
		Velocity:       kin.Velocity,
		TargetVelocity: kin.TargetVelocity,
		Cell:           cell,
		Placed:         mem.Placed,
		Local:          cache.Local,
		Blended:        cache.Blended,
	}, nil
}

// observeTick records tick timing for metrics.
func (g *Game) observeTick(start time.Time) {
	g.metrics.ObserveTick(time.Since(start))
	g.metrics.SetPopulation(g.count, g.grid.CellCount(), g.grid.DirtyCount())
}
