package main

import (
	"math"
	"sync"

	"gonum.org/v1/gonum/stat"

	"github.com/pthm-cable/flock/config"
	"github.com/pthm-cable/flock/game"
	"github.com/pthm-cable/flock/telemetry"
)

// FitnessEvaluator runs headless simulations and computes fitness.
type FitnessEvaluator struct {
	params      *ParamVector
	maxTicks    int32
	seeds       []int64
	baseConfig  *config.Config
	statsWindow float64

	// Best run tracking
	mu          sync.Mutex
	bestFitness float64
	bestWindows []telemetry.WindowStats
	lastQuality float64 // quality from most recent Evaluate call
}

// NewFitnessEvaluator creates a new evaluator.
func NewFitnessEvaluator(params *ParamVector, maxTicks int32, seeds []int64, baseCfg *config.Config) *FitnessEvaluator {
	return &FitnessEvaluator{
		params:      params,
		maxTicks:    maxTicks,
		seeds:       seeds,
		baseConfig:  baseCfg,
		statsWindow: 5.0,
		bestFitness: math.Inf(1),
	}
}

// BestWindows returns the window stats of the best seed from the best evaluation.
func (fe *FitnessEvaluator) BestWindows() []telemetry.WindowStats {
	fe.mu.Lock()
	defer fe.mu.Unlock()
	return fe.bestWindows
}

// LastQuality returns the quality score from the most recent evaluation.
func (fe *FitnessEvaluator) LastQuality() float64 {
	fe.mu.Lock()
	defer fe.mu.Unlock()
	return fe.lastQuality
}

// seedResult holds the result from one seed evaluation.
type seedResult struct {
	quality float64
	windows []telemetry.WindowStats
}

// Evaluate computes fitness for a parameter vector (lower = better).
// Fitness is the negated mean flock quality across seeds.
func (fe *FitnessEvaluator) Evaluate(x []float64) float64 {
	cfg := fe.copyConfig()
	fe.params.ApplyToConfig(cfg, x)

	// Run all seeds in parallel
	results := make([]seedResult, len(fe.seeds))
	var wg sync.WaitGroup

	for i, seed := range fe.seeds {
		wg.Add(1)
		go func(idx int, s int64) {
			defer wg.Done()
			windows := fe.runSimulation(cfg, s)
			results[idx] = seedResult{
				quality: computeQuality(windows, cfg),
				windows: windows,
			}
		}(i, seed)
	}
	wg.Wait()

	var totalQuality float64
	best := -1.0
	var bestSeedWindows []telemetry.WindowStats
	for _, r := range results {
		totalQuality += r.quality
		if r.quality > best {
			best = r.quality
			bestSeedWindows = r.windows
		}
	}

	avgQuality := totalQuality / float64(len(fe.seeds))
	fitness := -avgQuality

	fe.mu.Lock()
	if fitness < fe.bestFitness {
		fe.bestFitness = fitness
		fe.bestWindows = bestSeedWindows
	}
	fe.lastQuality = avgQuality
	fe.mu.Unlock()

	return fitness
}

// runSimulation executes a single headless run and returns its windows.
// cfg is shared between seeds and must not be modified.
func (fe *FitnessEvaluator) runSimulation(cfg *config.Config, seed int64) []telemetry.WindowStats {
	var windows []telemetry.WindowStats

	g, err := game.New(cfg, game.Options{
		Seed:           seed,
		StatsWindowSec: fe.statsWindow,
		Workers:        1, // seeds already run in parallel
		StatsCallback: func(stats telemetry.WindowStats) {
			windows = append(windows, stats)
		},
	})
	if err != nil {
		return nil
	}
	defer g.Close()

	for g.TickCount() < fe.maxTicks {
		g.Step()
	}
	return windows
}

// copyConfig creates a copy of the base config. Config holds only value
// fields, so a struct copy is deep.
func (fe *FitnessEvaluator) copyConfig() *config.Config {
	cfg := *fe.baseConfig
	return &cfg
}

// Quality component weights.
const (
	qualityWeightCohesion    = 0.35
	qualityWeightTracking    = 0.30
	qualityWeightContainment = 0.20
	qualityWeightStability   = 0.15

	qualityWarmupWindows = 2  // skip first N windows (warmup)
	qualityMinAgents     = 10 // exclude windows with fewer agents
	cohesionScale        = 6.0
)

// computeQuality scores flock behaviour in [0, 1] from window stats.
func computeQuality(windows []telemetry.WindowStats, cfg *config.Config) float64 {
	if len(windows) <= qualityWarmupWindows {
		return 0
	}
	valid := windows[qualityWarmupWindows:]

	trackScale := cfg.Derived.HalfExtent / 2
	tracking := cfg.Target.Enabled && trackScale > 0

	var cohesionSum, trackSum, containSum float64
	neighbours := make([]float64, 0, len(valid))

	for _, w := range valid {
		if w.Agents < qualityMinAgents {
			continue
		}
		neighbours = append(neighbours, w.NeighbourMean)

		// 1. Agents see neighbours
		cohesionSum += 1 - math.Exp(-w.NeighbourMean/cohesionScale)

		// 2. Flock stays near the target
		if tracking {
			d := w.TargetDist / trackScale
			trackSum += math.Exp(-d * d)
		} else {
			trackSum++
		}

		// 3. Agents stay inside the grid
		containSum += math.Exp(-float64(w.OutOfRange) / float64(w.Agents))
	}

	n := float64(len(neighbours))
	if n == 0 {
		return 0
	}

	// 4. Neighbour counts are steady across windows
	stability := 0.0
	if len(neighbours) >= 2 {
		c := cv(neighbours)
		stability = math.Exp(-c * c)
	}

	quality := qualityWeightCohesion*cohesionSum/n +
		qualityWeightTracking*trackSum/n +
		qualityWeightContainment*containSum/n +
		qualityWeightStability*stability

	return clamp01(quality)
}

// cv computes the coefficient of variation (std/mean) for a slice of values.
func cv(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	mean, std := stat.PopMeanStdDev(values, nil)
	if mean == 0 {
		return 0
	}
	return std / mean
}

// clamp01 clamps x to [0, 1].
func clamp01(x float64) float64 {
	return min(max(x, 0), 1)
}
