package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/gocarina/gocsv"
	"gonum.org/v1/gonum/optimize"

	"github.com/pthm-cable/flock/config"
	"github.com/pthm-cable/flock/telemetry"
)

func main() {
	configPath := flag.String("config", "", "Base config YAML file (empty = use defaults)")
	maxTicks := flag.Int("max-ticks", 3600, "Simulation duration per run in ticks")
	seeds := flag.Int("seeds", 3, "Number of seeds per evaluation")
	maxEvals := flag.Int("max-evals", 200, "Maximum number of evaluations")
	population := flag.Int("population", 0, "CMA-ES population size (0 = auto)")
	outputDir := flag.String("output", "", "Output directory for results")
	flag.Parse()

	if *outputDir == "" {
		log.Fatal("--output is required")
	}
	if err := os.MkdirAll(*outputDir, 0755); err != nil {
		log.Fatalf("failed to create output directory: %v", err)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	params := NewParamVector()
	evalSeeds := make([]int64, *seeds)
	for i := range evalSeeds {
		evalSeeds[i] = int64(i*1000 + 42)
	}
	evaluator := NewFitnessEvaluator(params, int32(*maxTicks), evalSeeds, cfg)

	logFile, err := os.Create(filepath.Join(*outputDir, "tune_log.csv"))
	if err != nil {
		log.Fatalf("failed to create log file: %v", err)
	}
	defer logFile.Close()

	prog, err := newProgress(params, *maxEvals, logFile, os.Stdout)
	if err != nil {
		log.Fatal(err)
	}

	// CMA-ES works in normalised space, starting from the loaded config.
	dim := params.Dim()
	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			raw := params.Clamp(params.Denormalize(x))
			fitness := evaluator.Evaluate(raw)
			prog.observe(raw, fitness, evaluator.LastQuality())
			return fitness
		},
	}
	settings := &optimize.Settings{
		FuncEvaluations: *maxEvals,
		Concurrent:      0, // sequential; seeds already run in parallel
	}
	popSize := *population
	if popSize == 0 {
		popSize = 4 + int(3.0*float64(dim)/2.0)
	}
	method := &optimize.CmaEsChol{
		InitStepSize: 0.3,
		Population:   popSize,
	}

	fmt.Printf("Starting CMA-ES tuning with %d parameters, population=%d, max_evals=%d\n", dim, popSize, *maxEvals)
	fmt.Printf("Seeds per evaluation: %d, ticks per run: %d\n", *seeds, *maxTicks)

	if _, err := optimize.Minimize(problem, params.Normalize(params.ExtractFromConfig(cfg)), settings, method); err != nil {
		log.Printf("optimization ended: %v", err)
	}
	if prog.bestParams == nil {
		log.Fatal("no evaluations completed")
	}

	fmt.Printf("\nTuning complete after %d evaluations in %s\n", prog.evals, formatDuration(time.Since(prog.start)))
	fmt.Printf("Best quality: %.4f\n", -prog.bestFitness)
	fmt.Println("\nBest parameters:")
	for i, spec := range params.Specs {
		fmt.Printf("  %s (%s): %.6f\n", spec.Name, spec.Path, prog.bestParams[i])
	}

	best := *cfg
	params.ApplyToConfig(&best, prog.bestParams)
	if err := best.WriteYAML(filepath.Join(*outputDir, "best_config.yaml")); err != nil {
		log.Printf("failed to write best config: %v", err)
	}

	if windows := evaluator.BestWindows(); len(windows) > 0 {
		if err := writeWindows(filepath.Join(*outputDir, "best_windows.csv"), windows); err != nil {
			log.Printf("failed to write best windows: %v", err)
		}
	}
	fmt.Printf("\nResults saved to %s\n", *outputDir)
}

// writeWindows saves the window stats of the best run as CSV.
func writeWindows(path string, windows []telemetry.WindowStats) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return gocsv.MarshalFile(windows, f)
}
