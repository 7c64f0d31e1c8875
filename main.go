package main

import (
	"flag"
	"log/slog"
	"os"
	"time"

	"github.com/pthm-cable/flock/config"
	"github.com/pthm-cable/flock/game"
)

func main() {
	// CLI flags
	configPath := flag.String("config", "", "Path to config.yaml (empty = use defaults)")
	envFile := flag.String("env-file", ".env", "Optional dotenv file with FLOCK_* overrides")
	logStats := flag.Bool("log-stats", false, "Output stats via slog")
	statsWindow := flag.Float64("stats-window", 0, "Stats window size in seconds (0 = use config)")
	snapshotDir := flag.String("snapshot-dir", "", "Directory for snapshot files")
	outputDir := flag.String("output-dir", "", "Output directory for CSV logs and config snapshot")
	seed := flag.Int64("seed", 0, "RNG seed (0 = time-based)")
	maxTicks := flag.Int("max-ticks", 0, "Stop after N ticks (0 = unlimited)")
	workers := flag.Int("workers", 0, "Recompute workers (0 = config, then GOMAXPROCS)")

	flag.Parse()

	// Set up slog (JSON to stdout for structured logging)
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	if err := config.LoadDotEnv(*envFile); err != nil {
		slog.Error("failed to load env file", "error", err)
		os.Exit(1)
	}

	// Initialize config before anything else
	if err := config.Init(*configPath); err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	cfg := config.Cfg()

	rngSeed := *seed
	if rngSeed == 0 {
		rngSeed = time.Now().UnixNano()
	}

	opts := game.Options{
		Seed:           rngSeed,
		LogStats:       *logStats,
		StatsWindowSec: *statsWindow,
		SnapshotDir:    *snapshotDir,
		OutputDir:      *outputDir,
		Workers:        *workers,
	}

	g, err := game.New(cfg, opts)
	if err != nil {
		slog.Error("failed to create simulation", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := g.Close(); err != nil {
			slog.Error("failed to close simulation", "error", err)
		}
	}()

	slog.Info("starting headless simulation",
		"seed", rngSeed,
		"run_id", g.RunID(),
		"agents", g.AgentCount(),
		"max_ticks", *maxTicks,
	)

	for {
		g.Step()

		if *maxTicks > 0 && int(g.TickCount()) >= *maxTicks {
			slog.Info("max ticks reached", "tick", g.TickCount(), "sim_time", g.SimTime())
			return
		}
	}
}
