// Command flockd runs a flock simulation as an HTTP service. Agents are
// registered and moved through the JSON API; Prometheus metrics are served
// on /metrics.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/pthm-cable/flock/config"
	"github.com/pthm-cable/flock/game"
	"github.com/pthm-cable/flock/server"
)

func main() {
	configPath := flag.String("config", "", "Path to config.yaml (empty = use defaults)")
	envFile := flag.String("env-file", ".env", "Optional dotenv file with FLOCK_* overrides")
	addr := flag.String("addr", "", "Listen address (empty = use config)")
	seed := flag.Int64("seed", 0, "RNG seed (0 = time-based)")
	outputDir := flag.String("output-dir", "", "Output directory for CSV logs and config snapshot")
	logStats := flag.Bool("log-stats", false, "Output stats via slog")
	corsOrigins := flag.String("cors-origins", "", "Comma-separated allowed CORS origins (empty = localhost)")
	flag.Parse()

	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	if err := run(*configPath, *envFile, *addr, *seed, *outputDir, *logStats, *corsOrigins); err != nil {
		slog.Error("flockd failed", "error", err)
		os.Exit(1)
	}
}

func run(configPath, envFile, addr string, seed int64, outputDir string, logStats bool, corsOrigins string) error {
	if err := config.LoadDotEnv(envFile); err != nil {
		return err
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if addr == "" {
		addr = cfg.Server.Addr
	}
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	host, err := server.New(cfg, game.Options{
		Seed:      seed,
		LogStats:  logStats,
		OutputDir: outputDir,
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := host.Close(); err != nil {
			slog.Error("failed to close simulation", "error", err)
		}
	}()

	var rc server.RouterConfig
	if corsOrigins != "" {
		rc.CORSOrigins = strings.Split(corsOrigins, ",")
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           host.Router(rc),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("listening", "addr", addr, "seed", seed)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	loopDone := make(chan error, 1)
	go func() { loopDone <- host.Run(ctx) }()

	select {
	case err := <-serveErr:
		stop()
		<-loopDone
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("http shutdown", "error", err)
	}
	return <-loopDone
}
