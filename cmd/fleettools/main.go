// Command fleettools runs the FleetTools coordination engine: the
// event-sourced state machine that persists the fleet event log, maintains
// derived projections, enforces file reservations, drives the
// Sortie/Mission lifecycle, and produces checkpoints. There is no HTTP
// listener here — wiring the External API Surface (pkg/api) to a transport
// is explicitly out of scope; this binary only runs the engine and its
// background tickers.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/fleettools/coordinator/pkg/config"
	"github.com/fleettools/coordinator/pkg/fleetcore"
	"github.com/fleettools/coordinator/pkg/version"
)

const defaultShutdownTimeout = 10 * time.Second

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func main() {
	configDir := flag.String("config-dir", getEnv("CONFIG_DIR", "./deploy/config"), "Path to configuration directory")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	envPath := filepath.Join(*configDir, ".env")
	if err := godotenv.Load(envPath); err != nil {
		slog.Warn("could not load .env file, continuing with existing environment", "path", envPath, "error", err)
	} else {
		slog.Info("loaded environment file", "path", envPath)
	}

	cfg, err := config.LoadFromEnv()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	core, err := fleetcore.New(ctx, cfg)
	if err != nil {
		slog.Error("failed to initialize coordination engine", "error", err)
		os.Exit(1)
	}

	slog.Info("fleettools coordination engine starting",
		"version", version.Full(), "state_dir", cfg.StateDir,
		"db_host", cfg.Database.Host, "db_name", cfg.Database.Database)

	runErr := core.Run(ctx)

	closeCtx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
	defer cancel()
	if err := core.Close(closeCtx); err != nil {
		slog.Error("error during shutdown", "error", err)
	}

	if runErr != nil {
		slog.Error("coordination engine exited with error", "error", runErr)
		os.Exit(1)
	}
	slog.Info("fleettools coordination engine stopped")
}
