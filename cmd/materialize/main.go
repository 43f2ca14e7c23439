// Command materialize runs one catch-up pass over every group's recurrence
// chains and exits. It is meant for cron-style scheduling next to, or instead
// of, the server's background scheduler.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/mmynk/splitledger/internal/app"
	"github.com/mmynk/splitledger/internal/config"
	"github.com/mmynk/splitledger/pkg/clock"
	"github.com/mmynk/splitledger/pkg/logging"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	logging.Install(logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat, Component: "materialize"})

	os.Exit(run(ctx, cfg))
}

func run(ctx context.Context, cfg *config.Config) int {
	store, err := app.OpenStore(ctx, cfg)
	if err != nil {
		slog.Error("Failed to initialize storage", "error", err)
		return 1
	}
	defer store.Close()

	materializer, closeLocker, err := app.NewMaterializer(ctx, cfg, store, clock.NewReal())
	if err != nil {
		slog.Error("Failed to initialize materializer", "error", err)
		return 1
	}
	defer closeLocker()

	res, err := materializer.MaterializeAll(ctx)
	if err != nil {
		slog.Error("Materialization pass failed", "error", err)
		return 1
	}

	slog.Info("Materialization pass complete", "created", res.Created, "failed", len(res.Failures))
	if len(res.Failures) > 0 {
		return 2
	}
	return 0
}
