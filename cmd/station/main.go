package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"rubberweigh/internal/app"
	"rubberweigh/internal/config"
	"rubberweigh/internal/logging"
)

var version = "dev"
var appName = "rubberweigh-station"

func main() {
	cfg, err := config.LoadStationFromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	// stdout belongs to the session panel unless DISPLAY_OUTPUT moves it.
	logger := logging.New(os.Stderr, cfg.Base, version, appName, "station_id", cfg.StationID)
	slog.SetDefault(logger)

	slog.Info("starting",
		"app", appName,
		"version", version,
		"env", cfg.AppEnv,
		"log_level", cfg.LogLevel.String(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// The supervisor restarts the station after a fatal init failure.
	if err := app.RunStation(ctx, cfg, logger); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run failed", "err", err)
		os.Exit(1)
	}

	slog.Info("shutting down")
}
