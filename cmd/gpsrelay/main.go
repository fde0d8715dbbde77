package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/gpsrelay/internal/adapter/httpserver"
	"github.com/pscheid92/gpsrelay/internal/domain"
	"github.com/pscheid92/gpsrelay/internal/gps"
	"github.com/pscheid92/gpsrelay/internal/metrics"
	"github.com/pscheid92/gpsrelay/internal/platform/config"
	"github.com/pscheid92/gpsrelay/internal/platform/logging"
	"github.com/pscheid92/gpsrelay/internal/platform/version"
	"github.com/pscheid92/gpsrelay/internal/relay"
	"github.com/pscheid92/gpsrelay/internal/telemetry"
)

const shutdownTimeout = 10 * time.Second

func setupConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		// Use log before slog is initialized
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

// setupPositionSource starts the serial reader when GPS is enabled, otherwise
// returns a static source (or one that never has a fix).
func setupPositionSource(ctx context.Context, cfg *config.Config, clock clockwork.Clock) domain.PositionSource {
	if !cfg.GPSEnabled {
		if cfg.HasStaticPosition() {
			slog.Info("GPS disabled, serving static position", "lat", cfg.StaticLatitude, "lng", cfg.StaticLongitude)
			return gps.NewStatic(cfg.StaticLatitude, cfg.StaticLongitude, clock)
		}
		slog.Info("GPS disabled, device feed will report no fix")
		return gps.NoFix()
	}

	source := gps.NewSource(clock)
	svc := gps.NewService(gps.Config{Device: cfg.GPSDevice, Baud: cfg.GPSBaud}, source, clock, nil)
	go svc.Run(ctx)
	return source
}

func runGracefulShutdown(cancel context.CancelFunc, srv *httpserver.Server, hub *relay.Hub) <-chan struct{} {
	done := make(chan struct{})

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		slog.Info("Shutdown signal received, cleaning up...")

		// Stop producers first so nothing publishes into a stopping hub.
		cancel()

		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancelShutdown()

		// Hijacked websocket connections are not tracked by Shutdown;
		// the hub closes them.
		hub.Stop()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}

		close(done)
	}()

	return done
}

func main() {
	clock := clockwork.NewRealClock()
	cfg := setupConfig()

	logging.InitLogger(cfg.LogLevel, cfg.LogFormat)

	info := version.Get()
	metrics.BuildInfo.WithLabelValues(info.Version, info.Commit, info.BuildTime, info.GoVersion).Set(1)
	slog.Info("Application starting", "env", cfg.AppEnv, "port", cfg.Port, "version", info.Version)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	source := setupPositionSource(ctx, cfg, clock)

	hub := relay.NewHub(clock, cfg.MaxClients)

	publisher := telemetry.NewPublisher(source, hub, clock, cfg.PublishInterval)
	go publisher.Run(ctx)

	healthChecks := []httpserver.HealthCheck{
		{Name: "hub", Check: func(context.Context) error {
			select {
			case <-hub.Done():
				return relay.ErrHubStopped
			default:
				return nil
			}
		}},
	}

	srv := httpserver.NewServer(cfg, clock, hub, source, healthChecks)
	done := runGracefulShutdown(cancel, srv, hub)

	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}

	<-done
}
