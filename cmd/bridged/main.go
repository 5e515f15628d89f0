package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/time/rate"

	"tradebridge/internal/bridge"
	"tradebridge/internal/config"
	"tradebridge/internal/syncer"
	"tradebridge/internal/version"
)

func main() {
	configPath := flag.String("config", "configs/bridged.local.yaml", "path to config file")
	flag.Parse()

	// Load configuration first; logging setup depends on it.
	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.Log)
	slog.SetDefault(logger)

	logger.Info("starting bridged",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
		"instance_id", cfg.Instance.ID,
		"venue_url", cfg.Venue.WSURL(),
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	br := bridge.New(bridgeConfig(cfg), bridge.WithLogger(logger))
	defer br.Close()

	br.OnStateChange(func(old, new bridge.State) {
		logger.Info("bridge state", "from", old, "to", new)
	})

	// Initial connect. A refused venue is not fatal at startup: the
	// health endpoint stays up and operators can watch reconnection.
	connectCtx, connectCancel := context.WithTimeout(ctx, cfg.Venue.ConnectTimeout)
	if err := br.Connect(connectCtx); err != nil {
		logger.Error("initial connect failed", "error", err)
	}
	connectCancel()

	sync := syncer.New(syncer.Config{
		Interval: cfg.Sync.Interval,
		Timeout:  cfg.Sync.Timeout,
	}, br, nil, logger)

	if err := sync.Start(ctx); err != nil {
		logger.Error("failed to start syncer", "error", err)
		os.Exit(1)
	}
	defer func() {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer stopCancel()
		sync.Stop(stopCtx)
	}()

	var healthServer *http.Server
	if cfg.Health.Addr != "" {
		healthServer = &http.Server{
			Addr:    cfg.Health.Addr,
			Handler: createHealthHandler(br, sync),
		}
		go func() {
			logger.Info("starting health server", "addr", cfg.Health.Addr)
			if err := healthServer.ListenAndServe(); err != http.ErrServerClosed {
				logger.Error("health server error", "error", err)
			}
		}()
	}

	logger.Info("bridged running", "instance_id", cfg.Instance.ID)

	// Wait for shutdown
	<-ctx.Done()

	logger.Info("shutting down...")

	if healthServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		healthServer.Shutdown(shutdownCtx)
	}

	logger.Info("bridged stopped")
}

// newLogger builds the process logger from config.
func newLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}

// bridgeConfig maps the file config onto bridge tunables.
func bridgeConfig(cfg *config.BridgeConfig) bridge.Config {
	return bridge.Config{
		VenueURL:                cfg.Venue.WSURL(),
		SessionID:               cfg.Venue.SessionID,
		ConnectTimeout:          cfg.Venue.ConnectTimeout,
		RequestTimeout:          cfg.Requests.Timeout,
		KeepaliveInterval:       cfg.Keepalive.Interval,
		KeepaliveProbeTimeout:   cfg.Keepalive.ProbeTimeout,
		BreakerFailureThreshold: cfg.Breaker.FailureThreshold,
		BreakerCooldown:         cfg.Breaker.Cooldown,
		BreakerCooldownMax:      cfg.Breaker.CooldownMax,
		ReconnectMaxAttempts:    cfg.Reconnect.MaxAttempts,
		ReconnectBaseDelay:      cfg.Reconnect.BaseDelay,
		ReconnectMultiplier:     cfg.Reconnect.Multiplier,
		ReconnectMaxDelay:       cfg.Reconnect.MaxDelay,
		RateLimit:               rate.Limit(cfg.Requests.RateLimit),
		RateBurst:               cfg.Requests.RateBurst,
		EventBuffer:             cfg.Venue.BufferSize,
	}
}

// createHealthHandler creates the HTTP handler for health checks.
func createHealthHandler(br *bridge.Bridge, sync *syncer.Syncer) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		stats := br.Stats()
		snap := sync.Snapshot()

		status := "healthy"
		switch stats.State {
		case bridge.StateDegraded:
			status = "degraded"
		case bridge.StateDisconnected, bridge.StateConnecting:
			status = "unhealthy"
		}

		health := struct {
			Status     string         `json:"status"`
			Components map[string]any `json:"components"`
		}{
			Status:     status,
			Components: make(map[string]any),
		}

		health.Components["bridge"] = stats
		health.Components["account"] = map[string]any{
			"positions":    len(snap.Positions),
			"refreshed_at": snap.RefreshedAt,
		}

		w.Header().Set("Content-Type", "application/json")
		if health.Status == "unhealthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(health)
	})

	mux.HandleFunc("/debug/state", func(w http.ResponseWriter, r *http.Request) {
		snap := sync.Snapshot()

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"bridge":       br.Stats(),
			"account":      snap.Account,
			"positions":    snap.Positions,
			"refreshed_at": snap.RefreshedAt,
		})
	})

	mux.HandleFunc("/version", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{
			"version":    version.Version,
			"commit":     version.Commit,
			"build_time": version.BuildTime,
		})
	})

	return mux
}
