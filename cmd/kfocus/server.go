package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goodtune/kfocus/internal/api"
	"github.com/goodtune/kfocus/internal/bridge"
	"github.com/goodtune/kfocus/internal/config"
	"github.com/goodtune/kfocus/internal/metrics"
	"github.com/goodtune/kfocus/internal/session"
	"github.com/goodtune/kfocus/internal/systemd"
	"github.com/goodtune/kfocus/internal/timeutil"
	"github.com/goodtune/kfocus/internal/usage"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start kfocus server",
	Long:  `Start the kfocus server with the browser bridge, HTTP API, daily reset scheduler and metrics endpoint.`,
	RunE:  runServer,
}

func init() {
	rootCmd.AddCommand(serverCmd)
}

func runServer(cmd *cobra.Command, args []string) error {
	// Load configuration
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// Setup logger
	logger := setupLogger(cfg.Logging)
	log.Logger = logger

	logger.Info().
		Str("version", version).
		Str("config", configPath).
		Msg("Starting kfocus")

	// Check for systemd socket activation
	sdListeners, err := systemd.GetListeners()
	if err != nil {
		return fmt.Errorf("failed to get systemd listeners: %w", err)
	}
	if sdListeners.Activated {
		logger.Info().Msg("Running with systemd socket activation")
	}

	// Initialize storage
	store, err := openStorage(cfg.Storage)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error().Err(err).Msg("Failed to close storage")
		}
	}()

	logger.Info().Str("type", cfg.Storage.Type).Msg("Storage initialized")

	policyEngine, opaEngine, err := newPolicyEngine(cfg, store, logger)
	if err != nil {
		return err
	}

	clock := timeutil.RealClock{}
	tracker := usage.NewTracker(store.Usage(), logger)
	resetter := usage.NewResetter(store.Usage(), clock, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Usage.CatchUpReset {
		if _, err := resetter.CatchUp(ctx); err != nil {
			logger.Error().Err(err).Msg("Catch-up reset failed")
		}
	}

	idleThreshold := parseDuration(cfg.Usage.IdleThreshold, time.Minute)
	hub, err := bridge.NewHub(cfg.Bridge, idleThreshold, nil, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize bridge: %w", err)
	}

	coordinator := session.NewCoordinator(session.Config{
		Browser:   hub,
		Evaluator: policyEngine,
		Recorder:  tracker,
		Resetter:  resetter,
		Clock:     clock,
	}, logger)
	hub.SetSubmitter(coordinator)

	resetScheduler, err := usage.NewResetScheduler(usage.SchedulerConfig{
		ResetTime: cfg.Usage.DailyResetTime,
		Period:    parseDuration(cfg.Usage.ResetPeriod, 24*time.Hour),
		Clock:     clock,
	}, func(ctx context.Context) error {
		return coordinator.Submit(ctx, session.AlarmFired{Name: session.AlarmDailyReset})
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize Reset Scheduler: %w", err)
	}

	apiServer := api.NewServer(api.Options{
		Store:          store,
		Evaluator:      policyEngine,
		Coordinator:    coordinator,
		Clock:          clock,
		AllowedOrigins: cfg.Bridge.AllowedOrigins,
	}, logger)

	// The WebSocket route stays outside the API middleware so the
	// connection can be hijacked.
	router := chi.NewRouter()
	hub.Routes(router)
	apiServer.Routes(router)

	httpAddr := net.JoinHostPort(cfg.Server.BindAddress, strconv.Itoa(cfg.Server.Port))
	httpServer := &http.Server{
		Addr:              httpAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	var httpListener net.Listener
	if sdListeners.Activated && sdListeners.HTTP != nil {
		httpListener = sdListeners.HTTP
	} else {
		httpListener, err = net.Listen("tcp", httpAddr)
		if err != nil {
			return fmt.Errorf("failed to listen on %s: %w", httpAddr, err)
		}
	}

	// Initialize Metrics Server
	var metricsServer *metrics.Server
	if cfg.Server.MetricsPort > 0 {
		metricsAddr := net.JoinHostPort(cfg.Server.BindAddress, strconv.Itoa(cfg.Server.MetricsPort))
		metricsServer = metrics.NewServer(metricsAddr, logger)
		if sdListeners.Activated && sdListeners.Metrics != nil {
			metricsServer.SetListener(sdListeners.Metrics)
		}
		if err := metricsServer.Start(); err != nil {
			return fmt.Errorf("failed to start Metrics Server: %w", err)
		}
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return coordinator.Run(gctx)
	})

	g.Go(func() error {
		logger.Info().Str("addr", httpListener.Addr().String()).Msg("HTTP server started")
		if err := httpServer.Serve(httpListener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer shutdownCancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	resetScheduler.Start(gctx)

	logger.Info().Msg("kfocus startup complete")
	logger.Info().Msgf("Bridge: ws://%s/ws", httpAddr)
	logger.Info().Msgf("API: http://%s/api/v1", httpAddr)

	// Notify systemd that we're ready to serve requests
	if err := systemd.NotifyReady(); err != nil {
		logger.Warn().Err(err).Msg("Failed to send systemd ready notification")
	}

	waitForShutdown(gctx, logger, func() {
		if err := opaEngine.Reload(); err != nil {
			logger.Error().Err(err).Msg("Failed to reload policies")
		} else {
			logger.Info().Msg("Policies reloaded successfully")
		}
	})

	// Notify systemd that we're stopping
	if err := systemd.NotifyStopping(); err != nil {
		logger.Warn().Err(err).Msg("Failed to send systemd stopping notification")
	}

	cancel()
	resetScheduler.Stop()

	err = g.Wait()

	if metricsServer != nil {
		if err := metricsServer.Stop(); err != nil {
			logger.Error().Err(err).Msg("Error stopping Metrics Server")
		}
	}

	logger.Info().Msg("kfocus stopped")
	return err
}

// waitForShutdown blocks until a termination signal arrives or ctx ends.
// SIGHUP calls reload and keeps running.
func waitForShutdown(ctx context.Context, logger zerolog.Logger, reload func()) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigChan)

	for {
		select {
		case <-ctx.Done():
			return
		case sig := <-sigChan:
			if sig == syscall.SIGHUP {
				logger.Info().Msg("SIGHUP received, reloading policies...")
				reload()
				continue
			}
			logger.Info().Msg("Shutdown signal received, gracefully stopping...")
			return
		}
	}
}
