package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/yegors/co-flight/internal/aircraft"
	"github.com/yegors/co-flight/internal/api"
	"github.com/yegors/co-flight/internal/audio"
	"github.com/yegors/co-flight/internal/camera"
	"github.com/yegors/co-flight/internal/config"
	"github.com/yegors/co-flight/internal/input"
	"github.com/yegors/co-flight/internal/navigation"
	"github.com/yegors/co-flight/internal/recorder"
	"github.com/yegors/co-flight/internal/simulation"
	"github.com/yegors/co-flight/internal/storage/sqlite"
	"github.com/yegors/co-flight/internal/terrain"
	"github.com/yegors/co-flight/internal/websocket"
	"github.com/yegors/co-flight/pkg/logger"
	"golang.org/x/sync/errgroup"
)

var (
	// Version is injected at build time
	Version = "dev"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", "", "Path to configuration file (optional - will search in configs/ and root directory)")
	flag.Parse()

	// Load configuration with fallback logic
	cfg, err := config.LoadWithFallback(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.LoggerConfig())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating logger: %v\n", err)
		os.Exit(1)
	}

	if err := run(cfg, log); err != nil {
		log.Error("Server exited with error", logger.Error(err))
		log.Sync()
		os.Exit(1)
	}
	log.Sync()
}

func run(cfg *config.Config, log *logger.Logger) error {
	sessionID := uuid.NewString()
	log.Info("Starting Co-Flight server",
		logger.String("version", Version),
		logger.String("session", sessionID),
	)

	// Ensure the database directory exists
	if dir := filepath.Dir(cfg.Storage.SQLitePath); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	store, err := sqlite.New(cfg.Storage.SQLitePath, log)
	if err != nil {
		return err
	}
	defer store.Close()

	routeStorage := sqlite.NewRouteStorage(store.GetDB(), log)
	eventStorage := sqlite.NewEventStorage(store.GetDB(), sessionID, log)

	provider, err := cfg.TerrainProvider(log)
	if err != nil {
		return fmt.Errorf("failed to create terrain provider: %w", err)
	}
	log.Info("Terrain source configured",
		logger.String("provider", cfg.Terrain.Provider),
		logger.Int("cache_size", cfg.Terrain.CacheSize))

	registry, err := aircraft.NewRegistry(cfg.AircraftTypes())
	if err != nil {
		return err
	}

	// Create WebSocket server; scene, audio and telemetry all fan out through it
	wsServer := websocket.NewServer(log)

	nav := navigation.NewManager(cfg.NavigationConfig(), provider, websocket.NewSceneBridge(wsServer), log)
	nav.Subscribe(eventStorage.Subscriber())
	nav.Subscribe(websocket.NavigationEvents(wsServer))

	deps := simulation.Deps{
		Registry:    registry,
		Terrain:     terrain.NewSampler(provider, cfg.SampleTimeout(), log),
		Navigation:  nav,
		Audio:       audio.NewFeedback(websocket.NewAudioBridge(wsServer), log),
		Camera:      camera.NewController(cfg.CameraConfig()),
		Input:       input.NewMapper(cfg.Input),
		Scene:       websocket.NewSceneBridge(wsServer),
		Broadcaster: websocket.NewTelemetryBroadcaster(wsServer),
	}

	var flight *recorder.Writer
	if cfg.Recorder.Enabled {
		flight, _, err = recorder.Create(cfg.Recorder.Path, recorder.Header{
			Version:   recorder.FormatVersion,
			SessionID: sessionID,
			Aircraft:  cfg.Simulation.DefaultAircraft,
			StartedAt: time.Now(),
		}, cfg.Recorder.EveryNTicks, log)
		if err != nil {
			return err
		}
		deps.Recorder = flight
	}

	sim, err := simulation.New(cfg.SimulationConfig(), deps, log)
	if err != nil {
		return err
	}
	wsServer.SetMessageHandler(websocket.NewInputHandler(sim, time.Second))

	handler := api.NewHandler(api.Options{
		Simulator:        sim,
		Navigation:       nav,
		RouteStorage:     routeStorage,
		EventStorage:     eventStorage,
		Landmarks:        cfg.Landmarks,
		DefaultClearance: cfg.Navigation.DefaultClearance,
		Version:          Version,
	}, log)

	opts := api.RouterOptions{
		WebSocket: wsServer.HandleConnection,
		StaticDir: cfg.Server.StaticFilesDir,
	}
	if cfg.Metrics.Enabled {
		opts.MetricsPath = cfg.Metrics.Path
	}
	routes := api.NewRouter(handler, opts, log).Routes()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		wsServer.Run(gctx)
		return nil
	})
	g.Go(func() error {
		return sim.Run(gctx)
	})

	allPorts := append([]int{cfg.Server.Port}, cfg.Server.AdditionalPorts...)
	log.Info("Configured listener ports", logger.Any("ports", allPorts))

	servers := make([]*http.Server, 0, len(allPorts))
	for _, port := range allPorts {
		server := &http.Server{
			Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, port),
			Handler:      routes, // All servers share one router
			ReadTimeout:  time.Duration(cfg.Server.ReadTimeoutSecs) * time.Second,
			WriteTimeout: time.Duration(cfg.Server.WriteTimeoutSecs) * time.Second,
			IdleTimeout:  time.Duration(cfg.Server.IdleTimeoutSecs) * time.Second,
		}
		servers = append(servers, server)

		g.Go(func() error {
			log.Info("Starting HTTP server", logger.String("addr", server.Addr))
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("HTTP server on %s: %w", server.Addr, err)
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		log.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		for _, srv := range servers {
			if err := srv.Shutdown(shutdownCtx); err != nil {
				log.Error("HTTP server shutdown error", logger.String("addr", srv.Addr), logger.Error(err))
			} else {
				log.Info("HTTP server shutdown complete", logger.String("addr", srv.Addr))
			}
		}
		return nil
	})

	err = g.Wait()

	// The loop has exited, so no more frames can arrive
	if flight != nil {
		if cerr := flight.Close(); cerr != nil {
			log.Error("Failed to close flight recording", logger.Error(cerr))
		} else {
			log.Info("Flight recording closed", logger.Int64("frames", int64(flight.Frames())))
		}
	}

	log.Info("Server shutdown complete")
	return err
}
