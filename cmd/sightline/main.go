package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"sightline/internal/api"
	"sightline/pkg/cache"
	"sightline/pkg/config"
	"sightline/pkg/db"
	"sightline/pkg/db/maintenance"
	"sightline/pkg/logging"
	"sightline/pkg/los"
	"sightline/pkg/observability"
	"sightline/pkg/probe"
	"sightline/pkg/render"
	"sightline/pkg/store"
	"sightline/pkg/terrain"
	"sightline/pkg/version"
)

const defaultConfigPath = "configs/sightline.yaml"

var (
	initConfig = flag.Bool("init-config", false, "Generate default config file and exit")
	configPath = flag.String("config", "", "Path to the config file (default $SIGHTLINE_CONFIG or "+defaultConfigPath+")")
)

func main() {
	flag.Parse()

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "Failed to load .env: %v\n", err)
	}

	path := resolveConfigPath(*configPath)

	if *initConfig {
		if err := config.GenerateDefault(path); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to generate config: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Config file generated:", path)
		return
	}

	if err := run(context.Background(), path); err != nil {
		fmt.Fprintf(os.Stderr, "CRITICAL ERROR: Application failed: %v\n", err)
		os.Exit(1)
	}
}

func resolveConfigPath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if env := os.Getenv("SIGHTLINE_CONFIG"); env != "" {
		return env
	}
	return defaultConfigPath
}

func run(ctx context.Context, configPath string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	appCfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	cleanupLogs, err := logging.Init(&appCfg.Log)
	if err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	defer cleanupLogs()

	build := version.Get()
	slog.Info("Sightline Started", "version", build.Version, "revision", build.Revision, "config", configPath)

	shutdownTracing, err := observability.InitTracing(ctx, &appCfg.Tracing, os.Stdout)
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	defer observability.ShutdownTracing(shutdownTracing)

	dbConn, st, err := initDB(appCfg)
	if err != nil {
		return err
	}
	defer dbConn.Close()

	go maintenance.Schedule(ctx, st, appCfg.DB.RetainFor.Std(), appCfg.DB.PruneInterval.Std())

	metrics, err := observability.NewLOSCollector(nil)
	if err != nil {
		return fmt.Errorf("failed to register metrics: %w", err)
	}

	elev, closeTerrain, err := initTerrain(appCfg, st, metrics)
	if err != nil {
		return err
	}
	defer closeTerrain.Close()

	hub := render.NewHub()
	defer hub.Close()

	losOpts := los.Options{
		Lookahead:       appCfg.LOS.Lookahead,
		IncludeEndpoint: appCfg.LOS.IncludeEndpoint,
		Metrics:         metrics,
		Logger:          slog.With("component", "los"),
	}
	analyzer := los.NewAnalyzer(losOpts)

	// Startup Probes
	px, py := terrainCenter(&appCfg.Terrain)
	probes := []probe.Probe{
		{Name: "Database", Check: probe.Database(dbConn), Critical: true},
		{Name: "Line of Sight", Check: probe.SightLine(losOpts), Critical: true},
		// NoData at the center is legal, so terrain is informational only.
		{Name: "Terrain Sample", Check: probe.Elevation(elev, px, py)},
	}
	if err := probe.AnalyzeResults(probe.Run(ctx, probes, 0)); err != nil {
		return fmt.Errorf("startup checks failed: %w", err)
	}

	losH := api.NewLOSHandler(analyzer, elev, st, render.Multi(hub, render.LogSink{}), api.LOSHandlerConfig{
		SampleSpacing: appCfg.LOS.SampleSpacing.Meters(),
		Timeout:       appCfg.LOS.Timeout.Std(),
		HistoryLimit:  appCfg.DB.HistoryLimit,
	})

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	shutdownFunc := func() { quit <- syscall.SIGTERM }

	srv := api.NewServer(appCfg.Server.Address, losH, api.NewConfigHandler(appCfg), hub, metrics, shutdownFunc)
	return runServerLifecycle(ctx, srv, quit)
}

func initDB(appCfg *config.Config) (*db.DB, *store.SQLiteStore, error) {
	dbConn, err := db.Init(appCfg.DB.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	if v, dirty, err := dbConn.SchemaVersion(); err == nil {
		slog.Info("Database ready", "path", appCfg.DB.Path, "schema_version", v, "dirty", dirty)
	}
	return dbConn, store.NewSQLiteStore(dbConn), nil
}

func initTerrain(appCfg *config.Config, st store.CacheStore, metrics *observability.LOSCollector) (terrain.ElevationService, io.Closer, error) {
	svc, closer, err := terrain.FromConfig(&appCfg.Terrain)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open terrain: %w", err)
	}
	slog.Info("Terrain loaded", "provider", appCfg.Terrain.Provider, "file", appCfg.Terrain.ElevationFile)

	if appCfg.Terrain.CacheEntries <= 0 && !appCfg.Terrain.PersistCache {
		return svc, closer, nil
	}

	var backing cache.Cacher
	if appCfg.Terrain.PersistCache {
		backing = st
	}
	cached := cache.NewElevation(svc, backing, appCfg.Terrain.Provider+":"+appCfg.Terrain.ElevationFile, appCfg.Terrain.CacheEntries)
	if err := metrics.WatchCache(cached); err != nil {
		slog.Warn("Elevation cache metrics unavailable", "error", err)
	}
	return cached, closer, nil
}

// terrainCenter returns the middle of the configured raster, or the origin
// for a flat surface.
func terrainCenter(cfg *config.TerrainConfig) (x, y float64) {
	if cfg.Provider != config.ProviderGrid {
		return cfg.OriginX, cfg.OriginY
	}
	half := cfg.CellSize.Meters() / 2
	return cfg.OriginX + float64(cfg.Cols)*half, cfg.OriginY - float64(cfg.Rows)*half
}

func runServerLifecycle(ctx context.Context, srv *http.Server, quit chan os.Signal) error {
	slog.Info("Starting server", "addr", srv.Addr)
	serverErrors := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrors <- err
		}
	}()

	select {
	case <-quit:
		slog.Info("Shutting down server...")
	case <-ctx.Done():
		slog.Info("Context cancelled, shutting down...")
	case err := <-serverErrors:
		return fmt.Errorf("server failed: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
