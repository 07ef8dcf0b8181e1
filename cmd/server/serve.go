package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/geotms/server/internal/api"
	"github.com/geotms/server/internal/cache"
	"github.com/geotms/server/internal/callback"
	"github.com/geotms/server/internal/catalog"
	"github.com/geotms/server/internal/config"
	"github.com/geotms/server/internal/logging"
	"github.com/geotms/server/internal/render"
	"github.com/geotms/server/internal/service"
	"github.com/geotms/server/internal/source"
)

func serve(ctx context.Context, configPath string) error {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("Ignoring .env: %v", err)
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := logging.New(cfg.Log.Level)
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer logger.Sync()

	cacheManager, err := cache.NewManager(cache.Config{
		TileCacheSizeMB: cfg.Cache.TileSizeMB,
		TileTTL:         time.Duration(cfg.Cache.TileTTLMinutes) * time.Minute,
		SourceCacheSize: cfg.Cache.SourceCacheEntries,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize cache: %w", err)
	}
	defer cacheManager.Close()
	logger.Info("cache ready",
		zap.String("tile_cache", humanize.IBytes(uint64(cfg.Cache.TileSizeMB)<<20)),
		zap.Int("tile_ttl_minutes", cfg.Cache.TileTTLMinutes),
		zap.Int("source_cache_entries", cfg.Cache.SourceCacheEntries))

	metrics := api.NewMetrics(cacheManager)
	app, err := buildRoute(ctx, cfg, cacheManager, metrics, logger)
	if err != nil {
		return err
	}
	defer app.Close()

	server, err := api.NewServer(app.route, api.ServerConfig{
		CORSOrigins: cfg.Server.CORSOrigins,
		Logger:      logger,
		Metrics:     metrics,
		Gateway: callback.Config{
			MaxConcurrent: cfg.Render.MaxConcurrent,
			Timeout:       cfg.Render.Timeout,
		},
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	})
	if err != nil {
		return err
	}
	server.SetHandshake(cfg.Server.Handshake)

	if err := server.Bind(cfg.Server.Host, cfg.Server.Port); err != nil {
		return err
	}
	pattern, err := server.URLPattern()
	if err != nil {
		return err
	}
	logger.Info("serving tiles", zap.String("url", pattern), zap.String("display", app.route.Kind()), zap.Int("sources", len(app.route.Sources())))

	<-ctx.Done()
	logger.Info("shutting down server")
	return server.Unbind()
}

// routeApp owns a route and the catalogs its sources borrow.
type routeApp struct {
	route    *service.Route
	catalogs []catalog.Catalog
}

func (a *routeApp) Close() error {
	var errs []error
	if a.route != nil {
		errs = append(errs, a.route.Close())
	}
	for _, c := range a.catalogs {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}

// buildRoute opens each distinct catalog once and builds the configured
// display over the sources.
func buildRoute(ctx context.Context, cfg *config.Config, mgr *cache.Manager, metrics *api.Metrics, logger *zap.Logger) (*routeApp, error) {
	app := &routeApp{}
	opened := make(map[string]catalog.Catalog)

	sources := make([]source.TileSource, 0, len(cfg.Sources))
	for _, sc := range cfg.Sources {
		c, ok := opened[sc.Catalog]
		if !ok {
			var err error
			if c, err = catalog.Open(ctx, sc.Catalog); err != nil {
				app.Close()
				return nil, fmt.Errorf("failed to open catalog %s: %w", sc.Catalog, err)
			}
			opened[sc.Catalog] = c
			app.catalogs = append(app.catalogs, c)
		}
		src, err := source.Open(ctx, source.FromCatalog(sc.Catalog, sc.Layer), source.Options{Cache: mgr, Catalog: c})
		if err != nil {
			app.Close()
			return nil, err
		}
		sources = append(sources, src)
		logger.Info("source registered", zap.String("catalog", sc.Catalog), zap.String("layer", sc.Layer))
	}

	renderer := render.NewTileRenderer(render.Config{TileSize: cfg.Render.TileSize})

	var display service.Display
	switch strings.ToLower(cfg.Display.Mode) {
	case "rgb":
		display = service.CompositeDisplay{Fn: service.RGBComposite(renderer, cfg.Display.Min, cfg.Display.Max)}
	default:
		cm, err := cfg.Display.ColorMap()
		if err != nil {
			app.Close()
			return nil, err
		}
		display = service.ColorMapDisplay{Map: cm}
	}

	route, err := service.NewRoute(sources, display, service.RouteConfig{
		Cache:    mgr,
		Renderer: renderer,
		Logger:   logger,
		Observe:  metrics.ObserveRender,
	})
	if err != nil {
		app.Close()
		return nil, err
	}
	app.route = route
	return app, nil
}
