package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"wow-guild-mcp/internal/api"
	"wow-guild-mcp/internal/config"
	"wow-guild-mcp/internal/database"
	"wow-guild-mcp/internal/logging"
	"wow-guild-mcp/internal/mcp"
	"wow-guild-mcp/internal/scheduler"
	"wow-guild-mcp/internal/services/activity"
	"wow-guild-mcp/internal/services/blizzard"
	"wow-guild-mcp/internal/services/history"
	"wow-guild-mcp/internal/services/query"
)

func main() {
	// Load environment variables
	_ = godotenv.Load()

	cfg := config.Load()
	logger := logging.New(cfg.Environment)
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server exited", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.Initialize(cfg.DatabaseURL)
	if err != nil {
		return err
	}

	client, err := blizzard.NewClient(blizzard.Options{
		ClientID:       cfg.BlizzardClientID,
		ClientSecret:   cfg.BlizzardClientSecret,
		Region:         cfg.BlizzardRegion,
		Locale:         cfg.BlizzardLocale,
		GameVersion:    cfg.GameVersion,
		Limits:         blizzard.NewRateLimitState(cfg.RequestsPerSecond, cfg.RequestBurst),
		Logger:         logger.Named("blizzard"),
		ConnectTimeout: cfg.ConnectTimeout,
		RequestTimeout: cfg.RequestTimeout,
	})
	if err != nil {
		return err
	}

	retention := history.Retention{
		Aggregate:    cfg.AggregateRetention,
		Distribution: cfg.DistributionRetention,
	}
	store := history.NewCached(history.NewDB(db, retention), retention, 0)
	queries := query.New(store, cfg.TopItemsCap)

	var recorder *activity.Recorder
	if cfg.ActivityLogEnabled {
		recorder = activity.NewRecorder(db, logger.Named("activity"))
		defer recorder.Close()
	}

	capturer := scheduler.NewCapturer(client, store, recorder, logger.Named("capture"), scheduler.Options{
		Region:       cfg.BlizzardRegion,
		GameVersion:  cfg.GameVersion,
		Realms:       cfg.CaptureRealms,
		Interval:     cfg.CaptureInterval,
		RealmTimeout: cfg.RealmTimeout,
		TopItemsCap:  cfg.TopItemsCap,
	})

	mcpServer := mcp.New(mcp.Options{
		Queries:     queries,
		Capturer:    capturer,
		Lookup:      client,
		Recorder:    recorder,
		Logger:      logger.Named("mcp"),
		Region:      cfg.BlizzardRegion,
		GameVersion: cfg.GameVersion,
		Realms:      cfg.CaptureRealms,
	})

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.Default()
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	api.SetupRoutes(r.Group("/api/v1"), queries, capturer, logger.Named("api"),
		cfg.BlizzardRegion, cfg.GameVersion, cfg.CaptureRealms)

	httpSrv := &http.Server{Addr: ":" + cfg.Port, Handler: r}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		capturer.Run(ctx)
		return nil
	})
	g.Go(func() error {
		logger.Info("http server starting", zap.String("port", cfg.Port))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		return httpSrv.Shutdown(context.Background())
	})
	g.Go(func() error {
		switch mcp.Transport(cfg.MCPTransport) {
		case mcp.TransportHTTP:
			return mcpServer.ServeHTTP(ctx, cfg.MCPHTTPAddr)
		default:
			return mcpServer.ServeStdio(ctx)
		}
	})

	return g.Wait()
}
