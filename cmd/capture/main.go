package main

import (
	"context"
	"flag"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"wow-guild-mcp/internal/config"
	"wow-guild-mcp/internal/database"
	"wow-guild-mcp/internal/logging"
	"wow-guild-mcp/internal/scheduler"
	"wow-guild-mcp/internal/services/blizzard"
	"wow-guild-mcp/internal/services/history"
)

// One-shot capture for cron-style deployments: snapshot every configured
// realm once (or the realms given with -realms), prune, and exit.
func main() {
	realmsFlag := flag.String("realms", "", "comma-separated realm slugs to capture (default: configured realms)")
	flag.Parse()

	_ = godotenv.Load()
	cfg := config.Load()
	logger := logging.New(cfg.Environment)
	defer logger.Sync()

	realms := cfg.CaptureRealms
	if *realmsFlag != "" {
		realms = nil
		for _, r := range strings.Split(*realmsFlag, ",") {
			if r = strings.TrimSpace(r); r != "" {
				realms = append(realms, r)
			}
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.Initialize(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("database init failed", zap.Error(err))
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
		logger.Fatal("client init failed", zap.Error(err))
	}

	retention := history.Retention{
		Aggregate:    cfg.AggregateRetention,
		Distribution: cfg.DistributionRetention,
	}
	store := history.NewDB(db, retention)

	capturer := scheduler.NewCapturer(client, store, nil, logger.Named("capture"), scheduler.Options{
		Region:       cfg.BlizzardRegion,
		GameVersion:  cfg.GameVersion,
		Realms:       realms,
		RealmTimeout: cfg.RealmTimeout,
		TopItemsCap:  cfg.TopItemsCap,
	})

	cycle := capturer.CaptureAll(ctx)
	failed := 0
	for _, res := range cycle.Realms {
		if res.Error != "" {
			failed++
		}
	}
	if pruned, err := store.Prune(ctx, cycle.CapturedAt); err != nil {
		logger.Error("prune failed", zap.Error(err))
	} else if pruned.SnapshotsDeleted > 0 || pruned.DistributionsCleared > 0 {
		logger.Info("prune complete",
			zap.Int64("snapshots_deleted", pruned.SnapshotsDeleted),
			zap.Int64("distributions_cleared", pruned.DistributionsCleared))
	}

	logger.Info("capture finished",
		zap.Int("realms", len(cycle.Realms)),
		zap.Int("failed", failed))
	if failed == len(cycle.Realms) && failed > 0 {
		logger.Fatal("all realm captures failed")
	}
}
