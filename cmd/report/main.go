package main

import (
	"context"
	"flag"
	"os"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"wow-guild-mcp/internal/config"
	"wow-guild-mcp/internal/database"
	"wow-guild-mcp/internal/export"
	"wow-guild-mcp/internal/logging"
	"wow-guild-mcp/internal/models"
	"wow-guild-mcp/internal/services/history"
	"wow-guild-mcp/internal/services/query"
)

// Writes an XLSX market report for one realm from stored snapshots.
func main() {
	realm := flag.String("realm", "", "realm slug (required)")
	hours := flag.Int("hours", 24, "velocity window in hours")
	out := flag.String("o", "market-report.xlsx", "output file")
	flag.Parse()

	_ = godotenv.Load()
	cfg := config.Load()
	logger := logging.New(cfg.Environment)
	defer logger.Sync()

	if *realm == "" {
		logger.Fatal("-realm is required")
	}
	key := models.NewRealmKey(cfg.BlizzardRegion, *realm, cfg.GameVersion)
	if !key.Valid() {
		logger.Fatal("invalid realm", zap.String("realm", *realm))
	}

	db, err := database.Initialize(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("database init failed", zap.Error(err))
	}

	retention := history.Retention{
		Aggregate:    cfg.AggregateRetention,
		Distribution: cfg.DistributionRetention,
	}
	queries := query.New(history.NewDB(db, retention), cfg.TopItemsCap)

	ctx := context.Background()
	top, err := queries.TopItems(ctx, key, 0)
	if err != nil {
		logger.Fatal("top items query failed", zap.Error(err))
	}
	velocity, err := queries.MarketVelocity(ctx, key, *hours)
	if err != nil {
		logger.Fatal("velocity query failed", zap.Error(err))
	}

	f, err := os.Create(*out)
	if err != nil {
		logger.Fatal("create output failed", zap.Error(err))
	}
	defer f.Close()

	report := &export.MarketReport{Key: key, TopItems: top, Velocity: velocity}
	if err := report.Write(f); err != nil {
		logger.Fatal("report write failed", zap.Error(err))
	}
	logger.Info("report written",
		zap.String("file", *out),
		zap.Int("top_items", len(top)),
		zap.Int("velocity_items", len(velocity)))
}
