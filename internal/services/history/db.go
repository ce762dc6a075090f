package history

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"wow-guild-mcp/internal/models"
)

// recordBatchSize keeps the multi-row upsert under MySQL's placeholder
// limits even for a full 500-item capture.
const recordBatchSize = 200

// DB is the MySQL-backed Store. The unique key on (region, realm, version,
// item, captured_at) plus an ON DUPLICATE KEY upsert makes hourly captures
// idempotent: the whole record is replaced, never patched field by field.
type DB struct {
	db        *gorm.DB
	retention Retention
}

func NewDB(db *gorm.DB, retention Retention) *DB {
	return &DB{db: db, retention: retention}
}

var snapshotConflict = clause.OnConflict{
	Columns: []clause.Column{
		{Name: "region"}, {Name: "realm_slug"}, {Name: "game_version"},
		{Name: "item_id"}, {Name: "captured_at"},
	},
	UpdateAll: true,
}

func (s *DB) Record(ctx context.Context, snap *models.MarketSnapshot) error {
	snap.CapturedAt = models.AlignHour(snap.CapturedAt)
	if err := s.db.WithContext(ctx).Clauses(snapshotConflict).Create(snap).Error; err != nil {
		return &StorageError{Op: "record", Err: err}
	}
	return nil
}

func (s *DB) RecordBatch(ctx context.Context, snaps []models.MarketSnapshot) error {
	if len(snaps) == 0 {
		return nil
	}
	for i := range snaps {
		snaps[i].CapturedAt = models.AlignHour(snaps[i].CapturedAt)
	}
	err := s.db.WithContext(ctx).Clauses(snapshotConflict).CreateInBatches(snaps, recordBatchSize).Error
	if err != nil {
		return &StorageError{Op: "record batch", Err: err}
	}
	return nil
}

func (s *DB) QuerySeries(ctx context.Context, key models.RealmKey, itemID int64, since, until time.Time) ([]models.MarketSnapshot, error) {
	var out []models.MarketSnapshot
	err := s.forKey(ctx, key).
		Where("item_id = ? AND captured_at >= ? AND captured_at <= ?", itemID, since, until).
		Order("captured_at ASC").
		Find(&out).Error
	if err != nil {
		return nil, &StorageError{Op: "query series", Err: err}
	}
	return out, nil
}

func (s *DB) Latest(ctx context.Context, key models.RealmKey, itemID int64) (*models.MarketSnapshot, error) {
	var snap models.MarketSnapshot
	err := s.forKey(ctx, key).
		Where("item_id = ?", itemID).
		Order("captured_at DESC").
		First(&snap).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, &StorageError{Op: "latest", Err: err}
	}
	return &snap, nil
}

func (s *DB) LatestPerItem(ctx context.Context, key models.RealmKey, since time.Time) ([]models.MarketSnapshot, error) {
	sub := s.db.Model(&models.MarketSnapshot{}).
		Select("item_id, MAX(captured_at) AS max_captured_at").
		Where("region = ? AND realm_slug = ? AND game_version = ? AND captured_at >= ?",
			key.Region, key.Slug, key.GameVersion, since).
		Group("item_id")

	var out []models.MarketSnapshot
	err := s.forKey(ctx, key).
		Joins("JOIN (?) latest ON market_snapshots.item_id = latest.item_id AND market_snapshots.captured_at = latest.max_captured_at", sub).
		Find(&out).Error
	if err != nil {
		return nil, &StorageError{Op: "latest per item", Err: err}
	}
	return out, nil
}

func (s *DB) SeriesInWindow(ctx context.Context, key models.RealmKey, since time.Time) (map[int64][]models.MarketSnapshot, error) {
	var rows []models.MarketSnapshot
	err := s.forKey(ctx, key).
		Where("captured_at >= ?", since).
		Order("item_id ASC, captured_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, &StorageError{Op: "series in window", Err: err}
	}
	out := make(map[int64][]models.MarketSnapshot)
	for _, r := range rows {
		out[r.ItemID] = append(out[r.ItemID], r)
	}
	return out, nil
}

// Prune deletes aggregates past the aggregate retention window and clears
// price distributions past the distribution window. Both statements operate
// on whole rows and run independently of read traffic.
func (s *DB) Prune(ctx context.Context, now time.Time) (PruneResult, error) {
	var res PruneResult

	del := s.db.WithContext(ctx).
		Where("captured_at < ?", now.Add(-s.retention.Aggregate)).
		Delete(&models.MarketSnapshot{})
	if del.Error != nil {
		return res, &StorageError{Op: "prune aggregates", Err: del.Error}
	}
	res.SnapshotsDeleted = del.RowsAffected

	clr := s.db.WithContext(ctx).Model(&models.MarketSnapshot{}).
		Where("captured_at < ? AND price_distribution IS NOT NULL", now.Add(-s.retention.Distribution)).
		Update("price_distribution", nil)
	if clr.Error != nil {
		return res, &StorageError{Op: "prune distributions", Err: clr.Error}
	}
	res.DistributionsCleared = clr.RowsAffected
	return res, nil
}

func (s *DB) forKey(ctx context.Context, key models.RealmKey) *gorm.DB {
	return s.db.WithContext(ctx).Model(&models.MarketSnapshot{}).
		Where("region = ? AND realm_slug = ? AND game_version = ?", key.Region, key.Slug, key.GameVersion)
}
