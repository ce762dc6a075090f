package history

import (
	"context"
	"errors"
	"time"

	"wow-guild-mcp/internal/models"
)

// Cached layers the bounded in-memory working set over a durable store.
// Writes go through to the backing store first (durability wins), then warm
// the working set; latest-snapshot reads are served from memory when the
// series is warm. Range queries always hit the backing store, which holds
// the full retention window.
type Cached struct {
	backing Store
	working *Memory
}

func NewCached(backing Store, retention Retention, seriesCap int) *Cached {
	return &Cached{
		backing: backing,
		working: NewMemory(retention, seriesCap),
	}
}

func (c *Cached) Record(ctx context.Context, snap *models.MarketSnapshot) error {
	if err := c.backing.Record(ctx, snap); err != nil {
		return err
	}
	_ = c.working.Record(ctx, snap)
	return nil
}

func (c *Cached) RecordBatch(ctx context.Context, snaps []models.MarketSnapshot) error {
	if err := c.backing.RecordBatch(ctx, snaps); err != nil {
		return err
	}
	_ = c.working.RecordBatch(ctx, snaps)
	return nil
}

func (c *Cached) Latest(ctx context.Context, key models.RealmKey, itemID int64) (*models.MarketSnapshot, error) {
	if snap, err := c.working.Latest(ctx, key, itemID); err == nil {
		return snap, nil
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	snap, err := c.backing.Latest(ctx, key, itemID)
	if err != nil {
		return nil, err
	}
	_ = c.working.Record(ctx, snap)
	return snap, nil
}

func (c *Cached) QuerySeries(ctx context.Context, key models.RealmKey, itemID int64, since, until time.Time) ([]models.MarketSnapshot, error) {
	return c.backing.QuerySeries(ctx, key, itemID, since, until)
}

func (c *Cached) LatestPerItem(ctx context.Context, key models.RealmKey, since time.Time) ([]models.MarketSnapshot, error) {
	return c.backing.LatestPerItem(ctx, key, since)
}

func (c *Cached) SeriesInWindow(ctx context.Context, key models.RealmKey, since time.Time) (map[int64][]models.MarketSnapshot, error) {
	return c.backing.SeriesInWindow(ctx, key, since)
}

func (c *Cached) Prune(ctx context.Context, now time.Time) (PruneResult, error) {
	res, err := c.backing.Prune(ctx, now)
	if err != nil {
		return res, err
	}
	_, _ = c.working.Prune(ctx, now)
	return res, nil
}
