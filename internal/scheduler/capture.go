package scheduler

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"wow-guild-mcp/internal/models"
	"wow-guild-mcp/internal/services/activity"
	"wow-guild-mcp/internal/services/blizzard"
	"wow-guild-mcp/internal/services/history"
	"wow-guild-mcp/internal/services/market"
)

// captureConcurrency bounds how many realms are fetched at once. The shared
// client rate limit is the real throttle; this just keeps goroutine count and
// peak listing memory sane.
const captureConcurrency = 3

// CommoditiesSlug is the synthetic realm the region-wide commodity market is
// stored under. Stackable materials trade region-wide on retail rather than
// per realm, so their listing has no connected-realm ID and no sellers.
const CommoditiesSlug = "commodities"

// AuctionSource is the slice of the upstream client the capturer needs.
type AuctionSource interface {
	ConnectedRealmID(ctx context.Context, realmSlug string) (int64, error)
	Auctions(ctx context.Context, connectedRealmID int64) ([]market.Listing, error)
	Commodities(ctx context.Context) ([]market.Listing, error)
}

// Options configures the capture scheduler.
type Options struct {
	Region      string
	GameVersion string
	Realms      []string

	Interval     time.Duration
	RealmTimeout time.Duration
	TopItemsCap  int
}

// RealmResult is the outcome of capturing one realm in a cycle.
type RealmResult struct {
	Realm        string        `json:"realm"`
	ListingCount int           `json:"listing_count"`
	ItemCount    int           `json:"item_count"`
	Duration     time.Duration `json:"duration"`
	Error        string        `json:"error,omitempty"`
}

// CycleResult is the outcome of one full capture cycle across all realms.
type CycleResult struct {
	CapturedAt time.Time              `json:"captured_at"`
	Realms     map[string]RealmResult `json:"realms"`
}

// Capturer drives the hourly snapshot cycle: fetch every configured realm's
// auctions, aggregate per item, persist the top items by listed quantity.
// One realm failing never blocks the others.
type Capturer struct {
	source   AuctionSource
	store    history.Store
	logger   *zap.Logger
	recorder *activity.Recorder
	opts     Options

	now func() time.Time

	// realmIDs caches slug to connected-realm ID; the mapping is static.
	realmMu  sync.Mutex
	realmIDs map[string]int64
}

func NewCapturer(source AuctionSource, store history.Store, recorder *activity.Recorder, logger *zap.Logger, opts Options) *Capturer {
	if opts.GameVersion == "" {
		opts.GameVersion = models.VersionRetail
	}
	if opts.Interval <= 0 {
		opts.Interval = time.Hour
	}
	if opts.RealmTimeout <= 0 {
		opts.RealmTimeout = 5 * time.Minute
	}
	return &Capturer{
		source:   source,
		store:    store,
		logger:   logger,
		recorder: recorder,
		opts:     opts,
		now:      time.Now,
		realmIDs: make(map[string]int64),
	}
}

// CaptureRealm runs one fetch-aggregate-persist pass for a single realm.
// All snapshots of the pass share one hour-aligned capture time so re-runs
// within the same hour replace rather than duplicate.
func (c *Capturer) CaptureRealm(ctx context.Context, realmSlug string) RealmResult {
	started := c.now()
	res := RealmResult{Realm: realmSlug}
	key := models.NewRealmKey(c.opts.Region, realmSlug, c.opts.GameVersion)

	err := c.captureRealm(ctx, key, &res)
	res.Duration = c.now().Sub(started)
	if err != nil {
		res.Error = err.Error()
		c.logger.Error("realm capture failed",
			zap.String("realm", key.String()),
			zap.Duration("duration", res.Duration),
			zap.Error(err))
	} else {
		c.logger.Info("realm capture complete",
			zap.String("realm", key.String()),
			zap.Int("listings", res.ListingCount),
			zap.Int("items", res.ItemCount),
			zap.Duration("duration", res.Duration))
	}
	c.recorder.Record("capture:"+realmSlug, res.Duration, err, blizzard.ErrorKind(err))
	return res
}

func (c *Capturer) captureRealm(ctx context.Context, key models.RealmKey, res *RealmResult) error {
	listings, err := c.fetchListings(ctx, key.Slug)
	if err != nil {
		return err
	}
	res.ListingCount = len(listings)

	aggregates := market.Aggregate(listings)
	snaps := c.topSnapshots(aggregates, key, c.now())
	res.ItemCount = len(snaps)
	if len(snaps) == 0 {
		return nil
	}
	return c.store.RecordBatch(ctx, snaps)
}

// fetchListings fetches a realm's auction house, or the region-wide
// commodity listing when slug is the synthetic commodities realm.
func (c *Capturer) fetchListings(ctx context.Context, slug string) ([]market.Listing, error) {
	if slug == CommoditiesSlug {
		return c.source.Commodities(ctx)
	}
	connectedID, err := c.connectedRealmID(ctx, slug)
	if err != nil {
		return nil, err
	}
	return c.source.Auctions(ctx, connectedID)
}

func (c *Capturer) connectedRealmID(ctx context.Context, slug string) (int64, error) {
	c.realmMu.Lock()
	id, ok := c.realmIDs[slug]
	c.realmMu.Unlock()
	if ok {
		return id, nil
	}
	id, err := c.source.ConnectedRealmID(ctx, slug)
	if err != nil {
		return 0, err
	}
	c.realmMu.Lock()
	c.realmIDs[slug] = id
	c.realmMu.Unlock()
	return id, nil
}

// topSnapshots keeps only the TopItemsCap busiest items by listed quantity.
// Ties break by item ID so the same market state always persists the same
// rows.
func (c *Capturer) topSnapshots(aggregates map[int64]*market.ItemAggregate, key models.RealmKey, capturedAt time.Time) []models.MarketSnapshot {
	ranked := make([]*market.ItemAggregate, 0, len(aggregates))
	for _, agg := range aggregates {
		ranked = append(ranked, agg)
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].TotalQuantity != ranked[j].TotalQuantity {
			return ranked[i].TotalQuantity > ranked[j].TotalQuantity
		}
		return ranked[i].ItemID < ranked[j].ItemID
	})
	if limit := c.opts.TopItemsCap; limit > 0 && len(ranked) > limit {
		ranked = ranked[:limit]
	}

	snaps := make([]models.MarketSnapshot, 0, len(ranked))
	for _, agg := range ranked {
		snaps = append(snaps, agg.Snapshot(key, capturedAt))
	}
	return snaps
}

// CaptureAll captures every configured realm concurrently. On retail the
// region-wide commodity market is captured too, under the synthetic
// commodities realm.
func (c *Capturer) CaptureAll(ctx context.Context) CycleResult {
	realms := c.opts.Realms
	if c.opts.GameVersion == models.VersionRetail {
		realms = append(append(make([]string, 0, len(realms)+1), realms...), CommoditiesSlug)
	}
	return c.CaptureRealms(ctx, realms)
}

// CaptureRealms captures the given realms concurrently. Each realm gets its
// own timeout and its own result entry; a failure is recorded there and
// never aborts the cycle.
func (c *Capturer) CaptureRealms(ctx context.Context, realms []string) CycleResult {
	cycle := CycleResult{
		CapturedAt: models.AlignHour(c.now()),
		Realms:     make(map[string]RealmResult, len(realms)),
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(captureConcurrency)
	results := make([]RealmResult, len(realms))
	for i, slug := range realms {
		g.Go(func() error {
			realmCtx, cancel := context.WithTimeout(ctx, c.opts.RealmTimeout)
			defer cancel()
			results[i] = c.CaptureRealm(realmCtx, slug)
			return nil
		})
	}
	_ = g.Wait()

	for _, res := range results {
		cycle.Realms[res.Realm] = res
	}
	return cycle
}

// Run blocks, capturing on the configured interval and pruning once per
// cycle, until the context is cancelled. The first cycle runs immediately.
func (c *Capturer) Run(ctx context.Context) {
	ticker := time.NewTicker(c.opts.Interval)
	defer ticker.Stop()

	c.cycle(ctx)
	for {
		select {
		case <-ctx.Done():
			c.logger.Info("capture scheduler stopped")
			return
		case <-ticker.C:
			c.cycle(ctx)
		}
	}
}

func (c *Capturer) cycle(ctx context.Context) {
	cycle := c.CaptureAll(ctx)
	failed := 0
	for _, res := range cycle.Realms {
		if res.Error != "" {
			failed++
		}
	}
	c.logger.Info("capture cycle complete",
		zap.Time("captured_at", cycle.CapturedAt),
		zap.Int("realms", len(cycle.Realms)),
		zap.Int("failed", failed))

	pruned, err := c.store.Prune(ctx, c.now())
	if err != nil {
		c.logger.Error("retention prune failed", zap.Error(err))
		return
	}
	if pruned.SnapshotsDeleted > 0 || pruned.DistributionsCleared > 0 {
		c.logger.Info("retention prune complete",
			zap.Int64("snapshots_deleted", pruned.SnapshotsDeleted),
			zap.Int64("distributions_cleared", pruned.DistributionsCleared))
	}
}
