package query

import (
	"context"
	"errors"
	"sort"
	"time"

	"wow-guild-mcp/internal/models"
	"wow-guild-mcp/internal/services/history"
	"wow-guild-mcp/internal/services/market"
)

// topItemsFreshness bounds how old a "most recent" snapshot may be before an
// item drops out of the top-items ranking.
const topItemsFreshness = 48 * time.Hour

// maxTrendHours caps trend/velocity windows at the aggregate retention
// horizon (30 days).
const maxTrendHours = 720

// Service answers the canned market queries against the historical store.
type Service struct {
	store history.Store
	limit int
	now   func() time.Time
}

// New builds the query service. limit caps top-items responses (and is
// itself capped by configuration at 500).
func New(store history.Store, limit int) *Service {
	if limit <= 0 {
		limit = 50
	}
	return &Service{store: store, limit: limit, now: time.Now}
}

// TopItem is one row of the top-items ranking.
type TopItem struct {
	ItemID            int64     `json:"item_id"`
	TotalQuantity     int64     `json:"total_quantity"`
	AuctionCount      int       `json:"auction_count"`
	UniqueSellerCount int       `json:"unique_seller_count"`
	MeanPrice         float64   `json:"mean_price"`
	MedianPrice       float64   `json:"median_price"`
	TopSellerShare    float64   `json:"top_seller_share"`
	CapturedAt        time.Time `json:"captured_at"`
}

// TopItems ranks items on a realm by listed quantity in their most recent
// snapshot, descending. Ties break by item ID ascending so the ordering is
// deterministic.
func (s *Service) TopItems(ctx context.Context, key models.RealmKey, limit int) ([]TopItem, error) {
	if !key.Valid() {
		return nil, errInvalidRealm(key)
	}
	if limit <= 0 || limit > s.limit {
		limit = s.limit
	}
	latest, err := s.store.LatestPerItem(ctx, key, s.now().Add(-topItemsFreshness))
	if err != nil {
		return nil, err
	}
	sort.Slice(latest, func(i, j int) bool {
		if latest[i].TotalQuantity != latest[j].TotalQuantity {
			return latest[i].TotalQuantity > latest[j].TotalQuantity
		}
		return latest[i].ItemID < latest[j].ItemID
	})
	if len(latest) > limit {
		latest = latest[:limit]
	}
	out := make([]TopItem, 0, len(latest))
	for _, snap := range latest {
		out = append(out, TopItem{
			ItemID:            snap.ItemID,
			TotalQuantity:     snap.TotalQuantity,
			AuctionCount:      snap.AuctionCount,
			UniqueSellerCount: snap.UniqueSellerCount,
			MeanPrice:         snap.MeanPrice,
			MedianPrice:       snap.MedianPrice,
			TopSellerShare:    snap.TopSellerShare,
			CapturedAt:        snap.CapturedAt,
		})
	}
	return out, nil
}

// Depth is the market depth view: the latest snapshot plus its price
// distribution.
type Depth struct {
	Snapshot     models.MarketSnapshot    `json:"snapshot"`
	Distribution models.PriceDistribution `json:"price_distribution,omitempty"`
}

// MarketDepth returns the most recent snapshot for one item with its price
// distribution. history.ErrNotFound propagates when the pair has never been
// captured.
func (s *Service) MarketDepth(ctx context.Context, key models.RealmKey, itemID int64) (*Depth, error) {
	if !key.Valid() {
		return nil, errInvalidRealm(key)
	}
	snap, err := s.store.Latest(ctx, key, itemID)
	if err != nil {
		return nil, err
	}
	return &Depth{Snapshot: *snap, Distribution: snap.PriceDistribution}, nil
}

// PriceTrend computes the weighted-mean price trend for one item over the
// last hours. market.ErrInsufficientData propagates for series shorter than
// two snapshots.
func (s *Service) PriceTrend(ctx context.Context, key models.RealmKey, itemID int64, hours int) (market.Trend, error) {
	if !key.Valid() {
		return market.Trend{}, errInvalidRealm(key)
	}
	hours = clampHours(hours)
	now := s.now()
	series, err := s.store.QuerySeries(ctx, key, itemID, now.Add(-time.Duration(hours)*time.Hour), now)
	if err != nil {
		return market.Trend{}, err
	}
	return market.PriceTrend(series)
}

// ItemVelocity is one row of the market-velocity ranking.
type ItemVelocity struct {
	ItemID         int64   `json:"item_id"`
	EstimatedSales int64   `json:"estimated_sales"`
	Snapshots      int     `json:"snapshots"`
	LatestQuantity int64   `json:"latest_quantity"`
	LatestPrice    float64 `json:"latest_mean_price"`
}

// MarketVelocity estimates sales for every item with at least two snapshots
// in the window, ranked by estimated sales descending (ties by item ID
// ascending). Items with insufficient data are simply absent.
func (s *Service) MarketVelocity(ctx context.Context, key models.RealmKey, hours int) ([]ItemVelocity, error) {
	if !key.Valid() {
		return nil, errInvalidRealm(key)
	}
	hours = clampHours(hours)
	window, err := s.store.SeriesInWindow(ctx, key, s.now().Add(-time.Duration(hours)*time.Hour))
	if err != nil {
		return nil, err
	}
	out := make([]ItemVelocity, 0, len(window))
	for itemID, series := range window {
		sales, err := market.EstimatedSales(series)
		if errors.Is(err, market.ErrInsufficientData) {
			continue
		}
		if err != nil {
			return nil, err
		}
		last := series[len(series)-1]
		out = append(out, ItemVelocity{
			ItemID:         itemID,
			EstimatedSales: sales,
			Snapshots:      len(series),
			LatestQuantity: last.TotalQuantity,
			LatestPrice:    last.MeanPrice,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].EstimatedSales != out[j].EstimatedSales {
			return out[i].EstimatedSales > out[j].EstimatedSales
		}
		return out[i].ItemID < out[j].ItemID
	})
	return out, nil
}

// RealmHealth reports how fresh one realm's newest snapshot is.
type RealmHealth struct {
	Realm       string    `json:"realm"`
	Region      string    `json:"region"`
	GameVersion string    `json:"game_version"`
	LastCapture time.Time `json:"last_capture,omitempty"`
	AgeHours    float64   `json:"age_hours,omitempty"`
	ItemCount   int       `json:"item_count"`
	Status      string    `json:"status"`
}

// SnapshotHealth reports capture freshness per realm: "ok" within staleAfter,
// "stale" beyond it, "missing" when nothing recent exists at all.
func (s *Service) SnapshotHealth(ctx context.Context, keys []models.RealmKey, staleAfter time.Duration) ([]RealmHealth, error) {
	now := s.now()
	out := make([]RealmHealth, 0, len(keys))
	for _, key := range keys {
		h := RealmHealth{Realm: key.Slug, Region: key.Region, GameVersion: key.GameVersion}
		latest, err := s.store.LatestPerItem(ctx, key, now.Add(-topItemsFreshness))
		if err != nil {
			return nil, err
		}
		if len(latest) == 0 {
			h.Status = "missing"
			out = append(out, h)
			continue
		}
		for _, snap := range latest {
			if snap.CapturedAt.After(h.LastCapture) {
				h.LastCapture = snap.CapturedAt
			}
		}
		h.ItemCount = len(latest)
		h.AgeHours = now.Sub(h.LastCapture).Hours()
		h.Status = "ok"
		if now.Sub(h.LastCapture) > staleAfter {
			h.Status = "stale"
		}
		out = append(out, h)
	}
	return out, nil
}

func clampHours(hours int) int {
	if hours <= 0 {
		return 24
	}
	if hours > maxTrendHours {
		return maxTrendHours
	}
	return hours
}

func errInvalidRealm(key models.RealmKey) error {
	return &InvalidRealmError{Key: key}
}

// InvalidRealmError flags a malformed realm identifier before any storage
// access happens.
type InvalidRealmError struct {
	Key models.RealmKey
}

func (e *InvalidRealmError) Error() string {
	return "invalid realm key: " + e.Key.String()
}
