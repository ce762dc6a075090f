package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// PriceBucket is one band of the price distribution: total quantity listed
// at (or within) a price point.
type PriceBucket struct {
	Price    float64 `json:"price"`
	Quantity int64   `json:"quantity"`
}

// PriceDistribution is the ordered (ascending by price) set of price buckets
// for one snapshot. Stored as a JSON column; nil after distribution-retention
// pruning.
type PriceDistribution []PriceBucket

// Value implements driver.Valuer so gorm can persist the distribution as JSON.
func (d PriceDistribution) Value() (driver.Value, error) {
	if d == nil {
		return nil, nil
	}
	return json.Marshal(d)
}

// Scan implements sql.Scanner.
func (d *PriceDistribution) Scan(value interface{}) error {
	if value == nil {
		*d = nil
		return nil
	}
	var b []byte
	switch v := value.(type) {
	case []byte:
		b = v
	case string:
		b = []byte(v)
	default:
		return fmt.Errorf("unsupported price distribution column type %T", value)
	}
	if len(b) == 0 {
		*d = nil
		return nil
	}
	return json.Unmarshal(b, d)
}

// MarketSnapshot is one hourly aggregate of all auction listings for one item
// on one realm. Immutable after creation; a re-capture for the same hour
// replaces the whole record.
type MarketSnapshot struct {
	ID uint `json:"-" gorm:"primaryKey"`

	Region      string `json:"region" gorm:"size:8;not null;uniqueIndex:idx_snapshot_key,priority:1"`
	RealmSlug   string `json:"realm_slug" gorm:"size:64;not null;uniqueIndex:idx_snapshot_key,priority:2"`
	GameVersion string `json:"game_version" gorm:"size:16;not null;uniqueIndex:idx_snapshot_key,priority:3"`
	ItemID      int64  `json:"item_id" gorm:"not null;uniqueIndex:idx_snapshot_key,priority:4;index"`

	// CapturedAt is truncated to the hour (UTC) before storage.
	CapturedAt time.Time `json:"captured_at" gorm:"not null;uniqueIndex:idx_snapshot_key,priority:5;index"`

	TotalQuantity     int64 `json:"total_quantity" gorm:"not null"`
	AuctionCount      int   `json:"auction_count" gorm:"not null"`
	UniqueSellerCount int   `json:"unique_seller_count" gorm:"not null"`

	MinPrice    float64 `json:"min_price"`
	MaxPrice    float64 `json:"max_price"`
	MeanPrice   float64 `json:"mean_price"`
	MedianPrice float64 `json:"median_price"`
	StdDevPrice float64 `json:"std_dev_price"`

	// TopSellerShare is the fraction of total quantity held by the largest
	// seller, in [0,1]. Zero when seller identity is unavailable upstream.
	TopSellerShare float64 `json:"top_seller_share"`

	PriceDistribution PriceDistribution `json:"price_distribution,omitempty" gorm:"type:json"`
}

// Key returns the realm partition the snapshot belongs to.
func (s *MarketSnapshot) Key() RealmKey {
	return RealmKey{Region: s.Region, Slug: s.RealmSlug, GameVersion: s.GameVersion}
}

// AlignHour truncates a capture timestamp to its hour boundary in UTC.
// Duplicate captures within the same hour collapse onto one record.
func AlignHour(t time.Time) time.Time {
	return t.UTC().Truncate(time.Hour)
}
