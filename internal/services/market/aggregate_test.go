package market

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wow-guild-mcp/internal/models"
)

func TestAggregateGroupsByItem(t *testing.T) {
	listings := []Listing{
		{AuctionID: 1, ItemID: 100, Quantity: 10, UnitPrice: 50, Seller: "a"},
		{AuctionID: 2, ItemID: 100, Quantity: 30, UnitPrice: 60, Seller: "b"},
		{AuctionID: 3, ItemID: 200, Quantity: 5, UnitPrice: 1000, Seller: "a"},
	}

	aggs := Aggregate(listings)
	require.Len(t, aggs, 2)

	agg := aggs[100]
	require.NotNil(t, agg)
	assert.Equal(t, int64(40), agg.TotalQuantity)
	assert.Equal(t, 2, agg.AuctionCount)
	assert.Equal(t, 2, agg.UniqueSellerCount)
	assert.Equal(t, float64(50), agg.MinPrice)
	assert.Equal(t, float64(60), agg.MaxPrice)
}

func TestAggregateSkipsInvalidListings(t *testing.T) {
	listings := []Listing{
		{AuctionID: 1, ItemID: 0, Quantity: 10, UnitPrice: 50},
		{AuctionID: 2, ItemID: 100, Quantity: 0, UnitPrice: 50},
		{AuctionID: 3, ItemID: 100, Quantity: 10, UnitPrice: 0},
	}
	assert.Empty(t, Aggregate(listings))
}

func TestAggregateWeightedStats(t *testing.T) {
	// 10 units at 50 and 30 units at 60: mean is quantity weighted.
	listings := []Listing{
		{AuctionID: 1, ItemID: 100, Quantity: 10, UnitPrice: 50, Seller: "a"},
		{AuctionID: 2, ItemID: 100, Quantity: 30, UnitPrice: 60, Seller: "b"},
	}

	agg := Aggregate(listings)[100]
	require.NotNil(t, agg)
	assert.InDelta(t, 57.5, agg.MeanPrice, 1e-9)
	// Half of 40 units is reached within the 60-price listing.
	assert.Equal(t, float64(60), agg.MedianPrice)
	assert.Greater(t, agg.StdDevPrice, 0.0)
}

func TestAggregateSingleListingHasZeroSpread(t *testing.T) {
	agg := Aggregate([]Listing{
		{AuctionID: 1, ItemID: 100, Quantity: 7, UnitPrice: 123, Seller: "a"},
	})[100]
	require.NotNil(t, agg)
	assert.Equal(t, float64(123), agg.MeanPrice)
	assert.Equal(t, float64(123), agg.MedianPrice)
	assert.Zero(t, agg.StdDevPrice)
}

func TestAggregateSellerConcentration(t *testing.T) {
	listings := []Listing{
		{AuctionID: 1, ItemID: 100, Quantity: 75, UnitPrice: 10, Seller: "whale"},
		{AuctionID: 2, ItemID: 100, Quantity: 15, UnitPrice: 11, Seller: "b"},
		{AuctionID: 3, ItemID: 100, Quantity: 10, UnitPrice: 12, Seller: "c"},
	}

	agg := Aggregate(listings)[100]
	require.NotNil(t, agg)
	assert.Equal(t, 3, agg.UniqueSellerCount)
	assert.InDelta(t, 0.75, agg.TopSellerShare, 1e-9)
}

func TestAggregateDegradedSellerMode(t *testing.T) {
	// Commodity listings carry no seller identity.
	listings := []Listing{
		{AuctionID: 1, ItemID: 100, Quantity: 10, UnitPrice: 50},
		{AuctionID: 2, ItemID: 100, Quantity: 20, UnitPrice: 55},
		{AuctionID: 3, ItemID: 100, Quantity: 30, UnitPrice: 60},
	}

	agg := Aggregate(listings)[100]
	require.NotNil(t, agg)
	assert.Equal(t, agg.AuctionCount, agg.UniqueSellerCount)
	assert.Zero(t, agg.TopSellerShare)
}

func TestDistributionDistinctPrices(t *testing.T) {
	listings := []Listing{
		{AuctionID: 1, ItemID: 100, Quantity: 10, UnitPrice: 50, Seller: "a"},
		{AuctionID: 2, ItemID: 100, Quantity: 5, UnitPrice: 50, Seller: "b"},
		{AuctionID: 3, ItemID: 100, Quantity: 20, UnitPrice: 60, Seller: "a"},
	}

	agg := Aggregate(listings)[100]
	require.NotNil(t, agg)
	require.Len(t, agg.Distribution, 2)
	assert.Equal(t, models.PriceBucket{Price: 50, Quantity: 15}, agg.Distribution[0])
	assert.Equal(t, models.PriceBucket{Price: 60, Quantity: 20}, agg.Distribution[1])
}

func TestDistributionCollapsesToFixedWidth(t *testing.T) {
	var listings []Listing
	for i := 0; i < distinctPriceCap+25; i++ {
		listings = append(listings, Listing{
			AuctionID: int64(i + 1),
			ItemID:    100,
			Quantity:  1,
			UnitPrice: float64(100 + i),
			Seller:    "a",
		})
	}

	agg := Aggregate(listings)[100]
	require.NotNil(t, agg)
	assert.LessOrEqual(t, len(agg.Distribution), distinctPriceCap)

	var total int64
	for i, b := range agg.Distribution {
		total += b.Quantity
		if i > 0 {
			assert.Greater(t, b.Price, agg.Distribution[i-1].Price)
		}
	}
	assert.Equal(t, agg.TotalQuantity, total)
}

func TestSnapshotAlignsCaptureHour(t *testing.T) {
	agg := Aggregate([]Listing{
		{AuctionID: 1, ItemID: 100, Quantity: 1, UnitPrice: 10, Seller: "a"},
	})[100]
	require.NotNil(t, agg)

	key := models.NewRealmKey("us", "stormrage", models.VersionRetail)
	at := time.Date(2026, 3, 14, 15, 9, 26, 535000000, time.UTC)
	snap := agg.Snapshot(key, at)

	assert.Equal(t, time.Date(2026, 3, 14, 15, 0, 0, 0, time.UTC), snap.CapturedAt)
	assert.Equal(t, "us", snap.Region)
	assert.Equal(t, "stormrage", snap.RealmSlug)
	assert.Equal(t, int64(100), snap.ItemID)
}
