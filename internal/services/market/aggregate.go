package market

import (
	"math"
	"sort"
	"time"

	"wow-guild-mcp/internal/models"
)

// Listing is one active auction as returned by the upstream fetch. Listings
// only live for the duration of a single aggregation pass.
type Listing struct {
	AuctionID int64
	ItemID    int64
	Quantity  int64
	UnitPrice float64
	// Seller is empty when the upstream anonymizes sellers (commodity
	// endpoints do not expose them).
	Seller string
}

// distinctPriceCap is the number of distinct price points above which the
// price distribution switches to fixed-width buckets.
const distinctPriceCap = 50

// ItemAggregate is the one-pass reduction of all listings for a single item.
type ItemAggregate struct {
	ItemID            int64
	TotalQuantity     int64
	AuctionCount      int
	UniqueSellerCount int

	MinPrice    float64
	MaxPrice    float64
	MeanPrice   float64
	MedianPrice float64
	StdDevPrice float64

	TopSellerShare float64
	Distribution   models.PriceDistribution
}

// Aggregate reduces a realm-wide auction listing into per-item aggregates.
// Price statistics are quantity-weighted: a listing of 200 units counts 200
// times its unit price, so the stats reflect market exposure rather than
// listing count. Items without any valid listing are absent from the result.
func Aggregate(listings []Listing) map[int64]*ItemAggregate {
	groups := make(map[int64][]Listing)
	for _, l := range listings {
		if l.ItemID == 0 || l.Quantity <= 0 || l.UnitPrice <= 0 {
			continue
		}
		groups[l.ItemID] = append(groups[l.ItemID], l)
	}

	out := make(map[int64]*ItemAggregate, len(groups))
	for itemID, group := range groups {
		out[itemID] = aggregateItem(itemID, group)
	}
	return out
}

func aggregateItem(itemID int64, group []Listing) *ItemAggregate {
	sort.Slice(group, func(i, j int) bool { return group[i].UnitPrice < group[j].UnitPrice })

	var totalQty int64
	sellerQty := make(map[string]int64)
	haveSellers := false
	for _, l := range group {
		totalQty += l.Quantity
		if l.Seller != "" {
			haveSellers = true
			sellerQty[l.Seller] += l.Quantity
		}
	}

	agg := &ItemAggregate{
		ItemID:        itemID,
		TotalQuantity: totalQty,
		AuctionCount:  len(group),
		MinPrice:      group[0].UnitPrice,
		MaxPrice:      group[len(group)-1].UnitPrice,
	}

	// Degraded mode: commodity listings carry no seller identity, so the
	// seller count falls back to the auction count and concentration is
	// reported as zero rather than a fake 100%.
	if haveSellers {
		agg.UniqueSellerCount = len(sellerQty)
		var topQty int64
		for _, q := range sellerQty {
			if q > topQty {
				topQty = q
			}
		}
		if totalQty > 0 {
			agg.TopSellerShare = float64(topQty) / float64(totalQty)
		}
	} else {
		agg.UniqueSellerCount = len(group)
		agg.TopSellerShare = 0
	}

	agg.MeanPrice = weightedMean(group, totalQty)
	agg.MedianPrice = weightedMedian(group, totalQty)
	agg.StdDevPrice = weightedStdDev(group, totalQty, agg.MeanPrice)
	agg.Distribution = buildDistribution(group)
	return agg
}

// Snapshot converts the aggregate into a durable snapshot for the given
// market partition and capture hour.
func (a *ItemAggregate) Snapshot(key models.RealmKey, capturedAt time.Time) models.MarketSnapshot {
	return models.MarketSnapshot{
		Region:            key.Region,
		RealmSlug:         key.Slug,
		GameVersion:       key.GameVersion,
		ItemID:            a.ItemID,
		CapturedAt:        models.AlignHour(capturedAt),
		TotalQuantity:     a.TotalQuantity,
		AuctionCount:      a.AuctionCount,
		UniqueSellerCount: a.UniqueSellerCount,
		MinPrice:          a.MinPrice,
		MaxPrice:          a.MaxPrice,
		MeanPrice:         a.MeanPrice,
		MedianPrice:       a.MedianPrice,
		StdDevPrice:       a.StdDevPrice,
		TopSellerShare:    a.TopSellerShare,
		PriceDistribution: a.Distribution,
	}
}

func weightedMean(sorted []Listing, totalQty int64) float64 {
	if totalQty == 0 {
		return 0
	}
	var sum float64
	for _, l := range sorted {
		sum += l.UnitPrice * float64(l.Quantity)
	}
	return sum / float64(totalQty)
}

// weightedMedian returns the unit price at which half of the listed quantity
// is at or below. Input must be sorted ascending by price.
func weightedMedian(sorted []Listing, totalQty int64) float64 {
	if totalQty == 0 {
		return 0
	}
	var cum int64
	for _, l := range sorted {
		cum += l.Quantity
		if cum*2 >= totalQty {
			return l.UnitPrice
		}
	}
	return sorted[len(sorted)-1].UnitPrice
}

func weightedStdDev(sorted []Listing, totalQty int64, mean float64) float64 {
	if totalQty == 0 || len(sorted) < 2 {
		// A single listing has zero spread by definition.
		return 0
	}
	var sum float64
	for _, l := range sorted {
		d := l.UnitPrice - mean
		sum += float64(l.Quantity) * d * d
	}
	return math.Sqrt(sum / float64(totalQty))
}

// buildDistribution buckets listed quantity by price, ascending. Distinct
// price points are used directly until distinctPriceCap, after which the
// range collapses into fixed-width bands keyed by their lower bound.
func buildDistribution(sorted []Listing) models.PriceDistribution {
	if len(sorted) == 0 {
		return nil
	}

	distinct := make(models.PriceDistribution, 0, distinctPriceCap)
	for _, l := range sorted {
		if n := len(distinct); n > 0 && distinct[n-1].Price == l.UnitPrice {
			distinct[n-1].Quantity += l.Quantity
			continue
		}
		distinct = append(distinct, models.PriceBucket{Price: l.UnitPrice, Quantity: l.Quantity})
	}
	if len(distinct) <= distinctPriceCap {
		return distinct
	}

	min, max := sorted[0].UnitPrice, sorted[len(sorted)-1].UnitPrice
	width := (max - min) / float64(distinctPriceCap)
	buckets := make([]int64, distinctPriceCap)
	for _, l := range sorted {
		idx := int((l.UnitPrice - min) / width)
		if idx >= distinctPriceCap {
			idx = distinctPriceCap - 1
		}
		buckets[idx] += l.Quantity
	}

	dist := make(models.PriceDistribution, 0, distinctPriceCap)
	for i, qty := range buckets {
		if qty == 0 {
			continue
		}
		dist = append(dist, models.PriceBucket{
			Price:    min + width*float64(i),
			Quantity: qty,
		})
	}
	return dist
}
