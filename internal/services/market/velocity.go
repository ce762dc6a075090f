package market

import (
	"errors"
	"math"
	"time"

	"wow-guild-mcp/internal/models"
)

// ErrInsufficientData is returned when a series is too short to derive a
// metric (fewer than two snapshots). Callers hit this routinely for newly
// tracked items, so it is an expected result, not a failure.
var ErrInsufficientData = errors.New("insufficient data: need at least two snapshots")

// flatTolerancePct is the band within which a price change counts as flat.
const flatTolerancePct = 1.0

type TrendDirection string

const (
	TrendUp   TrendDirection = "up"
	TrendDown TrendDirection = "down"
	TrendFlat TrendDirection = "flat"
)

// Trend describes the weighted-mean price movement from the first to the
// last snapshot of a series.
type Trend struct {
	Direction  TrendDirection `json:"direction"`
	ChangePct  float64        `json:"change_pct"`
	FirstPrice float64        `json:"first_price"`
	LastPrice  float64        `json:"last_price"`
	DataPoints int            `json:"data_points"`
	FirstAt    time.Time      `json:"first_at"`
	LastAt     time.Time      `json:"last_at"`
}

// EstimatedSales estimates units sold across a time-ascending series as the
// sum of per-interval quantity drops. A quantity increase means new listings
// outpaced sales, which contributes zero, never negative sales.
func EstimatedSales(series []models.MarketSnapshot) (int64, error) {
	if len(series) < 2 {
		return 0, ErrInsufficientData
	}
	var sales int64
	for i := 1; i < len(series); i++ {
		if drop := series[i-1].TotalQuantity - series[i].TotalQuantity; drop > 0 {
			sales += drop
		}
	}
	return sales, nil
}

// PriceTrend computes the direction and percent change of the weighted-mean
// price over a time-ascending series.
func PriceTrend(series []models.MarketSnapshot) (Trend, error) {
	if len(series) < 2 {
		return Trend{}, ErrInsufficientData
	}
	first, last := series[0], series[len(series)-1]
	t := Trend{
		FirstPrice: first.MeanPrice,
		LastPrice:  last.MeanPrice,
		DataPoints: len(series),
		FirstAt:    first.CapturedAt,
		LastAt:     last.CapturedAt,
	}
	if first.MeanPrice > 0 {
		t.ChangePct = (last.MeanPrice - first.MeanPrice) / first.MeanPrice * 100
	}
	switch {
	case math.Abs(t.ChangePct) <= flatTolerancePct:
		t.Direction = TrendFlat
	case t.ChangePct > 0:
		t.Direction = TrendUp
	default:
		t.Direction = TrendDown
	}
	return t, nil
}
