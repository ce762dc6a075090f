package market

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wow-guild-mcp/internal/models"
)

func series(points ...[2]float64) []models.MarketSnapshot {
	base := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)
	out := make([]models.MarketSnapshot, 0, len(points))
	for i, p := range points {
		out = append(out, models.MarketSnapshot{
			ItemID:        100,
			CapturedAt:    base.Add(time.Duration(i) * time.Hour),
			TotalQuantity: int64(p[0]),
			MeanPrice:     p[1],
		})
	}
	return out
}

func TestEstimatedSalesSumsDrops(t *testing.T) {
	// 100 -> 70 -> 90 -> 60: drops of 30 and 30, the restock ignored.
	sales, err := EstimatedSales(series([2]float64{100, 50}, [2]float64{70, 50}, [2]float64{90, 50}, [2]float64{60, 50}))
	require.NoError(t, err)
	assert.Equal(t, int64(60), sales)
}

func TestEstimatedSalesOnlyIncreases(t *testing.T) {
	sales, err := EstimatedSales(series([2]float64{10, 50}, [2]float64{20, 50}, [2]float64{30, 50}))
	require.NoError(t, err)
	assert.Zero(t, sales)
}

func TestEstimatedSalesInsufficientData(t *testing.T) {
	_, err := EstimatedSales(series([2]float64{100, 50}))
	assert.ErrorIs(t, err, ErrInsufficientData)

	_, err = EstimatedSales(nil)
	assert.ErrorIs(t, err, ErrInsufficientData)
}

func TestPriceTrendUp(t *testing.T) {
	trend, err := PriceTrend(series([2]float64{100, 50}, [2]float64{90, 52}, [2]float64{80, 55}))
	require.NoError(t, err)
	assert.Equal(t, TrendUp, trend.Direction)
	assert.InDelta(t, 10.0, trend.ChangePct, 1e-9)
	assert.Equal(t, float64(50), trend.FirstPrice)
	assert.Equal(t, float64(55), trend.LastPrice)
	assert.Equal(t, 3, trend.DataPoints)
}

func TestPriceTrendDown(t *testing.T) {
	trend, err := PriceTrend(series([2]float64{100, 100}, [2]float64{100, 80}))
	require.NoError(t, err)
	assert.Equal(t, TrendDown, trend.Direction)
	assert.InDelta(t, -20.0, trend.ChangePct, 1e-9)
}

func TestPriceTrendFlatWithinTolerance(t *testing.T) {
	// +0.5% stays inside the 1% flat band.
	trend, err := PriceTrend(series([2]float64{100, 1000}, [2]float64{100, 1005}))
	require.NoError(t, err)
	assert.Equal(t, TrendFlat, trend.Direction)
}

func TestPriceTrendZeroFirstPrice(t *testing.T) {
	trend, err := PriceTrend(series([2]float64{100, 0}, [2]float64{100, 50}))
	require.NoError(t, err)
	assert.Zero(t, trend.ChangePct)
	assert.Equal(t, TrendFlat, trend.Direction)
}

func TestPriceTrendInsufficientData(t *testing.T) {
	_, err := PriceTrend(series([2]float64{100, 50}))
	assert.ErrorIs(t, err, ErrInsufficientData)
}
