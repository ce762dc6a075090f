package mcp

import (
	"context"
	"sync"
	"testing"
	"time"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"wow-guild-mcp/internal/models"
	"wow-guild-mcp/internal/scheduler"
	"wow-guild-mcp/internal/services/history"
	"wow-guild-mcp/internal/services/market"
	"wow-guild-mcp/internal/services/query"
)

func toolReq(args map[string]any) mcplib.CallToolRequest {
	req := mcplib.CallToolRequest{}
	req.Params.Arguments = args
	return req
}

func isErrorResult(r *mcplib.CallToolResult) bool {
	return r != nil && r.IsError
}

func firstText(t *testing.T, r *mcplib.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, r.Content, "result has no content")
	txt, ok := r.Content[0].(mcplib.TextContent)
	require.True(t, ok, "first content item is not TextContent")
	return txt.Text
}

func newTestServer(t *testing.T, snaps ...models.MarketSnapshot) *Server {
	t.Helper()
	store := history.NewMemory(history.DefaultRetention(), 0)
	require.NoError(t, store.RecordBatch(context.Background(), snaps))
	return New(Options{
		Queries:     query.New(store, 500),
		Logger:      zap.NewNop(),
		Region:      "us",
		GameVersion: models.VersionRetail,
		Realms:      []string{"stormrage"},
	})
}

type recordedOp struct {
	operation string
	err       error
}

type fakeRecorder struct {
	mu  sync.Mutex
	ops []recordedOp
}

func (f *fakeRecorder) Record(operation string, _ time.Duration, err error, _ string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ops = append(f.ops, recordedOp{operation: operation, err: err})
}

type stubSource struct{}

func (stubSource) ConnectedRealmID(context.Context, string) (int64, error) { return 60, nil }

func (stubSource) Auctions(context.Context, int64) ([]market.Listing, error) {
	return []market.Listing{{AuctionID: 1, ItemID: 100, Quantity: 5, UnitPrice: 10, Seller: "s"}}, nil
}

func (stubSource) Commodities(context.Context) ([]market.Listing, error) { return nil, nil }

func marketSnap(itemID int64, hoursAgo int, qty int64, mean float64) models.MarketSnapshot {
	return models.MarketSnapshot{
		Region:        "us",
		RealmSlug:     "stormrage",
		GameVersion:   models.VersionRetail,
		ItemID:        itemID,
		CapturedAt:    time.Now().UTC().Add(-time.Duration(hoursAgo) * time.Hour),
		TotalQuantity: qty,
		AuctionCount:  1,
		MeanPrice:     mean,
		MedianPrice:   mean,
	}
}

func TestHandleGetTopItems(t *testing.T) {
	srv := newTestServer(t,
		marketSnap(100, 1, 500, 10),
		marketSnap(200, 1, 100, 20),
	)

	result, err := srv.handleGetTopItems(t.Context(), toolReq(map[string]any{"realm": "stormrage"}))
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.False(t, isErrorResult(result))
	text := firstText(t, result)
	assert.Contains(t, text, `"item_id":100`)
}

func TestHandleGetTopItemsMissingRealm(t *testing.T) {
	srv := newTestServer(t)
	result, err := srv.handleGetTopItems(t.Context(), toolReq(nil))
	require.NoError(t, err)
	assert.True(t, isErrorResult(result))
	assert.Contains(t, firstText(t, result), "realm")
}

func TestHandleGetTopItemsEmptyRealm(t *testing.T) {
	srv := newTestServer(t)
	result, err := srv.handleGetTopItems(t.Context(), toolReq(map[string]any{"realm": "illidan"}))
	require.NoError(t, err)
	assert.False(t, isErrorResult(result))
	assert.Contains(t, firstText(t, result), "No recent snapshots")
}

func TestHandleGetMarketDepth(t *testing.T) {
	srv := newTestServer(t, marketSnap(168487, 1, 40, 55))

	result, err := srv.handleGetMarketDepth(t.Context(), toolReq(map[string]any{
		"realm": "stormrage", "item_id": float64(168487),
	}))
	require.NoError(t, err)
	assert.False(t, isErrorResult(result))
	assert.Contains(t, firstText(t, result), `"item_id":168487`)
}

func TestHandleGetMarketDepthUnknownItem(t *testing.T) {
	srv := newTestServer(t)
	result, err := srv.handleGetMarketDepth(t.Context(), toolReq(map[string]any{
		"realm": "stormrage", "item_id": float64(42),
	}))
	require.NoError(t, err)
	assert.False(t, isErrorResult(result))
	assert.Contains(t, firstText(t, result), "No snapshots recorded")
}

func TestHandleGetPriceTrend(t *testing.T) {
	srv := newTestServer(t,
		marketSnap(100, 2, 100, 50),
		marketSnap(100, 1, 70, 55),
	)

	result, err := srv.handleGetPriceTrend(t.Context(), toolReq(map[string]any{
		"realm": "stormrage", "item_id": float64(100),
	}))
	require.NoError(t, err)
	assert.False(t, isErrorResult(result))
	text := firstText(t, result)
	assert.Contains(t, text, `"direction":"up"`)
}

func TestHandleGetPriceTrendInsufficientData(t *testing.T) {
	srv := newTestServer(t, marketSnap(100, 1, 40, 50))

	result, err := srv.handleGetPriceTrend(t.Context(), toolReq(map[string]any{
		"realm": "stormrage", "item_id": float64(100),
	}))
	require.NoError(t, err)
	assert.False(t, isErrorResult(result))
	assert.Contains(t, firstText(t, result), "Not enough history")
}

func TestHandleGetMarketVelocity(t *testing.T) {
	srv := newTestServer(t,
		marketSnap(100, 2, 100, 50),
		marketSnap(100, 1, 70, 55),
	)

	result, err := srv.handleGetMarketVelocity(t.Context(), toolReq(map[string]any{
		"realm": "stormrage",
	}))
	require.NoError(t, err)
	assert.False(t, isErrorResult(result))
	assert.Contains(t, firstText(t, result), `"estimated_sales":30`)
}

func TestHandleCheckSnapshotHealth(t *testing.T) {
	srv := newTestServer(t, marketSnap(100, 1, 40, 50))

	result, err := srv.handleCheckSnapshotHealth(t.Context(), toolReq(nil))
	require.NoError(t, err)
	assert.False(t, isErrorResult(result))
	text := firstText(t, result)
	assert.Contains(t, text, `"status":"ok"`)
	// The uncaptured commodity market shows up as missing.
	assert.Contains(t, text, `"commodities"`)
	assert.Contains(t, text, `"status":"missing"`)
}

func TestHandleGetTopItemsRegionOverride(t *testing.T) {
	snap := marketSnap(300, 1, 50, 10)
	snap.Region = "eu"
	srv := newTestServer(t, snap)

	result, err := srv.handleGetTopItems(t.Context(), toolReq(map[string]any{
		"realm": "stormrage", "region": "eu",
	}))
	require.NoError(t, err)
	assert.False(t, isErrorResult(result))
	assert.Contains(t, firstText(t, result), `"item_id":300`)
}

func TestHandleCaptureSnapshotRecordsActivity(t *testing.T) {
	srv := newTestServer(t)
	rec := &fakeRecorder{}
	srv.recorder = rec
	store := history.NewMemory(history.DefaultRetention(), 0)
	srv.capturer = scheduler.NewCapturer(stubSource{}, store, nil, zap.NewNop(), scheduler.Options{
		Region:      "us",
		GameVersion: models.VersionRetail,
		Realms:      []string{"stormrage"},
	})

	result, err := srv.handleCaptureSnapshot(t.Context(), toolReq(map[string]any{"realms": "stormrage"}))
	require.NoError(t, err)
	assert.False(t, isErrorResult(result))
	assert.Contains(t, firstText(t, result), `"stormrage"`)

	require.Len(t, rec.ops, 1)
	assert.Equal(t, "tool:capture_market_snapshot", rec.ops[0].operation)
	assert.NoError(t, rec.ops[0].err)
}

func TestMarketToolsDeclareRegion(t *testing.T) {
	srv := newTestServer(t)
	wantRegion := map[string]bool{
		"get_top_items":       true,
		"get_market_depth":    true,
		"get_price_trend":     true,
		"get_market_velocity": true,
	}
	for _, tool := range srv.tools() {
		if !wantRegion[tool.Tool.Name] {
			continue
		}
		_, ok := tool.Tool.InputSchema.Properties["region"]
		assert.True(t, ok, "%s does not declare the region parameter", tool.Tool.Name)
	}
}

func TestToolsAllRegistered(t *testing.T) {
	srv := newTestServer(t)
	tools := srv.tools()
	assert.Len(t, tools, 10)
	names := make(map[string]bool, len(tools))
	for _, tool := range tools {
		names[tool.Tool.Name] = true
	}
	for _, want := range []string{
		"get_top_items", "get_market_depth", "get_price_trend", "get_market_velocity",
		"capture_market_snapshot", "check_snapshot_health",
		"get_guild_roster", "get_character_profile", "get_realm_status", "get_item_details",
	} {
		assert.True(t, names[want], "missing tool %s", want)
	}
}
