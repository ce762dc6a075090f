package mcp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpsrv "github.com/mark3labs/mcp-go/server"

	"wow-guild-mcp/internal/models"
	"wow-guild-mcp/internal/scheduler"
	"wow-guild-mcp/internal/services/blizzard"
	"wow-guild-mcp/internal/services/history"
	"wow-guild-mcp/internal/services/market"
)

// staleAfter is two missed hourly cycles before a realm's snapshots are
// reported as stale.
const staleAfter = 2 * time.Hour

// realmKey builds the market partition key for a tool call, falling back to
// the configured region and game version when the call omits them.
func (s *Server) realmKey(req mcplib.CallToolRequest) (models.RealmKey, error) {
	realm, ok := stringArg(req, "realm")
	if !ok || realm == "" {
		return models.RealmKey{}, errors.New("realm is required (a realm slug such as \"stormrage\")")
	}
	region, _ := stringArg(req, "region")
	if region == "" {
		region = s.region
	}
	version, _ := stringArg(req, "game_version")
	if version == "" {
		version = s.gameVersion
	}
	key := models.NewRealmKey(region, realm, version)
	if !key.Valid() {
		return models.RealmKey{}, fmt.Errorf("invalid realm %q (game_version must be retail or classic)", key.String())
	}
	return key, nil
}

// observe records the tool call outcome in the activity log.
func (s *Server) observe(name string, started time.Time, err error) {
	if s.recorder == nil {
		return
	}
	s.recorder.Record("tool:"+name, time.Since(started), err, blizzard.ErrorKind(err))
}

// ─── get_top_items ────────────────────────────────────────────────────────────

func (s *Server) toolGetTopItems() mcpsrv.ServerTool {
	tool := mcplib.NewTool("get_top_items",
		mcplib.WithDescription(`List the busiest items on a realm's auction house, ranked by listed
quantity in the most recent snapshot. Served from stored data; no live API call.`),
		mcplib.WithString("realm",
			mcplib.Description("Realm slug, e.g. \"stormrage\" or \"area-52\""),
			mcplib.Required(),
		),
		mcplib.WithString("region",
			mcplib.Description("Region code, e.g. \"us\" or \"eu\". Defaults to the server's configured region."),
		),
		mcplib.WithNumber("limit",
			mcplib.Description("Maximum items to return (default 25)"),
		),
		mcplib.WithString("game_version",
			mcplib.Description("\"retail\" (default) or \"classic\""),
		),
		mcplib.WithReadOnlyHintAnnotation(true),
	)
	return mcpsrv.ServerTool{Tool: tool, Handler: s.handleGetTopItems}
}

func (s *Server) handleGetTopItems(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	started := time.Now()
	key, err := s.realmKey(req)
	if err != nil {
		s.observe("get_top_items", started, err)
		return resultErr(fmt.Errorf("get_top_items: %w", err)), nil
	}

	items, err := s.queries.TopItems(ctx, key, intArg(req, "limit", 25))
	s.observe("get_top_items", started, err)
	if err != nil {
		return resultErr(fmt.Errorf("get_top_items: %w", err)), nil
	}
	if len(items) == 0 {
		return resultText(fmt.Sprintf("No recent snapshots for realm %s. Run capture_market_snapshot first.", key)), nil
	}

	result, err := resultJSON(items)
	if err != nil {
		return resultErr(fmt.Errorf("get_top_items: serialise: %w", err)), nil
	}
	return result, nil
}

// ─── get_market_depth ─────────────────────────────────────────────────────────

func (s *Server) toolGetMarketDepth() mcpsrv.ServerTool {
	tool := mcplib.NewTool("get_market_depth",
		mcplib.WithDescription(`Get the latest market snapshot for one item on a realm: quantity,
auction count, seller concentration, price statistics (min/max/mean/median/stddev in
copper), and the price distribution if still retained.`),
		mcplib.WithString("realm",
			mcplib.Description("Realm slug, e.g. \"stormrage\""),
			mcplib.Required(),
		),
		mcplib.WithString("region",
			mcplib.Description("Region code, e.g. \"us\" or \"eu\". Defaults to the server's configured region."),
		),
		mcplib.WithNumber("item_id",
			mcplib.Description("The item ID, e.g. 168487 for Zin'anthid"),
			mcplib.Required(),
		),
		mcplib.WithString("game_version",
			mcplib.Description("\"retail\" (default) or \"classic\""),
		),
		mcplib.WithReadOnlyHintAnnotation(true),
	)
	return mcpsrv.ServerTool{Tool: tool, Handler: s.handleGetMarketDepth}
}

func (s *Server) handleGetMarketDepth(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	started := time.Now()
	key, err := s.realmKey(req)
	if err != nil {
		s.observe("get_market_depth", started, err)
		return resultErr(fmt.Errorf("get_market_depth: %w", err)), nil
	}
	itemID := int64(intArg(req, "item_id", 0))
	if itemID <= 0 {
		s.observe("get_market_depth", started, errors.New("missing item_id"))
		return resultErr(errors.New("get_market_depth: item_id is required")), nil
	}

	depth, err := s.queries.MarketDepth(ctx, key, itemID)
	s.observe("get_market_depth", started, err)
	if errors.Is(err, history.ErrNotFound) {
		return resultText(fmt.Sprintf("No snapshots recorded for item %d on realm %s.", itemID, key)), nil
	}
	if err != nil {
		return resultErr(fmt.Errorf("get_market_depth: %w", err)), nil
	}

	result, err := resultJSON(depth)
	if err != nil {
		return resultErr(fmt.Errorf("get_market_depth: serialise: %w", err)), nil
	}
	return result, nil
}

// ─── get_price_trend ──────────────────────────────────────────────────────────

func (s *Server) toolGetPriceTrend() mcpsrv.ServerTool {
	tool := mcplib.NewTool("get_price_trend",
		mcplib.WithDescription(`Compute how an item's quantity-weighted mean price moved over a time
window. Returns the percentage change and a direction (up/down/flat; moves within
1% count as flat). Needs at least two snapshots in the window.`),
		mcplib.WithString("realm",
			mcplib.Description("Realm slug, e.g. \"stormrage\""),
			mcplib.Required(),
		),
		mcplib.WithString("region",
			mcplib.Description("Region code, e.g. \"us\" or \"eu\". Defaults to the server's configured region."),
		),
		mcplib.WithNumber("item_id",
			mcplib.Description("The item ID"),
			mcplib.Required(),
		),
		mcplib.WithNumber("hours",
			mcplib.Description("Window size in hours (1-720, default 24)"),
		),
		mcplib.WithString("game_version",
			mcplib.Description("\"retail\" (default) or \"classic\""),
		),
		mcplib.WithReadOnlyHintAnnotation(true),
	)
	return mcpsrv.ServerTool{Tool: tool, Handler: s.handleGetPriceTrend}
}

func (s *Server) handleGetPriceTrend(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	started := time.Now()
	key, err := s.realmKey(req)
	if err != nil {
		s.observe("get_price_trend", started, err)
		return resultErr(fmt.Errorf("get_price_trend: %w", err)), nil
	}
	itemID := int64(intArg(req, "item_id", 0))
	if itemID <= 0 {
		s.observe("get_price_trend", started, errors.New("missing item_id"))
		return resultErr(errors.New("get_price_trend: item_id is required")), nil
	}
	hours := intArg(req, "hours", 24)

	trend, err := s.queries.PriceTrend(ctx, key, itemID, hours)
	s.observe("get_price_trend", started, err)
	if errors.Is(err, market.ErrInsufficientData) {
		return resultText(fmt.Sprintf(
			"Not enough history for item %d on realm %s: at least two snapshots are needed in the last %d hours.",
			itemID, key, hours)), nil
	}
	if err != nil {
		return resultErr(fmt.Errorf("get_price_trend: %w", err)), nil
	}

	result, err := resultJSON(trend)
	if err != nil {
		return resultErr(fmt.Errorf("get_price_trend: serialise: %w", err)), nil
	}
	return result, nil
}

// ─── get_market_velocity ──────────────────────────────────────────────────────

func (s *Server) toolGetMarketVelocity() mcpsrv.ServerTool {
	tool := mcplib.NewTool("get_market_velocity",
		mcplib.WithDescription(`Estimate sales volume per item over a time window, ranked by estimated
sales descending. Sales are approximated from quantity drops between consecutive
snapshots, so expired and cancelled auctions inflate the numbers somewhat. Items
with fewer than two snapshots in the window are omitted.`),
		mcplib.WithString("realm",
			mcplib.Description("Realm slug, e.g. \"stormrage\""),
			mcplib.Required(),
		),
		mcplib.WithString("region",
			mcplib.Description("Region code, e.g. \"us\" or \"eu\". Defaults to the server's configured region."),
		),
		mcplib.WithNumber("hours",
			mcplib.Description("Window size in hours (1-720, default 24)"),
		),
		mcplib.WithString("game_version",
			mcplib.Description("\"retail\" (default) or \"classic\""),
		),
		mcplib.WithReadOnlyHintAnnotation(true),
	)
	return mcpsrv.ServerTool{Tool: tool, Handler: s.handleGetMarketVelocity}
}

func (s *Server) handleGetMarketVelocity(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	started := time.Now()
	key, err := s.realmKey(req)
	if err != nil {
		s.observe("get_market_velocity", started, err)
		return resultErr(fmt.Errorf("get_market_velocity: %w", err)), nil
	}
	hours := intArg(req, "hours", 24)

	velocity, err := s.queries.MarketVelocity(ctx, key, hours)
	s.observe("get_market_velocity", started, err)
	if err != nil {
		return resultErr(fmt.Errorf("get_market_velocity: %w", err)), nil
	}
	if len(velocity) == 0 {
		return resultText(fmt.Sprintf(
			"No items with two or more snapshots on realm %s in the last %d hours.", key, hours)), nil
	}

	result, err := resultJSON(velocity)
	if err != nil {
		return resultErr(fmt.Errorf("get_market_velocity: serialise: %w", err)), nil
	}
	return result, nil
}

// ─── capture_market_snapshot ──────────────────────────────────────────────────

func (s *Server) toolCaptureSnapshot() mcpsrv.ServerTool {
	tool := mcplib.NewTool("capture_market_snapshot",
		mcplib.WithDescription(`Capture an immediate auction house snapshot. Fetches the full listing
from the Blizzard API for each realm, aggregates per item, and stores the result.
Without arguments every tracked realm is captured, plus (on retail) the region-wide
commodity market under the realm "commodities". One realm failing does not stop
the others; each realm reports its own outcome. Re-capturing within the same hour
replaces that hour's snapshot. May take a minute per busy realm.`),
		mcplib.WithString("realms",
			mcplib.Description("Comma-separated realm slugs to capture, e.g. \"stormrage,area-52\" or \"commodities\". Defaults to all tracked realms plus commodities."),
		),
	)
	return mcpsrv.ServerTool{Tool: tool, Handler: s.handleCaptureSnapshot}
}

func (s *Server) handleCaptureSnapshot(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	started := time.Now()

	var realms []string
	if arg, _ := stringArg(req, "realms"); strings.TrimSpace(arg) != "" {
		for _, r := range strings.Split(arg, ",") {
			if r = strings.TrimSpace(r); r != "" {
				realms = append(realms, r)
			}
		}
	}
	if realms == nil && len(s.realms) == 0 {
		err := errors.New("no realms to capture")
		s.observe("capture_market_snapshot", started, err)
		return resultErr(fmt.Errorf("capture_market_snapshot: %w", err)), nil
	}

	var cycle scheduler.CycleResult
	if realms != nil {
		cycle = s.capturer.CaptureRealms(ctx, realms)
	} else {
		cycle = s.capturer.CaptureAll(ctx)
	}
	s.observe("capture_market_snapshot", started, nil)

	result, err := resultJSON(cycle)
	if err != nil {
		return resultErr(fmt.Errorf("capture_market_snapshot: serialise: %w", err)), nil
	}
	return result, nil
}

// ─── check_snapshot_health ────────────────────────────────────────────────────

func (s *Server) toolCheckSnapshotHealth() mcpsrv.ServerTool {
	tool := mcplib.NewTool("check_snapshot_health",
		mcplib.WithDescription(`Report how fresh the stored snapshots are for every tracked realm (and,
on retail, the region-wide commodity market): last capture time, age in hours,
tracked item count, and a status of ok, stale, or missing.`),
		mcplib.WithReadOnlyHintAnnotation(true),
	)
	return mcpsrv.ServerTool{Tool: tool, Handler: s.handleCheckSnapshotHealth}
}

func (s *Server) handleCheckSnapshotHealth(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	started := time.Now()
	keys := make([]models.RealmKey, 0, len(s.realms)+1)
	for _, realm := range s.realms {
		keys = append(keys, models.NewRealmKey(s.region, realm, s.gameVersion))
	}
	if s.gameVersion == models.VersionRetail {
		keys = append(keys, models.NewRealmKey(s.region, scheduler.CommoditiesSlug, s.gameVersion))
	}

	health, err := s.queries.SnapshotHealth(ctx, keys, staleAfter)
	s.observe("check_snapshot_health", started, err)
	if err != nil {
		return resultErr(fmt.Errorf("check_snapshot_health: %w", err)), nil
	}

	result, err := resultJSON(health)
	if err != nil {
		return resultErr(fmt.Errorf("check_snapshot_health: serialise: %w", err)), nil
	}
	return result, nil
}
