package mcp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpsrv "github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"wow-guild-mcp/internal/scheduler"
	"wow-guild-mcp/internal/services/activity"
	"wow-guild-mcp/internal/services/blizzard"
	"wow-guild-mcp/internal/services/query"
)

const (
	serverName    = "wow-guild-mcp"
	serverVersion = "1.0.0"
)

// Transport selects how the MCP server communicates with its client.
type Transport string

const (
	// TransportStdio uses stdin/stdout (default, suitable for local agent
	// integrations such as Claude Desktop).
	TransportStdio Transport = "stdio"
	// TransportHTTP uses Streamable HTTP (suitable for remote agents or
	// multiple concurrent clients).
	TransportHTTP Transport = "http"
)

// activityRecorder is the slice of the activity logger tool handlers use.
type activityRecorder interface {
	Record(operation string, duration time.Duration, err error, errorKind string)
}

// Server wraps an MCP server over the market query layer, the capture
// scheduler, and the upstream lookup client.
type Server struct {
	mcp      *mcpsrv.MCPServer
	queries  *query.Service
	capturer *scheduler.Capturer
	lookup   *blizzard.Client
	recorder activityRecorder
	logger   *zap.Logger

	region      string
	gameVersion string
	realms      []string
}

// Options carries the dependencies and defaults for tool handlers. Region
// and game version fill in when a tool call omits them.
type Options struct {
	Queries  *query.Service
	Capturer *scheduler.Capturer
	Lookup   *blizzard.Client
	Recorder *activity.Recorder
	Logger   *zap.Logger

	Region      string
	GameVersion string
	Realms      []string
}

// New creates the MCP server with all tools registered. It does not start
// listening until one of the Serve* methods is called.
func New(opts Options) *Server {
	s := &Server{
		queries:     opts.Queries,
		capturer:    opts.Capturer,
		lookup:      opts.Lookup,
		recorder:    opts.Recorder,
		logger:      opts.Logger,
		region:      opts.Region,
		gameVersion: opts.GameVersion,
		realms:      opts.Realms,
	}

	mcpServer := mcpsrv.NewMCPServer(
		serverName,
		serverVersion,
		mcpsrv.WithInstructions(s.instructions()),
	)
	for _, t := range s.tools() {
		mcpServer.AddTool(t.Tool, t.Handler)
	}
	s.mcp = mcpServer
	return s
}

func (s *Server) instructions() string {
	return fmt.Sprintf(`You are connected to a World of Warcraft guild assistant MCP server.

The server tracks auction house market data for the %s region (%s) with
hourly snapshots per realm. Tracked realms: %v.

Market tools (served from stored snapshots, no live API calls):
- get_top_items: busiest items on a realm by listed quantity
- get_market_depth: latest price statistics and price distribution for one item
- get_price_trend: weighted mean price movement over a time window
- get_market_velocity: estimated sales volume per item over a time window
- check_snapshot_health: age of the latest capture per tracked realm

Capture:
- capture_market_snapshot: trigger an immediate snapshot of tracked or named
  realms; on retail the region-wide commodity market is stored under the
  synthetic realm "commodities"

Lookups (live Blizzard API calls):
- get_guild_roster, get_character_profile, get_realm_status, get_item_details

Prices are in copper (10000 copper = 1 gold). Realm slugs are lowercase
with dashes, e.g. "area-52".
`, s.region, s.gameVersion, s.realms)
}

// ServeStdio runs the MCP server over stdin/stdout until ctx is cancelled.
func (s *Server) ServeStdio(ctx context.Context) error {
	srv := mcpsrv.NewStdioServer(s.mcp)
	s.logger.Info("mcp server listening on stdio")
	if err := srv.Listen(ctx, os.Stdin, os.Stdout); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, context.Canceled) {
			return nil
		}
		return fmt.Errorf("mcp stdio server error: %w", err)
	}
	return nil
}

// ServeHTTP runs the MCP server as a Streamable HTTP server on addr until
// ctx is cancelled.
func (s *Server) ServeHTTP(ctx context.Context, addr string) error {
	httpSrv := &http.Server{Addr: addr}
	streamSrv := mcpsrv.NewStreamableHTTPServer(s.mcp,
		mcpsrv.WithStreamableHTTPServer(httpSrv),
	)

	s.logger.Info("mcp server listening on http", zap.String("addr", addr))

	errCh := make(chan error, 1)
	go func() {
		if err := streamSrv.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("mcp http server error: %w", err)
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("mcp server shutting down")
		if err := streamSrv.Shutdown(context.Background()); err != nil {
			return fmt.Errorf("mcp http server shutdown error: %w", err)
		}
		return nil
	case err := <-errCh:
		return err
	}
}

// tools returns all MCP tools this server exposes.
func (s *Server) tools() []mcpsrv.ServerTool {
	return []mcpsrv.ServerTool{
		s.toolGetTopItems(),
		s.toolGetMarketDepth(),
		s.toolGetPriceTrend(),
		s.toolGetMarketVelocity(),
		s.toolCaptureSnapshot(),
		s.toolCheckSnapshotHealth(),
		s.toolGetGuildRoster(),
		s.toolGetCharacterProfile(),
		s.toolGetRealmStatus(),
		s.toolGetItemDetails(),
	}
}

// resultText wraps text in a successful CallToolResult.
func resultText(text string) *mcplib.CallToolResult {
	return mcplib.NewToolResultText(text)
}

// resultErr wraps an error in a CallToolResult with IsError=true.
func resultErr(err error) *mcplib.CallToolResult {
	return &mcplib.CallToolResult{
		Content: []mcplib.Content{mcplib.NewTextContent(err.Error())},
		IsError: true,
	}
}

// resultJSON serialises v to JSON and returns a CallToolResult.
func resultJSON(v any) (*mcplib.CallToolResult, error) {
	return mcplib.NewToolResultJSON(v)
}

// stringArg extracts a named string argument from a tool call request.
// Returns ("", false) if the argument is absent or not a string.
func stringArg(req mcplib.CallToolRequest, name string) (string, bool) {
	args := req.GetArguments()
	if args == nil {
		return "", false
	}
	v, ok := args[name]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// intArg extracts a named int argument. The MCP protocol serialises numbers
// as float64, so convert accordingly.
func intArg(req mcplib.CallToolRequest, name string, defaultVal int) int {
	args := req.GetArguments()
	if args == nil {
		return defaultVal
	}
	v, ok := args[name]
	if !ok {
		return defaultVal
	}
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	}
	return defaultVal
}
