package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"wow-guild-mcp/internal/export"
	"wow-guild-mcp/internal/models"
	"wow-guild-mcp/internal/scheduler"
	"wow-guild-mcp/internal/services/blizzard"
	"wow-guild-mcp/internal/services/history"
	"wow-guild-mcp/internal/services/market"
	"wow-guild-mcp/internal/services/query"
)

// healthStaleAfter mirrors the MCP health tool: two missed hourly cycles.
const healthStaleAfter = 2 * time.Hour

type APIHandler struct {
	queries  *query.Service
	capturer *scheduler.Capturer
	logger   *zap.Logger

	region      string
	gameVersion string
	realms      []string
}

func SetupRoutes(r *gin.RouterGroup, queries *query.Service, capturer *scheduler.Capturer, logger *zap.Logger, region, gameVersion string, realms []string) *APIHandler {
	handler := &APIHandler{
		queries:     queries,
		capturer:    capturer,
		logger:      logger,
		region:      region,
		gameVersion: gameVersion,
		realms:      realms,
	}

	m := r.Group("/market")
	{
		m.GET("/top", handler.GetTopItems)
		m.GET("/depth", handler.GetMarketDepth)
		m.GET("/trend", handler.GetPriceTrend)
		m.GET("/velocity", handler.GetMarketVelocity)
		m.GET("/health", handler.GetSnapshotHealth)
		m.GET("/report", handler.GetMarketReport)
		m.POST("/capture", handler.CaptureSnapshot)
	}
	return handler
}

// realmKey resolves the realm/region/game_version query parameters.
func (h *APIHandler) realmKey(c *gin.Context) (models.RealmKey, bool) {
	realm := strings.TrimSpace(c.Query("realm"))
	if realm == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing realm"})
		return models.RealmKey{}, false
	}
	region := c.DefaultQuery("region", h.region)
	version := c.DefaultQuery("game_version", h.gameVersion)
	key := models.NewRealmKey(region, realm, version)
	if !key.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid realm parameters"})
		return models.RealmKey{}, false
	}
	return key, true
}

func (h *APIHandler) itemID(c *gin.Context) (int64, bool) {
	idStr := strings.TrimSpace(c.Query("item_id"))
	if idStr == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing item_id"})
		return 0, false
	}
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid item_id"})
		return 0, false
	}
	return id, true
}

func (h *APIHandler) hours(c *gin.Context) int {
	n, _ := strconv.Atoi(c.DefaultQuery("hours", "24"))
	return n
}

// serverError logs the real failure and answers with its category only.
func (h *APIHandler) serverError(c *gin.Context, op string, err error) {
	h.logger.Error("api request failed", zap.String("op", op), zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": blizzard.ErrorKind(err)})
}

func (h *APIHandler) GetTopItems(c *gin.Context) {
	key, ok := h.realmKey(c)
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "25"))

	items, err := h.queries.TopItems(c.Request.Context(), key, limit)
	if err != nil {
		h.serverError(c, "top items", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": 200, "msg": "ok", "data": items})
}

func (h *APIHandler) GetMarketDepth(c *gin.Context) {
	key, ok := h.realmKey(c)
	if !ok {
		return
	}
	itemID, ok := h.itemID(c)
	if !ok {
		return
	}

	depth, err := h.queries.MarketDepth(c.Request.Context(), key, itemID)
	if errors.Is(err, history.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "no snapshots for item"})
		return
	}
	if err != nil {
		h.serverError(c, "market depth", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": 200, "msg": "ok", "data": depth})
}

func (h *APIHandler) GetPriceTrend(c *gin.Context) {
	key, ok := h.realmKey(c)
	if !ok {
		return
	}
	itemID, ok := h.itemID(c)
	if !ok {
		return
	}

	trend, err := h.queries.PriceTrend(c.Request.Context(), key, itemID, h.hours(c))
	if errors.Is(err, market.ErrInsufficientData) {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "not enough snapshots in window"})
		return
	}
	if err != nil {
		h.serverError(c, "price trend", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": 200, "msg": "ok", "data": trend})
}

func (h *APIHandler) GetMarketVelocity(c *gin.Context) {
	key, ok := h.realmKey(c)
	if !ok {
		return
	}

	velocity, err := h.queries.MarketVelocity(c.Request.Context(), key, h.hours(c))
	if err != nil {
		h.serverError(c, "market velocity", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": 200, "msg": "ok", "data": velocity})
}

func (h *APIHandler) GetSnapshotHealth(c *gin.Context) {
	keys := make([]models.RealmKey, 0, len(h.realms)+1)
	for _, realm := range h.realms {
		keys = append(keys, models.NewRealmKey(h.region, realm, h.gameVersion))
	}
	if h.gameVersion == models.VersionRetail {
		keys = append(keys, models.NewRealmKey(h.region, scheduler.CommoditiesSlug, h.gameVersion))
	}

	health, err := h.queries.SnapshotHealth(c.Request.Context(), keys, healthStaleAfter)
	if err != nil {
		h.serverError(c, "snapshot health", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": 200, "msg": "ok", "data": health})
}

func (h *APIHandler) CaptureSnapshot(c *gin.Context) {
	var realms []string
	if arg := strings.TrimSpace(c.Query("realms")); arg != "" {
		for _, r := range strings.Split(arg, ",") {
			if r = strings.TrimSpace(r); r != "" {
				realms = append(realms, r)
			}
		}
	}
	if realms == nil && len(h.realms) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no realms to capture"})
		return
	}

	var cycle scheduler.CycleResult
	if realms != nil {
		cycle = h.capturer.CaptureRealms(c.Request.Context(), realms)
	} else {
		cycle = h.capturer.CaptureAll(c.Request.Context())
	}
	failed := 0
	for _, res := range cycle.Realms {
		if res.Error != "" {
			failed++
		}
	}
	if failed == len(cycle.Realms) {
		c.JSON(http.StatusBadGateway, gin.H{"error": "all realm captures failed", "data": cycle})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": 200, "msg": "ok", "data": cycle})
}

// GetMarketReport streams an XLSX workbook with the realm's top items and
// sales velocity over the requested window.
func (h *APIHandler) GetMarketReport(c *gin.Context) {
	key, ok := h.realmKey(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	top, err := h.queries.TopItems(ctx, key, 0)
	if err != nil {
		h.serverError(c, "report top items", err)
		return
	}
	velocity, err := h.queries.MarketVelocity(ctx, key, h.hours(c))
	if err != nil {
		h.serverError(c, "report velocity", err)
		return
	}

	report := &export.MarketReport{Key: key, TopItems: top, Velocity: velocity}
	filename := fmt.Sprintf("market-%s-%s.xlsx", key.Region, key.Slug)
	c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	if err := report.Write(c.Writer); err != nil {
		h.logger.Error("report write failed", zap.Error(err))
	}
}
