package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/lysyi3m/music-digest/app/aggregator"
	"github.com/lysyi3m/music-digest/app/database"
	"github.com/lysyi3m/music-digest/app/daterange"
	"github.com/lysyi3m/music-digest/app/feed"
)

const maxRunsLimit = 200

func NewHandler(itemRepo database.ItemRepository, runRepo database.RunRepository,
	registry RegistryInterface, configCache *feed.ConfigCache,
	resolver *daterange.Resolver, version string) *Handler {
	return &Handler{
		itemRepo:    itemRepo,
		runRepo:     runRepo,
		registry:    registry,
		configCache: configCache,
		resolver:    resolver,
		version:     version,
	}
}

func (h *Handler) GetHealth(c *gin.Context) {
	now := time.Now()
	if h.resolver.Location != nil {
		now = now.In(h.resolver.Location)
	}

	health := map[string]any{
		"timestamp": now.Format(time.RFC3339),
		"version":   h.version,
	}

	if h.configCache != nil {
		health["loaded_configurations"] = h.configCache.GetConfigCount()
	}

	if h.registry != nil {
		health["sources"] = h.registry.Summary().TotalSources
	}

	c.JSON(http.StatusOK, health)
}

func (h *Handler) GetStats(c *gin.Context) {
	stats, err := h.itemRepo.Statistics(c.Request.Context())
	if err != nil {
		slog.Error("Database error", "operation", "statistics", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	c.JSON(http.StatusOK, stats)
}

func (h *Handler) GetRegistry(c *gin.Context) {
	if h.registry == nil {
		c.JSON(http.StatusOK, aggregator.Summary{SourceTypes: map[string]int{}, Sources: []aggregator.SourceInfo{}})
		return
	}
	c.JSON(http.StatusOK, h.registry.Summary())
}

// APIListItems answers the same queries as the query command. A source or
// keyword narrows the result; dates without either list a fetch-date range.
func (h *Handler) APIListItems(c *gin.Context) {
	ctx := c.Request.Context()

	window, err := h.parseWindow(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var items []feed.Item
	source := c.Query("source")
	keyword := c.Query("q")

	switch {
	case source != "":
		items, err = h.itemRepo.QueryBySource(ctx, source, storeRange(window))
	case keyword != "":
		items, err = h.itemRepo.Search(ctx, keyword, storeRange(window))
	default:
		if window == nil {
			yesterday := h.resolver.Yesterday()
			window = &yesterday
		}
		items, err = h.itemRepo.QueryByDateRange(ctx, window.Start, window.End)
	}
	if err != nil {
		slog.Error("Database error", "operation", "list_items", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	if items == nil {
		items = []feed.Item{}
	}

	response := gin.H{
		"items": items,
		"total": len(items),
	}
	if window != nil {
		response["window"] = window.String()
	}

	c.JSON(http.StatusOK, response)
}

func (h *Handler) APIListRuns(c *gin.Context) {
	limit := 20
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = min(parsed, maxRunsLimit)
	}

	runs, err := h.runRepo.RecentRuns(c.Request.Context(), limit)
	if err != nil {
		slog.Error("Database error", "operation", "recent_runs", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	if runs == nil {
		runs = []database.Run{}
	}

	c.JSON(http.StatusOK, gin.H{
		"runs":  runs,
		"total": len(runs),
	})
}

// parseWindow returns nil when no date parameter is given.
func (h *Handler) parseWindow(c *gin.Context) (*daterange.Range, error) {
	from, to := c.Query("from"), c.Query("to")
	date, days := c.Query("date"), c.Query("days")

	args := daterange.Args{Date: date}
	switch {
	case from != "" || to != "":
		if from == "" || to == "" {
			return nil, errors.New("from and to must be given together")
		}
		args.Range = &[2]string{from, to}
	case days != "":
		n, err := strconv.Atoi(days)
		if err != nil || n <= 0 {
			return nil, errors.New("days must be a positive integer")
		}
		args.Days = n
	case date == "":
		return nil, nil
	}

	window, err := h.resolver.Resolve(args)
	if err != nil {
		return nil, err
	}
	return &window, nil
}

func storeRange(window *daterange.Range) *database.DateRange {
	if window == nil {
		return nil
	}
	return &database.DateRange{Start: window.Start, End: window.End}
}
