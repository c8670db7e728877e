package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"prospect-portal/internal/cleanup"
	"prospect-portal/internal/listing"
	"prospect-portal/internal/models"
	"prospect-portal/internal/pricing"
	"prospect-portal/internal/prospect"
	"prospect-portal/internal/scheduler"
)

// Watcher runs the listing price watch
type Watcher interface {
	RunOnce(ctx context.Context) (*scheduler.WatchResult, error)
	Running() bool
	LastResult() *scheduler.WatchResult
}

// ChangeLog reads recorded price changes
type ChangeLog interface {
	GetRecentChanges(ctx context.Context, limit int) ([]models.PriceChange, error)
	GetProspectChanges(ctx context.Context, prospectID string, limit int) ([]models.PriceChange, error)
}

// Cleaner purges prospects past retention
type Cleaner interface {
	PhysicallyDelete(ctx context.Context, cfg cleanup.Config) (*cleanup.Result, error)
	GetRecentDeleteLogs(ctx context.Context, limit int) ([]models.DeleteLog, error)
	GetDeleteStats(ctx context.Context, retentionDays int) (*cleanup.Stats, error)
}

// AdminHandler handles admin-related requests. Watcher, change log, cleaner
// and breaker are optional; their endpoints answer 503 when missing.
type AdminHandler struct {
	service    *prospect.Service
	watcher    Watcher
	changes    ChangeLog
	cleaner    Cleaner
	cleanupCfg cleanup.Config
	breaker    *listing.CircuitBreaker
	logger     *zap.Logger
}

// AdminDeps are the collaborators of the admin endpoints
type AdminDeps struct {
	Watcher    Watcher
	Changes    ChangeLog
	Cleaner    Cleaner
	CleanupCfg cleanup.Config
	Breaker    *listing.CircuitBreaker
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(service *prospect.Service, deps AdminDeps, logger *zap.Logger) *AdminHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AdminHandler{
		service:    service,
		watcher:    deps.Watcher,
		changes:    deps.Changes,
		cleaner:    deps.Cleaner,
		cleanupCfg: deps.CleanupCfg,
		breaker:    deps.Breaker,
		logger:     logger.With(zap.String("component", "admin")),
	}
}

// Register mounts the admin routes
func (h *AdminHandler) Register(admin *gin.RouterGroup) {
	admin.GET("/stats", h.GetStats)
	admin.GET("/price-distribution", h.GetPriceDistribution)

	admin.POST("/watch/run", h.TriggerWatch)
	admin.GET("/watch/status", h.GetWatchStatus)

	admin.GET("/changes/recent", h.GetRecentChanges)
	admin.GET("/prospects/:id/changes", h.GetProspectChanges)

	admin.POST("/cleanup/run", h.RunCleanup)
	admin.GET("/cleanup/logs", h.GetDeleteLogs)
}

func unavailable(c *gin.Context, what string) {
	c.JSON(http.StatusServiceUnavailable, gin.H{"error": what + " is not available"})
}

// GetStats returns prospect counts by status and bucket
func (h *AdminHandler) GetStats(c *gin.Context) {
	ctx := c.Request.Context()
	list, err := h.service.List(ctx)
	if err != nil {
		respondError(c, err)
		return
	}

	byStatus := map[models.Status]int{}
	active, closed, priced := 0, 0, 0
	for _, p := range list {
		byStatus[p.Status]++
		if p.Status.IsClosed() {
			closed++
		} else {
			active++
		}
		if len(p.PriceHistory) > 0 {
			priced++
		}
	}

	stats := gin.H{
		"prospects": gin.H{
			"active":    active,
			"archived":  closed,
			"total":     len(list),
			"by_status": byStatus,
			"priced":    priced,
		},
	}

	if h.cleaner != nil {
		deleteStats, err := h.cleaner.GetDeleteStats(ctx, h.cleanupCfg.RetentionDays)
		if err != nil {
			h.logger.Warn("failed to get delete stats", zap.Error(err))
		} else {
			stats["deletions"] = deleteStats
		}
	}
	if h.breaker != nil {
		stats["listing_breaker"] = h.breaker.Status()
	}

	c.JSON(http.StatusOK, stats)
}

// PriceRange is one bucket of the price distribution
type PriceRange struct {
	RangeLabel string  `json:"range_label"`
	MinPrice   float64 `json:"min_price"`
	MaxPrice   float64 `json:"max_price"`
	Count      int     `json:"count"`
}

// GetPriceDistribution buckets the current asking price of active prospects
func (h *AdminHandler) GetPriceDistribution(c *gin.Context) {
	list, err := h.service.List(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"price_distribution": PriceDistribution(list)})
}

// PriceDistribution counts active prospects per price bucket
func PriceDistribution(list []models.Prospect) []PriceRange {
	ranges := []PriceRange{
		{RangeLabel: "< 150k", MinPrice: 0, MaxPrice: 150000},
		{RangeLabel: "150k - 250k", MinPrice: 150000, MaxPrice: 250000},
		{RangeLabel: "250k - 350k", MinPrice: 250000, MaxPrice: 350000},
		{RangeLabel: "350k - 500k", MinPrice: 350000, MaxPrice: 500000},
		{RangeLabel: "500k - 750k", MinPrice: 500000, MaxPrice: 750000},
		{RangeLabel: "750k+", MinPrice: 750000, MaxPrice: 100000000},
	}

	for _, p := range list {
		if p.Status.IsClosed() {
			continue
		}
		current, ok := pricing.CurrentPrice(p.PriceHistory)
		if !ok {
			continue
		}
		for i := range ranges {
			if current >= ranges[i].MinPrice && current < ranges[i].MaxPrice {
				ranges[i].Count++
				break
			}
		}
	}
	return ranges
}

// TriggerWatch manually starts the price watch
func (h *AdminHandler) TriggerWatch(c *gin.Context) {
	if h.watcher == nil {
		unavailable(c, "Price watcher")
		return
	}
	if h.watcher.Running() {
		c.JSON(http.StatusConflict, gin.H{"error": scheduler.ErrRunInProgress.Error()})
		return
	}

	h.logger.Info("manual price watch trigger requested")

	// Run in goroutine to avoid blocking
	go func() {
		if _, err := h.watcher.RunOnce(context.Background()); err != nil && !errors.Is(err, scheduler.ErrRunInProgress) {
			h.logger.Error("manual price watch failed", zap.Error(err))
		}
	}()

	c.JSON(http.StatusAccepted, gin.H{
		"message": "Price watch started",
		"status":  "running",
	})
}

// GetWatchStatus reports whether a watch runs and how the last one went
func (h *AdminHandler) GetWatchStatus(c *gin.Context) {
	if h.watcher == nil {
		unavailable(c, "Price watcher")
		return
	}
	status := "idle"
	if h.watcher.Running() {
		status = "running"
	}
	c.JSON(http.StatusOK, gin.H{
		"status":      status,
		"last_result": h.watcher.LastResult(),
	})
}

// GetRecentChanges returns recent price changes
func (h *AdminHandler) GetRecentChanges(c *gin.Context) {
	if h.changes == nil {
		unavailable(c, "Change log")
		return
	}
	changes, err := h.changes.GetRecentChanges(c.Request.Context(), queryInt(c, "limit", 100))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"changes": changes,
		"count":   len(changes),
	})
}

// GetProspectChanges returns the price changes of one prospect
func (h *AdminHandler) GetProspectChanges(c *gin.Context) {
	if h.changes == nil {
		unavailable(c, "Change log")
		return
	}
	prospectID := c.Param("id")
	changes, err := h.changes.GetProspectChanges(c.Request.Context(), prospectID, queryInt(c, "limit", 30))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"prospect_id": prospectID,
		"changes":     changes,
		"count":       len(changes),
	})
}

// RunCleanup executes physical deletion of prospects closed long ago
func (h *AdminHandler) RunCleanup(c *gin.Context) {
	if h.cleaner == nil {
		unavailable(c, "Cleanup")
		return
	}

	var req struct {
		RetentionDays    int   `json:"retention_days"`
		MaxDeletionCount int   `json:"max_deletion_count"`
		DryRun           *bool `json:"dry_run"`
	}
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	cfg := h.cleanupCfg
	if req.RetentionDays > 0 {
		cfg.RetentionDays = req.RetentionDays
	}
	if req.MaxDeletionCount > 0 {
		cfg.MaxDeletionCount = req.MaxDeletionCount
	}
	// dry run unless explicitly disabled
	cfg.DryRun = req.DryRun == nil || *req.DryRun

	result, err := h.cleaner.PhysicallyDelete(c.Request.Context(), cfg)
	if err != nil {
		h.logger.Error("cleanup failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, result)
}

// GetDeleteLogs returns recent delete log entries
func (h *AdminHandler) GetDeleteLogs(c *gin.Context) {
	if h.cleaner == nil {
		unavailable(c, "Cleanup")
		return
	}
	logs, err := h.cleaner.GetRecentDeleteLogs(c.Request.Context(), queryInt(c, "limit", 100))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"logs":  logs,
		"count": len(logs),
	})
}
