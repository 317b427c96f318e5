// Package handlers provides HTTP handlers for the StoryKeep analytics console
package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/AtRiskMedia/storykeep-go/internal/application/services"
	"github.com/AtRiskMedia/storykeep-go/internal/domain/analytics"
	"github.com/AtRiskMedia/storykeep-go/internal/infrastructure/backend"
	"github.com/AtRiskMedia/storykeep-go/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/storykeep-go/internal/infrastructure/observability/performance"
	"github.com/AtRiskMedia/storykeep-go/internal/presentation/http/middleware"
)

// AnalyticsHandlers contains the dashboard session handlers
type AnalyticsHandlers struct {
	dashboards  *services.DashboardManager
	logger      *logging.ChanneledLogger
	perfTracker *performance.Tracker
}

// NewAnalyticsHandlers creates analytics handlers with injected dependencies
func NewAnalyticsHandlers(dashboards *services.DashboardManager, logger *logging.ChanneledLogger, perfTracker *performance.Tracker) *AnalyticsHandlers {
	return &AnalyticsHandlers{
		dashboards:  dashboards,
		logger:      logger,
		perfTracker: perfTracker,
	}
}

type visitorTypeRequest struct {
	VisitorType analytics.VisitorType `json:"visitorType" binding:"required"`
}

type userRequest struct {
	UserID *string `json:"userId"`
}

type filterRequest struct {
	BeliefSlug string `json:"beliefSlug" binding:"required"`
	Value      string `json:"value" binding:"required"`
}

type presetRequest struct {
	Preset analytics.Preset `json:"preset" binding:"required"`
}

// dashboard resolves the tenant's dashboard session, opening it on first use.
func (h *AnalyticsHandlers) dashboard(c *gin.Context) (*services.Dashboard, bool) {
	cfg, ok := middleware.GetTenantConfig(c)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "tenant context not found"})
		return nil, false
	}
	d, err := h.dashboards.Get(cfg)
	if err != nil {
		h.logger.LogError(logging.ChannelAnalytics, "open_dashboard", err, cfg.TenantID, nil)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "dashboard unavailable"})
		return nil, false
	}
	return d, true
}

// writeError maps service errors onto HTTP statuses.
func writeError(c *gin.Context, err error) {
	var rangeErr *analytics.RangeError
	var statusErr *backend.StatusError
	switch {
	case errors.As(err, &rangeErr):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": rangeErr.Message, "field": rangeErr.Field})
	case errors.Is(err, analytics.ErrNotInitialized),
		errors.Is(err, analytics.ErrApplyInProgress):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, analytics.ErrNothingToApply),
		errors.Is(err, analytics.ErrUnknownPreset):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, services.ErrFlooded):
		c.Header("Retry-After", "30")
		c.JSON(http.StatusTooManyRequests, gin.H{"error": err.Error()})
	case errors.Is(err, services.ErrServiceClosed),
		errors.Is(err, backend.ErrCircuitOpen):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	case errors.As(err, &statusErr):
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

// HandleGetDashboard handles GET /api/v1/storykeep/analytics
func (h *AnalyticsHandlers) HandleGetDashboard(c *gin.Context) {
	d, ok := h.dashboard(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, d.View())
}

// HandleInitialize handles POST /api/v1/storykeep/analytics/init
func (h *AnalyticsHandlers) HandleInitialize(c *gin.Context) {
	d, ok := h.dashboard(c)
	if !ok {
		return
	}
	marker := h.perfTracker.StartOperation("handle_initialize_filters", d.TenantID())
	defer marker.Complete()

	seeded, err := d.Initialize()
	if err != nil {
		marker.SetError(err)
		writeError(c, err)
		return
	}
	marker.SetSuccess(true)
	h.logger.Analytics().Debug("Dashboard filters initialized", "tenantId", d.TenantID(), "seeded", seeded)
	c.JSON(http.StatusOK, gin.H{"seeded": seeded, "dashboard": d.View()})
}

// HandleSetVisitorType handles PUT /api/v1/storykeep/analytics/visitor-type
func (h *AnalyticsHandlers) HandleSetVisitorType(c *gin.Context) {
	var req visitorTypeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}
	if !req.VisitorType.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid visitor type"})
		return
	}
	d, ok := h.dashboard(c)
	if !ok {
		return
	}
	if err := d.SetVisitorType(req.VisitorType); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, d.View())
}

// HandleSelectUser handles PUT /api/v1/storykeep/analytics/user
func (h *AnalyticsHandlers) HandleSelectUser(c *gin.Context) {
	var req userRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}
	d, ok := h.dashboard(c)
	if !ok {
		return
	}
	userID := ""
	if req.UserID != nil {
		userID = *req.UserID
	}
	if err := d.SelectUser(userID); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, d.View())
}

// HandleUserCounts handles GET /api/v1/storykeep/analytics/users?page=
func (h *AnalyticsHandlers) HandleUserCounts(c *gin.Context) {
	page, err := strconv.Atoi(c.DefaultQuery("page", "0"))
	if err != nil || page < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid page"})
		return
	}
	d, ok := h.dashboard(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, d.UserCounts(page))
}

// HandleApplyFilter handles PUT /api/v1/storykeep/analytics/filters
func (h *AnalyticsHandlers) HandleApplyFilter(c *gin.Context) {
	var req filterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}
	d, ok := h.dashboard(c)
	if !ok {
		return
	}
	if err := d.ApplyFilter(req.BeliefSlug, req.Value); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, d.View())
}

// HandleClearFilters handles DELETE /api/v1/storykeep/analytics/filters
func (h *AnalyticsHandlers) HandleClearFilters(c *gin.Context) {
	d, ok := h.dashboard(c)
	if !ok {
		return
	}
	if err := d.ClearFilters(); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, d.View())
}

// HandleEditRange handles PUT /api/v1/storykeep/analytics/range/form
func (h *AnalyticsHandlers) HandleEditRange(c *gin.Context) {
	var form analytics.RangeForm
	if err := c.ShouldBindJSON(&form); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}
	d, ok := h.dashboard(c)
	if !ok {
		return
	}
	view, err := d.EditRange(form)
	h.respondEditor(c, view, err)
}

// HandleSelectPreset handles POST /api/v1/storykeep/analytics/range/preset
func (h *AnalyticsHandlers) HandleSelectPreset(c *gin.Context) {
	var req presetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}
	d, ok := h.dashboard(c)
	if !ok {
		return
	}
	view, err := d.SelectPreset(req.Preset)
	h.respondEditor(c, view, err)
}

// HandleApplyRange handles POST /api/v1/storykeep/analytics/range/apply
func (h *AnalyticsHandlers) HandleApplyRange(c *gin.Context) {
	d, ok := h.dashboard(c)
	if !ok {
		return
	}
	view, err := d.ApplyRange()
	if err == nil {
		h.logger.Analytics().Info("Range applied", "tenantId", d.TenantID(), "start", view.Start, "end", view.End)
	}
	h.respondEditor(c, view, err)
}

// HandleCancelRange handles POST /api/v1/storykeep/analytics/range/cancel
func (h *AnalyticsHandlers) HandleCancelRange(c *gin.Context) {
	d, ok := h.dashboard(c)
	if !ok {
		return
	}
	view, err := d.CancelRange()
	h.respondEditor(c, view, err)
}

// respondEditor returns the editor state, keeping it in error bodies so the form can show it.
func (h *AnalyticsHandlers) respondEditor(c *gin.Context, view analytics.RangeEditorView, err error) {
	if err == nil {
		c.JSON(http.StatusOK, gin.H{"editor": view})
		return
	}
	var rangeErr *analytics.RangeError
	if errors.As(err, &rangeErr) {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": rangeErr.Message, "field": rangeErr.Field, "editor": view})
		return
	}
	writeError(c, err)
}

// HandleRefresh handles POST /api/v1/storykeep/analytics/refresh
func (h *AnalyticsHandlers) HandleRefresh(c *gin.Context) {
	d, ok := h.dashboard(c)
	if !ok {
		return
	}
	if err := d.Refresh(); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, d.View())
}

// HandleTimeline handles GET /api/v1/storykeep/analytics/timeline?day=
func (h *AnalyticsHandlers) HandleTimeline(c *gin.Context) {
	day, ok := parseDay(c)
	if !ok {
		return
	}
	d, ok := h.dashboard(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, d.Timeline(c.Request.Context(), day))
}

// HandleContentSummary handles GET /api/v1/storykeep/analytics/content-summary
func (h *AnalyticsHandlers) HandleContentSummary(c *gin.Context) {
	d, ok := h.dashboard(c)
	if !ok {
		return
	}
	hot, contents, err := d.ContentSummary(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}

	type hotContent struct {
		analytics.ContentInfo
		TotalEvents int `json:"totalEvents"`
	}
	items := make([]hotContent, 0, len(hot))
	for _, item := range hot {
		items = append(items, hotContent{ContentInfo: contents.Lookup(item.ID), TotalEvents: item.TotalEvents})
	}
	c.JSON(http.StatusOK, gin.H{"hotContent": items})
}

// HandleLeadsDownload handles GET /api/v1/storykeep/leads/download
func (h *AnalyticsHandlers) HandleLeadsDownload(c *gin.Context) {
	d, ok := h.dashboard(c)
	if !ok {
		return
	}
	data, contentType, err := d.LeadsCSV(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	filename := "leads-" + time.Now().Format(analytics.DayLayout) + ".csv"
	c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
	c.Data(http.StatusOK, contentType, data)
}

// HandleCloseDashboard handles DELETE /api/v1/storykeep/analytics
func (h *AnalyticsHandlers) HandleCloseDashboard(c *gin.Context) {
	cfg, ok := middleware.GetTenantConfig(c)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "tenant context not found"})
		return
	}
	closed := h.dashboards.Close(cfg.TenantID)
	c.JSON(http.StatusOK, gin.H{"closed": closed})
}

// parseDay reads the optional day query parameter.
func parseDay(c *gin.Context) (string, bool) {
	day := c.Query("day")
	if day == "" {
		return "", true
	}
	if _, err := time.Parse(analytics.DayLayout, day); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "day must be YYYY-MM-DD"})
		return "", false
	}
	return day, true
}
