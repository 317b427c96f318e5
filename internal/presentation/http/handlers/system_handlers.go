package handlers

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/AtRiskMedia/storykeep-go/internal/application/services"
	"github.com/AtRiskMedia/storykeep-go/internal/infrastructure/observability/logging"
)

// SystemHandlers serves health and runtime log controls
type SystemHandlers struct {
	dashboards *services.DashboardManager
	logger     *logging.ChanneledLogger
}

// NewSystemHandlers creates system handlers with injected dependencies
func NewSystemHandlers(dashboards *services.DashboardManager, logger *logging.ChanneledLogger) *SystemHandlers {
	return &SystemHandlers{dashboards: dashboards, logger: logger}
}

// HandleHealth handles GET /healthz
func (h *SystemHandlers) HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":           "ok",
		"activeDashboards": h.dashboards.Len(),
	})
}

// GetLogLevels handles GET /api/v1/storykeep/logs/levels - returns current log levels for all channels.
func (h *SystemHandlers) GetLogLevels(c *gin.Context) {
	c.JSON(http.StatusOK, h.logger.GetChannelLevels())
}

// SetLogLevel handles PUT /api/v1/storykeep/logs/levels - sets the log level for a specific channel.
func (h *SystemHandlers) SetLogLevel(c *gin.Context) {
	var req struct {
		Channel string `json:"channel" binding:"required"`
		Level   string `json:"level" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	switch strings.ToUpper(req.Level) {
	case "DEBUG", "INFO", "WARN", "ERROR":
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid log level specified"})
		return
	}

	level := logging.ParseLevel(req.Level)
	if err := h.logger.SetChannelLevel(logging.Channel(req.Channel), level); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to set log level", "details": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "message": fmt.Sprintf("Log level for channel '%s' set to '%s'", req.Channel, level)})
}
