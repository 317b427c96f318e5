package handlers

import (
	"net/http"
	"slices"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/AtRiskMedia/storykeep-go/internal/infrastructure/messaging"
	"github.com/AtRiskMedia/storykeep-go/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/storykeep-go/internal/presentation/http/middleware"
)

// StreamHandlers upgrades console connections to the dashboard websocket stream
type StreamHandlers struct {
	hub            *messaging.DashboardHub
	allowedOrigins []string
	logger         *logging.ChanneledLogger
}

// NewStreamHandlers creates stream handlers with injected dependencies
func NewStreamHandlers(hub *messaging.DashboardHub, allowedOrigins []string, logger *logging.ChanneledLogger) *StreamHandlers {
	return &StreamHandlers{hub: hub, allowedOrigins: allowedOrigins, logger: logger}
}

func (h *StreamHandlers) getUpgrader() websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
		CheckOrigin:      h.checkOrigin,
		HandshakeTimeout: 10 * time.Second,
	}
}

// checkOrigin rejects browsers from origins outside the CORS allow list.
func (h *StreamHandlers) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		h.logger.WS().Warn("Websocket connection rejected: missing Origin header")
		return false
	}
	if slices.Contains(h.allowedOrigins, "*") || slices.Contains(h.allowedOrigins, origin) {
		return true
	}
	h.logger.WS().Warn("Websocket connection rejected from unauthorized origin", "origin", origin)
	return false
}

// HandleWebSocket handles GET /api/v1/storykeep/ws
func (h *StreamHandlers) HandleWebSocket(c *gin.Context) {
	cfg, ok := middleware.GetTenantConfig(c)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "tenant context not found"})
		return
	}

	upgrader := h.getUpgrader()
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade has already written the error response
		h.logger.WS().Warn("Websocket upgrade failed", "tenantId", cfg.TenantID, "error", err)
		return
	}

	h.logger.WS().Debug("Websocket client connected", "tenantId", cfg.TenantID, "remote", c.ClientIP())
	h.hub.Attach(conn, cfg.TenantID)
	h.logger.WS().Debug("Websocket client disconnected", "tenantId", cfg.TenantID, "remaining", h.hub.ClientCount(cfg.TenantID))
}
