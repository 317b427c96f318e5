package handlers

import (
	"bytes"
	"net/http"
	"path"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/AtRiskMedia/storykeep-go/internal/application/services"
	"github.com/AtRiskMedia/storykeep-go/internal/domain/analytics"
	"github.com/AtRiskMedia/storykeep-go/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/storykeep-go/internal/infrastructure/rendering"
)

const (
	minExportSize = 200
	maxExportSize = rendering.MaxCanvasSide
	maxScale      = 3
)

// intQuery reads a bounded integer query parameter, falling back to def.
func intQuery(c *gin.Context, key string, def, lo, hi int) int {
	v, err := strconv.Atoi(c.Query(key))
	if err != nil {
		return def
	}
	return min(max(v, lo), hi)
}

func sankeyOptions(c *gin.Context) rendering.SankeyOptions {
	opts := rendering.DefaultSankeyOptions()
	opts.Width = intQuery(c, "width", opts.Width, minExportSize, maxExportSize)
	opts.Height = intQuery(c, "height", opts.Height, minExportSize, maxExportSize)
	return opts
}

// epinetDiagram fetches the diagram and writes the response itself unless it is ready.
func (h *AnalyticsHandlers) epinetDiagram(c *gin.Context) (*analytics.SankeyDiagram, bool) {
	d, ok := h.dashboard(c)
	if !ok {
		return nil, false
	}
	state, err := d.Epinet(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return nil, false
	}

	switch state.Status {
	case services.FetchComplete:
		if state.Data == nil || state.Data.Epinet == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "no flow data for epinet"})
			return nil, false
		}
		return state.Data.Epinet, true
	case services.FetchError:
		if err := state.Err(); err != nil {
			writeError(c, err)
		} else {
			c.JSON(http.StatusBadGateway, gin.H{"error": state.Error})
		}
		return nil, false
	default:
		c.Header("Retry-After", "2")
		c.JSON(http.StatusAccepted, gin.H{"status": analytics.StatusLoading})
		return nil, false
	}
}

// HandleEpinetSankey handles GET /api/v1/storykeep/analytics/epinet/:id/sankey
func (h *AnalyticsHandlers) HandleEpinetSankey(c *gin.Context) {
	diagram, ok := h.epinetDiagram(c)
	if !ok {
		return
	}
	layout := rendering.Layout(diagram, sankeyOptions(c))
	c.JSON(http.StatusOK, gin.H{"epinet": diagram, "layout": layout})
}

// HandleEpinetSankeyImage handles GET /api/v1/storykeep/analytics/epinet/:id/sankey.png and sankey.webp
func (h *AnalyticsHandlers) HandleEpinetSankeyImage(c *gin.Context) {
	format, err := rendering.ParseFormat(path.Ext(c.Request.URL.Path))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	diagram, ok := h.epinetDiagram(c)
	if !ok {
		return
	}

	start := time.Now()
	marker := h.perfTracker.StartOperation("render_sankey", "")
	defer marker.Complete()

	layout := rendering.Layout(diagram, sankeyOptions(c))
	img := rendering.RenderSankey(layout, intQuery(c, "scale", 1, 1, maxScale))

	var buf bytes.Buffer
	if err := rendering.Encode(&buf, img, format); err != nil {
		marker.SetError(err)
		h.logger.LogError(logging.ChannelRender, "encode_sankey", err, "", map[string]any{"format": string(format)})
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to render diagram"})
		return
	}
	marker.SetSuccess(true)
	h.logger.Render().Debug("Sankey rendered", "epinetId", diagram.ID, "format", format, "nodes", len(layout.Nodes), "dropped", layout.Dropped, "bytes", buf.Len(), "duration", time.Since(start))
	c.Data(http.StatusOK, format.ContentType(), buf.Bytes())
}

// HandleTimelineImage handles GET /api/v1/storykeep/analytics/timeline.png?day=
func (h *AnalyticsHandlers) HandleTimelineImage(c *gin.Context) {
	day, ok := parseDay(c)
	if !ok {
		return
	}
	d, ok := h.dashboard(c)
	if !ok {
		return
	}

	view := d.Timeline(c.Request.Context(), day)
	opts := rendering.DefaultChartOptions()
	opts.Width = intQuery(c, "width", opts.Width, minExportSize, maxExportSize)
	opts.Height = intQuery(c, "height", opts.Height, minExportSize, maxExportSize)

	var buf bytes.Buffer
	if err := rendering.RenderTimelineChart(&buf, view.Timeline, opts); err != nil {
		h.logger.LogError(logging.ChannelRender, "render_timeline", err, d.TenantID(), map[string]any{"day": view.Day})
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to render timeline"})
		return
	}
	c.Data(http.StatusOK, rendering.FormatPNG.ContentType(), buf.Bytes())
}
