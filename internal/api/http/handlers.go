package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/tabwall/internal/domain/broadcast"
	"github.com/GriffinCanCode/tabwall/internal/infrastructure/config"
	"github.com/GriffinCanCode/tabwall/internal/logging"
	"github.com/GriffinCanCode/tabwall/internal/shared/types"
)

// Host is the command surface the handlers drive.
type Host interface {
	Panels() []types.PanelInfo
	ScrollState() types.ScrollState
	Config() *config.PanelFile
	Reload(ctx context.Context, id string) error
	NavigateBack(ctx context.Context, id string) error
	NavigateURL(ctx context.Context, id, raw string) (string, error)
	TogglePanel(id string, enabled bool) error
	ScrollBy(delta float64) types.ScrollState
	ScrollToFraction(f float64) types.ScrollState
	Resize(width, height int) types.ScrollState
	SaveConfig(ctx context.Context, update types.ConfigUpdate) error
	ResetTab(ctx context.Context, id string) error
	ResetAll(ctx context.Context) error
	Broadcast(ctx context.Context, req types.BroadcastRequest) types.BroadcastResult
	Diagnose(ctx context.Context, id string) (*broadcast.Diagnosis, error)
}

// Handlers contains all HTTP handlers
type Handlers struct {
	host    Host
	version string
	log     *logging.Logger
}

// NewHandlers creates a new handler set
func NewHandlers(host Host, version string, log *logging.Logger) *Handlers {
	return &Handlers{
		host:    host,
		version: version,
		log:     logging.OrNop(log).Named("api"),
	}
}

// Register mounts the command routes on r.
func (h *Handlers) Register(r gin.IRouter) {
	r.GET("/", h.Root)
	r.GET("/health", h.Health)

	api := r.Group("/api")
	api.GET("/panels", h.ListPanels)
	api.POST("/panels/:id/reload", h.Reload)
	api.POST("/panels/:id/back", h.NavigateBack)
	api.POST("/panels/:id/navigate", h.NavigateURL)
	api.POST("/panels/:id/toggle", h.TogglePanel)
	api.POST("/panels/:id/reset", h.ResetTab)
	api.GET("/panels/:id/diagnose", h.Diagnose)

	api.GET("/scroll", h.ScrollState)
	api.POST("/scroll/by", h.ScrollBy)
	api.POST("/scroll/fraction", h.ScrollToFraction)
	api.POST("/window/resize", h.Resize)

	api.GET("/config", h.GetConfig)
	api.POST("/config", h.SaveConfig)
	api.POST("/reset", h.ResetAll)
	api.POST("/broadcast", h.Broadcast)
}

// Root handles health check
func (h *Handlers) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "online",
		"service": "tabwall",
		"version": h.version,
	})
}

// Health reports panel and layout counters.
func (h *Handlers) Health(c *gin.Context) {
	panels := h.host.Panels()
	enabled := 0
	for _, p := range panels {
		if p.Enabled {
			enabled++
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"panels":  len(panels),
		"enabled": enabled,
		"scroll":  h.host.ScrollState(),
	})
}

// ListPanels returns the panel payload in layout order.
func (h *Handlers) ListPanels(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"panels": h.host.Panels()})
}

// Reload reloads a panel.
func (h *Handlers) Reload(c *gin.Context) {
	id := c.Param("id")
	if err := h.host.Reload(c.Request.Context(), id); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "panel_id": id})
}

// NavigateBack goes back in a panel's history when it can.
func (h *Handlers) NavigateBack(c *gin.Context) {
	id := c.Param("id")
	if err := h.host.NavigateBack(c.Request.Context(), id); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "panel_id": id})
}

// NavigateURL loads a user-typed address.
func (h *Handlers) NavigateURL(c *gin.Context) {
	var req types.NavigateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	id := c.Param("id")
	url, err := h.host.NavigateURL(c.Request.Context(), id, req.URL)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "panel_id": id, "url": url})
}

// TogglePanel enables or disables a panel.
func (h *Handlers) TogglePanel(c *gin.Context) {
	var req types.ToggleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	id := c.Param("id")
	if err := h.host.TogglePanel(id, *req.Enabled); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "scroll": h.host.ScrollState()})
}

// ResetTab clears one panel's stored data and reloads it.
func (h *Handlers) ResetTab(c *gin.Context) {
	id := c.Param("id")
	if err := h.host.ResetTab(c.Request.Context(), id); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "panel_id": id})
}

// Diagnose reports how the panel's strategy sees its page.
func (h *Handlers) Diagnose(c *gin.Context) {
	d, err := h.host.Diagnose(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"diagnosis": d, "ready": d.Ready()})
}

// ScrollState returns the last layout pass.
func (h *Handlers) ScrollState(c *gin.Context) {
	c.JSON(http.StatusOK, h.host.ScrollState())
}

// ScrollBy moves the strip.
func (h *Handlers) ScrollBy(c *gin.Context) {
	var req types.ScrollRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, h.host.ScrollBy(req.Delta))
}

// ScrollToFraction jumps the strip.
func (h *Handlers) ScrollToFraction(c *gin.Context) {
	var req types.FractionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, h.host.ScrollToFraction(req.Fraction))
}

// Resize reports a new window size.
func (h *Handlers) Resize(c *gin.Context) {
	var req types.ResizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, h.host.Resize(req.Width, req.Height))
}

// GetConfig returns the current panel file.
func (h *Handlers) GetConfig(c *gin.Context) {
	c.JSON(http.StatusOK, h.host.Config())
}

// SaveConfig merges a partial panel-file update.
func (h *Handlers) SaveConfig(c *gin.Context) {
	var req types.ConfigUpdate
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.PanelWidth < 0 || req.ControlPanelWidth < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "widths must not be negative"})
		return
	}
	if err := h.host.SaveConfig(c.Request.Context(), req); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "panels": h.host.Panels()})
}

// ResetAll clears every panel's data and restarts the host. The response
// is sent before the restart.
func (h *Handlers) ResetAll(c *gin.Context) {
	c.JSON(http.StatusAccepted, gin.H{"success": true})
	c.Writer.Flush()
	go func() {
		if err := h.host.ResetAll(context.Background()); err != nil {
			h.log.Error("Reset failed", zap.Error(err))
		}
	}()
}

// Broadcast sends one prompt to several panels.
func (h *Handlers) Broadcast(c *gin.Context) {
	var req types.BroadcastRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	res := h.host.Broadcast(c.Request.Context(), req)
	c.JSON(http.StatusOK, gin.H{
		"results":   res,
		"succeeded": res.Succeeded(),
		"total":     len(res),
	})
}

// fail maps the error taxonomy to status codes.
func (h *Handlers) fail(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.log.Error("Command failed", zap.String("path", c.FullPath()), zap.Error(err))
	}
	c.JSON(status, gin.H{"success": false, "error": err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, types.ErrPanelNotFound):
		return http.StatusNotFound
	case errors.Is(err, types.ErrNavigationPolicy):
		return http.StatusBadRequest
	case errors.Is(err, types.ErrSurfaceMissing):
		return http.StatusServiceUnavailable
	case errors.Is(err, types.ErrNavigation), errors.Is(err, types.ErrInjection):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
