// Package api provides HTTP handlers for the orchestrator.
package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/jtaylorcomplize/wombat-track-scaffold-sub008/bus"
	"github.com/jtaylorcomplize/wombat-track-scaffold-sub008/comms"
	"github.com/jtaylorcomplize/wombat-track-scaffold-sub008/dispatch"
	"github.com/jtaylorcomplize/wombat-track-scaffold-sub008/monitor"
)

// Version reported by the health endpoint.
const Version = "0.1.0"

// Handler handles HTTP requests.
type Handler struct {
	dispatcher *dispatch.Dispatcher
	router     *comms.Router
	monitor    *monitor.Monitor
	events     *bus.Bus
	log        *logrus.Logger
}

// NewHandler creates a new handler.
func NewHandler(dispatcher *dispatch.Dispatcher, router *comms.Router, mon *monitor.Monitor, events *bus.Bus, log *logrus.Logger) *Handler {
	if log == nil {
		log = logrus.New()
	}
	return &Handler{
		dispatcher: dispatcher,
		router:     router,
		monitor:    mon,
		events:     events,
		log:        log,
	}
}

// RegisterRoutes registers routes with the echo server. The given middleware
// guards everything under /api/v1; health and metrics stay public.
func (h *Handler) RegisterRoutes(e *echo.Echo, middleware ...echo.MiddlewareFunc) {
	api := e.Group("/api/v1", middleware...)

	// Instruction dispatch
	api.POST("/instructions", h.SubmitInstruction)
	api.GET("/executions", h.ListExecutions)

	// Agent communication
	api.POST("/messages", h.SendMessage)

	// Monitoring
	api.POST("/agents/:agent_id/events", h.IngestAgentEvent)
	api.GET("/agents/status", h.AgentStatuses)
	api.GET("/agents/:agent_id/status", h.AgentStatus)
	api.GET("/system/health", h.SystemHealth)
	api.GET("/alerts", h.ListAlerts)
	api.POST("/alerts/:alert_id/acknowledge", h.AcknowledgeAlert)
	api.POST("/alerts/:alert_id/resolve", h.ResolveAlert)

	e.GET("/health", h.Health)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
}

// Health returns health status.
func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "healthy",
		"version": Version,
	})
}
