package api

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/jtaylorcomplize/wombat-track-scaffold-sub008/domain"
)

// IngestAgentEvent accepts a lifecycle or performance event from an agent
// and publishes it for the monitor. Accepted events are processed
// asynchronously.
// POST /api/v1/agents/:agent_id/events
func (h *Handler) IngestAgentEvent(c echo.Context) error {
	var ev domain.AgentEvent
	if err := c.Bind(&ev); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	ev.AgentID = c.Param("agent_id")
	if ev.Kind == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "kind is required"})
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}

	h.events.Publish(ev)
	return c.JSON(http.StatusAccepted, map[string]interface{}{"accepted": true})
}

// AgentStatuses returns the tracked status of every agent.
// GET /api/v1/agents/status
func (h *Handler) AgentStatuses(c echo.Context) error {
	statuses := h.monitor.Statuses()
	return c.JSON(http.StatusOK, map[string]interface{}{
		"count":  len(statuses),
		"agents": statuses,
	})
}

// AgentStatus returns one agent's tracked status.
// GET /api/v1/agents/:agent_id/status
func (h *Handler) AgentStatus(c echo.Context) error {
	status, ok := h.monitor.Status(c.Param("agent_id"))
	if !ok {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "agent not found"})
	}
	return c.JSON(http.StatusOK, status)
}

// SystemHealth returns aggregated health across all agents.
// GET /api/v1/system/health
func (h *Handler) SystemHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, h.monitor.SystemHealth())
}
